package models

// Student is the profile record linked one-to-one to a student account.
type Student struct {
	ID             string `db:"id" json:"id"`
	FullName       string `db:"full_name" json:"full_name"`
	Age            int    `db:"age" json:"age"`
	StudentCode    string `db:"student_code" json:"student_code"`
	EnrollmentYear int    `db:"enrollment_year" json:"enrollment_year"`
	UserID         string `db:"user_id" json:"user_id"`
}

// StudentDetail enriches Student with account information.
type StudentDetail struct {
	Student
	Username string `db:"username" json:"username"`
	Email    string `db:"email" json:"email"`
}

// StudentFilter provides filters for listing students.
type StudentFilter struct {
	EnrollmentYear *int
	Search         string
	Page           int
	PageSize       int
}
