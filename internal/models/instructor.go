package models

// Instructor is the profile record linked one-to-one to an instructor account.
type Instructor struct {
	ID        string `db:"id" json:"id"`
	FullName  string `db:"full_name" json:"full_name"`
	Specialty string `db:"specialty" json:"specialty"`
	UserID    string `db:"user_id" json:"user_id"`
}

// InstructorDetail enriches Instructor with account information.
type InstructorDetail struct {
	Instructor
	Username string `db:"username" json:"username"`
	Email    string `db:"email" json:"email"`
}

// InstructorFilter provides filters for listing instructors.
type InstructorFilter struct {
	Search   string
	Page     int
	PageSize int
}
