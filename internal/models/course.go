package models

// Course represents an offered course owned by an instructor.
type Course struct {
	ID           string `db:"id" json:"id"`
	Title        string `db:"title" json:"title"`
	CourseCode   string `db:"course_code" json:"course_code"`
	Description  string `db:"description" json:"description"`
	CreditHours  int    `db:"credit_hours" json:"credit_hours"`
	MaxCapacity  int    `db:"max_capacity" json:"max_capacity"`
	InstructorID string `db:"instructor_id" json:"instructor_id"`
}

// CourseDetail enriches Course with instructor info and the live count of
// enrolled students, computed from the enrollment set rather than stored.
type CourseDetail struct {
	Course
	InstructorName string `db:"instructor_name" json:"instructor_name"`
	EnrolledCount  int    `db:"enrolled_count" json:"enrolled_count"`
}

// CourseFilter provides filters for listing courses.
type CourseFilter struct {
	InstructorID string
	Search       string
	Page         int
	PageSize     int
}
