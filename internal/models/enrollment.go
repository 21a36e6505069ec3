package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Enrolled is initial; completed and dropped
// are terminal.
const (
	EnrollmentStatusEnrolled  EnrollmentStatus = "enrolled"
	EnrollmentStatusCompleted EnrollmentStatus = "completed"
	EnrollmentStatusDropped   EnrollmentStatus = "dropped"
)

// ValidEnrollmentStatus reports whether the status is a known value.
func ValidEnrollmentStatus(status EnrollmentStatus) bool {
	switch status {
	case EnrollmentStatusEnrolled, EnrollmentStatusCompleted, EnrollmentStatusDropped:
		return true
	}
	return false
}

// Enrollment links a student to a course for a given semester.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	CourseID   string           `db:"course_id" json:"course_id"`
	Grade      *string          `db:"grade" json:"grade,omitempty"`
	Semester   string           `db:"semester" json:"semester"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	Status     EnrollmentStatus `db:"status" json:"status"`
}

// EnrollmentDetail enriches Enrollment with student and course info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	StudentCode string `db:"student_code" json:"student_code"`
	CourseTitle string `db:"course_title" json:"course_title"`
	CourseCode  string `db:"course_code" json:"course_code"`
}

// EnrollmentFilter provides filters for listing enrollments. InstructorID
// restricts results to enrollments in courses owned by that instructor.
type EnrollmentFilter struct {
	StudentID    string
	CourseID     string
	InstructorID string
	Semester     string
	Status       EnrollmentStatus
	Page         int
	PageSize     int
}
