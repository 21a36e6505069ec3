package service

import "github.com/coursehub/course-hub-api/internal/models"

// Authorization policy: pure decisions over the caller's claims and the
// ownership of the target. Anything needing a database load happens in the
// services before these are consulted.

// IsAdmin reports whether the caller holds the admin role.
func IsAdmin(claims *models.JWTClaims) bool {
	return claims != nil && claims.Role == models.RoleAdmin
}

// CanAccessAccount permits admins and the account owner.
func CanAccessAccount(claims *models.JWTClaims, targetUserID string) bool {
	if claims == nil {
		return false
	}
	return claims.Role == models.RoleAdmin || claims.UserID == targetUserID
}

// CanManageCourse permits admins and the instructor whose account owns the
// course's instructor profile.
func CanManageCourse(claims *models.JWTClaims, courseOwnerUserID string) bool {
	if claims == nil {
		return false
	}
	if claims.Role == models.RoleAdmin {
		return true
	}
	return claims.Role == models.RoleInstructor && claims.UserID == courseOwnerUserID
}

// CanViewEnrollment permits admins, the student who owns the enrollment and
// the instructor who owns its course.
func CanViewEnrollment(claims *models.JWTClaims, studentOwnerUserID, courseOwnerUserID string) bool {
	if claims == nil {
		return false
	}
	switch claims.Role {
	case models.RoleAdmin:
		return true
	case models.RoleStudent:
		return claims.UserID == studentOwnerUserID
	case models.RoleInstructor:
		return claims.UserID == courseOwnerUserID
	}
	return false
}

// CanTransitionEnrollment decides who may move an enrollment into the given
// status. Students may only drop their own enrollment; completing (which
// assigns a grade) is reserved for the owning instructor and admins.
func CanTransitionEnrollment(claims *models.JWTClaims, status models.EnrollmentStatus, studentOwnerUserID, courseOwnerUserID string) bool {
	if claims == nil {
		return false
	}
	switch claims.Role {
	case models.RoleAdmin:
		return true
	case models.RoleInstructor:
		return claims.UserID == courseOwnerUserID
	case models.RoleStudent:
		return status == models.EnrollmentStatusDropped && claims.UserID == studentOwnerUserID
	}
	return false
}
