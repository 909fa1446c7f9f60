package models

type UserRole string

const (
	RoleStudent UserRole = "student"
	RoleTeacher UserRole = "teacher"
	RoleProctor UserRole = "proctor"
	RoleAdmin   UserRole = "admin"
)

// User is the identity resolved by the authentication subsystem. It is not persisted here.
type User struct {
	ID       string   `json:"id"`
	FullName string   `json:"full_name"`
	Email    string   `json:"email"`
	Role     UserRole `json:"role"`
}

// IsReviewer reports whether the user may grade and inspect other users' attempts.
func (u *User) IsReviewer() bool {
	switch u.Role {
	case RoleTeacher, RoleProctor, RoleAdmin:
		return true
	}
	return false
}
