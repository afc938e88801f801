package models

import "time"

type Role string

const (
	RoleStudent      Role = "STUDENT"
	RoleLibraryAdmin Role = "LIBRARY_ADMIN"
	RoleGuest        Role = "GUEST"
)

// ParseRole accepts the canonical role names plus the login-page aliases "student" and "library".
func ParseRole(s string) (Role, bool) {
	switch s {
	case string(RoleStudent), "student", "reader":
		return RoleStudent, true
	case string(RoleLibraryAdmin), "library", "admin":
		return RoleLibraryAdmin, true
	}
	return "", false
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	Name         string    `json:"name"`
	LibraryID    string    `json:"library_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type Enrollment struct {
	StudentID  string    `json:"student_id"`
	LibraryID  string    `json:"library_id"`
	EnrolledAt time.Time `json:"enrolled_at"`
}

// StudentSummary is an enrolled student with their current loan count.
type StudentSummary struct {
	User
	EnrolledAt  time.Time `json:"enrolled_at"`
	ActiveLoans int       `json:"active_loans"`
}
