package model

import (
	"time"

	"github.com/google/uuid"
)

// UserRole separates administrators, exam owners and participants.
type UserRole string

const (
	UserRoleAdmin     UserRole = "ADMIN"
	UserRoleProfessor UserRole = "PROFESSOR"
	UserRoleStudent   UserRole = "STUDENT"
)

// User is a staff or student account.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         UserRole  `json:"role"`
	Department   string    `json:"department,omitempty"`
	RollNumber   string    `json:"roll_number,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// CanOwnExams reports whether the user may author and proctor exams.
func (u *User) CanOwnExams() bool {
	return u.Role == UserRoleProfessor || u.Role == UserRoleAdmin
}

// LoginRequest is the payload for staff and student authentication.
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=4,max=128"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// RegisterUserRequest is the self-registration payload. Role defaults to PROFESSOR.
type RegisterUserRequest struct {
	Email      string `json:"email" binding:"required,email,max=255"`
	Password   string `json:"password" binding:"required,min=6,max=128"`
	Name       string `json:"name" binding:"required,min=2,max=100"`
	Department string `json:"department" binding:"required,max=100"`
	Role       string `json:"role" binding:"omitempty,oneof=PROFESSOR STUDENT"`
	RollNumber string `json:"roll_number" binding:"required_if=Role STUDENT,max=64"`
}

// RegisterAdminRequest is the payload an admin sends to create another admin.
type RegisterAdminRequest struct {
	Email      string `json:"email" binding:"required,email,max=255"`
	Password   string `json:"password" binding:"required,min=6,max=128"`
	Name       string `json:"name" binding:"required,min=2,max=100"`
	Department string `json:"department" binding:"required,max=100"`
}

// UpdateDepartmentRequest changes the caller's own department.
type UpdateDepartmentRequest struct {
	Department string `json:"department" binding:"required,max=100"`
}

// Stats is the admin dashboard summary.
type Stats struct {
	Exams             int `json:"exams"`
	Users             int `json:"users"`
	ApprovedDevices   int `json:"devices"`
	CompletedSessions int `json:"completed_sessions"`
}
