package models

import (
	"time"

	"github.com/google/uuid"
)

// User roles.
const (
	RoleAdmin  = "admin"
	RoleGM     = "gm"
	RolePlayer = "player"
)

// User is a platform account.
type User struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	Password    string    `json:"-"` // bcrypt hash
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UserPublic is the user representation returned to clients.
type UserPublic struct {
	ID          uuid.UUID `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
}

// Public returns the client-safe view of the user.
func (u *User) Public() UserPublic {
	return UserPublic{ID: u.ID, Email: u.Email, DisplayName: u.DisplayName, Role: u.Role}
}
