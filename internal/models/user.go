package models

import "time"

// User represents a registered student
type User struct {
	ID           string    `json:"id" db:"id"`
	Email        string    `json:"email" db:"email"`
	Name         string    `json:"name" db:"name"`
	Password     string    `json:"-" db:"password_hash"` // Never expose in JSON
	AuthProvider string    `json:"authProvider" db:"auth_provider"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// Identity is the viewer a chat session is bound to
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

// UserResponse is what we send to clients (without sensitive data)
type UserResponse struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	AuthProvider string    `json:"authProvider"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ToResponse converts User to UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		AuthProvider: u.AuthProvider,
		CreatedAt:    u.CreatedAt,
	}
}

// Identity returns the chat identity of the user
func (u *User) Identity() Identity {
	return Identity{ID: u.ID, DisplayName: u.Name, Email: u.Email}
}

// AsSender converts an identity into the reference stored on messages
func (i Identity) AsSender() Sender {
	return Sender{ID: i.ID, Name: i.DisplayName}
}
