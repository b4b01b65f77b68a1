package models

import "time"

// StudyGroup is a chat room shared by its members
type StudyGroup struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	Subject   *string   `json:"subject,omitempty" db:"subject"`
	CreatedBy string    `json:"createdBy" db:"created_by"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// StudyGroupWithMembers includes member information
type StudyGroupWithMembers struct {
	StudyGroup
	Members []UserResponse `json:"members"`
}
