package model

import "time"

// Instructor is a registered instructor who may check in to a lab.
type Instructor struct {
	ID        string    `gorm:"primaryKey;size:64" json:"id"`
	Name      string    `gorm:"size:128;not null" json:"name"`
	Lastname  string    `gorm:"size:128;not null" json:"lastname"`
	Email     string    `gorm:"uniqueIndex;size:256;not null" json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FullName is the display name recorded on check-in.
func (i Instructor) FullName() string {
	if i.Lastname == "" {
		return i.Name
	}
	return i.Name + " " + i.Lastname
}
