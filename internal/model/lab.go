package model

import (
	"fmt"
	"time"
)

// LabStatus is the occupancy state of a laboratory.
type LabStatus string

const (
	LabAvailable LabStatus = "available"
	LabOccupied  LabStatus = "occupied"
)

// Lab is the canonical occupancy row of one physical computer laboratory.
// Instructor, InstructorID and TimeIn are set iff Status is LabOccupied.
type Lab struct {
	ID           int64      `gorm:"primaryKey" json:"-"`
	LabNumber    string     `gorm:"uniqueIndex;size:32;not null" json:"labNumber"`
	LabName      string     `gorm:"size:128;not null" json:"labName"`
	QRValue      string     `gorm:"size:64;not null" json:"qrValue"`
	Status       LabStatus  `gorm:"size:16;not null;default:available;index" json:"status"`
	Instructor   *string    `gorm:"size:256" json:"instructor"`
	InstructorID *string    `gorm:"size:64;index" json:"instructorId"`
	TimeIn       *time.Time `json:"timeIn"`
	LastUpdated  time.Time  `gorm:"not null" json:"lastUpdated"`
	CreatedAt    time.Time  `json:"-"`
	UpdatedAt    time.Time  `json:"-"`
}

// NewLab builds an available lab row for the given number.
func NewLab(labNumber string, now time.Time) Lab {
	return Lab{
		LabNumber:   labNumber,
		LabName:     fmt.Sprintf("Computer Laboratory %s", labNumber),
		QRValue:     fmt.Sprintf("lab-%s", labNumber),
		Status:      LabAvailable,
		LastUpdated: now,
	}
}

// IsOccupied reports whether the lab currently has an occupant.
func (l Lab) IsOccupied() bool {
	return l.Status == LabOccupied
}

// InstructorName returns the occupant's display name or "".
func (l Lab) InstructorName() string {
	if l.Instructor == nil {
		return ""
	}
	return *l.Instructor
}

// OccupantID returns the occupant's identifier or "".
func (l Lab) OccupantID() string {
	if l.InstructorID == nil {
		return ""
	}
	return *l.InstructorID
}
