package model

import "time"

// AttendanceLog is one raw check-in or check-out record (append-only).
type AttendanceLog struct {
	ID           int64      `gorm:"primaryKey;autoIncrement"`
	Instructor   string     `gorm:"size:256;not null"`
	InstructorID string     `gorm:"size:64;index"`
	LabNumber    string     `gorm:"size:32;not null;index"`
	TimeIn       *time.Time
	TimeOut      *time.Time
	CreatedAt    time.Time `gorm:"not null"`
}
