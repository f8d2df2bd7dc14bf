package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"comlab-status-backend/internal/model"
)

func (s *gormStore) AppendAttendance(ctx context.Context, entry *model.AttendanceLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append attendance: %w", err)
	}
	return nil
}

// CloseAttendance sets the time out of the newest open log for the same
// instructor and lab. When none is open a checkout-only row is appended.
func (s *gormStore) CloseAttendance(ctx context.Context, entry model.AttendanceLog, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("lab_number = ? AND time_out IS NULL", entry.LabNumber)
		if entry.InstructorID != "" {
			q = q.Where("instructor_id = ?", entry.InstructorID)
		} else {
			q = q.Where("instructor = ?", entry.Instructor)
		}

		var open model.AttendanceLog
		err := q.Order("id DESC").Take(&open).Error
		switch {
		case err == nil:
			if err := tx.Model(&open).Update("time_out", at).Error; err != nil {
				return fmt.Errorf("close attendance %d: %w", open.ID, err)
			}
			return nil
		case errors.Is(err, gorm.ErrRecordNotFound):
			entry.ID = 0
			entry.TimeIn = nil
			entry.TimeOut = &at
			if err := tx.Create(&entry).Error; err != nil {
				return fmt.Errorf("append checkout: %w", err)
			}
			return nil
		}
		return fmt.Errorf("find open attendance: %w", err)
	})
}

func (s *gormStore) ListAttendance(ctx context.Context) ([]model.AttendanceLog, error) {
	var logs []model.AttendanceLog
	if err := s.db.WithContext(ctx).Order("id").Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("list attendance: %w", err)
	}
	return logs, nil
}
