package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"comlab-status-backend/internal/model"
)

func (s *gormStore) CountLabs(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.Lab{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count labs: %w", err)
	}
	return n, nil
}

// CreateLabs inserts the given rows, skipping lab numbers that already exist.
func (s *gormStore) CreateLabs(ctx context.Context, labs []model.Lab) error {
	if len(labs) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "lab_number"}},
		DoNothing: true,
	}).Create(&labs).Error
	if err != nil {
		return fmt.Errorf("batch create labs failed: %w", err)
	}
	return nil
}

// ListLabs returns every lab. Callers order by lab number themselves since
// the column is text and "10" must follow "9".
func (s *gormStore) ListLabs(ctx context.Context) ([]model.Lab, error) {
	var labs []model.Lab
	if err := s.db.WithContext(ctx).Find(&labs).Error; err != nil {
		return nil, fmt.Errorf("list labs: %w", err)
	}
	return labs, nil
}

func (s *gormStore) GetLab(ctx context.Context, labNumber string) (*model.Lab, error) {
	var lab model.Lab
	if err := s.db.WithContext(ctx).Where("lab_number = ?", labNumber).Take(&lab).Error; err != nil {
		return nil, notFound(err)
	}
	return &lab, nil
}

func (s *gormStore) FindLabsByInstructor(ctx context.Context, instructorID string) ([]model.Lab, error) {
	var labs []model.Lab
	err := s.db.WithContext(ctx).
		Where("instructor_id = ? AND status = ?", instructorID, model.LabOccupied).
		Find(&labs).Error
	if err != nil {
		return nil, fmt.Errorf("find labs of instructor %s: %w", instructorID, err)
	}
	return labs, nil
}

func (s *gormStore) ListOccupiedLabs(ctx context.Context) ([]model.Lab, error) {
	var labs []model.Lab
	if err := s.db.WithContext(ctx).Where("status = ?", model.LabOccupied).Find(&labs).Error; err != nil {
		return nil, fmt.Errorf("list occupied labs: %w", err)
	}
	return labs, nil
}

// ClaimLab marks the lab occupied only if it is currently available. The
// check and the write are one conditional UPDATE; false means another writer
// got there first or the lab does not exist.
func (s *gormStore) ClaimLab(ctx context.Context, labNumber string, occ Occupant, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).Model(&model.Lab{}).
		Where("lab_number = ? AND status = ?", labNumber, model.LabAvailable).
		Updates(map[string]any{
			"status":        model.LabOccupied,
			"instructor":    occ.Instructor,
			"instructor_id": occ.InstructorID,
			"time_in":       occ.TimeIn,
			"last_updated":  now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("claim lab %s: %w", labNumber, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// ReleaseLab clears the occupant of an occupied lab. When holder is set the
// write only applies while holder is the occupant. false means the row was
// not in the expected state.
func (s *gormStore) ReleaseLab(ctx context.Context, labNumber, holder string, now time.Time) (bool, error) {
	q := s.db.WithContext(ctx).Model(&model.Lab{}).
		Where("lab_number = ? AND status = ?", labNumber, model.LabOccupied)
	if holder != "" {
		q = q.Where("instructor_id = ?", holder)
	}
	res := q.Updates(map[string]any{
		"status":        model.LabAvailable,
		"instructor":    nil,
		"instructor_id": nil,
		"time_in":       nil,
		"last_updated":  now,
	})
	if res.Error != nil {
		return false, fmt.Errorf("release lab %s: %w", labNumber, res.Error)
	}
	return res.RowsAffected == 1, nil
}
