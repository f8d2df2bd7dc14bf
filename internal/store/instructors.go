package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"comlab-status-backend/internal/model"
)

func (s *gormStore) ListInstructors(ctx context.Context) ([]model.Instructor, error) {
	var out []model.Instructor
	if err := s.db.WithContext(ctx).Order("lastname, name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("list instructors: %w", err)
	}
	return out, nil
}

func (s *gormStore) GetInstructor(ctx context.Context, id string) (*model.Instructor, error) {
	var in model.Instructor
	if err := s.db.WithContext(ctx).Where("id = ?", id).Take(&in).Error; err != nil {
		return nil, notFound(err)
	}
	return &in, nil
}

func (s *gormStore) CreateInstructor(ctx context.Context, in *model.Instructor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := emailTaken(tx, in.Email, ""); err != nil {
			return err
		}
		if err := tx.Create(in).Error; err != nil {
			return fmt.Errorf("create instructor: %w", err)
		}
		return nil
	})
}

func (s *gormStore) UpdateInstructor(ctx context.Context, in *model.Instructor) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := emailTaken(tx, in.Email, in.ID); err != nil {
			return err
		}
		res := tx.Model(&model.Instructor{}).Where("id = ?", in.ID).Updates(map[string]any{
			"name":     in.Name,
			"lastname": in.Lastname,
			"email":    in.Email,
		})
		if res.Error != nil {
			return fmt.Errorf("update instructor %s: %w", in.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *gormStore) DeleteInstructor(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Instructor{})
	if res.Error != nil {
		return fmt.Errorf("delete instructor %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// emailTaken returns ErrDuplicate when another instructor already uses email.
func emailTaken(tx *gorm.DB, email, exceptID string) error {
	var other model.Instructor
	q := tx.Where("email = ?", email)
	if exceptID != "" {
		q = q.Where("id <> ?", exceptID)
	}
	err := q.Take(&other).Error
	switch {
	case err == nil:
		return ErrDuplicate
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil
	}
	return fmt.Errorf("check instructor email: %w", err)
}
