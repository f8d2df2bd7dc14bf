package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"comlab-status-backend/internal/model"
)

var (
	// ErrNotFound is returned when the requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique attribute is already taken.
	ErrDuplicate = errors.New("duplicate record")
)

// Occupant identifies who claims a lab and since when.
type Occupant struct {
	InstructorID string
	Instructor   string
	TimeIn       time.Time
}

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	CountLabs(ctx context.Context) (int64, error)
	CreateLabs(ctx context.Context, labs []model.Lab) error
	ListLabs(ctx context.Context) ([]model.Lab, error)
	GetLab(ctx context.Context, labNumber string) (*model.Lab, error)
	FindLabsByInstructor(ctx context.Context, instructorID string) ([]model.Lab, error)
	ListOccupiedLabs(ctx context.Context) ([]model.Lab, error)
	ClaimLab(ctx context.Context, labNumber string, occ Occupant, now time.Time) (bool, error)
	ReleaseLab(ctx context.Context, labNumber, holder string, now time.Time) (bool, error)

	ListInstructors(ctx context.Context) ([]model.Instructor, error)
	GetInstructor(ctx context.Context, id string) (*model.Instructor, error)
	CreateInstructor(ctx context.Context, in *model.Instructor) error
	UpdateInstructor(ctx context.Context, in *model.Instructor) error
	DeleteInstructor(ctx context.Context, id string) error

	AppendAttendance(ctx context.Context, entry *model.AttendanceLog) error
	CloseAttendance(ctx context.Context, entry model.AttendanceLog, at time.Time) error
	ListAttendance(ctx context.Context) ([]model.AttendanceLog, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
