// Package attendance records check-ins and check-outs and reads them back
// as raw records for reconciliation.
package attendance

import (
	"context"
	"time"

	"comlab-status-backend/internal/model"
	"comlab-status-backend/internal/reconcile"
	"comlab-status-backend/internal/store"
)

// RecordLayout is the text form of timestamps handed to the reconciler.
const RecordLayout = time.RFC3339

// Event is one occupancy transition to be journaled.
type Event struct {
	InstructorID string
	Instructor   string
	LabNumber    string
	At           time.Time
}

// Journal appends raw attendance events.
type Journal interface {
	RecordCheckIn(ctx context.Context, ev Event) error
	RecordCheckOut(ctx context.Context, ev Event) error
}

// Source reads back the raw attendance stream.
type Source interface {
	Records(ctx context.Context) ([]reconcile.RawRecord, error)
}

// DBJournal keeps attendance in the attendance_logs table.
type DBJournal struct {
	store store.Store
}

// NewDBJournal creates a journal on top of the given store.
func NewDBJournal(s store.Store) *DBJournal {
	return &DBJournal{store: s}
}

func (j *DBJournal) RecordCheckIn(ctx context.Context, ev Event) error {
	at := ev.At
	return j.store.AppendAttendance(ctx, &model.AttendanceLog{
		Instructor:   ev.Instructor,
		InstructorID: ev.InstructorID,
		LabNumber:    ev.LabNumber,
		TimeIn:       &at,
		CreatedAt:    at,
	})
}

func (j *DBJournal) RecordCheckOut(ctx context.Context, ev Event) error {
	return j.store.CloseAttendance(ctx, model.AttendanceLog{
		Instructor:   ev.Instructor,
		InstructorID: ev.InstructorID,
		LabNumber:    ev.LabNumber,
		CreatedAt:    ev.At,
	}, ev.At)
}

func (j *DBJournal) Records(ctx context.Context) ([]reconcile.RawRecord, error) {
	logs, err := j.store.ListAttendance(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]reconcile.RawRecord, 0, len(logs))
	for _, l := range logs {
		out = append(out, reconcile.RawRecord{
			Instructor: l.Instructor,
			LabNumber:  l.LabNumber,
			TimeIn:     formatTime(l.TimeIn),
			TimeOut:    formatTime(l.TimeOut),
		})
	}
	return out, nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(RecordLayout)
}
