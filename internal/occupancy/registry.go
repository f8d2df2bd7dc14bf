// Package occupancy is the source of truth for which lab is free and who
// occupies the others.
package occupancy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"comlab-status-backend/internal/apperr"
	"comlab-status-backend/internal/attendance"
	"comlab-status-backend/internal/lock"
	"comlab-status-backend/internal/metrics"
	"comlab-status-backend/internal/model"
	"comlab-status-backend/internal/parse"
	"comlab-status-backend/internal/store"
)

// Action tells the caller which way a scan toggled.
type Action string

const (
	ActionLogin  Action = "login"
	ActionLogout Action = "logout"
)

const (
	journalTimeout = 20 * time.Second
	releaseRetries = 3
)

// Notifier is told when a lab becomes available.
type Notifier interface {
	Dispatch(labNumber string)
}

// OccupyRequest is a check-in attempt. TimeIn defaults to now.
type OccupyRequest struct {
	LabNumber      string
	InstructorID   string
	InstructorName string
	TimeIn         *time.Time
}

// OccupyResult is the outcome of a scan.
type OccupyResult struct {
	Action Action    `json:"action"`
	Lab    model.Lab `json:"lab"`
}

// Options holds the optional collaborators of a Registry.
type Options struct {
	Journal  attendance.Journal
	Notifier Notifier
	Clock    func() time.Time
	LockTTL  time.Duration
	Logger   zerolog.Logger
}

// Registry applies lab transitions.
type Registry struct {
	store    store.Store
	locker   lock.Locker
	journal  attendance.Journal
	notifier Notifier
	now      func() time.Time
	lockTTL  time.Duration
	log      zerolog.Logger
}

// New creates a Registry.
func New(s store.Store, l lock.Locker, opts Options) *Registry {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	return &Registry{
		store:    s,
		locker:   l,
		journal:  opts.Journal,
		notifier: opts.Notifier,
		now:      opts.Clock,
		lockTTL:  opts.LockTTL,
		log:      opts.Logger.With().Str("component", "occupancy").Logger(),
	}
}

// Initialize creates labs 1..count as available when no lab exists yet.
// Otherwise it performs no writes and returns the existing labs.
func (r *Registry) Initialize(ctx context.Context, count int) ([]model.Lab, error) {
	if count <= 0 {
		return nil, apperr.Validation("initialize", "lab count must be positive, got %d", count)
	}
	n, err := r.store.CountLabs(ctx)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		return r.List(ctx)
	}

	now := r.now()
	labs := make([]model.Lab, 0, count)
	for i := 1; i <= count; i++ {
		labs = append(labs, model.NewLab(strconv.Itoa(i), now))
	}
	if err := r.store.CreateLabs(ctx, labs); err != nil {
		return nil, err
	}
	r.log.Info().Int("count", count).Msg("labs initialized")
	return r.List(ctx)
}

// List returns every lab in numeric lab number order.
func (r *Registry) List(ctx context.Context) ([]model.Lab, error) {
	labs, err := r.store.ListLabs(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(labs, func(i, j int) bool {
		return parse.CompareLabNumbers(labs[i].LabNumber, labs[j].LabNumber) < 0
	})
	return labs, nil
}

// Get returns one lab. labNumber may carry a "Lab" or "Comlab" prefix.
func (r *Registry) Get(ctx context.Context, labNumber string) (model.Lab, error) {
	n, err := normalizeLab("get", labNumber)
	if err != nil {
		return model.Lab{}, err
	}
	lab, err := r.lab(ctx, "get", n)
	if err != nil {
		return model.Lab{}, err
	}
	return *lab, nil
}

// Occupy checks an instructor in. When the instructor already occupies a
// lab, that lab is released instead and the action is ActionLogout.
func (r *Registry) Occupy(ctx context.Context, req OccupyRequest) (OccupyResult, error) {
	res, err := r.occupy(ctx, req)
	if kind := apperr.KindOf(err); kind != "" {
		metrics.IncOccupyRejected(string(kind))
	}
	return res, err
}

func (r *Registry) occupy(ctx context.Context, req OccupyRequest) (OccupyResult, error) {
	const op = "occupy"

	labNumber, err := normalizeLab(op, req.LabNumber)
	if err != nil {
		return OccupyResult{}, err
	}
	instructorID := strings.TrimSpace(req.InstructorID)
	name := strings.TrimSpace(req.InstructorName)
	if instructorID == "" {
		return OccupyResult{}, apperr.Validation(op, "instructor id is required")
	}
	if name == "" {
		return OccupyResult{}, apperr.Validation(op, "instructor name is required")
	}

	// Held across the multi-row check so one instructor cannot claim two labs at once.
	unlock, err := r.locker.Acquire(ctx, "instructor:"+instructorID, r.lockTTL)
	if err != nil {
		return OccupyResult{}, fmt.Errorf("%s: lock instructor %s: %w", op, instructorID, err)
	}
	defer unlock()

	target, err := r.lab(ctx, op, labNumber)
	if err != nil {
		return OccupyResult{}, err
	}

	held, err := r.store.FindLabsByInstructor(ctx, instructorID)
	if err != nil {
		return OccupyResult{}, err
	}
	if len(held) > 0 {
		return r.logout(ctx, held)
	}

	if target.IsOccupied() {
		return OccupyResult{}, apperr.Conflict(op, "lab %s is already occupied", labNumber)
	}

	now := r.now()
	timeIn := now
	if req.TimeIn != nil && !req.TimeIn.IsZero() {
		timeIn = *req.TimeIn
	}
	claimed, err := r.store.ClaimLab(ctx, labNumber, store.Occupant{
		InstructorID: instructorID,
		Instructor:   name,
		TimeIn:       timeIn,
	}, now)
	if err != nil {
		return OccupyResult{}, err
	}
	if !claimed {
		return OccupyResult{}, apperr.Conflict(op, "lab %s is already occupied", labNumber)
	}

	metrics.IncTransition(string(ActionLogin))
	r.log.Info().Str("lab", labNumber).Str("instructor_id", instructorID).Msg("lab occupied")
	r.record(ctx, true, attendance.Event{InstructorID: instructorID, Instructor: name, LabNumber: labNumber, At: timeIn})

	lab, err := r.lab(ctx, op, labNumber)
	if err != nil {
		return OccupyResult{}, err
	}
	return OccupyResult{Action: ActionLogin, Lab: *lab}, nil
}

// logout releases every lab the instructor holds and reports the first.
func (r *Registry) logout(ctx context.Context, held []model.Lab) (OccupyResult, error) {
	sort.SliceStable(held, func(i, j int) bool {
		return parse.CompareLabNumbers(held[i].LabNumber, held[j].LabNumber) < 0
	})
	for _, lab := range held {
		if _, err := r.releaseHeld(ctx, lab, ActionLogout); err != nil {
			return OccupyResult{}, err
		}
	}
	lab, err := r.lab(ctx, "occupy", held[0].LabNumber)
	if err != nil {
		return OccupyResult{}, err
	}
	return OccupyResult{Action: ActionLogout, Lab: *lab}, nil
}

// Release frees a lab. Releasing an available lab is a no-op.
func (r *Registry) Release(ctx context.Context, labNumber string) (model.Lab, error) {
	const op = "release"

	n, err := normalizeLab(op, labNumber)
	if err != nil {
		return model.Lab{}, err
	}

	for attempt := 0; attempt < releaseRetries; attempt++ {
		lab, err := r.lab(ctx, op, n)
		if err != nil {
			return model.Lab{}, err
		}
		if !lab.IsOccupied() {
			return *lab, nil
		}
		released, err := r.releaseHeld(ctx, *lab, "release")
		if err != nil {
			return model.Lab{}, err
		}
		if released {
			return r.Get(ctx, n)
		}
		// The occupant changed between the read and the write; look again.
	}
	return model.Lab{}, apperr.Conflict(op, "lab %s changed concurrently, retry", n)
}

// releaseHeld clears lab if its occupant is unchanged, then journals the
// check-out and announces the free lab.
func (r *Registry) releaseHeld(ctx context.Context, lab model.Lab, action Action) (bool, error) {
	now := r.now()
	released, err := r.store.ReleaseLab(ctx, lab.LabNumber, lab.OccupantID(), now)
	if err != nil || !released {
		return false, err
	}

	metrics.IncTransition(string(action))
	r.log.Info().Str("lab", lab.LabNumber).Str("instructor_id", lab.OccupantID()).Str("action", string(action)).Msg("lab released")
	r.record(ctx, false, attendance.Event{
		InstructorID: lab.OccupantID(),
		Instructor:   lab.InstructorName(),
		LabNumber:    lab.LabNumber,
		At:           now,
	})
	if r.notifier != nil {
		r.notifier.Dispatch(lab.LabNumber)
	}
	return true, nil
}

// ResolveDoubleOccupancy releases all but the most recent lab of any
// instructor found occupying more than one. It returns how many labs were
// released.
func (r *Registry) ResolveDoubleOccupancy(ctx context.Context) (int, error) {
	occupied, err := r.store.ListOccupiedLabs(ctx)
	if err != nil {
		return 0, err
	}

	byInstructor := make(map[string][]model.Lab)
	for _, lab := range occupied {
		if id := lab.OccupantID(); id != "" {
			byInstructor[id] = append(byInstructor[id], lab)
		}
	}

	var releasedTotal int
	for id, labs := range byInstructor {
		if len(labs) < 2 {
			continue
		}
		n, err := r.resolveInstructor(ctx, id)
		releasedTotal += n
		if err != nil {
			return releasedTotal, err
		}
	}
	return releasedTotal, nil
}

func (r *Registry) resolveInstructor(ctx context.Context, instructorID string) (int, error) {
	unlock, err := r.locker.Acquire(ctx, "instructor:"+instructorID, r.lockTTL)
	if err != nil {
		return 0, fmt.Errorf("audit: lock instructor %s: %w", instructorID, err)
	}
	defer unlock()

	// Re-read under the lock; a scan may have resolved it already.
	labs, err := r.store.FindLabsByInstructor(ctx, instructorID)
	if err != nil || len(labs) < 2 {
		return 0, err
	}
	sort.SliceStable(labs, func(i, j int) bool {
		return laterTimeIn(labs[i], labs[j])
	})

	var released int
	for _, lab := range labs[1:] {
		ok, err := r.releaseHeld(ctx, lab, "audit")
		if err != nil {
			return released, err
		}
		if ok {
			released++
			metrics.IncDoubleOccupancyRelease()
			r.log.Warn().Str("lab", lab.LabNumber).Str("instructor_id", instructorID).
				Str("kept", labs[0].LabNumber).Msg("released double occupancy")
		}
	}
	return released, nil
}

func laterTimeIn(a, b model.Lab) bool {
	switch {
	case a.TimeIn == nil:
		return false
	case b.TimeIn == nil:
		return true
	}
	return a.TimeIn.After(*b.TimeIn)
}

func (r *Registry) lab(ctx context.Context, op, labNumber string) (*model.Lab, error) {
	lab, err := r.store.GetLab(ctx, labNumber)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(op, "lab %s not found", labNumber)
	}
	return lab, err
}

// record writes to the attendance journal. Occupancy is already committed,
// so failures are logged and counted but not returned.
func (r *Registry) record(ctx context.Context, checkIn bool, ev attendance.Event) {
	if r.journal == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	var err error
	op := "check_in"
	if checkIn {
		err = r.journal.RecordCheckIn(ctx, ev)
	} else {
		op = "check_out"
		err = r.journal.RecordCheckOut(ctx, ev)
	}
	if err != nil {
		metrics.IncJournalFailure(op)
		r.log.Error().Err(err).Str("op", op).Str("lab", ev.LabNumber).
			Str("instructor_id", ev.InstructorID).Msg("attendance journal write failed")
	}
}

func normalizeLab(op, raw string) (string, error) {
	if strings.TrimSpace(raw) == "" {
		return "", apperr.Validation(op, "lab number is required")
	}
	n, err := parse.LabNumber(raw)
	if err != nil {
		return "", apperr.Validation(op, "invalid lab number %q", raw)
	}
	return n, nil
}
