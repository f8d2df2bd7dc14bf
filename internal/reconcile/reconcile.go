// Package reconcile turns the raw attendance stream into one row per session.
package reconcile

import (
	"math"
	"sort"
	"strings"
	"time"

	"comlab-status-backend/internal/parse"
)

// sameSessionWindow is how close two check-in times must be to be merged
// regardless of the names on them.
const sameSessionWindow = time.Minute

// headerLabels are column titles that leak into the stream as data rows.
var headerLabels = map[string]bool{
	"Instructor": true,
	"Lab Number": true,
	"Number":     true,
	"Time In":    true,
	"Time Out":   true,
	"Duration":   true,
}

// RawRecord is one captured check-in or check-out, kept as text.
type RawRecord struct {
	Instructor string `json:"instructor"`
	LabNumber  string `json:"labNumber"`
	TimeIn     string `json:"timeIn"`
	TimeOut    string `json:"timeOut"`
	Error      bool   `json:"error,omitempty"`
}

// Session is the reconciled view of one or more raw records.
type Session struct {
	Instructor     string `json:"instructor"`
	LabNumber      string `json:"labNumber"`
	TimeIn         string `json:"timeIn"`
	TimeOut        string `json:"timeOut"`
	TimeInDisplay  string `json:"timeInDisplay"`
	TimeOutDisplay string `json:"timeOutDisplay"`
	Duration       string `json:"duration"`
	Completed      bool   `json:"completed"`
	Error          bool   `json:"error,omitempty"`
}

// Reconciler groups raw records. It holds no state between calls.
type Reconciler struct {
	loc *time.Location
}

// New returns a Reconciler that reads zone-less timestamps in loc.
func New(loc *time.Location) *Reconciler {
	if loc == nil {
		loc = time.Local
	}
	return &Reconciler{loc: loc}
}

type group struct {
	instructor string
	lab        string
	timeInMs   int64
	members    []RawRecord
}

// Reconcile filters, groups, resolves and orders the records. Malformed
// fields never fail the pass; they only degrade the derived display values.
func (r *Reconciler) Reconcile(records []RawRecord) []Session {
	var groups []*group
	for _, rec := range records {
		rec = normalize(rec)
		if skip(rec) {
			continue
		}
		ms := r.millis(rec.TimeIn)

		var joined bool
		for _, g := range groups {
			if rec.LabNumber != g.lab {
				continue
			}
			if absDiff(ms, g.timeInMs) < sameSessionWindow.Milliseconds() || SameInstructor(rec.Instructor, g.instructor) {
				g.members = append(g.members, rec)
				joined = true
				break
			}
		}
		if !joined {
			groups = append(groups, &group{
				instructor: rec.Instructor,
				lab:        rec.LabNumber,
				timeInMs:   ms,
				members:    []RawRecord{rec},
			})
		}
	}

	sessions := make([]Session, 0, len(groups))
	for _, g := range groups {
		sessions = append(sessions, r.session(resolve(g.members)))
	}
	r.order(sessions)
	return sessions
}

func normalize(rec RawRecord) RawRecord {
	rec.Instructor = strings.TrimSpace(rec.Instructor)
	rec.LabNumber = strings.TrimSpace(rec.LabNumber)
	if rec.Instructor == "" {
		rec.Instructor = "Unknown"
	}
	return rec
}

// skip drops header artifacts and rows carrying no timestamp at all.
func skip(rec RawRecord) bool {
	if headerLabels[rec.LabNumber] {
		return true
	}
	if rec.Instructor != headerInstructor && headerLabels[rec.Instructor] {
		return true
	}
	return !parse.Present(rec.TimeIn) && !parse.Present(rec.TimeOut)
}

// resolve picks the first member with a time out, else the first member.
func resolve(members []RawRecord) RawRecord {
	for _, m := range members {
		if parse.Present(m.TimeOut) {
			return m
		}
	}
	return members[0]
}

func (r *Reconciler) session(rec RawRecord) Session {
	return Session{
		Instructor:     rec.Instructor,
		LabNumber:      rec.LabNumber,
		TimeIn:         rec.TimeIn,
		TimeOut:        rec.TimeOut,
		TimeInDisplay:  FormatDate(rec.TimeIn, r.loc),
		TimeOutDisplay: FormatDate(rec.TimeOut, r.loc),
		Duration:       Duration(rec.TimeIn, rec.TimeOut, r.loc),
		Completed:      parse.Present(rec.TimeOut),
		Error:          rec.Error,
	}
}

// order puts completed sessions first, newest time out first, then sessions
// in progress, newest time in first. Unparseable times sort last in their
// block. The sort is stable so equal keys keep their grouping order.
func (r *Reconciler) order(sessions []Session) {
	const missing = math.MinInt64
	key := func(s Session) int64 {
		raw := s.TimeIn
		if s.Completed {
			raw = s.TimeOut
		}
		t, err := parse.Timestamp(raw, r.loc)
		if err != nil {
			return missing
		}
		return t.UnixMilli()
	}

	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if a.Completed != b.Completed {
			return a.Completed
		}
		return key(a) > key(b)
	})
}

func (r *Reconciler) millis(raw string) int64 {
	t, err := parse.Timestamp(raw, r.loc)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
