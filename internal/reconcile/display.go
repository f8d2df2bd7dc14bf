package reconcile

import (
	"fmt"
	"time"

	"comlab-status-backend/internal/parse"
)

const (
	// DisplayLayout renders timestamps the way the history table shows them.
	DisplayLayout = "1/2/2006, 3:04:05 PM"

	NotAvailable = "N/A"
	Completed    = "Completed"
	InProgress   = "In progress"
)

// Duration renders the length of a session as "Xh Ym". A session with a time
// out always reads as completed, even when either timestamp is unusable or the
// interval is negative.
func Duration(timeIn, timeOut string, loc *time.Location) string {
	if !parse.Present(timeOut) {
		return InProgress
	}
	start, err := parse.Timestamp(timeIn, loc)
	if err != nil {
		return Completed
	}
	end, err := parse.Timestamp(timeOut, loc)
	if err != nil {
		return Completed
	}
	d := end.Sub(start)
	if d < 0 {
		return Completed
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

// FormatDate renders raw in loc, or "N/A" when it is absent or unparseable.
func FormatDate(raw string, loc *time.Location) string {
	t, err := parse.Timestamp(raw, loc)
	if err != nil {
		return NotAvailable
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DisplayLayout)
}
