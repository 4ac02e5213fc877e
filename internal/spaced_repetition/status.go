package spaced_repetition

import "fmt"

// Status is the display state of a record's review schedule
type Status int

const (
	StatusScheduled Status = iota // next review is in the future
	StatusOverdue                 // next review date has passed
	StatusComplete                // all reviews done
)

var statusNames = [...]string{
	StatusScheduled: "scheduled",
	StatusOverdue:   "overdue",
	StatusComplete:  "complete",
}

// String returns "scheduled", "overdue" or "complete".
func (s Status) String() string {
	if s >= StatusScheduled && s <= StatusComplete {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", int(s))
}
