package exam

import (
	"time"

	"github.com/examforge/examforge/internal/model"
)

// Availability is what a student may do with an exam right now.
type Availability string

const (
	// Submitted means a prior submission exists; it wins over any time
	// window.
	Submitted Availability = "submitted"
	// Upcoming means the exam window has not opened yet.
	Upcoming Availability = "upcoming"
	// Expired means the exam window has closed.
	Expired Availability = "expired"
	// Active means the exam can be entered.
	Active Availability = "active"
)

// AvailabilityFor evaluates the gate for one exam and one student at the
// given instant. Pure; callers re-evaluate it against a live clock, and
// entry points evaluate it again at the moment of entry.
func AvailabilityFor(e model.Exam, hasSubmission bool, now time.Time) Availability {
	switch {
	case hasSubmission:
		return Submitted
	case e.ValidFrom != nil && now.Before(*e.ValidFrom):
		return Upcoming
	case e.ValidUntil != nil && now.After(*e.ValidUntil):
		return Expired
	default:
		return Active
	}
}
