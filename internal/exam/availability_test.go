package exam

import (
	"testing"
	"time"

	"github.com/examforge/examforge/internal/model"
)

func TestAvailabilityWindow(t *testing.T) {
	from := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	until := from.Add(2 * time.Hour)
	e := model.Exam{ID: "e1", ValidFrom: &from, ValidUntil: &until}

	tests := []struct {
		name string
		now  time.Time
		want Availability
	}{
		{"before start", from.Add(-time.Minute), Upcoming},
		{"at start", from, Active},
		{"inside window", from.Add(time.Hour), Active},
		{"at end", until, Active},
		{"one second after end", until.Add(time.Second), Expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AvailabilityFor(e, false, tt.now); got != tt.want {
				t.Errorf("AvailabilityFor(%s) = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestAvailabilityUnbounded(t *testing.T) {
	now := time.Now()
	if got := AvailabilityFor(model.Exam{}, false, now); got != Active {
		t.Errorf("no bounds = %q, want active", got)
	}

	from := now.Add(-time.Hour)
	if got := AvailabilityFor(model.Exam{ValidFrom: &from}, false, now); got != Active {
		t.Errorf("open-ended past start = %q, want active", got)
	}

	until := now.Add(-time.Hour)
	if got := AvailabilityFor(model.Exam{ValidUntil: &until}, false, now); got != Expired {
		t.Errorf("past end = %q, want expired", got)
	}
}

// A prior submission wins regardless of the time window.
func TestAvailabilitySubmittedPriority(t *testing.T) {
	now := time.Now()
	from := now.Add(time.Hour)
	until := now.Add(-time.Hour)

	for _, e := range []model.Exam{
		{},
		{ValidFrom: &from},
		{ValidUntil: &until},
	} {
		if got := AvailabilityFor(e, true, now); got != Submitted {
			t.Errorf("AvailabilityFor(hasSubmission=true) = %q, want submitted", got)
		}
	}
}
