// Package calendar classifies dates against the fixed trial timeline and
// against multi-day treatment courses.
package calendar

import (
	"errors"
	"fmt"

	"github.com/mamadbah2/lambtrial/internal/domain/models"
)

const daysPerWeek = 7

// Boundaries are the fixed reference dates of the trial.
type Boundaries struct {
	// Arrival is the day the animals were received and first weighed.
	Arrival models.CivilDate
	// TrialStart opens the baseline week (week 0).
	TrialStart models.CivilDate
	// WeekOne opens week 1; later weeks follow every seven days.
	WeekOne models.CivilDate
	// StudyStart and StudyEnd bound the dates offered for data entry.
	StudyStart models.CivilDate
	StudyEnd   models.CivilDate
}

// Validate checks the ordering of the boundaries.
func (b Boundaries) Validate() error {
	switch {
	case b.TrialStart.IsZero() || b.WeekOne.IsZero():
		return errors.New("trial start and week one dates are required")
	case !b.Arrival.IsZero() && b.TrialStart.Before(b.Arrival):
		return fmt.Errorf("trial start %s precedes arrival %s", b.TrialStart, b.Arrival)
	case !b.WeekOne.After(b.TrialStart):
		return fmt.Errorf("week one %s must follow trial start %s", b.WeekOne, b.TrialStart)
	case !b.StudyStart.IsZero() && !b.StudyEnd.IsZero() && b.StudyEnd.Before(b.StudyStart):
		return fmt.Errorf("study end %s precedes study start %s", b.StudyEnd, b.StudyStart)
	}
	return nil
}

// Calendar maps dates to trial weeks. The zero value is not usable; build one
// with New.
type Calendar struct {
	b Boundaries
}

// New validates the boundaries and returns an immutable Calendar.
func New(b Boundaries) (*Calendar, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trial boundaries: %w", err)
	}
	return &Calendar{b: b}, nil
}

// Boundaries returns a copy of the reference dates.
func (c *Calendar) Boundaries() Boundaries {
	return c.b
}

// WeekNumber returns the trial week containing d. ok is false during the
// arrival period before the trial start; the baseline week is 0.
func (c *Calendar) WeekNumber(d models.CivilDate) (week int, ok bool) {
	if d.Before(c.b.TrialStart) {
		return 0, false
	}
	if d.Before(c.b.WeekOne) {
		return 0, true
	}
	return d.DaysSince(c.b.WeekOne)/daysPerWeek + 1, true
}

// WeekPtr is WeekNumber shaped for JSON payloads.
func (c *Calendar) WeekPtr(d models.CivilDate) *int {
	week, ok := c.WeekNumber(d)
	if !ok {
		return nil
	}
	return &week
}

// InStudy reports whether d lies within the study range (inclusive). Open
// ends are unbounded.
func (c *Calendar) InStudy(d models.CivilDate) bool {
	if !c.b.StudyStart.IsZero() && d.Before(c.b.StudyStart) {
		return false
	}
	if !c.b.StudyEnd.IsZero() && d.After(c.b.StudyEnd) {
		return false
	}
	return true
}

// IsWithinTreatmentInterval reports whether query falls strictly after the
// start of a course and its inclusive day count (start day = 1) stays below
// durationDays. For a 5-day course that covers start+1 to start+3. The start
// day itself is not covered; callers match it by equality.
func IsWithinTreatmentInterval(start models.CivilDate, durationDays int, query models.CivilDate) bool {
	if durationDays <= 1 || !query.After(start) {
		return false
	}
	return query.DaysSince(start)+1 < durationDays
}

// TreatmentActiveOn reports whether a treatment incident is running on d,
// counting its start day.
func TreatmentActiveOn(inc models.Incident, d models.CivilDate) bool {
	if inc.Kind != models.IncidentTreatment {
		return false
	}
	if inc.Date.Equal(d) {
		return true
	}
	if inc.Medication == nil {
		return false
	}
	return IsWithinTreatmentInterval(inc.Date, inc.Medication.DurationDays, d)
}

// TreatmentDay returns the 1-based day of the course on d and the course
// length (1 when no medication detail is recorded).
func TreatmentDay(inc models.Incident, d models.CivilDate) (dayOfCourse, total int) {
	total = 1
	if inc.Medication != nil && inc.Medication.DurationDays > 0 {
		total = inc.Medication.DurationDays
	}
	return d.DaysSince(inc.Date) + 1, total
}
