package transcript

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// BoundaryRule selects which calendar date a scheduled reflection run targets.
type BoundaryRule string

const (
	// BoundaryRuleSameDay processes the date the run starts on. Suited to
	// end-of-day schedules.
	BoundaryRuleSameDay BoundaryRule = "same-day"
	// BoundaryRulePreviousDay processes the date before the run starts.
	// Suited to early-morning schedules that close out yesterday.
	BoundaryRulePreviousDay BoundaryRule = "previous-day"
)

const dateLayout = "2006-01-02"

var (
	// ErrInvalidBoundaryRule indicates an unrecognized day-boundary rule value.
	ErrInvalidBoundaryRule = errors.New("transcript: invalid day boundary rule")
	// ErrInvalidDate indicates a date string that is not YYYY-MM-DD.
	ErrInvalidDate = errors.New("transcript: invalid date")
)

// ParseBoundaryRule validates raw configuration input.
func ParseBoundaryRule(rawInput string) (BoundaryRule, error) {
	switch strings.ToLower(strings.TrimSpace(rawInput)) {
	case string(BoundaryRuleSameDay), "":
		return BoundaryRuleSameDay, nil
	case string(BoundaryRulePreviousDay):
		return BoundaryRulePreviousDay, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidBoundaryRule, rawInput)
	}
}

// Date is a validated calendar date rendered as YYYY-MM-DD.
type Date string

// NewDate validates raw input and returns a Date.
func NewDate(rawInput string) (Date, error) {
	trimmed := strings.TrimSpace(rawInput)
	if _, err := time.Parse(dateLayout, trimmed); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, trimmed)
	}
	return Date(trimmed), nil
}

// DateOf renders the calendar date of the given instant in the given location.
func DateOf(instant time.Time, location *time.Location) Date {
	if location == nil {
		location = time.UTC
	}
	return Date(instant.In(location).Format(dateLayout))
}

// String returns the YYYY-MM-DD form.
func (d Date) String() string {
	return string(d)
}

// DayKey is the deterministic aggregate key "{uid}_{YYYY-MM-DD}". Both the
// raw journal document and the reflection result are stored under it.
func DayKey(userID UserID, date Date) string {
	return userID.String() + "_" + date.String()
}

// Bucketer resolves fragments and scheduled runs onto calendar dates. The
// location governs only where the day boundary falls; stored timestamps stay
// UTC.
type Bucketer struct {
	location *time.Location
	rule     BoundaryRule
	clock    func() time.Time
}

// NewBucketer constructs a Bucketer. A nil location means UTC and a nil clock
// means time.Now.
func NewBucketer(location *time.Location, rule BoundaryRule, clock func() time.Time) (Bucketer, error) {
	if rule != BoundaryRuleSameDay && rule != BoundaryRulePreviousDay {
		return Bucketer{}, fmt.Errorf("%w: %q", ErrInvalidBoundaryRule, rule)
	}
	if location == nil {
		location = time.UTC
	}
	if clock == nil {
		clock = time.Now
	}
	return Bucketer{location: location, rule: rule, clock: clock}, nil
}

// FragmentDate returns the date a fragment belongs to: its event time when
// present, otherwise the moment of receipt.
func (b Bucketer) FragmentDate(fragment Fragment) Date {
	eventTime := fragment.EventTime()
	if eventTime == nil {
		now := b.clock().UTC()
		eventTime = &now
	}
	return DateOf(*eventTime, b.location)
}

// ScheduledDate returns the date a scheduled reflection run should process,
// applying the configured boundary rule.
func (b Bucketer) ScheduledDate() Date {
	instant := b.clock().In(b.location)
	if b.rule == BoundaryRulePreviousDay {
		instant = instant.AddDate(0, 0, -1)
	}
	return Date(instant.Format(dateLayout))
}
