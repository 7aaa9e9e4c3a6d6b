package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/teambition/rrule-go"
)

// Schedule is a union of RRULE recurrences evaluated in one timezone.
type Schedule struct {
	texts []string
	rules []*rrule.RRule
}

// ParseSchedule parses rules with DTSTART at anchor. BYHOUR, BYMINUTE and
// BYSECOND are read in anchor's location; missing ones default to anchor's fields.
func ParseSchedule(anchor time.Time, rules ...string) (*Schedule, error) {
	if len(rules) == 0 {
		return nil, fmt.Errorf("schedule: no rules")
	}
	s := &Schedule{}
	for _, text := range rules {
		text = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "RRULE:"))
		opts, err := rrule.StrToROption(text)
		if err != nil {
			return nil, fmt.Errorf("schedule: parse %q: %w", text, err)
		}
		opts.Dtstart = anchor
		r, err := rrule.NewRRule(*opts)
		if err != nil {
			return nil, fmt.Errorf("schedule: build %q: %w", text, err)
		}
		s.texts = append(s.texts, text)
		s.rules = append(s.rules, r)
	}
	return s, nil
}

// Next returns the earliest occurrence strictly after t, or the zero time when none remain.
func (s *Schedule) Next(t time.Time) time.Time {
	var next time.Time
	for _, r := range s.rules {
		n := r.After(t, false)
		if n.IsZero() {
			continue
		}
		if next.IsZero() || n.Before(next) {
			next = n
		}
	}
	return next
}

func (s *Schedule) String() string { return strings.Join(s.texts, " | ") }

// Weekly builds an RRULE firing on days at the given wall-clock time.
func Weekly(days string, hour, minute, second int) string {
	return fmt.Sprintf("FREQ=WEEKLY;BYDAY=%s;BYHOUR=%d;BYMINUTE=%d;BYSECOND=%d",
		strings.ToUpper(strings.ReplaceAll(days, " ", "")), hour, minute, second)
}
