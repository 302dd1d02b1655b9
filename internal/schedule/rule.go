package schedule

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// specParser handles the standard 5-field layout (minute hour dom month dow).
// Descriptors and seconds are intentionally not accepted here: everything the
// translator emits is either a plain 5-field spec or an interval schedule.
var specParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Rule is one concrete recurring trigger derived from a schedule
// specification.
//
// A single expression may expand into several linked rules (e.g. one per
// weekday). The engine owns the linked set as a unit: unregistering the job
// drops all of its rules atomically.
type Rule struct {
	desc  string
	sched cron.Schedule
	next  time.Time
}

// Describe returns the human-readable form used in status output,
// e.g. "daily at 09:00" or "every 6 hours".
func (r Rule) Describe() string { return r.desc }

// NextAfter computes the rule's next fire time strictly after t.
func (r Rule) NextAfter(t time.Time) time.Time { return r.sched.Next(t) }

func newCronRule(desc, spec string) (Rule, error) {
	s, err := specParser.Parse(spec)
	if err != nil {
		return Rule{}, err
	}
	return Rule{desc: desc, sched: s}, nil
}

func newIntervalRule(desc string, every time.Duration) Rule {
	return Rule{desc: desc, sched: cron.Every(every)}
}

// EveryHours builds the single rule used by legacy fixed-hour-interval
// client configs.
func EveryHours(n int) []Rule {
	if n <= 0 {
		n = 24
	}
	desc := fmt.Sprintf("every %d hours", n)
	if n == 1 {
		desc = "every hour"
	}
	return []Rule{newIntervalRule(desc, time.Duration(n)*time.Hour)}
}

// DefaultRules is the policy for clients with no schedule configured at all.
func DefaultRules() []Rule {
	return []Rule{newIntervalRule("every 24 hours (default)", 24*time.Hour)}
}
