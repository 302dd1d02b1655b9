package schedule

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSchedule marks a cron-like expression that could not be parsed
// at all: wrong field count, or a field that is not a number, "*", "*/N", or
// a range. Callers are expected to fall back to default scheduling rather
// than fail the client.
var ErrInvalidSchedule = errors.New("invalid schedule expression")

// Weekday names indexed by this system's day-of-week convention: 0 = Monday.
//
// This deviates from standard cron (0 = Sunday) but matches the deployed
// client configs, so it is preserved on purpose. See DESIGN.md.
var weekdayNames = [7]string{
	"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday",
}

type tokenKind int

const (
	tokNum tokenKind = iota
	tokStar
	tokStep  // */N
	tokRange // A-B
)

type token struct {
	kind tokenKind
	num  int // tokNum value or tokStep interval
	lo   int // tokRange bounds
	hi   int
	raw  string
}

type exprFields struct {
	minute, hour, dom, month, dow token
}

// matcher inspects the parsed fields and either claims the expression,
// returning its rules, or passes. Matchers are evaluated in priority order;
// the first claim wins.
type matcher func(f exprFields) ([]Rule, bool)

var matchers = []matcher{
	matchDaily,
	matchWeekdays,
	matchSingleWeekday,
	matchHourly,
	matchEveryNHours,
	matchEveryNMinutes,
}

// Translate converts a 5-field cron-like expression
// (minute hour day-of-month month day-of-week) into one or more rules.
//
// Only the common patterns the deployed configs actually use are recognized;
// anything else degrades to an approximate daily schedule. degraded reports
// that fallback so the caller can log it at warning level instead of
// treating the match as exact.
func Translate(expr string) (rules []Rule, degraded bool, err error) {
	parts := strings.Fields(strings.TrimSpace(expr))
	if len(parts) != 5 {
		return nil, false, fmt.Errorf("%w: expected 5 fields, got %d", ErrInvalidSchedule, len(parts))
	}

	var f exprFields
	for i, dst := range []*token{&f.minute, &f.hour, &f.dom, &f.month, &f.dow} {
		t, perr := classify(parts[i])
		if perr != nil {
			return nil, false, fmt.Errorf("%w: field %q", ErrInvalidSchedule, parts[i])
		}
		*dst = t
	}

	for _, m := range matchers {
		if rs, ok := m(f); ok {
			return rs, false, nil
		}
	}
	return fallbackRules(f), true, nil
}

func classify(s string) (token, error) {
	switch {
	case s == "*":
		return token{kind: tokStar, raw: s}, nil
	case strings.HasPrefix(s, "*/"):
		n, err := strconv.Atoi(s[2:])
		if err != nil || n <= 0 {
			return token{}, fmt.Errorf("bad step %q", s)
		}
		return token{kind: tokStep, num: n, raw: s}, nil
	case strings.Contains(s, "-"):
		lohi := strings.SplitN(s, "-", 2)
		lo, err1 := strconv.Atoi(lohi[0])
		hi, err2 := strconv.Atoi(lohi[1])
		if err1 != nil || err2 != nil || lo > hi {
			return token{}, fmt.Errorf("bad range %q", s)
		}
		return token{kind: tokRange, lo: lo, hi: hi, raw: s}, nil
	default:
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return token{}, fmt.Errorf("bad field %q", s)
		}
		return token{kind: tokNum, num: n, raw: s}, nil
	}
}

func (t token) isStar() bool     { return t.kind == tokStar }
func (t token) isNum(n int) bool { return t.kind == tokNum && t.num == n }
func (t token) isAnyNum() bool   { return t.kind == tokNum }
func (t token) isStep() bool     { return t.kind == tokStep }
func (t token) isRange(lo, hi int) bool {
	return t.kind == tokRange && t.lo == lo && t.hi == hi
}

// "M H * * *" -> daily at HH:MM.
func matchDaily(f exprFields) ([]Rule, bool) {
	if !f.dom.isStar() || !f.month.isStar() || !f.dow.isStar() {
		return nil, false
	}
	if !f.minute.isAnyNum() || !f.hour.isAnyNum() {
		return nil, false
	}
	r, err := newCronRule(
		fmt.Sprintf("daily at %02d:%02d", f.hour.num, f.minute.num),
		fmt.Sprintf("%d %d * * *", f.minute.num, f.hour.num),
	)
	if err != nil {
		return nil, false
	}
	return []Rule{r}, true
}

// "0 H * * 1-5" -> five linked rules, Monday through Friday at HH:00.
func matchWeekdays(f exprFields) ([]Rule, bool) {
	if !f.dow.isRange(1, 5) || !f.dom.isStar() || !f.month.isStar() {
		return nil, false
	}
	if !f.minute.isNum(0) || !f.hour.isAnyNum() {
		return nil, false
	}
	rules := make([]Rule, 0, 5)
	// robfig's day-of-week numbering has Monday=1..Friday=5, so the range
	// maps through directly here.
	for dow := 1; dow <= 5; dow++ {
		r, err := newCronRule(
			fmt.Sprintf("weekly on %s at %02d:00", weekdayNames[dow-1], f.hour.num),
			fmt.Sprintf("0 %d * * %d", f.hour.num, dow),
		)
		if err != nil {
			return nil, false
		}
		rules = append(rules, r)
	}
	return rules, true
}

// "0 H * * D" with D in 0..6 -> weekly on that day at HH:00.
// D follows this system's convention (0=Monday), not standard cron.
func matchSingleWeekday(f exprFields) ([]Rule, bool) {
	if !f.dow.isAnyNum() || f.dow.num < 0 || f.dow.num > 6 {
		return nil, false
	}
	if !f.dom.isStar() || !f.month.isStar() {
		return nil, false
	}
	if !f.minute.isNum(0) || !f.hour.isAnyNum() {
		return nil, false
	}
	// Shift from 0=Monday to cron's 0=Sunday.
	cronDow := (f.dow.num + 1) % 7
	r, err := newCronRule(
		fmt.Sprintf("weekly on %s at %02d:00", weekdayNames[f.dow.num], f.hour.num),
		fmt.Sprintf("0 %d * * %d", f.hour.num, cronDow),
	)
	if err != nil {
		return nil, false
	}
	return []Rule{r}, true
}

// "0 * * * *" -> hourly on the hour.
func matchHourly(f exprFields) ([]Rule, bool) {
	if !f.minute.isNum(0) || !f.hour.isStar() || !f.dom.isStar() || !f.month.isStar() || !f.dow.isStar() {
		return nil, false
	}
	r, err := newCronRule("hourly on the hour", "0 * * * *")
	if err != nil {
		return nil, false
	}
	return []Rule{r}, true
}

// "0 */N * * *" -> every N hours.
func matchEveryNHours(f exprFields) ([]Rule, bool) {
	if !f.minute.isNum(0) || !f.hour.isStep() || !f.dom.isStar() || !f.month.isStar() || !f.dow.isStar() {
		return nil, false
	}
	n := f.hour.num
	return []Rule{newIntervalRule(
		fmt.Sprintf("every %d hours", n),
		time.Duration(n)*time.Hour,
	)}, true
}

// "*/N * * * *" -> every N minutes.
func matchEveryNMinutes(f exprFields) ([]Rule, bool) {
	if !f.minute.isStep() || !f.hour.isStar() || !f.dom.isStar() || !f.month.isStar() || !f.dow.isStar() {
		return nil, false
	}
	n := f.minute.num
	return []Rule{newIntervalRule(
		fmt.Sprintf("every %d minutes", n),
		time.Duration(n)*time.Minute,
	)}, true
}

// fallbackRules is the guaranteed-matching terminal case: an unrecognized but
// well-formed expression degrades to an approximate daily schedule.
func fallbackRules(f exprFields) []Rule {
	if f.hour.isAnyNum() {
		r, err := newCronRule(
			fmt.Sprintf("daily at %02d:00 (degraded)", f.hour.num),
			fmt.Sprintf("0 %d * * *", f.hour.num),
		)
		if err == nil {
			return []Rule{r}
		}
	}
	return []Rule{newIntervalRule("daily (degraded)", 24*time.Hour)}
}
