package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ferndale/taskmill/internal/model"
)

var weekdayAbbrev = [...]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Rule is the validated, evaluatable form of a recurrence rule. Weekdays uses
// 0=Sunday..6=Saturday; MonthDays uses calendar days 1..31.
type Rule struct {
	Kind      model.RuleKind
	Hour      int
	Minute    int
	Weekdays  []int
	MonthDays []int
}

// FromModel validates a stored rule and converts it for evaluation.
func FromModel(r model.RecurrenceRule) (Rule, error) {
	hour, minute, err := parseTimeOfDay(r.TimeOfDay)
	if err != nil {
		return Rule{}, err
	}

	rule := Rule{
		Kind:      r.Kind,
		Hour:      hour,
		Minute:    minute,
		Weekdays:  normalize(r.Weekdays),
		MonthDays: normalize(r.MonthDays),
	}
	if err := rule.Validate(); err != nil {
		return Rule{}, err
	}
	return rule, nil
}

// Validate checks kind-specific field requirements. Fields irrelevant to the
// kind must be empty.
func (r Rule) Validate() error {
	if r.Hour < 0 || r.Hour > 23 || r.Minute < 0 || r.Minute > 59 {
		return fmt.Errorf("invalid time of day %02d:%02d", r.Hour, r.Minute)
	}

	switch r.Kind {
	case model.KindDaily:
		if len(r.Weekdays) > 0 || len(r.MonthDays) > 0 {
			return fmt.Errorf("daily rule must not set weekdays or month days")
		}
	case model.KindWeekly:
		if len(r.Weekdays) == 0 {
			return fmt.Errorf("weekly rule requires at least one weekday")
		}
		if len(r.MonthDays) > 0 {
			return fmt.Errorf("weekly rule must not set month days")
		}
		for _, d := range r.Weekdays {
			if d < 0 || d > 6 {
				return fmt.Errorf("invalid weekday %d", d)
			}
		}
	case model.KindMonthly:
		if len(r.MonthDays) == 0 {
			return fmt.Errorf("monthly rule requires at least one month day")
		}
		if len(r.Weekdays) > 0 {
			return fmt.Errorf("monthly rule must not set weekdays")
		}
		for _, d := range r.MonthDays {
			if d < 1 || d > 31 {
				return fmt.Errorf("invalid month day %d", d)
			}
		}
	default:
		return fmt.Errorf("unknown rule kind %q", r.Kind)
	}
	return nil
}

// CronSpec renders the rule as a standard five-field cron expression. Day-of-
// month and day-of-week are never both restricted, so robfig/cron's OR
// semantics for the two fields never apply.
func (r Rule) CronSpec() string {
	switch r.Kind {
	case model.KindWeekly:
		return fmt.Sprintf("%d %d * * %s", r.Minute, r.Hour, joinInts(r.Weekdays))
	case model.KindMonthly:
		return fmt.Sprintf("%d %d %s * *", r.Minute, r.Hour, joinInts(r.MonthDays))
	default:
		return fmt.Sprintf("%d %d * * *", r.Minute, r.Hour)
	}
}

// Describe returns a human-readable description of the rule.
func (r Rule) Describe() string {
	at := fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
	switch r.Kind {
	case model.KindWeekly:
		var names []string
		for _, d := range r.Weekdays {
			names = append(names, weekdayAbbrev[d])
		}
		return fmt.Sprintf("Weekly on %s at %s", strings.Join(names, ", "), at)
	case model.KindMonthly:
		return fmt.Sprintf("Monthly on day %s at %s", joinInts(r.MonthDays), at)
	default:
		return "Daily at " + at
	}
}

// TimeOfDay formats the rule's local time as HH:MM.
func (r Rule) TimeOfDay() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

func parseTimeOfDay(s string) (hour, minute int, err error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid time of day %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

func normalize(days []int) []int {
	if len(days) == 0 {
		return nil
	}
	seen := make(map[int]struct{}, len(days))
	var out []int
	for _, d := range days {
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}

func joinInts(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// ParseDays parses a comma-separated day list as stored in sqlite.
func ParseDays(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid day list %q", s)
		}
		out = append(out, n)
	}
	return out, nil
}

// FormatDays renders a day list for storage. Empty lists store as "".
func FormatDays(days []int) string {
	return joinInts(normalize(days))
}
