package schedule

import (
	"testing"

	"github.com/ferndale/taskmill/internal/model"
)

func TestFromModelValid(t *testing.T) {
	tests := []struct {
		name     string
		in       model.RecurrenceRule
		wantSpec string
	}{
		{
			"daily",
			model.RecurrenceRule{Kind: model.KindDaily, TimeOfDay: "08:00"},
			"0 8 * * *",
		},
		{
			"weekly",
			model.RecurrenceRule{Kind: model.KindWeekly, TimeOfDay: "18:30", Weekdays: []int{5, 1, 3}},
			"30 18 * * 1,3,5",
		},
		{
			"monthly",
			model.RecurrenceRule{Kind: model.KindMonthly, TimeOfDay: "09:15", MonthDays: []int{15, 1}},
			"15 9 1,15 * *",
		},
		{
			"weekly dedupes days",
			model.RecurrenceRule{Kind: model.KindWeekly, TimeOfDay: "07:00", Weekdays: []int{2, 2, 0}},
			"0 7 * * 0,2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := FromModel(tt.in)
			if err != nil {
				t.Fatalf("FromModel: %v", err)
			}
			if got := r.CronSpec(); got != tt.wantSpec {
				t.Errorf("CronSpec = %q, want %q", got, tt.wantSpec)
			}
		})
	}
}

func TestFromModelInvalid(t *testing.T) {
	tests := []struct {
		name string
		in   model.RecurrenceRule
	}{
		{"bad time", model.RecurrenceRule{Kind: model.KindDaily, TimeOfDay: "25:00"}},
		{"empty time", model.RecurrenceRule{Kind: model.KindDaily, TimeOfDay: ""}},
		{"daily with weekdays", model.RecurrenceRule{Kind: model.KindDaily, TimeOfDay: "08:00", Weekdays: []int{1}}},
		{"daily with month days", model.RecurrenceRule{Kind: model.KindDaily, TimeOfDay: "08:00", MonthDays: []int{1}}},
		{"weekly without weekdays", model.RecurrenceRule{Kind: model.KindWeekly, TimeOfDay: "08:00"}},
		{"weekly with month days", model.RecurrenceRule{Kind: model.KindWeekly, TimeOfDay: "08:00", Weekdays: []int{1}, MonthDays: []int{1}}},
		{"weekly out of range", model.RecurrenceRule{Kind: model.KindWeekly, TimeOfDay: "08:00", Weekdays: []int{7}}},
		{"monthly without days", model.RecurrenceRule{Kind: model.KindMonthly, TimeOfDay: "08:00"}},
		{"monthly day zero", model.RecurrenceRule{Kind: model.KindMonthly, TimeOfDay: "08:00", MonthDays: []int{0}}},
		{"monthly day 32", model.RecurrenceRule{Kind: model.KindMonthly, TimeOfDay: "08:00", MonthDays: []int{32}}},
		{"unknown kind", model.RecurrenceRule{Kind: "hourly", TimeOfDay: "08:00"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromModel(tt.in); err == nil {
				t.Error("FromModel should reject the rule")
			}
		})
	}
}

func TestDescribe(t *testing.T) {
	daily, _ := FromModel(model.RecurrenceRule{Kind: model.KindDaily, TimeOfDay: "08:00"})
	if got := daily.Describe(); got != "Daily at 08:00" {
		t.Errorf("Describe = %q", got)
	}

	weekly, _ := FromModel(model.RecurrenceRule{Kind: model.KindWeekly, TimeOfDay: "18:30", Weekdays: []int{1, 5}})
	if got := weekly.Describe(); got != "Weekly on Mon, Fri at 18:30" {
		t.Errorf("Describe = %q", got)
	}

	monthly, _ := FromModel(model.RecurrenceRule{Kind: model.KindMonthly, TimeOfDay: "09:00", MonthDays: []int{1, 15}})
	if got := monthly.Describe(); got != "Monthly on day 1,15 at 09:00" {
		t.Errorf("Describe = %q", got)
	}
}

func TestParseFormatDays(t *testing.T) {
	days, err := ParseDays("1,3,5")
	if err != nil {
		t.Fatal(err)
	}
	if len(days) != 3 || days[0] != 1 || days[2] != 5 {
		t.Errorf("ParseDays = %v", days)
	}

	empty, err := ParseDays("")
	if err != nil || empty != nil {
		t.Errorf("ParseDays(\"\") = %v, %v", empty, err)
	}

	if _, err := ParseDays("1,x"); err == nil {
		t.Error("ParseDays should reject non-numeric input")
	}

	if got := FormatDays([]int{5, 1, 3, 1}); got != "1,3,5" {
		t.Errorf("FormatDays = %q", got)
	}
	if got := FormatDays(nil); got != "" {
		t.Errorf("FormatDays(nil) = %q", got)
	}
}
