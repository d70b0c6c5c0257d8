package model

import "time"

type TemplateStatus string

const (
	StatusActive TemplateStatus = "active"
	StatusPaused TemplateStatus = "paused"
)

type RuleKind string

const (
	KindDaily   RuleKind = "daily"
	KindWeekly  RuleKind = "weekly"
	KindMonthly RuleKind = "monthly"
)

// TaskTemplate is a recurring task definition owned by a group. It is not
// itself a task; the engine materializes concrete tasks from it.
type TaskTemplate struct {
	ID                       int64            `json:"id"`
	GroupID                  int64            `json:"group_id"`
	CreatedBy                int64            `json:"created_by"`
	Title                    string           `json:"title"`
	Description              string           `json:"description"`
	Reward                   *int64           `json:"reward"`
	RequiresApproval         bool             `json:"requires_approval"`
	RequiresImage            bool             `json:"requires_image"`
	AutoAssign               bool             `json:"auto_assign"`
	AssignedUserID           *int64           `json:"assigned_user_id"`
	Timezone                 string           `json:"timezone"`
	Status                   TemplateStatus   `json:"status"`
	DeleteIncompletePrevious bool             `json:"delete_incomplete_previous"`
	StartDate                *time.Time       `json:"start_date"`
	EndDate                  *time.Time       `json:"end_date"`
	Tags                     []string         `json:"tags"`
	Rules                    []RecurrenceRule `json:"rules"`
	CreatedAt                time.Time        `json:"created_at"`
	UpdatedAt                time.Time        `json:"updated_at"`
}

// RecurrenceRule is one cadence attached to a template. Weekdays is only
// meaningful for weekly rules, MonthDays for monthly rules.
type RecurrenceRule struct {
	ID         int64     `json:"id"`
	TemplateID int64     `json:"template_id"`
	Kind       RuleKind  `json:"kind"`
	TimeOfDay  string    `json:"time_of_day"`
	Weekdays   []int     `json:"weekdays,omitempty"`
	MonthDays  []int     `json:"month_days,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}
