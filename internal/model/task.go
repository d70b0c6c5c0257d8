package model

import "time"

// Task is a concrete, assigned task row materialized from a template firing.
// The engine only creates these; completion and editing belong to the ordinary
// task subsystem.
type Task struct {
	ID               int64      `json:"id"`
	UserID           int64      `json:"user_id"`
	GroupID          int64      `json:"group_id"`
	Title            string     `json:"title"`
	Description      string     `json:"description"`
	Reward           *int64     `json:"reward"`
	RequiresApproval bool       `json:"requires_approval"`
	RequiresImage    bool       `json:"requires_image"`
	DueDate          string     `json:"due_date"` // YYYY-MM-DD in the template's timezone
	SourceTemplateID int64      `json:"source_template_id"`
	BatchID          string     `json:"batch_id"`
	AssignedBy       int64      `json:"assigned_by"`
	CompletedAt      *time.Time `json:"completed_at"`
	DeletedAt        *time.Time `json:"deleted_at"`
	CreatedAt        time.Time  `json:"created_at"`
}
