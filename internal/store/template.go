package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ferndale/taskmill/internal/model"
	"github.com/ferndale/taskmill/internal/schedule"
)

type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

const templateCols = `id, group_id, created_by, title, description, reward,
	requires_approval, requires_image, auto_assign, assigned_user_id, timezone,
	status, delete_incomplete_previous, start_date, end_date, created_at, updated_at`

func scanTemplate(scanner interface{ Scan(...any) error }) (*model.TaskTemplate, error) {
	var t model.TaskTemplate
	var reward, assignedUserID sql.NullInt64
	var startDate, endDate sql.NullTime

	err := scanner.Scan(
		&t.ID, &t.GroupID, &t.CreatedBy, &t.Title, &t.Description, &reward,
		&t.RequiresApproval, &t.RequiresImage, &t.AutoAssign, &assignedUserID,
		&t.Timezone, &t.Status, &t.DeleteIncompletePrevious, &startDate, &endDate,
		&t.CreatedAt, &t.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reward.Valid {
		t.Reward = &reward.Int64
	}
	if assignedUserID.Valid {
		t.AssignedUserID = &assignedUserID.Int64
	}
	if startDate.Valid {
		t.StartDate = &startDate.Time
	}
	if endDate.Valid {
		t.EndDate = &endDate.Time
	}
	return &t, nil
}

// Create inserts a template together with its rules and tags. The template
// must carry at least one rule; this is the invariant the engine relies on.
func (s *TemplateStore) Create(ctx context.Context, t *model.TaskTemplate) (*model.TaskTemplate, error) {
	if len(t.Rules) == 0 {
		return nil, fmt.Errorf("template requires at least one recurrence rule")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	status := t.Status
	if status == "" {
		status = model.StatusActive
	}

	result, err := tx.ExecContext(ctx,
		`INSERT INTO task_templates (group_id, created_by, title, description, reward,
			requires_approval, requires_image, auto_assign, assigned_user_id, timezone,
			status, delete_incomplete_previous, start_date, end_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.GroupID, t.CreatedBy, t.Title, t.Description, nullInt(t.Reward),
		t.RequiresApproval, t.RequiresImage, t.AutoAssign, nullInt(t.AssignedUserID),
		t.Timezone, status, t.DeleteIncompletePrevious, nullTime(t.StartDate), nullTime(t.EndDate),
	)
	if err != nil {
		return nil, fmt.Errorf("insert template: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if err := insertRules(ctx, tx, id, t.Rules); err != nil {
		return nil, err
	}
	if err := insertTags(ctx, tx, id, t.Tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, id)
}

func (s *TemplateStore) GetByID(ctx context.Context, id int64) (*model.TaskTemplate, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateCols+` FROM task_templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	if err := s.attachChildren(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateStore) ListByGroup(ctx context.Context, groupID int64) ([]model.TaskTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateCols+` FROM task_templates WHERE group_id = ? ORDER BY created_at DESC, id DESC`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	return s.collect(ctx, rows)
}

// ListActive returns active templates whose start/end window contains now,
// with rules and tags attached. Paused templates are excluded here so their
// rules are never evaluated at all.
func (s *TemplateStore) ListActive(ctx context.Context, now time.Time) ([]model.TaskTemplate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+templateCols+` FROM task_templates
		 WHERE status = ?
		   AND (start_date IS NULL OR start_date <= ?)
		   AND (end_date IS NULL OR end_date >= ?)
		 ORDER BY id`,
		model.StatusActive, now.UTC(), now.UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("list active templates: %w", err)
	}
	return s.collect(ctx, rows)
}

// Update replaces the template's content, rules, and tags. Existing firing
// claims are untouched; edits take effect from the next due instant.
func (s *TemplateStore) Update(ctx context.Context, t *model.TaskTemplate) (*model.TaskTemplate, error) {
	if len(t.Rules) == 0 {
		return nil, fmt.Errorf("template requires at least one recurrence rule")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`UPDATE task_templates SET title = ?, description = ?, reward = ?,
			requires_approval = ?, requires_image = ?, auto_assign = ?, assigned_user_id = ?,
			timezone = ?, delete_incomplete_previous = ?, start_date = ?, end_date = ?,
			updated_at = CURRENT_TIMESTAMP
		 WHERE id = ?`,
		t.Title, t.Description, nullInt(t.Reward),
		t.RequiresApproval, t.RequiresImage, t.AutoAssign, nullInt(t.AssignedUserID),
		t.Timezone, t.DeleteIncompletePrevious, nullTime(t.StartDate), nullTime(t.EndDate),
		t.ID,
	)
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM recurrence_rules WHERE template_id = ?`, t.ID); err != nil {
		return nil, fmt.Errorf("clear rules: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM template_tags WHERE template_id = ?`, t.ID); err != nil {
		return nil, fmt.Errorf("clear tags: %w", err)
	}
	if err := insertRules(ctx, tx, t.ID, t.Rules); err != nil {
		return nil, err
	}
	if err := insertTags(ctx, tx, t.ID, t.Tags); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetByID(ctx, t.ID)
}

// Delete hard-removes the template and, via cascade, its rules and tags.
// Claims and executions have no foreign keys and remain for audit.
func (s *TemplateStore) Delete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM task_templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	return nil
}

// SetStatus transitions the lifecycle state. Setting the current state again
// is a no-op, which makes pause and resume idempotent.
func (s *TemplateStore) SetStatus(ctx context.Context, id int64, status model.TemplateStatus) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE task_templates SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND status != ?`,
		status, id, status,
	)
	if err != nil {
		return fmt.Errorf("set template status: %w", err)
	}
	return nil
}

func (s *TemplateStore) collect(ctx context.Context, rows *sql.Rows) ([]model.TaskTemplate, error) {
	defer rows.Close()

	var templates []model.TaskTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		templates = append(templates, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range templates {
		if err := s.attachChildren(ctx, &templates[i]); err != nil {
			return nil, err
		}
	}
	return templates, nil
}

func (s *TemplateStore) attachChildren(ctx context.Context, t *model.TaskTemplate) error {
	rules, err := s.rulesFor(ctx, t.ID)
	if err != nil {
		return err
	}
	t.Rules = rules

	tags, err := s.tagsFor(ctx, t.ID)
	if err != nil {
		return err
	}
	t.Tags = tags
	return nil
}

func (s *TemplateStore) rulesFor(ctx context.Context, templateID int64) ([]model.RecurrenceRule, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, template_id, kind, time_of_day, weekdays, month_days, created_at
		 FROM recurrence_rules WHERE template_id = ? ORDER BY id`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []model.RecurrenceRule
	for rows.Next() {
		var r model.RecurrenceRule
		var weekdays, monthDays string
		if err := rows.Scan(&r.ID, &r.TemplateID, &r.Kind, &r.TimeOfDay, &weekdays, &monthDays, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		if r.Weekdays, err = schedule.ParseDays(weekdays); err != nil {
			return nil, fmt.Errorf("rule %d: %w", r.ID, err)
		}
		if r.MonthDays, err = schedule.ParseDays(monthDays); err != nil {
			return nil, fmt.Errorf("rule %d: %w", r.ID, err)
		}
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

func (s *TemplateStore) tagsFor(ctx context.Context, templateID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT tag_name FROM template_tags WHERE template_id = ? ORDER BY position, tag_name`,
		templateID,
	)
	if err != nil {
		return nil, fmt.Errorf("list template tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

func insertRules(ctx context.Context, tx *sql.Tx, templateID int64, rules []model.RecurrenceRule) error {
	for _, r := range rules {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recurrence_rules (template_id, kind, time_of_day, weekdays, month_days)
			 VALUES (?, ?, ?, ?, ?)`,
			templateID, r.Kind, r.TimeOfDay,
			schedule.FormatDays(r.Weekdays), schedule.FormatDays(r.MonthDays),
		); err != nil {
			return fmt.Errorf("insert rule: %w", err)
		}
	}
	return nil
}

func insertTags(ctx context.Context, tx *sql.Tx, templateID int64, tags []string) error {
	for i, name := range tags {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO template_tags (template_id, tag_name, position) VALUES (?, ?, ?)`,
			templateID, name, i,
		); err != nil {
			return fmt.Errorf("insert template tag: %w", err)
		}
	}
	return nil
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}
}
