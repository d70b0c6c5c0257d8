package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ferndale/taskmill/internal/model"
)

// TaskStore creates materialized task rows. The engine only ever inserts and
// soft-deletes here; everything else belongs to the ordinary task subsystem.
type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create inserts one task for one recipient and copies the template's tag
// names into the recipient's own tag namespace, creating tags that don't
// exist there yet. The whole operation is a single transaction so a tag
// failure never leaves a half-tagged task behind.
func (s *TaskStore) Create(ctx context.Context, t *model.Task, tagNames []string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO tasks (user_id, group_id, title, description, reward,
			requires_approval, requires_image, due_date, source_template_id, batch_id, assigned_by)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, t.GroupID, t.Title, t.Description, nullInt(t.Reward),
		t.RequiresApproval, t.RequiresImage, t.DueDate, t.SourceTemplateID, t.BatchID, t.AssignedBy,
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("task insert id: %w", err)
	}

	for _, name := range tagNames {
		tagID, err := ensureUserTag(ctx, tx, t.UserID, name)
		if err != nil {
			return 0, err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO task_tags (task_id, tag_id) VALUES (?, ?)`,
			id, tagID,
		); err != nil {
			return 0, fmt.Errorf("attach tag %q: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return id, nil
}

func (s *TaskStore) GetByID(ctx context.Context, id int64) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// ListByBatch returns the tasks created by one firing.
func (s *TaskStore) ListByBatch(ctx context.Context, batchID string) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskCols+` FROM tasks WHERE batch_id = ? ORDER BY id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by batch: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// SoftDeleteIncomplete marks the given tasks deleted if they are still open.
// Completed or already-deleted tasks are left alone. Returns the ids that
// were actually deleted.
func (s *TaskStore) SoftDeleteIncomplete(ctx context.Context, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now().UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.db.QueryContext(ctx,
		`UPDATE tasks SET deleted_at = ?
		 WHERE id IN (`+placeholders+`) AND completed_at IS NULL AND deleted_at IS NULL
		 RETURNING id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("soft delete tasks: %w", err)
	}
	defer rows.Close()

	var deleted []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan deleted id: %w", err)
		}
		deleted = append(deleted, id)
	}
	return deleted, rows.Err()
}

// MarkCompleted exists for tests and the surrounding task subsystem.
func (s *TaskStore) MarkCompleted(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET completed_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("mark task completed: %w", err)
	}
	return nil
}

// ListTagNames returns the tag names attached to a task, in name order.
func (s *TaskStore) ListTagNames(ctx context.Context, taskID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ut.name FROM task_tags tt JOIN user_tags ut ON ut.id = tt.tag_id
		 WHERE tt.task_id = ? ORDER BY ut.name`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list task tags: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan tag name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

const taskCols = `id, user_id, group_id, title, description, reward,
	requires_approval, requires_image, due_date, source_template_id, batch_id,
	assigned_by, completed_at, deleted_at, created_at`

func scanTask(scanner interface{ Scan(...any) error }) (*model.Task, error) {
	var t model.Task
	var reward sql.NullInt64
	var completedAt, deletedAt sql.NullTime

	err := scanner.Scan(
		&t.ID, &t.UserID, &t.GroupID, &t.Title, &t.Description, &reward,
		&t.RequiresApproval, &t.RequiresImage, &t.DueDate, &t.SourceTemplateID,
		&t.BatchID, &t.AssignedBy, &completedAt, &deletedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reward.Valid {
		t.Reward = &reward.Int64
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	if deletedAt.Valid {
		t.DeletedAt = &deletedAt.Time
	}
	return &t, nil
}

func ensureUserTag(ctx context.Context, tx *sql.Tx, userID int64, name string) (int64, error) {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO user_tags (user_id, name) VALUES (?, ?) ON CONFLICT (user_id, name) DO NOTHING`,
		userID, name,
	); err != nil {
		return 0, fmt.Errorf("ensure tag %q: %w", name, err)
	}

	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM user_tags WHERE user_id = ? AND name = ?`, userID, name,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup tag %q: %w", name, err)
	}
	return id, nil
}
