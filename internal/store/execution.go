package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ferndale/taskmill/internal/model"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 100
)

// ExecutionStore is the append-only firing history.
type ExecutionStore struct {
	db *sql.DB
}

func NewExecutionStore(db *sql.DB) *ExecutionStore {
	return &ExecutionStore{db: db}
}

// Append records one firing attempt. Rows are never updated or deleted.
func (s *ExecutionStore) Append(ctx context.Context, e *model.Execution) error {
	createdIDs, err := json.Marshal(idsOrEmpty(e.CreatedTaskIDs))
	if err != nil {
		return fmt.Errorf("marshal created task ids: %w", err)
	}
	errDetail, err := json.Marshal(errsOrEmpty(e.ErrorDetail))
	if err != nil {
		return fmt.Errorf("marshal error detail: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO executions (template_id, rule_id, claim_id, batch_id, due_instant,
			executed_at, outcome, created_task_ids, error_detail, note)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.TemplateID, e.RuleID, e.ClaimID, e.BatchID, e.DueInstant.UTC(),
		e.ExecutedAt.UTC(), e.Outcome, string(createdIDs), string(errDetail), e.Note,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("execution insert id: %w", err)
	}
	e.ID = id
	return nil
}

// ListRecent returns the newest executions for a template, newest first.
// limit <= 0 uses the default; limits above the cap are clamped.
func (s *ExecutionStore) ListRecent(ctx context.Context, templateID int64, limit int) ([]model.Execution, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+executionCols+` FROM executions
		 WHERE template_id = ? ORDER BY executed_at DESC, id DESC LIMIT ?`,
		templateID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []model.Execution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("scan execution: %w", err)
		}
		executions = append(executions, *e)
	}
	return executions, rows.Err()
}

// GetByID returns one execution, or nil if unknown. History stays queryable
// by id after the owning template is deleted.
func (s *ExecutionStore) GetByID(ctx context.Context, id int64) (*model.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionCols+` FROM executions WHERE id = ?`, id)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return e, nil
}

// LastWithTasks returns the most recent execution that created tasks, or nil.
func (s *ExecutionStore) LastWithTasks(ctx context.Context, templateID int64) (*model.Execution, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+executionCols+` FROM executions
		 WHERE template_id = ? AND outcome != ? AND created_task_ids != '[]'
		 ORDER BY executed_at DESC, id DESC LIMIT 1`,
		templateID, model.OutcomeFailure,
	)
	e, err := scanExecution(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last execution with tasks: %w", err)
	}
	return e, nil
}

const executionCols = `id, template_id, rule_id, claim_id, batch_id, due_instant,
	executed_at, outcome, created_task_ids, error_detail, note`

func scanExecution(scanner interface{ Scan(...any) error }) (*model.Execution, error) {
	var e model.Execution
	var createdIDs, errDetail string

	err := scanner.Scan(
		&e.ID, &e.TemplateID, &e.RuleID, &e.ClaimID, &e.BatchID, &e.DueInstant,
		&e.ExecutedAt, &e.Outcome, &createdIDs, &errDetail, &e.Note,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(createdIDs), &e.CreatedTaskIDs); err != nil {
		return nil, fmt.Errorf("unmarshal created task ids: %w", err)
	}
	if err := json.Unmarshal([]byte(errDetail), &e.ErrorDetail); err != nil {
		return nil, fmt.Errorf("unmarshal error detail: %w", err)
	}
	return &e, nil
}

func idsOrEmpty(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}

func errsOrEmpty(errs []model.RecipientError) []model.RecipientError {
	if errs == nil {
		return []model.RecipientError{}
	}
	return errs
}
