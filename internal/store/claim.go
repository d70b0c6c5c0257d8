package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ClaimStore is the firing ledger. The unique index on (rule_id, due_instant)
// makes Claim the engine's single synchronization point: exactly one caller
// across all workers observes claimed=true for a given pair.
type ClaimStore struct {
	db *sql.DB
}

func NewClaimStore(db *sql.DB) *ClaimStore {
	return &ClaimStore{db: db}
}

// Claim attempts to reserve the (ruleID, dueInstant) pair. It returns the
// claim id and true for the first successful claimant; later or concurrent
// callers get false. Due instants are normalized to UTC at minute precision
// so every worker derives the same key.
func (s *ClaimStore) Claim(ctx context.Context, ruleID int64, dueInstant time.Time) (int64, bool, error) {
	due := dueInstant.UTC().Truncate(time.Minute)

	result, err := s.db.ExecContext(ctx,
		`INSERT INTO firing_claims (rule_id, due_instant, claimed_at) VALUES (?, ?, ?)
		 ON CONFLICT (rule_id, due_instant) DO NOTHING`,
		ruleID, due, time.Now().UTC(),
	)
	if err != nil {
		return 0, false, fmt.Errorf("claim firing: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, false, fmt.Errorf("claim rows affected: %w", err)
	}
	if n == 0 {
		return 0, false, nil
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, false, fmt.Errorf("claim insert id: %w", err)
	}
	return id, true, nil
}

// Exists reports whether a claim for the pair has been committed, regardless
// of which worker committed it. Used to resolve uncertain claim attempts.
func (s *ClaimStore) Exists(ctx context.Context, ruleID int64, dueInstant time.Time) (bool, error) {
	due := dueInstant.UTC().Truncate(time.Minute)

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM firing_claims WHERE rule_id = ? AND due_instant = ?`,
		ruleID, due,
	).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check claim: %w", err)
	}
	return n > 0, nil
}
