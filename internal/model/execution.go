package model

import "time"

// FiringClaim reserves one (rule, due instant) pair. The unique index on the
// pair makes the first insert the sole executor for that instant; claims are
// never deleted so history can be replayed against them.
type FiringClaim struct {
	ID         int64     `json:"id"`
	RuleID     int64     `json:"rule_id"`
	DueInstant time.Time `json:"due_instant"`
	ClaimedAt  time.Time `json:"claimed_at"`
}

type Outcome string

const (
	OutcomeSuccess        Outcome = "success"
	OutcomePartialFailure Outcome = "partial_failure"
	OutcomeFailure        Outcome = "failure"
)

// RecipientError records why materialization failed for one recipient.
type RecipientError struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

// Execution is the immutable audit record of one firing attempt. It references
// the template and rule by id only; rows outlive template deletion.
type Execution struct {
	ID             int64            `json:"id"`
	TemplateID     int64            `json:"template_id"`
	RuleID         int64            `json:"rule_id"`
	ClaimID        int64            `json:"claim_id"`
	BatchID        string           `json:"batch_id"`
	DueInstant     time.Time        `json:"due_instant"`
	ExecutedAt     time.Time        `json:"executed_at"`
	Outcome        Outcome          `json:"outcome"`
	CreatedTaskIDs []int64          `json:"created_task_ids"`
	ErrorDetail    []RecipientError `json:"error_detail,omitempty"`
	Note           string           `json:"note,omitempty"`
}
