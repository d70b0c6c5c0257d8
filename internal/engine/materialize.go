package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ferndale/taskmill/internal/model"
)

// execute runs the post-claim pipeline for one due instant: resolve
// recipients, clear the previous batch if the template asks for it,
// materialize one task per recipient, and record the attempt. Nothing here
// propagates to an interactive caller; every path ends in an execution row.
func (d *Driver) execute(ctx context.Context, tpl *model.TaskTemplate, ruleID, claimID int64, dueInstant, dueLocal time.Time) error {
	exec := &model.Execution{
		TemplateID: tpl.ID,
		RuleID:     ruleID,
		ClaimID:    claimID,
		BatchID:    uuid.NewString(),
		DueInstant: dueInstant,
		ExecutedAt: time.Now().UTC(),
	}

	recipients, err := PolicyFor(tpl).Resolve(ctx, d.roster, tpl)
	if err != nil {
		// Configuration errors discovered at firing time are recorded, not
		// raised; the owner sees them in the execution history.
		if errors.Is(err, ErrNoRecipients) || errors.Is(err, ErrInvalidAssignee) {
			exec.Outcome = model.OutcomeFailure
			exec.ErrorDetail = []model.RecipientError{{Message: err.Error()}}
			return d.record(ctx, exec)
		}
		return fmt.Errorf("resolve recipients: %w", err)
	}

	if tpl.DeleteIncompletePrevious {
		exec.Note = d.clearPreviousBatch(ctx, tpl.ID)
	}

	created, recipientErrs := d.materialize(ctx, tpl, recipients, dueLocal, exec.BatchID)
	exec.CreatedTaskIDs = created
	exec.ErrorDetail = recipientErrs
	exec.Outcome = classify(created, recipientErrs)

	return d.record(ctx, exec)
}

// materialize creates one task per recipient. Each creation is independent:
// a failure for one recipient never aborts the rest, and a tick-level cancel
// does not interrupt recipients already resolved for this firing.
func (d *Driver) materialize(ctx context.Context, tpl *model.TaskTemplate, recipients []int64, dueLocal time.Time, batchID string) ([]int64, []model.RecipientError) {
	// A started firing runs to completion even if the tick deadline passes.
	base := context.WithoutCancel(ctx)

	var created []int64
	var failures []model.RecipientError

	for _, userID := range recipients {
		task := &model.Task{
			UserID:           userID,
			GroupID:          tpl.GroupID,
			Title:            tpl.Title,
			Description:      tpl.Description,
			Reward:           tpl.Reward,
			RequiresApproval: tpl.RequiresApproval,
			RequiresImage:    tpl.RequiresImage,
			DueDate:          dueLocal.Format("2006-01-02"),
			SourceTemplateID: tpl.ID,
			BatchID:          batchID,
			AssignedBy:       tpl.CreatedBy,
		}

		createCtx, cancel := context.WithTimeout(base, d.cfg.CreateTimeout)
		id, err := d.tasks.Create(createCtx, task, tpl.Tags)
		cancel()
		if err != nil {
			d.logger.Warn("materialize recipient failed",
				"template_id", tpl.ID, "user_id", userID, "error", err)
			failures = append(failures, model.RecipientError{UserID: userID, Message: err.Error()})
			continue
		}
		created = append(created, id)
	}
	return created, failures
}

// clearPreviousBatch soft-deletes still-open tasks from the template's last
// task-creating firing. Failures here only dim the note; they never block
// the new firing.
func (d *Driver) clearPreviousBatch(ctx context.Context, templateID int64) string {
	last, err := d.recorder.LastWithTasks(ctx, templateID)
	if err != nil {
		d.logger.Warn("lookup previous batch", "template_id", templateID, "error", err)
		return ""
	}
	if last == nil || len(last.CreatedTaskIDs) == 0 {
		return ""
	}

	deleted, err := d.tasks.SoftDeleteIncomplete(ctx, last.CreatedTaskIDs)
	if err != nil {
		d.logger.Warn("delete previous incomplete tasks", "template_id", templateID, "error", err)
		return ""
	}
	if len(deleted) == 0 {
		return ""
	}
	return fmt.Sprintf("removed %d incomplete task(s) from previous firing", len(deleted))
}

func classify(created []int64, failures []model.RecipientError) model.Outcome {
	switch {
	case len(failures) == 0:
		return model.OutcomeSuccess
	case len(created) > 0:
		return model.OutcomePartialFailure
	default:
		return model.OutcomeFailure
	}
}
