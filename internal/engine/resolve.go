package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/ferndale/taskmill/internal/model"
)

var (
	// ErrNoRecipients means resolution produced an empty recipient set.
	ErrNoRecipients = errors.New("no assignable recipients")
	// ErrInvalidAssignee means the fixed assignee is not an assignable
	// member of the template's group (usually: they left after the template
	// was created).
	ErrInvalidAssignee = errors.New("assignee is not an assignable group member")
)

// RecipientPolicy resolves who a firing's tasks go to. The two strategies
// mirror the template's assignment config: a fixed assignee, or the live
// group roster at firing time.
type RecipientPolicy interface {
	Resolve(ctx context.Context, roster Roster, tpl *model.TaskTemplate) ([]int64, error)
}

// PolicyFor picks the strategy for a template.
func PolicyFor(tpl *model.TaskTemplate) RecipientPolicy {
	if tpl.AutoAssign {
		return autoRosterPolicy{}
	}
	return fixedAssigneePolicy{}
}

type fixedAssigneePolicy struct{}

func (fixedAssigneePolicy) Resolve(ctx context.Context, roster Roster, tpl *model.TaskTemplate) ([]int64, error) {
	if tpl.AssignedUserID == nil {
		return nil, ErrInvalidAssignee
	}
	ok, err := roster.IsAssignableMember(ctx, tpl.GroupID, *tpl.AssignedUserID)
	if err != nil {
		return nil, fmt.Errorf("check assignee: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("user %d: %w", *tpl.AssignedUserID, ErrInvalidAssignee)
	}
	return []int64{*tpl.AssignedUserID}, nil
}

type autoRosterPolicy struct{}

func (autoRosterPolicy) Resolve(ctx context.Context, roster Roster, tpl *model.TaskTemplate) ([]int64, error) {
	ids, err := roster.ListAssignableMemberIDs(ctx, tpl.GroupID)
	if err != nil {
		return nil, fmt.Errorf("list roster: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoRecipients
	}
	return ids, nil
}
