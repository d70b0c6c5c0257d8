package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ferndale/taskmill/internal/model"
)

type GroupStore struct {
	db *sql.DB
}

func NewGroupStore(db *sql.DB) *GroupStore {
	return &GroupStore{db: db}
}

func (s *GroupStore) CreateUser(ctx context.Context, name, timezone string) (*model.User, error) {
	if timezone == "" {
		timezone = "UTC"
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, timezone) VALUES (?, ?)`,
		name, timezone,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetUserByID(ctx, id)
}

func (s *GroupStore) GetUserByID(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, timezone, created_at FROM users WHERE id = ?`, id)
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Timezone, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

// CreateGroup creates a group and records the owner as its first member.
func (s *GroupStore) CreateGroup(ctx context.Context, name string, ownerUserID int64) (*model.Group, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`INSERT INTO groups (name, owner_user_id) VALUES (?, ?)`,
		name, ownerUserID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert group: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)`,
		id, ownerUserID, model.RoleOwner,
	); err != nil {
		return nil, fmt.Errorf("insert owner member: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return s.GetGroupByID(ctx, id)
}

func (s *GroupStore) GetGroupByID(ctx context.Context, id int64) (*model.Group, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, owner_user_id, created_at FROM groups WHERE id = ?`, id)
	var g model.Group
	err := row.Scan(&g.ID, &g.Name, &g.OwnerUserID, &g.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get group: %w", err)
	}
	return &g, nil
}

func (s *GroupStore) AddMember(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES (?, ?, ?)`,
		groupID, userID, model.RoleMember,
	)
	if err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *GroupStore) RemoveMember(ctx context.Context, groupID, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	)
	if err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

// ListAssignableMemberIDs returns the ids of members tasks may be assigned to.
// The group owner is excluded; owners hand out tasks, they don't receive them.
func (s *GroupStore) ListAssignableMemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = ? AND role = ? ORDER BY user_id`,
		groupID, model.RoleMember,
	)
	if err != nil {
		return nil, fmt.Errorf("list assignable members: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan member id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMembers returns the users in a group, owner included.
func (s *GroupStore) ListMembers(ctx context.Context, groupID int64) ([]model.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT u.id, u.name, u.timezone, u.created_at
		 FROM users u JOIN group_members gm ON gm.user_id = u.id
		 WHERE gm.group_id = ? ORDER BY u.id`,
		groupID,
	)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Name, &u.Timezone, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// IsAssignableMember reports whether the user is a non-owner member of the group.
func (s *GroupStore) IsAssignableMember(ctx context.Context, groupID, userID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ? AND user_id = ? AND role = ?`,
		groupID, userID, model.RoleMember,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check member: %w", err)
	}
	return n > 0, nil
}

// GetMemberRole returns the user's role in the group, or "" if not a member.
func (s *GroupStore) GetMemberRole(ctx context.Context, groupID, userID int64) (string, error) {
	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM group_members WHERE group_id = ? AND user_id = ?`,
		groupID, userID,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get member role: %w", err)
	}
	return role, nil
}
