package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/ferndale/taskmill/internal/database"
	"github.com/ferndale/taskmill/internal/model"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seedGroup creates a group with an owner and n plain members, returning the
// group id, owner id, and member ids.
func seedGroup(t *testing.T, db *sql.DB, n int) (groupID, ownerID int64, memberIDs []int64) {
	t.Helper()
	ctx := context.Background()
	groups := NewGroupStore(db)

	owner, err := groups.CreateUser(ctx, "owner", "UTC")
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}
	group, err := groups.CreateGroup(ctx, "test group", owner.ID)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	for i := 0; i < n; i++ {
		u, err := groups.CreateUser(ctx, "member", "UTC")
		if err != nil {
			t.Fatalf("create member: %v", err)
		}
		if err := groups.AddMember(ctx, group.ID, u.ID); err != nil {
			t.Fatalf("add member: %v", err)
		}
		memberIDs = append(memberIDs, u.ID)
	}
	return group.ID, owner.ID, memberIDs
}

func dailyTemplate(groupID, createdBy int64) *model.TaskTemplate {
	return &model.TaskTemplate{
		GroupID:    groupID,
		CreatedBy:  createdBy,
		Title:      "Water the plants",
		AutoAssign: true,
		Timezone:   "UTC",
		Tags:       []string{"garden"},
		Rules: []model.RecurrenceRule{
			{Kind: model.KindDaily, TimeOfDay: "08:00"},
		},
	}
}
