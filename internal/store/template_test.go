package store

import (
	"context"
	"testing"
	"time"

	"github.com/ferndale/taskmill/internal/model"
)

func TestTemplateCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	groupID, ownerID, _ := seedGroup(t, db, 1)
	templates := NewTemplateStore(db)

	reward := int64(50)
	tpl := dailyTemplate(groupID, ownerID)
	tpl.Description = "front porch and kitchen"
	tpl.Reward = &reward
	tpl.Tags = []string{"garden", "morning"}
	tpl.Rules = append(tpl.Rules, model.RecurrenceRule{
		Kind: model.KindWeekly, TimeOfDay: "18:00", Weekdays: []int{6},
	})

	created, err := templates.Create(ctx, tpl)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("created template should have an id")
	}
	if created.Status != model.StatusActive {
		t.Errorf("status = %q, want active", created.Status)
	}
	if created.Reward == nil || *created.Reward != 50 {
		t.Errorf("reward = %v, want 50", created.Reward)
	}
	if len(created.Rules) != 2 {
		t.Fatalf("rules = %d, want 2", len(created.Rules))
	}
	if created.Rules[1].Weekdays[0] != 6 {
		t.Errorf("weekly rule weekdays = %v", created.Rules[1].Weekdays)
	}
	if len(created.Tags) != 2 || created.Tags[0] != "garden" {
		t.Errorf("tags = %v", created.Tags)
	}

	got, err := templates.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil || got.Title != "Water the plants" {
		t.Errorf("got %+v", got)
	}
}

func TestTemplateCreateRequiresRule(t *testing.T) {
	db := openTestDB(t)
	groupID, ownerID, _ := seedGroup(t, db, 0)
	templates := NewTemplateStore(db)

	tpl := dailyTemplate(groupID, ownerID)
	tpl.Rules = nil
	if _, err := templates.Create(context.Background(), tpl); err == nil {
		t.Error("create without rules should fail")
	}
}

func TestTemplateGetUnknown(t *testing.T) {
	db := openTestDB(t)
	templates := NewTemplateStore(db)

	got, err := templates.GetByID(context.Background(), 999)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Errorf("got %+v, want nil", got)
	}
}

func TestTemplateListActive(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	groupID, ownerID, _ := seedGroup(t, db, 1)
	templates := NewTemplateStore(db)

	now := time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

	active, err := templates.Create(ctx, dailyTemplate(groupID, ownerID))
	if err != nil {
		t.Fatal(err)
	}

	paused, err := templates.Create(ctx, dailyTemplate(groupID, ownerID))
	if err != nil {
		t.Fatal(err)
	}
	if err := templates.SetStatus(ctx, paused.ID, model.StatusPaused); err != nil {
		t.Fatal(err)
	}

	future := dailyTemplate(groupID, ownerID)
	start := now.Add(48 * time.Hour)
	future.StartDate = &start
	if _, err := templates.Create(ctx, future); err != nil {
		t.Fatal(err)
	}

	ended := dailyTemplate(groupID, ownerID)
	end := now.Add(-48 * time.Hour)
	ended.EndDate = &end
	if _, err := templates.Create(ctx, ended); err != nil {
		t.Fatal(err)
	}

	got, err := templates.ListActive(ctx, now)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(got) != 1 || got[0].ID != active.ID {
		ids := make([]int64, len(got))
		for i, tpl := range got {
			ids[i] = tpl.ID
		}
		t.Errorf("active ids = %v, want [%d]", ids, active.ID)
	}
	if len(got) == 1 && len(got[0].Rules) == 0 {
		t.Error("ListActive should attach rules")
	}
}

func TestTemplateUpdateReplacesRulesAndTags(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	groupID, ownerID, _ := seedGroup(t, db, 1)
	templates := NewTemplateStore(db)

	created, err := templates.Create(ctx, dailyTemplate(groupID, ownerID))
	if err != nil {
		t.Fatal(err)
	}

	created.Title = "Water all the plants"
	created.Tags = []string{"outdoors"}
	created.Rules = []model.RecurrenceRule{
		{Kind: model.KindMonthly, TimeOfDay: "10:00", MonthDays: []int{1, 15}},
	}

	updated, err := templates.Update(ctx, created)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Title != "Water all the plants" {
		t.Errorf("title = %q", updated.Title)
	}
	if len(updated.Rules) != 1 || updated.Rules[0].Kind != model.KindMonthly {
		t.Errorf("rules = %+v", updated.Rules)
	}
	if len(updated.Tags) != 1 || updated.Tags[0] != "outdoors" {
		t.Errorf("tags = %v", updated.Tags)
	}
}

func TestTemplateSetStatusIdempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	groupID, ownerID, _ := seedGroup(t, db, 0)
	templates := NewTemplateStore(db)

	created, err := templates.Create(ctx, dailyTemplate(groupID, ownerID))
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 2; i++ {
		if err := templates.SetStatus(ctx, created.ID, model.StatusPaused); err != nil {
			t.Fatalf("pause %d: %v", i+1, err)
		}
	}
	got, _ := templates.GetByID(ctx, created.ID)
	if got.Status != model.StatusPaused {
		t.Errorf("status = %q, want paused", got.Status)
	}

	if err := templates.SetStatus(ctx, created.ID, model.StatusActive); err != nil {
		t.Fatalf("resume: %v", err)
	}
	got, _ = templates.GetByID(ctx, created.ID)
	if got.Status != model.StatusActive {
		t.Errorf("status = %q, want active", got.Status)
	}
}

func TestTemplateDeleteCascades(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	groupID, ownerID, _ := seedGroup(t, db, 0)
	templates := NewTemplateStore(db)

	created, err := templates.Create(ctx, dailyTemplate(groupID, ownerID))
	if err != nil {
		t.Fatal(err)
	}
	if err := templates.Delete(ctx, created.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	got, err := templates.GetByID(ctx, created.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("deleted template should be gone")
	}

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM recurrence_rules WHERE template_id = ?`, created.ID).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rules remaining = %d, want 0", n)
	}
}
