package auth

import (
	"context"
	"testing"
)

func TestWithAuthRoundTrip(t *testing.T) {
	ac := AuthContext{UserID: 7, GroupID: 3, Role: "owner", SessionID: 42}
	ctx := WithAuth(context.Background(), ac)

	got, ok := FromContext(ctx)
	if !ok {
		t.Fatal("FromContext should find auth context")
	}
	if got != ac {
		t.Errorf("got %+v, want %+v", got, ac)
	}
}

func TestFromContextMissing(t *testing.T) {
	_, ok := FromContext(context.Background())
	if ok {
		t.Error("FromContext on empty context should return false")
	}
}

func TestAccessors(t *testing.T) {
	ctx := WithAuth(context.Background(), AuthContext{UserID: 5, GroupID: 9, Role: "member"})

	if got := UserID(ctx); got != 5 {
		t.Errorf("UserID = %d, want 5", got)
	}
	if got := GroupID(ctx); got != 9 {
		t.Errorf("GroupID = %d, want 9", got)
	}
	if CanEdit(ctx) {
		t.Error("member role should not have edit capability")
	}

	owner := WithAuth(context.Background(), AuthContext{UserID: 1, GroupID: 9, Role: "owner"})
	if !CanEdit(owner) {
		t.Error("owner role should have edit capability")
	}
}

func TestAccessorsOnEmptyContext(t *testing.T) {
	ctx := context.Background()
	if UserID(ctx) != 0 || GroupID(ctx) != 0 || CanEdit(ctx) {
		t.Error("accessors on empty context should return zero values")
	}
}
