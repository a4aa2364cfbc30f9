package domain

import (
	"context"
	"testing"
	"time"
)

func TestUserRecord_FullName(t *testing.T) {
	tests := []struct {
		name string
		user UserRecord
		want string
	}{
		{"Both", UserRecord{FirstName: "Ada", LastName: "Lovelace"}, "Ada Lovelace"},
		{"First Only", UserRecord{FirstName: "Ada"}, "Ada"},
		{"Last Only", UserRecord{LastName: "Lovelace"}, "Lovelace"},
		{"Empty", UserRecord{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.user.FullName(); got != tt.want {
				t.Errorf("FullName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUserRecord_IsAdmin(t *testing.T) {
	tests := []struct {
		role string
		want bool
	}{
		{"admin", true},
		{"Admin", true},
		{"renter", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := (UserRecord{Role: tt.role}).IsAdmin(); got != tt.want {
			t.Errorf("IsAdmin() with role %q = %v, want %v", tt.role, got, tt.want)
		}
	}
}

func TestSessionStatus_Valid(t *testing.T) {
	for _, s := range []SessionStatus{StatusPending, StatusAuthenticated, StatusUnauthenticated} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if SessionStatus("expired").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestSnapshot(t *testing.T) {
	if Missing().Exists {
		t.Error("Missing() must not exist")
	}
	snap := Found(UserRecord{ID: "u1", UpdatedAt: 7})
	if !snap.Exists || snap.User.ID != "u1" || snap.User.UpdatedAt != 7 {
		t.Errorf("unexpected snapshot: %+v", snap)
	}
}

func TestLifecycleHooks_Merge(t *testing.T) {
	var calls []string

	a := LifecycleHooks{
		OnApply: func(context.Context, *UpdateEvent) { calls = append(calls, "a.apply") },
	}
	b := LifecycleHooks{
		OnApply: func(context.Context, *UpdateEvent) { calls = append(calls, "b.apply") },
		OnClear: func(context.Context, *UpdateEvent) { calls = append(calls, "b.clear") },
	}

	merged := a.Merge(b)
	merged.OnApply(context.Background(), &UpdateEvent{})
	merged.OnClear(context.Background(), &UpdateEvent{})

	if merged.OnDiscard != nil {
		t.Error("unset hooks must stay nil")
	}

	want := []string{"a.apply", "b.apply", "b.clear"}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("calls[%d] = %q, want %q", i, calls[i], want[i])
		}
	}
}

func TestNextUpdatedAt(t *testing.T) {
	now := time.UnixMilli(1_000)

	if got := NextUpdatedAt(0, now); got != 1_000 {
		t.Errorf("first revision = %d, want 1000", got)
	}
	if got := NextUpdatedAt(999, now); got != 1_000 {
		t.Errorf("older previous = %d, want 1000", got)
	}
	if got := NextUpdatedAt(1_000, now); got != 1_001 {
		t.Errorf("equal previous = %d, want 1001", got)
	}
	if got := NextUpdatedAt(5_000, now); got != 5_001 {
		t.Errorf("clock behind previous = %d, want 5001", got)
	}
}
