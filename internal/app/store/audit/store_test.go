package audit_test

import (
	"testing"
	"time"

	"github.com/dalemusser/groupvault/internal/app/store/audit"
	"github.com/dalemusser/groupvault/internal/testutil"
)

func ptr(v int64) *int64 { return &v }

func TestStore_Log(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	group := int64(-1001234567890)
	err := store.Log(ctx, audit.Event{
		Category:  audit.CategoryRoles,
		EventType: audit.EventRoleSet,
		GroupID:   &group,
		ActorID:   ptr(10),
		UserID:    ptr(20),
		Success:   true,
		Details:   map[string]string{"role": "admin"},
	})
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}

	events, err := store.GetByGroup(ctx, group, 10)
	if err != nil {
		t.Fatalf("GetByGroup failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	ev := events[0]
	if ev.ID.IsZero() {
		t.Error("expected ID to be auto-generated")
	}
	if ev.Timestamp.IsZero() {
		t.Error("expected timestamp to be set")
	}
	if *ev.GroupID != group {
		t.Errorf("GroupID = %d, want %d (must not be narrowed)", *ev.GroupID, group)
	}
	if ev.Details["role"] != "admin" {
		t.Errorf("Details = %v", ev.Details)
	}
}

func TestStore_Query_Filters(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Now().UTC().Add(-time.Hour)
	events := []audit.Event{
		{Category: audit.CategoryCatalog, EventType: audit.EventCategoryCreated, GroupID: ptr(1), Timestamp: base},
		{Category: audit.CategoryCatalog, EventType: audit.EventTagCreated, GroupID: ptr(1), Timestamp: base.Add(time.Minute)},
		{Category: audit.CategoryDelete, EventType: audit.EventResourceDeleted, GroupID: ptr(2), ResourceID: ptr(7), Timestamp: base.Add(2 * time.Minute)},
	}
	for _, e := range events {
		if err := store.Log(ctx, e); err != nil {
			t.Fatalf("Log: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter audit.QueryFilter
		want   int
	}{
		{"all", audit.QueryFilter{}, 3},
		{"by category", audit.QueryFilter{Category: audit.CategoryCatalog}, 2},
		{"by event type", audit.QueryFilter{EventType: audit.EventTagCreated}, 1},
		{"by group", audit.QueryFilter{GroupID: ptr(2)}, 1},
		{"by resource", audit.QueryFilter{ResourceID: ptr(7)}, 1},
		{"since", audit.QueryFilter{StartTime: ptrTime(base.Add(30 * time.Second))}, 2},
		{"limit", audit.QueryFilter{Limit: 1}, 1},
		{"offset", audit.QueryFilter{Offset: 2}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Query(ctx, tt.filter)
			if err != nil {
				t.Fatalf("Query: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("got %d events, want %d", len(got), tt.want)
			}
		})
	}

	n, err := store.CountByFilter(ctx, audit.QueryFilter{Category: audit.CategoryCatalog})
	if err != nil {
		t.Fatalf("CountByFilter: %v", err)
	}
	if n != 2 {
		t.Errorf("CountByFilter = %d, want 2", n)
	}

	recent, err := store.GetRecent(ctx, 10)
	if err != nil {
		t.Fatalf("GetRecent: %v", err)
	}
	if recent[0].EventType != audit.EventResourceDeleted {
		t.Errorf("GetRecent should be newest first, got %s", recent[0].EventType)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
