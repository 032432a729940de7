package auditlog_test

import (
	"testing"

	"github.com/dalemusser/groupvault/internal/app/store/audit"
	"github.com/dalemusser/groupvault/internal/app/system/auditlog"
	"github.com/dalemusser/groupvault/internal/testutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const group = int64(-1009876543210)

func TestLogger_NilLogger(t *testing.T) {
	var logger *auditlog.Logger
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger.Log(ctx, audit.Event{EventType: "test"})
	logger.GroupInitialized(ctx, group, 1)
	logger.ResourceDeleted(ctx, group, 1, 2)
}

func TestLogger_LogOnlyWithoutStore(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(nil, zap.New(core), auditlog.Config{Init: "log", Admin: "log"})
	logger.RoleSet(ctx, group, 1, 2, "member", "admin")
	logger.ResourceTombstoned(ctx, group, 1, 9, "timeout")

	if logs.Len() != 2 {
		t.Fatalf("expected 2 log entries, got %d", logs.Len())
	}
	first := logs.All()[0]
	if first.ContextMap()["event_type"] != audit.EventRoleSet {
		t.Errorf("event_type = %v", first.ContextMap()["event_type"])
	}
	if first.ContextMap()["group_id"] != group {
		t.Errorf("group_id = %v, want %d", first.ContextMap()["group_id"], group)
	}
	if logs.All()[1].Level != zapcore.WarnLevel {
		t.Error("failed events should log at warn")
	}
}

func TestLogger_CategoryFilteredByConfig(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(nil, zap.New(core), auditlog.Config{Init: "off", Admin: "log"})
	logger.GroupInitialized(ctx, group, 1)
	logger.CatalogChanged(ctx, group, 1, audit.EventTagCreated, 3, "exam")

	if logs.Len() != 1 {
		t.Fatalf("expected only the admin event, got %d entries", logs.Len())
	}
}

func TestLogger_Log_ConfigDB(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Init: "db", Admin: "db"})
	logger.GroupInitialized(ctx, group, 42)
	logger.DeleteForbidden(ctx, group, 5, 6)

	events, err := store.GetByGroup(ctx, group, 10)
	if err != nil {
		t.Fatalf("GetByGroup failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("expected 2 events, got %d", len(events))
	}
}

func TestLogger_Log_ConfigOff(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := audit.New(db)
	ctx, cancel := testutil.TestContext()
	defer cancel()

	logger := auditlog.New(store, zap.NewNop(), auditlog.Config{Init: "off", Admin: "off"})
	logger.GroupInitialized(ctx, group, 42)
	logger.ResourceCreated(ctx, group, 42, 1)

	n, err := store.CountByFilter(ctx, audit.QueryFilter{})
	if err != nil {
		t.Fatalf("CountByFilter failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no events when config is 'off', got %d", n)
	}
}
