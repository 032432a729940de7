package auditlog_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dalemusser/groupvault/internal/app/features/auditlog"
	"github.com/dalemusser/groupvault/internal/app/store/audit"
	"go.uber.org/zap"
)

type fakeQuerier struct {
	got    audit.QueryFilter
	events []audit.Event
	err    error
}

func (f *fakeQuerier) Query(_ context.Context, filter audit.QueryFilter) ([]audit.Event, error) {
	f.got = filter
	return f.events, f.err
}

func serve(h *auditlog.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	auditlog.Routes(h).ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	return rec
}

func TestServeList_PassesFilters(t *testing.T) {
	q := &fakeQuerier{}
	h := auditlog.NewHandler(q, zap.NewNop())

	rec := serve(h, "/?group_id=-100&resource_id=7&category=admin&event_type=resource_deleted&since=2024-06-01T00:00:00Z&page=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d, want 200", rec.Code)
	}
	f := q.got
	if f.GroupID == nil || *f.GroupID != -100 {
		t.Errorf("group_id: got %v", f.GroupID)
	}
	if f.ResourceID == nil || *f.ResourceID != 7 {
		t.Errorf("resource_id: got %v", f.ResourceID)
	}
	if f.Category != "admin" || f.EventType != "resource_deleted" {
		t.Errorf("category/event_type: got %q/%q", f.Category, f.EventType)
	}
	if f.StartTime == nil || !f.StartTime.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("since: got %v", f.StartTime)
	}
	if f.EndTime != nil {
		t.Errorf("until should be unset, got %v", f.EndTime)
	}
	if f.Limit != 50 || f.Offset != 100 {
		t.Errorf("paging: got limit %d offset %d", f.Limit, f.Offset)
	}
}

func TestServeList_RendersEvents(t *testing.T) {
	actor, res := int64(3), int64(9)
	q := &fakeQuerier{events: []audit.Event{{
		Timestamp:  time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Category:   "admin",
		EventType:  "resource_deleted",
		ActorID:    &actor,
		ResourceID: &res,
		Success:    true,
	}}}
	rec := serve(auditlog.NewHandler(q, zap.NewNop()), "/")

	var body struct {
		Page    int  `json:"page"`
		HasMore bool `json:"has_more"`
		Events  []struct {
			EventType  string `json:"event_type"`
			ActorID    int64  `json:"actor_id"`
			ResourceID int64  `json:"resource_id"`
		} `json:"events"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Page != 1 || body.HasMore {
		t.Errorf("paging: got page %d has_more %v", body.Page, body.HasMore)
	}
	if len(body.Events) != 1 || body.Events[0].EventType != "resource_deleted" ||
		body.Events[0].ActorID != 3 || body.Events[0].ResourceID != 9 {
		t.Errorf("events: got %+v", body.Events)
	}
}

func TestServeList_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		err  error
		want int
	}{
		{"bad group", "/?group_id=x", nil, http.StatusBadRequest},
		{"bad time", "/?until=yesterday", nil, http.StatusBadRequest},
		{"db error", "/", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(auditlog.NewHandler(&fakeQuerier{err: tt.err}, zap.NewNop()), tt.path)
			if rec.Code != tt.want {
				t.Errorf("got %d, want %d", rec.Code, tt.want)
			}
		})
	}
}
