// internal/app/features/auditlog/handler.go
package auditlog

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/groupvault/internal/app/store/audit"
	"github.com/dalemusser/groupvault/internal/app/system/timeouts"
	"go.uber.org/zap"
)

const pageSize = 50

// Querier reads audit events.
type Querier interface {
	Query(ctx context.Context, filter audit.QueryFilter) ([]audit.Event, error)
}

// Handler serves the audit trail to operators.
type Handler struct {
	Events Querier
	Log    *zap.Logger
}

func NewHandler(events Querier, logger *zap.Logger) *Handler {
	return &Handler{Events: events, Log: logger}
}

type eventView struct {
	Timestamp     time.Time         `json:"timestamp"`
	GroupID       *int64            `json:"group_id,omitempty"`
	Category      string            `json:"category"`
	EventType     string            `json:"event_type"`
	UserID        *int64            `json:"user_id,omitempty"`
	ActorID       *int64            `json:"actor_id,omitempty"`
	ResourceID    *int64            `json:"resource_id,omitempty"`
	Success       bool              `json:"success"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Details       map[string]string `json:"details,omitempty"`
}

// ServeList handles GET /audit.
//
// Filters: group_id, resource_id, category, event_type, since and until
// (RFC 3339), page (1-based, 50 events per page). Newest first.
func (h *Handler) ServeList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.QueryFilter{
		Category:  strings.TrimSpace(q.Get("category")),
		EventType: strings.TrimSpace(q.Get("event_type")),
		Limit:     pageSize,
	}

	var bad string
	int64Param := func(name string) *int64 {
		s := q.Get(name)
		if s == "" {
			return nil
		}
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			bad = name + " must be an integer"
			return nil
		}
		return &v
	}
	timeParam := func(name string) *time.Time {
		s := q.Get(name)
		if s == "" {
			return nil
		}
		v, err := time.Parse(time.RFC3339, s)
		if err != nil {
			bad = name + " must be an RFC 3339 time"
			return nil
		}
		return &v
	}
	filter.GroupID = int64Param("group_id")
	filter.ResourceID = int64Param("resource_id")
	filter.StartTime = timeParam("since")
	filter.EndTime = timeParam("until")

	page := 1
	if p, err := strconv.Atoi(q.Get("page")); err == nil && p > 0 {
		page = p
	}
	filter.Offset = int64((page - 1) * pageSize)

	w.Header().Set("Content-Type", "application/json")
	if bad != "" {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": bad})
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "audit log list")
	defer cancel()

	events, err := h.Events.Query(ctx, filter)
	if err != nil {
		h.Log.Error("audit log query failed", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "database error"})
		return
	}

	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{
			Timestamp:     e.Timestamp,
			GroupID:       e.GroupID,
			Category:      e.Category,
			EventType:     e.EventType,
			UserID:        e.UserID,
			ActorID:       e.ActorID,
			ResourceID:    e.ResourceID,
			Success:       e.Success,
			FailureReason: e.FailureReason,
			Details:       e.Details,
		})
	}
	_ = json.NewEncoder(w).Encode(map[string]any{
		"page":     page,
		"has_more": len(events) == pageSize,
		"events":   out,
	})
}
