// internal/app/features/ops/handler.go
package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	resourcestore "github.com/dalemusser/groupvault/internal/app/store/resources"
	"github.com/dalemusser/groupvault/internal/app/system/timeouts"
	"github.com/dalemusser/groupvault/internal/domain/errs"
	"github.com/dalemusser/groupvault/internal/domain/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// TombstoneStore lists and resets tombstoned resources.
type TombstoneStore interface {
	ListTombstones(ctx context.Context, f resourcestore.TombstoneFilter) ([]models.Resource, error)
	ResetDeleteAttempts(ctx context.Context, id int64) error
}

// Reconciler finishes pending deletions.
type Reconciler interface {
	Sweep(ctx context.Context) (finalized, failed int, err error)
	Retry(ctx context.Context, id int64) error
}

// Handler serves the operator endpoints for pending deletions.
type Handler struct {
	Tombstones TombstoneStore
	Reconciler Reconciler
	Log        *zap.Logger
}

// NewHandler constructs an ops Handler.
func NewHandler(ts TombstoneStore, rec Reconciler, logger *zap.Logger) *Handler {
	return &Handler{Tombstones: ts, Reconciler: rec, Log: logger}
}

const maxListLimit = 500

type tombstone struct {
	ID              int64      `json:"id"`
	GroupID         int64      `json:"group_id"`
	FileName        string     `json:"file_name"`
	ChatID          int64      `json:"chat_id"`
	MessageID       int        `json:"message_id"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	DeletedBy       *int64     `json:"deleted_by,omitempty"`
	DeleteAttempts  int        `json:"delete_attempts"`
	LastDeleteError string     `json:"last_delete_error,omitempty"`
}

// ServeTombstones handles GET /tombstones.
//
// Query parameters: group_id (optional), limit (default 100, max 500).
// Rows come back oldest first, including those past the retry cap.
func (h *Handler) ServeTombstones(w http.ResponseWriter, r *http.Request) {
	f := resourcestore.TombstoneFilter{Limit: 100}
	if s := r.URL.Query().Get("group_id"); s != "" {
		id, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "group_id must be an integer")
			return
		}
		f.GroupID = &id
	}
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		f.Limit = min(n, maxListLimit)
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "list tombstones")
	defer cancel()

	rows, err := h.Tombstones.ListTombstones(ctx, f)
	if err != nil {
		h.Log.Error("list tombstones", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	out := make([]tombstone, 0, len(rows))
	for _, row := range rows {
		out = append(out, tombstone{
			ID:              row.ID,
			GroupID:         row.GroupID,
			FileName:        row.Artifact.FileName,
			ChatID:          row.Artifact.ChatID,
			MessageID:       row.Artifact.MessageID,
			DeletedAt:       row.DeletedAt,
			DeletedBy:       row.DeletedBy,
			DeleteAttempts:  row.DeleteAttempts,
			LastDeleteError: row.LastDeleteError,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"tombstones": out})
}

// ServeReconcile handles POST /reconcile by running one sweep now.
func (h *Handler) ServeReconcile(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Long(), h.Log, "manual reconcile")
	defer cancel()

	finalized, failed, err := h.Reconciler.Sweep(ctx)
	if err != nil {
		h.Log.Error("manual reconcile", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.Log.Info("manual reconcile", zap.Int("finalized", finalized), zap.Int("failed", failed))
	writeJSON(w, http.StatusOK, map[string]int{"finalized": finalized, "failed": failed})
}

// ServeRetry handles POST /tombstones/{id}/retry. It clears the attempt
// counter and tries the external delete once more.
func (h *Handler) ServeRetry(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "bad resource id")
		return
	}

	ctx, cancel := timeouts.WithTimeout(r.Context(), timeouts.Medium(), h.Log, "retry tombstone")
	defer cancel()

	if err := h.Tombstones.ResetDeleteAttempts(ctx, id); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "no tombstone with that id")
			return
		}
		h.Log.Error("reset delete attempts", zap.Int64("resource_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	err = h.Reconciler.Retry(ctx, id)
	var pf *errs.PartialFailure
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "deleted"})
	case errors.As(err, &pf):
		writeJSON(w, http.StatusBadGateway, map[string]any{"id": id, "status": "pending", "error": pf.Cause.Error()})
	default:
		h.Log.Error("retry tombstone", zap.Int64("resource_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
