package health

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/dalemusser/groupvault/internal/app/system/timeouts"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"
)

// Pinger is the part of *mongo.Client the health check needs.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

var _ Pinger = (*mongo.Client)(nil)

// BusStatus reports the retry bus connection; nil when the bus is not
// configured.
type BusStatus func() (connected bool)

// Handler holds dependencies needed for health checks.
type Handler struct {
	DB  Pinger
	Bus BusStatus
	Log *zap.Logger
}

// NewHandler constructs a health Handler.
func NewHandler(db Pinger, bus BusStatus, logger *zap.Logger) *Handler {
	return &Handler{DB: db, Bus: bus, Log: logger}
}

// healthResponse is the JSON structure for the health check response.
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Bus      string `json:"bus,omitempty"`
	Message  string `json:"message,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Serve handles GET /health.
//
// On success: 200 and
//
//	{ "status":"ok", "database":"connected", "bus":"connected" }
//
// On DB failure: 503 and
//
//	{ "status":"error", "message":"Database unavailable", "error":"…"}
//
// A disconnected bus is reported but does not fail the check; partial
// failures are still swept on schedule without it.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), timeouts.Ping())
	defer cancel()

	w.Header().Set("Content-Type", "application/json")

	resp := healthResponse{
		Status:   "ok",
		Database: "connected",
	}
	if h.Bus != nil {
		resp.Bus = "disconnected"
		if h.Bus() {
			resp.Bus = "connected"
		}
	}

	if err := h.DB.Ping(ctx, readpref.Primary()); err != nil {
		h.Log.Error("health-check: mongo ping failed", zap.Error(err))
		w.WriteHeader(http.StatusServiceUnavailable)
		resp.Status = "error"
		resp.Database = "disconnected"
		resp.Message = "Database unavailable"
		resp.Error = err.Error()
		_ = json.NewEncoder(w).Encode(resp)
		return
	}

	_ = json.NewEncoder(w).Encode(resp)
}
