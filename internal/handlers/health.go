package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	applog "prepcost/internal/log"
)

const healthPingTimeout = 2 * time.Second

var errNoDatabase = errors.New("engine has no database")

type healthResponse struct {
	Status   string    `json:"status"`
	Database string    `json:"database"`
	Time     time.Time `json:"time"`
}

// Health reports whether the costing engine can reach its store. Without a
// configured engine it still answers ok so liveness checks pass during boot.
func Health(w http.ResponseWriter, r *http.Request) {
	applog.Debug(r.Context(), "health check requested", "method", r.Method)
	resp := healthResponse{
		Status:   "ok",
		Database: "unconfigured",
		Time:     time.Now().UTC(),
	}
	status := http.StatusOK

	if engine != nil {
		resp.Database = "ok"
		if err := pingStore(r.Context()); err != nil {
			applog.Error(r.Context(), "health check could not reach the store", "error", err)
			resp.Status = "degraded"
			resp.Database = "unavailable"
			status = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, status, resp)
}

func pingStore(ctx context.Context) error {
	gdb := engine.Store().DB()
	if gdb == nil {
		return errNoDatabase
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}
