package server

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"trafficwatch/internal/database"
	"trafficwatch/internal/jobs/runtime"
)

type healthResponse struct {
	Status    string `json:"status"`
	Instance  string `json:"instance"`
	Database  string `json:"database"`
	Instances *int   `json:"instances,omitempty"`
}

func healthz(deps Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Instance: runtime.InstanceID(), Database: "ok"}
		status := http.StatusOK

		if err := database.Ping(ctx); err != nil {
			log.Warn("Health check: database unreachable", "error", err)
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}

		if deps.Redis != nil {
			if count, err := runtime.CountActiveInstances(ctx, deps.Redis); err == nil {
				resp.Instances = &count
			} else {
				log.Warn("Health check: failed to count instances", "error", err)
			}
		}

		writeJSON(w, status, resp)
	}
}
