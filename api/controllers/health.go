package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/omnivurse/crm-eco-sub010/api/responses"
	"github.com/omnivurse/crm-eco-sub010/pkg/config"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger is the health-check surface shared by the database and redis clients.
type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-CRM-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady reports per-dependency status. A nil pinger is reported as
// skipped rather than failing readiness, so optional backends (pubsub in
// local dev) do not block deploys.
func HealthReady(cfg *config.Config, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		w.Header().Set("X-CRM-Env", cfg.App.Env)

		statuses := make(map[string]string, len(deps))
		healthy := true
		for name, dep := range deps {
			if dep == nil {
				statuses[name] = "skipped"
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				statuses[name] = "down"
				healthy = false
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "readiness check failed", err)
				}
				continue
			}
			statuses[name] = "up"
		}

		payload := map[string]any{
			"status":       "ready",
			"dependencies": statuses,
		}
		if !healthy {
			payload["status"] = "degraded"
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, payload)
			return
		}
		responses.WriteSuccess(w, payload)
	}
}
