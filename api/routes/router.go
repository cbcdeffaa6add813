package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnivurse/crm-eco-sub010/api/controllers"
	"github.com/omnivurse/crm-eco-sub010/api/middleware"
	"github.com/omnivurse/crm-eco-sub010/pkg/config"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
)

// RouterParams carries the wiring the HTTP surface needs. PubSub and the
// idempotency store are optional; the router degrades gracefully without them.
type RouterParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               controllers.Pinger
	Redis            controllers.Pinger
	PubSub           controllers.Pinger
	IdempotencyStore middleware.IdempotencyStore
	RunService       controllers.BillingRunService
	ScheduleService  controllers.ScheduleService
}

func NewRouter(params RouterParams) http.Handler {
	cfg := params.Config
	logg := params.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"database": params.DB,
			"redis":    params.Redis,
			"pubsub":   params.PubSub,
		}))
	})

	r.Route("/internal/billing", func(r chi.Router) {
		r.Post("/run", controllers.BillingRun(params.RunService, logg))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(params.IdempotencyStore, logg))

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", controllers.ScheduleCreate(params.ScheduleService, logg))
			r.Route("/{scheduleId}", func(r chi.Router) {
				r.Get("/", controllers.ScheduleDetail(params.ScheduleService, logg))
				r.Get("/transactions", controllers.ScheduleTransactions(params.ScheduleService, logg))
				r.Post("/pause", controllers.SchedulePause(params.ScheduleService, logg))
				r.Post("/resume", controllers.ScheduleResume(params.ScheduleService, logg))
				r.Post("/cancel", controllers.ScheduleCancel(params.ScheduleService, logg))
			})
		})

		r.Get("/members/{memberId}/schedules", controllers.MemberSchedules(params.ScheduleService, logg))
	})

	return r
}
