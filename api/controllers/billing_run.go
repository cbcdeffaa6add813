package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/omnivurse/crm-eco-sub010/api/responses"
	"github.com/omnivurse/crm-eco-sub010/internal/billing"
	pkgerrors "github.com/omnivurse/crm-eco-sub010/pkg/errors"
	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
)

// BillingRunService is the run-trigger surface used by the controller.
type BillingRunService interface {
	Run(ctx context.Context) (*billing.RunResult, error)
}

type billingRunResponse struct {
	Success     bool              `json:"success"`
	Results     billing.RunResult `json:"results"`
	ProcessedAt time.Time         `json:"processedAt"`
}

// BillingRun triggers a full billing cycle. Declined charges are part of a
// successful run; only a batch read or configuration failure yields an error
// status.
func BillingRun(svc BillingRunService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeConfig, "billing engine unavailable"))
			return
		}

		result, err := svc.Run(ctx)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil {
				responses.WriteError(ctx, logg, w, typed)
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "billing run failed"))
			return
		}

		responses.WriteSuccess(w, billingRunResponse{
			Success:     true,
			Results:     *result,
			ProcessedAt: result.CompletedAt,
		})
	}
}
