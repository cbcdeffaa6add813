package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/omnivurse/crm-eco-sub010/pkg/logger"
	"github.com/omnivurse/crm-eco-sub010/pkg/metrics"
)

// RunResult is the combined outcome of one billing run. Individual charge
// failures live inside the stats; the run itself only fails when a batch
// could not be read or the engine was misconfigured.
type RunResult struct {
	Due          RunStats  `json:"due"`
	FailureQueue RunStats  `json:"failureQueue"`
	StartedAt    time.Time `json:"startedAt"`
	CompletedAt  time.Time `json:"completedAt"`
}

// Totals returns the counters accumulated across both passes.
func (r RunResult) Totals() RunStats {
	var errs []string
	errs = append(errs, r.Due.Errors...)
	errs = append(errs, r.FailureQueue.Errors...)
	return RunStats{
		Processed:  r.Due.Processed + r.FailureQueue.Processed,
		Successful: r.Due.Successful + r.FailureQueue.Successful,
		Failed:     r.Due.Failed + r.FailureQueue.Failed,
		Skipped:    r.Due.Skipped + r.FailureQueue.Skipped,
		Errors:     errs,
	}
}

// MarshalJSON flattens the accumulated counters to the top level, keeping
// the per-pass breakdown alongside them.
func (r RunResult) MarshalJSON() ([]byte, error) {
	type plain RunResult
	totals := r.Totals()
	if totals.Errors == nil {
		totals.Errors = []string{}
	}
	return json.Marshal(struct {
		Processed  int      `json:"processed"`
		Successful int      `json:"successful"`
		Failed     int      `json:"failed"`
		Skipped    int      `json:"skipped"`
		Errors     []string `json:"errors"`
		plain
	}{totals.Processed, totals.Successful, totals.Failed, totals.Skipped, totals.Errors, plain(r)})
}

// OrchestratorParams groups dependencies for the run orchestrator.
type OrchestratorParams struct {
	DueRunner     *DueRunner
	FailureRunner *FailureRunner
	Logger        *logger.Logger
	Metrics       *metrics.BillingRunMetrics
	Now           func() time.Time
}

// Orchestrator sequences the two runner passes of a billing run: due
// schedules first, then the failure queue.
type Orchestrator struct {
	dueRunner     *DueRunner
	failureRunner *FailureRunner
	logg          *logger.Logger
	metrics       *metrics.BillingRunMetrics
	now           func() time.Time
}

// NewOrchestrator builds the run orchestrator.
func NewOrchestrator(params OrchestratorParams) (*Orchestrator, error) {
	if params.DueRunner == nil {
		return nil, errors.New("due runner is required")
	}
	if params.FailureRunner == nil {
		return nil, errors.New("failure runner is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		dueRunner:     params.DueRunner,
		failureRunner: params.FailureRunner,
		logg:          params.Logger,
		metrics:       params.Metrics,
		now:           now,
	}, nil
}

// Run executes one full billing run. The failure queue pass runs even when
// the due pass could not read its batch; the combined error reports both.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	result := &RunResult{StartedAt: o.now().UTC()}

	var runErr error

	dueStart := time.Now()
	dueStats, err := o.dueRunner.Run(ctx)
	o.observe("due", dueStats, time.Since(dueStart))
	if err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("due pass: %w", err))
	}
	result.Due = dueStats

	failureStart := time.Now()
	failureStats, err := o.failureRunner.Run(ctx)
	o.observe("failure_queue", failureStats, time.Since(failureStart))
	if err != nil {
		runErr = multierr.Append(runErr, fmt.Errorf("failure queue pass: %w", err))
	}
	result.FailureQueue = failureStats

	if runErr != nil {
		return nil, runErr
	}

	result.CompletedAt = o.now().UTC()
	logCtx := o.logg.WithFields(ctx, map[string]any{
		"processed":   result.Totals().Processed,
		"duration_ms": result.CompletedAt.Sub(result.StartedAt).Milliseconds(),
	})
	o.logg.Info(logCtx, "billing run complete")
	return result, nil
}

func (o *Orchestrator) observe(runner string, stats RunStats, duration time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.ObserveDuration(runner, duration)
	o.metrics.AddOutcomes(runner, stats.Processed, stats.Successful, stats.Failed, stats.Skipped)
}
