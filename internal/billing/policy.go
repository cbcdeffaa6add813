package billing

import (
	"time"

	"github.com/omnivurse/crm-eco-sub010/pkg/config"
)

const (
	// PauseReasonMaxRetries is written verbatim to paused schedules so the
	// CRM UI and support tooling can match on it.
	PauseReasonMaxRetries = "Max payment retries exceeded"

	defaultMaxRetries        = 4
	defaultFailureMaxRetries = 4
	defaultDueBatchSize      = 100
	defaultFailureBatchSize  = 50
	defaultFirstRetryDelay   = 24 * time.Hour
	defaultFailureInterval   = 72 * time.Hour
)

// Policy carries every dunning constant the runners consult. Injecting it
// keeps the retry cadence configurable per environment and testable without
// clock tricks.
type Policy struct {
	// MaxRetries is the schedule-level attempt ceiling. Reaching it pauses
	// the schedule.
	MaxRetries int
	// BackoffDays maps retryCount-1 to the days until the next due attempt.
	// Counts past the end reuse the last entry.
	BackoffDays []int
	// FirstRetryDelay is how long after a failed charge the failure queue
	// first picks the record up.
	FirstRetryDelay time.Duration
	// FailureRetryInterval is the fixed spacing between failure-queue
	// attempts after the first.
	FailureRetryInterval time.Duration
	// FailureMaxRetries caps attempts per failure record. Exhausted records
	// stay pending but are never selected again.
	FailureMaxRetries int
	DueBatchSize      int
	FailureBatchSize  int
}

// DefaultPolicy returns the production dunning cadence.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:           defaultMaxRetries,
		BackoffDays:          []int{1, 3, 5, 7},
		FirstRetryDelay:      defaultFirstRetryDelay,
		FailureRetryInterval: defaultFailureInterval,
		FailureMaxRetries:    defaultFailureMaxRetries,
		DueBatchSize:         defaultDueBatchSize,
		FailureBatchSize:     defaultFailureBatchSize,
	}
}

// PolicyFromConfig builds a Policy from the environment-driven knobs,
// falling back to the defaults for anything unset.
func PolicyFromConfig(cfg config.BillingConfig) Policy {
	policy := DefaultPolicy()
	if cfg.MaxRetries > 0 {
		policy.MaxRetries = cfg.MaxRetries
	}
	if len(cfg.BackoffDays) > 0 {
		policy.BackoffDays = append([]int(nil), cfg.BackoffDays...)
	}
	if cfg.FailureRetryInterval > 0 {
		policy.FailureRetryInterval = cfg.FailureRetryInterval
	}
	if cfg.FailureMaxRetries > 0 {
		policy.FailureMaxRetries = cfg.FailureMaxRetries
	}
	if cfg.DueBatchSize > 0 {
		policy.DueBatchSize = cfg.DueBatchSize
	}
	if cfg.FailureBatchSize > 0 {
		policy.FailureBatchSize = cfg.FailureBatchSize
	}
	return policy
}

// BackoffFor returns the delay before the next due-schedule attempt for a
// schedule that has failed retryCount times. retryCount is the count after
// the increment, so the first failure uses BackoffDays[0].
func (p Policy) BackoffFor(retryCount int) time.Duration {
	if len(p.BackoffDays) == 0 {
		return defaultFirstRetryDelay
	}
	idx := retryCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(p.BackoffDays) {
		idx = len(p.BackoffDays) - 1
	}
	return time.Duration(p.BackoffDays[idx]) * 24 * time.Hour
}
