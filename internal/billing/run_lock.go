package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	pkgerrors "github.com/omnivurse/crm-eco-sub010/pkg/errors"
)

const defaultRunLockTTL = time.Hour

// runner is the engine surface the lock wraps.
type runner interface {
	Run(ctx context.Context) (*RunResult, error)
}

// runLockStore is the slice of the Redis client the run lock uses.
type runLockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// LockedRunnerParams group dependencies for the run-level lock.
type LockedRunnerParams struct {
	Runner runner
	Store  runLockStore
	Key    string
	// TTL bounds how long a crashed holder blocks the next run.
	TTL time.Duration
}

// LockedRunner serializes billing runs across processes with a Redis
// SETNX marker, so the scheduled worker and a manual trigger can never
// charge the same batch twice.
type LockedRunner struct {
	inner runner
	store runLockStore
	key   string
	ttl   time.Duration
}

// NewLockedRunner wraps a runner with the cross-process run lock.
func NewLockedRunner(params LockedRunnerParams) (*LockedRunner, error) {
	if params.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if params.Store == nil {
		return nil, errors.New("lock store is required")
	}
	if params.Key == "" {
		return nil, errors.New("lock key is required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultRunLockTTL
	}
	return &LockedRunner{
		inner: params.Runner,
		store: params.Store,
		key:   params.Key,
		ttl:   ttl,
	}, nil
}

// Run executes one billing run while holding the marker. A run already in
// flight anywhere yields a conflict, not a second run.
func (l *LockedRunner) Run(ctx context.Context) (*RunResult, error) {
	owner := uuid.NewString()
	ok, err := l.store.SetNX(ctx, l.key, owner, l.ttl)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire run lock")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "billing run already in progress")
	}
	defer l.release(ctx, owner)

	return l.inner.Run(ctx)
}

// release frees the marker only when this run still owns it. A marker that
// expired mid-run may already belong to a newer run.
func (l *LockedRunner) release(ctx context.Context, owner string) {
	value, err := l.store.Get(ctx, l.key)
	if err != nil {
		return
	}
	if value != owner {
		return
	}
	_ = l.store.Del(ctx, l.key)
}
