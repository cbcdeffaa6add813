package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	pkgerrors "github.com/omnivurse/crm-eco-sub010/pkg/errors"
)

type fakeRunner struct {
	calls  int
	result *RunResult
	err    error
}

func (f *fakeRunner) Run(ctx context.Context) (*RunResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeLockStore struct {
	values  map[string]string
	setErr  error
	deleted []string
}

func newFakeLockStore() *fakeLockStore {
	return &fakeLockStore{values: map[string]string{}}
}

func (f *fakeLockStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.setErr != nil {
		return false, f.setErr
	}
	if _, ok := f.values[key]; ok {
		return false, nil
	}
	f.values[key] = value.(string)
	return true, nil
}

func (f *fakeLockStore) Get(ctx context.Context, key string) (string, error) {
	value, ok := f.values[key]
	if !ok {
		return "", redis.Nil
	}
	return value, nil
}

func (f *fakeLockStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.values, key)
		f.deleted = append(f.deleted, key)
	}
	return nil
}

func TestLockedRunner_runsAndReleases(t *testing.T) {
	store := newFakeLockStore()
	inner := &fakeRunner{result: &RunResult{}}
	locked, err := NewLockedRunner(LockedRunnerParams{
		Runner: inner,
		Store:  store,
		Key:    "crm:billing_run:test",
	})
	if err != nil {
		t.Fatalf("NewLockedRunner: %v", err)
	}

	if _, err := locked.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected one inner run, got %d", inner.calls)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "crm:billing_run:test" {
		t.Fatalf("expected marker released, got %v", store.deleted)
	}
}

func TestLockedRunner_conflictsWhenRunInFlight(t *testing.T) {
	store := newFakeLockStore()
	store.values["crm:billing_run:test"] = "someone-else"
	inner := &fakeRunner{result: &RunResult{}}
	locked, err := NewLockedRunner(LockedRunnerParams{
		Runner: inner,
		Store:  store,
		Key:    "crm:billing_run:test",
	})
	if err != nil {
		t.Fatalf("NewLockedRunner: %v", err)
	}

	_, err = locked.Run(context.Background())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if inner.calls != 0 {
		t.Fatalf("inner runner must not run without the lock, ran %d times", inner.calls)
	}
}

func TestLockedRunner_storeErrorIsDependencyError(t *testing.T) {
	store := newFakeLockStore()
	store.setErr = errors.New("redis down")
	locked, err := NewLockedRunner(LockedRunnerParams{
		Runner: &fakeRunner{},
		Store:  store,
		Key:    "crm:billing_run:test",
	})
	if err != nil {
		t.Fatalf("NewLockedRunner: %v", err)
	}

	_, err = locked.Run(context.Background())
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestLockedRunner_expiredMarkerLeftForNewOwner(t *testing.T) {
	store := newFakeLockStore()
	// The inner runner simulates the marker expiring mid-run and another
	// process acquiring it.
	steal := &stealingRunner{steal: func(context.Context) {
		store.values["crm:billing_run:test"] = "new-owner"
	}}
	locked, err := NewLockedRunner(LockedRunnerParams{
		Runner: steal,
		Store:  store,
		Key:    "crm:billing_run:test",
	})
	if err != nil {
		t.Fatalf("NewLockedRunner: %v", err)
	}

	if _, err := locked.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.values["crm:billing_run:test"] != "new-owner" {
		t.Fatalf("marker owned by another run must not be deleted")
	}
}

type stealingRunner struct {
	steal func(ctx context.Context)
}

func (s *stealingRunner) Run(ctx context.Context) (*RunResult, error) {
	s.steal(ctx)
	return &RunResult{}, nil
}
