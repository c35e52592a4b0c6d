// File: adapters/context_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package adapters

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prettynatty/bastion/api"
	"github.com/prettynatty/bastion/config"
	"github.com/prettynatty/bastion/executor"
)

func newAdapterPool(t *testing.T) *executor.Pool {
	t.Helper()
	cfg := config.Default()
	cfg.MinWorkers = 2
	cfg.MaxWorkers = 2
	cfg.NUMAAware = false
	cfg.PinWorkers = false
	p, err := executor.New(executor.WithConfig(cfg))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = p.ShutdownWithin(5 * time.Second) })
	return p
}

// spinProc yields until released so tests can hold a proc in flight.
type spinProc struct {
	release atomic.Bool
	polls   atomic.Int32
}

func (s *spinProc) PollOnce() api.PollResult {
	s.polls.Add(1)
	if s.release.Load() {
		return api.PollCompleted
	}
	return api.PollYielded
}

func (s *spinProc) AffinityHint() int { return api.NoAffinity }
func (s *spinProc) IsCancelled() bool { return false }

func TestSubmitContextCancelsHandle(t *testing.T) {
	p := newAdapterPool(t)
	ctx, cancel := context.WithCancel(context.Background())

	sp := &spinProc{}
	h, err := SubmitContext(ctx, p, sp)
	if err != nil {
		t.Fatalf("SubmitContext: %v", err)
	}

	cancel()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("handle not settled after context cancel, state %v", h.State())
	}
	if !errors.Is(h.Err(), api.ErrProcCancelled) {
		t.Errorf("Err = %v, want ErrProcCancelled", h.Err())
	}
}

func TestSubmitContextCompletesNormally(t *testing.T) {
	p := newAdapterPool(t)

	sp := &spinProc{}
	sp.release.Store(true)
	h, err := SubmitContext(context.Background(), p, sp)
	if err != nil {
		t.Fatalf("SubmitContext: %v", err)
	}

	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("proc did not complete")
	}
	if h.Err() != nil {
		t.Errorf("Err = %v, want nil", h.Err())
	}
}

func TestHandleContextCarriesOutcome(t *testing.T) {
	p := newAdapterPool(t)

	sp := &spinProc{}
	h, err := p.Submit(sp)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, stop := HandleContext(context.Background(), h)
	defer stop()

	sp.release.Store(true)
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("context not cancelled after proc settled")
	}
	if cause := context.Cause(ctx); !errors.Is(cause, context.Canceled) {
		t.Errorf("Cause = %v, want context.Canceled for a clean finish", cause)
	}
}

func TestHandleContextStopReleasesWatcher(t *testing.T) {
	p := newAdapterPool(t)

	sp := &spinProc{}
	h, err := p.Submit(sp)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	ctx, stop := HandleContext(context.Background(), h)
	stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatalf("stop did not cancel the derived context")
	}

	// The handle itself is unaffected by stop.
	if h.State() == api.ProcCancelled {
		t.Errorf("stop cancelled the handle")
	}
	sp.release.Store(true)
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("proc did not finish after release")
	}
}

func TestWaitReturnsProcError(t *testing.T) {
	p := newAdapterPool(t)

	sp := &spinProc{}
	sp.release.Store(true)
	h, err := p.Submit(sp)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := Wait(context.Background(), h); err != nil {
		t.Errorf("Wait = %v, want nil", err)
	}
}

func TestWaitHonoursContextDeadline(t *testing.T) {
	p := newAdapterPool(t)

	sp := &spinProc{}
	h, err := p.Submit(sp)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	defer func() {
		sp.release.Store(true)
		<-h.Done()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := Wait(ctx, h); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait = %v, want DeadlineExceeded", err)
	}
}
