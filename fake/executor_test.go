// Author: momentics <momentics@gmail.com>
// SPDX-License-Identifier: MIT

package fake

import (
	"errors"
	"testing"

	"github.com/prettynatty/bastion/api"
	"github.com/prettynatty/bastion/proc"
)

func TestSubmitRunsInline(t *testing.T) {
	f := NewExecutor()

	ran := false
	h, err := f.Submit(proc.Func(func() { ran = true }))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	// No synchronisation needed: the fake settles before returning.
	if !ran {
		t.Fatalf("proc did not run inline")
	}
	if h.State() != api.ProcCompleted || h.Err() != nil {
		t.Errorf("handle = %v/%v, want Completed/nil", h.State(), h.Err())
	}
	select {
	case <-h.Done():
	default:
		t.Errorf("Done not closed on return")
	}
}

func TestStepsAndBlockingRunInline(t *testing.T) {
	f := NewExecutor()

	sum := 0
	if _, err := f.Submit(proc.Steps(5, func(i int) { sum += i })); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sum != 10 {
		t.Errorf("sum = %d, want 10", sum)
	}

	blocked := false
	h, err := f.SubmitBlocking(proc.Blocking(func() { blocked = true }))
	if err != nil {
		t.Fatalf("SubmitBlocking: %v", err)
	}
	if !blocked || h.State() != api.ProcCompleted {
		t.Errorf("blocking proc not completed inline")
	}
}

func TestCancelledProcIsDiscarded(t *testing.T) {
	f := NewExecutor()

	p := proc.Func(func() { t.Errorf("cancelled proc was polled") })
	p.Cancel()
	h, err := f.Submit(p)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.State() != api.ProcCancelled || !errors.Is(h.Err(), api.ErrProcCancelled) {
		t.Errorf("handle = %v/%v, want Cancelled/ErrProcCancelled", h.State(), h.Err())
	}
}

func TestPanicBecomesFailedHandle(t *testing.T) {
	f := NewExecutor()

	h, err := f.Submit(proc.Func(func() { panic("boom") }))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.State() != api.ProcFailed || !errors.Is(h.Err(), api.ErrProcPanicked) {
		t.Errorf("handle = %v/%v, want Failed/ErrProcPanicked", h.State(), h.Err())
	}
	if f.Failed() != 1 {
		t.Errorf("Failed = %d, want 1", f.Failed())
	}
}

func TestMaxPollsStopsRunawayProc(t *testing.T) {
	f := NewExecutor()
	f.MaxPolls = 16

	h, err := f.Submit(yieldForever{})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if h.State() != api.ProcFailed {
		t.Errorf("state = %v, want Failed", h.State())
	}
}

func TestShutdownRejectsSubmissions(t *testing.T) {
	f := NewExecutor()
	if err := f.Shutdown(); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if _, err := f.Submit(proc.Func(func() {})); !errors.Is(err, api.ErrExecutorClosed) {
		t.Errorf("Submit after Shutdown = %v, want ErrExecutorClosed", err)
	}
}

type yieldForever struct{}

func (yieldForever) PollOnce() api.PollResult { return api.PollYielded }
func (yieldForever) AffinityHint() int        { return api.NoAffinity }
func (yieldForever) IsCancelled() bool        { return false }
