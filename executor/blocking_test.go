// File: executor/blocking_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package executor

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prettynatty/bastion/api"
	"github.com/prettynatty/bastion/config"
	"github.com/prettynatty/bastion/proc"
)

func TestBlocking_SubmitBlockingCompletes(t *testing.T) {
	p := newTestPool(t, nil)

	var ran atomic.Bool
	h, err := p.SubmitBlocking(proc.Blocking(func() { ran.Store(true) }))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitDone(t, h, 5*time.Second)
	if got := h.State(); got != api.ProcCompleted {
		t.Fatalf("state = %v, want completed", got)
	}
	if !ran.Load() {
		t.Fatal("blocking proc did not run")
	}
	s := p.Stats().Blocking
	if s.Spawned == 0 || s.Completed == 0 {
		t.Fatalf("blocking stats = %+v, want spawned and completed > 0", s)
	}
}

func TestBlocking_ThreadReuse(t *testing.T) {
	p := newTestPool(t, func(c *config.Config) {
		c.BlockingPoolMax = 1
	})

	for i := 0; i < 5; i++ {
		h, err := p.SubmitBlocking(proc.Blocking(func() {}))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		waitDone(t, h, 5*time.Second)
	}
	s := p.Stats().Blocking
	if s.Spawned != 1 {
		t.Fatalf("spawned %d threads for sequential procs, want 1", s.Spawned)
	}
	if s.Completed != 5 {
		t.Fatalf("completed = %d, want 5", s.Completed)
	}
}

func TestBlocking_CeilingQueueAndBackpressure(t *testing.T) {
	p := newTestPool(t, func(c *config.Config) {
		c.BlockingPoolMax = 2
		c.BlockingQueueCap = 2
	})

	gate := make(chan struct{})
	var running []api.Handle
	for i := 0; i < 2; i++ {
		h, err := p.SubmitBlocking(proc.Blocking(func() { <-gate }))
		if err != nil {
			t.Fatalf("submit holder %d: %v", i, err)
		}
		running = append(running, h)
	}
	if got := p.Stats().Blocking.Threads; got != 2 {
		t.Fatalf("threads = %d, want 2 at the ceiling", got)
	}

	var queuedRan atomic.Int64
	var queued []api.Handle
	for i := 0; i < 2; i++ {
		h, err := p.SubmitBlocking(proc.Blocking(func() { queuedRan.Add(1) }))
		if err != nil {
			t.Fatalf("submit queued %d: %v", i, err)
		}
		queued = append(queued, h)
	}
	if got := p.Stats().Blocking.Pending; got != 2 {
		t.Fatalf("pending = %d, want 2", got)
	}

	if _, err := p.SubmitBlocking(proc.Blocking(func() {})); !errors.Is(err, api.ErrBlockingQueueFull) {
		t.Fatalf("overflow err = %v, want ErrBlockingQueueFull", err)
	}
	if got := p.Stats().Blocking.Rejected; got != 1 {
		t.Fatalf("rejected = %d, want 1", got)
	}

	close(gate)
	for _, h := range append(running, queued...) {
		waitDone(t, h, 5*time.Second)
	}
	if got := queuedRan.Load(); got != 2 {
		t.Fatalf("queued procs ran %d times, want 2", got)
	}
}

func TestBlocking_QueueIsFIFO(t *testing.T) {
	p := newTestPool(t, func(c *config.Config) {
		c.BlockingPoolMax = 1
		c.BlockingQueueCap = 16
	})

	gate := make(chan struct{})
	first, err := p.SubmitBlocking(proc.Blocking(func() { <-gate }))
	if err != nil {
		t.Fatalf("submit holder: %v", err)
	}

	var (
		mu    sync.Mutex
		order []int
	)
	var queued []api.Handle
	for i := 0; i < 4; i++ {
		i := i
		h, err := p.SubmitBlocking(proc.Blocking(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
		if err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
		queued = append(queued, h)
	}

	close(gate)
	waitDone(t, first, 5*time.Second)
	for _, h := range queued {
		waitDone(t, h, 5*time.Second)
	}

	mu.Lock()
	defer mu.Unlock()
	for i, got := range order {
		if got != i {
			t.Fatalf("execution order %v, want ascending", order)
		}
	}
}

func TestBlocking_MidFlightReroute(t *testing.T) {
	p := newTestPool(t, nil)

	var ran atomic.Bool
	h, err := p.Submit(proc.Blocking(func() { ran.Store(true) }))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitDone(t, h, 5*time.Second)
	if got := h.State(); got != api.ProcCompleted {
		t.Fatalf("state = %v, want completed", got)
	}
	if !ran.Load() {
		t.Fatal("rerouted proc did not run")
	}
	waitFor(t, 2*time.Second, func() bool {
		return p.Stats().Blocking.Completed == 1
	}, "proc completed on the blocking pool")
}

func TestBlocking_CancelQueuedNeverRuns(t *testing.T) {
	p := newTestPool(t, func(c *config.Config) {
		c.BlockingPoolMax = 1
	})

	gate := make(chan struct{})
	holder, err := p.SubmitBlocking(proc.Blocking(func() { <-gate }))
	if err != nil {
		t.Fatalf("submit holder: %v", err)
	}

	var ran atomic.Bool
	victim, err := p.SubmitBlocking(proc.Blocking(func() { ran.Store(true) }))
	if err != nil {
		t.Fatalf("submit victim: %v", err)
	}
	victim.Cancel()
	waitDone(t, victim, 2*time.Second)
	if !errors.Is(victim.Err(), api.ErrProcCancelled) {
		t.Fatalf("err = %v, want ErrProcCancelled", victim.Err())
	}

	close(gate)
	waitDone(t, holder, 5*time.Second)
	waitFor(t, 2*time.Second, func() bool { return p.Stats().LiveProcs == 0 }, "pool drained")
	if ran.Load() {
		t.Fatal("cancelled blocking proc ran")
	}
}

func TestBlocking_IdleThreadRetires(t *testing.T) {
	p := newTestPool(t, func(c *config.Config) {
		c.BlockingIdleTimeout = config.Duration(30 * time.Millisecond)
	})

	h, err := p.SubmitBlocking(proc.Blocking(func() {}))
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitDone(t, h, 5*time.Second)

	waitFor(t, 2*time.Second, func() bool {
		return p.Stats().Blocking.Threads == 0
	}, "idle blocking thread retired")
	if got := p.Stats().Blocking.Spawned; got != 1 {
		t.Fatalf("spawned = %d, want 1", got)
	}
}

func TestBlocking_SaturatedRerouteRetriesAndInterleaves(t *testing.T) {
	p := newTestPool(t, func(c *config.Config) {
		c.BlockingPoolMax = 1
		c.BlockingQueueCap = 0 // every dispatch miss must retry, not queue
	})

	gate := make(chan struct{})
	first, err := p.SubmitBlocking(proc.Blocking(func() { <-gate }))
	if err != nil {
		t.Fatalf("submit first: %v", err)
	}
	waitFor(t, 2*time.Second, func() bool {
		return first.State() == api.ProcRunning
	}, "first blocking proc occupies the only thread")

	// The mid-flight reroute bounces off the saturated pool and retries
	// through the injector until the thread frees.
	var reran atomic.Bool
	second, err := p.Submit(proc.Blocking(func() { reran.Store(true) }))
	if err != nil {
		t.Fatalf("submit second: %v", err)
	}

	// Cooperative work keeps flowing while the retry cycles.
	var ran atomic.Int64
	handles := make([]api.Handle, 0, 32)
	for i := 0; i < 32; i++ {
		h, err := p.Submit(proc.Func(func() { ran.Add(1) }))
		if err != nil {
			t.Fatalf("submit func %d: %v", i, err)
		}
		handles = append(handles, h)
	}
	for _, h := range handles {
		waitDone(t, h, 5*time.Second)
	}
	if got := ran.Load(); got != 32 {
		t.Fatalf("cooperative procs ran %d, want 32", got)
	}
	if second.State().Terminal() {
		t.Fatalf("second blocking proc settled to %v while the pool was saturated", second.State())
	}

	close(gate)
	waitDone(t, first, 5*time.Second)
	waitDone(t, second, 5*time.Second)
	if !reran.Load() {
		t.Fatal("rerouted proc never ran after capacity freed")
	}
	if got := second.State(); got != api.ProcCompleted {
		t.Fatalf("second state = %v, want completed", got)
	}
}
