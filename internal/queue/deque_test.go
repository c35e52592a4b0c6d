package queue

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestDeque_OwnerLIFO(t *testing.T) {
	rec := NewReclaimer[int]()
	d := NewDeque[int](8, rec)

	vals := make([]int, 100)
	for i := range vals {
		vals[i] = i
		d.PushBottom(&vals[i])
	}
	if got := d.Len(); got != 100 {
		t.Fatalf("Len = %d, want 100", got)
	}
	for i := 99; i >= 0; i-- {
		p, ok := d.PopBottom()
		if !ok {
			t.Fatalf("PopBottom empty at %d", i)
		}
		if *p != i {
			t.Fatalf("PopBottom = %d, want %d", *p, i)
		}
	}
	if _, ok := d.PopBottom(); ok {
		t.Errorf("PopBottom on empty deque returned an item")
	}
}

func TestDeque_StealOldestFirst(t *testing.T) {
	rec := NewReclaimer[int]()
	d := NewDeque[int](8, rec)
	pin := rec.Register()
	defer rec.Unregister(pin)

	vals := make([]int, 50)
	for i := range vals {
		vals[i] = i
		d.PushBottom(&vals[i])
	}
	rec.PinEpoch(pin)
	defer rec.UnpinEpoch(pin)
	for i := 0; i < 50; i++ {
		p, ok := d.Steal()
		if !ok {
			t.Fatalf("Steal empty at %d", i)
		}
		if *p != i {
			t.Fatalf("Steal = %d, want %d (FIFO from the top)", *p, i)
		}
	}
	if _, ok := d.Steal(); ok {
		t.Errorf("Steal on empty deque returned an item")
	}
}

func TestDeque_StealBatchInto(t *testing.T) {
	rec := NewReclaimer[int]()
	victim := NewDeque[int](8, rec)
	dst := NewDeque[int](8, rec)
	pin := rec.Register()
	defer rec.Unregister(pin)

	vals := make([]int, 100)
	for i := range vals {
		vals[i] = i
		victim.PushBottom(&vals[i])
	}

	rec.PinEpoch(pin)
	first, moved := victim.StealBatchInto(dst, 16)
	rec.UnpinEpoch(pin)

	if first == nil || *first != 0 {
		t.Fatalf("first stolen = %v, want 0", first)
	}
	if moved != 16 {
		t.Fatalf("moved = %d, want 16", moved)
	}
	if got := dst.Len(); got != 15 {
		t.Errorf("dst.Len = %d, want 15", got)
	}
	if got := victim.Len(); got != 84 {
		t.Errorf("victim.Len = %d, want 84", got)
	}
}

// TestDeque_LastElementRace drives the single-element arbitration: exactly
// one of the owner pop and the concurrent stealers may win each round.
func TestDeque_LastElementRace(t *testing.T) {
	rec := NewReclaimer[int]()
	d := NewDeque[int](2, rec)

	const rounds = 2000
	vals := make([]int, rounds)

	for iter := 0; iter < rounds; iter++ {
		vals[iter] = iter
		d.PushBottom(&vals[iter])

		var winners atomic.Int32
		start := make(chan struct{})
		var wg sync.WaitGroup

		for s := 0; s < 3; s++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				pin := rec.Register()
				defer rec.Unregister(pin)
				<-start
				rec.PinEpoch(pin)
				if _, ok := d.Steal(); ok {
					winners.Add(1)
				}
				rec.UnpinEpoch(pin)
			}()
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, ok := d.PopBottom(); ok {
				winners.Add(1)
			}
		}()

		close(start)
		wg.Wait()

		if got := winners.Load(); got != 1 {
			t.Fatalf("round %d: %d winners, want exactly 1", iter, got)
		}
		if got := d.Len(); got != 0 {
			t.Fatalf("round %d: residual depth %d", iter, got)
		}
	}
}

// TestDeque_OwnerStealerStress mixes owner push/pop with concurrent
// stealers over a deque that starts tiny, forcing repeated ring growth
// through the epoch reclaimer. Every item must be consumed exactly once.
func TestDeque_OwnerStealerStress(t *testing.T) {
	const total = 200000
	const stealers = 4

	rec := NewReclaimer[int]()
	d := NewDeque[int](8, rec)

	vals := make([]int, total)
	seen := make([]atomic.Int32, total)
	var consumed atomic.Int64

	consume := func(p *int) {
		if seen[*p].Add(1) != 1 {
			t.Errorf("item %d consumed more than once", *p)
		}
		consumed.Add(1)
	}

	var wg sync.WaitGroup
	for s := 0; s < stealers; s++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pin := rec.Register()
			defer rec.Unregister(pin)
			for consumed.Load() < total {
				rec.PinEpoch(pin)
				p, ok := d.Steal()
				rec.UnpinEpoch(pin)
				if ok {
					consume(p)
				} else {
					runtime.Gosched()
				}
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < total; i++ {
			vals[i] = i
			d.PushBottom(&vals[i])
			if i%3 == 2 {
				if p, ok := d.PopBottom(); ok {
					consume(p)
				}
			}
		}
		// Drain what the stealers left behind. Once empty the deque
		// stays empty: the owner is the only producer.
		for {
			p, ok := d.PopBottom()
			if !ok {
				break
			}
			consume(p)
		}
	}()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if got := consumed.Load(); got != total {
			t.Errorf("consumed %d items, want %d", got, total)
		}
		rec.Collect()
		if got := rec.LimboLen(); got != 0 {
			t.Errorf("limbo holds %d rings after Collect with no pins", got)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("Timeout. Consumed %d/%d", consumed.Load(), total)
	}
}

func TestDeque_GrowPreservesOrder(t *testing.T) {
	rec := NewReclaimer[int]()
	d := NewDeque[int](2, rec)

	vals := make([]int, 1000)
	for i := range vals {
		vals[i] = i
		d.PushBottom(&vals[i])
	}
	if d.Cap() < 1000 {
		t.Fatalf("Cap = %d after 1000 pushes", d.Cap())
	}
	for i := 999; i >= 0; i-- {
		p, ok := d.PopBottom()
		if !ok || *p != i {
			t.Fatalf("after grow: pop %d = (%v,%v), want %d", 999-i, p, ok, i)
		}
	}
}
