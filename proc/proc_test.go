package proc

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/prettynatty/bastion/api"
)

func TestFuncCompletesInOnePoll(t *testing.T) {
	ran := false
	p := Func(func() { ran = true })

	if got := p.PollOnce(); got != api.PollCompleted {
		t.Fatalf("PollOnce = %v, want PollCompleted", got)
	}
	if !ran {
		t.Errorf("wrapped function did not run")
	}
	if p.AffinityHint() != api.NoAffinity {
		t.Errorf("AffinityHint = %d, want NoAffinity", p.AffinityHint())
	}
}

func TestStepsYieldsBetweenSteps(t *testing.T) {
	var got []int
	p := Steps(3, func(i int) { got = append(got, i) })

	if r := p.PollOnce(); r != api.PollYielded {
		t.Fatalf("poll 1 = %v, want PollYielded", r)
	}
	if r := p.PollOnce(); r != api.PollYielded {
		t.Fatalf("poll 2 = %v, want PollYielded", r)
	}
	if r := p.PollOnce(); r != api.PollCompleted {
		t.Fatalf("poll 3 = %v, want PollCompleted", r)
	}
	if diff := cmp.Diff([]int{0, 1, 2}, got); diff != "" {
		t.Errorf("step order mismatch (-want +got):\n%s", diff)
	}
	// Polling past completion stays terminal and runs nothing.
	if r := p.PollOnce(); r != api.PollCompleted {
		t.Errorf("poll after completion = %v, want PollCompleted", r)
	}
	if len(got) != 3 {
		t.Errorf("steps ran %d times, want 3", len(got))
	}
}

func TestStepsZeroCompletesImmediately(t *testing.T) {
	p := Steps(0, func(int) { t.Errorf("step must not run for n=0") })
	if r := p.PollOnce(); r != api.PollCompleted {
		t.Errorf("PollOnce = %v, want PollCompleted", r)
	}
}

func TestBlockingRequestsRerouteThenRuns(t *testing.T) {
	ran := false
	p := Blocking(func() { ran = true })

	if r := p.PollOnce(); r != api.PollBlockingRequested {
		t.Fatalf("poll 1 = %v, want PollBlockingRequested", r)
	}
	if ran {
		t.Fatalf("blocking body ran before reroute")
	}
	if r := p.PollOnce(); r != api.PollCompleted {
		t.Fatalf("poll 2 = %v, want PollCompleted", r)
	}
	if !ran {
		t.Errorf("blocking body never ran")
	}
}

func TestWithAffinityOverridesHint(t *testing.T) {
	p := WithAffinity(Func(func() {}), 1)
	if p.AffinityHint() != 1 {
		t.Errorf("AffinityHint = %d, want 1", p.AffinityHint())
	}
	if r := p.PollOnce(); r != api.PollCompleted {
		t.Errorf("PollOnce = %v, want PollCompleted", r)
	}
}

func TestCancelMarksProc(t *testing.T) {
	p := Func(func() {})
	if p.IsCancelled() {
		t.Fatalf("fresh proc reports cancelled")
	}
	p.Cancel()
	if !p.IsCancelled() {
		t.Errorf("IsCancelled = false after Cancel")
	}
}
