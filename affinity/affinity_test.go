package affinity

import (
	"errors"
	"testing"

	"github.com/prettynatty/bastion/api"
	"github.com/prettynatty/bastion/internal/topology"
)

func TestSetAffinitySetRejectsEmpty(t *testing.T) {
	if err := SetAffinitySet(nil); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("SetAffinitySet(nil) = %v, want ErrInvalidArgument", err)
	}
}

func TestPinnerValidation(t *testing.T) {
	p := NewPinner(topology.Discover(false))

	if err := p.Pin(-1, -1); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("Pin(-1,-1) = %v, want ErrInvalidArgument", err)
	}
	// The flat map has exactly one node; node 99 cannot exist.
	if err := p.Pin(-1, 99); !errors.Is(err, api.ErrInvalidArgument) {
		t.Errorf("Pin(-1,99) = %v, want ErrInvalidArgument", err)
	}
}

func TestPinnerGetMatchesTopology(t *testing.T) {
	topo := topology.Discover(false)
	p := NewPinner(topo)

	cpu, node, err := p.Get()
	if err != nil {
		// Platforms without a current-CPU primitive report not-supported.
		if !errors.Is(err, api.ErrNotSupported) {
			t.Fatalf("Get() = %v, want nil or ErrNotSupported", err)
		}
		return
	}
	if cpu < 0 {
		t.Errorf("Get() cpu = %d, want >= 0", cpu)
	}
	if want := topo.NodeOf(cpu); node != want {
		t.Errorf("Get() node = %d, topology says %d for cpu %d", node, want, cpu)
	}
}
