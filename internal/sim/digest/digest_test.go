package digest

import (
	"testing"

	"startupsim.ai/internal/sim/rng"
	"startupsim.ai/internal/sim/startup"
	"startupsim.ai/internal/sim/tuning"
	"startupsim.ai/internal/sim/world"
)

func build(seed int64) (*world.World, []*startup.Startup) {
	p := tuning.Default()
	s := rng.NewStream(seed, rng.StreamInit)
	pop := make([]*startup.Startup, 8)
	for i := range pop {
		pop[i] = startup.New(i, p, s)
	}
	return world.New(p, len(pop)), pop
}

func TestState_StableForEqualState(t *testing.T) {
	w1, p1 := build(42)
	w2, p2 := build(42)
	if a, b := State(w1, p1), State(w2, p2); a != b {
		t.Fatalf("digest mismatch: %s vs %s", a, b)
	}
}

func TestState_SensitiveToChanges(t *testing.T) {
	w, pop := build(42)
	base := State(w, pop)

	w.Step++
	if State(w, pop) == base {
		t.Fatalf("digest ignored the month counter")
	}
	w.Step--

	pop[3].PMF += 1e-12
	if State(w, pop) == base {
		t.Fatalf("digest ignored a startup field")
	}

	_, other := build(43)
	if State(w, other) == base {
		t.Fatalf("digest ignored the population")
	}
}
