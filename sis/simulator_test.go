package sis

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func newTestSimulator(t *testing.T, initial Initial, n int, cfg Config, opts ...Option) *Simulator {
	t.Helper()
	net, err := Generate(n, initial)
	if err != nil {
		t.Fatalf("Generate(): unexpected error: %s", err)
	}
	sim, err := NewSimulator(net, cfg, opts...)
	if err != nil {
		t.Fatalf("NewSimulator(): unexpected error: %s", err)
	}
	return sim
}

func TestNewSimulator_invalidInput(t *testing.T) {
	valid := DefaultConfig(0.1, 0.1, 0.1)
	net, err := Generate(3, Fraction(0.5))
	if err != nil {
		t.Fatal(err)
	}
	mismatched := &Network{Topology: Ring(4), States: NewNodeStates(make([]State, 3))}

	testCases := []struct {
		desc   string
		net    *Network
		mutate func(*Config)
	}{
		{desc: "nil network", net: nil},
		{desc: "missing states", net: &Network{Topology: Ring(3)}},
		{desc: "size mismatch", net: mismatched},
		{desc: "zero dt", net: net, mutate: func(c *Config) { c.Dt = 0 }},
		{desc: "negative dt", net: net, mutate: func(c *Config) { c.Dt = -1 }},
		{desc: "infinite dt", net: net, mutate: func(c *Config) { c.Dt = math.Inf(1) }},
		{desc: "negative lambda", net: net, mutate: func(c *Config) { c.Lambda = -0.5 }},
		{desc: "NaN lambda", net: net, mutate: func(c *Config) { c.Lambda = math.NaN() }},
		{desc: "negative recovery", net: net, mutate: func(c *Config) { c.Recovery = -0.5 }},
		{desc: "negative cap", net: net, mutate: func(c *Config) { c.MaxSteps = -1 }},
		{desc: "unknown policy", net: net, mutate: func(c *Config) { c.CapPolicy = 7 }},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := valid
			if tc.mutate != nil {
				tc.mutate(&cfg)
			}
			_, err := NewSimulator(tc.net, cfg)
			if !errors.Is(err, ErrInvalidInput) {
				t.Errorf("NewSimulator(): want ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestSimulator_Step_usesPreStepStates(t *testing.T) {
	// Infection is certain with such a rate, and infected nodes never
	// recover. Node 2 must not see node 1's new state within the same step.
	cfg := DefaultConfig(1000, 0, 1)
	sim := newTestSimulator(t, Sequence{1, 0, 0}, 3, cfg)

	sim.Step()

	if diff := cmp.Diff(Snapshot{1, 1, 0}, sim.States()); diff != "" {
		t.Errorf("Step(): mismatch (-want +got):\n%s", diff)
	}

	sim.Step()

	if diff := cmp.Diff(Snapshot{1, 1, 1}, sim.States()); diff != "" {
		t.Errorf("second Step(): mismatch (-want +got):\n%s", diff)
	}
}

func TestSimulator_Step_hugeRates(t *testing.T) {
	testCases := []struct {
		desc string
		cfg  Config
	}{
		{desc: "large infection rate", cfg: Config{Lambda: 1e18, Dt: 1, MaxSteps: 10}},
		{desc: "rate times dt overflows", cfg: Config{Lambda: math.MaxFloat64, Dt: 10, MaxSteps: 10}},
	}

	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			sim := newTestSimulator(t, Sequence{1, 0, 0}, 3, tc.cfg)

			sim.Step()

			if diff := cmp.Diff(Snapshot{1, 1, 0}, sim.States()); diff != "" {
				t.Errorf("Step(): mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSimulator_Step_recovery(t *testing.T) {
	cfg := DefaultConfig(0, 1000, 1)
	sim := newTestSimulator(t, Sequence{1, 1, 0, 1}, 4, cfg)

	sim.Step()

	if diff := cmp.Diff(Snapshot{0, 0, 0, 0}, sim.States()); diff != "" {
		t.Errorf("Step(): mismatch (-want +got):\n%s", diff)
	}
	if got := sim.StepsTaken(); got != 1 {
		t.Errorf("StepsTaken(): want 1, got %d", got)
	}
}

func TestSimulator_Step_recoveryAndInfectionInSameStep(t *testing.T) {
	// Node 0 recovers while node 1 gets infected from node 0's pre-step
	// state.
	cfg := DefaultConfig(1000, 1000, 1)
	sim := newTestSimulator(t, Sequence{1, 0, 0, 0}, 4, cfg)

	sim.Step()

	if diff := cmp.Diff(Snapshot{0, 1, 0, 0}, sim.States()); diff != "" {
		t.Errorf("Step(): mismatch (-want +got):\n%s", diff)
	}
}

func TestSimulator_Step_countsAllPredecessors(t *testing.T) {
	// Node 3 has three predecessors, only one of them infected; a draw is
	// made with mean lambda*1*dt.
	topo := NewTopology([]Edge{{0, 3}, {1, 3}, {2, 3}}, 4)
	net, err := NewNetwork(topo, Sequence{0, 1, 0, 0})
	if err != nil {
		t.Fatal(err)
	}
	sim, err := NewSimulator(net, DefaultConfig(1000, 0, 1))
	if err != nil {
		t.Fatal(err)
	}

	sim.Step()

	if diff := cmp.Diff(Snapshot{0, 1, 0, 1}, sim.States()); diff != "" {
		t.Errorf("Step(): mismatch (-want +got):\n%s", diff)
	}
}

func TestSimulator_Step_oneDrawPerNode(t *testing.T) {
	src := &countingSource{Source: rand.NewSource(3)}
	sim := newTestSimulator(t, Fraction(0.4), 5, DefaultConfig(0, 0, 0.1), WithSource(src))

	for i := 0; i < 3; i++ {
		sim.Step()
	}

	if src.n != 15 {
		t.Errorf("3 steps over 5 nodes consumed %d random values, want 15", src.n)
	}
}

func TestSimulator_Run_noRatesKeepsStates(t *testing.T) {
	initial := Sequence{1, 0, 1, 1, 0, 0}
	sim := newTestSimulator(t, initial, 6, DefaultConfig(0, 0, 0.5))

	ts, err := sim.Run(10)
	if err != nil {
		t.Fatalf("Run(): unexpected error: %s", err)
	}

	if ts.Len() != 20 {
		t.Fatalf("Run(): want 20 steps, got %d", ts.Len())
	}
	for i, s := range ts {
		if diff := cmp.Diff(Snapshot(initial), s); diff != "" {
			t.Errorf("step %d: mismatch (-want +got):\n%s", i, diff)
		}
	}
}

func TestSimulator_Run_length(t *testing.T) {
	testCases := []struct {
		totalTime float64
		dt        float64
		want      int
	}{
		{0, 0.25, 0},
		{0.2, 0.25, 0},
		{2, 0.25, 8},
		{2.3, 0.25, 9},
		{30, 0.1, 300},
		{0.3, 0.1, 2}, // 0.3/0.1 is slightly below 3
	}

	for _, tc := range testCases {
		cfg := DefaultConfig(0.5, 0.5, tc.dt)
		cfg.CapPolicy = CapIgnored
		sim := newTestSimulator(t, Fraction(0.5), 10, cfg)

		ts, err := sim.Run(tc.totalTime)
		if err != nil {
			t.Fatalf("Run(%v): unexpected error: %s", tc.totalTime, err)
		}
		if ts.Len() != tc.want {
			t.Errorf("Run(%v) with dt %v: want %d steps, got %d", tc.totalTime, tc.dt, tc.want, ts.Len())
		}
		if sim.StepsTaken() != tc.want {
			t.Errorf("StepsTaken(): want %d, got %d", tc.want, sim.StepsTaken())
		}
	}
}

func TestSimulator_Run_invalidTotalTime(t *testing.T) {
	for _, total := range []float64{-1, math.NaN(), math.Inf(1)} {
		sim := newTestSimulator(t, Fraction(0.5), 4, DefaultConfig(0.1, 0.1, 0.1))

		_, err := sim.Run(total)

		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Run(%v): want ErrInvalidInput, got %v", total, err)
		}
	}
}

func TestSimulator_Run_capExceeded(t *testing.T) {
	cfg := DefaultConfig(0.5, 0.5, 0.1)
	sim := newTestSimulator(t, Fraction(0.5), 10, cfg)
	before := sim.States()

	ts, err := sim.Run(30)

	if !errors.Is(err, ErrIterationLimitExceeded) {
		t.Fatalf("Run(): want ErrIterationLimitExceeded, got %v", err)
	}
	var limitErr *IterationLimitError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Run(): want *IterationLimitError, got %T", err)
	}
	if limitErr.Steps != 300 || limitErr.Limit != DefaultMaxSteps {
		t.Errorf("IterationLimitError: want {300 %d}, got %+v", DefaultMaxSteps, *limitErr)
	}
	if ts != nil {
		t.Errorf("Run(): want nil series, got %d steps", ts.Len())
	}
	if diff := cmp.Diff(before, sim.States()); diff != "" {
		t.Errorf("states changed by a rejected run (-want +got):\n%s", diff)
	}
	if sim.StepsTaken() != 0 {
		t.Errorf("StepsTaken(): want 0, got %d", sim.StepsTaken())
	}
}

func TestSimulator_Run_capBoundary(t *testing.T) {
	cfg := DefaultConfig(0.5, 0.5, 0.5)
	cfg.MaxSteps = 4
	sim := newTestSimulator(t, Fraction(0.5), 4, cfg)

	if _, err := sim.Run(2); err != nil {
		t.Errorf("Run() with exactly MaxSteps steps: unexpected error: %s", err)
	}
	if _, err := sim.Run(2.5); !errors.Is(err, ErrIterationLimitExceeded) {
		t.Errorf("Run() with MaxSteps+1 steps: want ErrIterationLimitExceeded, got %v", err)
	}
}

func TestSimulator_Run_capIgnored(t *testing.T) {
	cfg := DefaultConfig(0.5, 0.5, 0.1)
	cfg.MaxSteps = 10
	cfg.CapPolicy = CapIgnored
	sim := newTestSimulator(t, Fraction(0.5), 10, cfg)

	ts, err := sim.Run(3)

	if err != nil {
		t.Fatalf("Run(): unexpected error: %s", err)
	}
	if ts.Len() != 30 {
		t.Errorf("Run(): want 30 steps, got %d", ts.Len())
	}
}

func TestSimulator_Run_capIgnoredTooManySteps(t *testing.T) {
	cfg := DefaultConfig(0.5, 0.5, 1)
	cfg.CapPolicy = CapIgnored
	sim := newTestSimulator(t, Fraction(0.5), 4, cfg)
	before := sim.States()

	_, err := sim.Run(math.MaxInt32)

	if !errors.Is(err, ErrInvalidInput) {
		t.Errorf("Run(): want ErrInvalidInput, got %v", err)
	}
	if errors.Is(err, ErrIterationLimitExceeded) {
		t.Errorf("Run(): unexpected ErrIterationLimitExceeded: %v", err)
	}
	if sim.StepsTaken() != 0 {
		t.Errorf("StepsTaken(): want 0, got %d", sim.StepsTaken())
	}
	if diff := cmp.Diff(before, sim.States()); diff != "" {
		t.Errorf("States(): mismatch (-want +got):\n%s", diff)
	}
}

func TestSimulator_Run_capPolicyOverride(t *testing.T) {
	cfg := DefaultConfig(0.5, 0.5, 0.5)
	cfg.MaxSteps = 2
	sim := newTestSimulator(t, Fraction(0.5), 4, cfg)

	if _, err := sim.Run(5, WithCapPolicy(CapIgnored)); err != nil {
		t.Errorf("Run(WithCapPolicy(CapIgnored)): unexpected error: %s", err)
	}

	cfg.CapPolicy = CapIgnored
	sim = newTestSimulator(t, Fraction(0.5), 4, cfg)
	if _, err := sim.Run(5, WithCapPolicy(CapEnforced)); !errors.Is(err, ErrIterationLimitExceeded) {
		t.Errorf("Run(WithCapPolicy(CapEnforced)): want ErrIterationLimitExceeded, got %v", err)
	}
}

func TestSimulator_Plan(t *testing.T) {
	cfg := DefaultConfig(0.5, 0.5, 0.5)
	cfg.MaxSteps = 4
	sim := newTestSimulator(t, Fraction(0.5), 4, cfg)

	if got, err := sim.Plan(2); err != nil || got != 4 {
		t.Errorf("Plan(2): want (4, nil), got (%d, %v)", got, err)
	}
	if _, err := sim.Plan(3); !errors.Is(err, ErrIterationLimitExceeded) {
		t.Errorf("Plan(3): want ErrIterationLimitExceeded, got %v", err)
	}
	if sim.StepsTaken() != 0 {
		t.Errorf("Plan() applied %d steps", sim.StepsTaken())
	}
}

func TestSimulator_Run_rerunReplacesSeries(t *testing.T) {
	sim := newTestSimulator(t, Fraction(0.5), 6, DefaultConfig(0.5, 0.5, 0.25))

	first, err := sim.Run(2)
	if err != nil {
		t.Fatal(err)
	}
	if first.Len() != 8 {
		t.Fatalf("first Run(): want 8 steps, got %d", first.Len())
	}

	second, err := sim.Run(0.5)
	if err != nil {
		t.Fatal(err)
	}

	if second.Len() != 2 {
		t.Errorf("second Run(): want 2 steps, got %d", second.Len())
	}
	if sim.TimeSeries().Len() != 2 {
		t.Errorf("TimeSeries(): want 2 steps, got %d", sim.TimeSeries().Len())
	}
	if sim.StepsTaken() != 10 {
		t.Errorf("StepsTaken(): want 10, got %d", sim.StepsTaken())
	}
}

func TestSimulator_Run_withoutStore(t *testing.T) {
	sim := newTestSimulator(t, Fraction(0.5), 6, DefaultConfig(0.5, 0.5, 0.25))
	stored, err := sim.Run(1)
	if err != nil {
		t.Fatal(err)
	}
	want := stored.Clone()

	ts, err := sim.Run(2, WithoutStore())

	if err != nil {
		t.Fatalf("Run(WithoutStore()): unexpected error: %s", err)
	}
	if ts != nil {
		t.Errorf("Run(WithoutStore()): want nil series, got %d steps", ts.Len())
	}
	if diff := cmp.Diff(want, sim.TimeSeries()); diff != "" {
		t.Errorf("TimeSeries() changed by an unrecorded run (-want +got):\n%s", diff)
	}
	if sim.StepsTaken() != 12 {
		t.Errorf("StepsTaken(): want 12, got %d", sim.StepsTaken())
	}
}

func TestSimulator_Run_deterministic(t *testing.T) {
	cfg := DefaultConfig(0.8, 0.3, 0.1)
	cfg.Seed = 1234

	first, err := newTestSimulator(t, Fraction(0.2), 40, cfg).Run(20)
	if err != nil {
		t.Fatal(err)
	}
	second, err := newTestSimulator(t, Fraction(0.2), 40, cfg).Run(20)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Run() with the same seed: mismatch (-first +second):\n%s", diff)
	}
}

func TestSimulator_WithSource(t *testing.T) {
	cfg := DefaultConfig(0.8, 0.3, 0.1)
	cfg.Seed = 99

	want, err := newTestSimulator(t, Fraction(0.3), 20, cfg).Run(10)
	if err != nil {
		t.Fatal(err)
	}
	got, err := newTestSimulator(t, Fraction(0.3), 20, DefaultConfig(0.8, 0.3, 0.1),
		WithSource(rand.NewSource(99))).Run(10)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("WithSource(): mismatch (-want +got):\n%s", diff)
	}
}

func TestSimulator_Observer(t *testing.T) {
	var steps []int
	var observed TimeSeries
	changes := 0
	obs := ObserverFunc(func(step int, states Snapshot, c []StateChange) {
		steps = append(steps, step)
		observed = append(observed, append(Snapshot(nil), states...))
		changes += len(c)
	})
	sim := newTestSimulator(t, Fraction(0.5), 8, DefaultConfig(1, 1, 0.25), WithObserver(obs))

	ts, err := sim.Run(1)
	if err != nil {
		t.Fatal(err)
	}

	if diff := cmp.Diff([]int{1, 2, 3, 4}, steps); diff != "" {
		t.Errorf("observed steps: mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(ts, observed); diff != "" {
		t.Errorf("observed states: mismatch (-stored +observed):\n%s", diff)
	}

	wantChanges := 0
	initial := Snapshot{1, 1, 1, 1, 0, 0, 0, 0}
	for i := range ts {
		wantChanges += len(ts.Transitions(i, initial))
	}
	if changes != wantChanges {
		t.Errorf("observed changes: want %d, got %d", wantChanges, changes)
	}
}

func TestSimulator_properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	properties.Property("seeded runs are reproducible", prop.ForAll(
		func(n int, seed int64, lambda, recovery float64) bool {
			cfg := DefaultConfig(lambda, recovery, 0.1)
			cfg.Seed = seed
			run := func() TimeSeries {
				net, _ := Generate(n, Fraction(0.3))
				sim, _ := NewSimulator(net, cfg)
				ts, _ := sim.Run(5)
				return ts
			}
			return cmp.Equal(run(), run())
		},
		gen.IntRange(1, 50),
		gen.Int64(),
		gen.Float64Range(0, 5),
		gen.Float64Range(0, 5),
	))

	properties.Property("stored series has floor(T/dt) steps", prop.ForAll(
		func(n int, steps int) bool {
			cfg := DefaultConfig(0.5, 0.5, 0.5)
			cfg.MaxSteps = steps
			net, _ := Generate(n, Fraction(0.5))
			sim, _ := NewSimulator(net, cfg)
			ts, err := sim.Run(float64(steps) * 0.5)
			return err == nil && ts.Len() == steps && len(ts[len(ts)-1]) == n
		},
		gen.IntRange(1, 30),
		gen.IntRange(1, 100),
	))

	properties.Property("runs over the cap change nothing", prop.ForAll(
		func(n int, limit int) bool {
			cfg := DefaultConfig(2, 2, 0.5)
			cfg.MaxSteps = limit
			net, _ := Generate(n, Fraction(0.5))
			sim, _ := NewSimulator(net, cfg)
			before := sim.States()
			_, err := sim.Run(float64(limit+1) * 0.5)
			return errors.Is(err, ErrIterationLimitExceeded) &&
				cmp.Equal(before, sim.States()) &&
				sim.StepsTaken() == 0
		},
		gen.IntRange(1, 30),
		gen.IntRange(0, 100),
	))

	properties.TestingRun(t)
}
