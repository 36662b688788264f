// Package sis simulates a discrete-time Susceptible-Infected-Susceptible
// epidemic on a directed network.
//
// At each step of duration Dt, every infected node recovers if a Poisson draw
// of mean Recovery*Dt is positive, and every susceptible node becomes
// infected if a Poisson draw of mean Lambda*k*Dt is positive, where k is the
// number of its infected predecessors. All the decisions of a step are taken
// from the states at the beginning of the step and applied at once.
package sis

import (
	"log/slog"
	"math"
	"math/rand"

	"github.com/leomarlo/simulate-sis-on-circle/logging"
)

// DefaultMaxSteps is the iteration cap used by DefaultConfig.
const DefaultMaxSteps = 200

// CapPolicy controls whether runs are checked against the iteration cap.
type CapPolicy int8

const (
	// CapEnforced rejects runs longer than Config.MaxSteps. It is the zero
	// value.
	CapEnforced CapPolicy = iota

	// CapIgnored runs any number of steps.
	CapIgnored
)

func (p CapPolicy) String() string {
	switch p {
	case CapEnforced:
		return "enforced"
	case CapIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// Config holds the epidemic parameters and the run limits of a Simulator.
type Config struct {
	// Lambda is the infection rate: a susceptible node with k infected
	// predecessors gets infected during a step with probability
	// 1 - exp(-Lambda*k*Dt).
	Lambda float64

	// Recovery is the recovery rate: an infected node recovers during a step
	// with probability 1 - exp(-Recovery*Dt).
	Recovery float64

	// Dt is the duration of a step. It must be positive.
	Dt float64

	// MaxSteps is the maximum number of steps a single run may take when the
	// cap is enforced.
	MaxSteps int

	// CapPolicy tells whether MaxSteps is enforced (default) or not.
	CapPolicy CapPolicy

	// Seed initializes the random stream of the simulator.
	Seed int64
}

// DefaultConfig returns a configuration with the given rates and step
// duration, and the default iteration cap.
func DefaultConfig(lambda, recovery, dt float64) Config {
	return Config{
		Lambda:   lambda,
		Recovery: recovery,
		Dt:       dt,
		MaxSteps: DefaultMaxSteps,
	}
}

// Validate returns an error wrapping ErrInvalidInput if the configuration
// cannot be used to run a simulation.
func (c Config) Validate() error {
	if math.IsNaN(c.Dt) || math.IsInf(c.Dt, 0) || c.Dt <= 0 {
		return invalidInput("dt must be positive, got %v", c.Dt)
	}
	if !isRate(c.Lambda) {
		return invalidInput("infection rate must be non-negative, got %v", c.Lambda)
	}
	if !isRate(c.Recovery) {
		return invalidInput("recovery rate must be non-negative, got %v", c.Recovery)
	}
	if c.MaxSteps < 0 {
		return invalidInput("iteration cap must be non-negative, got %d", c.MaxSteps)
	}
	if c.CapPolicy != CapEnforced && c.CapPolicy != CapIgnored {
		return invalidInput("unknown cap policy %d", c.CapPolicy)
	}
	return nil
}

func isRate(r float64) bool {
	return !math.IsNaN(r) && !math.IsInf(r, 0) && r >= 0
}

// Observer is notified after each step with the step number (starting at 1
// for the first step of the simulator), the states after the step, and the
// changes applied by the step. Observers must not retain changes nor modify
// states.
type Observer interface {
	ObserveStep(step int, states Snapshot, changes []StateChange)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(step int, states Snapshot, changes []StateChange)

func (f ObserverFunc) ObserveStep(step int, states Snapshot, changes []StateChange) {
	f(step, states, changes)
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithSource replaces the random stream seeded from Config.Seed.
func WithSource(src rand.Source) Option {
	return func(sim *Simulator) {
		sim.rng = rand.New(src)
	}
}

// WithObserver registers an observer called after every step.
func WithObserver(o Observer) Option {
	return func(sim *Simulator) {
		sim.observers = append(sim.observers, o)
	}
}

// WithLogger sets the logger used to trace runs.
func WithLogger(l *slog.Logger) Option {
	return func(sim *Simulator) {
		sim.logger = l
	}
}

// Simulator evolves the states of a network. It exclusively owns the
// network, its random stream and the recorded time series, and is not safe
// for concurrent use.
type Simulator struct {
	cfg       Config
	net       *Network
	rng       *rand.Rand
	observers []Observer
	logger    *slog.Logger

	series TimeSeries
	steps  int
}

// NewSimulator returns a simulator of the given network.
func NewSimulator(net *Network, cfg Config, opts ...Option) (*Simulator, error) {
	if net == nil || net.Topology == nil || net.States == nil {
		return nil, invalidInput("missing network")
	}
	if n, m := net.Topology.NumNodes(), net.States.Len(); n != m {
		return nil, invalidInput("topology has %d nodes but %d states are given", n, m)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	sim := &Simulator{
		cfg:    cfg,
		net:    net,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(sim)
	}
	return sim, nil
}

// Config returns the configuration of the simulator.
func (sim *Simulator) Config() Config {
	return sim.cfg
}

// Network returns the simulated network. Its states must only be modified
// through the simulator.
func (sim *Simulator) Network() *Network {
	return sim.net
}

// States returns a copy of the current node states.
func (sim *Simulator) States() Snapshot {
	return sim.net.States.Snapshot()
}

// StepsTaken returns the number of steps applied since the simulator was
// created.
func (sim *Simulator) StepsTaken() int {
	return sim.steps
}

// TimeSeries returns the series recorded by the last stored run.
//
// Important: the series is shared with the simulator and must be treated as
// read-only.
func (sim *Simulator) TimeSeries() TimeSeries {
	return sim.series
}

// Step advances the simulation by one step of duration Dt. Nodes draw their
// random number in ascending order, exactly one draw per node.
func (sim *Simulator) Step() {
	ns := sim.net.States
	for node := 0; node < ns.Len(); node++ {
		if ns.State(node) == Infected {
			if Poisson(sim.rng, sim.cfg.Recovery*sim.cfg.Dt) > 0 {
				ns.SetNext(node, Susceptible)
			}
			continue
		}
		k := sim.infectedPredecessors(node)
		if Poisson(sim.rng, sim.cfg.Lambda*float64(k)*sim.cfg.Dt) > 0 {
			ns.SetNext(node, Infected)
		}
	}
	ns.Commit()
	sim.steps++

	if len(sim.observers) == 0 {
		return
	}
	snapshot := ns.Snapshot()
	for _, o := range sim.observers {
		o.ObserveStep(sim.steps, snapshot, ns.Changes())
	}
}

// infectedPredecessors returns the sum of the committed states of the
// node's predecessors.
func (sim *Simulator) infectedPredecessors(node int) int {
	t := sim.net.Topology
	k := 0
	for _, e := range t.Prevs[node] {
		k += int(sim.net.States.State(t.Edges[e].From))
	}
	return k
}

// NumSteps returns the number of steps of a run of the given duration, that
// is floor(totalTime/Dt).
func (sim *Simulator) NumSteps(totalTime float64) (int, error) {
	if math.IsNaN(totalTime) || math.IsInf(totalTime, 0) || totalTime < 0 {
		return 0, invalidInput("total time must be a non-negative number, got %v", totalTime)
	}
	steps := math.Floor(totalTime / sim.cfg.Dt)
	if steps >= math.MaxInt32 {
		return 0, invalidInput("total time %v is too long for dt %v", totalTime, sim.cfg.Dt)
	}
	return int(steps), nil
}

// Plan returns the number of steps a run of the given duration would take,
// or the error Run would return without applying any step.
func (sim *Simulator) Plan(totalTime float64) (int, error) {
	return sim.plan(totalTime, sim.cfg.CapPolicy)
}

func (sim *Simulator) plan(totalTime float64, policy CapPolicy) (int, error) {
	numSteps, err := sim.NumSteps(totalTime)
	if err != nil {
		return 0, err
	}
	if policy == CapEnforced && numSteps > sim.cfg.MaxSteps {
		return 0, &IterationLimitError{Steps: numSteps, Limit: sim.cfg.MaxSteps}
	}
	return numSteps, nil
}

type runOptions struct {
	store     bool
	capPolicy CapPolicy
}

// RunOption configures a single run.
type RunOption func(*runOptions)

// WithoutStore disables the recording of the run. The previously recorded
// series is left untouched.
func WithoutStore() RunOption {
	return func(o *runOptions) {
		o.store = false
	}
}

// WithCapPolicy overrides the configured cap policy for a single run.
func WithCapPolicy(p CapPolicy) RunOption {
	return func(o *runOptions) {
		o.capPolicy = p
	}
}

// Run applies floor(totalTime/Dt) steps. Unless WithoutStore is given, the
// recorded series is cleared and the states after each step are appended to
// it; the series is then returned (read-only). Runs that are too long are
// rejected with an *IterationLimitError before any step is applied. Under
// CapIgnored, runs of math.MaxInt32 steps or more are still rejected, with an
// error wrapping ErrInvalidInput.
func (sim *Simulator) Run(totalTime float64, opts ...RunOption) (TimeSeries, error) {
	ro := runOptions{
		store:     true,
		capPolicy: sim.cfg.CapPolicy,
	}
	for _, opt := range opts {
		opt(&ro)
	}

	numSteps, err := sim.plan(totalTime, ro.capPolicy)
	if err != nil {
		sim.logger.Debug("run rejected", "total_time", totalTime, "error", err)
		return nil, err
	}

	sim.logger.Debug("run started",
		"steps", numSteps,
		"nodes", sim.net.States.Len(),
		"infected", sim.net.States.NumInfected(),
		"store", ro.store,
		"cap", ro.capPolicy)

	if ro.store {
		sim.series = make(TimeSeries, 0, numSteps)
	}
	for i := 0; i < numSteps; i++ {
		sim.Step()
		if ro.store {
			sim.series = append(sim.series, sim.net.States.Snapshot())
		}
	}

	sim.logger.Debug("run finished",
		"steps", numSteps,
		"infected", sim.net.States.NumInfected())

	if !ro.store {
		return nil, nil
	}
	return sim.series, nil
}
