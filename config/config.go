// Package config provides the run configuration of the sis command. It
// supports loading from YAML files and environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/leomarlo/simulate-sis-on-circle/logging"
	"github.com/leomarlo/simulate-sis-on-circle/parser"
	"github.com/leomarlo/simulate-sis-on-circle/sis"
	"gopkg.in/yaml.v3"
)

// Output formats.
const (
	FormatCSV   = "csv"
	FormatJSONL = "jsonl"
)

// RunConfig contains all the settings of a simulation run.
type RunConfig struct {
	Network NetworkConfig `yaml:"network"`
	Model   ModelConfig   `yaml:"model"`
	Run     RunSettings   `yaml:"run"`
	Output  OutputConfig  `yaml:"output"`
	Metrics MetricsConfig `yaml:"metrics"`
	Logging LoggingConfig `yaml:"logging"`
}

// NetworkConfig describes the ring and its initial states.
type NetworkConfig struct {
	// Nodes is the number of nodes of the ring.
	Nodes int `yaml:"nodes"`

	// InitialFraction is the fraction of nodes infected at time 0. The first
	// floor(Nodes*InitialFraction) nodes are infected.
	InitialFraction float64 `yaml:"initial_fraction"`

	// InitialStatesFile, if set, points to a file of explicit initial states
	// (see package parser) and takes precedence over InitialFraction.
	InitialStatesFile string `yaml:"initial_states_file,omitempty"`
}

// ModelConfig contains the epidemic parameters.
type ModelConfig struct {
	Lambda   float64 `yaml:"lambda"`
	Recovery float64 `yaml:"recovery"`
	Dt       float64 `yaml:"dt"`

	// MaxSteps is the iteration cap of a run.
	MaxSteps int `yaml:"max_steps"`

	// EnforceCap rejects runs longer than MaxSteps.
	EnforceCap bool `yaml:"enforce_cap"`
}

// RunSettings controls a single run.
type RunSettings struct {
	TotalTime float64 `yaml:"total_time"`
	Seed      int64   `yaml:"seed"`

	// Store records the whole series before writing it. When false, steps
	// are written as they are simulated.
	Store bool `yaml:"store"`
}

// OutputConfig controls where and how the time series is written.
type OutputConfig struct {
	// Format is "csv" (default) or "jsonl".
	Format string `yaml:"format"`

	// Path is the output file. "-" writes to stdout; empty derives a file
	// name from the parameters (see BaseFilename).
	Path string `yaml:"path"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	// Textfile, if set, is the path the run metrics are written to.
	Textfile string `yaml:"textfile,omitempty"`
}

// LoggingConfig configures the command's logger.
type LoggingConfig struct {
	// Level is "debug", "info" (default), "warn" or "error".
	Level string `yaml:"level"`
}

// Default returns a RunConfig with the defaults of the reference scenario.
func Default() *RunConfig {
	return &RunConfig{
		Network: NetworkConfig{
			Nodes:           40,
			InitialFraction: 0.2,
		},
		Model: ModelConfig{
			Lambda:     0.13,
			Recovery:   0.08,
			Dt:         0.1,
			MaxSteps:   300,
			EnforceCap: true,
		},
		Run: RunSettings{
			TotalTime: 30,
			Seed:      42,
			Store:     true,
		},
		Output: OutputConfig{
			Format: FormatCSV,
			Path:   "-",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load returns the defaults overridden by the file at path (if path is not
// empty) and then by environment variables.
func Load(path string) (*RunConfig, error) {
	cfg := Default()
	if path != "" {
		fileCfg, err := LoadFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
		cfg = fileCfg
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific YAML file. Missing keys
// keep their default value.
func LoadFromFile(path string) (*RunConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration is valid.
func (c *RunConfig) Validate() error {
	if c.Network.Nodes < 1 {
		return fmt.Errorf("nodes must be positive, got %d", c.Network.Nodes)
	}
	if c.Network.InitialStatesFile == "" {
		if f := c.Network.InitialFraction; f < 0 || f > 1 {
			return fmt.Errorf("initial_fraction must be between 0 and 1, got %f", f)
		}
	}
	if err := c.SimConfig().Validate(); err != nil {
		return err
	}
	if c.Run.TotalTime < 0 {
		return fmt.Errorf("total_time must be non-negative, got %f", c.Run.TotalTime)
	}

	switch c.Output.Format {
	case FormatCSV, FormatJSONL:
	default:
		return fmt.Errorf("invalid output format: %s (valid: csv, jsonl)", c.Output.Format)
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	return nil
}

// SimConfig returns the simulator configuration.
func (c *RunConfig) SimConfig() sis.Config {
	policy := sis.CapEnforced
	if !c.Model.EnforceCap {
		policy = sis.CapIgnored
	}
	return sis.Config{
		Lambda:    c.Model.Lambda,
		Recovery:  c.Model.Recovery,
		Dt:        c.Model.Dt,
		MaxSteps:  c.Model.MaxSteps,
		CapPolicy: policy,
		Seed:      c.Run.Seed,
	}
}

// Initial returns the initial state assignment, reading the states file if
// one is configured.
func (c *RunConfig) Initial() (sis.Initial, error) {
	if c.Network.InitialStatesFile == "" {
		return sis.Fraction(c.Network.InitialFraction), nil
	}
	states, err := parser.ParseStates(c.Network.InitialStatesFile)
	if err != nil {
		return nil, fmt.Errorf("reading initial states: %w", err)
	}
	return states, nil
}

// BaseFilename returns a file name (without extension) identifying the run
// parameters, e.g. "sis_N40_lamb130_rec80_time30".
func (c *RunConfig) BaseFilename() string {
	return fmt.Sprintf("sis_N%d_lamb%d_rec%d_time%s",
		c.Network.Nodes,
		int(c.Model.Lambda*1000),
		int(c.Model.Recovery*1000),
		strconv.FormatFloat(c.Run.TotalTime, 'f', -1, 64),
	)
}

// OutputPath returns the configured output path, or the base file name with
// the format's extension if none is set.
func (c *RunConfig) OutputPath() string {
	if c.Output.Path != "" {
		return c.Output.Path
	}
	return c.BaseFilename() + "." + c.Output.Format
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *RunConfig) error {
	if v := os.Getenv("SIS_SEED"); v != "" {
		seed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid SIS_SEED: %w", err)
		}
		cfg.Run.Seed = seed
	}

	if v := os.Getenv("SIS_ENFORCE_CAP"); v != "" {
		cfg.Model.EnforceCap = v == "true" || v == "1"
	}

	if v := os.Getenv("SIS_OUTPUT_FORMAT"); v != "" {
		cfg.Output.Format = v
	}

	if v := os.Getenv("SIS_METRICS_TEXTFILE"); v != "" {
		cfg.Metrics.Textfile = v
	}

	if v := os.Getenv("SIS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
