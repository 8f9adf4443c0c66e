// Package server assembles the coordinator, engine, snapshot region, control socket and
// optional web viewer into one process lifecycle.
package server

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/example/walker_sim/control"
	"github.com/example/walker_sim/core"
	"github.com/example/walker_sim/registry"
	"github.com/example/walker_sim/simulator"
	"github.com/example/walker_sim/snapshot"
	"github.com/example/walker_sim/state"
)

// ErrInvalidConfig wraps every configuration error reported before startup.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultSize            = 10
	DefaultReplications    = 1000000
	DefaultMaxSteps        = 100
	DefaultGrace           = 2 * time.Second
	DefaultMetricsInterval = 5 * time.Second
)

// Config holds every startup option.
type Config struct {
	// Size is the world dimension. Zero means DefaultSize, or the size stored in the
	// obstacles/resume file.
	Size int
	// Replications is the total budget, or the additional budget when resuming.
	Replications int
	MaxSteps     int
	Probabilities core.Probabilities

	// ObstaclesFile enables bounded mode with the obstacle layout it contains.
	ObstaclesFile string
	// ResumeFile continues a saved run.
	ResumeFile string
	// OutputFile receives the results at shutdown. Empty disables saving.
	OutputFile string
	// CheckpointEvery saves to OutputFile every N replications while running.
	CheckpointEvery int

	Workers int
	Seed    uint64

	// WaitViewer delays the engine until the first control connection.
	WaitViewer   bool
	TickInterval time.Duration
	TickBudget   int
	Grace        time.Duration

	AcceptTimeout time.Duration
	HTTPAddr      string

	MetricsInterval time.Duration

	PID          int
	ShmDir       string
	ShmName      string
	SocketPath   string
	RegistryPath string
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Replications:    DefaultReplications,
		MaxSteps:        DefaultMaxSteps,
		Probabilities:   core.Uniform(),
		TickInterval:    simulator.DefaultTickInterval,
		Grace:           DefaultGrace,
		AcceptTimeout:   control.DefaultAcceptTimeout,
		MetricsInterval: DefaultMetricsInterval,
		RegistryPath:    registry.DefaultPath,
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// ValidateConfig applies structural checks to Config and populates defaults where required.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return invalid("config is nil")
	}
	if cfg.Size < 0 || cfg.Size > core.MaxGridSize {
		return invalid("size must be in 1..%d, got %d", core.MaxGridSize, cfg.Size)
	}
	if cfg.Replications <= 0 || cfg.Replications > state.MaxReplications {
		return invalid("replications must be in 1..%d, got %d", state.MaxReplications, cfg.Replications)
	}
	if cfg.ResumeFile == "" && cfg.MaxSteps <= 0 {
		return invalid("max steps must be positive, got %d", cfg.MaxSteps)
	}
	if cfg.ResumeFile != "" && cfg.ObstaclesFile != "" {
		return invalid("obstacles file cannot be combined with resume; the saved run carries its own obstacles")
	}
	p := cfg.Probabilities
	if p.Up < 0 || p.Down < 0 || p.Left < 0 || p.Right < 0 {
		return invalid("probabilities must be non-negative, got %s", p)
	}
	if cfg.CheckpointEvery < 0 {
		return invalid("checkpoint interval must be non-negative, got %d", cfg.CheckpointEvery)
	}
	if cfg.CheckpointEvery > 0 && cfg.OutputFile == "" {
		return invalid("checkpointing requires an output file")
	}
	if cfg.Grace < 0 || cfg.TickInterval < 0 || cfg.AcceptTimeout < 0 {
		return invalid("durations must be non-negative")
	}
	if cfg.Workers < 0 {
		return invalid("workers must be non-negative, got %d", cfg.Workers)
	}

	if cfg.Size == 0 && cfg.ObstaclesFile == "" && cfg.ResumeFile == "" {
		cfg.Size = DefaultSize
	}
	if cfg.PID <= 0 {
		cfg.PID = os.Getpid()
	}
	if cfg.ShmDir == "" {
		cfg.ShmDir = snapshot.DefaultDir()
	}
	if cfg.ShmName == "" {
		cfg.ShmName = fmt.Sprintf("walker_shm_%d", cfg.PID)
	}
	if cfg.SocketPath == "" {
		cfg.SocketPath = fmt.Sprintf("/tmp/walker_socket_%d", cfg.PID)
	}
	if cfg.RegistryPath == "" {
		cfg.RegistryPath = registry.DefaultPath
	}
	return nil
}
