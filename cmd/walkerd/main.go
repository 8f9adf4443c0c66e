// Command walkerd runs a random-walk simulation server that viewers attach to through a
// shared snapshot region and a control socket.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamensky/argparse"

	"github.com/example/walker_sim/core"
	"github.com/example/walker_sim/logging"
	"github.com/example/walker_sim/server"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	parser := argparse.NewParser("walkerd", "Random walk simulation server")

	size := parser.Int("s", "size", &argparse.Options{Default: 0, Help: "world size (default 10, or taken from the obstacles/resume file)"})
	reps := parser.Int("r", "replications", &argparse.Options{Default: server.DefaultReplications, Help: "replications to run (additional ones when resuming)"})
	steps := parser.Int("k", "max-steps", &argparse.Options{Default: server.DefaultMaxSteps, Help: "step budget per trial"})
	up := parser.Float("u", "up", &argparse.Options{Default: 0.25, Help: "probability of stepping up"})
	down := parser.Float("d", "down", &argparse.Options{Default: 0.25, Help: "probability of stepping down"})
	left := parser.Float("L", "left", &argparse.Options{Default: 0.25, Help: "probability of stepping left"})
	right := parser.Float("R", "right", &argparse.Options{Default: 0.25, Help: "probability of stepping right"})
	obstacles := parser.String("f", "obstacles", &argparse.Options{Help: "obstacles file; enables bounded mode"})
	resume := parser.String("l", "load", &argparse.Options{Help: "resume from a saved results file"})
	output := parser.String("o", "output", &argparse.Options{Help: "save results to this file at shutdown"})
	checkpoint := parser.Int("c", "checkpoint-every", &argparse.Options{Default: 0, Help: "also save every N replications"})
	httpAddr := parser.String("H", "http", &argparse.Options{Help: "serve the web viewer on this address, e.g. 127.0.0.1:8080"})
	workers := parser.Int("w", "workers", &argparse.Options{Default: 0, Help: "engine goroutines (default GOMAXPROCS)"})
	seed := parser.Int("S", "seed", &argparse.Options{Default: 0, Help: "random seed (0 picks one)"})
	waitViewer := parser.Flag("W", "wait-viewer", &argparse.Options{Help: "start simulating only after the first viewer connects"})
	tick := parser.String("t", "tick", &argparse.Options{Default: "300ms", Help: "visual walker tick interval"})
	grace := parser.String("g", "grace", &argparse.Options{Default: "2s", Help: "delay between finishing and shutdown"})
	logLevel := parser.String("v", "log-level", &argparse.Options{Default: "info", Help: "error, warn, info or debug"})
	registryPath := parser.String("G", "registry", &argparse.Options{Help: "server registry file"})

	if err := parser.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, parser.Usage(err))
		return 2
	}

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 2
	}
	logging.SetLogger(logging.NewLogger(level, "walkerd"))
	log := logging.GetLogger()

	tickInterval, err := time.ParseDuration(*tick)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: invalid tick interval:", err)
		return 2
	}
	graceDelay, err := time.ParseDuration(*grace)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: invalid grace period:", err)
		return 2
	}

	cfg := server.DefaultConfig()
	cfg.Size = *size
	cfg.Replications = *reps
	cfg.MaxSteps = *steps
	cfg.Probabilities = core.Probabilities{Up: *up, Down: *down, Left: *left, Right: *right}
	cfg.ObstaclesFile = *obstacles
	cfg.ResumeFile = *resume
	cfg.OutputFile = *output
	cfg.CheckpointEvery = *checkpoint
	cfg.HTTPAddr = *httpAddr
	cfg.Workers = *workers
	cfg.Seed = uint64(*seed)
	cfg.WaitViewer = *waitViewer
	cfg.TickInterval = tickInterval
	cfg.Grace = graceDelay
	if *registryPath != "" {
		cfg.RegistryPath = *registryPath
	}

	srv, err := server.New(cfg)
	if err != nil {
		log.Errorf("Startup failed: %v", err)
		if errors.Is(err, server.ErrInvalidConfig) {
			return 2
		}
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Server stopped with error: %v", err)
		return 1
	}
	return 0
}
