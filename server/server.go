package server

import (
	"context"
	"fmt"
	"time"

	"github.com/example/walker_sim/control"
	"github.com/example/walker_sim/core"
	"github.com/example/walker_sim/hooks"
	"github.com/example/walker_sim/logging"
	"github.com/example/walker_sim/persist"
	"github.com/example/walker_sim/plugins/checkpoint"
	"github.com/example/walker_sim/plugins/progress"
	"github.com/example/walker_sim/registry"
	"github.com/example/walker_sim/simulator"
	"github.com/example/walker_sim/snapshot"
	"github.com/example/walker_sim/state"
	"github.com/example/walker_sim/web"
)

// Server owns every resource of one simulation process.
type Server struct {
	cfg     Config
	coord   *state.Coordinator
	region  *snapshot.Region
	ctl     *control.Server
	web     *web.WebServer
	plugins *hooks.Registry
	metrics *simulator.Metrics
	entry   registry.Entry

	registered bool
}

// New validates cfg, builds the coordinator and acquires the snapshot region, control
// socket and registry line. On error everything acquired so far is released.
func New(cfg Config) (s *Server, err error) {
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}
	log := logging.GetLogger()

	coord, err := buildCoordinator(&cfg)
	if err != nil {
		return nil, err
	}
	s = &Server{cfg: cfg, coord: coord}
	defer func() {
		if err != nil {
			s.release()
			s = nil
		}
	}()

	if s.region, err = snapshot.Create(cfg.ShmDir, cfg.ShmName); err != nil {
		return s, fmt.Errorf("create snapshot region: %w", err)
	}
	coord.AddPublisher(s.region)

	if s.ctl, err = control.Listen(cfg.SocketPath, coord, coord.Done(), cfg.AcceptTimeout); err != nil {
		return s, fmt.Errorf("create control socket: %w", err)
	}

	s.entry = registry.Entry{PID: cfg.PID, Shm: cfg.ShmName, Sock: cfg.SocketPath}
	if err = registry.Append(cfg.RegistryPath, s.entry); err != nil {
		return s, err
	}
	s.registered = true

	if err = s.installPlugins(); err != nil {
		return s, err
	}

	if cfg.HTTPAddr != "" {
		s.web = web.NewWebServer(cfg.HTTPAddr, coord, coord)
		coord.AddPublisher(s.web.Bridge())
		if err = s.web.Start(); err != nil {
			return s, err
		}
	}
	if cfg.MetricsInterval > 0 {
		s.metrics = simulator.NewMetrics(cfg.MetricsInterval)
	}

	done, total := coord.Progress()
	log.Infof("Server ready: pid %d, shm %s, socket %s, %d/%d replications",
		cfg.PID, s.region.Path(), cfg.SocketPath, done, total)
	return s, nil
}

func buildCoordinator(cfg *Config) (*state.Coordinator, error) {
	log := logging.GetLogger()

	if cfg.ResumeFile != "" {
		res, err := persist.Load(cfg.ResumeFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if cfg.Size != 0 && cfg.Size != res.Size() {
			return nil, invalid("size %d does not match saved run of size %d", cfg.Size, res.Size())
		}
		cfg.Size = res.Size()
		log.Infof("Resuming %s: %d replications done, %d more", cfg.ResumeFile, res.Replications, cfg.Replications)
		coord, err := state.NewFromResults(res, cfg.Replications)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		return coord, nil
	}

	var grid *core.Grid
	bounded := false
	if cfg.ObstaclesFile != "" {
		g, err := persist.LoadObstacles(cfg.ObstaclesFile)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		if cfg.Size != 0 && cfg.Size != g.Size {
			return nil, invalid("size %d does not match obstacles file of size %d", cfg.Size, g.Size)
		}
		cfg.Size = g.Size
		grid, bounded = g, true
	} else {
		g, err := core.NewGrid(cfg.Size)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		grid = g
	}
	if cfg.Size > snapshot.MaxDim {
		log.Warnf("World size %d exceeds viewer capacity %d; viewers see the top-left %dx%d cells",
			cfg.Size, snapshot.MaxDim, snapshot.MaxDim, snapshot.MaxDim)
	}
	coord, err := state.New(state.Config{
		Grid:          grid,
		Probabilities: cfg.Probabilities,
		Bounded:       bounded,
		Replications:  cfg.Replications,
		MaxSteps:      cfg.MaxSteps,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if !cfg.Probabilities.Valid() {
		log.Warnf("Probabilities %s do not sum to 1, using %s", cfg.Probabilities, coord.Probabilities())
	}
	return coord, nil
}

func (s *Server) installPlugins() error {
	s.plugins = hooks.NewRegistry(nil)
	names := []string{progress.PluginName}
	if err := progress.Register(s.plugins, progress.Options{}); err != nil {
		return err
	}
	if s.cfg.CheckpointEvery > 0 {
		if err := checkpoint.Register(s.plugins, checkpoint.Options{Every: s.cfg.CheckpointEvery, Save: s.save}); err != nil {
			return err
		}
		names = append(names, checkpoint.PluginName)
	}
	if err := s.plugins.Load(names); err != nil {
		return err
	}
	s.coord.SetBroker(s.plugins.Broker())
	return nil
}

// Coordinator exposes the shared state, mainly for tests and embedding.
func (s *Server) Coordinator() *state.Coordinator { return s.coord }

// Config returns the validated configuration.
func (s *Server) Config() Config { return s.cfg }

// Plugins lists the loaded plugins.
func (s *Server) Plugins() []hooks.PluginDescriptor { return s.plugins.Broker().ListAllPlugins() }

// Run drives the simulation to completion or until ctx is cancelled, then shuts down:
// every goroutine is joined before the region and socket are released.
func (s *Server) Run(ctx context.Context) error {
	log := logging.GetLogger()
	s.ctl.Start()

	if s.cfg.WaitViewer {
		log.Infof("Waiting for a viewer on %s", s.cfg.SocketPath)
		select {
		case <-s.ctl.FirstViewer():
		case <-ctx.Done():
			s.coord.Finish()
			return s.shutdown(ctx.Err())
		}
	}

	engine := simulator.NewEngine(s.coord, simulator.EngineConfig{
		Workers: s.cfg.Workers,
		Seed:    s.cfg.Seed,
		Metrics: s.metrics,
	})
	log.Debugf("Engine seed %d", engine.Seed())
	ticker := simulator.NewTicker(s.coord, s.cfg.TickInterval, s.cfg.TickBudget, engine.Seed())
	runner := simulator.NewRunner(engine, ticker)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	runner.Start(runCtx)

	var cause error
	select {
	case <-s.coord.Done():
		if s.cfg.Grace > 0 {
			log.Infof("Simulation finished, shutting down in %s", s.cfg.Grace)
			timer := time.NewTimer(s.cfg.Grace)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
	case <-ctx.Done():
		log.Warnf("Interrupted, stopping simulation")
		cause = ctx.Err()
		s.coord.Finish()
	}
	cancel()
	if err := runner.Wait(); err != nil && err != context.Canceled {
		log.Errorf("Engine stopped with error: %v", err)
		if cause == nil {
			cause = err
		}
	}
	return s.shutdown(cause)
}

func (s *Server) shutdown(cause error) error {
	log := logging.GetLogger()
	s.coord.Finish()
	s.ctl.Shutdown()
	if s.web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := s.web.Shutdown(ctx); err != nil {
			log.Warnf("Web shutdown: %v", err)
		}
		cancel()
	}

	var saveErr error
	if s.cfg.OutputFile != "" {
		if saveErr = s.save(); saveErr != nil {
			log.Errorf("Saving results failed: %v", saveErr)
		} else {
			log.Infof("Results saved to %s", s.cfg.OutputFile)
		}
	}
	s.release()

	done, total := s.coord.Progress()
	log.Infof("Server stopped after %d/%d replications", done, total)
	if cause != nil {
		return cause
	}
	return saveErr
}

func (s *Server) save() error {
	return persist.Save(s.cfg.OutputFile, s.coord.Results())
}

// release frees the region, socket and registry line in reverse acquisition order.
// It is safe to call on a partially built server.
func (s *Server) release() {
	log := logging.GetLogger()
	if s.web != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		s.web.Shutdown(ctx)
		cancel()
	}
	if s.registered {
		if err := registry.Remove(s.cfg.RegistryPath, s.entry.PID); err != nil {
			log.Warnf("Registry cleanup: %v", err)
		}
		s.registered = false
	}
	if s.ctl != nil {
		s.ctl.Shutdown()
	}
	if s.region != nil {
		if err := s.region.Close(); err != nil {
			log.Warnf("Unmap snapshot region: %v", err)
		}
		if err := s.region.Unlink(); err != nil {
			log.Warnf("Remove snapshot region: %v", err)
		}
	}
}
