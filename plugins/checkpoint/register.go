// Package checkpoint saves results periodically while a run is in progress.
package checkpoint

import (
	"fmt"

	"github.com/example/walker_sim/hooks"
	"github.com/example/walker_sim/logging"
)

// PluginName is the registry key of the checkpoint plugin.
const PluginName = "persistence/checkpoint"

// SaveFunc writes the current results somewhere durable.
type SaveFunc func() error

// Options configure checkpoint plugin registration.
type Options struct {
	// Every is the replication interval between saves.
	Every int
	Save  SaveFunc
}

// Register registers the checkpoint plugin. Loading it installs a replication hook that
// calls Save whenever the completed replication count is a multiple of Every.
func Register(reg *hooks.Registry, opts Options) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	if opts.Every <= 0 {
		return fmt.Errorf("checkpoint interval must be positive, got %d", opts.Every)
	}
	if opts.Save == nil {
		return fmt.Errorf("checkpoint save function is required")
	}
	desc := hooks.PluginDescriptor{
		Name:        PluginName,
		Category:    hooks.PluginCategoryPersistence,
		Description: fmt.Sprintf("save results every %d replications", opts.Every),
	}
	return reg.Register(desc, func(b *hooks.PluginBroker) error {
		if b == nil {
			return fmt.Errorf("plugin broker is nil")
		}
		b.Register(hooks.TransitionReplication, func(ctx *hooks.TransitionContext) error {
			if ctx.CurrentRep%opts.Every != 0 || ctx.CurrentRep == ctx.Replications {
				return nil
			}
			if err := opts.Save(); err != nil {
				// A failed checkpoint must not stop the run.
				logging.GetLogger().Warnf("Checkpoint at replication %d failed: %v", ctx.CurrentRep, err)
				return nil
			}
			logging.GetLogger().Debugf("Checkpoint written at replication %d", ctx.CurrentRep)
			return nil
		})
		return nil
	})
}
