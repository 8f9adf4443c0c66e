// Package progress logs run progress at coarse milestones.
package progress

import (
	"fmt"
	"sync"

	"github.com/example/walker_sim/hooks"
	"github.com/example/walker_sim/logging"
)

// PluginName is the registry key of the progress plugin.
const PluginName = "instrumentation/progress"

// Options configure progress plugin registration.
type Options struct {
	// Steps is the number of milestones reported over a run; 10 reports every 10%.
	Steps int
	// Logf receives the formatted lines. Defaults to the shared logger at info level.
	Logf func(format string, args ...any)
}

// Register registers the progress plugin.
func Register(reg *hooks.Registry, opts Options) error {
	if reg == nil {
		return fmt.Errorf("registry is nil")
	}
	if opts.Steps <= 0 {
		opts.Steps = 10
	}
	if opts.Logf == nil {
		opts.Logf = func(format string, args ...any) { logging.GetLogger().Infof(format, args...) }
	}
	desc := hooks.PluginDescriptor{
		Name:        PluginName,
		Category:    hooks.PluginCategoryInstrumentation,
		Description: fmt.Sprintf("log progress in %d steps", opts.Steps),
	}
	return reg.Register(desc, func(b *hooks.PluginBroker) error {
		if b == nil {
			return fmt.Errorf("plugin broker is nil")
		}
		var mu sync.Mutex
		lastMilestone := -1
		b.RegisterBundle(desc, hooks.HookBundle{
			Replication: []hooks.TransitionHook{func(ctx *hooks.TransitionContext) error {
				if ctx.Replications <= 0 {
					return nil
				}
				m := ctx.CurrentRep * opts.Steps / ctx.Replications
				mu.Lock()
				report := m > lastMilestone
				if report {
					lastMilestone = m
				}
				mu.Unlock()
				if report {
					opts.Logf("Replication %d/%d (%d%%)", ctx.CurrentRep, ctx.Replications, ctx.CurrentRep*100/ctx.Replications)
				}
				return nil
			}},
			View: []hooks.TransitionHook{func(ctx *hooks.TransitionContext) error {
				opts.Logf("View changed: mode %d, summary %d", ctx.Mode, ctx.SummaryView)
				return nil
			}},
			Finished: []hooks.TransitionHook{func(ctx *hooks.TransitionContext) error {
				opts.Logf("Simulation finished at replication %d/%d", ctx.CurrentRep, ctx.Replications)
				return nil
			}},
		})
		return nil
	})
}
