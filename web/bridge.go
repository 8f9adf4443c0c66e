package web

import (
	"sync"

	"github.com/example/walker_sim/snapshot"
)

// Bridge turns coordinator publishes into wake-ups for the web pump. Publish runs under
// the coordinator lock, so it only flags that a newer snapshot exists.
type Bridge struct {
	mu       sync.Mutex
	headless bool
	notify   chan struct{}
}

// NewBridge constructs a bridge. A headless bridge drops every publish.
func NewBridge(headless bool) *Bridge {
	return &Bridge{
		headless: headless,
		notify:   make(chan struct{}, 1),
	}
}

// IsHeadless reports whether publishing is disabled.
func (b *Bridge) IsHeadless() bool {
	if b == nil {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.headless
}

// SetHeadless updates the headless flag.
func (b *Bridge) SetHeadless(headless bool) {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.headless = headless
	b.mu.Unlock()
}

// Publish implements state.Publisher. It never blocks.
func (b *Bridge) Publish(*snapshot.Snapshot) {
	if b.IsHeadless() {
		return
	}
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Updates delivers one token per burst of publishes.
func (b *Bridge) Updates() <-chan struct{} {
	return b.notify
}
