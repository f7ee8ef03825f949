package hook

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrInterrupt signals that a hook handler wants to stop further processing.
var ErrInterrupt = errors.New("hook interrupted")

// Fn is a hook handler function.
// Returns (modified data, nil) to continue, or (data, ErrInterrupt) to stop.
type Fn func(ctx context.Context, event string, data interface{}) (interface{}, error)

type entry struct {
	priority int
	fn       Fn
	name     string
}

// Center is the engine's internal event bus: services trigger hooks on
// state transitions and subscribers (audit, the ws feed publisher) react.
type Center struct {
	mu    sync.RWMutex
	hooks map[string][]*entry
}

// NewCenter creates a new hook Center.
func NewCenter() *Center {
	return &Center{hooks: make(map[string][]*entry)}
}

// Register adds a Fn for the given event with the given priority (lower runs first).
// name is used for Unregister.
func (hc *Center) Register(event string, priority int, name string, fn Fn) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	entries := hc.hooks[event]
	entries = append(entries, &entry{priority: priority, fn: fn, name: name})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	hc.hooks[event] = entries
}

// Unregister removes all hooks with the given name for the given event.
func (hc *Center) Unregister(event, name string) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	entries := hc.hooks[event]
	n := 0
	for _, e := range entries {
		if e.name != name {
			entries[n] = e
			n++
		}
	}
	hc.hooks[event] = entries[:n]
}

// Trigger executes all registered hooks for event in priority order.
// Data flows through each handler, allowing modification.
// If any handler returns ErrInterrupt, execution stops.
func (hc *Center) Trigger(ctx context.Context, event string, data interface{}) (interface{}, error) {
	hc.mu.RLock()
	entries := make([]*entry, len(hc.hooks[event]))
	copy(entries, hc.hooks[event])
	hc.mu.RUnlock()

	var err error
	for _, e := range entries {
		data, err = e.fn(ctx, event, data)
		if errors.Is(err, ErrInterrupt) {
			return data, err
		}
	}
	return data, nil
}

// ---- Engine event names ----

const (
	OnQuestCompleted = "on_quest_completed"
	OnRewardIssued   = "on_reward_issued"
	OnTierEvolved    = "on_tier_evolved"
	OnRaffleDrawn    = "on_raffle_drawn"
	OnRafflePaid     = "on_raffle_paid"
	OnRaffleClosed   = "on_raffle_closed"
)
