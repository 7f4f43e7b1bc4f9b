// Package scheduler coalesces bursts of local mutations into infrequent
// persistence and sync work.
package scheduler

import (
	"sync"
	"time"
)

// DebouncerConfig holds the two quiet periods. SyncDelay is clamped to at
// least SaveDelay so a sync never observes state older than the last save.
type DebouncerConfig struct {
	// SaveDelay is the quiet period before the local-disk write fires
	// (default: 500ms).
	SaveDelay time.Duration

	// SyncDelay is the quiet period before the sync evaluation fires
	// (default: 2s).
	SyncDelay time.Duration
}

// DefaultDebouncerConfig returns sensible defaults.
func DefaultDebouncerConfig() DebouncerConfig {
	return DebouncerConfig{
		SaveDelay: 500 * time.Millisecond,
		SyncDelay: 2 * time.Second,
	}
}

// Debouncer restarts a save timer and a sync timer on every mutation; only
// the most recent pending timer fires. The callbacks must read the current
// state at fire time rather than a captured value, which is what guarantees
// the persisted state is always the one after the last mutation, even when
// a timer fires concurrently with a new mutation (the new mutation simply
// re-arms the timers and a fresh read happens again).
type Debouncer struct {
	config DebouncerConfig
	onSave func()
	onSync func()

	mu        sync.Mutex
	saveTimer *time.Timer
	syncTimer *time.Timer
	stopped   bool
}

// NewDebouncer creates a debouncer. Callbacks run on timer goroutines and
// must be safe to call concurrently with Touch.
func NewDebouncer(config DebouncerConfig, onSave, onSync func()) *Debouncer {
	def := DefaultDebouncerConfig()
	if config.SaveDelay <= 0 {
		config.SaveDelay = def.SaveDelay
	}
	if config.SyncDelay < config.SaveDelay {
		config.SyncDelay = config.SaveDelay
	}
	return &Debouncer{
		config: config,
		onSave: onSave,
		onSync: onSync,
	}
}

// Touch records that a mutation happened: both pending timers are cancelled
// and restarted.
func (d *Debouncer) Touch() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.saveTimer != nil {
		d.saveTimer.Stop()
	}
	if d.syncTimer != nil {
		d.syncTimer.Stop()
	}
	d.saveTimer = time.AfterFunc(d.config.SaveDelay, func() { d.fire(d.onSave) })
	d.syncTimer = time.AfterFunc(d.config.SyncDelay, func() { d.fire(d.onSync) })
}

// Flush cancels pending timers and runs both callbacks synchronously. Used
// at shutdown so the final state is never left unpersisted.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	d.cancelLocked()
	stopped := d.stopped
	d.mu.Unlock()
	if stopped {
		return
	}
	d.onSave()
	d.onSync()
}

// Stop discards pending timers. Further Touch calls are no-ops.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelLocked()
	d.stopped = true
}

func (d *Debouncer) fire(fn func()) {
	d.mu.Lock()
	stopped := d.stopped
	d.mu.Unlock()
	if !stopped {
		fn()
	}
}

func (d *Debouncer) cancelLocked() {
	if d.saveTimer != nil {
		d.saveTimer.Stop()
		d.saveTimer = nil
	}
	if d.syncTimer != nil {
		d.syncTimer.Stop()
		d.syncTimer = nil
	}
}
