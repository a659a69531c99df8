package flow

import (
	"log/slog"
	"sync"
	"time"

	"github.com/dorivaldermetrio-hash/crm-sub001/internal/models"
)

// DefaultDebounceWindow is the quiet period after which a coalesced burst of
// inbound messages triggers one downstream run.
const DefaultDebounceWindow = 10 * time.Second

// debounceKey identifies one pending entry.
type debounceKey struct {
	contactID string
	channel   models.Channel
}

// runState serializes jobs for one key. refs counts fired jobs holding or
// waiting on the lock so the entry can be reclaimed once the last finishes.
type runState struct {
	sync.Mutex
	refs int
}

// Debouncer coalesces bursts of inbound messages per (contact, channel) key
// into a single job run. Each Schedule call during the window replaces the
// pending job and restarts the window: last message wins, earlier content is
// superseded, not merged. Jobs for the same key never interleave; a new
// arrival during an in-flight run waits for it to finish.
type Debouncer struct {
	window time.Duration

	mu      sync.Mutex
	pending map[debounceKey]*time.Timer
	running map[debounceKey]*runState
}

// NewDebouncer creates a debouncer with the given quiet window.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window:  window,
		pending: make(map[debounceKey]*time.Timer),
		running: make(map[debounceKey]*runState),
	}
}

// Schedule registers job to run after the quiet window elapses with no
// further calls for the same key. A job error is logged and does not re-arm
// the timer; the next inbound message is the only retry trigger.
func (d *Debouncer) Schedule(contactID string, channel models.Channel, job func() error) {
	key := debounceKey{contactID: contactID, channel: channel}

	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.pending[key]; ok {
		timer.Stop()
		slog.Debug("Debouncer.Schedule: window restarted", "contactID", contactID, "channel", channel)
	}
	d.pending[key] = time.AfterFunc(d.window, func() {
		d.fire(key, job)
	})
}

// fire removes the pending entry and runs the job serialized per key. The
// key's run state is dropped once the last fired job releases it, so the
// registry does not grow with every key ever seen.
func (d *Debouncer) fire(key debounceKey, job func() error) {
	d.mu.Lock()
	delete(d.pending, key)
	rs, ok := d.running[key]
	if !ok {
		rs = &runState{}
		d.running[key] = rs
	}
	rs.refs++
	d.mu.Unlock()

	rs.Lock()
	if err := job(); err != nil {
		slog.Error("Debouncer.fire: job failed", "error", err, "contactID", key.contactID, "channel", key.channel)
	}
	rs.Unlock()

	d.mu.Lock()
	rs.refs--
	if rs.refs == 0 {
		delete(d.running, key)
	}
	d.mu.Unlock()
}

// Cancel drops a pending entry without running it.
func (d *Debouncer) Cancel(contactID string, channel models.Channel) {
	key := debounceKey{contactID: contactID, channel: channel}
	d.mu.Lock()
	defer d.mu.Unlock()
	if timer, ok := d.pending[key]; ok {
		timer.Stop()
		delete(d.pending, key)
	}
}

// PendingCount reports how many entries are armed, for introspection and
// tests.
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
