// Package lockdown is the client-side exam window guard. It is advisory: the
// server never trusts it for timing or grading, it only restricts the local
// window and reports what it saw through the heartbeat channel.
package lockdown

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/labexam-backend/internal/integrity"
	"github.com/stemsi/labexam-backend/internal/model"
)

// Mode is the client-local lockdown state.
type Mode int

const (
	Inactive Mode = iota
	Active
)

func (m Mode) String() string {
	if m == Active {
		return "active"
	}
	return "inactive"
}

// Local event kinds that are reported but never flagged.
const (
	KindFocusRegained = "focus_regained"
	KindContextMenu   = "context_menu_blocked"
	KindUnenforced    = "lockdown_unenforced"
)

// ErrNotActive is returned by Exit when lockdown was not entered.
var ErrNotActive = errors.New("lockdown: not active")

// ErrAlreadyActive is returned by Enter when lockdown is already on.
var ErrAlreadyActive = errors.New("lockdown: already active")

// Options tune a Coordinator.
type Options struct {
	Policy   Policy
	Enforcer Enforcer
	Queue    *Queue
	// FlushThreshold wakes the heartbeater early once this many events are pending.
	FlushThreshold int
	Now            func() time.Time
}

// Coordinator owns the lockdown mode. Enter and Exit are the only transitions.
type Coordinator struct {
	mu       sync.Mutex
	mode     Mode
	policy   Policy
	enforcer Enforcer
	queue    *Queue
	now      func() time.Time
	log      zerolog.Logger

	threshold int
	wake      chan struct{}
}

// NewCoordinator creates an inactive Coordinator.
func NewCoordinator(opts Options, log zerolog.Logger) *Coordinator {
	if opts.Enforcer == nil {
		opts.Enforcer = NopEnforcer{}
	}
	if opts.Queue == nil {
		opts.Queue = NewQueue(DefaultQueueCapacity)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = 50
	}
	if opts.Policy.Keys == nil && opts.Policy.Combos == nil && opts.Policy.Global == nil {
		opts.Policy = DefaultPolicy()
	}
	return &Coordinator{
		policy:    opts.Policy,
		enforcer:  opts.Enforcer,
		queue:     opts.Queue,
		now:       opts.Now,
		threshold: opts.FlushThreshold,
		wake:      make(chan struct{}, 1),
		log:       log.With().Str("component", "lockdown").Logger(),
	}
}

// Mode returns the current mode.
func (c *Coordinator) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Queue exposes the pending event queue.
func (c *Coordinator) Queue() *Queue { return c.queue }

// Wake fires when the queue crosses the flush threshold.
func (c *Coordinator) Wake() <-chan struct{} { return c.wake }

// Enter restricts the window and grabs the global accelerators. Failures to
// enforce are recorded as lockdown_unenforced events, never returned.
func (c *Coordinator) Enter() error {
	c.mu.Lock()
	if c.mode == Active {
		c.mu.Unlock()
		return ErrAlreadyActive
	}
	c.mode = Active
	c.mu.Unlock()

	if err := c.enforcer.Restrict(); err != nil {
		c.unenforced("kiosk", err)
	}
	for _, acc := range c.policy.Global {
		acc := acc
		err := c.enforcer.Grab(acc, func() {
			c.Record(integrity.KindBlockedShortcut, map[string]string{"key": acc})
		})
		if err != nil {
			c.unenforced(acc, err)
		}
	}

	c.log.Info().Int("global_shortcuts", len(c.policy.Global)).Msg("Lockdown entered")
	return nil
}

// Exit releases every restriction. Pending events stay queued.
func (c *Coordinator) Exit() error {
	c.mu.Lock()
	if c.mode != Active {
		c.mu.Unlock()
		return ErrNotActive
	}
	c.mode = Inactive
	c.mu.Unlock()

	if err := c.enforcer.UngrabAll(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to release global shortcuts")
	}
	if err := c.enforcer.Release(); err != nil {
		c.log.Warn().Err(err).Msg("Failed to leave kiosk mode")
	}

	c.log.Info().Int("pending_events", c.queue.Len()).Msg("Lockdown exited")
	return nil
}

// HandleKey reports whether k must be swallowed. Blocked keys are recorded.
func (c *Coordinator) HandleKey(k Key) bool {
	if c.Mode() != Active || !c.policy.Blocks(k) {
		return false
	}
	c.Record(integrity.KindBlockedShortcut, map[string]string{"key": k.Label()})
	return true
}

// HandleClipboard records a refused copy, cut or paste. Always blocks while active.
func (c *Coordinator) HandleClipboard(op string) bool {
	if c.Mode() != Active {
		return false
	}
	c.Record(integrity.KindClipboardBlocked, map[string]string{"op": op})
	return true
}

// HandleContextMenu refuses the context menu while active.
func (c *Coordinator) HandleContextMenu() bool {
	if c.Mode() != Active {
		return false
	}
	c.Record(KindContextMenu, nil)
	return true
}

// HandleFocus records the window losing or regaining focus.
func (c *Coordinator) HandleFocus(focused bool) {
	if focused {
		c.Record(KindFocusRegained, nil)
		return
	}
	c.Record(integrity.KindFocusLost, nil)
}

// HandleDisplayChange records a change in the number of attached displays.
func (c *Coordinator) HandleDisplayChange(displays int) {
	c.Record(integrity.KindDisplayChanged, map[string]int{"displays": displays})
}

// Record queues an event of kind. Ignored while inactive.
func (c *Coordinator) Record(kind string, details any) {
	if c.Mode() != Active {
		return
	}
	ev := model.ClientEvent{Type: kind}
	if details != nil {
		if raw, err := json.Marshal(details); err == nil {
			ev.Details = raw
		}
	}
	ts := c.now().UTC()
	ev.Timestamp = &ts

	if n := c.queue.Push(ev); n >= c.threshold {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
	c.log.Debug().Str("event", kind).Msg("Lockdown event")
}

func (c *Coordinator) unenforced(what string, err error) {
	c.log.Warn().Err(err).Str("restriction", what).Msg("Lockdown restriction not enforced")
	c.Record(KindUnenforced, map[string]string{"restriction": what, "error": err.Error()})
}
