package lockdown

import "errors"

// ErrUnsupported is returned by an Enforcer that cannot apply a restriction
// on the current platform.
var ErrUnsupported = errors.New("lockdown: not supported on this platform")

// Enforcer applies window and OS restrictions. Every method may fail; the
// Coordinator records failures and carries on.
type Enforcer interface {
	// Restrict puts the exam window into kiosk mode: fullscreen, always on
	// top, not closable, navigation and new windows denied.
	Restrict() error
	// Release undoes Restrict.
	Release() error
	// Grab intercepts one OS-level accelerator, calling onHit when pressed.
	Grab(accelerator string, onHit func()) error
	// UngrabAll releases every accelerator taken by Grab.
	UngrabAll() error
}

// NopEnforcer enforces nothing. Used by headless clients and tests.
type NopEnforcer struct{}

func (NopEnforcer) Restrict() error           { return nil }
func (NopEnforcer) Release() error            { return nil }
func (NopEnforcer) Grab(string, func()) error { return nil }
func (NopEnforcer) UngrabAll() error          { return nil }
