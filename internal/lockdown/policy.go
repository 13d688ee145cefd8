package lockdown

import "strings"

// Key is one keyboard input as seen by the exam window.
type Key struct {
	Name  string `json:"key"`
	Ctrl  bool   `json:"ctrl,omitempty"`
	Shift bool   `json:"shift,omitempty"`
	Alt   bool   `json:"alt,omitempty"`
}

// Combo is a modifier set plus a key. Modifiers must match exactly.
type Combo struct {
	Ctrl  bool
	Shift bool
	Alt   bool
	Key   string
}

func (c Combo) matches(k Key) bool {
	return c.Ctrl == k.Ctrl && c.Shift == k.Shift && c.Alt == k.Alt &&
		strings.EqualFold(c.Key, k.Name)
}

// Policy is what the exam window refuses while lockdown is active.
type Policy struct {
	// Keys are blocked regardless of modifiers.
	Keys []string
	// Combos are blocked only with exactly these modifiers.
	Combos []Combo
	// Global are OS-level accelerators the Enforcer tries to grab.
	Global []string
}

// DefaultPolicy blocks reload, devtools, printing, new windows and the usual
// task-switch accelerators.
func DefaultPolicy() Policy {
	return Policy{
		Keys: []string{"F12", "F5", "F11", "Escape"},
		Combos: []Combo{
			{Ctrl: true, Key: "r"},
			{Ctrl: true, Key: "u"},
			{Ctrl: true, Key: "p"},
			{Ctrl: true, Key: "s"},
			{Ctrl: true, Key: "n"},
			{Ctrl: true, Key: "t"},
			{Ctrl: true, Key: "w"},
			{Ctrl: true, Shift: true, Key: "i"},
			{Ctrl: true, Shift: true, Key: "j"},
			{Alt: true, Key: "F4"},
		},
		Global: []string{
			"Alt+Tab",
			"Alt+F4",
			"CommandOrControl+Escape",
			"CommandOrControl+Shift+Escape",
			"Super",
			"PrintScreen",
		},
	}
}

// Blocks reports whether k is refused under the policy.
func (p Policy) Blocks(k Key) bool {
	for _, name := range p.Keys {
		if strings.EqualFold(name, k.Name) {
			return true
		}
	}
	for _, c := range p.Combos {
		if c.matches(k) {
			return true
		}
	}
	return false
}

// Label renders k the way it is reported in event details, e.g. "Ctrl+Shift+I".
func (k Key) Label() string {
	var b strings.Builder
	if k.Ctrl {
		b.WriteString("Ctrl+")
	}
	if k.Shift {
		b.WriteString("Shift+")
	}
	if k.Alt {
		b.WriteString("Alt+")
	}
	name := k.Name
	if len(name) == 1 {
		name = strings.ToUpper(name)
	}
	b.WriteString(name)
	return b.String()
}
