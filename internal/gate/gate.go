// Package gate decides whether speaking is allowed right now. It stands in
// for the phone's ringer mode and do-not-disturb switch, plus optional
// quiet hours.
package gate

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// RingerMode mirrors a phone ringer switch. Only RingerNormal allows speech.
type RingerMode string

const (
	RingerNormal  RingerMode = "normal"
	RingerVibrate RingerMode = "vibrate"
	RingerSilent  RingerMode = "silent"
)

// ParseRingerMode validates a ringer mode string.
func ParseRingerMode(s string) (RingerMode, error) {
	switch m := RingerMode(strings.ToLower(strings.TrimSpace(s))); m {
	case RingerNormal, RingerVibrate, RingerSilent:
		return m, nil
	case "":
		return RingerNormal, nil
	}
	return "", fmt.Errorf("unknown ringer mode %q", s)
}

// Window is a daily local-time window "HH:MM-HH:MM". It may wrap midnight.
type Window struct {
	start, end int // minutes since midnight
	set        bool
}

// ParseWindow parses "HH:MM-HH:MM". An empty string yields an unset window.
// Start and end must differ.
func ParseWindow(s string) (Window, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Window{}, nil
	}
	from, to, ok := strings.Cut(s, "-")
	if !ok {
		return Window{}, fmt.Errorf("invalid window %q: want HH:MM-HH:MM", s)
	}
	start, err := parseClock(from)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window %q: %w", s, err)
	}
	end, err := parseClock(to)
	if err != nil {
		return Window{}, fmt.Errorf("invalid window %q: %w", s, err)
	}
	if start == end {
		return Window{}, fmt.Errorf("invalid window %q: start equals end", s)
	}
	return Window{start: start, end: end, set: true}, nil
}

// parseClock returns minutes since midnight for "HH:MM".
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("want HH:MM, got %q", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t falls inside the window. An unset window
// contains nothing.
func (w Window) Contains(t time.Time) bool {
	if !w.set {
		return false
	}
	now := t.Hour()*60 + t.Minute()
	if w.end > w.start {
		return now >= w.start && now < w.end
	}
	// Wraps midnight (e.g. 22:00-07:00).
	return now >= w.start || now < w.end
}

// String returns the window in its parse format.
func (w Window) String() string {
	if !w.set {
		return ""
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d", w.start/60, w.start%60, w.end/60, w.end%60)
}

// State is a snapshot of the gate settings.
type State struct {
	Ringer       RingerMode `json:"ringer_mode"`
	DoNotDisturb bool       `json:"do_not_disturb"`
	QuietHours   string     `json:"quiet_hours"`
}

// Gate is safe for concurrent use.
type Gate struct {
	mu     sync.RWMutex
	ringer RingerMode
	dnd    bool
	quiet  Window
}

// New creates a gate.
func New(ringer RingerMode, dnd bool, quiet Window) *Gate {
	if ringer == "" {
		ringer = RingerNormal
	}
	return &Gate{ringer: ringer, dnd: dnd, quiet: quiet}
}

// CanSpeak is false in vibrate or silent mode, with do-not-disturb on, or
// inside quiet hours.
func (g *Gate) CanSpeak(now time.Time) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.ringer != RingerNormal {
		return false
	}
	if g.dnd {
		return false
	}
	return !g.quiet.Contains(now)
}

// SetRingerMode changes the ringer mode.
func (g *Gate) SetRingerMode(m RingerMode) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ringer = m
}

// SetDoNotDisturb toggles do-not-disturb.
func (g *Gate) SetDoNotDisturb(on bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.dnd = on
}

// SetQuietHours replaces the quiet window.
func (g *Gate) SetQuietHours(w Window) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.quiet = w
}

// State returns the current settings.
func (g *Gate) State() State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return State{Ringer: g.ringer, DoNotDisturb: g.dnd, QuietHours: g.quiet.String()}
}
