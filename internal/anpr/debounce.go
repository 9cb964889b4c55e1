package anpr

import "time"

// DebounceGate suppresses repeated emissions for the same plate within a
// cool-down window. A plate sitting in view across consecutive frames would
// otherwise generate dozens of duplicate events; the gate is the anti-flood
// mechanism between validation and the registry lookup.
//
// The gate is owned by the capture loop goroutine and is not safe for
// concurrent use.
type DebounceGate struct {
	cooldown    time.Duration
	lastEmitted map[string]time.Time
	lastSweep   time.Time
	now         func() time.Time // overridable for tests
}

// NewDebounceGate creates a gate with the given cool-down window.
func NewDebounceGate(cooldown time.Duration) *DebounceGate {
	return &DebounceGate{
		cooldown:    cooldown,
		lastEmitted: make(map[string]time.Time),
		now:         time.Now,
	}
}

// Observe reports whether plate should be emitted. It returns true exactly
// when the plate has no live entry or the entry's cool-down has expired, and
// records the emission timestamp in that case. Each distinct plate text has
// an independent timer.
func (g *DebounceGate) Observe(plate ValidatedPlate) bool {
	now := g.now()
	g.maybeSweep(now)

	last, seen := g.lastEmitted[plate.NormalizedText]
	if seen && now.Sub(last) < g.cooldown {
		return false
	}
	g.lastEmitted[plate.NormalizedText] = now
	return true
}

// maybeSweep evicts expired entries at most once per cool-down interval so
// the map cannot grow without bound under a stream of distinct plates.
func (g *DebounceGate) maybeSweep(now time.Time) {
	if now.Sub(g.lastSweep) < g.cooldown {
		return
	}
	g.lastSweep = now
	for text, last := range g.lastEmitted {
		if now.Sub(last) >= g.cooldown {
			delete(g.lastEmitted, text)
		}
	}
}

// Len returns the number of live entries. Used by tests and stats.
func (g *DebounceGate) Len() int { return len(g.lastEmitted) }
