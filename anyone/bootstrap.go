// Package anyone parses the bootstrap-progress log stream of an external
// anon/Tor-style proxy process (spec §6/§8-S6). Launching and supervising
// that subprocess is out of scope (spec's "external anon subprocess"
// Non-goal); this package only consumes whatever stderr lines the caller
// feeds it and tracks the resulting state, the way contracts/ and api/
// model the rest of the daemon's external collaborators at the interface
// boundary rather than implementing them.
package anyone

import (
	"strconv"
	"strings"
	"sync"

	"github.com/nonos/nonosd/log"
)

// State is the bootstrap lifecycle state of the external proxy, as
// observed from its log output.
type State int

const (
	// StateBootstrapping is the state until a "Bootstrapped 100%" line
	// (or an explicit failure) is observed.
	StateBootstrapping State = iota
	StateReady
	StateError
)

func (s State) String() string {
	switch s {
	case StateBootstrapping:
		return "bootstrapping"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// bootstrappedMarker is the prefix anon emits before the percentage, e.g.
// "Bootstrapped 50%: Loading relay descriptors".
const bootstrappedMarker = "Bootstrapped "

// parseBootstrapProgress extracts the percentage from a "Bootstrapped N%: ..."
// line without a regex: locate the marker, take the text up to the next
// '%', and parse it as an integer 0-100.
func parseBootstrapProgress(line string) (uint8, bool) {
	start := strings.Index(line, bootstrappedMarker)
	if start < 0 {
		return 0, false
	}
	rest := line[start+len(bootstrappedMarker):]
	end := strings.IndexByte(rest, '%')
	if end < 0 {
		return 0, false
	}
	pct, err := strconv.ParseUint(strings.TrimSpace(rest[:end]), 10, 8)
	if err != nil || pct > 100 {
		return 0, false
	}
	return uint8(pct), true
}

// Tracker consumes log lines from the external anon process one at a
// time and maintains the resulting bootstrap state. Safe for concurrent
// use: ObserveLine is expected to run on the goroutine reading the
// process's stderr, while Progress/State/ErrorMessage are read from
// elsewhere (the metrics collector, the API boundary).
type Tracker struct {
	mu       sync.RWMutex
	progress uint8
	state    State
	errMsg   string
	logger   *log.Logger
}

// NewTracker creates a Tracker in the StateBootstrapping state at 0%.
func NewTracker() *Tracker {
	return &Tracker{logger: log.Default().Module("anyone")}
}

// ObserveLine inspects a single line of the anon process's stderr and
// updates progress/state accordingly. Lines that match none of the
// recognized patterns are ignored.
func (t *Tracker) ObserveLine(line string) {
	if strings.Contains(line, bootstrappedMarker) {
		if pct, ok := parseBootstrapProgress(line); ok {
			t.mu.Lock()
			t.progress = pct
			if pct >= 100 {
				t.state = StateReady
			}
			t.mu.Unlock()
			if pct >= 100 {
				t.logger.Info("anon bootstrap complete")
			}
		}
	}

	if strings.Contains(line, "[err]") || strings.Contains(line, "[warn]") {
		t.logger.Warn("anon log", "line", line)
	}

	if strings.Contains(line, "Failed") || strings.Contains(line, "fatal") {
		t.mu.Lock()
		t.state = StateError
		t.errMsg = line
		t.mu.Unlock()
		t.logger.Error("anon reported failure", "line", line)
	}
}

// Progress returns the last observed bootstrap percentage, 0-100.
func (t *Tracker) Progress() uint8 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.progress
}

// ProgressFraction returns Progress as a fraction in [0.0, 1.0], the
// form metrics.SystemMetrics.SetBootstrapProgressFunc expects.
func (t *Tracker) ProgressFraction() float64 {
	return float64(t.Progress()) / 100.0
}

// State returns the current lifecycle state.
func (t *Tracker) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// ErrorMessage returns the line that triggered StateError, or "" if the
// tracker has not observed a failure.
func (t *Tracker) ErrorMessage() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.errMsg
}

// Reset returns the tracker to its initial StateBootstrapping/0% state,
// for reuse across reconnect attempts.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progress = 0
	t.state = StateBootstrapping
	t.errMsg = ""
}
