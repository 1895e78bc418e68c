// Package status defines replication activity levels, modes and status
// snapshots shared by the protocol engine and the replication controller.
package status

import (
	"fmt"
	"strings"

	"github.com/roach88/peersync/internal/syncerr"
)

// ActivityLevel describes how engaged a replication session is. Levels are
// ordered by escalation of engagement, not by recency.
type ActivityLevel int32

const (
	// Stopped is terminal: a stopped engine never becomes active again.
	Stopped ActivityLevel = iota
	Offline
	Connecting
	Idle
	Busy
)

var levelNames = [...]string{"stopped", "offline", "connecting", "idle", "busy"}

// String returns the lowercase level name.
func (l ActivityLevel) String() string {
	if l < Stopped || l > Busy {
		return fmt.Sprintf("level(%d)", int32(l))
	}
	return levelNames[l]
}

// MarshalText renders the level by name in JSON and YAML output.
func (l ActivityLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// CanTransition reports whether an engine may move from one level to
// another. Any level may stop; Stopped is terminal; Idle and Busy alternate
// freely while a session is connected.
func CanTransition(from, to ActivityLevel) bool {
	if from == Stopped {
		return false
	}
	if to == Stopped || from == to {
		return true
	}
	switch from {
	case Offline:
		return to == Connecting
	case Connecting:
		return to == Offline || to == Idle || to == Busy
	case Idle:
		return to == Busy || to == Offline
	case Busy:
		return to == Idle || to == Offline
	}
	return false
}

// Mode is the replication mode of one direction (push or pull).
type Mode int

const (
	// Disabled turns the direction off.
	Disabled Mode = iota

	// Passive answers the peer's requests but never initiates.
	Passive

	// OneShot transfers once and then stops.
	OneShot

	// Continuous keeps transferring until stopped.
	Continuous
)

var modeNames = [...]string{"disabled", "passive", "one-shot", "continuous"}

// String returns the mode name as accepted by ParseMode.
func (m Mode) String() string {
	if m < Disabled || m > Continuous {
		return fmt.Sprintf("mode(%d)", int(m))
	}
	return modeNames[m]
}

// IsActive reports whether the direction initiates transfers.
func (m Mode) IsActive() bool {
	return m == OneShot || m == Continuous
}

// ParseMode converts a mode name (case-insensitive) to a Mode.
// "oneshot" is accepted as an alias of "one-shot".
func ParseMode(name string) (Mode, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "oneshot" {
		return OneShot, nil
	}
	for i, n := range modeNames {
		if n == name {
			return Mode(i), nil
		}
	}
	return Disabled, fmt.Errorf("unknown replication mode %q: must be one of %v", name, modeNames)
}

// Progress counts documents transferred in a session.
type Progress struct {
	Completed uint64 `json:"completed"`
	Total     uint64 `json:"total"`
}

// Status is a snapshot of an engine's state.
type Status struct {
	Level    ActivityLevel  `json:"level"`
	Progress Progress       `json:"progress"`
	Error    *syncerr.Error `json:"error,omitempty"`
}

// IsStopped reports whether the snapshot is in the terminal level.
func (s Status) IsStopped() bool {
	return s.Level == Stopped
}

// String is a compact one-line rendering used in logs and CLI text output.
func (s Status) String() string {
	out := fmt.Sprintf("%s (%d/%d)", s.Level, s.Progress.Completed, s.Progress.Total)
	if s.Error != nil && !s.Error.IsZero() {
		out += ": " + s.Error.Error()
	}
	return out
}
