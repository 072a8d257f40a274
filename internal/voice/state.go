// Package voice holds the interaction state of a voice session.
//
// The Machine is a plain state container: it records the current state and the
// wake/heard timestamps and notifies observers on every change. It does not
// refuse transitions; callers are expected to drive it legally. Legal reports
// what the session loop considers a regular edge so that irregular ones can be
// logged.
package voice

import (
	"log/slog"
	"sync"
	"time"
)

type State string

const (
	Off                  State = "off"
	WakeListening        State = "wake_listening"
	CommandListening     State = "command_listening"
	Processing           State = "processing"
	AwaitingConfirmation State = "awaiting_confirmation"
)

func (s State) String() string { return string(s) }

// Snapshot is an immutable copy of the machine state.
type Snapshot struct {
	State         State     `json:"state"`
	LastWakeAt    time.Time `json:"last_wake_at,omitzero"`
	LastHeardText string    `json:"last_heard_text,omitempty"`
}

// Observer is called synchronously after every change.
type Observer func(Snapshot)

type Machine struct {
	mu        sync.Mutex
	snap      Snapshot
	observers []Observer
	log       *slog.Logger
}

func NewMachine(logger *slog.Logger) *Machine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Machine{
		snap: Snapshot{State: Off},
		log:  logger,
	}
}

// Subscribe registers fn. Observers run in registration order, outside the
// machine lock, so they may read the machine again.
func (m *Machine) Subscribe(fn Observer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.observers = append(m.observers, fn)
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.snap
}

func (m *Machine) State() State {
	return m.Snapshot().State
}

// Transition overwrites the current state.
func (m *Machine) Transition(to State) {
	m.apply(func(s *Snapshot) bool {
		s.State = to
		return true
	})
}

// Wake records a wake-word detection and moves to command listening.
func (m *Machine) Wake(at time.Time) {
	m.apply(func(s *Snapshot) bool {
		s.LastWakeAt = at
		s.State = CommandListening
		return true
	})
}

// WakeUnlessOff is Wake for a session that may have been stopped meanwhile.
// It reports whether the wake was recorded.
func (m *Machine) WakeUnlessOff(at time.Time) bool {
	return m.apply(func(s *Snapshot) bool {
		if s.State == Off {
			return false
		}
		s.LastWakeAt = at
		s.State = CommandListening
		return true
	})
}

// Heard records the captured transcript and moves to processing.
func (m *Machine) Heard(text string) {
	m.apply(func(s *Snapshot) bool {
		s.LastHeardText = text
		s.State = Processing
		return true
	})
}

// TransitionUnlessOff moves to the given state unless the session has been
// stopped in the meantime. It reports whether the transition happened.
func (m *Machine) TransitionUnlessOff(to State) bool {
	return m.apply(func(s *Snapshot) bool {
		if s.State == Off {
			return false
		}
		s.State = to
		return true
	})
}

// Reset returns the machine to its initial value.
func (m *Machine) Reset() {
	m.apply(func(s *Snapshot) bool {
		*s = Snapshot{State: Off}
		return true
	})
}

func (m *Machine) apply(fn func(*Snapshot) bool) bool {
	m.mu.Lock()
	from := m.snap.State
	if !fn(&m.snap) {
		m.mu.Unlock()
		return false
	}
	snap := m.snap
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()

	if !Legal(from, snap.State) {
		m.log.Debug("irregular voice transition", "from", from, "to", snap.State)
	}

	for _, fn := range observers {
		fn(snap)
	}

	return true
}

// Legal reports whether from -> to is one of the regular session edges.
// Self-transitions are regular (they only refresh timestamps).
func Legal(from, to State) bool {
	if from == to || to == Off {
		return true
	}

	switch from {
	case Off:
		return to == WakeListening
	case WakeListening:
		return to == CommandListening
	case CommandListening:
		return to == Processing || to == WakeListening
	case Processing:
		return to == AwaitingConfirmation || to == WakeListening
	case AwaitingConfirmation:
		return to == WakeListening || to == Processing
	}

	return false
}
