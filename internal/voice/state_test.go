package voice

import (
	"testing"
	"time"
)

func TestMachine_InitialState(t *testing.T) {
	m := NewMachine(nil)
	snap := m.Snapshot()
	if snap.State != Off {
		t.Fatalf("initial state = %q, want off", snap.State)
	}
	if !snap.LastWakeAt.IsZero() || snap.LastHeardText != "" {
		t.Fatalf("initial snapshot not empty: %+v", snap)
	}
}

func TestMachine_CycleUpdatesTimestamps(t *testing.T) {
	m := NewMachine(nil)
	at := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	m.Transition(WakeListening)
	m.Wake(at)
	if got := m.Snapshot(); got.State != CommandListening || !got.LastWakeAt.Equal(at) {
		t.Fatalf("after wake: %+v", got)
	}

	m.Heard("check status")
	if got := m.Snapshot(); got.State != Processing || got.LastHeardText != "check status" {
		t.Fatalf("after heard: %+v", got)
	}

	m.Transition(WakeListening)
	if got := m.Snapshot(); got.LastHeardText != "check status" {
		t.Fatalf("heard text should survive the cycle, got %+v", got)
	}
}

func TestMachine_ObserversNotifiedInOrder(t *testing.T) {
	m := NewMachine(nil)

	var order []string
	var seen []State
	m.Subscribe(func(s Snapshot) {
		order = append(order, "a")
		seen = append(seen, s.State)
	})
	m.Subscribe(func(s Snapshot) {
		order = append(order, "b")
		// Observers run outside the lock and may read the machine.
		if m.State() != s.State {
			t.Errorf("observer saw %q, machine reports %q", s.State, m.State())
		}
	})

	m.Transition(WakeListening)
	m.Transition(Off)

	if len(order) != 4 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("order = %v", order)
	}
	if seen[0] != WakeListening || seen[1] != Off {
		t.Fatalf("seen = %v", seen)
	}
}

func TestMachine_PermissiveTransitions(t *testing.T) {
	m := NewMachine(nil)

	// Not a regular edge, but the machine does not refuse it.
	m.Transition(AwaitingConfirmation)
	if m.State() != AwaitingConfirmation {
		t.Fatalf("state = %q, want awaiting_confirmation", m.State())
	}
}

func TestMachine_TransitionUnlessOff(t *testing.T) {
	m := NewMachine(nil)

	if m.TransitionUnlessOff(WakeListening) {
		t.Fatal("should not leave off")
	}
	if m.State() != Off {
		t.Fatalf("state = %q, want off", m.State())
	}

	m.Transition(Processing)
	if !m.TransitionUnlessOff(WakeListening) {
		t.Fatal("should settle from processing")
	}
	if m.State() != WakeListening {
		t.Fatalf("state = %q, want wake_listening", m.State())
	}
}

func TestMachine_Reset(t *testing.T) {
	m := NewMachine(nil)
	m.Wake(time.Now())
	m.Heard("hello")
	m.Reset()

	if got := m.Snapshot(); got != (Snapshot{State: Off}) {
		t.Fatalf("after reset: %+v", got)
	}
}

func TestLegal(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{Off, WakeListening, true},
		{WakeListening, CommandListening, true},
		{CommandListening, Processing, true},
		{CommandListening, WakeListening, true},
		{Processing, AwaitingConfirmation, true},
		{Processing, WakeListening, true},
		{AwaitingConfirmation, WakeListening, true},
		{Processing, Off, true},
		{Off, Processing, false},
		{WakeListening, AwaitingConfirmation, false},
	}

	for _, tt := range tests {
		if got := Legal(tt.from, tt.to); got != tt.want {
			t.Errorf("Legal(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestMachine_WakeUnlessOff(t *testing.T) {
	m := NewMachine(nil)
	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)

	if m.WakeUnlessOff(at) {
		t.Fatal("woke a stopped machine")
	}
	if got := m.Snapshot(); got.State != Off || !got.LastWakeAt.IsZero() {
		t.Fatalf("snapshot = %+v", got)
	}

	m.Transition(WakeListening)
	if !m.WakeUnlessOff(at) {
		t.Fatal("wake refused while listening")
	}
	if got := m.Snapshot(); got.State != CommandListening || !got.LastWakeAt.Equal(at) {
		t.Fatalf("snapshot = %+v", got)
	}
}
