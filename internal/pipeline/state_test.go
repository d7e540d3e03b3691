package pipeline

import "testing"

var happyPath = []State{
	StateIdle,
	StateValidating,
	StateSynthesizing,
	StateResolvingReference,
	StateEmbedding,
	StateConverting,
	StateEncoding,
	StateDone,
}

func TestNewStateMachine_InitialStateIsIdle(t *testing.T) {
	sm := NewStateMachine()
	if sm.Current() != StateIdle {
		t.Fatalf("expected initial state Idle, got %s", sm.Current())
	}
}

func TestStateMachine_ValidTransitions(t *testing.T) {
	for i := 0; i < len(happyPath)-1; i++ {
		from, to := happyPath[i], happyPath[i+1]
		sm := NewStateMachine()
		advanceTo(t, sm, from)

		if !sm.Transition(to) {
			t.Errorf("transition %s → %s should be valid", from, to)
		}
		if sm.Current() != to {
			t.Errorf("expected state %s, got %s", to, sm.Current())
		}
	}
}

func TestStateMachine_InvalidTransitions(t *testing.T) {
	tests := []struct {
		from, to State
	}{
		{StateIdle, StateSynthesizing},
		{StateIdle, StateDone},
		{StateValidating, StateEmbedding},
		{StateValidating, StateValidating},
		{StateSynthesizing, StateConverting},
		{StateResolvingReference, StateSynthesizing},
		{StateEmbedding, StateEncoding},
		{StateConverting, StateDone},
		{StateEncoding, StateIdle},
		{StateDone, StateFailed},
		{StateDone, StateIdle},
	}

	for _, tt := range tests {
		sm := NewStateMachine()
		advanceTo(t, sm, tt.from)

		if sm.Transition(tt.to) {
			t.Errorf("transition %s → %s should be invalid", tt.from, tt.to)
		}
		if sm.Current() != tt.from {
			t.Errorf("state should remain %s after invalid transition, got %s", tt.from, sm.Current())
		}
	}
}

func TestStateMachine_AnyNonTerminalToFailed(t *testing.T) {
	for _, s := range happyPath[:len(happyPath)-1] {
		sm := NewStateMachine()
		advanceTo(t, sm, s)

		if !sm.Transition(StateFailed) {
			t.Errorf("transition %s → Failed should be valid", s)
		}
		if sm.Transition(StateIdle) || sm.Transition(StateFailed) {
			t.Errorf("Failed should be terminal (reached from %s)", s)
		}
	}
}

func TestStateMachine_OnChangeCallback(t *testing.T) {
	sm := NewStateMachine()

	var calledFrom, calledTo State
	callCount := 0
	sm.SetOnChange(func(from, to State) {
		calledFrom = from
		calledTo = to
		callCount++
	})

	sm.Transition(StateValidating)
	if callCount != 1 {
		t.Fatalf("expected onChange called once, got %d", callCount)
	}
	if calledFrom != StateIdle || calledTo != StateValidating {
		t.Errorf("expected callback with Idle→Validating, got %s→%s", calledFrom, calledTo)
	}
}

func TestStateMachine_OnChangeNotCalledOnInvalid(t *testing.T) {
	sm := NewStateMachine()

	callCount := 0
	sm.SetOnChange(func(from, to State) {
		callCount++
	})

	sm.Transition(StateConverting) // invalid from Idle
	if callCount != 0 {
		t.Errorf("expected onChange not called on invalid transition, got %d calls", callCount)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{StateIdle, "Idle"},
		{StateResolvingReference, "ResolvingReference"},
		{StateEncoding, "Encoding"},
		{StateFailed, "Failed"},
		{State(99), "Unknown"},
		{State(-1), "Unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}

// advanceTo transitions the state machine from Idle to the target state
// along the happy path.
func advanceTo(t *testing.T, sm *StateMachine, target State) {
	t.Helper()
	for i, s := range happyPath {
		if s == target {
			return
		}
		if !sm.Transition(happyPath[i+1]) {
			t.Fatalf("failed to advance to %s", happyPath[i+1])
		}
	}
}
