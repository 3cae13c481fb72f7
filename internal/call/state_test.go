package call

import "testing"

func TestLineTransitions(t *testing.T) {
	tests := []struct {
		from, to LineState
		ok       bool
	}{
		{StateIdle, StateDialing, true},
		{StateIdle, StateRinging, true},
		{StateIdle, StateConnected, false},
		{StateDialing, StateConnecting, true},
		{StateDialing, StateConnected, false},
		{StateDialing, StateTerminating, true},
		{StateRinging, StateConnecting, true},
		{StateConnecting, StateConnected, true},
		{StateConnected, StateTerminating, true},
		{StateConnected, StateDialing, false},
		{StateTerminating, StateIdle, true},
		{StateTerminating, StateConnected, false},
	}
	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.ok {
			t.Errorf("%v -> %v = %v, want %v", tt.from, tt.to, got, tt.ok)
		}
	}
}

func TestLineStateLive(t *testing.T) {
	if StateIdle.Live() {
		t.Error("idle reported live")
	}
	for _, s := range []LineState{StateDialing, StateRinging, StateConnecting, StateConnected, StateTerminating} {
		if !s.Live() {
			t.Errorf("%v reported not live", s)
		}
	}
}
