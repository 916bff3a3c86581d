package agent

import "testing"

func TestTransition(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		event   EventKind
		want    State
		wantErr bool
	}{
		{"forced call queued", StateForcedTool, EventForcedCallQueued, StateToolExec, false},
		{"tools completed", StateToolExec, EventToolsCompleted, StateReasoning, false},
		{"reasoning requests tools", StateReasoning, EventToolsRequested, StateToolExec, false},
		{"reasoning produces answer", StateReasoning, EventAnswerProduced, StateTerminal, false},
		{"rounds exhausted", StateReasoning, EventRoundsExhausted, StateTerminal, false},

		{"cannot skip forced call", StateForcedTool, EventAnswerProduced, StateForcedTool, true},
		{"cannot reason before tools finish", StateToolExec, EventToolsRequested, StateToolExec, true},
		{"cannot complete tools while reasoning", StateReasoning, EventToolsCompleted, StateReasoning, true},
		{"terminal is final", StateTerminal, EventAnswerProduced, StateTerminal, true},
		{"terminal rejects tool requests", StateTerminal, EventToolsRequested, StateTerminal, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Transition(tt.state, tt.event)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition(%s, %s) error = %v, wantErr %v", tt.state, tt.event, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Transition(%s, %s) = %s, want %s", tt.state, tt.event, got, tt.want)
			}
		})
	}
}

func TestTransition_IsPure(t *testing.T) {
	for range 3 {
		got, err := Transition(StateReasoning, EventToolsRequested)
		if err != nil || got != StateToolExec {
			t.Fatalf("Transition not deterministic: got %s, err %v", got, err)
		}
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateForcedTool, "forced-first-tool"},
		{StateToolExec, "tool-execution"},
		{StateReasoning, "reasoning"},
		{StateTerminal, "terminal"},
		{State(99), "State(99)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
