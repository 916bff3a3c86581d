package agent

import "fmt"

// State is a node in the orchestration graph. The forced knowledge-base
// call is a distinct initial state so skipping it is unrepresentable,
// not merely unconventional.
type State int

const (
	// StateForcedTool synthesizes the mandatory knowledge-base call.
	StateForcedTool State = iota

	// StateToolExec runs the pending tool requests.
	StateToolExec

	// StateReasoning calls the model with the conversation so far.
	StateReasoning

	// StateTerminal ends the run; the last reasoning text is the answer.
	StateTerminal
)

// String implements Stringer for logs and errors.
func (s State) String() string {
	switch s {
	case StateForcedTool:
		return "forced-first-tool"
	case StateToolExec:
		return "tool-execution"
	case StateReasoning:
		return "reasoning"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventKind is an input to the transition function.
type EventKind int

const (
	// EventForcedCallQueued fires after the knowledge-base request is
	// synthesized and appended to the conversation.
	EventForcedCallQueued EventKind = iota

	// EventToolsCompleted fires when all pending tool requests finished.
	EventToolsCompleted

	// EventToolsRequested fires when reasoning output requests tools.
	EventToolsRequested

	// EventAnswerProduced fires when reasoning output has no tool requests.
	EventAnswerProduced

	// EventRoundsExhausted fires when the tool-round ceiling is hit.
	EventRoundsExhausted
)

// String implements Stringer for logs and errors.
func (k EventKind) String() string {
	switch k {
	case EventForcedCallQueued:
		return "forced-call-queued"
	case EventToolsCompleted:
		return "tools-completed"
	case EventToolsRequested:
		return "tools-requested"
	case EventAnswerProduced:
		return "answer-produced"
	case EventRoundsExhausted:
		return "rounds-exhausted"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Transition is the graph's only control flow. It is pure: same inputs,
// same result, no side effects. Execute drives every state change
// through here so the graph shape stays auditable in one place.
func Transition(s State, ev EventKind) (State, error) {
	switch s {
	case StateForcedTool:
		if ev == EventForcedCallQueued {
			return StateToolExec, nil
		}
	case StateToolExec:
		if ev == EventToolsCompleted {
			return StateReasoning, nil
		}
	case StateReasoning:
		switch ev {
		case EventToolsRequested:
			return StateToolExec, nil
		case EventAnswerProduced, EventRoundsExhausted:
			return StateTerminal, nil
		}
	case StateTerminal:
		// No transitions out of terminal.
	}
	return s, fmt.Errorf("invalid transition: %s on %s", ev, s)
}
