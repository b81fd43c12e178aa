package artifact

import "fmt"

// TransitionRule defines an allowed lifecycle transition.
type TransitionRule struct {
	From LifecycleState
	To   LifecycleState
}

// DefaultTransitions defines the allowed lifecycle state transitions.
// Obsolete is terminal: nothing transitions out of it.
var DefaultTransitions = []TransitionRule{
	{From: StateDraft, To: StateAccepted},
	{From: StateDraft, To: StateObsolete},
	{From: StateAccepted, To: StateObsolete},
}

// LifecycleMachine validates lifecycle state transitions.
type LifecycleMachine struct {
	transitions []TransitionRule
}

// NewLifecycleMachine creates a machine with the default rules.
func NewLifecycleMachine() *LifecycleMachine {
	return &LifecycleMachine{transitions: DefaultTransitions}
}

// ValidateTransition checks if a transition from->to is allowed.
// Returns nil if allowed, an error with a machine-readable code if not.
func (m *LifecycleMachine) ValidateTransition(from, to LifecycleState) error {
	// Same state is a no-op, allow it.
	if from == to {
		return nil
	}

	if !validState(to) {
		return &TransitionError{
			Code:    "LIFECYCLE_UNKNOWN_STATE",
			From:    from,
			To:      to,
			Message: fmt.Sprintf("unknown lifecycle state %q", to),
		}
	}

	if from == StateObsolete {
		return &TransitionError{
			Code:    "LIFECYCLE_TRANSITION_DENIED",
			From:    from,
			To:      to,
			Message: fmt.Sprintf("transition from %s to %s is not allowed: obsolete is terminal", from, to),
		}
	}

	for _, t := range m.transitions {
		if t.From == from && t.To == to {
			return nil
		}
	}

	return &TransitionError{
		Code:    "LIFECYCLE_INVALID_TRANSITION",
		From:    from,
		To:      to,
		Message: fmt.Sprintf("no transition defined from %s to %s", from, to),
	}
}

// AllowedTransitions returns all valid target states from the given state.
func (m *LifecycleMachine) AllowedTransitions(from LifecycleState) []LifecycleState {
	var allowed []LifecycleState
	for _, t := range m.transitions {
		if t.From == from {
			allowed = append(allowed, t.To)
		}
	}
	return allowed
}

// TransitionError is a structured error for invalid transitions.
type TransitionError struct {
	Code    string         `json:"code"`
	From    LifecycleState `json:"from"`
	To      LifecycleState `json:"to"`
	Message string         `json:"message"`
}

func (e *TransitionError) Error() string {
	return e.Message
}
