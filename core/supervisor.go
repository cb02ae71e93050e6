package core

import "errors"

// Decision is the outcome of classifying a handler failure.
type Decision int

const (
	// Restart replaces or resets the actor instance and keeps its path
	Restart Decision = iota
	// Resume keeps the actor as is and continues with the next message
	Resume
	// Stop stops the actor and removes it from the system
	Stop
	// Escalate hands the failure to the system escalation handler and stops the actor
	Escalate
)

// String returns the string representation of Decision.
func (d Decision) String() string {
	switch d {
	case Restart:
		return "restart"
	case Resume:
		return "resume"
	case Stop:
		return "stop"
	case Escalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// SupervisorStrategy classifies a handler failure into a Decision.
// Implementations must be pure: the same error always yields the same decision.
type SupervisorStrategy interface {
	// Classify returns the decision for err
	Classify(err error) Decision
}

// StrategyFunc adapts a function to SupervisorStrategy.
type StrategyFunc func(err error) Decision

// Classify calls f(err).
func (f StrategyFunc) Classify(err error) Decision {
	return f(err)
}

// DefaultStrategy stops on fatal and security failures, resumes on
// argument and state validation failures and restarts on anything else.
type DefaultStrategy struct{}

// Classify implements SupervisorStrategy.
func (DefaultStrategy) Classify(err error) Decision {
	switch {
	case errors.Is(err, ErrFatal), errors.Is(err, ErrSecurity):
		return Stop
	case errors.Is(err, ErrInvalidArgument), errors.Is(err, ErrIllegalState):
		return Resume
	default:
		return Restart
	}
}

// Restarter is implemented by actors that can reset themselves in place.
// It is used on a restart decision when the actor was not created from a
// Factory kind and so cannot be rebuilt.
type Restarter interface {
	Restart(cause error) error
}

// Escalation describes a failure handed to the system escalation handler.
type Escalation struct {
	Path    string
	Message Message
	Err     error
}

// EscalationHandler receives escalated failures.
type EscalationHandler func(Escalation)
