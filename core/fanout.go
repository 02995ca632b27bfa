package core

// ErrorPolicy defines how fan-out handles errors in sink branches
type ErrorPolicy string

const (
	// ErrorPolicyCancelAll cancels all branches when one fails (default)
	ErrorPolicyCancelAll ErrorPolicy = "cancel-all"

	// ErrorPolicyIsolated allows other branches to continue when one fails
	ErrorPolicyIsolated ErrorPolicy = "isolated"
)

// Valid reports whether p is a known policy
func (p ErrorPolicy) Valid() bool {
	return p == ErrorPolicyCancelAll || p == ErrorPolicyIsolated
}

// BranchConfig defines a single fan-out branch
type BranchConfig struct {
	// Stage consumes the events routed to this branch
	Stage Stage

	// EventFilter specifies which event types to forward to this branch.
	// Empty slice means forward all events.
	EventFilter []EventType
}

// Accepts reports whether events of type t are routed to this branch
func (b BranchConfig) Accepts(t EventType) bool {
	if len(b.EventFilter) == 0 {
		return true
	}
	for _, f := range b.EventFilter {
		if f == t || f == EventTypeWildcard {
			return true
		}
	}
	return false
}

// FanOutConfig configures broadcast routing to sinks
type FanOutConfig struct {
	ErrorPolicy ErrorPolicy
	Branches    []BranchConfig
}
