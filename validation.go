package loading

import (
	"fmt"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Message string
	Details string
}

func (e ValidationError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// ValidatePipeline checks a gate and its sinks before execution
func ValidatePipeline(gate core.Stage, config *core.FanOutConfig) error {
	if gate == nil {
		return ValidationError{Message: "invalid pipeline", Details: "no gate stage"}
	}

	if !config.ErrorPolicy.Valid() {
		return ValidationError{
			Message: "invalid pipeline",
			Details: fmt.Sprintf("unknown error policy %q", config.ErrorPolicy),
		}
	}

	if len(config.Branches) == 0 {
		return ValidationError{Message: "invalid pipeline", Details: "at least one sink is required"}
	}

	names := map[string]bool{gate.Name(): true}
	for _, br := range config.Branches {
		if br.Stage == nil {
			return ValidationError{Message: "invalid pipeline", Details: "nil sink stage"}
		}
		name := br.Stage.Name()
		if names[name] {
			return ValidationError{
				Message: "invalid pipeline",
				Details: fmt.Sprintf("duplicate stage name %q", name),
			}
		}
		names[name] = true

		if err := validateFilter(br); err != nil {
			return err
		}
	}

	return nil
}

// validateFilter rejects filters that can never match: lifecycle events are
// consumed by the gate, and a sink with declared inputs must accept at least
// one filtered type
func validateFilter(br core.BranchConfig) error {
	for _, t := range br.EventFilter {
		if core.IsLifecycle(t) {
			return ValidationError{
				Message: "invalid pipeline",
				Details: fmt.Sprintf("sink %q filters on %q, which the gate consumes", br.Stage.Name(), t),
			}
		}
	}

	accepted := br.Stage.InputTypes()
	if len(accepted) == 0 || len(br.EventFilter) == 0 {
		return nil
	}

	for _, t := range br.EventFilter {
		for _, a := range accepted {
			if t == a || t == core.EventTypeWildcard || a == core.EventTypeWildcard {
				return nil
			}
		}
	}
	return ValidationError{
		Message: "invalid pipeline",
		Details: fmt.Sprintf("sink %q accepts %v but filter is %v", br.Stage.Name(), accepted, br.EventFilter),
	}
}
