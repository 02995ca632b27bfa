package loading

import (
	"fmt"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

// Builder assembles a Pipeline with a fluent API
type Builder struct {
	gate     core.Stage
	branches []core.BranchConfig
	policy   core.ErrorPolicy
}

// NewBuilder creates a new pipeline builder
func NewBuilder() *Builder {
	return &Builder{
		policy: core.ErrorPolicyCancelAll,
	}
}

// SetBarrier uses a BarrierStage built from config as the gate
func (b *Builder) SetBarrier(name string, config core.BarrierConfig, opts Options) *Builder {
	b.gate = NewBarrierStage(name, config, opts)
	return b
}

// SetGate uses an arbitrary stage as the gate
func (b *Builder) SetGate(stage core.Stage) *Builder {
	b.gate = stage
	return b
}

// AddSink adds a sink receiving the gate's output, optionally filtered
func (b *Builder) AddSink(stage core.Stage, eventFilter ...core.EventType) *Builder {
	b.branches = append(b.branches, core.BranchConfig{
		Stage:       stage,
		EventFilter: eventFilter,
	})
	return b
}

// SetErrorPolicy sets how a failing sink affects the others
func (b *Builder) SetErrorPolicy(policy core.ErrorPolicy) *Builder {
	b.policy = policy
	return b
}

// Build validates the configuration and creates the pipeline
func (b *Builder) Build() (*Pipeline, error) {
	config := &core.FanOutConfig{
		ErrorPolicy: b.policy,
		Branches:    b.branches,
	}

	if err := ValidatePipeline(b.gate, config); err != nil {
		return nil, fmt.Errorf("pipeline validation failed: %w", err)
	}

	return &Pipeline{
		gate:   b.gate,
		router: NewFanOutRouter(config),
	}, nil
}
