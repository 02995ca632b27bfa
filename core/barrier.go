package core

import "time"

// Variant selects one of the two barrier designs
type Variant string

const (
	// VariantCounting counts task_start/task_end notifications; tasks may
	// appear at any time while the barrier is held
	VariantCounting Variant = "counting"

	// VariantRegistry waits on futures registered before load
	VariantRegistry Variant = "registry"
)

// Valid reports whether v is a known variant
func (v Variant) Valid() bool {
	return v == VariantCounting || v == VariantRegistry
}

// FailurePolicy defines how a barrier treats a failed task
type FailurePolicy string

const (
	// FailureRelease counts a failed task as ended (default)
	FailureRelease FailurePolicy = "release"

	// FailureAbort opens the barrier immediately with the task's error
	FailureAbort FailurePolicy = "abort"
)

// Valid reports whether p is a known policy
func (p FailurePolicy) Valid() bool {
	return p == FailureRelease || p == FailureAbort
}

// BarrierConfig configures a load barrier
type BarrierConfig struct {
	// Variant selects the counting or registry design
	Variant Variant

	// FailurePolicy defines what a failed task does to the barrier
	FailurePolicy FailurePolicy

	// SettleWindow is how long the barrier waits with nothing outstanding
	// after load before firing. Zero fires immediately.
	SettleWindow time.Duration

	// StallInterval is the watchdog polling period. Zero disables it.
	StallInterval time.Duration
}

// DefaultBarrierConfig returns the counting variant with release semantics
func DefaultBarrierConfig() BarrierConfig {
	return BarrierConfig{
		Variant:       VariantCounting,
		FailurePolicy: FailureRelease,
		StallInterval: 5 * time.Second,
	}
}
