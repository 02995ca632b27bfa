package loading

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

// Pipeline runs a gate stage and broadcasts its output to sink stages.
//
//	input -> gate (BarrierStage) -> fan-out -> sinks -> output
type Pipeline struct {
	gate   core.Stage
	router *FanOutRouter

	mu     sync.Mutex
	cancel context.CancelFunc
	err    error
}

// Execute starts the pipeline. The returned channel carries everything the
// sinks emit, plus an ErrorEvent for every failure, and is closed once the
// gate and all sinks returned.
func (p *Pipeline) Execute(ctx context.Context, input <-chan core.Event) core.PipelineOutput {
	out := make(chan core.Event, 64)

	ctx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.err = nil
	p.mu.Unlock()

	go func() {
		defer close(out)
		defer cancel()

		gateOut := make(chan core.Event, 64)
		gateErr := make(chan error, 1)
		go func() {
			gateErr <- p.runGate(ctx, input, gateOut)
		}()

		routeErr := p.router.Route(ctx, gateOut, out)
		err := errors.Join(<-gateErr, routeErr)

		p.mu.Lock()
		p.err = err
		p.cancel = nil
		p.mu.Unlock()

		if err != nil {
			select {
			case out <- core.ErrorEvent{Error: err}:
			default:
			}
		}
	}()

	return out
}

// runGate runs the gate stage and recovers from panics.
// The gate closes gateOut; a panicking gate is closed here.
func (p *Pipeline) runGate(ctx context.Context, input <-chan core.Event, gateOut chan core.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			err = fmt.Errorf("gate %s panicked: %v\nStack trace:\n%s", p.gate.Name(), r, buf[:n])
			safeClose(gateOut)
		}
	}()
	return p.gate.Process(ctx, input, gateOut)
}

func safeClose(ch chan core.Event) {
	defer func() { _ = recover() }()
	close(ch)
}

// Err returns the error of the last completed execution
func (p *Pipeline) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Cancel cancels the running execution
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
}
