package loading

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

// FanOutRouter broadcasts events from a single input to sink stages,
// honouring per-branch event filters and the configured error policy
type FanOutRouter struct {
	config *core.FanOutConfig
}

// NewFanOutRouter creates a new fan-out router with the given configuration
func NewFanOutRouter(config *core.FanOutConfig) *FanOutRouter {
	if config.ErrorPolicy == "" {
		config.ErrorPolicy = core.ErrorPolicyCancelAll
	}
	return &FanOutRouter{config: config}
}

// branch is the runtime state of one sink
type branch struct {
	config core.BranchConfig
	input  chan core.Event
	output chan core.Event
	done   chan struct{}
}

// Route distributes events from input to every branch and merges what the
// branches produce into output. A nil output discards branch output.
// It returns once input is closed and every branch returned.
func (fr *FanOutRouter) Route(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	branches := make([]*branch, len(fr.config.Branches))
	errs := make(chan error, len(branches))

	var stageWg, mergeWg sync.WaitGroup
	for i, bc := range fr.config.Branches {
		br := &branch{
			config: bc,
			input:  make(chan core.Event, 64),
			output: make(chan core.Event, 64),
			done:   make(chan struct{}),
		}
		branches[i] = br

		stageWg.Add(1)
		go func() {
			defer stageWg.Done()
			defer close(br.done)

			err := br.config.Stage.Process(ctx, br.input, br.output)
			if err == nil || errors.Is(err, context.Canceled) {
				return
			}
			errs <- fmt.Errorf("sink %q: %w", br.config.Stage.Name(), err)
			if fr.config.ErrorPolicy == core.ErrorPolicyCancelAll {
				cancel()
			}
		}()

		mergeWg.Add(1)
		go func() {
			defer mergeWg.Done()
			fr.merge(ctx, br, output)
		}()
	}

	fr.distribute(ctx, input, branches)

	stageWg.Wait()
	mergeWg.Wait()

	close(errs)
	var all []error
	for err := range errs {
		all = append(all, err)
	}
	return errors.Join(all...)
}

// distribute forwards each event to the branches whose filter matches.
// Branches that already returned are skipped.
func (fr *FanOutRouter) distribute(ctx context.Context, input <-chan core.Event, branches []*branch) {
	defer func() {
		for _, br := range branches {
			close(br.input)
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-input:
			if !ok {
				return
			}

			for _, br := range branches {
				if !br.config.Accepts(event.EventType()) {
					continue
				}
				select {
				case <-ctx.Done():
					return
				case <-br.done:
				case br.input <- event:
				}
			}
		}
	}
}

// merge copies a branch's output until the branch closed it, or until the
// branch returned and its buffer is drained
func (fr *FanOutRouter) merge(ctx context.Context, br *branch, output chan<- core.Event) {
	forward := func(event core.Event) {
		if output == nil {
			return
		}
		select {
		case <-ctx.Done():
		case output <- event:
		}
	}

	for {
		select {
		case event, ok := <-br.output:
			if !ok {
				return
			}
			forward(event)
		case <-br.done:
			for {
				select {
				case event, ok := <-br.output:
					if !ok {
						return
					}
					forward(event)
				default:
					return
				}
			}
		}
	}
}

// FanOutStage exposes a FanOutRouter as a Stage
type FanOutStage struct {
	name   string
	config *core.FanOutConfig
	router *FanOutRouter
}

// NewFanOutStage creates a new fan-out stage
func NewFanOutStage(name string, config *core.FanOutConfig) *FanOutStage {
	return &FanOutStage{
		name:   name,
		config: config,
		router: NewFanOutRouter(config),
	}
}

// Name returns the stage name
func (fs *FanOutStage) Name() string {
	return fs.name
}

// Process routes input to every branch and merges branch output
func (fs *FanOutStage) Process(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error {
	defer close(output)
	return fs.router.Route(ctx, input, output)
}

// InputTypes returns the input event types this stage accepts
func (fs *FanOutStage) InputTypes() []core.EventType {
	return []core.EventType{}
}

// OutputTypes returns the union of the branches' output types
func (fs *FanOutStage) OutputTypes() []core.EventType {
	seen := make(map[core.EventType]bool)
	var result []core.EventType
	for _, br := range fs.config.Branches {
		for _, t := range br.Stage.OutputTypes() {
			if !seen[t] {
				seen[t] = true
				result = append(result, t)
			}
		}
	}
	return result
}
