package loading

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

// MockStage records every event it receives
type MockStage struct {
	name   string
	inputs []core.EventType
	err    error

	mu       sync.Mutex
	received []core.Event
}

func (m *MockStage) Name() string { return m.name }

func (m *MockStage) Process(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error {
	for event := range input {
		m.mu.Lock()
		m.received = append(m.received, event)
		m.mu.Unlock()
		if m.err != nil {
			return m.err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case output <- event:
		}
	}
	return nil
}

func (m *MockStage) InputTypes() []core.EventType  { return m.inputs }
func (m *MockStage) OutputTypes() []core.EventType { return []core.EventType{} }

func (m *MockStage) Received() []core.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.Event(nil), m.received...)
}

// MockMetrics is a testify mock of core.Metrics
type MockMetrics struct{ mock.Mock }

func (m *MockMetrics) TaskStarted()      { m.Called() }
func (m *MockMetrics) TaskEnded()        { m.Called() }
func (m *MockMetrics) TaskFailed()       { m.Called() }
func (m *MockMetrics) Outstanding(n int) { m.Called(n) }
func (m *MockMetrics) Loaded(elapsed time.Duration, err error) {
	m.Called(elapsed, err)
}
func (m *MockMetrics) Stalled(n int) { m.Called(n) }

// fireCounter counts how often a barrier's signal fired
type fireCounter struct {
	mu    sync.Mutex
	count int
	last  core.LoadedEvent
}

func countFires(s *Signal) *fireCounter {
	fc := &fireCounter{}
	if _, err := s.Subscribe(func(ev core.LoadedEvent) {
		fc.mu.Lock()
		fc.count++
		fc.last = ev
		fc.mu.Unlock()
	}); err != nil {
		panic(err)
	}
	return fc
}

func (fc *fireCounter) Count() int {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.count
}

func (fc *fireCounter) Last() core.LoadedEvent {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	return fc.last
}
