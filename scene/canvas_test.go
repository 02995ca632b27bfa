package scene

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	loading "github.com/JesseSolomon/dev.jessesolomon.me"
	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

type MockRenderer struct{ mock.Mock }

func (m *MockRenderer) Setup() error {
	return m.Called().Error(0)
}

func (m *MockRenderer) SetSize(width, height float64) {
	m.Called(width, height)
}

func runBus(t *testing.T) *loading.Bus {
	t.Helper()
	bus := loading.NewBus(loading.BusConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = bus.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return bus
}

func TestCanvasSetsUpOnLoaded(t *testing.T) {
	bus := runBus(t)
	ready := bus.Stream(context.Background(), core.EventTypeCanvasReady)

	renderer := &MockRenderer{}
	renderer.On("Setup").Return(nil).Once()
	sized := make(chan struct{})
	renderer.On("SetSize", 1280.0, 720.0).Return().Once().Run(func(mock.Arguments) {
		close(sized)
	})

	canvas, err := NewCanvas(CanvasConfig{
		Name:     "intro",
		Bus:      bus,
		Renderer: renderer,
		Size:     func() (float64, float64) { return 1280, 720 },
	})
	require.NoError(t, err)
	canvas.Start()
	defer canvas.Stop()

	require.NoError(t, bus.Publish(core.LoadedEvent{}))

	select {
	case ev := <-ready:
		assert.Equal(t, core.CanvasReadyEvent{Canvas: "intro"}, ev)
	case <-time.After(2 * time.Second):
		t.Fatal("canvas never became ready")
	}
	select {
	case <-sized:
	case <-time.After(2 * time.Second):
		t.Fatal("renderer was never sized")
	}
	assert.True(t, canvas.Ready())
	renderer.AssertExpectations(t)
}

func TestCanvasResizePreventDefault(t *testing.T) {
	renderer := &MockRenderer{}
	renderer.On("Setup").Return(nil)
	renderer.On("SetSize", 0.0, 0.0).Return().Once()
	renderer.On("SetSize", 800.0, 600.0).Return().Once()

	canvas, err := NewCanvas(CanvasConfig{Name: "nwa", Bus: loading.NewBus(loading.BusConfig{}), Renderer: renderer})
	require.NoError(t, err)

	canvas.setup()

	prevent := true
	canvas.OnResize(func(ev *core.CanvasResizeEvent) {
		assert.Equal(t, "nwa", ev.Canvas)
		if prevent {
			ev.PreventDefault()
		}
	})

	ev := canvas.Resize(1024, 768)
	assert.True(t, ev.DefaultPrevented())

	prevent = false
	ev = canvas.Resize(800, 600)
	assert.False(t, ev.DefaultPrevented())

	renderer.AssertNotCalled(t, "SetSize", 1024.0, 768.0)
	renderer.AssertExpectations(t)
}

func TestCanvasResizeBeforeSetup(t *testing.T) {
	renderer := &MockRenderer{}
	canvas, err := NewCanvas(CanvasConfig{Name: "intro", Bus: loading.NewBus(loading.BusConfig{}), Renderer: renderer})
	require.NoError(t, err)

	var seen int
	canvas.OnResize(func(*core.CanvasResizeEvent) { seen++ })
	canvas.Resize(100, 100)

	assert.Equal(t, 1, seen)
	renderer.AssertNotCalled(t, "SetSize", mock.Anything, mock.Anything)
}

func TestNewCanvasRequiresBusAndRenderer(t *testing.T) {
	_, err := NewCanvas(CanvasConfig{Renderer: &MockRenderer{}})
	assert.Error(t, err)
	_, err = NewCanvas(CanvasConfig{Bus: loading.NewBus(loading.BusConfig{})})
	assert.Error(t, err)
}

func TestCanvasFailedSetupIsNotReady(t *testing.T) {
	bus := runBus(t)
	failures := bus.Stream(context.Background(), core.EventTypeError)

	renderer := &MockRenderer{}
	renderer.On("Setup").Return(errors.New("no webgl context")).Once()

	canvas, err := NewCanvas(CanvasConfig{Name: "intro", Bus: bus, Renderer: renderer})
	require.NoError(t, err)
	canvas.Start()
	defer canvas.Stop()

	require.NoError(t, bus.Publish(core.LoadedEvent{}))
	select {
	case ev := <-failures:
		assert.ErrorContains(t, ev.(core.ErrorEvent).Error, "no webgl context")
	case <-time.After(2 * time.Second):
		t.Fatal("setup failure was not published")
	}

	assert.False(t, canvas.Ready())
	canvas.Resize(640, 480)
	canvas.setup()

	renderer.AssertNotCalled(t, "SetSize", mock.Anything, mock.Anything)
	renderer.AssertNumberOfCalls(t, "Setup", 1)
}
