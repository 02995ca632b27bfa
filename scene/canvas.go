package scene

import (
	"errors"
	"fmt"
	"sync"

	loading "github.com/JesseSolomon/dev.jessesolomon.me"
	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// Renderer draws a canvas. Setup runs once the page finished loading.
type Renderer interface {
	Setup() error
	SetSize(width, height float64)
}

// ResizeListener observes a resize before the renderer is resized
type ResizeListener func(ev *core.CanvasResizeEvent)

// CanvasConfig holds canvas configuration
type CanvasConfig struct {
	Name     string
	Bus      *loading.Bus
	Renderer Renderer
	// Size reports the canvas's current size
	Size   func() (width, height float64)
	Logger telemetry.Logger
}

// Canvas sets up a renderer once the page is loaded and keeps it sized
type Canvas struct {
	config CanvasConfig
	logger telemetry.Logger

	mu        sync.Mutex
	listeners []ResizeListener
	started   bool
	ready     bool
	subID     loading.SubscriptionID
}

// NewCanvas creates a canvas
func NewCanvas(config CanvasConfig) (*Canvas, error) {
	if config.Bus == nil {
		return nil, errors.New("scene: canvas requires a bus")
	}
	if config.Renderer == nil {
		return nil, errors.New("scene: canvas requires a renderer")
	}
	if config.Size == nil {
		config.Size = func() (float64, float64) { return 0, 0 }
	}
	logger := config.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Canvas{
		config: config,
		logger: logger.WithModule("canvas").With(telemetry.String("canvas", config.Name)),
	}, nil
}

// Start waits for the loaded event on the bus. On it the renderer is set
// up, a CanvasReadyEvent is published and the canvas is resized once.
func (c *Canvas) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subID = c.config.Bus.Subscribe(core.EventTypeLoaded, func(core.Event) {
		c.setup()
	})
}

// Stop unsubscribes from the bus
func (c *Canvas) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.config.Bus.Unsubscribe(c.subID)
}

// OnResize adds a listener run by every Resize
func (c *Canvas) OnResize(l ResizeListener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
}

// Ready reports whether the renderer was set up successfully
func (c *Canvas) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *Canvas) setup() {
	c.mu.Lock()
	if c.started {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	if err := c.config.Renderer.Setup(); err != nil {
		c.logger.Error("renderer setup failed", telemetry.Err(err))
		c.publish(core.ErrorEvent{Error: fmt.Errorf("canvas %s: %w", c.config.Name, err)})
		return
	}

	c.mu.Lock()
	c.ready = true
	c.mu.Unlock()

	c.publish(core.CanvasReadyEvent{Canvas: c.config.Name})
	c.Resize(c.config.Size())
}

// Resize runs the resize listeners and resizes the renderer unless a
// listener prevented it. Before setup only the listeners run. It returns the
// dispatched event.
func (c *Canvas) Resize(width, height float64) *core.CanvasResizeEvent {
	ev := &core.CanvasResizeEvent{Canvas: c.config.Name, Width: width, Height: height}

	c.mu.Lock()
	listeners := append([]ResizeListener(nil), c.listeners...)
	ready := c.ready
	c.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}

	if ev.DefaultPrevented() {
		c.logger.Debug("resize prevented", telemetry.Float64("width", width), telemetry.Float64("height", height))
		return ev
	}
	if ready {
		c.config.Renderer.SetSize(width, height)
	}
	return ev
}

func (c *Canvas) publish(ev core.Event) {
	if err := c.config.Bus.Publish(ev); err != nil {
		c.logger.Warn("failed to publish canvas event", telemetry.String("event_type", string(ev.EventType())), telemetry.Err(err))
	}
}
