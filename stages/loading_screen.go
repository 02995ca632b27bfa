package stages

import (
	"context"
	"sync"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

// Loading screen classes
const (
	ClassLoading = "loading"
	ClassLoaded  = "loaded"
)

// LoadingScreenConfig holds loading screen configuration
type LoadingScreenConfig struct {
	Name string
	// OnReveal runs once, when the first LoadedEvent arrives
	OnReveal func(core.LoadedEvent)
	Logger   telemetry.Logger
}

// LoadingScreen covers the page until the application loaded
type LoadingScreen struct {
	config LoadingScreenConfig

	mu       sync.Mutex
	revealed bool
	loaded   core.LoadedEvent
}

// NewLoadingScreen creates a new loading screen stage
func NewLoadingScreen(config LoadingScreenConfig) *LoadingScreen {
	if config.Name == "" {
		config.Name = "loading_screen"
	}
	if config.Logger == nil {
		config.Logger = telemetry.Nop()
	}
	return &LoadingScreen{config: config}
}

// Name returns the stage name
func (ls *LoadingScreen) Name() string {
	return ls.config.Name
}

// Process implements the Stage interface
func (ls *LoadingScreen) Process(ctx context.Context, input <-chan core.Event, output chan<- core.Event) error {
	logger := ls.config.Logger.WithModule(ls.Name())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-input:
			if !ok {
				return nil
			}
			loaded, isLoaded := event.(core.LoadedEvent)
			if !isLoaded || !ls.reveal(loaded) {
				continue
			}

			logger.Info("Revealing page", telemetry.Duration("elapsed", loaded.Elapsed), telemetry.Int("tasks", loaded.TasksStarted))
			if ls.config.OnReveal != nil {
				ls.config.OnReveal(loaded)
			}
		}
	}
}

func (ls *LoadingScreen) reveal(ev core.LoadedEvent) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if ls.revealed {
		return false
	}
	ls.revealed = true
	ls.loaded = ev
	return true
}

// Revealed reports whether the page was revealed
func (ls *LoadingScreen) Revealed() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.revealed
}

// Loaded returns the event that revealed the page. ok is false while the
// page is still covered.
func (ls *LoadingScreen) Loaded() (ev core.LoadedEvent, ok bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.loaded, ls.revealed
}

// Class returns the class the loading screen currently carries
func (ls *LoadingScreen) Class() string {
	if ls.Revealed() {
		return ClassLoaded
	}
	return ClassLoading
}

// InputTypes returns the input event types this stage accepts
func (ls *LoadingScreen) InputTypes() []core.EventType {
	return []core.EventType{core.EventTypeLoaded}
}

// OutputTypes returns the output event types this stage produces
func (ls *LoadingScreen) OutputTypes() []core.EventType {
	return []core.EventType{}
}
