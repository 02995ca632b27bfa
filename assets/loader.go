// Package assets fetches the text resources a scene needs before it can
// render, reporting each fetch to the load gate as one task.
package assets

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	loading "github.com/JesseSolomon/dev.jessesolomon.me"
	"github.com/JesseSolomon/dev.jessesolomon.me/telemetry"
)

const (
	// DefaultConcurrency bounds parallel requests per Load
	DefaultConcurrency = 4
	// DefaultTimeout bounds a single request
	DefaultTimeout = 10 * time.Second

	maxBodySize = 1 << 20
)

// ErrShaderTooLarge is returned for a resource larger than 1 MiB
var ErrShaderTooLarge = errors.New("assets: shader exceeds size limit")

// LoaderConfig holds loader configuration
type LoaderConfig struct {
	Client      *http.Client
	Concurrency int
	Timeout     time.Duration
	// Bus receives a task start before each Load and exactly one end or
	// failure after it. Optional.
	Bus    *loading.Bus
	Logger telemetry.Logger
}

// Shaders maps a resource name (e.g. "vertex") to its source text
type Shaders map[string]string

// Loader fetches named text resources over HTTP
type Loader struct {
	config LoaderConfig
	logger telemetry.Logger
}

// NewLoader creates a new loader
func NewLoader(config LoaderConfig) *Loader {
	if config.Client == nil {
		config.Client = http.DefaultClient
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = telemetry.Nop()
	}
	return &Loader{
		config: config,
		logger: logger.WithModule("assets"),
	}
}

// Load fetches every url in urls for scene. Either all resources are
// returned or the first error.
func (l *Loader) Load(ctx context.Context, scene string, urls map[string]string) (Shaders, error) {
	task, err := l.begin(scene)
	if err != nil {
		return nil, err
	}
	return l.run(ctx, task, scene, urls)
}

// begin publishes the task start of scene when a bus is configured
func (l *Loader) begin(scene string) (*loading.Task, error) {
	if l.config.Bus == nil {
		return nil, nil
	}
	source := "shaders:" + scene
	task, err := loading.StartTask(l.config.Bus, source)
	if err != nil {
		return nil, fmt.Errorf("start task %s: %w", source, err)
	}
	return task, nil
}

func (l *Loader) run(ctx context.Context, task *loading.Task, scene string, urls map[string]string) (shaders Shaders, err error) {
	if task != nil {
		defer func() {
			if derr := task.Done(err); derr != nil {
				l.logger.Warn("failed to report task completion", telemetry.String("scene", scene), telemetry.Err(derr))
			}
		}()
	}

	start := time.Now()
	shaders, err = l.fetchAll(ctx, urls)
	if err != nil {
		l.logger.Error("shader load failed", telemetry.String("scene", scene), telemetry.Err(err))
		return nil, err
	}

	l.logger.Info("shaders loaded",
		telemetry.String("scene", scene),
		telemetry.Int("count", len(shaders)),
		telemetry.Duration("elapsed", time.Since(start)),
	)
	return shaders, nil
}

func (l *Loader) fetchAll(ctx context.Context, urls map[string]string) (Shaders, error) {
	names := make([]string, 0, len(urls))
	for name := range urls {
		names = append(names, name)
	}
	slices.Sort(names)

	var mu sync.Mutex
	shaders := make(Shaders, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.Concurrency)
	for _, name := range names {
		url := urls[name]
		g.Go(func() error {
			body, err := l.fetch(gctx, url)
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			mu.Lock()
			shaders[name] = body
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return shaders, nil
}

func (l *Loader) fetch(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, l.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}

	resp, err := l.config.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("fetch %s: unexpected status %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", url, err)
	}
	if len(body) > maxBodySize {
		return "", fmt.Errorf("read %s: %w", url, ErrShaderTooLarge)
	}
	return string(body), nil
}

// Fetch is a Load running in the background. It is a loading.Future.
type Fetch struct {
	promise *loading.Promise

	mu      sync.Mutex
	shaders Shaders
}

// Await blocks until the fetch completed and returns its error
func (f *Fetch) Await(ctx context.Context) error {
	return f.promise.Await(ctx)
}

// Shaders returns the fetched resources, or nil before a successful Await
func (f *Fetch) Shaders() Shaders {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.shaders
}

func (f *Fetch) complete(shaders Shaders, err error) {
	f.mu.Lock()
	f.shaders = shaders
	f.mu.Unlock()
	f.promise.Resolve(err)
}

// Go starts loading scene in the background. When a bus is configured the
// task start is published before Go returns, so a load event published
// afterwards cannot overtake it.
func (l *Loader) Go(ctx context.Context, scene string, urls map[string]string) (*Fetch, error) {
	task, err := l.begin(scene)
	if err != nil {
		return nil, err
	}
	f := &Fetch{promise: loading.NewPromise()}
	go func() {
		f.complete(l.run(ctx, task, scene, urls))
	}()
	return f, nil
}

// Register starts loading scene in the background and registers the fetch
// on barrier. It fails with loading.ErrRegistrationClosed after load, in
// which case nothing is fetched.
func (l *Loader) Register(ctx context.Context, barrier *loading.RegistryBarrier, scene string, urls map[string]string) (*Fetch, error) {
	f := &Fetch{promise: loading.NewPromise()}
	if err := barrier.RegisterTask(f); err != nil {
		return nil, err
	}

	task, err := l.begin(scene)
	if err != nil {
		f.complete(nil, err)
		return f, nil
	}
	go func() {
		f.complete(l.run(ctx, task, scene, urls))
	}()
	return f, nil
}
