package assets

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loading "github.com/JesseSolomon/dev.jessesolomon.me"
	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

func shaderServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/intro/vertex.glsl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("void main() { gl_Position = vec4(position, 1.0); }"))
	})
	mux.HandleFunc("/intro/fragment.glsl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("void main() { gl_FragColor = vec4(1.0); }"))
	})
	mux.HandleFunc("/huge.glsl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("/"), maxBodySize+1))
	})
	mux.HandleFunc("/limit.glsl", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("/"), maxBodySize))
	})
	mux.HandleFunc("/slow.glsl", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
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

func TestLoaderFetchesAllResources(t *testing.T) {
	srv := shaderServer(t)
	loader := NewLoader(LoaderConfig{})

	shaders, err := loader.Load(context.Background(), "intro", map[string]string{
		"vertex":   srv.URL + "/intro/vertex.glsl",
		"fragment": srv.URL + "/intro/fragment.glsl",
	})
	require.NoError(t, err)
	assert.Len(t, shaders, 2)
	assert.Contains(t, shaders["vertex"], "gl_Position")
	assert.Contains(t, shaders["fragment"], "gl_FragColor")
}

func TestLoaderRejectsOversizedShader(t *testing.T) {
	srv := shaderServer(t)
	loader := NewLoader(LoaderConfig{})

	shaders, err := loader.Load(context.Background(), "intro", map[string]string{
		"limit": srv.URL + "/limit.glsl",
	})
	require.NoError(t, err)
	assert.Len(t, shaders["limit"], maxBodySize)

	_, err = loader.Load(context.Background(), "intro", map[string]string{
		"huge": srv.URL + "/huge.glsl",
	})
	assert.ErrorIs(t, err, ErrShaderTooLarge)
}

func TestLoaderRejectsNon2xx(t *testing.T) {
	srv := shaderServer(t)
	loader := NewLoader(LoaderConfig{})

	_, err := loader.Load(context.Background(), "intro", map[string]string{
		"vertex":  srv.URL + "/intro/vertex.glsl",
		"missing": srv.URL + "/missing.glsl",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "missing")
}

func TestLoaderTimeout(t *testing.T) {
	srv := shaderServer(t)
	loader := NewLoader(LoaderConfig{Timeout: 20 * time.Millisecond})

	_, err := loader.Load(context.Background(), "slow", map[string]string{
		"vertex": srv.URL + "/slow.glsl",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

// TestLoaderReportsTasks tests that a load holds an attached barrier until
// the fetch completes
func TestLoaderReportsTasks(t *testing.T) {
	srv := shaderServer(t)
	bus := runBus(t)

	barrier := loading.NewCountingBarrier(core.DefaultBarrierConfig(), loading.Options{})
	detach := barrier.Attach(bus)
	defer detach()

	loader := NewLoader(LoaderConfig{Bus: bus})
	_, err := loader.Load(context.Background(), "intro", map[string]string{
		"vertex": srv.URL + "/intro/vertex.glsl",
	})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(core.LoadEvent{}))

	select {
	case <-barrier.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("barrier did not open")
	}
	st := barrier.Stats()
	assert.Equal(t, 1, st.Started)
	assert.Equal(t, 1, st.Ended)
	assert.NoError(t, barrier.Err())
}

// TestLoaderFailureReleasesBarrier tests that a failed fetch still ends its
// task
func TestLoaderFailureReleasesBarrier(t *testing.T) {
	srv := shaderServer(t)
	bus := runBus(t)
	events := bus.Stream(context.Background(), core.EventTypeTaskStart, core.EventTypeTaskFailed)

	barrier := loading.NewCountingBarrier(core.DefaultBarrierConfig(), loading.Options{})
	defer barrier.Attach(bus)()

	loader := NewLoader(LoaderConfig{Bus: bus})
	_, err := loader.Load(context.Background(), "nwa", map[string]string{
		"vertex": srv.URL + "/missing.glsl",
	})
	require.Error(t, err)
	require.NoError(t, bus.Publish(core.LoadEvent{}))

	select {
	case <-barrier.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("failed task must not hold the barrier")
	}

	first := <-events
	second := <-events
	assert.Equal(t, core.TaskStartEvent{Source: "shaders:nwa"}, first)
	failed, ok := second.(core.TaskFailedEvent)
	require.True(t, ok)
	assert.Equal(t, "shaders:nwa", failed.Source)
}

func TestLoaderRegister(t *testing.T) {
	srv := shaderServer(t)
	barrier := loading.NewRegistryBarrier(core.DefaultBarrierConfig(), loading.Options{})
	loader := NewLoader(LoaderConfig{})

	fetch, err := loader.Register(context.Background(), barrier, "intro", map[string]string{
		"vertex": srv.URL + "/intro/vertex.glsl",
	})
	require.NoError(t, err)

	barrier.Load()
	select {
	case <-barrier.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("registry barrier did not open")
	}
	require.NoError(t, barrier.Err())
	assert.Contains(t, fetch.Shaders()["vertex"], "gl_Position")

	_, err = loader.Register(context.Background(), barrier, "late", nil)
	assert.ErrorIs(t, err, loading.ErrRegistrationClosed)
}

// TestLoaderGoPublishesStartFirst tests that a load event published right
// after Go cannot open the barrier before the fetch ends
func TestLoaderGoPublishesStartFirst(t *testing.T) {
	srv := shaderServer(t)
	bus := runBus(t)

	barrier := loading.NewCountingBarrier(core.DefaultBarrierConfig(), loading.Options{})
	defer barrier.Attach(bus)()

	loader := NewLoader(LoaderConfig{Bus: bus})
	fetch, err := loader.Go(context.Background(), "intro", map[string]string{
		"vertex": srv.URL + "/intro/vertex.glsl",
	})
	require.NoError(t, err)
	require.NoError(t, bus.Publish(core.LoadEvent{}))

	select {
	case <-barrier.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("barrier did not open")
	}
	require.NoError(t, fetch.Await(context.Background()))
	assert.NotEmpty(t, fetch.Shaders()["vertex"])
	assert.Equal(t, 1, barrier.Stats().Ended)
}
