package stages

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loading "github.com/JesseSolomon/dev.jessesolomon.me"
	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

func TestLoadingScreenRevealsOnce(t *testing.T) {
	var reveals []core.LoadedEvent
	screen := NewLoadingScreen(LoadingScreenConfig{
		OnReveal: func(ev core.LoadedEvent) { reveals = append(reveals, ev) },
	})
	assert.Equal(t, ClassLoading, screen.Class())
	_, ok := screen.Loaded()
	assert.False(t, ok)

	input := make(chan core.Event, 3)
	input <- core.CanvasReadyEvent{}
	input <- core.LoadedEvent{TasksStarted: 2}
	input <- core.LoadedEvent{TasksStarted: 3}
	close(input)

	require.NoError(t, screen.Process(context.Background(), input, nil))

	require.Len(t, reveals, 1)
	assert.Equal(t, 2, reveals[0].TasksStarted)
	assert.True(t, screen.Revealed())
	assert.Equal(t, ClassLoaded, screen.Class())

	first, ok := screen.Loaded()
	require.True(t, ok)
	assert.Equal(t, 2, first.TasksStarted)
}

func TestLoadingScreenBehindGate(t *testing.T) {
	screen := NewLoadingScreen(LoadingScreenConfig{})

	p, err := loading.NewBuilder().
		SetBarrier("gate", core.DefaultBarrierConfig(), loading.Options{}).
		AddSink(screen, core.EventTypeLoaded).
		Build()
	require.NoError(t, err)

	input := make(chan core.Event, 3)
	input <- core.TaskStartEvent{Source: "intro"}
	input <- core.LoadEvent{}
	input <- core.TaskEndEvent{Source: "intro"}
	close(input)

	for range p.Execute(context.Background(), input) {
	}
	require.NoError(t, p.Err())
	assert.True(t, screen.Revealed())
}
