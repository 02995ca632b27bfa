package loading

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/JesseSolomon/dev.jessesolomon.me/core"
)

func waitFired(t *testing.T, b Barrier) {
	t.Helper()
	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("barrier did not open")
	}
}

func TestRegistryWaitsForAllFutures(t *testing.T) {
	b := NewRegistryBarrier(core.BarrierConfig{Variant: core.VariantRegistry}, Options{})
	fires := countFires(b.Signal())

	first, second := NewPromise(), NewPromise()
	require.NoError(t, b.RegisterTask(first))
	require.NoError(t, b.RegisterTask(second))

	b.Load()
	first.Resolve(nil)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, fires.Count())

	second.Resolve(nil)
	waitFired(t, b)

	assert.Equal(t, 1, fires.Count())
	assert.Equal(t, 2, fires.Last().TasksStarted)
	assert.Equal(t, 2, fires.Last().TasksEnded)
}

func TestRegistryFuturesResolvedBeforeLoad(t *testing.T) {
	b := NewRegistryBarrier(core.BarrierConfig{}, Options{})

	p := Spawn(context.Background(), func(ctx context.Context) error { return nil })
	require.NoError(t, b.RegisterTask(p))
	require.NoError(t, p.Await(context.Background()))

	select {
	case <-b.Done():
		t.Fatal("barrier must wait for load")
	case <-time.After(20 * time.Millisecond):
	}

	b.Load()
	waitFired(t, b)
}

func TestRegistryLoadWithoutTasks(t *testing.T) {
	b := NewRegistryBarrier(core.BarrierConfig{}, Options{})
	b.Load()
	waitFired(t, b)
	assert.Equal(t, 0, b.Stats().Started)
}

// Registration after load is rejected and does not affect firing
func TestRegistryRejectsRegistrationAfterLoad(t *testing.T) {
	b := NewRegistryBarrier(core.BarrierConfig{}, Options{})
	fires := countFires(b.Signal())

	b.Load()
	never := NewPromise()
	err := b.RegisterTask(never)
	assert.ErrorIs(t, err, ErrRegistrationClosed)

	waitFired(t, b)
	assert.Equal(t, 1, fires.Count())

	assert.ErrorIs(t, b.RegisterTask(NewPromise()), ErrRegistrationClosed)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, fires.Count())
}

func TestRegistryFailureRelease(t *testing.T) {
	b := NewRegistryBarrier(core.BarrierConfig{FailurePolicy: core.FailureRelease}, Options{})

	require.NoError(t, b.RegisterTask(Spawn(context.Background(), func(context.Context) error {
		return errors.New("fetch failed")
	})))
	require.NoError(t, b.RegisterTask(Spawn(context.Background(), func(context.Context) error {
		return nil
	})))

	b.Load()
	waitFired(t, b)

	assert.NoError(t, b.Err())
	st := b.Stats()
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 1, st.Ended)
	assert.Equal(t, 0, st.Outstanding)
}

func TestRegistryFailureAbort(t *testing.T) {
	b := NewRegistryBarrier(core.BarrierConfig{FailurePolicy: core.FailureAbort}, Options{})
	fires := countFires(b.Signal())

	cause := errors.New("fetch failed")
	failing := NewPromise()
	pending := NewPromise()
	require.NoError(t, b.RegisterTask(failing))
	require.NoError(t, b.RegisterTask(pending))

	b.Load()
	failing.Resolve(cause)
	waitFired(t, b)

	assert.ErrorIs(t, b.Err(), ErrTaskFailed)
	assert.ErrorIs(t, b.Err(), cause)

	pending.Resolve(nil)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, fires.Count())
}

func TestPromiseResolvesOnce(t *testing.T) {
	p := NewPromise()
	p.Resolve(errors.New("first"))
	p.Resolve(nil)

	assert.EqualError(t, p.Await(context.Background()), "first")
}

func TestPromiseAwaitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, NewPromise().Await(ctx), context.Canceled)
}

// For any number of futures resolved in any order, the registry SHALL fire
// exactly once, after load and the last resolution.
func TestPropertyRegistryFiresOnce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(rt, "tasks")
		order := rapid.Permutation(makeRange(n)).Draw(rt, "order")

		b := NewRegistryBarrier(core.BarrierConfig{}, Options{})
		fires := countFires(b.Signal())

		promises := make([]*Promise, n)
		for i := range promises {
			promises[i] = NewPromise()
			if err := b.RegisterTask(promises[i]); err != nil {
				rt.Fatalf("register: %v", err)
			}
		}

		b.Load()
		for _, i := range order {
			if fires.Count() != 0 {
				rt.Fatalf("fired before every future resolved")
			}
			promises[i].Resolve(nil)
		}

		select {
		case <-b.Done():
		case <-time.After(2 * time.Second):
			rt.Fatalf("barrier did not open")
		}
		if fires.Count() != 1 {
			rt.Fatalf("fired %d times", fires.Count())
		}
	})
}

func makeRange(n int) []int {
	r := make([]int, n)
	for i := range r {
		r[i] = i
	}
	return r
}
