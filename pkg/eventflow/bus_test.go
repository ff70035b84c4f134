package eventflow

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestEmit_DeliversPayload(t *testing.T) {
	bus := quietBus()
	var got []int
	On(bus, "test", Func(func(e *Event[int]) {
		got = append(got, e.Payload())
	}))

	Emit(bus, "test", 42)

	assert.Equal(t, []int{42}, got)
}

func TestEmit_NoListeners(t *testing.T) {
	bus := quietBus()
	assert.NotPanics(t, func() {
		Emit(bus, "nobody.listens", 1)
		bus.EmitEvent(nil)
	})
}

func TestEmit_PhaseDuringDelivery(t *testing.T) {
	bus := quietBus()
	var phase Phase
	var current Target
	On(bus, "x", Func(func(e *Event[int]) {
		phase = e.Phase()
		current = e.CurrentTarget()
	}))

	evt := NewBusEvent(bus, "x", 1)
	bus.EmitEvent(evt)

	assert.Equal(t, PhaseAtTarget, phase)
	assert.Nil(t, current)
	assert.Equal(t, PhaseNone, evt.Phase())
}

func TestEmit_PriorityOrder(t *testing.T) {
	bus := quietBus()
	rec := &recorder{}

	On(bus, "x", record[int](rec, "p0-first"))
	On(bus, "x", record[int](rec, "p10"), WithPriority(10))
	On(bus, "x", record[int](rec, "p-5"), WithPriority(-5))
	On(bus, "x", record[int](rec, "p0-second"))
	On(bus, "x", record[int](rec, "p10-second"), WithPriority(10))

	Emit(bus, "x", 0)

	assert.Equal(t, []string{"p10", "p10-second", "p0-first", "p0-second", "p-5"}, rec.list())
}

func TestEmit_CaptureListenersSkipped(t *testing.T) {
	bus := quietBus()
	rec := &recorder{}
	On(bus, "x", record[int](rec, "capture"), WithCapture())
	On(bus, "x", record[int](rec, "bubble"))

	Emit(bus, "x", 0)

	assert.Equal(t, []string{"bubble"}, rec.list())
	assert.Equal(t, 2, bus.ListenerCount("x"))
}

func TestEmit_ErrorIsolation(t *testing.T) {
	var failures []*ListenerError
	bus := quietBus(WithListenerErrorHandler(func(err *ListenerError) {
		failures = append(failures, err)
	}))
	rec := &recorder{}
	boom := errors.New("boom")

	On(bus, "x", FuncErr(func(*Event[int]) error { return boom }), WithPriority(3))
	On(bus, "x", Func(func(*Event[int]) { panic("kaboom") }), WithPriority(2))
	On(bus, "x", record[int](rec, "survivor"), WithPriority(1))

	assert.NotPanics(t, func() { Emit(bus, "x", 1) })
	assert.Equal(t, []string{"survivor"}, rec.list())

	require.Len(t, failures, 2)
	assert.ErrorIs(t, failures[0], boom)
	assert.False(t, failures[0].Panicked())
	assert.Equal(t, "x", failures[0].EventType)
	assert.Equal(t, PhaseAtTarget, failures[0].Phase)

	assert.True(t, failures[1].Panicked())
	assert.ErrorIs(t, failures[1], ErrListenerPanic)
	var pe *PanicError
	require.ErrorAs(t, failures[1], &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.NotEmpty(t, pe.Stack)
}

func TestEmit_PanicWithErrorValue(t *testing.T) {
	var got *ListenerError
	bus := quietBus(WithListenerErrorHandler(func(err *ListenerError) { got = err }))
	cause := errors.New("root cause")
	On(bus, "x", Func(func(*Event[int]) { panic(cause) }))

	Emit(bus, "x", 1)

	require.NotNil(t, got)
	assert.ErrorIs(t, got, cause)
	assert.ErrorIs(t, got, ErrListenerPanic)
}

func TestEmit_FailureLogged(t *testing.T) {
	logger, logs := newTestLogger()
	bus := New(WithLogger(logger))
	On(bus, "x", FuncErr(func(*Event[int]) error { return errors.New("nope") }))
	On(bus, "x", Func(func(*Event[int]) { panic("bad") }))

	Emit(bus, "x", 1)

	failed := logs.withMessage("listener failed")
	require.Len(t, failed, 1)
	assert.Equal(t, "x", failed[0]["event_type"])
	assert.Equal(t, "WARN", failed[0]["level"])

	panicked := logs.withMessage("listener panicked")
	require.Len(t, panicked, 1)
	assert.Equal(t, "ERROR", panicked[0]["level"])
}

func TestEmit_PayloadTypeMismatch(t *testing.T) {
	var got *ListenerError
	bus := quietBus(WithListenerErrorHandler(func(err *ListenerError) { got = err }))
	called := false
	On(bus, "x", Func(func(*Event[string]) { called = true }))

	Emit(bus, "x", 1)

	assert.False(t, called)
	require.NotNil(t, got)
	assert.ErrorIs(t, got, ErrPayloadType)
	assert.False(t, got.Panicked())
}

func TestEmit_StopImmediatePropagation(t *testing.T) {
	bus := quietBus()
	rec := &recorder{}
	On(bus, "x", Func(func(e *Event[int]) {
		rec.add("first")
		e.StopImmediatePropagation()
	}), WithPriority(1))
	On(bus, "x", record[int](rec, "second"))

	Emit(bus, "x", 0)

	assert.Equal(t, []string{"first"}, rec.list())
}

func TestEmit_StopPropagationKeepsFlatListeners(t *testing.T) {
	bus := quietBus()
	rec := &recorder{}
	On(bus, "x", Func(func(e *Event[int]) {
		rec.add("first")
		e.StopPropagation()
	}), WithPriority(1))
	On(bus, "x", record[int](rec, "second"))

	Emit(bus, "x", 0)

	assert.Equal(t, []string{"first", "second"}, rec.list())
}

func TestEmit_UnsubscribeDuringEmit(t *testing.T) {
	bus := quietBus()
	rec := &recorder{}
	var victim *Subscription

	On(bus, "x", Func(func(*Event[int]) {
		rec.add("killer")
		victim.Unsubscribe()
	}), WithPriority(1))
	victim = On(bus, "x", record[int](rec, "victim"))

	Emit(bus, "x", 0)
	assert.Equal(t, []string{"killer", "victim"}, rec.list())

	Emit(bus, "x", 0)
	assert.Equal(t, []string{"killer", "victim", "killer"}, rec.list())
}

func TestEmit_SelfUnsubscribe(t *testing.T) {
	bus := quietBus()
	calls := 0
	var sub *Subscription
	sub = On(bus, "x", Func(func(*Event[int]) {
		calls++
		sub.Unsubscribe()
	}))

	Emit(bus, "x", 0)
	Emit(bus, "x", 0)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.ListenerCount("x"))
}

func TestEmit_AddDuringEmit(t *testing.T) {
	bus := quietBus()
	rec := &recorder{}
	added := false

	On(bus, "x", Func(func(*Event[int]) {
		rec.add("adder")
		if !added {
			added = true
			On(bus, "x", record[int](rec, "late"), WithPriority(-1))
		}
	}))

	Emit(bus, "x", 0)
	assert.Equal(t, []string{"adder"}, rec.list())

	Emit(bus, "x", 0)
	assert.Equal(t, []string{"adder", "adder", "late"}, rec.list())
}

func TestEmit_ReentrantEmit(t *testing.T) {
	bus := quietBus()
	rec := &recorder{}

	On(bus, "outer", Func(func(*Event[int]) {
		rec.add("outer")
		Emit(bus, "inner", 0)
		On(bus, "other", record[int](rec, "other"))
		bus.Off("nothing", nil)
	}))
	On(bus, "inner", record[int](rec, "inner"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		Emit(bus, "outer", 0)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("re-entrant emit deadlocked")
	}
	assert.Equal(t, []string{"outer", "inner"}, rec.list())
}

func TestEmit_RepeatedRegistrationFiresEachTime(t *testing.T) {
	bus := quietBus()
	calls := 0
	l := Func(func(*Event[int]) { calls++ })

	On(bus, "x", l)
	On(bus, "x", l)
	Emit(bus, "x", 0)
	assert.Equal(t, 2, calls)

	bus.Off("x", l)
	Emit(bus, "x", 0)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, bus.ListenerCount("x"))
}

func TestOff_RemovesBothGroups(t *testing.T) {
	bus := quietBus()
	l := Func(func(*Event[int]) {})
	other := Func(func(*Event[int]) {})

	On(bus, "x", l)
	On(bus, "x", l, WithCapture())
	On(bus, "x", other)
	require.Equal(t, 3, bus.ListenerCount("x"))

	bus.Off("x", l)

	assert.Equal(t, 1, bus.ListenerCount("x"))
}

func TestOff_UnknownIsNoop(t *testing.T) {
	bus := quietBus()
	l := Func(func(*Event[int]) {})
	On(bus, "x", l)

	assert.NotPanics(t, func() {
		bus.Off("y", l)
		bus.Off("x", Func(func(*Event[int]) {}))
		bus.Off("x", func() {})
	})
	assert.Equal(t, 1, bus.ListenerCount("x"))
}

func TestOff_ListenerFuncNotComparable(t *testing.T) {
	bus := quietBus()
	var l ListenerFunc[int] = func(*Event[int]) error { return nil }
	sub := On(bus, "x", l)

	bus.Off("x", l)
	assert.Equal(t, 1, bus.ListenerCount("x"))

	sub.Unsubscribe()
	assert.Equal(t, 0, bus.ListenerCount("x"))
}

func TestOnce_FiresOnce(t *testing.T) {
	bus := quietBus()
	calls := 0
	Once(bus, "x", Func(func(*Event[int]) { calls++ }))

	Emit(bus, "x", 0)
	Emit(bus, "x", 0)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, bus.ListenerCount("x"))
}

func TestOnce_ReentrantEmit(t *testing.T) {
	bus := quietBus()
	calls := 0
	Once(bus, "x", Func(func(*Event[int]) {
		calls++
		Emit(bus, "x", 0)
	}))

	Emit(bus, "x", 0)

	assert.Equal(t, 1, calls)
}

func TestOnce_ConcurrentEmits(t *testing.T) {
	bus := quietBus()
	var calls atomic.Int32
	Once(bus, "x", Func(func(*Event[int]) { calls.Add(1) }))

	var g errgroup.Group
	for i := 0; i < 64; i++ {
		g.Go(func() error {
			Emit(bus, "x", i)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), calls.Load())
}

func TestOnce_UnsubscribeBeforeFire(t *testing.T) {
	bus := quietBus()
	calls := 0
	sub := Once(bus, "x", Func(func(*Event[int]) { calls++ }))

	sub.Unsubscribe()
	Emit(bus, "x", 0)

	assert.Equal(t, 0, calls)
}

func TestClear(t *testing.T) {
	bus := quietBus()
	root := NewNode("root", nil)
	l := Func(func(*Event[int]) {})

	On(bus, "x", l)
	On(bus, "x", l, WithCapture())
	On(bus, "x", l, WithTarget(root))
	On(bus, "y", l)
	_, err := OnPattern(bus, "x", l)
	require.NoError(t, err)

	bus.Clear("x")

	assert.Equal(t, 0, bus.ListenerCount("x"))
	assert.Equal(t, 0, bus.TargetListenerCount(root, "x"))
	assert.Equal(t, 1, bus.ListenerCount("y"))
	assert.Equal(t, []string{"y"}, bus.EventTypes())
}

func TestClearAll(t *testing.T) {
	bus := quietBus()
	l := Func(func(*Event[int]) {})
	On(bus, "x", l)
	On(bus, "y", l)
	OnTag(bus, "audit", l)
	_, err := OnPattern(bus, "z.*", l)
	require.NoError(t, err)

	bus.ClearAll()

	assert.Empty(t, bus.EventTypes())
	calls := 0
	OnTag(bus, "t", Func(func(*Event[int]) { calls++ }))
	Emit(bus, "z.a", 0, WithTags("audit"))
	assert.Equal(t, 0, calls)
}

func TestClearAll_SubscriptionsStayUsable(t *testing.T) {
	bus := quietBus()
	sub := On(bus, "x", Func(func(*Event[int]) {}))
	bus.ClearAll()

	assert.NotPanics(t, sub.Unsubscribe)

	next := On(bus, "x", Func(func(*Event[int]) {}))
	assert.Greater(t, next.ID(), sub.ID())
}

func TestEventTypesAndListeners(t *testing.T) {
	bus := quietBus()
	l := Func(func(*Event[int]) {})

	assert.Empty(t, bus.EventTypes())
	On(bus, "b", l)
	first := On(bus, "a", l, WithPriority(1), WithListenerTags("ui"))
	second := On(bus, "a", l, WithCapture())
	On(bus, "a", l, WithTarget(NewNode("n", nil)))

	assert.Equal(t, []string{"a", "b"}, bus.EventTypes())

	infos := bus.Listeners("a")
	require.Len(t, infos, 2)
	assert.Equal(t, second.ID(), infos[0].ID)
	assert.True(t, infos[0].Capture)
	assert.Equal(t, first.ID(), infos[1].ID)
	assert.Equal(t, int64(1), infos[1].Priority)
	assert.Equal(t, []string{"ui"}, infos[1].Tags)

	assert.Nil(t, bus.Listeners("missing"))
}

func TestEmit_ClockTimestamp(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	bus := quietBus(WithClock(mock))

	var ts time.Time
	On(bus, "x", Func(func(e *Event[int]) { ts = e.Timestamp() }))

	Emit(bus, "x", 0)
	assert.Equal(t, mock.Now(), ts)

	mock.Add(time.Minute)
	Emit(bus, "x", 0)
	assert.Equal(t, time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC), ts)
}

func TestEmit_LoadRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping load test in short mode")
	}
	bus := quietBus()
	var calls int
	On(bus, "tick", Func(func(*Event[int]) { calls++ }))

	const n = 100_000
	for i := 0; i < n; i++ {
		Emit(bus, "tick", i)
	}

	assert.Equal(t, n, calls)
}

func TestBus_ConcurrentMutationAndEmit(t *testing.T) {
	bus := quietBus()
	var delivered atomic.Int64
	stable := Func(func(*Event[int]) { delivered.Add(1) })
	On(bus, "x", stable)

	var g errgroup.Group
	const emitters, emits = 8, 500
	for i := 0; i < emitters; i++ {
		g.Go(func() error {
			for j := 0; j < emits; j++ {
				Emit(bus, "x", j)
			}
			return nil
		})
	}
	for i := 0; i < 4; i++ {
		g.Go(func() error {
			for j := 0; j < 200; j++ {
				sub := On(bus, "x", Func(func(*Event[int]) {}), WithPriority(int64(j%3)))
				sub.Unsubscribe()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(emitters*emits), delivered.Load())
	assert.Equal(t, 1, bus.ListenerCount("x"))
}

func TestBus_ConcurrentRegistrationOrder(t *testing.T) {
	bus := quietBus()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			On(bus, "x", Func(func(*Event[int]) {}), WithPriority(int64(i%5)))
		}()
	}
	wg.Wait()

	infos := bus.Listeners("x")
	require.Len(t, infos, 50)
	for i := 1; i < len(infos); i++ {
		prev, cur := infos[i-1], infos[i]
		if prev.Priority == cur.Priority {
			assert.Less(t, prev.ID, cur.ID)
		} else {
			assert.Greater(t, prev.Priority, cur.Priority)
		}
	}
}

func TestNewBus_Defaults(t *testing.T) {
	bus := NewBus(BusConfig{MaxPathDepth: -3, PatternCacheSize: -1})
	cfg := bus.Config()

	assert.NotNil(t, cfg.Logger)
	assert.NotNil(t, cfg.Metrics)
	assert.NotNil(t, cfg.Spans)
	assert.NotNil(t, cfg.Clock)
	assert.Equal(t, 1024, cfg.MaxPathDepth)
	assert.Equal(t, 0, cfg.PatternCacheSize)
	assert.False(t, bus.observed)
}

func TestTypedBus(t *testing.T) {
	bus := quietBus()
	users := Typed[string](bus)
	rec := &recorder{}

	l := record[string](rec, "on")
	users.On("user.created", l)
	users.Once("user.created", record[string](rec, "once"))
	users.OnWhere("user.created", func(e *Event[string]) bool { return e.Payload() == "ada" }, record[string](rec, "where"))
	_, err := users.OnPattern("user.*", record[string](rec, "pattern"))
	require.NoError(t, err)
	users.OnTag("vip", record[string](rec, "tag"))

	users.Emit("user.created", "ada", WithTags("vip"))
	users.Emit("user.created", "bob")
	users.Off("user.created", l)
	users.Emit("user.created", "ada")
	users.Emit("user.deleted", "ada")

	assert.Equal(t, []string{
		"on", "once", "where", "tag",
		"on",
		"where",
		"pattern",
	}, rec.list())
	assert.Same(t, bus, users.Bus())
}

func TestMustListener_NilPanics(t *testing.T) {
	bus := quietBus()
	assert.Panics(t, func() { On[int](bus, "x", nil) })
	assert.Panics(t, func() { Once[int](bus, "x", nil) })
	assert.Panics(t, func() { OnTag[int](bus, "x", nil) })
}
