package eventflow

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewEvent_Defaults(t *testing.T) {
	before := time.Now()
	evt := NewEvent("user.created", 42)

	assert.Equal(t, "user.created", evt.Type())
	assert.Equal(t, 42, evt.Payload())
	assert.Equal(t, 42, evt.PayloadAny())
	assert.NotEmpty(t, evt.ID())
	assert.False(t, evt.Timestamp().Before(before))
	assert.True(t, evt.Bubbles())
	assert.True(t, evt.Cancelable())
	assert.Equal(t, PhaseNone, evt.Phase())
	assert.Nil(t, evt.Target())
	assert.Nil(t, evt.CurrentTarget())
	assert.Nil(t, evt.Source())
	assert.Empty(t, evt.Tags())
	assert.Empty(t, evt.ComposedPath())
	assert.NotNil(t, evt.Context())
}

func TestNewEvent_UniqueIDs(t *testing.T) {
	a := NewEvent("tick", 1)
	b := NewEvent("tick", 1)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestNewEvent_Options(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	type ctxKey struct{}
	ctx := context.WithValue(context.Background(), ctxKey{}, "v")
	src := &struct{ name string }{"producer"}

	evt := NewEvent("order.placed", "payload",
		WithEventID("evt-1"),
		WithTimestamp(ts),
		WithSource(src),
		WithBubbles(false),
		WithCancelable(false),
		WithContext(ctx),
		WithTags("security", "audit", "security"),
	)

	assert.Equal(t, "evt-1", evt.ID())
	assert.Equal(t, ts, evt.Timestamp())
	assert.Same(t, src, evt.Source())
	assert.False(t, evt.Bubbles())
	assert.False(t, evt.Cancelable())
	assert.Equal(t, "v", evt.Context().Value(ctxKey{}))
	assert.Equal(t, []string{"audit", "security"}, evt.Tags())
}

func TestEvent_HasTag(t *testing.T) {
	evt := NewEvent("x", 0, WithTags("audit", "security"))

	assert.True(t, evt.HasTag("audit"))
	assert.True(t, evt.HasTag("security"))
	assert.False(t, evt.HasTag("billing"))

	single := NewEvent("x", 0, WithTags("only"))
	assert.True(t, single.HasTag("only"))
}

func TestEvent_TagsReturnsCopy(t *testing.T) {
	evt := NewEvent("x", 0, WithTags("a", "b"))
	tags := evt.Tags()
	tags[0] = "zzz"
	assert.Equal(t, []string{"a", "b"}, evt.Tags())
}

func TestEvent_PreventDefault(t *testing.T) {
	t.Run("cancelable", func(t *testing.T) {
		evt := NewEvent("submit", 0)
		evt.PreventDefault()
		assert.True(t, evt.DefaultPrevented())
	})

	t.Run("not cancelable", func(t *testing.T) {
		evt := NewEvent("submit", 0, WithCancelable(false))
		evt.PreventDefault()
		assert.False(t, evt.DefaultPrevented())
	})
}

func TestEvent_StopFlags(t *testing.T) {
	evt := NewEvent("x", 0)
	evt.StopPropagation()
	assert.True(t, evt.PropagationStopped())
	assert.False(t, evt.ImmediatePropagationStopped())

	evt = NewEvent("x", 0)
	evt.StopImmediatePropagation()
	assert.True(t, evt.PropagationStopped())
	assert.True(t, evt.ImmediatePropagationStopped())
}

func TestEvent_ImplementsAnyEvent(t *testing.T) {
	var evt AnyEvent = NewEvent("x", struct{}{})
	require.NotNil(t, evt)
	assert.Equal(t, "x", evt.Type())
}

func TestPhase_String(t *testing.T) {
	tests := []struct {
		phase Phase
		want  string
	}{
		{PhaseNone, "NONE"},
		{PhaseCapturing, "CAPTURING"},
		{PhaseAtTarget, "AT_TARGET"},
		{PhaseBubbling, "BUBBLING"},
		{Phase(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.phase.String())
	}
	assert.Equal(t, 0, int(PhaseNone))
	assert.Equal(t, 3, int(PhaseBubbling))
}
