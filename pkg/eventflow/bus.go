package eventflow

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"weak"

	"go.opentelemetry.io/otel/attribute"

	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
)

// Bus is an in-process event bus. It serves flat publish/subscribe through
// On and Emit, and hierarchical three-phase propagation through Dispatch.
//
// All methods are safe for concurrent use. Listeners run synchronously on
// the goroutine that emits or dispatches; the registry lock is never held
// while a listener runs, so listeners may register, remove and emit freely.
type Bus struct {
	config   BusConfig
	observed bool

	reg    *listenerRegistry
	owners *AutoDisposeRegistry

	icMu         sync.Mutex
	icHandles    []*Interceptor
	interceptors atomic.Pointer[[]Interceptor]
}

// New creates a bus from DefaultBusConfig and the given options.
//
// Example:
//
//	bus := eventflow.New(eventflow.WithLogger(logger))
//	eventflow.On(bus, "user.created", eventflow.Func(func(e *eventflow.Event[User]) {
//	    fmt.Println(e.Payload().Name)
//	}))
//	eventflow.Emit(bus, "user.created", User{Name: "ada"})
func New(opts ...Option) *Bus {
	config := DefaultBusConfig
	for _, opt := range opts {
		opt(&config)
	}
	return NewBus(config)
}

// NewBus creates a bus from config. Unset or out-of-range fields fall
// back to DefaultBusConfig; call config.Validate first to reject them instead.
func NewBus(config BusConfig) *Bus {
	config = config.withDefaults()

	_, noopMetrics := config.Metrics.(observability.NoopMetrics)
	_, noopSpans := config.Spans.(observability.NoopSpanManager)

	b := &Bus{
		config:   config,
		observed: !noopMetrics || !noopSpans,
		reg:      newListenerRegistry(config.PatternCacheSize),
	}
	b.owners = NewAutoDisposeRegistry(b)
	return b
}

// Config returns the effective configuration.
func (b *Bus) Config() BusConfig {
	return b.config
}

// register stores e and returns its subscription. Pattern and tag
// registrations are always flat bubbling registrations.
func (b *Bus) register(e *entry, lc listenerConfig) *Subscription {
	e.priority = lc.priority
	e.tags = lc.tags
	if e.kind == kindExact {
		e.capture = lc.capture
		e.scope = lc.target
	}

	e.id = b.reg.reserveID()
	e.sub = &Subscription{
		id:  e.id,
		key: e.key,
		bus: weak.Make(b),
	}
	b.reg.add(e)

	observability.LogSubscribe(b.config.Logger, e.key, uint64(e.id), e.priority, e.capture)

	if lc.hasOwner {
		b.owners.Track(lc.owner, e.sub)
	}
	return e.sub
}

// release marks the subscriptions of entries removed in bulk as disposed
// and drops them from their owners. It returns how many were removed.
func (b *Bus) release(removed []*entry) int {
	for _, e := range removed {
		if e.sub != nil {
			e.sub.detach()
		}
	}
	return len(removed)
}

func (b *Bus) unregister(id RegistrationID, key string) {
	if b.reg.remove(id) {
		observability.LogUnsubscribe(b.config.Logger, key, 1)
	}
}

// EmitEvent delivers a prepared event to the flat listeners of its type,
// to matching pattern listeners and to tag listeners for each of its tags.
// Listener failures are logged and never returned. A nil event is ignored.
func (b *Bus) EmitEvent(evt AnyEvent) {
	if evt == nil {
		return
	}
	st := evt.state()
	list := b.reg.flatSnapshot(st.eventType, st.tags, b.config.PatternMode)

	if !b.observed {
		st.phase = PhaseAtTarget
		b.runStep(evt, list, PhaseAtTarget, nil)
		st.phase = PhaseNone
		return
	}

	start := b.config.Clock.Now()
	parent := st.ctx
	ctx, span := b.config.Spans.StartEmitSpan(st.Context(), st.eventType, st.id)
	st.ctx = ctx

	st.phase = PhaseAtTarget
	delivered := b.runStep(evt, list, PhaseAtTarget, nil)
	st.phase = PhaseNone
	st.ctx = parent

	b.config.Metrics.RecordEmit(ctx, st.eventType, delivered, b.config.Clock.Since(start))
	b.config.Spans.EndSpanWithError(span, nil)
}

// runStep runs one node/phase step, wrapped by any interceptors.
// It returns how many listeners actually ran.
func (b *Bus) runStep(evt AnyEvent, list []*entry, phase Phase, node Target) int {
	if b.observed {
		b.config.Spans.AddSpanEvent(evt.state().ctx, "eventflow.step",
			attribute.String("phase", phase.String()),
			attribute.Int("listeners", len(list)),
		)
	}

	ics := b.interceptors.Load()
	if ics == nil {
		return b.runListeners(evt, list, phase)
	}

	info := StepInfo{Event: evt, Phase: phase, CurrentTarget: node, Listeners: len(list)}
	for _, ic := range *ics {
		ic.BeforeDispatch(info)
	}
	info.Delivered = b.runListeners(evt, list, phase)
	for _, ic := range *ics {
		ic.AfterDispatch(info)
	}
	return info.Delivered
}

func (b *Bus) runListeners(evt AnyEvent, list []*entry, phase Phase) int {
	st := evt.state()
	ran := 0
	for _, e := range list {
		if st.immediateStopped {
			break
		}
		ok, err := invoke(e, evt)
		if ok {
			ran++
		}
		if err != nil {
			b.reportFailure(e, evt, phase, err)
		}
	}
	return ran
}

// invoke calls the listener, converting a panic into a *PanicError.
func invoke(e *entry, evt AnyEvent) (ran bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ran = true
			err = &PanicError{Value: r, Stack: string(debug.Stack())}
		}
	}()
	return e.invoke(evt)
}

func (b *Bus) reportFailure(e *entry, evt AnyEvent, phase Phase, err error) {
	lerr := &ListenerError{
		ListenerID: e.id,
		EventType:  evt.Type(),
		EventID:    evt.ID(),
		Phase:      phase,
		Err:        err,

		Subscription: e.sub,
	}
	panicked := lerr.Panicked()

	observability.LogListenerFailure(b.config.Logger, lerr.EventType, uint64(e.id), phase.String(), err, panicked)
	if b.observed {
		b.config.Metrics.RecordListenerFailure(evt.Context(), lerr.EventType, phase.String(), panicked)
	}
	if b.config.OnListenerError != nil {
		b.config.OnListenerError(lerr)
	}
}

// Off removes every flat registration for eventType, in both the capture
// and bubble groups, whose listener is identical to listener. Pattern
// registrations whose source text equals eventType are included. Listeners
// of non-comparable types (plain funcs) never match; use Func or the
// Subscription instead.
func (b *Bus) Off(eventType string, listener any) {
	observability.LogUnsubscribe(b.config.Logger, eventType, b.release(b.reg.removeListener(nil, eventType, listener)))
}

// OffTarget is Off for registrations scoped to target.
func (b *Bus) OffTarget(target Target, eventType string, listener any) {
	if target == nil {
		return
	}
	observability.LogUnsubscribe(b.config.Logger, eventType, b.release(b.reg.removeListener(target, eventType, listener)))
}

// Clear removes every registration for eventType, flat and target-scoped.
func (b *Bus) Clear(eventType string) {
	observability.LogUnsubscribe(b.config.Logger, eventType, b.release(b.reg.clearType(eventType)))
}

// ClearAll removes every registration.
func (b *Bus) ClearAll() {
	observability.LogUnsubscribe(b.config.Logger, "*", b.release(b.reg.clearAll()))
}

// ClearTarget removes every registration scoped to target. Call it when
// the application discards a node so the registry drops its reference.
func (b *Bus) ClearTarget(target Target) {
	if target == nil {
		return
	}
	observability.LogUnsubscribe(b.config.Logger, "target", b.release(b.reg.clearScope(target)))
}

// ListenerCount returns the number of flat registrations for eventType in
// both groups, including patterns registered with that exact source text.
func (b *Bus) ListenerCount(eventType string) int {
	return b.reg.count(nil, eventType)
}

// TargetListenerCount returns the number of registrations for eventType
// scoped to target.
func (b *Bus) TargetListenerCount(target Target, eventType string) int {
	if target == nil {
		return 0
	}
	return b.reg.count(target, eventType)
}

// EventTypes returns the sorted event types that have flat registrations.
func (b *Bus) EventTypes() []string {
	return b.reg.types()
}

// Listeners describes the flat registrations for eventType in execution
// order, capture group first.
func (b *Bus) Listeners(eventType string) []RegistrationInfo {
	return b.reg.describe(nil, eventType)
}

// TargetListeners is Listeners for registrations scoped to target.
func (b *Bus) TargetListeners(target Target, eventType string) []RegistrationInfo {
	return b.reg.describe(target, eventType)
}

// Owners returns the auto-dispose registry used by WithOwner.
func (b *Bus) Owners() *AutoDisposeRegistry {
	return b.owners
}

// DisposeAll releases every subscription registered WithOwner(owner) and
// returns how many were released.
func (b *Bus) DisposeAll(owner any) int {
	return b.owners.DisposeAll(owner)
}
