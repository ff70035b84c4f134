package eventflow

import "slices"

// StepInfo describes one step of a dispatch: a single flat emit, or one
// node in one phase of a hierarchical dispatch.
type StepInfo struct {
	Event         AnyEvent
	Phase         Phase
	CurrentTarget Target // nil for flat emits
	Listeners     int    // listeners snapshotted for the step
	Delivered     int    // listeners that ran; set for AfterDispatch only
}

// Interceptor observes dispatch steps. Interceptors run in registration
// order on the dispatching goroutine and must not block.
type Interceptor interface {
	BeforeDispatch(step StepInfo)
	AfterDispatch(step StepInfo)
}

// InterceptorFuncs adapts a pair of functions to Interceptor. Either may be nil.
type InterceptorFuncs struct {
	Before func(step StepInfo)
	After  func(step StepInfo)
}

// BeforeDispatch calls f.Before if set.
func (f InterceptorFuncs) BeforeDispatch(step StepInfo) {
	if f.Before != nil {
		f.Before(step)
	}
}

// AfterDispatch calls f.After if set.
func (f InterceptorFuncs) AfterDispatch(step StepInfo) {
	if f.After != nil {
		f.After(step)
	}
}

// AddInterceptor appends ic to the bus' interceptors and returns a function
// that removes it. Steps already running are not affected.
func (b *Bus) AddInterceptor(ic Interceptor) (remove func()) {
	if ic == nil {
		return func() {}
	}
	handle := &ic

	b.icMu.Lock()
	b.icHandles = append(b.icHandles, handle)
	b.publishInterceptors()
	b.icMu.Unlock()

	return func() {
		b.icMu.Lock()
		defer b.icMu.Unlock()
		i := slices.Index(b.icHandles, handle)
		if i < 0 {
			return
		}
		b.icHandles = slices.Delete(slices.Clone(b.icHandles), i, i+1)
		b.publishInterceptors()
	}
}

// publishInterceptors swaps in a fresh snapshot, or nil when there are no
// interceptors so runStep can skip them with a single load.
// Caller must hold b.icMu.
func (b *Bus) publishInterceptors() {
	if len(b.icHandles) == 0 {
		b.interceptors.Store(nil)
		return
	}
	list := make([]Interceptor, len(b.icHandles))
	for i, h := range b.icHandles {
		list[i] = *h
	}
	b.interceptors.Store(&list)
}
