package eventflow

import (
	"slices"

	"github.com/randalmurphal/eventflow/pkg/eventflow/observability"
)

// linearScanLimit is the path length up to which revisits are detected by
// scanning the path instead of allocating a set.
const linearScanLimit = 16

// Dispatch propagates evt through the hierarchy containing target:
//
//  1. CAPTURING: capture listeners of each ancestor, root first.
//  2. AT_TARGET: the target's capture listeners, then its bubble listeners.
//  3. BUBBLING: bubble listeners of each ancestor, parent first. Skipped for
//     events created WithBubbles(false).
//
// StopPropagation lets the rest of the current step run and skips every
// later step; StopImmediatePropagation also skips the rest of the current
// step. Listener sets are snapshotted for the whole path before the first
// listener runs.
//
// Dispatch returns false if a listener called PreventDefault on a cancelable
// event. The only error is a *PropagationCycleError, returned before any
// listener runs when the ancestry loops or exceeds BusConfig.MaxPathDepth.
// A nil target, including a nil *Node, returns ErrNilTarget.
// Pattern and tag listeners take part in flat emits only.
func (b *Bus) Dispatch(target Target, evt AnyEvent) (bool, error) {
	if evt == nil {
		return false, ErrNilEvent
	}
	if n, ok := target.(*Node); target == nil || (ok && n == nil) {
		return false, ErrNilTarget
	}
	st := evt.state()

	start := b.config.Clock.Now()
	var spanErr error
	if b.observed {
		parent := st.ctx
		ctx, span := b.config.Spans.StartDispatchSpan(st.Context(), st.eventType, st.id)
		st.ctx = ctx
		defer func() {
			b.config.Spans.EndSpanWithError(span, spanErr)
			st.ctx = parent
		}()
	}

	path, err := b.buildPath(st.eventType, target)
	if err != nil {
		spanErr = err
		observability.LogPropagationCycle(b.config.Logger, st.eventType, len(path), err)
		if b.observed {
			b.config.Metrics.RecordDispatch(st.Context(), st.eventType, 0, b.config.Clock.Since(start), err)
			observability.AddSpanEvent(st.Context(), "eventflow.cycle")
		}
		return false, err
	}

	st.target = target
	st.path = path
	b.propagate(evt, path, b.reg.pathSnapshot(path, st.eventType))
	st.phase = PhaseNone
	st.currentTarget = nil

	if b.observed {
		b.config.Metrics.RecordDispatch(st.Context(), st.eventType, len(path), b.config.Clock.Since(start), nil)
	}
	observability.LogDispatchComplete(b.config.Logger, st.eventType, len(path),
		float64(b.config.Clock.Since(start).Microseconds())/1000, st.defaultPrevented)

	return !st.defaultPrevented, nil
}

// propagate runs the three phases over path, which is ordered root first.
func (b *Bus) propagate(evt AnyEvent, path []Target, lists []nodeListeners) {
	st := evt.state()
	last := len(path) - 1

	for i := 0; i < last; i++ {
		if st.propagationStopped {
			return
		}
		st.phase = PhaseCapturing
		st.currentTarget = path[i]
		b.runStep(evt, lists[i].capture, PhaseCapturing, path[i])
	}

	if st.propagationStopped {
		return
	}
	st.phase = PhaseAtTarget
	st.currentTarget = path[last]
	b.runStep(evt, atTarget(lists[last]), PhaseAtTarget, path[last])

	if !st.bubbles {
		return
	}
	for i := last - 1; i >= 0; i-- {
		if st.propagationStopped {
			return
		}
		st.phase = PhaseBubbling
		st.currentTarget = path[i]
		b.runStep(evt, lists[i].bubble, PhaseBubbling, path[i])
	}
}

// atTarget joins the target's capture group and bubble group into the
// single AT_TARGET step, capture group first.
func atTarget(l nodeListeners) []*entry {
	switch {
	case len(l.capture) == 0:
		return l.bubble
	case len(l.bubble) == 0:
		return l.capture
	}
	out := make([]*entry, 0, len(l.capture)+len(l.bubble))
	out = append(out, l.capture...)
	return append(out, l.bubble...)
}

// buildPath walks parent links from target and returns the path root first.
func (b *Bus) buildPath(eventType string, target Target) ([]Target, error) {
	limit := b.config.MaxPathDepth
	path := make([]Target, 0, 8)
	var seen map[Target]struct{}

	for node := target; node != nil; node = node.ParentTarget() {
		if len(path) >= limit {
			return path, &PropagationCycleError{EventType: eventType, Target: node, Depth: len(path), Limit: limit}
		}

		revisit := false
		if seen == nil {
			revisit = slices.Contains(path, node)
			if len(path) == linearScanLimit {
				seen = make(map[Target]struct{}, 2*linearScanLimit)
				for _, p := range path {
					seen[p] = struct{}{}
				}
			}
		} else {
			_, revisit = seen[node]
		}
		if revisit {
			return path, &PropagationCycleError{EventType: eventType, Target: node, Depth: len(path)}
		}

		path = append(path, node)
		if seen != nil {
			seen[node] = struct{}{}
		}
	}

	slices.Reverse(path)
	return path, nil
}
