package benchmarks

import (
	"fmt"
	"testing"

	"github.com/randalmurphal/eventflow/pkg/eventflow"
)

// buildChain returns the leaf of a chain of depth nodes, with a capture and
// a bubble listener on every node, plus the nodes themselves so they stay
// reachable.
func buildChain(bus *eventflow.Bus, depth int) (*eventflow.Node, []*eventflow.Node) {
	nodes := make([]*eventflow.Node, 0, depth)
	var parent *eventflow.Node
	for i := 0; i < depth; i++ {
		n := eventflow.NewNode(fmt.Sprintf("n%d", i), parent)
		eventflow.On(bus, "bench", noop(), eventflow.WithTarget(n), eventflow.WithCapture())
		eventflow.On(bus, "bench", noop(), eventflow.WithTarget(n))
		nodes = append(nodes, n)
		parent = n
	}
	return parent, nodes
}

// BenchmarkDispatch_Depth dispatches through hierarchies of increasing depth.
func BenchmarkDispatch_Depth(b *testing.B) {
	for _, depth := range []int{1, 5, 20, 100} {
		b.Run(fmt.Sprintf("depth=%d", depth), func(b *testing.B) {
			bus := newBus()
			leaf, nodes := buildChain(bus, depth)
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := bus.Dispatch(leaf, eventflow.NewEvent("bench", Payload{Value: i})); err != nil {
					b.Fatal(err)
				}
			}
			b.StopTimer()
			_ = nodes
		})
	}
}

// BenchmarkDispatch_StopAtTarget stops propagation at the target so the
// bubbling phase is skipped.
func BenchmarkDispatch_StopAtTarget(b *testing.B) {
	bus := newBus()
	leaf, nodes := buildChain(bus, 20)
	eventflow.On(bus, "bench", eventflow.Func(func(e *eventflow.Event[Payload]) {
		e.StopPropagation()
	}), eventflow.WithTarget(leaf), eventflow.WithPriority(1))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = bus.Dispatch(leaf, eventflow.NewEvent("bench", Payload{Value: i}))
	}
	b.StopTimer()
	_ = nodes
}

// BenchmarkDispatch_Interceptor measures the overhead of one interceptor.
func BenchmarkDispatch_Interceptor(b *testing.B) {
	bus := newBus()
	leaf, nodes := buildChain(bus, 5)
	steps := 0
	bus.AddInterceptor(eventflow.InterceptorFuncs{
		Before: func(eventflow.StepInfo) { steps++ },
	})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = bus.Dispatch(leaf, eventflow.NewEvent("bench", Payload{Value: i}))
	}
	b.StopTimer()
	_ = nodes
}
