package eventflow

import "sync"

var defaultBus = sync.OnceValue(func() *Bus {
	return New()
})

// Default returns the process-wide bus, creating it on first use. It is
// never torn down. Prefer passing a *Bus explicitly; Default exists for
// code that has no natural place to receive one.
func Default() *Bus {
	return defaultBus()
}
