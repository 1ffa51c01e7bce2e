// Package progress defines the callback contract through which a merge run
// reports completion percentage and status text to its caller.
package progress

import "sync"

// Func receives progress updates during a merge run. pct runs 0-100 and
// never decreases within one run; an empty message means the previous status
// text still applies. The merge engine calls the sink synchronously, so
// implementations should return quickly.
type Func func(pct int, message string)

// Nop discards all updates.
func Nop(int, string) {}

// Monotonic wraps sink so that delivered percentages never decrease,
// clamping out-of-order values up to the highest already seen. Delivery is
// serialized, so the wrapped sink needs no locking of its own.
func Monotonic(sink Func) Func {
	if sink == nil {
		sink = Nop
	}
	var mu sync.Mutex
	highest := 0
	return func(pct int, message string) {
		mu.Lock()
		defer mu.Unlock()
		if pct < highest {
			pct = highest
		}
		highest = pct
		sink(pct, message)
	}
}
