package lifecycle

import "sync/atomic"

// Lifecycle is a tiny process lifecycle state holder shared across handlers.
// Once draining, new call starts are rejected and readiness reports not-ready
// while in-flight sessions are torn down.
type Lifecycle struct {
	draining atomic.Bool
}

// Drain marks the process as draining. Returns false if it was already
// draining, so shutdown paths can be made one-shot.
func (l *Lifecycle) Drain() bool {
	if l == nil {
		return false
	}
	return l.draining.CompareAndSwap(false, true)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
