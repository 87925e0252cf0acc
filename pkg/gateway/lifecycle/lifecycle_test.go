package lifecycle

import "testing"

func TestLifecycle_DrainIsOneShot(t *testing.T) {
	t.Parallel()
	var l Lifecycle
	if l.IsDraining() {
		t.Fatalf("new lifecycle should not be draining")
	}
	if !l.Drain() {
		t.Fatalf("first Drain should return true")
	}
	if !l.IsDraining() {
		t.Fatalf("expected draining after Drain")
	}
	if l.Drain() {
		t.Fatalf("second Drain should return false")
	}
}

func TestLifecycle_NilReceiverIsSafe(t *testing.T) {
	t.Parallel()
	var l *Lifecycle
	if l.Drain() {
		t.Fatalf("nil Drain should return false")
	}
	if l.IsDraining() {
		t.Fatalf("nil IsDraining should return false")
	}
}
