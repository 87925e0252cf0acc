package orchestrator

import (
	"context"
	"sync"
)

// Handle exposes the operations the tracker may invoke on an active call.
type Handle struct {
	End func(reason string)
}

// Tracker follows the set of calls currently in flight so shutdown can end
// them and wait for teardown to finish.
type Tracker struct {
	mu    sync.Mutex
	calls map[string]*trackedCall
	wg    sync.WaitGroup
}

type trackedCall struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		calls: make(map[string]*trackedCall),
	}
}

func (t *Tracker) Register(sessionID string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedCall{handle: h}

	t.mu.Lock()
	if t.calls == nil {
		t.calls = make(map[string]*trackedCall)
	}
	old := t.calls[sessionID]
	t.calls[sessionID] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(sessionID, old)
	}

	return func() { t.unregister(sessionID, entry) }
}

func (t *Tracker) unregister(sessionID string, entry *trackedCall) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.calls != nil && t.calls[sessionID] == entry {
			delete(t.calls, sessionID)
		}
		t.mu.Unlock()
		t.wg.Done()
	})
}

func (t *Tracker) Count() int {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.calls)
}

// EndAll ends every tracked call with the given reason. Used during drain.
func (t *Tracker) EndAll(reason string) (ended int) {
	if t == nil {
		return 0
	}

	var ends []func(reason string)
	t.mu.Lock()
	for _, entry := range t.calls {
		if entry == nil || entry.handle.End == nil {
			continue
		}
		ends = append(ends, entry.handle.End)
	}
	t.mu.Unlock()

	for _, end := range ends {
		end(reason)
		ended++
	}
	return ended
}

func (t *Tracker) Wait(ctx context.Context) bool {
	if t == nil {
		return true
	}
	if ctx == nil {
		t.wg.Wait()
		return true
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		t.wg.Wait()
	}()

	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
