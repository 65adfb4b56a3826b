package session

import (
	"context"
	"sync"
)

// Handle is what the tracker can do to a live session during drain.
type Handle struct {
	Cancel func()
}

// Tracker counts live sessions so shutdown can end them and wait for the
// count to reach zero.
type Tracker struct {
	mu      sync.Mutex
	entries map[string]*trackedEntry
	wg      sync.WaitGroup
}

type trackedEntry struct {
	handle Handle
	once   sync.Once
}

func NewTracker() *Tracker {
	return &Tracker{
		entries: make(map[string]*trackedEntry),
	}
}

func (t *Tracker) Register(token string, h Handle) (unregister func()) {
	if t == nil {
		return func() {}
	}

	entry := &trackedEntry{handle: h}

	t.mu.Lock()
	if t.entries == nil {
		t.entries = make(map[string]*trackedEntry)
	}
	old := t.entries[token]
	t.entries[token] = entry
	t.wg.Add(1)
	t.mu.Unlock()

	if old != nil {
		t.unregister(token, old)
	}

	return func() { t.unregister(token, entry) }
}

func (t *Tracker) unregister(token string, entry *trackedEntry) {
	if t == nil || entry == nil {
		return
	}
	entry.once.Do(func() {
		t.mu.Lock()
		if t.entries != nil && t.entries[token] == entry {
			delete(t.entries, token)
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
	return len(t.entries)
}

// CancelAll snapshots the cancel funcs under the lock, then calls them
// outside it.
func (t *Tracker) CancelAll() (canceled int) {
	if t == nil {
		return 0
	}

	var cancels []func()
	t.mu.Lock()
	for _, entry := range t.entries {
		if entry == nil || entry.handle.Cancel == nil {
			continue
		}
		cancels = append(cancels, entry.handle.Cancel)
	}
	t.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
		canceled++
	}
	return canceled
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
