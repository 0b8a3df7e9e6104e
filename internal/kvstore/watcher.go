package kvstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event reports a change to one key observed by a Watcher.
type Event struct {
	Key     string
	Deleted bool
}

// Watcher polls the store's revisions on an interval and notifies subscribers
// when keys change. Observation is passive and bounded by the poll interval,
// never instantaneous.
type Watcher struct {
	store    *Store
	interval time.Duration
	logger   *slog.Logger

	mu   sync.Mutex
	subs map[int]func(Event)
	next int
	last map[string]int64

	cancel context.CancelFunc
	done   chan struct{}
}

// NewWatcher creates a watcher over store. It does not start polling until
// Start is called.
func NewWatcher(store *Store, interval time.Duration, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		store:    store,
		interval: interval,
		logger:   logger,
		subs:     make(map[int]func(Event)),
	}
}

// Subscribe registers fn for change events. The returned function removes the
// subscription.
func (w *Watcher) Subscribe(fn func(Event)) (cancel func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.next
	w.next++
	w.subs[id] = fn
	return func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		delete(w.subs, id)
	}
}

// Start begins polling. Calling Start on a running watcher is a no-op.
func (w *Watcher) Start(ctx context.Context) {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return
	}
	ctx, w.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	w.done = done
	w.mu.Unlock()

	// Take the baseline before returning so changes made after Start are
	// always observed on a later pass.
	w.Poll(ctx)
	go w.run(ctx, done)
}

// Stop halts polling and waits for the poll loop to exit.
func (w *Watcher) Stop() {
	w.mu.Lock()
	cancel := w.cancel
	done := w.done
	w.cancel = nil
	w.done = nil
	w.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Poll performs one comparison pass immediately. Useful in tests and after a
// local write when the caller wants observers notified without waiting a full
// interval.
func (w *Watcher) Poll(ctx context.Context) {
	revs, err := w.store.Revisions(ctx)
	if err != nil {
		w.logger.Warn("kvstore poll failed", "error", err)
		return
	}

	w.mu.Lock()
	last := w.last
	w.last = revs
	subs := make([]func(Event), 0, len(w.subs))
	for _, fn := range w.subs {
		subs = append(subs, fn)
	}
	w.mu.Unlock()

	if last == nil {
		// First pass establishes the baseline.
		return
	}

	var events []Event
	for key, rev := range revs {
		if last[key] != rev {
			events = append(events, Event{Key: key})
		}
	}
	for key := range last {
		if _, ok := revs[key]; !ok {
			events = append(events, Event{Key: key, Deleted: true})
		}
	}

	for _, ev := range events {
		for _, fn := range subs {
			fn(ev)
		}
	}
}

func (w *Watcher) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Poll(ctx)
		}
	}
}
