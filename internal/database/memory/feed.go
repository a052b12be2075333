package memory

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
)

const watcherBuffer = 64

// Feed fans change events out to watchers. Slow watchers drop events once
// their buffer is full; consumers coalesce anyway.
type Feed struct {
	mu       sync.Mutex
	watchers map[*watcher]struct{}
	revision atomic.Int64
}

func NewFeed() *Feed {
	return &Feed{watchers: make(map[*watcher]struct{})}
}

func (f *Feed) Watch(ctx context.Context, kind entity.RecordKind) (database.ChangeWatcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w := &watcher{feed: f, kind: kind, ch: make(chan entity.ChangeEvent, watcherBuffer)}

	f.mu.Lock()
	f.watchers[w] = struct{}{}
	f.mu.Unlock()

	go func() {
		<-ctx.Done()
		w.end(nil)
	}()
	return w, nil
}

func (f *Feed) Publish(ev entity.ChangeEvent) {
	f.revision.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	for w := range f.watchers {
		if w.kind != ev.Kind {
			continue
		}
		select {
		case w.ch <- ev:
		default:
		}
	}
}

// Revision counts published events, watched or not.
func (f *Feed) Revision(ctx context.Context) (int64, error) {
	return f.revision.Load(), ctx.Err()
}

// Fail terminates every open watcher of kind with err.
func (f *Feed) Fail(kind entity.RecordKind, err error) {
	f.mu.Lock()
	var victims []*watcher
	for w := range f.watchers {
		if w.kind == kind {
			victims = append(victims, w)
		}
	}
	f.mu.Unlock()

	for _, w := range victims {
		w.end(err)
	}
}

// Open returns the number of live watchers.
func (f *Feed) Open() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.watchers)
}

type watcher struct {
	feed *Feed
	kind entity.RecordKind
	ch   chan entity.ChangeEvent

	once sync.Once
	mu   sync.Mutex
	err  error
}

func (w *watcher) Changes() <-chan entity.ChangeEvent { return w.ch }

func (w *watcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *watcher) Close() error {
	w.end(nil)
	return nil
}

func (w *watcher) end(err error) {
	w.once.Do(func() {
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()

		// removal and close happen under the feed lock so Publish never
		// sends on a closed channel
		w.feed.mu.Lock()
		delete(w.feed.watchers, w)
		close(w.ch)
		w.feed.mu.Unlock()
	})
}
