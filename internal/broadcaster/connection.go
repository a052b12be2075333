package broadcaster

import (
	"context"
	"sync"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/ds124wfegd/WB_L3/parking/internal/metrics"
	"github.com/sirupsen/logrus"
)

type feedError struct {
	gen int
	err error
}

// connection is the per-client state. Fields under mu are read by
// Connections; everything else belongs to the dispatcher goroutine.
type connection struct {
	b        *Broadcaster
	id       string
	sink     Sink
	openedAt time.Time
	log      *logrus.Entry

	events   chan entity.ChangeEvent
	feedErrs chan feedError

	// gen растет при каждом открытии наблюдателей, поздние ошибки
	// закрытого поколения игнорируются
	gen        int
	watchers   []database.ChangeWatcher
	stopWatch  context.CancelFunc
	forwarders sync.WaitGroup
	poll       *time.Ticker
	lastSent   *entity.DashboardStats
	closed     bool
	sendErr    error

	// ревизия ленты на момент последнего опроса
	revision    int64
	hasRevision bool

	mu           sync.Mutex
	lastActivity time.Time
	throttled    bool
	watching     int
	sent         int64
}

func (c *connection) run(ctx context.Context) error {
	heartbeat := time.NewTicker(c.b.cfg.Heartbeat)
	defer heartbeat.Stop()
	defer c.teardown()

	if err := c.openWatchers(ctx); err != nil {
		c.log.WithError(err).Warn("Change feed unavailable, polling")
		c.startPolling(ctx)
	}
	c.push(ctx, "initial")

	for !c.closed {
		select {
		case <-ctx.Done():
			return nil

		case <-c.events:
			c.coalesce()
			c.touch()
			c.push(ctx, "change")

		case fe := <-c.feedErrs:
			if fe.gen != c.gen || c.watchers == nil {
				continue
			}
			c.log.WithError(fe.err).Warn("Change feed failed, switching connection to polling")
			c.closeWatchers()
			c.startPolling(ctx)

		case <-heartbeat.C:
			now := c.b.now()
			if !c.emit(Frame{Heartbeat: true, Timestamp: now}) {
				continue
			}
			if !c.isThrottled() && now.Sub(c.activity()) >= c.b.cfg.InactivityThreshold {
				c.log.Info("No activity, throttling stats stream")
				c.closeWatchers()
				c.startPolling(ctx)
			}

		case <-c.pollC():
			prev := c.lastSent
			moved := c.revisionMoved(ctx)
			stats := c.push(ctx, "poll")
			if stats == nil {
				continue
			}
			if !moved && (prev == nil || stats.SameCounts(prev)) {
				continue
			}
			// что-то изменилось, пока наблюдатели были закрыты
			c.touch()
			if err := c.openWatchers(ctx); err != nil {
				c.log.WithError(err).Warn("Failed to reopen change feed, still polling")
				continue
			}
			c.stopPolling()
			c.log.Info("Activity detected, stats stream resumed")
		}
	}
	return c.sendErr
}

// openWatchers subscribes to every watched kind. On any failure the already
// opened watchers are released and the error is returned.
func (c *connection) openWatchers(ctx context.Context) error {
	c.gen++
	gen := c.gen
	watchCtx, cancel := context.WithCancel(ctx)

	watchers := make([]database.ChangeWatcher, 0, len(c.b.kinds))
	for _, kind := range c.b.kinds {
		w, err := c.b.feed.Watch(watchCtx, kind)
		if err != nil {
			cancel()
			for _, opened := range watchers {
				_ = opened.Close()
			}
			return err
		}
		watchers = append(watchers, w)
	}

	for _, w := range watchers {
		c.forwarders.Add(1)
		go c.forward(watchCtx, gen, w)
	}

	c.watchers = watchers
	c.stopWatch = cancel
	c.setWatching(len(watchers))
	return nil
}

func (c *connection) forward(ctx context.Context, gen int, w database.ChangeWatcher) {
	defer c.forwarders.Done()

	for ev := range w.Changes() {
		select {
		case c.events <- ev:
		case <-ctx.Done():
			return
		default:
			// очередь полна, событие все равно будет схлопнуто
		}
	}
	if err := w.Err(); err != nil {
		select {
		case c.feedErrs <- feedError{gen: gen, err: err}:
		case <-ctx.Done():
		}
	}
}

func (c *connection) closeWatchers() {
	if c.watchers == nil {
		return
	}
	c.stopWatch()
	for _, w := range c.watchers {
		if err := w.Close(); err != nil {
			c.log.WithError(err).Debug("Failed to close change watcher")
		}
	}
	c.forwarders.Wait()
	c.watchers = nil
	c.stopWatch = nil
	c.setWatching(0)
	c.coalesce()
}

// coalesce drops events already queued; one recompute covers them all.
func (c *connection) coalesce() {
	for {
		select {
		case <-c.events:
		default:
			return
		}
	}
}

func (c *connection) startPolling(ctx context.Context) {
	if c.poll != nil {
		return
	}
	c.revisionMoved(ctx)
	c.poll = time.NewTicker(c.b.cfg.ThrottledInterval)
	c.setThrottled(true)
	metrics.StreamThrottled.Inc()
}

// revisionMoved reports whether the feed revision changed since the previous
// call. Feeds without a revision leave detection to the counters.
func (c *connection) revisionMoved(ctx context.Context) bool {
	rf, ok := c.b.feed.(database.ChangeRevision)
	if !ok {
		return false
	}
	rev, err := rf.Revision(ctx)
	if err != nil {
		c.log.WithError(err).Debug("Failed to read change revision")
		return false
	}
	moved := c.hasRevision && rev != c.revision
	c.revision, c.hasRevision = rev, true
	return moved
}

func (c *connection) stopPolling() {
	if c.poll == nil {
		return
	}
	c.poll.Stop()
	c.poll = nil
	c.setThrottled(false)
	metrics.StreamThrottled.Dec()
}

func (c *connection) pollC() <-chan time.Time {
	if c.poll == nil {
		return nil
	}
	return c.poll.C
}

// push recomputes the snapshot and sends it. It returns the sent snapshot,
// or nil when nothing was sent.
func (c *connection) push(ctx context.Context, trigger string) *entity.DashboardStats {
	metrics.StatsRecomputes.WithLabelValues(trigger).Inc()

	stats, err := c.b.calc.Calculate(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		c.log.WithError(err).WithField("trigger", trigger).Error("Failed to calculate stats")
		c.emit(Frame{Error: CalculationFailed, Timestamp: c.b.now()})
		return nil
	}
	if !c.emit(Frame{Stats: stats, Timestamp: stats.Timestamp}) {
		return nil
	}
	c.lastSent = stats
	return stats
}

// emit sends one frame. A failed send closes the connection for good.
func (c *connection) emit(f Frame) bool {
	if c.closed {
		return false
	}
	if err := c.sink.Send(f); err != nil {
		c.log.WithError(err).Debug("Stats stream send failed, closing connection")
		c.closed = true
		c.sendErr = err
		return false
	}
	c.mu.Lock()
	c.sent++
	c.mu.Unlock()
	return true
}

func (c *connection) teardown() {
	c.closeWatchers()
	c.stopPolling()
}

func (c *connection) touch() {
	now := c.b.now()
	c.mu.Lock()
	c.lastActivity = now
	c.mu.Unlock()
}

func (c *connection) activity() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActivity
}

func (c *connection) isThrottled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.throttled
}

func (c *connection) setThrottled(v bool) {
	c.mu.Lock()
	c.throttled = v
	c.mu.Unlock()
}

func (c *connection) setWatching(n int) {
	c.mu.Lock()
	c.watching = n
	c.mu.Unlock()
}

func (c *connection) info() ConnectionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ConnectionInfo{
		ID:           c.id,
		OpenedAt:     c.openedAt,
		LastActivity: c.lastActivity,
		Throttled:    c.throttled,
		Watchers:     c.watching,
		FramesSent:   c.sent,
	}
}
