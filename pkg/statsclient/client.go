// Package statsclient keeps a live copy of the dashboard counters. It
// prefers the server push stream, reconnects with exponential backoff and
// falls back to polling while still serving the last good snapshot.
package statsclient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultBaseDelay         = time.Second
	DefaultMaxAttempts       = 5
	DefaultPollInterval      = 30 * time.Second
	DefaultPushRetryInterval = 5 * time.Minute
	DefaultCacheTTL          = 10 * time.Minute
	// DefaultStallTimeout is twice the server heartbeat period.
	DefaultStallTimeout = 60 * time.Second
)

// ErrStreamStalled is reported when the stream delivers nothing, not even a
// heartbeat, for StallTimeout.
var ErrStreamStalled = errors.New("stats stream stalled")

type Config struct {
	BaseDelay    time.Duration
	MaxAttempts  int
	PollInterval time.Duration
	// PushRetryInterval is how often polling mode tries the stream again;
	// zero disables retries.
	PushRetryInterval time.Duration
	CacheTTL          time.Duration
	// StallTimeout drops a stream that stays silent this long.
	StallTimeout time.Duration

	// OnChange, if set, is called after every state or snapshot change.
	OnChange func(State, *Snapshot)
}

func DefaultConfig() Config {
	return Config{
		BaseDelay:         DefaultBaseDelay,
		MaxAttempts:       DefaultMaxAttempts,
		PollInterval:      DefaultPollInterval,
		PushRetryInterval: DefaultPushRetryInterval,
		CacheTTL:          DefaultCacheTTL,
		StallTimeout:      DefaultStallTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = DefaultCacheTTL
	}
	if c.StallTimeout <= 0 {
		c.StallTimeout = DefaultStallTimeout
	}
	return c
}

type Client struct {
	transport Transport
	cache     Cache
	cfg       Config
	now       func() time.Time

	fetches singleflight.Group

	mu       sync.RWMutex
	state    State
	snapshot *Snapshot
	lastErr  error
}

// New creates a client. A nil cache means an in-memory one.
func New(transport Transport, cache Cache, cfg Config) *Client {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Client{
		transport: transport,
		cache:     cache,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
		state:     State{Phase: PhaseLoading},
	}
}

// Snapshot returns the last good snapshot, or nil before the first one.
func (c *Client) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.snapshot == nil {
		return nil
	}
	cp := *c.snapshot
	return &cp
}

func (c *Client) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Status is loading, connected or disconnected.
func (c *Client) Status() string {
	return c.State().Status()
}

// Err returns the last fetch or stream error.
func (c *Client) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// Run seeds from the cache, fetches once and then keeps the push stream
// (or the polling fallback) going until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	c.seed()

	if _, err := c.Refresh(ctx); err != nil {
		logrus.WithError(err).Warn("Initial stats fetch failed")
	}

	for ctx.Err() == nil {
		if c.State().Phase == PhasePolling {
			if !c.poll(ctx) {
				break
			}
			c.apply(EventPushRetry)
			continue
		}

		err := c.stream(ctx)
		if ctx.Err() != nil {
			break
		}
		c.setErr(err)
		st := c.apply(EventPushFailed)

		if st.Phase == PhaseReconnecting {
			delay := Backoff(c.cfg.BaseDelay, st.Attempt)
			logrus.WithFields(logrus.Fields{
				"attempt": st.Attempt,
				"delay":   delay.String(),
			}).WithError(err).Warn("Stats stream lost, reconnecting")
			if !sleep(ctx, delay) {
				break
			}
			continue
		}
		logrus.WithError(err).Warn("Stats stream unavailable, falling back to polling")
	}
	return nil
}

// stream runs one push stream attempt under a stall watchdog: every frame
// re-arms it, expiry cancels the request.
func (c *Client) stream(ctx context.Context) error {
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stalled atomic.Bool
	watchdog := time.AfterFunc(c.cfg.StallTimeout, func() {
		stalled.Store(true)
		cancel()
	})
	defer watchdog.Stop()
	alive := func() { watchdog.Reset(c.cfg.StallTimeout) }

	err := c.transport.Stream(streamCtx, StreamHandler{
		Opened: func() {
			alive()
			c.apply(EventPushOpened)
		},
		Frame: c.receive,
		Alive: alive,
	})
	if stalled.Load() && ctx.Err() == nil {
		return ErrStreamStalled
	}
	return err
}

// Refresh fetches a snapshot now. Concurrent calls share one request.
func (c *Client) Refresh(ctx context.Context) (*Snapshot, error) {
	v, err, _ := c.fetches.Do("stats", func() (interface{}, error) {
		snap, err := c.transport.Fetch(ctx)
		if err != nil {
			c.setErr(err)
			c.apply(EventPollFailed)
			return nil, err
		}
		c.store(snap)
		c.apply(EventPollSucceeded)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	cp := *v.(*Snapshot)
	return &cp, nil
}

// poll fetches every PollInterval until a push retry is due. It returns
// false when ctx is done.
func (c *Client) poll(ctx context.Context) bool {
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	var retry <-chan time.Time
	if c.cfg.PushRetryInterval > 0 {
		t := time.NewTimer(c.cfg.PushRetryInterval)
		defer t.Stop()
		retry = t.C
	}

	c.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
			c.pollOnce(ctx)
		case <-retry:
			logrus.Info("Retrying stats stream")
			return true
		}
	}
}

func (c *Client) pollOnce(ctx context.Context) {
	if _, err := c.Refresh(ctx); err != nil && ctx.Err() == nil {
		logrus.WithError(err).Warn("Stats poll failed, serving cached snapshot")
	}
}

func (c *Client) seed() {
	snap, savedAt, err := c.cache.Load()
	if err != nil {
		logrus.WithError(err).Warn("Failed to read stats cache")
		return
	}
	if snap == nil || c.now().Sub(savedAt) > c.cfg.CacheTTL {
		return
	}

	c.mu.Lock()
	c.snapshot = snap
	st := c.state
	c.mu.Unlock()
	c.changed(st, snap)
}

func (c *Client) receive(snap *Snapshot) {
	c.store(snap)
	c.apply(EventPushFrame)
}

func (c *Client) store(snap *Snapshot) {
	cp := *snap
	c.mu.Lock()
	c.snapshot = &cp
	c.lastErr = nil
	c.mu.Unlock()

	if err := c.cache.Save(&cp, c.now()); err != nil {
		logrus.WithError(err).Warn("Failed to write stats cache")
	}
}

func (c *Client) apply(ev Event) State {
	c.mu.Lock()
	st := Next(c.state, ev, c.cfg.MaxAttempts)
	c.state = st
	snap := c.snapshot
	c.mu.Unlock()

	c.changed(st, snap)
	return st
}

func (c *Client) changed(st State, snap *Snapshot) {
	if c.cfg.OnChange == nil {
		return
	}
	var cp *Snapshot
	if snap != nil {
		s := *snap
		cp = &s
	}
	c.cfg.OnChange(st, cp)
}

func (c *Client) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
