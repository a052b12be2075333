// Package broadcaster pushes dashboard snapshots to long-lived stream
// connections. Each connection owns its watchers and timers; nothing is
// shared between connections except the arena used for introspection.
package broadcaster

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/ds124wfegd/WB_L3/parking/internal/metrics"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	DefaultHeartbeat           = 30 * time.Second
	DefaultInactivityThreshold = 5 * time.Minute
	DefaultThrottledInterval   = 2 * time.Minute

	// CalculationFailed is sent instead of a snapshot when recomputation fails.
	CalculationFailed = "failed to calculate stats"
)

// Calculator produces one dashboard snapshot.
type Calculator interface {
	Calculate(ctx context.Context) (*entity.DashboardStats, error)
}

// Sink is the outbound side of one connection. Send must not be called
// concurrently; the broadcaster never does.
type Sink interface {
	Send(f Frame) error
}

type Config struct {
	Heartbeat           time.Duration
	InactivityThreshold time.Duration
	ThrottledInterval   time.Duration
}

func (c Config) withDefaults() Config {
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
	if c.InactivityThreshold <= 0 {
		c.InactivityThreshold = DefaultInactivityThreshold
	}
	if c.ThrottledInterval <= 0 {
		c.ThrottledInterval = DefaultThrottledInterval
	}
	return c
}

// Frame is one message on the stream.
type Frame struct {
	Stats     *entity.DashboardStats
	Heartbeat bool
	Error     string
	Timestamp time.Time
}

// Kind names the frame for the SSE event field.
func (f Frame) Kind() string {
	switch {
	case f.Error != "":
		return "error"
	case f.Heartbeat:
		return "heartbeat"
	}
	return "stats"
}

// Data is the JSON body of the frame.
func (f Frame) Data() interface{} {
	switch {
	case f.Error != "":
		return map[string]interface{}{"error": f.Error, "timestamp": f.Timestamp}
	case f.Heartbeat:
		return map[string]interface{}{"heartbeat": true, "timestamp": f.Timestamp}
	}
	return f.Stats
}

// ConnectionInfo describes one open connection.
type ConnectionInfo struct {
	ID           string    `json:"id"`
	OpenedAt     time.Time `json:"openedAt"`
	LastActivity time.Time `json:"lastActivity"`
	Throttled    bool      `json:"throttled"`
	Watchers     int       `json:"watchers"`
	FramesSent   int64     `json:"framesSent"`
}

type Broadcaster struct {
	feed  database.ChangeFeed
	calc  Calculator
	cfg   Config
	kinds []entity.RecordKind
	now   func() time.Time

	mu    sync.Mutex
	conns map[string]*connection
}

func New(feed database.ChangeFeed, calc Calculator, cfg Config) *Broadcaster {
	return &Broadcaster{
		feed:  feed,
		calc:  calc,
		cfg:   cfg.withDefaults(),
		kinds: entity.WatchedKinds,
		now:   time.Now,
		conns: make(map[string]*connection),
	}
}

// Serve runs one connection until ctx is cancelled or a send fails. It
// returns after every watcher, forwarder and ticker of the connection is
// released. A client going away is not an error.
func (b *Broadcaster) Serve(ctx context.Context, sink Sink) error {
	now := b.now()
	c := &connection{
		b:            b,
		id:           uuid.New().String(),
		sink:         sink,
		openedAt:     now,
		lastActivity: now,
		events:       make(chan entity.ChangeEvent, 64),
		feedErrs:     make(chan feedError, len(b.kinds)),
	}
	c.log = logrus.WithField("conn_id", c.id)

	b.register(c)
	defer b.unregister(c)

	return c.run(ctx)
}

// Connections lists the open connections ordered by opening time.
func (b *Broadcaster) Connections() []ConnectionInfo {
	b.mu.Lock()
	conns := make([]*connection, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	out := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		out = append(out, c.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out
}

func (b *Broadcaster) register(c *connection) {
	b.mu.Lock()
	b.conns[c.id] = c
	b.mu.Unlock()
	metrics.StreamConnections.Inc()
	c.log.Info("Stats stream connected")
}

func (b *Broadcaster) unregister(c *connection) {
	b.mu.Lock()
	delete(b.conns, c.id)
	b.mu.Unlock()
	metrics.StreamConnections.Dec()
	c.log.Info("Stats stream disconnected")
}
