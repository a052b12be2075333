package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	listenerMinReconnect = 2 * time.Second
	listenerMaxReconnect = time.Minute
	listenerPingInterval = 90 * time.Second
	changeBuffer         = 64
)

var channels = map[entity.RecordKind]string{
	entity.RecordTicket:  "parking_tickets",
	entity.RecordPayment: "parking_payments",
	entity.RecordVehicle: "parking_vehicles",
	entity.RecordStaff:   "parking_staff",
}

// ChannelFor returns the NOTIFY channel the triggers publish kind on.
func ChannelFor(kind entity.RecordKind) (string, error) {
	ch, ok := channels[kind]
	if !ok {
		return "", fmt.Errorf("no change channel for %q", kind)
	}
	return ch, nil
}

type changeFeed struct {
	dsn string
	db  *sql.DB
}

// NewChangeFeed returns a feed that opens one pq.Listener per Watch call.
// Revision reads the sequence the notify trigger advances, through db.
func NewChangeFeed(dsn string, db *sql.DB) database.ChangeFeed {
	return &changeFeed{dsn: dsn, db: db}
}

// Revision returns the last value of parking_change_seq, 0 before the first write.
func (f *changeFeed) Revision(ctx context.Context) (int64, error) {
	var rev int64
	err := f.db.QueryRowContext(ctx,
		`SELECT CASE WHEN is_called THEN last_value ELSE 0 END FROM parking_change_seq`,
	).Scan(&rev)
	if err != nil {
		return 0, fmt.Errorf("failed to read change revision: %w", err)
	}
	return rev, nil
}

func (f *changeFeed) Watch(ctx context.Context, kind entity.RecordKind) (database.ChangeWatcher, error) {
	channel, err := ChannelFor(kind)
	if err != nil {
		return nil, err
	}

	w := &pgWatcher{
		kind:     kind,
		changes:  make(chan entity.ChangeEvent, changeBuffer),
		failures: make(chan error, 1),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
	}

	listener := pq.NewListener(f.dsn, listenerMinReconnect, listenerMaxReconnect, w.onListenerEvent)
	if err := listener.Listen(channel); err != nil {
		listener.Close()
		return nil, fmt.Errorf("failed to listen on %s: %w", channel, err)
	}

	go w.run(ctx, listener)
	return w, nil
}

type pgWatcher struct {
	kind     entity.RecordKind
	changes  chan entity.ChangeEvent
	failures chan error
	closing  chan struct{}
	done     chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

func (w *pgWatcher) Changes() <-chan entity.ChangeEvent { return w.changes }

func (w *pgWatcher) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

func (w *pgWatcher) Close() error {
	w.closeOnce.Do(func() { close(w.closing) })
	<-w.done
	return nil
}

// onListenerEvent runs on the listener goroutine. A dropped connection ends
// the watcher: the consumer decides whether to poll or re-watch.
func (w *pgWatcher) onListenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		if err == nil {
			err = errors.New("listener disconnected")
		}
		select {
		case w.failures <- err:
		default:
		}
	}
}

func (w *pgWatcher) run(ctx context.Context, listener *pq.Listener) {
	ping := time.NewTicker(listenerPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finish(listener, nil)
			return
		case <-w.closing:
			w.finish(listener, nil)
			return
		case err := <-w.failures:
			w.finish(listener, fmt.Errorf("change feed %s: %w", w.kind, err))
			return
		case n, ok := <-listener.Notify:
			if !ok {
				w.finish(listener, fmt.Errorf("change feed %s: listener closed", w.kind))
				return
			}
			if n == nil {
				// reconnected, notifications may have been lost
				continue
			}
			ev, err := DecodeChange(w.kind, n.Extra)
			if err != nil {
				logrus.WithError(err).WithField("channel", n.Channel).Warn("Skipping malformed change notification")
				continue
			}
			select {
			case w.changes <- ev:
			default:
			}
		case <-ping.C:
			go listener.Ping()
		}
	}
}

func (w *pgWatcher) finish(listener *pq.Listener, err error) {
	if closeErr := listener.Close(); closeErr != nil && err == nil {
		logrus.WithError(closeErr).Debug("Listener close failed")
	}
	w.mu.Lock()
	w.err = err
	w.mu.Unlock()
	close(w.changes)
	close(w.done)
}

type notification struct {
	Op  string    `json:"op"`
	Key string    `json:"key"`
	At  time.Time `json:"at"`
}

// DecodeChange parses the payload written by parking_notify_change().
func DecodeChange(kind entity.RecordKind, payload string) (entity.ChangeEvent, error) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return entity.ChangeEvent{}, fmt.Errorf("failed to decode notification: %w", err)
	}
	if n.Op == "" {
		return entity.ChangeEvent{}, errors.New("notification without op")
	}
	if n.At.IsZero() {
		n.At = time.Now()
	}
	return entity.ChangeEvent{Kind: kind, Op: n.Op, Key: n.Key, At: n.At}, nil
}
