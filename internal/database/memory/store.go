// Package memory is an in-process record store used by the dev "memory"
// driver and by tests.
package memory

import (
	"sync"
	"time"

	"github.com/ds124wfegd/WB_L3/parking/internal/database"
	"github.com/ds124wfegd/WB_L3/parking/internal/entity"
)

// Store keeps every collection behind one mutex; each write publishes a
// change event after the lock is released.
type Store struct {
	mu            sync.RWMutex
	tickets       map[string]*entity.Ticket
	vehicles      map[string]*entity.Vehicle
	payments      map[string]*entity.Payment
	history       map[string]*entity.HistoryEntry
	historyOrder  []string
	subscriptions map[string]*entity.Subscription
	staff         map[string]*entity.Staff
	settings      *entity.CompanySettings

	feed *Feed
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		tickets:       make(map[string]*entity.Ticket),
		vehicles:      make(map[string]*entity.Vehicle),
		payments:      make(map[string]*entity.Payment),
		history:       make(map[string]*entity.HistoryEntry),
		subscriptions: make(map[string]*entity.Subscription),
		staff:         make(map[string]*entity.Staff),
		feed:          NewFeed(),
		now:           time.Now,
	}
}

// Feed exposes the change feed so tests can inject failures.
func (s *Store) Feed() *Feed { return s.feed }

func (s *Store) Repositories() *database.Repositories {
	return &database.Repositories{
		Tickets:       &ticketRepository{s},
		Vehicles:      &vehicleRepository{s},
		Payments:      &paymentRepository{s},
		History:       &historyRepository{s},
		Subscriptions: &subscriptionRepository{s},
		Staff:         &staffRepository{s},
		Settings:      &settingsRepository{s},
		Stats:         &statsRepository{s},
		Feed:          s.feed,
	}
}

func (s *Store) publish(kind entity.RecordKind, op, key string) {
	s.feed.Publish(entity.ChangeEvent{Kind: kind, Op: op, Key: key, At: s.now()})
}
