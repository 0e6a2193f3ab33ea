package store

import (
	"sync"

	"github.com/i474232898/location-data-aggregation/internal/location"
)

// MemoryStore holds the single current snapshot and fans every replacement
// out to subscribers. It is safe for concurrent use.
type MemoryStore struct {
	mu sync.RWMutex

	current location.Snapshot

	// key: subscription id, value: conflating channel of capacity one
	subscribers map[uint64]chan location.Snapshot
	nextID      uint64
}

// NewMemoryStore creates a store holding the initial "waiting" snapshot.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		current:     location.InitialSnapshot(),
		subscribers: make(map[uint64]chan location.Snapshot),
	}
}

// Current returns the current snapshot.
func (s *MemoryStore) Current() location.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update replaces the snapshot with fn(current) as one atomic swap and
// notifies subscribers. It returns the new snapshot.
func (s *MemoryStore) Update(fn func(location.Snapshot) location.Snapshot) location.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.current = fn(s.current)
	s.notifyLocked()
	return s.current
}

// ClearError drops the status message and leaves every other field as is.
func (s *MemoryStore) ClearError() location.Snapshot {
	return s.Update(func(cur location.Snapshot) location.Snapshot {
		cur.StatusMessage = ""
		return cur
	})
}

// ToggleStationListExpanded flips the station list view flag.
func (s *MemoryStore) ToggleStationListExpanded() location.Snapshot {
	return s.Update(func(cur location.Snapshot) location.Snapshot {
		cur.StationListExpanded = !cur.StationListExpanded
		return cur
	})
}

// Subscribe returns a channel that immediately yields the current snapshot and
// then every replacement. A slow reader only ever sees the newest pending
// value. The returned function cancels the subscription and closes the
// channel.
func (s *MemoryStore) Subscribe() (<-chan location.Snapshot, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++

	ch := make(chan location.Snapshot, 1)
	ch <- s.current
	s.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if c, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(c)
			}
		})
	}
	return ch, cancel
}

// SubscriberCount returns the number of active subscriptions.
func (s *MemoryStore) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}

func (s *MemoryStore) notifyLocked() {
	for _, ch := range s.subscribers {
		select {
		case ch <- s.current:
			continue
		default:
		}
		// Drop the stale pending value so the newest one fits.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s.current:
		default:
		}
	}
}
