package reportsync

import (
	"sync"

	"github.com/elecmate/certsync/internal/client/models"
)

// Aggregator owns the composite SyncStatus of one form.
//
// Every change bumps a version; a status is published to subscribers only if
// its version is newer than the last one published, so a slow publisher can
// never overwrite a newer status with an older one.
type Aggregator struct {
	mu        sync.Mutex
	status    models.SyncStatus
	version   uint64
	published uint64
	subs      []chan models.SyncStatus
	pubMu     sync.Mutex
}

func NewAggregator(initial models.SyncStatus) *Aggregator {
	return &Aggregator{status: initial}
}

// Update applies fn to the status and publishes the result.
func (a *Aggregator) Update(fn func(s *models.SyncStatus)) models.SyncStatus {
	a.mu.Lock()
	fn(&a.status)
	a.version++
	v, s := a.version, a.status
	a.mu.Unlock()

	a.publish(v, s)
	return s
}

func (a *Aggregator) publish(v uint64, s models.SyncStatus) {
	a.pubMu.Lock()
	defer a.pubMu.Unlock()

	if v <= a.published {
		return
	}
	a.published = v

	a.mu.Lock()
	subs := append([]chan models.SyncStatus(nil), a.subs...)
	a.mu.Unlock()

	for _, ch := range subs {
		// Latest wins: replace an unread status.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- s:
		default:
		}
	}
}

func (a *Aggregator) Status() models.SyncStatus {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// Version is the number of updates applied so far.
func (a *Aggregator) Version() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.version
}

// Subscribe returns a channel holding the most recent status. A reader that
// falls behind only misses intermediate states.
func (a *Aggregator) Subscribe() <-chan models.SyncStatus {
	ch := make(chan models.SyncStatus, 1)
	a.mu.Lock()
	ch <- a.status
	a.subs = append(a.subs, ch)
	a.mu.Unlock()
	return ch
}
