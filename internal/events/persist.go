package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/marinraf/StimuliApp-sub001/internal/storage"
)

// DefaultQueueSize is the persistence queue length used by SetStore.
const DefaultQueueSize = 1024

type job struct {
	ts    time.Time
	event *Event
	trial *storage.TrialRow
}

// Persister drains events and trial rows into a store on its own goroutine
// so the frame loop never waits on I/O. When the queue is full the item is
// dropped and counted.
type Persister struct {
	store   storage.Store
	queue   chan job
	done    chan struct{}
	dropped atomic.Uint64

	mu          sync.Mutex
	closed      bool
	errorLogged bool
}

// NewPersister starts a writer goroutine for store.
func NewPersister(store storage.Store, size int) *Persister {
	if size <= 0 {
		size = DefaultQueueSize
	}
	p := &Persister{
		store: store,
		queue: make(chan job, size),
		done:  make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *Persister) run() {
	defer close(p.done)
	for j := range p.queue {
		var err error
		switch {
		case j.event != nil:
			err = p.store.Append(j.ts, j.event.Level, j.event.Name, j.event.Message, j.event.Fields)
		case j.trial != nil:
			err = p.store.AppendTrial(*j.trial)
		}
		if err != nil {
			p.logErrorOnce(err)
		}
	}
}

// logErrorOnce adds system.error straight to the ring buffer; going through
// Emit would queue another write against the failing store.
func (p *Persister) logErrorOnce(err error) {
	p.mu.Lock()
	logged := p.errorLogged
	p.errorLogged = true
	p.mu.Unlock()
	if logged {
		return
	}
	buffer.Add(Event{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     "error",
		Name:      "system.error",
		Message:   "store append failed",
		Fields:    map[string]interface{}{"error": err.Error()},
	})
}

func (p *Persister) enqueue(j job) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	select {
	case p.queue <- j:
		return true
	default:
		p.dropped.Add(1)
		return false
	}
}

// Dropped returns how many items were discarded because the queue was full.
func (p *Persister) Dropped() uint64 {
	return p.dropped.Load()
}

// Close stops accepting work and waits for the queue to drain.
func (p *Persister) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	<-p.done
}

var (
	persistMu sync.RWMutex
	persister *Persister
)

// SetStore installs store as the persistence target. The previous persister,
// if any, is drained first. A nil store disables persistence.
func SetStore(store storage.Store) {
	persistMu.Lock()
	prev := persister
	persister = nil
	if store != nil {
		persister = NewPersister(store, DefaultQueueSize)
	}
	persistMu.Unlock()
	if prev != nil {
		prev.Close()
	}
}

// GetStore returns the current store (for API queries and restore).
func GetStore() storage.Store {
	persistMu.RLock()
	defer persistMu.RUnlock()
	if persister == nil {
		return nil
	}
	return persister.store
}

// Flush drains the current persister and keeps writing to the same store.
func Flush() {
	if store := GetStore(); store != nil {
		SetStore(store)
	}
}

// PersistTrial queues a trial row. It returns false if no store is set or
// the row was dropped.
func PersistTrial(row storage.TrialRow) bool {
	persistMu.RLock()
	p := persister
	persistMu.RUnlock()
	if p == nil {
		return false
	}
	return p.enqueue(job{trial: &row})
}

// DroppedCount returns the drop counter of the current persister.
func DroppedCount() uint64 {
	persistMu.RLock()
	defer persistMu.RUnlock()
	if persister == nil {
		return 0
	}
	return persister.Dropped()
}

func persistEvent(ts time.Time, e Event) {
	persistMu.RLock()
	p := persister
	persistMu.RUnlock()
	if p == nil {
		return
	}
	p.enqueue(job{ts: ts, event: &e})
}
