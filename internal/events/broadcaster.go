package events

import (
	"sync"
	"sync/atomic"
)

const subscriptionBuffer = 64

// Subscription is a live feed of the events matching its filter. Events
// that do not match never take buffer space; events that arrive while the
// buffer is full are counted and dropped.
type Subscription struct {
	C <-chan Event

	ch      chan Event
	filter  Filter
	dropped atomic.Uint64
}

// Dropped is the number of matching events lost to a full buffer.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

type hub struct {
	mu   sync.RWMutex
	subs map[*Subscription]struct{}
}

var subscribers = &hub{subs: make(map[*Subscription]struct{})}

// Subscribe opens a feed of the events matching f.
func Subscribe(f Filter) *Subscription {
	ch := make(chan Event, subscriptionBuffer)
	s := &Subscription{C: ch, ch: ch, filter: f}
	subscribers.mu.Lock()
	subscribers.subs[s] = struct{}{}
	subscribers.mu.Unlock()
	return s
}

// Unsubscribe closes the feed. Closing twice is a no-op.
func Unsubscribe(s *Subscription) {
	subscribers.mu.Lock()
	defer subscribers.mu.Unlock()
	if _, ok := subscribers.subs[s]; !ok {
		return
	}
	delete(subscribers.subs, s)
	close(s.ch)
}

// CloseAllSubscribers closes every feed, used on shutdown.
func CloseAllSubscribers() {
	subscribers.mu.Lock()
	defer subscribers.mu.Unlock()
	for s := range subscribers.subs {
		close(s.ch)
	}
	subscribers.subs = make(map[*Subscription]struct{})
}

func broadcast(e Event) {
	subscribers.mu.RLock()
	defer subscribers.mu.RUnlock()

	for s := range subscribers.subs {
		if !s.filter.Match(e) {
			continue
		}
		select {
		case s.ch <- e:
		default:
			s.dropped.Add(1)
		}
	}
}

// SubscriberCount returns the number of open feeds.
func SubscriberCount() int {
	subscribers.mu.RLock()
	defer subscribers.mu.RUnlock()
	return len(subscribers.subs)
}

// RecentEvents returns up to n of the newest buffered events matching f
// (all of them when n <= 0), oldest first.
func RecentEvents(n int, f Filter) []Event {
	return buffer.Last(n, f)
}

// EventsSince returns the buffered events after sequence number seq that
// match f.
func EventsSince(seq uint64, f Filter) []Event {
	return buffer.Since(seq, f)
}
