package events

import "sync"

// RingBuffer numbers events in emit order and keeps the last size of
// them, so a reader can resume after the last sequence number it saw.
type RingBuffer struct {
	mu   sync.RWMutex
	ring []Event
	seq  uint64
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{ring: make([]Event, size)}
}

// Add assigns the next sequence number to e and stores it, evicting the
// oldest event once the ring is full.
func (rb *RingBuffer) Add(e Event) Event {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.seq++
	e.Seq = rb.seq
	rb.ring[rb.slot(rb.seq)] = e
	return e
}

func (rb *RingBuffer) slot(seq uint64) int {
	return int((seq - 1) % uint64(len(rb.ring)))
}

// oldest is the sequence number of the oldest event still held.
func (rb *RingBuffer) oldest() uint64 {
	if n := uint64(len(rb.ring)); rb.seq > n {
		return rb.seq - n + 1
	}
	return 1
}

// Since returns the held events after seq that match f, oldest first.
// Events evicted before the call are lost to the reader.
func (rb *RingBuffer) Since(seq uint64, f Filter) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	from := seq + 1
	if o := rb.oldest(); from < o {
		from = o
	}
	out := []Event{}
	for s := from; s <= rb.seq; s++ {
		if e := rb.ring[rb.slot(s)]; f.Match(e) {
			out = append(out, e)
		}
	}
	return out
}

// Last returns up to n of the newest events matching f, oldest first.
// n <= 0 returns every held match.
func (rb *RingBuffer) Last(n int, f Filter) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var rev []Event
	for s := rb.seq; s >= rb.oldest() && s > 0; s-- {
		if n > 0 && len(rev) == n {
			break
		}
		if e := rb.ring[rb.slot(s)]; f.Match(e) {
			rev = append(rev, e)
		}
	}
	out := make([]Event, len(rev))
	for i, e := range rev {
		out[len(rev)-1-i] = e
	}
	return out
}

func (rb *RingBuffer) Snapshot() []Event {
	return rb.Since(0, Filter{})
}

// Total is the last assigned sequence number, i.e. the number of events
// added since the last Clear.
func (rb *RingBuffer) Total() uint64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.seq
}

func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.ring = make([]Event, len(rb.ring))
	rb.seq = 0
}
