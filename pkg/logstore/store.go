// Package logstore buffers classified editor log entries in a bounded ring
// and fans them out to subscribers.
//
// The store is the single producer for sequence numbers: allocation, ring
// mutation, and subscriber broadcast all happen under one mutex. Subscriber
// queues are bounded with drop-oldest overflow so a slow reader can never
// stall ingestion.
package logstore

import (
	"sync"
	"time"
)

// DefaultCapacity is the ring size used by the daemon.
const DefaultCapacity = 1000

// SourceAll disables source filtering in queries.
const SourceAll = "all"

// Entry is one classified log line.
type Entry struct {
	Seq        int64     `json:"seq"`
	Timestamp  time.Time `json:"timestamp"`
	Source     string    `json:"source"`
	Level      string    `json:"level"`
	Message    string    `json:"message"`
	StackTrace string    `json:"stackTrace,omitempty"`
	// Color is an optional display hint passed through from the classifier.
	Color string `json:"color,omitempty"`
}

// Subscription is a bounded drop-oldest feed of entries for one reader.
// The channel is closed on Unsubscribe.
type Subscription struct {
	C  <-chan Entry
	ch chan Entry
}

// Store is the bounded log ring with clear-watermark semantics.
type Store struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	nextSeq  int64

	// Entries with Seq < clearMark are hidden from default queries but
	// remain retrievable with includeCleared.
	clearMark   int64
	clearedAt   time.Time
	clearReason string

	subs map[*Subscription]struct{}
}

// NewStore creates a store holding at most capacity entries.
func NewStore(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
		nextSeq:  1,
		subs:     make(map[*Subscription]struct{}),
	}
}

// Append assigns the next sequence number, stores the entry (evicting the
// oldest on overflow), and offers it to every subscriber without blocking.
// The stored entry, with sequence number and timestamp filled in, is returned.
func (s *Store) Append(e Entry) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e.Seq = s.nextSeq
	s.nextSeq++
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	if len(s.entries) == s.capacity {
		copy(s.entries, s.entries[1:])
		s.entries[len(s.entries)-1] = e
	} else {
		s.entries = append(s.entries, e)
	}

	for sub := range s.subs {
		offer(sub.ch, e)
	}
	return e
}

// offer performs a non-blocking send, dropping the oldest queued entry when
// the queue is full. Called only under the store lock, so no other goroutine
// sends on ch concurrently.
func offer(ch chan Entry, e Entry) {
	select {
	case ch <- e:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- e:
	default:
	}
}

// Recent returns the filtered tail of the store.
//
// source equal to SourceAll matches every entry; any other value requires
// strict equality. Unless includeCleared is set, entries below the clear
// watermark are excluded. count > 0 limits the result to the last count
// entries of the filtered set; count == 0 returns all of them.
func (s *Store) Recent(count int, source string, includeCleared bool) []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	filtered := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		if !includeCleared && e.Seq < s.clearMark {
			continue
		}
		if source != SourceAll && source != "" && e.Source != source {
			continue
		}
		filtered = append(filtered, e)
	}
	if count > 0 && len(filtered) > count {
		filtered = filtered[len(filtered)-count:]
	}
	return filtered
}

// Clear advances the watermark to the next sequence number. Nothing is
// deleted; cleared entries stay retrievable with includeCleared. The new
// watermark is returned.
func (s *Store) Clear(reason string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearMark = s.nextSeq
	s.clearedAt = time.Now()
	s.clearReason = reason
	return s.clearMark
}

// ClearMark returns the current watermark, zero if never cleared.
func (s *Store) ClearMark() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clearMark
}

// Subscribe attaches a new bounded reader to the store. buffer is the queue
// capacity; entries beyond it are dropped oldest-first for this reader only.
func (s *Store) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan Entry, buffer)
	sub := &Subscription{C: ch, ch: ch}
	s.mu.Lock()
	s.subs[sub] = struct{}{}
	s.mu.Unlock()
	return sub
}

// Unsubscribe detaches the reader and closes its channel. Safe to call once
// per subscription; closing happens under the store lock so it cannot race a
// broadcast.
func (s *Store) Unsubscribe(sub *Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[sub]; !ok {
		return
	}
	delete(s.subs, sub)
	close(sub.ch)
}

// Len returns the number of buffered entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Subscribers returns the number of attached readers.
func (s *Store) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}
