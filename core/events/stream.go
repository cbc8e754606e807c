package events

import (
	"sync"

	"tiersale/core/types"
)

// DefaultStreamHistory is the number of updates a Stream retains for late
// subscribers when no explicit limit is configured.
const DefaultStreamHistory = 1024

const streamBuffer = 32

// Update is a committed event tagged with its position in the stream.
type Update struct {
	Sequence uint64       `json:"sequence"`
	Event    *types.Event `json:"event"`
}

// Stream fans committed events out to live subscribers and keeps a bounded
// backlog so a subscriber can resume from the last sequence it saw. Slow
// subscribers miss updates instead of blocking the publisher; gaps show up as
// jumps in Sequence.
type Stream struct {
	mu      sync.Mutex
	limit   int
	seq     uint64
	nextID  uint64
	subs    map[uint64]chan Update
	history []Update
}

func NewStream(limit int) *Stream {
	if limit <= 0 {
		limit = DefaultStreamHistory
	}
	return &Stream{limit: limit, subs: make(map[uint64]chan Update)}
}

// Emit implements Emitter.
func (s *Stream) Emit(evt Event) {
	if s == nil || evt == nil {
		return
	}
	payload := evt.Event()
	if payload == nil {
		return
	}

	s.mu.Lock()
	s.seq++
	update := Update{Sequence: s.seq, Event: payload}
	s.history = append(s.history, update)
	if excess := len(s.history) - s.limit; excess > 0 {
		trimmed := make([]Update, s.limit)
		copy(trimmed, s.history[excess:])
		s.history = trimmed
	}
	for _, ch := range s.subs {
		select {
		case ch <- update:
		default:
		}
	}
	s.mu.Unlock()
}

// Subscribe returns the retained updates with a sequence above since together
// with a channel carrying every later update. The channel is closed by cancel.
func (s *Stream) Subscribe(since uint64) ([]Update, <-chan Update, func()) {
	ch := make(chan Update, streamBuffer)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = ch
	var backlog []Update
	for _, update := range s.history {
		if update.Sequence > since {
			backlog = append(backlog, update)
		}
	}
	s.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			close(ch)
			s.mu.Unlock()
		})
	}
	return backlog, ch, cancel
}

// Sequence reports the sequence of the most recent update.
func (s *Stream) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
