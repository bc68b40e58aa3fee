package commandbus

import (
	"context"
	"sync"
)

// Stream is the shared, append-only ordered stream every partition consumes.
// Each subscriber receives every entry, and all subscribers receive entries in the
// same global order: appends are serialized and fanned out one entry at a time.
//
// A full subscriber buffer blocks appenders, and appends are serialized, so a
// stalled partition eventually stops admission for every aggregate, not only its own.
type Stream struct {
	mu       sync.Mutex
	subs     []chan *Entry
	buffer   int
	sequence uint64
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
}

// NewStream creates a stream whose subscriber channels hold buffer entries each.
func NewStream(buffer int) *Stream {
	if buffer < 0 {
		buffer = 0
	}
	return &Stream{
		buffer: buffer,
		done:   make(chan struct{}),
	}
}

// Subscribe registers a new consumer. Only entries appended after the call are delivered.
// The returned channel is closed when the stream is closed.
func (s *Stream) Subscribe() (<-chan *Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	ch := make(chan *Entry, s.buffer)
	s.subs = append(s.subs, ch)
	return ch, nil
}

// Append assigns the next global sequence to entry and delivers it to every subscriber.
// ctx is only checked before the entry is admitted: once fan-out starts it runs to
// completion unless the stream is closed, so no subscriber misses an admitted entry.
func (s *Stream) Append(ctx context.Context, entry *Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}

	s.sequence++
	entry.sequence = s.sequence
	for _, ch := range s.subs {
		select {
		case ch <- entry:
		case <-s.done:
			return ErrStreamClosed
		}
	}
	return nil
}

// Sequence returns the sequence of the last admitted entry.
func (s *Stream) Sequence() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sequence
}

// Close stops admitting entries and closes every subscriber channel once in-flight
// appends have returned. Subscribers still drain whatever was buffered.
// Safe to call multiple times.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.closed = true
		for _, ch := range s.subs {
			close(ch)
		}
	})
	return nil
}
