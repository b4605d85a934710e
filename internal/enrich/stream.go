package enrich

import (
	"context"
	"sync"
)

// Response is a successful cadastral response for one building.
type Response struct {
	Building *Building
	Body     string
}

// stream is the single handoff between the scheduler and the processor. It is
// closed at most once; sends after closure are dropped.
type stream struct {
	mu     sync.RWMutex
	closed bool
	ch     chan Response
}

func newStream(size int) *stream {
	return &stream{ch: make(chan Response, size)}
}

// send delivers r unless the stream is closed or ctx is done.
func (s *stream) send(ctx context.Context, r Response) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// close reports whether this call closed the stream. onClose runs just before
// the channel is closed, only on the call that closes it.
func (s *stream) close(onClose func()) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	if onClose != nil {
		onClose()
	}
	close(s.ch)
	return true
}

func (s *stream) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
