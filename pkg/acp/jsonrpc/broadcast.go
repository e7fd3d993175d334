package jsonrpc

import "sync"

// streamBuffer is the per-subscriber buffer for the notification fan-out. A
// subscriber further behind than this starts missing notifications.
const streamBuffer = 100

// NotificationStream is one subscriber's handle onto the agent notification
// fan-out.
type NotificationStream struct {
	b      *broadcaster
	ch     chan *Request
	closed bool
}

// Notifications returns the stream's channel. It is closed when the stream
// is unsubscribed or the connection tears down.
func (s *NotificationStream) Notifications() <-chan *Request {
	return s.ch
}

// Unsubscribe detaches the stream from the fan-out and closes its channel.
func (s *NotificationStream) Unsubscribe() {
	s.b.unsubscribe(s)
}

// broadcaster fans inbound agent messages out to every live stream. Delivery
// is at-most-once: with no subscribers a message is dropped, and a full
// subscriber buffer drops rather than blocking the reader loop.
type broadcaster struct {
	mu      sync.Mutex
	streams []*NotificationStream
	closed  bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{}
}

func (b *broadcaster) subscribe() *NotificationStream {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := &NotificationStream{
		b:  b,
		ch: make(chan *Request, streamBuffer),
	}
	if b.closed {
		s.closed = true
		close(s.ch)
		return s
	}
	b.streams = append(b.streams, s)
	return s
}

func (b *broadcaster) unsubscribe(s *NotificationStream) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	for i, cur := range b.streams {
		if cur == s {
			b.streams = append(b.streams[:i], b.streams[i+1:]...)
			break
		}
	}
	close(s.ch)
}

func (b *broadcaster) publish(req *Request) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, s := range b.streams {
		select {
		case s.ch <- req:
		default:
		}
	}
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, s := range b.streams {
		s.closed = true
		close(s.ch)
	}
	b.streams = nil
}
