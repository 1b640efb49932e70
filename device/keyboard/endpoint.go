package keyboard

import (
	"context"
)

// Endpoint is the single packet buffer of the interrupt IN endpoint. The
// firmware side fills it with Put; the host side drains it when it polls.
// Neither side needs the class lock, so a writer spinning on a full buffer
// never blocks the poll that empties it.
type Endpoint struct {
	maxPacket int
	buf       chan []byte
}

// NewEndpoint returns an empty endpoint buffer for packets up to maxPacket bytes.
func NewEndpoint(maxPacket int) *Endpoint {
	return &Endpoint{maxPacket: maxPacket, buf: make(chan []byte, 1)}
}

// Put queues a copy of p (truncated to the packet size) and returns the
// number of bytes accepted, or 0 when the previous packet has not been
// collected yet.
func (e *Endpoint) Put(p []byte) int {
	if len(p) > e.maxPacket {
		p = p[:e.maxPacket]
	}
	pkt := make([]byte, len(p))
	copy(pkt, p)
	select {
	case e.buf <- pkt:
		return len(pkt)
	default:
		return 0
	}
}

// Take waits for a packet. It returns ctx.Err() when the poll is abandoned.
func (e *Endpoint) Take(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	select {
	case p := <-e.buf:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Requeue puts back a packet whose poll was cancelled after it was taken.
// It gives up when a newer packet already occupies the buffer.
func (e *Endpoint) Requeue(p []byte) bool {
	select {
	case e.buf <- p:
		return true
	default:
		return false
	}
}

// Flush drops a queued packet.
func (e *Endpoint) Flush() {
	select {
	case <-e.buf:
	default:
	}
}

// Busy reports whether a packet is waiting for the host.
func (e *Endpoint) Busy() bool { return len(e.buf) > 0 }
