package iface

import (
	"io"
)

// Loopback is an in-memory Device for tests: every Write is queued and
// played back by the next Read, standing in for a real tun device so
// the tunnel engine's state machine can be exercised without a kernel.
type Loopback struct {
	out chan []byte
}

// NewLoopback builds a Loopback with the given queue depth.
func NewLoopback(depth int) *Loopback {
	return &Loopback{out: make(chan []byte, depth)}
}

func (l *Loopback) Write(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	select {
	case l.out <- cp:
		return len(p), nil
	default:
		return 0, io.ErrShortWrite
	}
}

func (l *Loopback) Read(p []byte) (int, error) {
	data, ok := <-l.out
	if !ok {
		return 0, io.EOF
	}
	return copy(p, data), nil
}

func (l *Loopback) Close() error {
	close(l.out)
	return nil
}

// Delivered drains and returns every datagram written so far, without
// blocking.
func (l *Loopback) Delivered() [][]byte {
	var all [][]byte
	for {
		select {
		case data := <-l.out:
			all = append(all, data)
		default:
			return all
		}
	}
}
