//go:build linux

package tunnel

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"go.uber.org/zap"

	"github.com/twogc/fectun/internal/iface"
)

// udpReader is the inbound side of the UDP socket.
type udpReader interface {
	ReadFrom(buf []byte) (int, net.Addr, error)
}

// EventLoop is the single dispatching actor that owns the tunnel's
// mutable state. Go has no direct equivalent of select(2) across a
// character-device fd and a socket fd in one call, so two reader
// goroutines (one per fd) push completed reads into unbuffered
// channels, and a single select statement here drains whichever is
// ready and hands it to the Sender or Receiver. All tunnel state is
// touched only inside this select's case bodies, so nothing here needs
// a lock even though the two reads run concurrently with each other.
type EventLoop struct {
	dev  iface.Device
	conn udpReader

	sender   *Sender
	receiver *Receiver
	logger   *zap.Logger

	forcedReset *atomic.Bool
}

// NewEventLoop builds an EventLoop wiring dev and conn to sender and
// receiver. forcedReset is the shared flag SIGUSR1 sets and
// Receiver.Deliver clears once it has logged the extended report.
func NewEventLoop(dev iface.Device, conn udpReader, sender *Sender, receiver *Receiver, logger *zap.Logger, forcedReset *atomic.Bool) *EventLoop {
	return &EventLoop{
		dev:         dev,
		conn:        conn,
		sender:      sender,
		receiver:    receiver,
		logger:      logger,
		forcedReset: forcedReset,
	}
}

type devRead struct {
	buf []byte
	err error
}

type udpRead struct {
	buf  []byte
	from net.Addr
	err  error
}

// Run drives the tunnel until ctx is cancelled or a fatal I/O error
// occurs on either fd. A connection-refused error on the UDP socket
// (the peer's stack rejecting a burst with no listener) is logged and
// ignored; any other read error on either fd ends the loop. Write
// errors are logged by the Sender and Receiver and do not stop it.
func (l *EventLoop) Run(ctx context.Context) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGUSR1)
	defer signal.Stop(sigCh)

	devCh := make(chan devRead)
	udpCh := make(chan udpRead)

	go l.readDevice(ctx, devCh)
	go l.readUDP(ctx, udpCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-sigCh:
			l.logger.Info("received forced-reset signal")
			l.forcedReset.Store(true)

		case r := <-devCh:
			if r.err != nil {
				return r.err
			}
			if err := l.sender.Submit(r.buf); err != nil {
				l.logger.Warn("failed to submit outbound packet", zap.Error(err))
			}

		case r := <-udpCh:
			if r.err != nil {
				if isConnRefused(r.err) {
					l.logger.Debug("peer refused connection, ignoring", zap.Error(r.err))
					continue
				}
				return r.err
			}
			l.receiver.Deliver(r.buf, r.from)
		}
	}
}

func (l *EventLoop) readDevice(ctx context.Context, out chan<- devRead) {
	buf := make([]byte, LinkMTU)
	for {
		n, err := l.dev.Read(buf)
		if err != nil {
			select {
			case out <- devRead{err: err}:
			case <-ctx.Done():
			}
			return
		}
		cp := append([]byte(nil), buf[:n]...)
		select {
		case out <- devRead{buf: cp}:
		case <-ctx.Done():
			return
		}
	}
}

func (l *EventLoop) readUDP(ctx context.Context, out chan<- udpRead) {
	buf := make([]byte, PacketSize)
	for {
		n, from, err := l.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			select {
			case out <- udpRead{err: err}:
			case <-ctx.Done():
			}
			if !isConnRefused(err) {
				return
			}
			continue
		}
		cp := append([]byte(nil), buf[:n]...)
		select {
		case out <- udpRead{buf: cp, from: from}:
		case <-ctx.Done():
			return
		}
	}
}
