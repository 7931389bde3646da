//go:build linux

package tunnel

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/twogc/fectun/internal/fec"
	"github.com/twogc/fectun/internal/iface"
)

// Config is the subset of internal.TunnelConfig the tunnel aggregate
// needs to start an endpoint; kept separate from the CLI-facing
// config type so this package doesn't depend on package internal.
type Config struct {
	IfaceName  string
	RemoteHost string
	LocalPort  int
	RemotePort int
	Secret     []byte // nil disables HMAC authentication

	// ReceiveTimeout overrides the idle-resync timeout. Zero uses the
	// package default (ReceiveTimeout in const.go).
	ReceiveTimeout time.Duration
}

// ServerMode reports whether cfg selects the address-learning server
// role: any local address with no fixed remote peer.
func (c Config) ServerMode() bool {
	return c.RemoteHost == "" || c.RemotePort == 0
}

// Tunnel wires the sender, receiver and event loop together around one
// tun device and one UDP socket.
type Tunnel struct {
	dev     iface.Device
	conn    *udpTransport
	loop    *EventLoop
	sender  *Sender
	metrics *Metrics
	logger  *zap.Logger
}

// New opens the tun device, binds (and, in client mode, connects) the
// UDP socket, and assembles the Sender/Receiver/EventLoop. It does not
// start the event loop; call Run for that.
func New(cfg Config, logger *zap.Logger, metrics *Metrics) (*Tunnel, error) {
	if metrics == nil {
		metrics = NewNopMetrics()
	}

	dev, err := iface.Open(cfg.IfaceName, PayloadSize)
	if err != nil {
		return nil, fmt.Errorf("tunnel: opening interface: %w", err)
	}

	local := &net.UDPAddr{Port: cfg.LocalPort}
	var remote *net.UDPAddr
	client := !cfg.ServerMode()
	if client {
		ips, err := net.LookupIP(cfg.RemoteHost)
		if err != nil || len(ips) == 0 {
			dev.Close()
			return nil, fmt.Errorf("tunnel: resolving remote host %q: %w", cfg.RemoteHost, err)
		}
		remote = &net.UDPAddr{IP: ips[0], Port: cfg.RemotePort}
	}

	conn, err := newUDPTransport(local, remote)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("tunnel: opening UDP socket: %w", err)
	}

	codec, err := fec.New(DataSize, CheckSize)
	if err != nil {
		dev.Close()
		conn.Close()
		return nil, fmt.Errorf("tunnel: building FEC codec: %w", err)
	}

	forcedReset := &atomic.Bool{}

	sender := NewSender(client, cfg.Secret, codec, conn, logger, metrics, SeedSequence())
	if client {
		sender.SetPeer(remote)
	}

	receiver := NewReceiver(client, cfg.Secret, codec, dev, logger, metrics, forcedReset, cfg.ReceiveTimeout, func(addr net.Addr) {
		sender.SetPeer(addr)
	})

	loop := NewEventLoop(dev, conn, sender, receiver, logger, forcedReset)

	return &Tunnel{
		dev:     dev,
		conn:    conn,
		loop:    loop,
		sender:  sender,
		metrics: metrics,
		logger:  logger,
	}, nil
}

// Run drives the tunnel's event loop until ctx is cancelled or a fatal
// I/O error occurs.
func (t *Tunnel) Run(ctx context.Context) error {
	return t.loop.Run(ctx)
}

// Close releases the tun device and UDP socket.
func (t *Tunnel) Close() error {
	devErr := t.dev.Close()
	connErr := t.conn.Close()
	if devErr != nil {
		return devErr
	}
	return connErr
}

// SeedSequence produces an initial sequence number with wall-clock
// entropy in the high 16 bits only, so two restarts of the same
// endpoint don't replay the same group sequence against a peer that
// hasn't also restarted. The low 16 bits (the group counter that
// indexes the receive window) start at zero.
func SeedSequence() uint32 {
	high := uint16(time.Now().Unix()) ^ uint16(os.Getpid())
	return uint32(high) << 16
}

// LoadSecret reads the HMAC secret from the named environment
// variable. An empty name or an unset variable disables HMAC
// authentication (nil, nil).
func LoadSecret(envName string) ([]byte, error) {
	if envName == "" {
		return nil, nil
	}
	v, ok := os.LookupEnv(envName)
	if !ok || v == "" {
		return nil, nil
	}
	return []byte(v), nil
}
