package tunnel

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/twogc/fectun/internal/fec"
	"github.com/twogc/fectun/internal/wire"
)

// UDPWriter is the outbound side of the UDP socket. In client mode the
// socket is connected and Send is used; in server mode SendTo
// addresses the last-known peer, and ConnectPeer/Disconnect bracket
// the parity burst so the connected Send path can be reused for it too.
type UDPWriter interface {
	Send(b []byte) error
	SendTo(b []byte, addr net.Addr) error
	ConnectPeer(addr net.Addr) error
	Disconnect() error
}

// Sender accumulates outbound datagrams into an interleaved matrix of
// groups, assigns monotonic sequence numbers, and flushes a parity
// burst after each full matrix.
type Sender struct {
	client bool
	secret []byte

	conn  UDPWriter
	codec *fec.Codec

	logger  *zap.Logger
	metrics *Metrics

	seqSnd uint32
	npkt   uint8
	sndIl  uint8
	matrix [Interleave]*group
	widths [Interleave]int

	peer     net.Addr
	peerSet  bool
}

// NewSender builds a Sender seeded with an initial sequence number.
// The caller seeds seqSnd from wall-clock entropy in the high 16 bits
// before calling this, e.g. via SeedSequence.
func NewSender(client bool, secret []byte, codec *fec.Codec, conn UDPWriter, logger *zap.Logger, metrics *Metrics, seqSnd uint32) *Sender {
	s := &Sender{
		client:  client,
		secret:  secret,
		conn:    conn,
		codec:   codec,
		logger:  logger,
		metrics: metrics,
		seqSnd:  seqSnd,
	}
	for i := range s.matrix {
		s.matrix[i] = newGroup()
	}
	return s
}

// SetPeer records the current peer address for server-mode sends; the
// event loop calls this whenever the receiver adopts a new peer.
func (s *Sender) SetPeer(addr net.Addr) {
	s.peer = addr
	s.peerSet = true
}

// Submit assigns a sequence number and slot index to one outbound
// inner datagram, transmits it immediately, stores it in the matrix,
// and flushes the parity burst once the matrix fills.
func (s *Sender) Submit(payload []byte) error {
	if len(payload) > PayloadSize {
		return fmt.Errorf("tunnel: payload of %d bytes exceeds PayloadSize %d", len(payload), PayloadSize)
	}
	if !s.client && !s.peerSet {
		return ErrNoPeer
	}

	seq := s.seqSnd + uint32(s.sndIl)
	pkt := wire.EncodeHeader(seq, s.npkt, payload, s.secret)

	if err := s.transmit(pkt); err != nil {
		s.logger.Warn("failed to send packet", zap.Error(err))
	} else {
		s.metrics.packetsSent.Inc()
	}

	grp := s.matrix[s.sndIl]
	grp.slots[s.npkt].set(payload)
	if len(payload) > s.widths[s.sndIl] {
		s.widths[s.sndIl] = len(payload)
	}

	if s.sndIl == Interleave-1 && s.npkt == DataSize-1 {
		if err := s.flushMatrix(); err != nil {
			s.logger.Warn("failed to flush parity burst", zap.Error(err))
		}
	}

	s.advance()
	return nil
}

func (s *Sender) transmit(pkt []byte) error {
	if s.client {
		return s.conn.Send(pkt)
	}
	return s.conn.SendTo(pkt, s.peer)
}

// flushMatrix runs the FEC engine over every group in the matrix and
// emits the parity burst.
func (s *Sender) flushMatrix() error {
	for j := 0; j < Interleave; j++ {
		shards := make([][]byte, TotalSize)
		for i := range s.matrix[j].slots {
			shards[i] = s.matrix[j].slots[i].data
		}
		width := s.widths[j]
		if width == 0 {
			continue
		}
		if err := s.codec.Encode(shards, width); err != nil {
			return fmt.Errorf("tunnel: FEC encode failed for group %d: %w", j, err)
		}
		for i := DataSize; i < TotalSize; i++ {
			s.matrix[j].slots[i].size = width
		}
	}

	if !s.client {
		if err := s.conn.ConnectPeer(s.peer); err != nil {
			return fmt.Errorf("tunnel: connect for parity burst: %w", err)
		}
		defer func() {
			if err := s.conn.Disconnect(); err != nil {
				s.logger.Warn("failed to disconnect parity-burst socket", zap.Error(err))
			}
		}()
	}

	for i := DataSize; i < TotalSize; i++ {
		for j := 0; j < Interleave; j++ {
			width := s.widths[j]
			if width == 0 {
				continue
			}
			seq := s.seqSnd + uint32(j)
			payload := s.matrix[j].slots[i].data[:width]
			pkt := wire.EncodeHeader(seq, uint8(i), payload, s.secret)
			if err := s.conn.Send(pkt); err != nil {
				s.logger.Warn("failed to send parity packet", zap.Error(err), zap.Uint32("seq", seq), zap.Int("idx", i))
				continue
			}
			s.metrics.packetsSent.Inc()
			s.metrics.parityEmitted.Inc()
		}
	}
	return nil
}

// advance rolls sndIl and npkt forward to the next slot, and rolls the
// whole matrix over to a fresh set of groups once every slot in every
// group has been filled.
func (s *Sender) advance() {
	s.sndIl = (s.sndIl + 1) % Interleave
	if s.sndIl == 0 {
		s.npkt = (s.npkt + 1) % DataSize
	}
	if s.sndIl == 0 && s.npkt == 0 {
		for i := range s.matrix {
			s.matrix[i] = newGroup()
			s.widths[i] = 0
		}
		s.seqSnd += Interleave
	}
}
