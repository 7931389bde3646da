package tunnel

import (
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/twogc/fectun/internal/fec"
	"github.com/twogc/fectun/internal/wire"
)

// Receiver implements the windowed reassembly state machine: duplicate
// suppression, modular sequence comparison, eager delivery of arriving
// payloads, and triggered FEC decode once a group fills.
type Receiver struct {
	client bool
	secret []byte

	win   *window
	codec *fec.Codec

	dev     Writer
	logger  *zap.Logger
	metrics *Metrics

	forcedReset *atomic.Bool

	// peer tracks the last-known source address in server mode.
	peer      net.Addr
	peerSet   bool
	onNewPeer func(net.Addr)

	// receiveTimeout overrides the package-default ReceiveTimeout when
	// non-zero.
	receiveTimeout time.Duration

	now func() time.Time
}

// Writer is the outbound side of the tun device: one Write call per
// inner IP datagram. Matches iface.Device's write half.
type Writer interface {
	Write(p []byte) (int, error)
}

// NewReceiver builds a Receiver. client selects whether the peer
// address is fixed (client mode) or learned from inbound traffic
// (server mode); onNewPeer, if non-nil, is invoked once per address
// change (used to log the switch and to let the sender know where to
// address the next outbound burst). receiveTimeout overrides the
// package-default idle-resync timeout when non-zero.
func NewReceiver(client bool, secret []byte, codec *fec.Codec, dev Writer, logger *zap.Logger, metrics *Metrics, forcedReset *atomic.Bool, receiveTimeout time.Duration, onNewPeer func(net.Addr)) *Receiver {
	return &Receiver{
		client:         client,
		secret:         secret,
		win:            newWindow(logger),
		codec:          codec,
		dev:            dev,
		logger:         logger,
		metrics:        metrics,
		forcedReset:    forcedReset,
		onNewPeer:      onNewPeer,
		receiveTimeout: receiveTimeout,
		now:            time.Now,
	}
}

// Deliver processes one inbound UDP datagram, with its source address
// (meaningful only in server mode): verifies and parses it, resyncs
// the window if it looks like a new session, tracks duplicates and
// late arrivals, delivers the payload immediately, and triggers an FEC
// decode once its group has seen DataSize packets.
func (r *Receiver) Deliver(pkt []byte, from net.Addr) {
	seq, idx, payload, err := wire.VerifyAndParse(pkt, r.secret)
	if err != nil {
		r.logger.Warn("dropping inbound packet", zap.Error(err))
		return
	}
	if int(idx) >= TotalSize {
		r.logger.Warn("dropping packet with out-of-range idx", zap.Uint8("idx", idx))
		return
	}
	if !r.win.firstSeen {
		r.win.seqFirst = seq
		r.win.firstSeen = true
	}

	if !r.client && from != nil && (!r.peerSet || r.peer.String() != from.String()) {
		r.peer = from
		r.peerSet = true
		r.logger.Info("adopting new peer address", zap.String("peer", from.String()))
		if r.onNewPeer != nil {
			r.onNewPeer(from)
		}
	}

	now := r.now()
	forced := r.forcedReset.Load()
	timeout := ReceiveTimeout
	if r.receiveTimeout > 0 {
		timeout = r.receiveTimeout
	}
	idle := r.win.lastReceive.Add(timeout).Before(now)
	farFuture := seqAfter(seq, r.win.seqRcv+HistSize-1)
	if forced || idle || farFuture {
		if forced {
			r.logExtendedReport()
		}
		r.logger.Info("synchronizing state with peer")
		r.win.recycleAll()
		if forced {
			r.logger.Info("recovery summary",
				zap.Uint64("total", r.win.rcvTotal),
				zap.Uint64("recovered", r.win.rcvRec),
				zap.Uint64("failed", r.win.rcvFail))
			r.forcedReset.Store(false)
		}
		r.win.seqRcv = seq
		r.win.seqFirst = seq
		r.win.resetCounters()
		r.syncGauges()
	}
	r.win.lastReceive = now
	r.metrics.packetsReceived.Inc()

	if seqBeforeOrEqual(seq, r.win.seqRcv-HistSize) {
		r.logger.Warn("dropped late packet", zap.Uint32("seq", seq), zap.Error(ErrLatePacket))
		return
	}
	if seqAfter(seq, r.win.seqRcv) {
		r.win.recycleRange(r.win.seqRcv, seq)
		r.win.seqRcv = seq
		r.syncGauges()
	}

	gid := gidOf(seq)
	if r.win.counts[gid] == TotalSize {
		r.logger.Warn("dropped duplicate packet", zap.Uint16("gid", gid), zap.Error(ErrDuplicatePacket))
		return
	}
	r.win.counts[gid]++
	if r.win.counts[gid] > DataSize {
		// Group already repaired; nothing more to do with this packet.
		return
	}

	// Immediate delivery: every payload, data or parity, is injected
	// unconditionally, ahead of and independent from any later FEC
	// recovery for the same group.
	if _, err := r.dev.Write(payload); err != nil {
		r.logger.Warn("failed to write to virtual interface", zap.Error(err))
	}

	if r.win.counts[gid] == 1 {
		r.win.ensureGroup(gid)
	}
	grp := r.win.groups[gid]
	grp.slots[idx].set(payload)
	grp.age = now
	if len(payload) > r.win.maxSize[gid] {
		r.win.maxSize[gid] = len(payload)
	}

	if r.win.counts[gid] == DataSize {
		r.decodeGroup(gid)
	}
}

// decodeGroup runs the FEC engine over group gid and delivers any
// recovered data slot that validates as a well-formed IPv4 datagram.
func (r *Receiver) decodeGroup(gid uint16) {
	grp := r.win.groups[gid]
	width := r.win.maxSize[gid]
	if width == 0 {
		return
	}

	shards := make([][]byte, TotalSize)
	present := make([]bool, TotalSize)
	for i := range grp.slots {
		present[i] = !grp.slots[i].empty()
		shards[i] = grp.slots[i].data
	}

	recoveredIdx, err := r.codec.Decode(shards, present, width)
	if err != nil {
		r.logger.Warn("FEC decode failed", zap.Uint16("gid", gid), zap.Error(err))
		return
	}
	for _, i := range recoveredIdx {
		totalLen, ok := fec.ValidateRecoveredIPv4(grp.slots[i].data, PayloadSize)
		if !ok {
			r.logger.Warn("recovered packet failed IPv4 validation", zap.Uint16("gid", gid), zap.Int("idx", i), zap.Error(ErrRecoveredButInvalid))
			continue
		}
		grp.slots[i].size = totalLen
		if _, err := r.dev.Write(grp.slots[i].data[:totalLen]); err != nil {
			r.logger.Warn("failed to write recovered packet", zap.Error(err))
			continue
		}
		r.metrics.recoveredPackets.Inc()
	}
}

// logExtendedReport logs the forced-reset diagnostic: every
// partially-filled window slot with its missing indices, followed by
// the report.go helpers producing the colorized summary table.
func (r *Receiver) logExtendedReport() {
	entries := r.win.partialEntries()
	logExtendedReport(r.logger, entries)
}

// syncGauges publishes the window's cumulative counters to Prometheus.
func (r *Receiver) syncGauges() {
	r.metrics.rcvTotal.Set(float64(r.win.rcvTotal))
	r.metrics.rcvRec.Set(float64(r.win.rcvRec))
	r.metrics.rcvFail.Set(float64(r.win.rcvFail))
}
