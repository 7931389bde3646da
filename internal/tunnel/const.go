// Package tunnel implements the FEC-protected UDP tunnel engine: the
// sender's interleaved encoder, the receiver's windowed reassembly state
// machine, and the event loop that drives both from a tun device and a
// UDP socket.
package tunnel

import "time"

// Wire and codec constants. Both tunnel endpoints must be built with the
// same values and run with the same HMAC secret and the same HMAC
// enable/disable choice (both taken at run time, not at build time) —
// none of this is negotiated on the wire.
const (
	// LinkMTU is the underlying link MTU in bytes.
	LinkMTU = 1500

	// PacketSize is the maximum UDP payload, after subtracting the
	// IPv4 and UDP headers from LinkMTU.
	PacketSize = LinkMTU - 28

	// HeaderSize is the on-wire header: 4-byte seq, 1-byte idx, HMAC.
	HeaderSize = 4 + 1 + HMACSize

	// PayloadSize is the inner-datagram capacity left after the header.
	PayloadSize = PacketSize - HeaderSize

	// DataSize is the number of data packets per group.
	DataSize = 16

	// CheckSize is the number of parity packets per group.
	CheckSize = 4

	// TotalSize is DataSize + CheckSize.
	TotalSize = DataSize + CheckSize

	// Interleave is the number of parallel groups in a sender matrix.
	Interleave = 4

	// HistSize is the receive window size, in groups.
	HistSize = 65536

	// ReceiveTimeout is the idle period that triggers a silent resync.
	ReceiveTimeout = 10800 * time.Second

	// HMACSize is the number of truncated HMAC-SHA1 bytes transmitted.
	HMACSize = 20
)
