package tunnel

import "errors"

// Sentinel errors describing the ways an inbound or outbound datagram
// can be rejected by the receiver or sender. Wire-level malformed/auth
// errors are defined in package wire; the receiver logs them as
// returned and drops the packet.
var (
	// ErrLatePacket is logged and dropped when a packet's sequence
	// falls before the trailing edge of the receive window.
	ErrLatePacket = errors.New("tunnel: late packet outside window")

	// ErrDuplicatePacket is logged and dropped when a group has
	// already reached TotalSize distinct packets.
	ErrDuplicatePacket = errors.New("tunnel: duplicate packet after group completion")

	// ErrUnrepairableGroup marks a group recycled with fewer than
	// DataSize packets received; accounted into rcvFail.
	ErrUnrepairableGroup = errors.New("tunnel: insufficient packets to repair group")

	// ErrRecoveredButInvalid marks a decoded data slot whose payload
	// failed IPv4 checksum/size validation.
	ErrRecoveredButInvalid = errors.New("tunnel: recovered packet failed IPv4 validation")

	// ErrNoPeer is returned when a server-mode sender is asked to
	// submit an outbound datagram before any peer is known.
	ErrNoPeer = errors.New("tunnel: no known peer")
)
