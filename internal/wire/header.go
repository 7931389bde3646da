// Package wire implements the on-wire packet format for the tunnel:
// header encoding/parsing and per-packet HMAC authentication.
//
// Wire layout (host byte order — see DESIGN.md for why this is not
// normalised to network order):
//
//	[ seq:4 | idx:1 | hmac:HMACSize | payload:<=PayloadSize ]
//
// The HMAC is computed over the payload only, never the header.
package wire

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"errors"
)

// HeaderSize is the fixed header length: seq + idx + truncated HMAC.
const HeaderSize = 4 + 1 + HMACSize

// HMACSize is the number of HMAC-SHA1 bytes carried on the wire.
const HMACSize = 20

// Errors returned by VerifyAndParse.
var (
	// ErrMalformedPacket is returned when a packet is too short to
	// contain a header plus a minimal IPv4 payload. Callers that know
	// the group width (TotalSize) must additionally reject an
	// out-of-range idx themselves.
	ErrMalformedPacket = errors.New("wire: malformed packet")

	// ErrAuthFailure is returned when the HMAC does not match.
	ErrAuthFailure = errors.New("wire: HMAC verification failed")
)

// minPayload is the smallest possible IPv4 header; anything shorter
// cannot be a real inner datagram.
const minPayload = 20

// EncodeHeader writes seq, idx and the HMAC of payload (keyed with
// secret) into a fresh packet buffer: header followed by payload. If
// secret is nil, the HMAC field is left zeroed (HMAC disabled). The
// secret and the enable/disable choice are supplied at run time, not
// fixed at build time, and must match on both endpoints.
func EncodeHeader(seq uint32, idx uint8, payload []byte, secret []byte) []byte {
	pkt := make([]byte, HeaderSize+len(payload))
	putHeader(pkt, seq, idx)
	if secret != nil {
		mac := computeHMAC(secret, payload)
		copy(pkt[5:5+HMACSize], mac)
	}
	copy(pkt[HeaderSize:], payload)
	return pkt
}

// EncodeHeaderInto writes the header for payload into dst[:HeaderSize]
// without copying the payload, for callers that transmit header and
// payload as separate buffers.
func EncodeHeaderInto(dst []byte, seq uint32, idx uint8, payload []byte, secret []byte) {
	putHeader(dst, seq, idx)
	if secret != nil {
		mac := computeHMAC(secret, payload)
		copy(dst[5:5+HMACSize], mac)
	}
}

func putHeader(dst []byte, seq uint32, idx uint8) {
	binary.NativeEndian.PutUint32(dst[0:4], seq)
	dst[4] = idx
}

// VerifyAndParse validates the HMAC (when secret is non-nil) and
// parses seq/idx/payload out of pkt. It returns ErrMalformedPacket for
// packets too short to hold a header plus a minimal inner datagram,
// and ErrAuthFailure on HMAC mismatch.
func VerifyAndParse(pkt []byte, secret []byte) (seq uint32, idx uint8, payload []byte, err error) {
	if len(pkt) < HeaderSize+minPayload {
		return 0, 0, nil, ErrMalformedPacket
	}
	payload = pkt[HeaderSize:]
	if secret != nil {
		want := pkt[5 : 5+HMACSize]
		got := computeHMAC(secret, payload)
		if !hmac.Equal(want, got) {
			return 0, 0, nil, ErrAuthFailure
		}
	}
	seq = binary.NativeEndian.Uint32(pkt[0:4])
	idx = pkt[4]
	return seq, idx, payload, nil
}

func computeHMAC(secret, payload []byte) []byte {
	mac := hmac.New(sha1.New, secret)
	mac.Write(payload)
	sum := mac.Sum(nil)
	return sum[:HMACSize]
}
