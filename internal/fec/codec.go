// Package fec drives the external Reed-Solomon primitive
// (github.com/klauspost/reedsolomon) column-wise across a group of
// fixed-width packet slots: the library itself operates
// byte-position-wise across the shards it is given, so a "shard" here
// is one packet slot (data or parity) and one Encode/ReconstructData
// call covers every byte column in one pass.
package fec

import (
	"encoding/binary"
	"errors"

	"github.com/klauspost/reedsolomon"
)

// ErrWidthTooLarge reports a matrix column wider than the payload size.
// Encode and Decode do not check width and do not return it.
var ErrWidthTooLarge = errors.New("fec: width exceeds payload size")

// Codec wraps a klauspost/reedsolomon encoder sized for dataShards
// data slots and parityShards parity slots.
type Codec struct {
	dataShards   int
	parityShards int
	rs           reedsolomon.Encoder
}

// New builds a Codec for the given data/parity shard counts.
func New(dataShards, parityShards int) (*Codec, error) {
	rs, err := reedsolomon.New(dataShards, parityShards)
	if err != nil {
		return nil, err
	}
	return &Codec{dataShards: dataShards, parityShards: parityShards, rs: rs}, nil
}

// Encode fills the parity slots (indices [dataShards, totalShards)) of
// slots given the populated data slots, widening every shard to width
// bytes first. slots must have length dataShards+parityShards; data
// slots must already hold at least width bytes of valid data.
func (c *Codec) Encode(slots [][]byte, width int) error {
	total := c.dataShards + c.parityShards
	shards := make([][]byte, total)
	for i := 0; i < c.dataShards; i++ {
		shards[i] = padTo(slots[i], width)
	}
	for i := c.dataShards; i < total; i++ {
		shards[i] = make([]byte, width)
	}
	if err := c.rs.Encode(shards); err != nil {
		return err
	}
	for i := c.dataShards; i < total; i++ {
		copy(slots[i][:width], shards[i])
	}
	return nil
}

// Decode reconstructs erased data slots (those with size 0, indicated
// by a false entry in present) given the surviving shards,
// widened to width bytes. It returns the indices (within
// [0,dataShards)) of data slots it recovered; it is a no-op (and
// returns no error) if no data slot is erased.
func (c *Codec) Decode(slots [][]byte, present []bool, width int) (recovered []int, err error) {
	total := c.dataShards + c.parityShards
	dataErasures := 0
	for i := 0; i < c.dataShards; i++ {
		if !present[i] {
			dataErasures++
		}
	}
	if dataErasures == 0 {
		return nil, nil
	}

	shards := make([][]byte, total)
	for i := 0; i < total; i++ {
		if present[i] {
			shards[i] = padTo(slots[i], width)
		}
	}
	if err := c.rs.ReconstructData(shards); err != nil {
		return nil, err
	}
	for i := 0; i < c.dataShards; i++ {
		if !present[i] {
			copy(slots[i][:width], shards[i])
			recovered = append(recovered, i)
		}
	}
	return recovered, nil
}

func padTo(b []byte, n int) []byte {
	if len(b) >= n {
		return b[:n]
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// ValidateRecoveredIPv4 checks that a recovered data slot's bytes form
// a well-formed IPv4 header (header checksum zero, total length fits
// within the slot capacity) and returns the inner datagram's total
// length on success.
func ValidateRecoveredIPv4(data []byte, capacity int) (totalLen int, ok bool) {
	if len(data) < 20 {
		return 0, false
	}
	ihl := int(data[0]&0x0F) * 4
	if ihl < 20 || ihl > len(data) {
		return 0, false
	}
	if ipChecksum(data[:ihl]) != 0 {
		return 0, false
	}
	totalLen = int(binary.BigEndian.Uint16(data[2:4]))
	if totalLen > capacity {
		return 0, false
	}
	return totalLen, true
}

// ipChecksum computes the standard one's-complement IPv4 header
// checksum.
func ipChecksum(buf []byte) uint16 {
	var sum uint32
	n := len(buf)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(buf[i])<<8 | uint32(buf[i+1])
	}
	if n%2 == 1 {
		sum += uint32(buf[n-1]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum >> 16) + (sum & 0xFFFF)
	}
	return ^uint16(sum)
}
