package fec

import (
	"bytes"
	"math/rand"
	"testing"
)

func buildGroup(t *testing.T, dataShards, parityShards, width int, seed int64) [][]byte {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	total := dataShards + parityShards
	slots := make([][]byte, total)
	for i := 0; i < dataShards; i++ {
		slots[i] = make([]byte, width)
		r.Read(slots[i])
	}
	for i := dataShards; i < total; i++ {
		slots[i] = make([]byte, width)
	}
	return slots
}

func TestEncodeDecodeNoLoss(t *testing.T) {
	c, err := New(16, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	width := 64
	slots := buildGroup(t, 16, 4, width, 1)

	if err := c.Encode(slots, width); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	present := make([]bool, 20)
	for i := range present {
		present[i] = true
	}
	recovered, err := c.Decode(slots, present, width)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(recovered) != 0 {
		t.Errorf("expected no recovery with no loss, got %v", recovered)
	}
}

func TestEncodeDecodeWithErasures(t *testing.T) {
	c, err := New(16, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	width := 32
	slots := buildGroup(t, 16, 4, width, 2)
	original := make([][]byte, 16)
	for i := range original {
		original[i] = append([]byte(nil), slots[i]...)
	}

	if err := c.Encode(slots, width); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	present := make([]bool, 20)
	for i := range present {
		present[i] = true
	}
	// erase two data slots, within CheckSize=4 tolerance
	lost := []int{3, 7}
	for _, idx := range lost {
		present[idx] = false
		slots[idx] = make([]byte, width)
	}

	recovered, err := c.Decode(slots, present, width)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(recovered) != len(lost) {
		t.Fatalf("recovered = %v, want %d entries", recovered, len(lost))
	}
	for _, idx := range lost {
		if !bytes.Equal(slots[idx], original[idx]) {
			t.Errorf("slot %d not correctly recovered: got %x want %x", idx, slots[idx], original[idx])
		}
	}
}

func TestDecodeNoOpWithoutDataErasure(t *testing.T) {
	c, err := New(16, 4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	width := 16
	slots := buildGroup(t, 16, 4, width, 3)
	if err := c.Encode(slots, width); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	present := make([]bool, 20)
	for i := range present {
		present[i] = true
	}
	// only a parity slot missing: no data erasure, decode must be a no-op
	present[19] = false

	recovered, err := c.Decode(slots, present, width)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if recovered != nil {
		t.Errorf("expected nil recovery when only parity is missing, got %v", recovered)
	}
}

func TestValidateRecoveredIPv4(t *testing.T) {
	// build a minimal valid IPv4 header: version/IHL=0x45, total length 40
	hdr := make([]byte, 40)
	hdr[0] = 0x45
	hdr[2] = 0x00
	hdr[3] = 0x28 // total length 40
	// compute checksum with the checksum field zeroed, then set it
	sum := ipChecksum(hdr[:20])
	hdr[10] = byte(sum >> 8)
	hdr[11] = byte(sum)

	totalLen, ok := ValidateRecoveredIPv4(hdr, 64)
	if !ok {
		t.Fatalf("expected valid IPv4 header")
	}
	if totalLen != 40 {
		t.Errorf("totalLen = %d, want 40", totalLen)
	}

	// corrupt checksum
	hdr[10] ^= 0xFF
	if _, ok := ValidateRecoveredIPv4(hdr, 64); ok {
		t.Errorf("expected checksum failure to be detected")
	}
}
