package wire

import (
	"bytes"
	"testing"
)

func TestEncodeVerifyRoundTrip(t *testing.T) {
	secret := []byte("shared-secret")
	payload := bytes.Repeat([]byte{0xAB}, 40)

	pkt := EncodeHeader(1234, 7, payload, secret)

	seq, idx, got, err := VerifyAndParse(pkt, secret)
	if err != nil {
		t.Fatalf("VerifyAndParse: %v", err)
	}
	if seq != 1234 {
		t.Errorf("seq = %d, want 1234", seq)
	}
	if idx != 7 {
		t.Errorf("idx = %d, want 7", idx)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch: got %x want %x", got, payload)
	}
}

func TestVerifyAndParse(t *testing.T) {
	secret := []byte("shared-secret")
	payload := bytes.Repeat([]byte{0x42}, 30)
	good := EncodeHeader(1, 0, payload, secret)

	tests := []struct {
		name    string
		pkt     []byte
		secret  []byte
		wantErr error
	}{
		{
			name:   "valid packet",
			pkt:    good,
			secret: secret,
		},
		{
			name:    "too short",
			pkt:     good[:HeaderSize+minPayload-1],
			secret:  secret,
			wantErr: ErrMalformedPacket,
		},
		{
			name:    "wrong secret",
			pkt:     good,
			secret:  []byte("other-secret"),
			wantErr: ErrAuthFailure,
		},
		{
			name: "tampered payload",
			pkt: func() []byte {
				tampered := append([]byte(nil), good...)
				tampered[len(tampered)-1] ^= 0xFF
				return tampered
			}(),
			secret:  secret,
			wantErr: ErrAuthFailure,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, err := VerifyAndParse(tc.pkt, tc.secret)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && err != tc.wantErr {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestEncodeHeaderDisabledHMAC(t *testing.T) {
	payload := bytes.Repeat([]byte{0x11}, 25)
	pkt := EncodeHeader(5, 2, payload, nil)

	seq, idx, got, err := VerifyAndParse(pkt, nil)
	if err != nil {
		t.Fatalf("VerifyAndParse: %v", err)
	}
	if seq != 5 || idx != 2 {
		t.Errorf("seq/idx = %d/%d, want 5/2", seq, idx)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("payload mismatch")
	}
}
