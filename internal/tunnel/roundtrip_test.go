package tunnel

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/twogc/fectun/internal/fec"
)

// pipeConn is an in-memory stand-in for the UDP socket: both peers
// share a pair of channels so tests can selectively drop or duplicate
// datagrams between a Sender and a Receiver without a real network.
type pipeConn struct {
	send chan []byte
	recv chan []byte
	peer net.Addr
}

func newPipe(peer net.Addr) (*pipeConn, *pipeConn) {
	ab := make(chan []byte, 256)
	ba := make(chan []byte, 256)
	return &pipeConn{send: ab, recv: ba, peer: peer}, &pipeConn{send: ba, recv: ab, peer: peer}
}

func (p *pipeConn) Send(b []byte) error {
	p.send <- append([]byte(nil), b...)
	return nil
}

func (p *pipeConn) SendTo(b []byte, addr net.Addr) error {
	p.send <- append([]byte(nil), b...)
	return nil
}

func (p *pipeConn) ConnectPeer(addr net.Addr) error { return nil }
func (p *pipeConn) Disconnect() error               { return nil }

func (p *pipeConn) ReadFrom(buf []byte) (int, net.Addr, error) {
	b := <-p.recv
	n := copy(buf, b)
	return n, p.peer, nil
}

// recordingWriter collects every datagram written to the virtual
// interface, standing in for iface.Loopback in tests that only need
// the written bytes, not a Read side.
type recordingWriter struct {
	mu  sync.Mutex
	out [][]byte
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.out = append(w.out, append([]byte(nil), p...))
	return len(p), nil
}

func (w *recordingWriter) delivered() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.out...)
}

func fakeIPv4(totalLen int, payload byte) []byte {
	buf := make([]byte, totalLen)
	buf[0] = 0x45 // version 4, IHL 5 (20-byte header)
	buf[2] = byte(totalLen >> 8)
	buf[3] = byte(totalLen)
	for i := 20; i < totalLen; i++ {
		buf[i] = payload
	}
	// header checksum over the 20-byte header, field zeroed beforehand
	var sum uint32
	for i := 0; i+1 < 20; i += 2 {
		sum += uint32(buf[i])<<8 | uint32(buf[i+1])
	}
	for sum>>16 != 0 {
		sum = (sum >> 16) + (sum & 0xFFFF)
	}
	chk := ^uint16(sum)
	buf[10] = byte(chk >> 8)
	buf[11] = byte(chk)
	return buf
}

func newTestPair(t *testing.T) (*Sender, *Receiver, *recordingWriter, *pipeConn) {
	t.Helper()
	codecA, err := fec.New(DataSize, CheckSize)
	if err != nil {
		t.Fatalf("fec.New: %v", err)
	}
	codecB, err := fec.New(DataSize, CheckSize)
	if err != nil {
		t.Fatalf("fec.New: %v", err)
	}

	clientAddr := &net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 5000}
	clientSide, serverSide := newPipe(clientAddr)

	logger := zap.NewNop()
	secret := []byte("test-secret")

	sender := NewSender(true, secret, codecA, clientSide, logger, NewNopMetrics(), 0)
	sender.SetPeer(clientAddr)

	writer := &recordingWriter{}
	receiver := NewReceiver(false, secret, codecB, writer, logger, NewNopMetrics(), &atomic.Bool{}, 0, nil)

	return sender, receiver, writer, serverSide
}

func TestSenderReceiverRoundTripNoLoss(t *testing.T) {
	sender, receiver, writer, serverConn := newTestPair(t)

	const n = DataSize * Interleave
	for i := 0; i < n; i++ {
		pkt := fakeIPv4(64, byte(i))
		if err := sender.Submit(pkt); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	buf := make([]byte, PacketSize)
drain:
	for {
		select {
		case raw := <-serverConn.recv:
			m := copy(buf, raw)
			receiver.Deliver(buf[:m], serverConn.peer)
		default:
			break drain
		}
	}

	delivered := writer.delivered()
	if len(delivered) < DataSize*Interleave {
		t.Fatalf("delivered %d packets, want at least %d", len(delivered), DataSize*Interleave)
	}
}

func TestSenderReceiverRoundTripWithErasures(t *testing.T) {
	sender, receiver, writer, serverConn := newTestPair(t)

	const n = DataSize * Interleave
	for i := 0; i < n; i++ {
		pkt := fakeIPv4(64, byte(i))
		if err := sender.Submit(pkt); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}

	var drained [][]byte
drain:
	for {
		select {
		case raw := <-serverConn.recv:
			drained = append(drained, raw)
		default:
			break drain
		}
	}

	buf := make([]byte, PacketSize)
	dropped := 0
	for i, raw := range drained {
		if i%7 == 0 && dropped < 4 {
			dropped++
			continue
		}
		m := copy(buf, raw)
		receiver.Deliver(buf[:m], serverConn.peer)
	}

	if len(writer.delivered()) == 0 {
		t.Fatal("expected some packets to be delivered despite drops")
	}
}
