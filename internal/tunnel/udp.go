//go:build linux

package tunnel

import (
	"errors"
	"fmt"
	"net"
	"unsafe"

	"golang.org/x/sys/unix"
)

// udpTransport wraps a raw UDP socket via golang.org/x/sys/unix rather
// than net.UDPConn: the standard library's UDPConn has no public way
// to reconnect or clear a socket's peer after creation, but the
// server-mode parity burst needs exactly that — connect for the
// duration of the burst, then disconnect back to the unconnected
// state once it's done.
type udpTransport struct {
	fd int
}

// newUDPTransport binds a UDP socket to local, and if remote is
// non-nil, connects it (client mode).
func newUDPTransport(local *net.UDPAddr, remote *net.UDPAddr) (*udpTransport, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		return nil, fmt.Errorf("tunnel: socket: %w", err)
	}
	if err := unix.Bind(fd, toSockaddr(local)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("tunnel: bind: %w", err)
	}
	t := &udpTransport{fd: fd}
	if remote != nil {
		if err := unix.Connect(fd, toSockaddr(remote)); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("tunnel: connect: %w", err)
		}
	}
	return t, nil
}

func toSockaddr(addr *net.UDPAddr) unix.Sockaddr {
	sa := &unix.SockaddrInet4{Port: addr.Port}
	copy(sa.Addr[:], addr.IP.To4())
	return sa
}

func (t *udpTransport) Send(b []byte) error {
	return unix.Send(t.fd, b, 0)
}

func (t *udpTransport) SendTo(b []byte, addr net.Addr) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return errors.New("tunnel: SendTo requires a *net.UDPAddr")
	}
	return unix.Sendto(t.fd, b, 0, toSockaddr(udpAddr))
}

// ConnectPeer temporarily connects the socket to addr so the parity
// burst can use the connected Send path.
func (t *udpTransport) ConnectPeer(addr net.Addr) error {
	udpAddr, ok := addr.(*net.UDPAddr)
	if !ok {
		return errors.New("tunnel: ConnectPeer requires a *net.UDPAddr")
	}
	return unix.Connect(t.fd, toSockaddr(udpAddr))
}

// Disconnect restores the socket to the unconnected state. The kernel
// only clears a dgram socket's peer when connect(2) is called with
// sa_family == AF_UNSPEC; none of unix.Sockaddr's typed implementations
// marshal that family, so the raw sockaddr is built and passed to
// SYS_CONNECT directly rather than going through unix.Connect.
func (t *udpTransport) Disconnect() error {
	var sa unix.RawSockaddr
	sa.Family = unix.AF_UNSPEC
	_, _, errno := unix.Syscall(unix.SYS_CONNECT, uintptr(t.fd), uintptr(unsafe.Pointer(&sa)), unsafe.Sizeof(sa))
	if errno != 0 {
		return errno
	}
	return nil
}

// ReadFrom reads one inbound datagram, capturing the source address
// (meaningful only in server mode).
func (t *udpTransport) ReadFrom(buf []byte) (int, net.Addr, error) {
	n, from, err := unix.Recvfrom(t.fd, buf, 0)
	if err != nil {
		return 0, nil, err
	}
	var addr net.Addr
	if sa4, ok := from.(*unix.SockaddrInet4); ok {
		addr = &net.UDPAddr{IP: net.IP(sa4.Addr[:]), Port: sa4.Port}
	}
	return n, addr, nil
}

func (t *udpTransport) Close() error {
	return unix.Close(t.fd)
}

// isConnRefused reports whether err is the ICMP-port-unreachable
// condition a connected UDP socket surfaces on a later send or receive
// after the peer has no listener. Treated as benign: the event loop keeps running.
func isConnRefused(err error) bool {
	return errors.Is(err, unix.ECONNREFUSED)
}
