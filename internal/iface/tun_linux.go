//go:build linux

package iface

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Linux tun ioctl constants (linux/if_tun.h), not exposed by
// golang.org/x/sys/unix.
const (
	iffTUN   = 0x0001
	iffNoPI  = 0x1000
	tunSetIFF = 0x400454ca
)

const ifNameSize = 16

// ifReqFlags and ifReqMTU mirror struct ifreq for the TUNSETIFF and
// SIOCSIFMTU ioctls respectively.
type ifReqFlags struct {
	name  [ifNameSize]byte
	flags uint16
	_     [22]byte // pad to sizeof(struct ifreq)
}

type ifReqMTU struct {
	name [ifNameSize]byte
	mtu  int32
	_    [16]byte
}

// tunDevice opens the OS tun control device, configures a named tun
// interface in IP-packet mode (no protocol-info header), and sets its
// MTU to mtu.
type tunDevice struct {
	f *os.File
}

// Open creates and configures a Linux tun interface named name.
func Open(name string, mtu int) (Device, error) {
	f, err := os.OpenFile("/dev/net/tun", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("iface: open /dev/net/tun: %w", err)
	}

	var req ifReqFlags
	copy(req.name[:], name)
	req.flags = iffTUN | iffNoPI
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), tunSetIFF, uintptr(unsafe.Pointer(&req))); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("iface: ioctl TUNSETIFF: %w", errno)
	}

	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("iface: socket for SIOCSIFMTU: %w", err)
	}
	defer unix.Close(sock)

	var mreq ifReqMTU
	copy(mreq.name[:], name)
	mreq.mtu = int32(mtu)
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(sock), unix.SIOCSIFMTU, uintptr(unsafe.Pointer(&mreq))); errno != 0 {
		f.Close()
		return nil, fmt.Errorf("iface: ioctl SIOCSIFMTU: %w", errno)
	}

	return &tunDevice{f: f}, nil
}

func (t *tunDevice) Read(p []byte) (int, error)  { return t.f.Read(p) }
func (t *tunDevice) Write(p []byte) (int, error) { return t.f.Write(p) }
func (t *tunDevice) Close() error                { return t.f.Close() }
