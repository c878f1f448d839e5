//go:build linux

package tun

import (
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// open attaches to the tun device name, creating it when missing. Packets
// carry no extra header.
func open(name string) (io.ReadWriteCloser, error) {
	fd, err := unix.Open("/dev/net/tun", unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, err
	}

	var ifr struct {
		name  [unix.IFNAMSIZ]byte
		flags uint16
		_     [22]byte
	}

	copy(ifr.name[:unix.IFNAMSIZ-1], name)
	ifr.flags = unix.IFF_TUN | unix.IFF_NO_PI
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), unix.TUNSETIFF,
		uintptr(unsafe.Pointer(&ifr)))
	if errno != 0 {
		unix.Close(fd)
		return nil, errno
	}

	// nonblocking so the runtime poller can interrupt Read on Close
	if err = unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, err
	}

	return os.NewFile(uintptr(fd), name), nil
}
