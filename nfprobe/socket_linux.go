//go:build linux

package nfprobe

import (
	"fmt"

	"golang.org/x/sys/unix"
)

type netlinkConn struct {
	fd int
}

// DialNetfilter opens a non-blocking NETLINK_NETFILTER socket with
// extended acknowledgements enabled.
func DialNetfilter() (Conn, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_NETFILTER)
	if err != nil {
		return nil, fmt.Errorf("nfprobe: open netlink socket: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nfprobe: set non-blocking: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_NETLINK, unix.NETLINK_EXT_ACK, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("nfprobe: enable extended ack: %w", err)
	}
	return &netlinkConn{fd: fd}, nil
}

func (c *netlinkConn) Send(b []byte) error {
	return unix.Sendto(c.fd, b, 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
}

// Receive makes a single non-blocking read. A reply that has not arrived
// yet surfaces as EAGAIN.
func (c *netlinkConn) Receive(b []byte) (int, error) {
	n, _, err := unix.Recvfrom(c.fd, b, 0)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (c *netlinkConn) Close() error {
	return unix.Close(c.fd)
}
