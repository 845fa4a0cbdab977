//go:build !linux

package nfprobe

import (
	"errors"
	"runtime"
)

// DialNetfilter always fails outside Linux.
func DialNetfilter() (Conn, error) {
	return nil, errors.New("nfprobe: netlink is not available on " + runtime.GOOS)
}
