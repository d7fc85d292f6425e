//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package sockopt

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func apply(fd uintptr, opts Options) error {
	if opts.ReuseAddr {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return fmt.Errorf("set SO_REUSEADDR: %w", err)
		}
	}
	if opts.ReusePort {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
			return fmt.Errorf("set SO_REUSEPORT: %w", err)
		}
	}
	return nil
}
