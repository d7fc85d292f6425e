package sockopt

import (
	"context"
	"net"
	"syscall"
)

// Options selects the socket options applied to a listening socket
type Options struct {
	// ReuseAddr lets the server rebind a port still in TIME_WAIT
	ReuseAddr bool
	// ReusePort lets several processes bind the same port
	ReusePort bool
}

// Default is what the server binds with
var Default = Options{ReuseAddr: true}

// Listen opens a TCP listener on addr with opts applied before bind
func Listen(ctx context.Context, addr string, opts Options) (net.Listener, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var serr error
			if err := c.Control(func(fd uintptr) {
				serr = apply(fd, opts)
			}); err != nil {
				return err
			}
			return serr
		},
	}
	return lc.Listen(ctx, "tcp", addr)
}
