//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package sockopt

// apply is a no-op where the options are not available
func apply(fd uintptr, opts Options) error {
	return nil
}
