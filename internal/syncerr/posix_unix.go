//go:build !windows

package syncerr

import "golang.org/x/sys/unix"

var transientPOSIX = []int{
	int(unix.ENETRESET),
	int(unix.ECONNABORTED),
	int(unix.ECONNRESET),
	int(unix.ETIMEDOUT),
	int(unix.ECONNREFUSED),
}

var unreachablePOSIX = []int{
	int(unix.ENETDOWN),
	int(unix.ENETUNREACH),
	int(unix.ENOTCONN),
	int(unix.ETIMEDOUT),
	int(unix.EHOSTDOWN),
	int(unix.EHOSTUNREACH),
	int(unix.EADDRNOTAVAIL),
}

// ETIMEDOUT is the errno used when a Go timeout is converted to POSIXDomain.
const ETIMEDOUT = int(unix.ETIMEDOUT)

func posixMessage(code int) string {
	errno := unix.Errno(code)
	if name := unix.ErrnoName(errno); name != "" {
		return name + ": " + errno.Error()
	}
	return errno.Error()
}
