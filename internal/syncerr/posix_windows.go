//go:build windows

package syncerr

import "syscall"

// Windows has no EHOSTDOWN.
var transientPOSIX = []int{
	int(syscall.ENETRESET),
	int(syscall.ECONNABORTED),
	int(syscall.ECONNRESET),
	int(syscall.ETIMEDOUT),
	int(syscall.ECONNREFUSED),
}

var unreachablePOSIX = []int{
	int(syscall.ENETDOWN),
	int(syscall.ENETUNREACH),
	int(syscall.ENOTCONN),
	int(syscall.ETIMEDOUT),
	int(syscall.EHOSTUNREACH),
	int(syscall.EADDRNOTAVAIL),
}

// ETIMEDOUT is the errno used when a Go timeout is converted to POSIXDomain.
const ETIMEDOUT = int(syscall.ETIMEDOUT)

func posixMessage(code int) string {
	return syscall.Errno(code).Error()
}
