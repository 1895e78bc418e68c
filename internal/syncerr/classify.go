package syncerr

import "slices"

// codeTable maps a domain to the codes that belong to a classification.
// Domains without an entry never match.
type codeTable map[Domain][]int

var transientCodes = codeTable{
	POSIXDomain:   transientPOSIX,
	NetworkDomain: {NetworkDNSFailure},
	WebSocketDomain: {
		408, // Request Timeout
		429, // Too Many Requests (RFC 6585)
		500, // Internal Server Error
		502, // Bad Gateway
		503, // Service Unavailable
		504, // Gateway Timeout
		WebSocketCloseGoingAway,
	},
}

var networkDependentCodes = codeTable{
	POSIXDomain: unreachablePOSIX,
	NetworkDomain: {
		NetworkDNSFailure,
		NetworkUnknownHost, // may resolve after joining a VPN or intranet
	},
}

func (t codeTable) contains(e Error) bool {
	if e.Code == 0 || !e.Domain.valid() {
		return false
	}
	return slices.Contains(t[e.Domain], e.Code)
}

// MayBeTransient reports whether err is likely to go away if the operation
// is retried without any change in the environment (connection resets,
// server overload, DNS hiccups).
func MayBeTransient(err error) bool {
	e, ok := As(err)
	return ok && transientCodes.contains(e)
}

// MayBeNetworkDependent reports whether err indicates the peer is currently
// unreachable, so the outcome may change when network conditions change.
func MayBeNetworkDependent(err error) bool {
	e, ok := As(err)
	return ok && networkDependentCodes.contains(e)
}
