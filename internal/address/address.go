package address

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

// Supported address schemes.
const (
	SchemeWS    = "ws"
	SchemeWSS   = "wss"
	SchemeBlip  = "blip"
	SchemeBlips = "blips"
	SchemeFile  = "file"
)

// SyncEndpoint is the path segment appended to a remote database name to
// form the sync endpoint ("/{db}/_blipsync").
const SyncEndpoint = "_blipsync"

// MaxDatabaseNameLength is the exclusive upper bound on database name length.
const MaxDatabaseNameLength = 240

const databaseNameChars = "abcdefghijklmnopqrstuvwxyz0123456789_$()+-/"

// Address identifies a replication peer. It is an immutable value type.
type Address struct {
	Scheme string `json:"scheme"`
	Host   string `json:"host"`
	Port   uint16 `json:"port"`
	Path   string `json:"path"`
}

// IsValidScheme reports whether scheme is one of the remote replication
// schemes. The local "file" scheme is not accepted here: it is only ever
// produced by BuildLocal.
func IsValidScheme(scheme string) bool {
	switch scheme {
	case SchemeWS, SchemeWSS, SchemeBlip, SchemeBlips:
		return true
	}
	return false
}

// BuildRemote returns the sync endpoint address for dbName on the server
// described by remote. Only the scheme, host and port of remote are used.
func BuildRemote(remote Address, dbName string) Address {
	return Address{
		Scheme: remote.Scheme,
		Host:   remote.Host,
		Port:   remote.Port,
		Path:   "/" + dbName + "/" + SyncEndpoint,
	}
}

// BuildLocal returns the loopback address of the database at dbPath.
// The path is made absolute; if that fails the cleaned path is used.
func BuildLocal(dbPath string) Address {
	path, err := filepath.Abs(dbPath)
	if err != nil {
		path = filepath.Clean(dbPath)
	}
	return Address{Scheme: SchemeFile, Path: path}
}

// IsLocal reports whether the address refers to a local database.
func (a Address) IsLocal() bool {
	return a.Scheme == SchemeFile
}

// IsSecure reports whether the address uses a TLS scheme.
func (a Address) IsSecure() bool {
	return a.Scheme == SchemeWSS || a.Scheme == SchemeBlips
}

// String renders the address as a URL.
func (a Address) String() string {
	if a.IsLocal() {
		return SchemeFile + "://" + a.Path
	}
	return fmt.Sprintf("%s://%s:%d%s", a.Scheme, a.Host, a.Port, a.Path)
}

// IsValidDatabaseName reports whether name is an acceptable remote database
// name.
func IsValidDatabaseName(name string) bool {
	if len(name) == 0 || len(name) >= MaxDatabaseNameLength {
		return false
	}
	if name[0] < 'a' || name[0] > 'z' {
		return false
	}
	for i := 1; i < len(name); i++ {
		if strings.IndexByte(databaseNameChars, name[i]) < 0 {
			return false
		}
	}
	return true
}

// ParseURL parses a replication URL of the form
// scheme://host[:port]/databaseName[/] and returns the server address and
// the database name. The returned address's Path is "/" + databaseName.
//
// On failure the returned error is a *ParseError and the Address is the
// zero value.
func ParseURL(raw string) (Address, string, error) {
	colon := strings.IndexByte(raw, ':')
	if colon < 0 {
		return Address{}, "", newParseError(raw, "missing scheme")
	}
	scheme := raw[:colon]
	if !IsValidScheme(scheme) {
		return Address{}, "", newParseError(raw, fmt.Sprintf("unsupported scheme %q", scheme))
	}

	port := uint16(80)
	if scheme == SchemeWSS || scheme == SchemeBlips {
		port = 443
	}

	rest := raw[colon:]
	if !strings.HasPrefix(rest, "://") {
		return Address{}, "", newParseError(raw, "expected \"://\" after scheme")
	}
	rest = rest[3:]

	slash := indexOrEnd(rest, '/')
	hostEnd := slash
	if portColon := indexOrEnd(rest, ':'); portColon < slash {
		digits := rest[portColon+1 : slash]
		// ParseUint rejects a sign prefix.
		p, err := strconv.ParseUint(digits, 10, 16)
		if errors.Is(err, strconv.ErrRange) {
			return Address{}, "", newParseError(raw, fmt.Sprintf("port %s out of range", digits))
		}
		if err != nil {
			return Address{}, "", newParseError(raw, "invalid port")
		}
		port = uint16(p)
		hostEnd = portColon
	}
	host := rest[:hostEnd]

	rest = rest[slash:]
	if rest == "" {
		return Address{}, "", newParseError(raw, "missing database name")
	}
	rest = strings.TrimPrefix(rest, "/")
	rest = strings.TrimSuffix(rest, "/")
	if !IsValidDatabaseName(rest) {
		return Address{}, "", newParseError(raw, fmt.Sprintf("invalid database name %q", rest))
	}

	return Address{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		Path:   "/" + rest,
	}, rest, nil
}

func indexOrEnd(s string, c byte) int {
	if i := strings.IndexByte(s, c); i >= 0 {
		return i
	}
	return len(s)
}
