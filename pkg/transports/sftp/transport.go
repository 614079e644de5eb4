// Package sftp provides an SFTP-backed resource store for patching plugin
// configuration on remote hosts. The client implements rawio.Store, so the
// patcher and sequencer can edit a remote config or manifest exactly as they
// would a local one. Remote hosts have no reachable unit runtime; pair the
// store with rawio.NopUnitLoader and let the remote side reload out of band.
package sftp

import (
	"strings"
	"time"
)

// ConnectionInfo contains details about an active SFTP connection.
type ConnectionInfo struct {
	// Host is the remote hostname or IP address
	Host string

	// Port is the SSH port number
	Port int

	// User is the SSH username
	User string

	// ConnectedAt is when the connection was established
	ConnectedAt time.Time

	// LastActivity is when the connection was last used
	LastActivity time.Time
}

// TransportError represents an error from the transport layer.
type TransportError struct {
	// Op is the operation that failed (e.g., "connect", "open")
	Op string

	// Err is the underlying error
	Err error

	// IsTemporary indicates if the error is temporary and can be retried
	IsTemporary bool

	// IsAuthError indicates if the error is related to authentication
	IsAuthError bool
}

func (e *TransportError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func (e *TransportError) Temporary() bool {
	return e.IsTemporary
}

// isAuthError reports whether err is an authentication failure. The ssh
// package exposes no typed auth error, so this matches the message text it
// produces during a failed handshake.
func isAuthError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "unable to authenticate") ||
		strings.Contains(msg, "no supported methods remain") ||
		strings.Contains(msg, "permission denied")
}
