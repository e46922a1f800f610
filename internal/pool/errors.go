package pool

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"

	"github.com/emersion/go-imap/v2"
)

// ErrPoolClosed indicates the pool has been shut down.
var ErrPoolClosed = errors.New("connection pool is closed")

// ErrSessionClosed indicates a command was attempted on a session that is
// no longer usable.
var ErrSessionClosed = errors.New("imap session is closed")

// AuthError indicates the server rejected the login. It carries the server
// identity so callers can point at the credentials to fix.
type AuthError struct {
	Server string
	Err    error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %q: %v", e.Server, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// IsAuthError reports whether err indicates a rejected login.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsReconnectWorthy reports whether err looks like a dead or dying
// connection rather than a server verdict. Operations retry exactly once
// over a fresh connection when this returns true; protocol-level NO/BAD
// responses never qualify.
func IsReconnectWorthy(err error) bool {
	if err == nil {
		return false
	}

	// A status response means the connection delivered an answer.
	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		return false
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, ErrSessionClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return matchesNetFailureText(err)
}

// matchesNetFailureText is the fallback for errors that reach us as bare
// strings, which the IMAP library produces for some teardown paths.
func matchesNetFailureText(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"use of closed network connection",
		"connection reset by peer",
		"broken pipe",
		"unexpected eof",
		"i/o timeout",
		"not connected",
		"handshake failure",
		"imapclient: connection closed",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}
