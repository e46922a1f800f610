package credential

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates the keyring holds no record for the requested
// server.
var ErrNotFound = errors.New("not found")

// ErrIncomplete indicates a credential record is missing its host,
// username, or password.
var ErrIncomplete = errors.New("credentials require host, username, and password")

// NoCredentialsError indicates neither the keyring nor the inline
// configuration block provides usable credentials for a server.
type NoCredentialsError struct {
	Server string
	Cause  error
}

func (e *NoCredentialsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("no credentials for %q: %v", e.Server, e.Cause)
	}
	return fmt.Sprintf("no credentials for %q: not in keyring and no inline block configured", e.Server)
}

func (e *NoCredentialsError) Unwrap() error {
	return e.Cause
}

// IsNoCredentials reports whether err indicates credential resolution
// failed for lack of any configured source.
func IsNoCredentials(err error) bool {
	var nce *NoCredentialsError
	return errors.As(err, &nce)
}
