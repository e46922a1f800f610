package config

import (
	"errors"
	"fmt"
)

// ErrNoServers indicates the configuration file parsed cleanly but defines
// no servers, leaving the daemon with nothing to do.
var ErrNoServers = errors.New("config: no servers defined")

// ErrLegacyFormat indicates the servers section uses the retired array form
// instead of a map keyed by server identity.
var ErrLegacyFormat = errors.New(`config: "servers" must be a map keyed by server name; the old list format is no longer supported`)

// NotFoundError indicates the configuration file does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("config file not found: %s", e.Path)
}

// IsNotFound reports whether err indicates a missing configuration file.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// UnknownServerError indicates a request referenced a server identity that
// the current configuration generation does not define.
type UnknownServerError struct {
	ID string
}

func (e *UnknownServerError) Error() string {
	return fmt.Sprintf("unknown server %q", e.ID)
}

// IsUnknownServer reports whether err indicates an unconfigured server
// identity.
func IsUnknownServer(err error) bool {
	var use *UnknownServerError
	return errors.As(err, &use)
}
