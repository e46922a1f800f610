package credential

import (
	"errors"

	"github.com/nhle/mailmux/internal/config"
)

// Resolver resolves the credentials for a configured server. The system
// keyring is consulted first; a miss there falls through to the inline
// credentials block in the configuration file. Only when both sources come
// up empty does resolution fail.
type Resolver struct {
	store *Store
	cfg   *config.Config
}

// NewResolver returns a Resolver bound to one configuration generation.
// Reload builds a fresh Resolver instead of mutating this one.
func NewResolver(store *Store, cfg *config.Config) *Resolver {
	return &Resolver{store: store, cfg: cfg}
}

// Resolve returns the credentials for the given server identity.
func (r *Resolver) Resolve(server string) (*Credentials, error) {
	sc, err := r.cfg.Server(server)
	if err != nil {
		return nil, err
	}

	creds, storeErr := r.store.Get(server)
	if storeErr == nil {
		return creds, nil
	}
	if !errors.Is(storeErr, ErrNotFound) {
		// Keyring backend failure. The inline block may still cover
		// for it, so keep going and only surface this if it does not.
		creds = nil
	}

	if inline := sc.Credentials; inline != nil {
		c := &Credentials{
			Host:     inline.Host,
			Port:     inline.Port,
			Username: inline.Username,
			Password: inline.Password,
		}
		if c.Port == 0 {
			c.Port = 993
		}
		if err := c.validate(); err != nil {
			return nil, &NoCredentialsError{Server: server, Cause: err}
		}
		return c, nil
	}

	if errors.Is(storeErr, ErrNotFound) {
		return nil, &NoCredentialsError{Server: server}
	}
	return nil, &NoCredentialsError{Server: server, Cause: storeErr}
}
