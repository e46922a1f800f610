package credential

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/99designs/keyring"
)

const serviceName = "mailmux"

// Credentials is the connection credential record for one server: where to
// connect and how to authenticate.
type Credentials struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// Addr returns the host:port dial address for the record.
func (c *Credentials) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Store persists credential records in the system keyring, one JSON-encoded
// item per server identity.
type Store struct {
	ring keyring.Keyring
}

// Open returns a Store backed by the platform keyring.
func Open() (*Store, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/mailmux/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("mailmux-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Store{ring: ring}, nil
}

// NewStore wraps an existing keyring. Tests use this with an in-memory
// array keyring.
func NewStore(ring keyring.Keyring) *Store {
	return &Store{ring: ring}
}

// Get retrieves the credential record for a server. A missing entry is
// reported as ErrNotFound.
func (s *Store) Get(server string) (*Credentials, error) {
	item, err := s.ring.Get(server)
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return nil, fmt.Errorf("credentials for %q: %w", server, ErrNotFound)
		}
		return nil, fmt.Errorf("getting credentials for %q: %w", server, err)
	}

	var creds Credentials
	if err := json.Unmarshal(item.Data, &creds); err != nil {
		return nil, fmt.Errorf("decoding credentials for %q: %w", server, err)
	}
	return &creds, nil
}

// Save stores the credential record for a server, replacing any existing
// entry. The stale entry is removed first so backends that reject duplicate
// keys still end up with exactly one record; saving the same record twice
// leaves one record behind.
func (s *Store) Save(server string, creds *Credentials) error {
	if err := creds.validate(); err != nil {
		return err
	}
	if creds.Port == 0 {
		creds.Port = 993
	}

	if err := s.ring.Remove(server); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("replacing credentials for %q: %w", server, err)
	}

	data, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("encoding credentials for %q: %w", server, err)
	}
	if err := s.ring.Set(keyring.Item{Key: server, Data: data}); err != nil {
		return fmt.Errorf("saving credentials for %q: %w", server, err)
	}
	return nil
}

// Delete removes the credential record for a server. A missing entry is
// reported as ErrNotFound.
func (s *Store) Delete(server string) error {
	if err := s.ring.Remove(server); err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return fmt.Errorf("credentials for %q: %w", server, ErrNotFound)
		}
		return fmt.Errorf("deleting credentials for %q: %w", server, err)
	}
	return nil
}

// List returns the server identities with stored credentials, sorted.
func (s *Store) List() ([]string, error) {
	keys, err := s.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Info describes one stored credential without its password.
type Info struct {
	Server   string `json:"server"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
}

// Describe lists stored credentials without their passwords, sorted by
// server identity.
func (s *Store) Describe() ([]Info, error) {
	ids, err := s.List()
	if err != nil {
		return nil, err
	}

	infos := make([]Info, 0, len(ids))
	for _, id := range ids {
		creds, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		infos = append(infos, Info{
			Server:   id,
			Host:     creds.Host,
			Port:     creds.Port,
			Username: creds.Username,
		})
	}
	return infos, nil
}

func (c *Credentials) validate() error {
	if c.Host == "" || c.Username == "" || c.Password == "" {
		return ErrIncomplete
	}
	return nil
}
