package pool

import (
	"context"
	"fmt"
	"mime"

	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message/charset"
	"github.com/rs/zerolog"

	"github.com/nhle/mailmux/internal/credential"
)

// Dialer establishes authenticated IMAP connections. Both the pool and the
// change-watch loops dial through it; watch loops additionally register a
// unilateral-data handler to receive mailbox updates during IDLE.
type Dialer struct {
	resolver *credential.Resolver
	log      zerolog.Logger
}

// NewDialer returns a Dialer resolving credentials through the given
// resolver.
func NewDialer(resolver *credential.Resolver, log zerolog.Logger) *Dialer {
	return &Dialer{resolver: resolver, log: log}
}

// Dial resolves credentials for the server, connects, and logs in. Port 143
// upgrades via STARTTLS; everything else is implicit TLS.
func (d *Dialer) Dial(ctx context.Context, server string, handler *imapclient.UnilateralDataHandler) (*imapclient.Client, error) {
	creds, err := d.resolver.Resolve(server)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := &imapclient.Options{
		WordDecoder: &mime.WordDecoder{CharsetReader: charset.Reader},
	}
	if handler != nil {
		opts.UnilateralDataHandler = handler
	}

	addr := creds.Addr()
	d.log.Debug().Str("server", server).Str("addr", addr).Msg("dialing imap server")

	var client *imapclient.Client
	if creds.Port == 143 {
		client, err = imapclient.DialStartTLS(addr, opts)
	} else {
		client, err = imapclient.DialTLS(addr, opts)
	}
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", addr, err)
	}

	if err := client.Login(creds.Username, creds.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, &AuthError{Server: server, Err: err}
	}

	d.log.Debug().Str("server", server).Msg("imap login ok")
	return client, nil
}

// DialSession dials and wraps the connection as a pool session. This is the
// pool's dial function.
func (d *Dialer) DialSession(ctx context.Context, server string) (*Session, error) {
	client, err := d.Dial(ctx, server, nil)
	if err != nil {
		return nil, err
	}
	return NewSession(server, client), nil
}
