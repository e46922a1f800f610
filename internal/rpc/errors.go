package rpc

import (
	"context"
	"errors"

	"github.com/nhle/mailmux/internal/config"
	"github.com/nhle/mailmux/internal/credential"
	"github.com/nhle/mailmux/internal/mailops"
	"github.com/nhle/mailmux/internal/pdfexport"
	"github.com/nhle/mailmux/internal/pool"
)

// classifyError maps an operation failure to the wire error object.
// Every branch keeps the original message: callers must be able to act
// on it without reading daemon logs.
func classifyError(err error) *Error {
	var wireErr *Error
	if errors.As(err, &wireErr) {
		return wireErr
	}

	switch {
	case mailops.IsValidationError(err):
		return &Error{Code: CodeInvalidParams, Message: err.Error()}

	case config.IsUnknownServer(err),
		config.IsNotFound(err),
		errors.Is(err, config.ErrNoServers),
		errors.Is(err, config.ErrLegacyFormat):
		return &Error{Code: CodeConfig, Message: err.Error()}

	case credential.IsNoCredentials(err), errors.Is(err, credential.ErrIncomplete):
		return &Error{Code: CodeCredentials, Message: err.Error()}

	case errors.Is(err, credential.ErrNotFound), mailops.IsNotFound(err):
		return &Error{Code: CodeNotFound, Message: err.Error()}

	case pdfexport.IsUnavailable(err):
		return &Error{Code: CodeUnavailable, Message: err.Error()}

	case pool.IsAuthError(err),
		errors.Is(err, pool.ErrPoolClosed),
		pool.IsReconnectWorthy(err):
		return &Error{Code: CodeConnection, Message: err.Error()}

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeInternal, Message: "operation cancelled"}

	default:
		return &Error{Code: CodeInternal, Message: err.Error()}
	}
}
