package mailops

import (
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyFlagList indicates a flag operation was requested with no flags
// left after trimming.
var ErrEmptyFlagList = errors.New("no flags given")

// InvalidInputError indicates a request parameter failed validation before
// any network activity.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidationError reports whether err is a request-validation failure:
// bad parameters, a malformed id-set, or an empty flag list.
func IsValidationError(err error) bool {
	var iie *InvalidInputError
	if errors.As(err, &iie) {
		return true
	}
	var ise *InvalidIDSetError
	if errors.As(err, &ise) {
		return true
	}
	var aae *AmbiguousAttachmentError
	if errors.As(err, &aae) {
		return true
	}
	return errors.Is(err, ErrEmptyFlagList)
}

// MessageNotFoundError indicates the requested UID does not exist in the
// mailbox.
type MessageNotFoundError struct {
	UID     uint32
	Mailbox string
}

func (e *MessageNotFoundError) Error() string {
	return fmt.Sprintf("message %d not found in %s", e.UID, e.Mailbox)
}

// NoAttachmentsError indicates the message exists but carries no
// attachments.
type NoAttachmentsError struct {
	UID uint32
}

func (e *NoAttachmentsError) Error() string {
	return fmt.Sprintf("message %d has no attachments", e.UID)
}

// AttachmentNotFoundError indicates none of the message's attachments
// matches the requested filename.
type AttachmentNotFoundError struct {
	UID       uint32
	Filename  string
	Available []string
}

func (e *AttachmentNotFoundError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("message %d has no attachment named %q", e.UID, e.Filename)
	}
	return fmt.Sprintf("message %d has no attachment named %q; available: %s",
		e.UID, e.Filename, strings.Join(e.Available, ", "))
}

// AmbiguousAttachmentError indicates the message has several attachments
// and the request did not name one.
type AmbiguousAttachmentError struct {
	UID       uint32
	Available []string
}

func (e *AmbiguousAttachmentError) Error() string {
	return fmt.Sprintf("message %d has %d attachments, name one of: %s",
		e.UID, len(e.Available), strings.Join(e.Available, ", "))
}

// FolderNotFoundError indicates no mailbox matching a special-use role or
// any of its conventional names exists on the server.
type FolderNotFoundError struct {
	Role  string
	Tried []string
}

func (e *FolderNotFoundError) Error() string {
	return fmt.Sprintf("no %s folder found; tried %s", e.Role, strings.Join(e.Tried, ", "))
}

// IsNotFound reports whether err is one of the dispatcher's not-found
// conditions.
func IsNotFound(err error) bool {
	var mnf *MessageNotFoundError
	if errors.As(err, &mnf) {
		return true
	}
	var naf *NoAttachmentsError
	if errors.As(err, &naf) {
		return true
	}
	var anf *AttachmentNotFoundError
	if errors.As(err, &anf) {
		return true
	}
	var fnf *FolderNotFoundError
	return errors.As(err, &fnf)
}
