package mailops

import (
	"strings"

	"github.com/emersion/go-imap/v2"
)

// FlagOp selects whether parsed flags are added to or removed from
// messages.
type FlagOp int

const (
	FlagOpAdd FlagOp = iota
	FlagOpRemove
)

func (op FlagOp) String() string {
	if op == FlagOpRemove {
		return "remove"
	}
	return "add"
}

// storeOp converts the operation for use with STORE.
func (op FlagOp) storeOp() imap.StoreFlagsOp {
	if op == FlagOpRemove {
		return imap.StoreFlagsDel
	}
	return imap.StoreFlagsAdd
}

// ParseFlagOp parses an operation name, case-insensitively.
func ParseFlagOp(s string) (FlagOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add":
		return FlagOpAdd, nil
	case "remove":
		return FlagOpRemove, nil
	default:
		return 0, &InvalidInputError{Field: "operation", Reason: `must be "add" or "remove", got "` + s + `"`}
	}
}

var systemFlags = map[string]imap.Flag{
	"seen":     imap.FlagSeen,
	"answered": imap.FlagAnswered,
	"flagged":  imap.FlagFlagged,
	"deleted":  imap.FlagDeleted,
	"draft":    imap.FlagDraft,
	"junk":     imap.FlagJunk,
}

// ParseFlags turns a comma-separated flag list into IMAP flags. Known
// system flag names map to their standard flags regardless of case or a
// leading backslash; everything else passes through as a keyword flag.
func ParseFlags(s string) ([]imap.Flag, error) {
	var flags []imap.Flag
	for _, name := range strings.Split(s, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, `\`))
		if flag, ok := systemFlags[key]; ok {
			flags = append(flags, flag)
			continue
		}
		flags = append(flags, imap.Flag(name))
	}
	if len(flags) == 0 {
		return nil, ErrEmptyFlagList
	}
	return flags, nil
}
