package mailops

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
)

// maxSetSize bounds how many ids a single set may expand to, so a typo
// like "1-999999999" fails fast instead of exhausting memory.
const maxSetSize = 10000

// IDSet is a parsed message id-set: individual UIDs and inclusive ranges,
// as in "1,3,5-10". The zero value is invalid; use ParseIDSet.
type IDSet struct {
	input string
	uids  []imap.UID
}

// InvalidIDSetError reports an id-set string that does not match the
// grammar. It always names the offending input.
type InvalidIDSetError struct {
	Input  string
	Reason string
}

func (e *InvalidIDSetError) Error() string {
	return fmt.Sprintf("invalid message set %q: %s", e.Input, e.Reason)
}

// ParseIDSet parses an id-set string. Accepted entries are positive
// integers and low-high ranges separated by commas; anything else is
// rejected with an InvalidIDSetError.
func ParseIDSet(s string) (*IDSet, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return nil, &InvalidIDSetError{Input: s, Reason: "empty set"}
	}

	seen := make(map[imap.UID]struct{})
	var uids []imap.UID
	add := func(uid imap.UID) {
		if _, dup := seen[uid]; dup {
			return
		}
		seen[uid] = struct{}{}
		uids = append(uids, uid)
	}

	for _, entry := range strings.Split(trimmed, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			return nil, &InvalidIDSetError{Input: s, Reason: "empty entry"}
		}

		low, high, isRange, err := parseEntry(entry)
		if err != nil {
			return nil, &InvalidIDSetError{Input: s, Reason: err.Error()}
		}
		if isRange {
			if high < low {
				return nil, &InvalidIDSetError{
					Input:  s,
					Reason: fmt.Sprintf("range %d-%d is reversed", low, high),
				}
			}
			if high-low+1 > maxSetSize || uint64(len(uids))+(high-low+1) > maxSetSize {
				return nil, &InvalidIDSetError{
					Input:  s,
					Reason: fmt.Sprintf("set expands to more than %d ids", maxSetSize),
				}
			}
			for uid := low; uid <= high; uid++ {
				add(imap.UID(uid))
			}
		} else {
			add(imap.UID(low))
		}
	}

	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return &IDSet{input: trimmed, uids: uids}, nil
}

func parseEntry(entry string) (low, high uint64, isRange bool, err error) {
	if lowStr, highStr, ok := strings.Cut(entry, "-"); ok {
		low, err = parseID(lowStr)
		if err != nil {
			return 0, 0, false, err
		}
		high, err = parseID(highStr)
		if err != nil {
			return 0, 0, false, err
		}
		return low, high, true, nil
	}
	low, err = parseID(entry)
	return low, 0, false, err
}

func parseID(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	id, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%q is not a valid message id", s)
	}
	if id == 0 {
		return 0, fmt.Errorf("message ids start at 1")
	}
	return id, nil
}

// String returns the original (trimmed) input string.
func (s *IDSet) String() string {
	return s.input
}

// UIDs returns the expanded UIDs in ascending order.
func (s *IDSet) UIDs() []imap.UID {
	return s.uids
}

// Count returns the number of distinct UIDs in the set.
func (s *IDSet) Count() int {
	return len(s.uids)
}

// UIDSet converts the set for use in IMAP commands.
func (s *IDSet) UIDSet() imap.UIDSet {
	return imap.UIDSetNum(s.uids...)
}
