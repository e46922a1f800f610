package mailops

import (
	"sort"

	"github.com/emersion/go-imap/v2"
)

// latestUIDs returns up to limit of the highest UIDs, in ascending order
// ready for a fetch set.
func latestUIDs(uids []imap.UID, limit int) []imap.UID {
	sorted := make([]imap.UID, len(uids))
	copy(sorted, uids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[len(sorted)-limit:]
	}
	return sorted
}

func sortHeadersNewestFirst(headers []MessageHeader) {
	sort.Slice(headers, func(i, j int) bool { return headers[i].UID > headers[j].UID })
}

func sortDetailsOldestFirst(details []MessageDetail) {
	sort.Slice(details, func(i, j int) bool { return details[i].UID < details[j].UID })
}
