package store

import (
	"fmt"
	"strconv"
	"time"
)

// Key prefixes.
const (
	unmatchedPrefix = "unmatched:"
	historyPrefix   = "history:"
	titlesPrefix    = "titles:"
	signaturePrefix = "sig:"
	lastReportKey   = "report:last"
)

// historyKey orders records chronologically within one entry.
// Format: history:<entryID>:<unix nanos, zero padded>:<recordID>
func historyKey(entryID string, at time.Time, recordID string) []byte {
	return fmt.Appendf(nil, "%s%s:%020d:%s", historyPrefix, entryID, at.UnixNano(), recordID)
}

func historyEntryPrefix(entryID string) string {
	return historyPrefix + entryID + ":"
}

// titlesKey keys the title cache by normalized title and year.
func titlesKey(normTitle string, year int) []byte {
	return []byte(titlesPrefix + normTitle + ":" + strconv.Itoa(year))
}

func signatureKey(id string) []byte {
	return []byte(signaturePrefix + id)
}
