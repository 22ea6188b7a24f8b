package event

import (
	"fmt"
	"strconv"
	"strings"
)

// WatcherSource is the ID source for watcher-emitted events. Canonical IDs
// have the form "<source>:<decimal-byte-offset>"; gap markers append a
// ":gap" suffix to the ID of the event that triggered them.
const WatcherSource = "file_watcher"

const gapSuffix = ":gap"

// CanonicalID builds the canonical event ID for a line starting at the
// given byte offset in the append log.
func CanonicalID(offset int64) string {
	return fmt.Sprintf("%s:%d", WatcherSource, offset)
}

// GapID derives the gap-marker ID from the ID of its triggering event.
func GapID(triggerID string) string {
	return triggerID + gapSuffix
}

// OffsetOf extracts the byte offset embedded in a canonical ID. The second
// colon-separated field is the offset, for both plain and gap-suffixed IDs.
// Returns false for anything that does not carry a numeric offset.
func OffsetOf(id string) (int64, bool) {
	parts := strings.Split(id, ":")
	if len(parts) < 2 {
		return 0, false
	}
	n, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// IsGapID reports whether the ID names a gap marker.
func IsGapID(id string) bool {
	return strings.HasSuffix(id, gapSuffix)
}

// CompareIDs orders two canonical IDs by numeric offset. IDs without a
// parseable offset sort before those with one.
func CompareIDs(a, b string) int {
	oa, oka := OffsetOf(a)
	ob, okb := OffsetOf(b)
	switch {
	case !oka && !okb:
		return strings.Compare(a, b)
	case !oka:
		return -1
	case !okb:
		return 1
	case oa < ob:
		return -1
	case oa > ob:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
