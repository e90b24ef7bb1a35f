package sync

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// TimestampLayout is the canonical utcDateChanged format. It is fixed width
// and zero padded, so lexicographic order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatUTC renders t in the canonical layout.
func FormatUTC(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// NowUTC returns the current time in the canonical layout.
func NowUTC() string {
	return FormatUTC(time.Now())
}

// IsOlderOrSame reports local <= remote. Missing timestamps never compare
// as older.
func IsOlderOrSame(local, remote string) bool {
	return local != "" && remote != "" && local <= remote
}

// IsStrictlyOlder reports local < remote.
func IsStrictlyOlder(local, remote string) bool {
	return local < remote
}

// Differs reports whether two changes disagree on content or erasure.
func Differs(a, b EntityChange) bool {
	return a.Hash != b.Hash || a.IsErased != b.IsErased
}

// NewChangeID returns a fresh change identifier.
func NewChangeID() string {
	return ulid.Make().String()
}

// NewInstanceID returns a fresh replica identifier.
func NewInstanceID() string {
	return ulid.Make().String()
}
