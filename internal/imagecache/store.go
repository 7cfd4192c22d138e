package imagecache

import "time"

// CachedImage represents one image's cached payload. The JSON field names are
// part of the on-disk cache file format.
type CachedImage struct {
	ID         string    `json:"id"`
	Base64Data string    `json:"base64Data"`
	MimeType   string    `json:"mimeType"`
	Filename   string    `json:"filename"`
	CachedAt   time.Time `json:"cachedAt"`
}

// Stats summarises the cache contents without decoding payloads.
type Stats struct {
	Count                int   `json:"count"`
	ApproximateSizeBytes int64 `json:"approximate_size_bytes"`
}

// Store is a disposable read-through cache for subtask image payloads. The
// database remains authoritative: entries may be missing, stale, or the whole
// cache may be deleted without data loss.
//
// Mutating operations deliberately return nothing. Cache failures are logged
// and swallowed inside the implementation so callers cannot accidentally
// propagate them as request failures.
type Store interface {
	// Get returns the cached entry for id. Absence is a normal outcome, not
	// an error; callers fall back to the system of record.
	Get(id string) (CachedImage, bool)

	// Put overwrites any existing entry for id with a freshly timestamped one.
	Put(id, base64Data, mimeType, filename string)

	// Remove deletes the entry if present. Removing an absent id is a no-op.
	Remove(id string)

	// Sweep removes all entries older than maxAgeDays and reports how many
	// were dropped.
	Sweep(maxAgeDays int) int

	// Stats reports entry count and estimated decoded size.
	Stats() Stats
}
