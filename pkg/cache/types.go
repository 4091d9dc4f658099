package cache

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Entry is a cached response.
//
// Only successful (status 200) responses with a readable body are cached;
// the router enforces that before calling Put.
type Entry struct {
	// Key is the normalized request identity (method + URL).
	Key string `json:"key"`

	// Status is the upstream HTTP status at store time. Always 200 today,
	// kept in the record so replays stay faithful if the policy widens.
	Status int `json:"status"`

	// ContentType is the upstream Content-Type header.
	ContentType string `json:"content_type,omitempty"`

	// Body is the response body.
	Body []byte `json:"body"`

	// StoredAt is when the entry was written.
	StoredAt time.Time `json:"stored_at"`
}

// Identity normalizes a request into its cache key: upper-cased method,
// URL without fragment. Query strings are significant and kept.
func Identity(method, rawURL string) string {
	method = strings.ToUpper(strings.TrimSpace(method))
	if u, err := url.Parse(rawURL); err == nil {
		u.Fragment = ""
		rawURL = u.String()
	}
	return method + " " + rawURL
}

func encodeEntry(e *Entry) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &e, nil
}

// Metrics receives cache events. Implementations must tolerate being nil
// (all Manager call sites guard), so disabling metrics costs nothing.
type Metrics interface {
	// RecordHit records a lookup served from the given tier.
	RecordHit(tier string)
	// RecordMiss records a lookup that found no tier entry.
	RecordMiss()
	// RecordStore records an entry written to the given tier.
	RecordStore(tier string, bytes int)
	// RecordTierDeleted records a garbage-collected tier.
	RecordTierDeleted(tier string)
}
