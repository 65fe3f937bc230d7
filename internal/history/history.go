// Package history keeps the most recent sync attempts in memory so an
// operator can see what the listener did without grepping logs. Nothing is
// persisted; a restart starts with an empty ring.
package history

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// Entry describes one sync attempt.
type Entry struct {
	ID         string    `json:"id"`
	At         time.Time `json:"at"`
	DeliveryID string    `json:"delivery_id,omitempty"`
	Ref        string    `json:"ref"`
	After      string    `json:"after,omitempty"`
	Pusher     string    `json:"pusher"`
	Commits    int       `json:"commits"`

	// PayloadDigest is the BLAKE3 hash of the raw body, so two entries can
	// be matched to the same (re)delivery.
	PayloadDigest string `json:"payload_blake3"`

	OK         bool   `json:"ok"`
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
	Stderr     string `json:"stderr,omitempty"`
}

// Digest returns the hex BLAKE3 hash of a payload.
func Digest(payload []byte) string {
	sum := blake3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Ring is a fixed-size buffer of entries; the oldest is overwritten first.
type Ring struct {
	mu    sync.Mutex
	ring  []Entry
	start int
	size  int
}

// NewRing returns a ring holding up to capacity entries. A capacity of
// zero or less keeps nothing.
func NewRing(capacity int) *Ring {
	if capacity < 0 {
		capacity = 0
	}
	return &Ring{ring: make([]Entry, capacity)}
}

// Record appends an entry. Safe on a nil ring.
func (r *Ring) Record(e Entry) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	capacity := len(r.ring)
	if capacity == 0 {
		return
	}

	if r.size < capacity {
		r.ring[(r.start+r.size)%capacity] = e
		r.size++
		return
	}

	// Overwrite oldest.
	r.ring[r.start] = e
	r.start = (r.start + 1) % capacity
}

// Recent returns the buffered entries, newest first.
func (r *Ring) Recent() []Entry {
	if r == nil {
		return []Entry{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Entry, 0, r.size)
	for i := r.size - 1; i >= 0; i-- {
		out = append(out, r.ring[(r.start+i)%len(r.ring)])
	}
	return out
}

// Len returns the number of buffered entries.
func (r *Ring) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
