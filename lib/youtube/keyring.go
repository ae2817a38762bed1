package youtube

import (
	"errors"
	"sync"
)

var ErrNoUsableKeys = errors.New("no usable API keys remain in the credential set")

// Keyring holds the credential set as an ordered list with a cursor. The
// cursor advances on quota exhaustion and keys that the platform rejects as
// invalid are dropped from rotation entirely.
type Keyring struct {
	mu     sync.Mutex
	keys   []string
	cursor int
}

func NewKeyring(keys []string) *Keyring {
	ring := &Keyring{}
	ring.keys = append(ring.keys, keys...)
	return ring
}

func (r *Keyring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.keys)
}

func (r *Keyring) Current() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 {
		return "", ErrNoUsableKeys
	}
	return r.keys[r.cursor], nil
}

// Advance moves the cursor past the given key. A no-op when another caller
// already advanced it, so concurrent quota errors rotate once, not N times.
func (r *Keyring) Advance(from string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.keys) == 0 || r.keys[r.cursor] != from {
		return
	}
	r.cursor = (r.cursor + 1) % len(r.keys)
}

// Drop removes an invalid key from rotation.
func (r *Keyring) Drop(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, k := range r.keys {
		if k != key {
			continue
		}
		r.keys = append(r.keys[:i], r.keys[i+1:]...)
		if len(r.keys) == 0 {
			r.cursor = 0
		} else if r.cursor >= len(r.keys) {
			r.cursor = 0
		} else if i < r.cursor {
			r.cursor--
		}
		return
	}
}

// Reset returns the cursor to the head of the set, used when a quota window
// rolls over and previously exhausted keys become usable again.
func (r *Keyring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cursor = 0
}
