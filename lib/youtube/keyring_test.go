package youtube

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyring_Rotation(t *testing.T) {
	ring := NewKeyring([]string{"a", "b", "c"})

	key, err := ring.Current()
	require.NoError(t, err)
	assert.Equal(t, "a", key)

	ring.Advance("a")
	key, _ = ring.Current()
	assert.Equal(t, "b", key)

	// Advancing from a key that is no longer current is a no-op.
	ring.Advance("a")
	key, _ = ring.Current()
	assert.Equal(t, "b", key)

	ring.Advance("b")
	ring.Advance("c")
	key, _ = ring.Current()
	assert.Equal(t, "a", key, "cursor wraps around the set")
}

func TestKeyring_Drop(t *testing.T) {
	ring := NewKeyring([]string{"a", "b", "c"})

	ring.Advance("a")
	ring.Drop("a") // dropping before the cursor shifts it back
	key, err := ring.Current()
	require.NoError(t, err)
	assert.Equal(t, "b", key)
	assert.Equal(t, 2, ring.Len())

	ring.Drop("b")
	key, _ = ring.Current()
	assert.Equal(t, "c", key)

	ring.Drop("c")
	_, err = ring.Current()
	assert.ErrorIs(t, err, ErrNoUsableKeys)
	assert.Equal(t, 0, ring.Len())
}

func TestKeyring_DropCurrentAtTail(t *testing.T) {
	ring := NewKeyring([]string{"a", "b"})
	ring.Advance("a")

	ring.Drop("b")
	key, err := ring.Current()
	require.NoError(t, err)
	assert.Equal(t, "a", key)
}

func TestKeyring_Reset(t *testing.T) {
	ring := NewKeyring([]string{"a", "b", "c"})
	ring.Advance("a")
	ring.Advance("b")

	ring.Reset()
	key, _ := ring.Current()
	assert.Equal(t, "a", key)
}
