package canonical

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesOrdersKeysRegardlessOfInputOrder(t *testing.T) {
	a := map[string]interface{}{"b": 1, "a": 2}
	b := map[string]interface{}{"a": 2, "b": 1}

	ba, err := Bytes(a)
	require.NoError(t, err)
	bb, err := Bytes(b)
	require.NoError(t, err)

	assert.Equal(t, string(ba), string(bb))
	assert.Equal(t, `{"a":2,"b":1}`, string(ba))
}

func TestBytesNormalizesNegativeZero(t *testing.T) {
	b, err := Bytes(map[string]interface{}{"x": -0.0})
	require.NoError(t, err)
	assert.Equal(t, `{"x":0}`, string(b))
}

func TestHashIsDeterministic(t *testing.T) {
	v := map[string]interface{}{"accountId": "alice", "amount": 1.5}
	h1, err := Hash(v)
	require.NoError(t, err)
	h2, err := Hash(v)
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestHashBytesOfEmptyStringMatchesKnownSHA256(t *testing.T) {
	got := HashBytes([]byte(""))
	want := "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	assert.Equal(t, want, got)
}
