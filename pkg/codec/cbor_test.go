package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapKeysAreSorted(t *testing.T) {
	data, err := Marshal(map[string]int{"b": 1, "a": 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xa2, 0x61, 'a', 0x02, 0x61, 'b', 0x01}, data)
}

func TestFloatsKeepFullWidth(t *testing.T) {
	data, err := Marshal(1.5)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xfb, 0x3f, 0xf8, 0, 0, 0, 0, 0, 0}, data)
}

func TestDuplicateMapKeysRejected(t *testing.T) {
	var out map[string]int
	err := Unmarshal([]byte{0xa2, 0x61, 'a', 0x01, 0x61, 'a', 0x02}, &out)
	assert.Error(t, err)
}

func TestRoundTripStruct(t *testing.T) {
	type entry struct {
		_     struct{} `cbor:",toarray"`
		ID    string
		Score float64
	}
	in := entry{ID: "d1", Score: 0.25}
	data, err := Marshal(in)
	require.NoError(t, err)
	var out entry
	require.NoError(t, Unmarshal(data, &out))
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.Score, out.Score)
}
