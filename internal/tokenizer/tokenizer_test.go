package tokenizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimple(t *testing.T) {
	tok := Simple{}
	assert.Equal(t, []string{"error", "disk", "dev", "sda1", "full"}, tok.Tokenize("ERROR: disk /dev/sda1 full!"))
	assert.Equal(t, []string{"a", "the", "x"}, tok.Tokenize("a the x"), "simple keeps stopwords and single letters")
	assert.Empty(t, tok.Tokenize("  --- "))
	assert.Equal(t, []string{"caf"}, tok.Tokenize("café"))
}

func TestLight(t *testing.T) {
	tok := Light{}
	assert.Equal(t, []string{"connection", "fail"}, tok.Tokenize("the connections failed"))
	assert.Equal(t, []string{"retry"}, tok.Tokenize("retries"))
}

func TestSnowball(t *testing.T) {
	tok := Snowball{}
	assert.Equal(t, []string{"connect", "fail", "time"}, tok.Tokenize("Connections failing at times"))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "error disk full", Normalize("  Error\tDISK \n full  "))
}

func TestNew(t *testing.T) {
	for _, name := range []string{"simple", "light", "snowball"} {
		tok, err := New(name)
		require.NoError(t, err)
		assert.Equal(t, name, tok.Name())
	}
	tok, err := New("")
	require.NoError(t, err)
	assert.Equal(t, "simple", tok.Name())

	_, err = New("bpe")
	assert.Error(t, err)
}
