package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type payload struct {
	RunID   string `json:"run_id"`
	Verdict string `json:"verdict"`
}

func TestEncodeAndDecode(t *testing.T) {
	msgs, err := encode([]Event{
		{Key: "corpus-a", Value: payload{RunID: "r1", Verdict: "PASS"}},
		{Key: "corpus-b", Value: payload{RunID: "r2", Verdict: "FAIL"}},
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "corpus-a", string(msgs[0].Key))

	got, err := DecodeJSON[payload](msgs[1].Value)
	require.NoError(t, err)
	assert.Equal(t, payload{RunID: "r2", Verdict: "FAIL"}, got)
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode([]Event{{Key: "k", Value: make(chan int)}})
	assert.Error(t, err)
}

func TestDecodeJSONError(t *testing.T) {
	_, err := DecodeJSON[payload]([]byte("{"))
	assert.Error(t, err)
}
