package corpus

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/Adithya-Monish-Kumar-K/bm25-equivalence/pkg/errors"
)

func TestValidateQueries(t *testing.T) {
	require.NoError(t, ValidateQueries([]Query{
		{ID: "q1", Terms: []string{"error", "error", "disk"}},
		{ID: "q2", Terms: []string{"network"}},
	}))

	bad := [][]Query{
		{{ID: "", Terms: []string{"x"}}},
		{{ID: "q", Terms: []string{"x"}}, {ID: "q", Terms: []string{"y"}}},
		{{ID: "q"}},
		{{ID: "q", Terms: []string{""}}},
	}
	for _, qs := range bad {
		err := ValidateQueries(qs)
		assert.True(t, errors.Is(err, apperrors.ErrMalformedInput), "%v", qs)
	}
}

func TestHashQueriesIsOrderSensitive(t *testing.T) {
	a := []Query{{ID: "q1", Terms: []string{"x"}}, {ID: "q2", Terms: []string{"y"}}}
	b := []Query{a[1], a[0]}

	ha, err := HashQueries(a)
	require.NoError(t, err)
	hb, err := HashQueries(b)
	require.NoError(t, err)
	again, err := HashQueries(a)
	require.NoError(t, err)

	assert.Equal(t, ha, again)
	assert.NotEqual(t, ha, hb)
}
