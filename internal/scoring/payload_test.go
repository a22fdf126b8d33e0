package scoring

import (
	"testing"

	"github.com/couchcryptid/crash-risk-service/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpret_PrefersProbabilities(t *testing.T) {
	vectors := testVectors(t, richmond)[:2]
	out := []byte(`{"probabilities":[[0.7,0.3],[0.2,0.8]],"scores":[5,6]}`)

	scores, err := interpret(out, vectors)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, domain.Probability(&vectors[0], 0.3), scores[0])
	assert.Equal(t, domain.Probability(&vectors[1], 0.8), scores[1])
}

func TestInterpret_NestedSingleColumnScores(t *testing.T) {
	vectors := testVectors(t, richmond)[:3]
	scores, err := interpret([]byte(`{"scores":[[1.5],[0],[0.25]]}`), vectors)
	require.NoError(t, err)
	require.Len(t, scores, 3)
	for _, s := range scores {
		assert.Equal(t, domain.ProvenanceRegression, s.Provenance)
	}
	assert.Equal(t, 1.5, scores[0].Value)
}

func TestInterpret_SingleColumnProbabilitiesAreScores(t *testing.T) {
	vectors := testVectors(t, richmond)[:2]
	scores, err := interpret([]byte(`{"probabilities":[[0.4],[0.6]]}`), vectors)
	require.NoError(t, err)
	assert.Equal(t, domain.ProvenanceRegression, scores[1].Provenance)
	assert.Equal(t, 0.6, scores[1].Value)
}

func TestInterpret_FallsThroughNullProbabilities(t *testing.T) {
	vectors := testVectors(t, richmond)[:1]
	scores, err := interpret([]byte(`{"probabilities":null,"scores":[0.2]}`), vectors)
	require.NoError(t, err)
	assert.Equal(t, domain.ProvenanceRegression, scores[0].Provenance)
}

func TestInterpret_Errors(t *testing.T) {
	vectors := testVectors(t, richmond)[:2]
	tests := map[string]struct {
		out  string
		want error
	}{
		"whitespace":        {out: "  \n", want: ErrMalformed},
		"truncated":         {out: `{"probabilities":[[0.1,`, want: ErrMalformed},
		"ragged":            {out: `{"probabilities":[[0.1,0.9],[0.5]]}`, want: ErrMalformed},
		"too few rows":      {out: `{"probabilities":[[0.1,0.9]]}`, want: ErrMalformed},
		"string scores":     {out: `{"scores":["high","low"]}`, want: ErrMalformed},
		"no known field":    {out: `{"predictions":[1,2]}`, want: ErrShape},
		"three columns":     {out: `{"probabilities":[[0.1,0.2,0.7],[0.3,0.3,0.4]]}`, want: ErrShape},
		"multi-col scores":  {out: `{"scores":[[1,2],[3,4]]}`, want: ErrShape},
		"bare array output": {out: `[0.1,0.2]`, want: ErrMalformed},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := interpret([]byte(tc.out), vectors)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestEncodeRequest_Shape(t *testing.T) {
	vectors := testVectors(t, richmond, roanoke)
	data, err := encodeRequest(vectors)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"date":"2025-11-22"`)
	assert.Contains(t, string(data), `"columns":["hour","hour_sin"`)
}
