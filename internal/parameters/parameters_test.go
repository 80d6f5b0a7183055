package parameters_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chessrl/core/internal/parameters"
)

func TestNewFromConfigStringParsesKeyValuePairs(t *testing.T) {
	p := parameters.Params(parameters.NewFromConfigString("batch_size=64,learning_rate=0.01,deterministic"))
	assert.Equal(t, "64", p["batch_size"])
	assert.Equal(t, "0.01", p["learning_rate"])
	assert.Equal(t, "", p["deterministic"])
}

func TestPopParamOrRemovesConsumedKey(t *testing.T) {
	p := parameters.Params(parameters.NewFromConfigString("batch_size=64"))
	v, err := parameters.PopParamOr(p, "batch_size", 32)
	require.NoError(t, err)
	assert.Equal(t, 64, v)
	_, exists := p["batch_size"]
	assert.False(t, exists)
}

func TestPopParamOrReturnsDefaultWhenAbsent(t *testing.T) {
	p := parameters.Params{}
	v, err := parameters.PopParamOr(p, "missing", 7)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestPopParamOrRejectsMalformedInt(t *testing.T) {
	p := parameters.Params{"batch_size": "not-a-number"}
	_, err := parameters.PopParamOr(p, "batch_size", 32)
	assert.Error(t, err)
}

func TestGetParamOrBoolEmptyValueIsTrue(t *testing.T) {
	p := parameters.Params{"deterministic": ""}
	v, err := parameters.GetParamOr(p, "deterministic", false)
	require.NoError(t, err)
	assert.True(t, v)
}

func TestGetParamOrFloat64ParsesValue(t *testing.T) {
	p := parameters.Params{"discount": "0.99"}
	v, err := parameters.GetParamOr(p, "discount", 0.0)
	require.NoError(t, err)
	assert.Equal(t, 0.99, v)
}
