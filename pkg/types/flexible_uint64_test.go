package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexibleUint64Unmarshal(t *testing.T) {
	tests := []struct {
		input    string
		expected uint64
	}{
		{`8545`, 8545},
		{`"0x2161"`, 8545},
		{`"8545"`, 8545},
		{`""`, 0},
		{`"0x"`, 0},
	}

	for _, test := range tests {
		var f FlexibleUint64
		require.NoError(t, json.Unmarshal([]byte(test.input), &f), "input %s", test.input)
		assert.Equal(t, test.expected, f.Value(), "input %s", test.input)
	}
}

func TestFlexibleUint64UnmarshalInvalid(t *testing.T) {
	var f FlexibleUint64
	assert.Error(t, json.Unmarshal([]byte(`"0xzz"`), &f))
	assert.Error(t, json.Unmarshal([]byte(`true`), &f))
	assert.Error(t, json.Unmarshal([]byte(`"0x10000000000000000"`), &f))
}

func TestParseFlexibleUint64(t *testing.T) {
	f, err := ParseFlexibleUint64(int64(7545))
	require.NoError(t, err)
	assert.Equal(t, uint64(7545), f.Uint64())

	f, err = ParseFlexibleUint64(float64(6721975))
	require.NoError(t, err)
	assert.Equal(t, uint64(6721975), f.Uint64())

	f, err = ParseFlexibleUint64("0x10")
	require.NoError(t, err)
	assert.Equal(t, uint64(16), f.Uint64())

	f, err = ParseFlexibleUint64(nil)
	require.NoError(t, err)
	assert.True(t, f.IsZero())

	_, err = ParseFlexibleUint64(int64(-1))
	assert.Error(t, err)

	_, err = ParseFlexibleUint64(true)
	assert.Error(t, err)
}

func TestFlexibleUint64Marshal(t *testing.T) {
	data, err := json.Marshal(NewFlexibleUint64(255))
	require.NoError(t, err)
	assert.Equal(t, `"0xff"`, string(data))
	assert.Equal(t, "0xff", NewFlexibleUint64(255).String())
}
