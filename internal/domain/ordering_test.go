package domain

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderingKey(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		expected    OrderingKey
		expectError bool
	}{
		{
			name:     "simple key",
			input:    "12-9",
			expected: OrderingKey{Block: 12, Index: 9},
		},
		{
			name:     "large values",
			input:    "18446744073709551615-4",
			expected: OrderingKey{Block: 18446744073709551615, Index: 4},
		},
		{
			name:        "missing separator",
			input:       "129",
			expectError: true,
		},
		{
			name:        "non numeric block",
			input:       "abc-1",
			expectError: true,
		},
		{
			name:        "non numeric index",
			input:       "1-x",
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := ParseOrderingKey(tt.input)
			if tt.expectError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, key)
			assert.Equal(t, tt.input, key.String())
		})
	}
}

func TestOrderingKey_NumericNotLexicographic(t *testing.T) {
	nine, err := ParseOrderingKey("12-9")
	require.NoError(t, err)
	ten, err := ParseOrderingKey("12-10")
	require.NoError(t, err)

	// lexicographic comparison would put "12-10" first
	assert.True(t, "12-10" < "12-9")
	assert.True(t, nine.Less(ten))
	assert.False(t, ten.Less(nine))
	assert.Equal(t, 0, nine.Compare(nine))
}

func TestOrderingKey_Sort(t *testing.T) {
	keys := []OrderingKey{
		{Block: 100, Index: 2},
		{Block: 12, Index: 10},
		{Block: 12, Index: 9},
		{Block: 9, Index: 100},
	}

	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	assert.Equal(t, []OrderingKey{
		{Block: 9, Index: 100},
		{Block: 12, Index: 9},
		{Block: 12, Index: 10},
		{Block: 100, Index: 2},
	}, keys)
}
