package models

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCategory(t *testing.T) {
	tests := []struct {
		in   string
		want Category
	}{
		{"red", CategoryRed},
		{"Blue", CategoryBlue},
		{" GREEN ", CategoryGreen},
		{"0", CategoryRed},
		{"2", CategoryGreen},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseCategory(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseCategory("3")
	assert.ErrorContains(t, err, "out of range")
	_, err = ParseCategory("purple")
	assert.ErrorContains(t, err, "unknown category")
}

func TestSwordCounts_Summary(t *testing.T) {
	var c SwordCounts
	assert.Equal(t, "Red Swords: ?, Blue Swords: ?, Green Swords: ?", c.Summary())

	c.Set(CategoryGreen, big.NewInt(8))
	c.Set(CategoryRed, big.NewInt(3))
	c.Set(CategoryBlue, big.NewInt(5))
	assert.Equal(t, "Red Swords: 3, Blue Swords: 5, Green Swords: 8", c.Summary())
	assert.Equal(t, int64(5), c.Get(CategoryBlue).Int64())
}

func TestTxStage_Terminal(t *testing.T) {
	assert.False(t, TxSubmitted.Terminal())
	assert.False(t, TxHashReceived.Terminal())
	assert.True(t, TxConfirmed.Terminal())
	assert.True(t, TxReverted.Terminal())
}
