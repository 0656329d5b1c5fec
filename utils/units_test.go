package utils

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUnits(t *testing.T) {
	oneEther, _ := new(big.Int).SetString("1000000000000000000", 10)
	assert.Equal(t, "1", FormatUnits(oneEther, 18))

	amount, _ := new(big.Int).SetString("1200500000000000000000", 10)
	assert.Equal(t, "1200.5", FormatUnits(amount, 18))

	assert.Equal(t, "0", FormatUnits(nil, 18))
}

func TestParseUnits(t *testing.T) {
	amount, err := ParseUnits("40000000", 18)
	require.NoError(t, err)
	assert.Equal(t, "40000000000000000000000000", amount.String())

	amount, err = ParseUnits("0.5", 18)
	require.NoError(t, err)
	assert.Equal(t, "500000000000000000", amount.String())

	_, err = ParseUnits("abc", 18)
	assert.Error(t, err)

	_, err = ParseUnits("-1", 18)
	assert.Error(t, err)

	_, err = ParseUnits("0.0000000000000000001", 18)
	assert.Error(t, err)
}
