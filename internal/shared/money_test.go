package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMoneyFormatterUSD(t *testing.T) {
	format, err := NewMoneyFormatter("USD")
	require.NoError(t, err)

	assert.Equal(t, "USD 0.00", format.Format(0))
	assert.Equal(t, "USD 0.05", format.Format(5))
	assert.Equal(t, "USD 1,234.56", format.Format(123456))
	assert.Equal(t, "-USD 1,234.56", format.Format(-123456))
}

func TestMoneyFormatterZeroDecimalCurrency(t *testing.T) {
	format, err := NewMoneyFormatter("JPY")
	require.NoError(t, err)

	assert.Equal(t, "JPY 500", format.Format(500))
	assert.Equal(t, "-JPY 500", format.Format(-500))
}

func TestMoneyFormatterRejectsUnknownCode(t *testing.T) {
	_, err := NewMoneyFormatter("ZZZ")
	assert.Error(t, err)
}
