package valueobject

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRounding(t *testing.T) {
	t.Run("money rounds half up to two places", func(t *testing.T) {
		assert.Equal(t, "10.13", RoundMoney(decimal.RequireFromString("10.125")).String())
		assert.Equal(t, "10.12", RoundMoney(decimal.RequireFromString("10.124")).String())
		assert.Equal(t, "-10.13", RoundMoney(decimal.RequireFromString("-10.125")).String())
	})

	t.Run("ratios round half up to four places", func(t *testing.T) {
		assert.Equal(t, "0.1235", RoundRatio(decimal.RequireFromString("0.12345")).String())
		assert.Equal(t, "0.1234", RoundRatio(decimal.RequireFromString("0.12344")).String())
	})
}

func TestIsValidCurrencyCode(t *testing.T) {
	assert.True(t, IsValidCurrencyCode("USD"))
	assert.True(t, IsValidCurrencyCode("CNY"))
	assert.False(t, IsValidCurrencyCode("usd"))
	assert.False(t, IsValidCurrencyCode("US"))
	assert.False(t, IsValidCurrencyCode("USDT"))
	assert.False(t, IsValidCurrencyCode("U1D"))
	assert.False(t, IsValidCurrencyCode(""))
}

func TestMoney(t *testing.T) {
	t.Run("rejects empty currency", func(t *testing.T) {
		_, err := NewMoney(decimal.NewFromInt(1), "")
		assert.Error(t, err)
	})

	t.Run("add and sub require matching currencies", func(t *testing.T) {
		usd, err := NewMoneyFromString("10.50", USD)
		require.NoError(t, err)
		cny, err := NewMoneyFromString("3.25", CNY)
		require.NoError(t, err)

		_, err = usd.Add(cny)
		assert.Error(t, err)
		_, err = usd.Sub(cny)
		assert.Error(t, err)

		sum, err := usd.Add(usd)
		require.NoError(t, err)
		assert.Equal(t, "21.00 USD", sum.String())
	})

	t.Run("mul and rounded", func(t *testing.T) {
		m, err := NewMoneyFromString("9.99", USD)
		require.NoError(t, err)
		scaled := m.Mul(decimal.RequireFromString("0.125")).Rounded()
		assert.Equal(t, "1.25 USD", scaled.String())
	})

	t.Run("json round trip", func(t *testing.T) {
		m, err := NewMoneyFromString("123.45", EUR)
		require.NoError(t, err)

		data, err := m.MarshalJSON()
		require.NoError(t, err)

		var back Money
		require.NoError(t, back.UnmarshalJSON(data))
		assert.True(t, m.Equals(back))
	})
}
