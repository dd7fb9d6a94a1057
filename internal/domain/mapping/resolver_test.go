package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gmvPattern matches wide composite headers like "GMV_USD_refunded".
const gmvPattern = `^(?P<metric>[A-Za-z]+)_(?P<currency>[A-Z]{3})_(?P<status>[a-z]+)$`

func TestDictionary_Resolve(t *testing.T) {
	dict, err := LoadDictionary(testScope, []Entry{
		literalEntry("SKU", "sku", 1),
		literalEntry("Order Date", "metric_date", 1),
		patternEntry(gmvPattern, 1, 0),
	})
	require.NoError(t, err)

	t.Run("extracts dimensions from composite header", func(t *testing.T) {
		m := dict.Resolve([]string{"GMV_USD_refunded"})
		require.Len(t, m.Columns, 1)

		col := m.Columns[0]
		assert.Equal(t, ColumnDimension, col.Kind)
		assert.Equal(t, "gmv", col.Dimensions.MetricType)
		assert.Equal(t, "USD", col.Dimensions.Currency)
		assert.Equal(t, "refunded", col.Dimensions.Status)
	})

	t.Run("literal match wins over pattern match", func(t *testing.T) {
		// A literal rule for a header the pattern would also match.
		dict, err := LoadDictionary(testScope, []Entry{
			literalEntry("GMV_USD_paid", "gmv_usd_paid", 1),
			patternEntry(gmvPattern, 1, 0),
		})
		require.NoError(t, err)

		col := dict.Resolve([]string{"GMV_USD_paid"}).Columns[0]
		assert.Equal(t, ColumnCanonical, col.Kind)
		assert.Equal(t, "gmv_usd_paid", col.Entry.TargetColumn)
	})

	t.Run("unmapped headers are flagged, not dropped", func(t *testing.T) {
		m := dict.Resolve([]string{"SKU", "some_new_column"})
		require.Len(t, m.Columns, 2)
		assert.Equal(t, ColumnUnmapped, m.Columns[1].Kind)
		assert.False(t, m.Columns[1].IsMapped())
		assert.Equal(t, 1, m.MappedCount())
	})

	t.Run("resolution preserves header order", func(t *testing.T) {
		headers := []string{"Order Date", "SKU", "GMV_USD_refunded"}
		m := dict.Resolve(headers)
		for i, col := range m.Columns {
			assert.Equal(t, headers[i], col.Header)
		}
	})
}

func TestDictionary_PatternPrecedence(t *testing.T) {
	t.Run("newer version wins", func(t *testing.T) {
		v1 := patternEntry(`^(?P<metric>[A-Za-z]+)_(?P<currency>[A-Z]{3})$`, 1, 0)
		v1.TargetColumn = "old"
		v2 := patternEntry(`^(?P<metric>[A-Za-z]+)_(?P<currency>[A-Z]{3})$`, 2, 0)
		v2.TargetColumn = "new"

		dict, err := LoadDictionary(testScope, []Entry{v1, v2})
		require.NoError(t, err)

		col := dict.Resolve([]string{"GMV_USD"}).Columns[0]
		assert.Equal(t, "new", col.Entry.TargetColumn)
	})

	t.Run("more specific pattern wins within a version", func(t *testing.T) {
		broad := patternEntry(`^(?P<metric>[A-Za-z]+)_(?P<currency>[A-Z]{3}).*$`, 1, 0)
		broad.TargetColumn = "broad"
		specific := patternEntry(gmvPattern, 1, 1)
		specific.TargetColumn = "specific"

		dict, err := LoadDictionary(testScope, []Entry{broad, specific})
		require.NoError(t, err)

		col := dict.Resolve([]string{"GMV_USD_refunded"}).Columns[0]
		assert.Equal(t, "specific", col.Entry.TargetColumn)
	})

	t.Run("declaration order breaks remaining ties", func(t *testing.T) {
		first := patternEntry(`^A_(?P<currency>[A-Z]{3})$`, 1, 0)
		first.TargetColumn = "first"
		second := patternEntry(`^A_(?P<currency>[A-Z]{3})$`, 1, 1)
		second.TargetColumn = "second"

		dict, err := LoadDictionary(testScope, []Entry{second, first})
		require.NoError(t, err)

		col := dict.Resolve([]string{"A_EUR"}).Columns[0]
		assert.Equal(t, "first", col.Entry.TargetColumn)
	})
}

func TestDictionary_CustomGroupNames(t *testing.T) {
	e := patternEntry(`^(?P<m>[a-z]+)-(?P<c>[A-Z]{3})$`, 1, 0)
	e.MetricGroup = "m"
	e.CurrencyGroup = "c"

	dict, err := LoadDictionary(testScope, []Entry{e})
	require.NoError(t, err)

	col := dict.Resolve([]string{"sales-JPY"}).Columns[0]
	require.Equal(t, ColumnDimension, col.Kind)
	assert.Equal(t, "sales", col.Dimensions.MetricType)
	assert.Equal(t, "JPY", col.Dimensions.Currency)
	assert.Empty(t, col.Dimensions.Status)
}

func TestColumnMapping_Column(t *testing.T) {
	dict, err := LoadDictionary(testScope, []Entry{literalEntry("SKU", "sku", 1)})
	require.NoError(t, err)

	m := dict.Resolve([]string{"SKU", "Other"})

	col, ok := m.Column("SKU")
	require.True(t, ok)
	assert.Equal(t, ColumnCanonical, col.Kind)

	_, ok = m.Column("Missing")
	assert.False(t, ok)
}
