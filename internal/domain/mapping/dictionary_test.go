package mapping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/shared"
)

var testScope = Scope{Platform: catalog.PlatformShopee, Domain: catalog.DomainOrders}

func literalEntry(header, targetColumn string, version int) Entry {
	return Entry{
		BaseEntity:   shared.NewBaseEntity(),
		Platform:     testScope.Platform,
		Domain:       testScope.Domain,
		Version:      version,
		Status:       EntryStatusActive,
		Header:       header,
		TargetTable:  "canonical_rows",
		TargetColumn: targetColumn,
		ValueType:    TypeString,
	}
}

func patternEntry(pattern string, version, position int) Entry {
	return Entry{
		BaseEntity:     shared.NewBaseEntity(),
		Platform:       testScope.Platform,
		Domain:         testScope.Domain,
		Version:        version,
		Status:         EntryStatusActive,
		Pattern:        pattern,
		TargetTable:    "metric_facts",
		ValueType:      TypeDecimal,
		CurrencyPolicy: PolicyConvert,
		Position:       position,
	}
}

func TestLoadDictionary(t *testing.T) {
	t.Run("compiles literals and patterns", func(t *testing.T) {
		dict, err := LoadDictionary(testScope, []Entry{
			literalEntry("SKU", "sku", 1),
			patternEntry(`^(?P<metric>GMV)_(?P<currency>[A-Z]{3})$`, 1, 0),
		})
		require.NoError(t, err)
		assert.Equal(t, 2, dict.Len())
	})

	t.Run("skips inactive and out-of-scope entries", func(t *testing.T) {
		draft := literalEntry("Draft", "draft", 1)
		draft.Status = EntryStatusDraft
		deprecated := literalEntry("Old", "old", 1)
		deprecated.Status = EntryStatusDeprecated
		foreign := literalEntry("Other", "other", 1)
		foreign.Platform = catalog.PlatformAmazon

		dict, err := LoadDictionary(testScope, []Entry{draft, deprecated, foreign, literalEntry("SKU", "sku", 1)})
		require.NoError(t, err)
		assert.Equal(t, 1, dict.Len())
	})

	t.Run("newer version supersedes older literal", func(t *testing.T) {
		v1 := literalEntry("Price", "price_old", 1)
		v2 := literalEntry("Price", "price", 2)

		dict, err := LoadDictionary(testScope, []Entry{v1, v2})
		require.NoError(t, err)

		col := dict.Resolve([]string{"Price"}).Columns[0]
		require.Equal(t, ColumnCanonical, col.Kind)
		assert.Equal(t, "price", col.Entry.TargetColumn)
		assert.Equal(t, 1, dict.Len())
	})

	t.Run("same-version conflicting targets is a configuration error", func(t *testing.T) {
		a := literalEntry("Price", "price", 1)
		b := literalEntry("Price", "unit_price", 1)

		_, err := LoadDictionary(testScope, []Entry{a, b})
		assert.True(t, shared.IsCode(err, shared.CodeConfigurationError))
	})

	t.Run("same-version identical targets dedupe silently", func(t *testing.T) {
		a := literalEntry("Price", "price", 1)
		b := literalEntry("Price", "price", 1)

		dict, err := LoadDictionary(testScope, []Entry{a, b})
		require.NoError(t, err)
		assert.Equal(t, 1, dict.Len())
	})

	t.Run("invalid regex is a configuration error", func(t *testing.T) {
		_, err := LoadDictionary(testScope, []Entry{patternEntry("(unclosed", 1, 0)})
		assert.True(t, shared.IsCode(err, shared.CodeConfigurationError))
	})

	t.Run("entry without header or pattern is a configuration error", func(t *testing.T) {
		e := literalEntry("", "x", 1)
		_, err := LoadDictionary(testScope, []Entry{e})
		assert.True(t, shared.IsCode(err, shared.CodeConfigurationError))
	})

	t.Run("missing target table fails validation", func(t *testing.T) {
		e := literalEntry("SKU", "sku", 1)
		e.TargetTable = ""
		_, err := LoadDictionary(testScope, []Entry{e})
		assert.True(t, shared.IsCode(err, shared.CodeConfigurationError))
	})

	t.Run("malformed range bound is a configuration error", func(t *testing.T) {
		e := literalEntry("Qty", "qty", 1)
		e.ValueType = TypeInt
		e.MinValue = "zero"
		_, err := LoadDictionary(testScope, []Entry{e})
		assert.True(t, shared.IsCode(err, shared.CodeConfigurationError))
	})

	t.Run("inverted range bounds are a configuration error", func(t *testing.T) {
		e := literalEntry("Qty", "qty", 1)
		e.ValueType = TypeInt
		e.MinValue = "10"
		e.MaxValue = "1"
		_, err := LoadDictionary(testScope, []Entry{e})
		assert.True(t, shared.IsCode(err, shared.CodeConfigurationError))
	})

	t.Run("range bounds on a non-numeric column are a configuration error", func(t *testing.T) {
		e := literalEntry("Note", "note", 1)
		e.MinValue = "0"
		_, err := LoadDictionary(testScope, []Entry{e})
		assert.True(t, shared.IsCode(err, shared.CodeConfigurationError))
	})

	t.Run("date-ordering constraint on a non-date column is a configuration error", func(t *testing.T) {
		e := literalEntry("Start", "start_date", 1)
		e.NotAfterColumn = "end_date"
		_, err := LoadDictionary(testScope, []Entry{e})
		assert.True(t, shared.IsCode(err, shared.CodeConfigurationError))
	})

	t.Run("well-formed constraints load cleanly", func(t *testing.T) {
		qty := literalEntry("Qty", "qty", 1)
		qty.ValueType = TypeInt
		qty.MinValue = "0"
		qty.MaxValue = "100000"
		start := literalEntry("Start", "start_date", 1)
		start.ValueType = TypeDate
		start.NotAfterColumn = "end_date"

		dict, err := LoadDictionary(testScope, []Entry{qty, start})
		require.NoError(t, err)
		assert.Equal(t, 2, dict.Len())
	})
}

func TestDictionary_RequiredHeaders(t *testing.T) {
	sku := literalEntry("SKU", "sku", 1)
	sku.Required = true
	date := literalEntry("Date", "metric_date", 1)
	date.Required = true
	optional := literalEntry("Note", "note", 1)

	dict, err := LoadDictionary(testScope, []Entry{sku, date, optional})
	require.NoError(t, err)

	assert.Equal(t, []string{"Date", "SKU"}, dict.RequiredHeaders())

	t.Run("reports absent required headers", func(t *testing.T) {
		missing := dict.MissingRequiredHeaders([]string{"SKU", "Note"})
		assert.Equal(t, []string{"Date"}, missing)
	})

	t.Run("empty when all present", func(t *testing.T) {
		assert.Empty(t, dict.MissingRequiredHeaders([]string{"SKU", "Date"}))
	})
}
