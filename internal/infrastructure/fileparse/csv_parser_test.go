package fileparse

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

func TestDecodeToUTF8(t *testing.T) {
	t.Run("strips the utf-8 BOM", func(t *testing.T) {
		data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("SKU,Qty")...)
		decoded, err := DecodeToUTF8(data, "")
		require.NoError(t, err)
		assert.Equal(t, "SKU,Qty", string(decoded))
	})

	t.Run("decodes gbk content via the hint", func(t *testing.T) {
		gbk, _, err := transform.Bytes(simplifiedchinese.GBK.NewEncoder(), []byte("订单编号,金额"))
		require.NoError(t, err)

		decoded, err := DecodeToUTF8(gbk, "GBK")
		require.NoError(t, err)
		assert.Equal(t, "订单编号,金额", string(decoded))
	})

	t.Run("falls back to gb18030 without a hint", func(t *testing.T) {
		gbk, _, err := transform.Bytes(simplifiedchinese.GB18030.NewEncoder(), []byte("商品,数量"))
		require.NoError(t, err)

		decoded, err := DecodeToUTF8(gbk, "")
		require.NoError(t, err)
		assert.Equal(t, "商品,数量", string(decoded))
	})

	t.Run("empty input is a structural error", func(t *testing.T) {
		_, err := DecodeToUTF8(nil, "")
		assert.ErrorIs(t, err, ErrEmptyFile)
	})

	t.Run("unknown hint is rejected", func(t *testing.T) {
		_, err := DecodeToUTF8([]byte("a,b"), "koi8-r")
		assert.ErrorIs(t, err, ErrUnsupportedEncoding)
	})

	t.Run("declared utf-8 that is not utf-8", func(t *testing.T) {
		_, err := DecodeToUTF8([]byte{0xFF, 0xFE, 0xFD}, "utf-8")
		assert.ErrorIs(t, err, ErrInvalidEncoding)
	})
}

func TestParser(t *testing.T) {
	t.Run("reads header and rows", func(t *testing.T) {
		p, err := NewParser([]byte("SKU,Qty\nA,1\nB,2\n"), "")
		require.NoError(t, err)
		assert.Equal(t, []string{"SKU", "Qty"}, p.Headers())
		assert.True(t, p.HasHeader("Qty"))

		rows, err := p.ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "A", rows[0].Get("SKU"))
		assert.Equal(t, 2, rows[0].LineNumber)
		assert.Equal(t, "2", rows[1].Get("Qty"))
	})

	t.Run("skips preamble before the header row", func(t *testing.T) {
		data := "Report generated 2026-08-20\nShop: acme\nSKU,Qty\nA,1\n"
		p, err := NewParser([]byte(data), "", WithHeaderRow(3))
		require.NoError(t, err)
		assert.Equal(t, []string{"SKU", "Qty"}, p.Headers())

		rows, err := p.ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 4, rows[0].LineNumber)
	})

	t.Run("honors a custom delimiter", func(t *testing.T) {
		p, err := NewParser([]byte("SKU;Qty\nA;1\n"), "", WithDelimiter(';'))
		require.NoError(t, err)

		rows, err := p.ReadAll()
		require.NoError(t, err)
		assert.Equal(t, "1", rows[0].Get("Qty"))
	})

	t.Run("blank rows are skipped", func(t *testing.T) {
		p, err := NewParser([]byte("SKU,Qty\nA,1\n,\nB,2\n"), "")
		require.NoError(t, err)

		rows, err := p.ReadAll()
		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("short records pad missing columns", func(t *testing.T) {
		p, err := NewParser([]byte("SKU,Qty,Note\nA,1\n"), "")
		require.NoError(t, err)

		row, err := p.ReadRow()
		require.NoError(t, err)
		assert.Equal(t, "", row.Get("Note"))
	})

	t.Run("header row past EOF is a missing header", func(t *testing.T) {
		_, err := NewParser([]byte("only one line\n"), "", WithHeaderRow(5))
		assert.ErrorIs(t, err, ErrMissingHeader)
	})

	t.Run("headers with no data rows", func(t *testing.T) {
		p, err := NewParser([]byte("SKU,Qty\n"), "")
		require.NoError(t, err)

		_, err = p.ReadAll()
		assert.ErrorIs(t, err, ErrNoDataRows)
	})

	t.Run("read past the end returns EOF", func(t *testing.T) {
		p, err := NewParser([]byte("SKU\nA\n"), "")
		require.NoError(t, err)
		_, err = p.ReadRow()
		require.NoError(t, err)
		_, err = p.ReadRow()
		assert.Equal(t, io.EOF, err)
	})
}
