package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timberdayz/datahub/internal/domain/catalog"
	"github.com/timberdayz/datahub/internal/domain/shared"
)

func TestSyncPoint_Advance(t *testing.T) {
	now := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)

	t.Run("advances and accumulates counters", func(t *testing.T) {
		sp, err := NewSyncPoint(catalog.PlatformShopee, "acct-1", catalog.DomainOrders)
		require.NoError(t, err)
		assert.True(t, sp.WindowStart().IsZero())

		require.NoError(t, sp.Advance(now, "2026-08-19", 100))
		require.NoError(t, sp.Advance(now.Add(time.Hour), "2026-08-20", 50))

		assert.Equal(t, int64(150), sp.RecordCount)
		assert.Equal(t, int64(2), sp.BatchCount)
		assert.Equal(t, "2026-08-20", sp.LastValue)
		assert.Equal(t, now.Add(time.Hour), sp.WindowStart())
	})

	t.Run("never moves backwards", func(t *testing.T) {
		sp, err := NewSyncPoint(catalog.PlatformShopee, "acct-1", catalog.DomainOrders)
		require.NoError(t, err)
		require.NoError(t, sp.Advance(now, "", 10))

		err = sp.Advance(now.Add(-time.Hour), "", 10)
		assert.True(t, shared.IsCode(err, shared.CodeInvalidState))
	})

	t.Run("an older watermark does not regress the newer one", func(t *testing.T) {
		sp, err := NewSyncPoint(catalog.PlatformShopee, "acct-1", catalog.DomainOrders)
		require.NoError(t, err)
		require.NoError(t, sp.Advance(now, "2026-08-20", 10))

		// A backfill file for an earlier window still counts its batch.
		require.NoError(t, sp.Advance(now.Add(time.Hour), "2026-08-10", 5))
		assert.Equal(t, "2026-08-20", sp.LastValue)
		assert.Equal(t, int64(2), sp.BatchCount)
	})

	t.Run("empty watermark keeps the previous value", func(t *testing.T) {
		sp, err := NewSyncPoint(catalog.PlatformShopee, "acct-1", catalog.DomainOrders)
		require.NoError(t, err)
		require.NoError(t, sp.Advance(now, "2026-08-19", 10))
		require.NoError(t, sp.Advance(now.Add(time.Hour), "", 5))
		assert.Equal(t, "2026-08-19", sp.LastValue)
	})

	t.Run("rejects negative record counts", func(t *testing.T) {
		sp, err := NewSyncPoint(catalog.PlatformShopee, "acct-1", catalog.DomainOrders)
		require.NoError(t, err)
		assert.True(t, shared.IsCode(sp.Advance(now, "", -1), shared.CodeInvalidInput))
	})
}

func TestNewSyncPoint_Validation(t *testing.T) {
	_, err := NewSyncPoint("", "acct", catalog.DomainOrders)
	assert.True(t, shared.IsCode(err, shared.CodeInvalidInput))

	_, err = NewSyncPoint(catalog.PlatformAmazon, "acct", "bogus")
	assert.True(t, shared.IsCode(err, shared.CodeInvalidInput))
}
