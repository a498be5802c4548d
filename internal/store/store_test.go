package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipbridge/internal/store"
	"gorm.io/gorm"
)

const shop = "example.myshopify.com"

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := store.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close(db) })
	return db
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := store.Open("oracle", "")
	assert.Error(t, err)
}

func TestMappingStore_ClaimLifecycle(t *testing.T) {
	mappings := store.NewMappingStore(setupTestDB(t))
	ctx := context.Background()

	t.Run("first claim inserts pending", func(t *testing.T) {
		res, err := mappings.Claim(ctx, shop, 450789469, "1001")
		require.NoError(t, err)
		assert.Equal(t, store.ClaimNew, res)
		assert.True(t, res.Owned())

		m, err := mappings.Get(ctx, shop, 450789469)
		require.NoError(t, err)
		assert.Equal(t, store.StatusPending, m.Status)
		assert.Equal(t, "1001", m.OrderNumber)
		assert.Nil(t, m.CarrierOrderID)
	})

	t.Run("second claim while pending is duplicate", func(t *testing.T) {
		res, err := mappings.Claim(ctx, shop, 450789469, "1001")
		require.NoError(t, err)
		assert.Equal(t, store.ClaimDuplicate, res)
		assert.False(t, res.Owned())
	})

	t.Run("created", func(t *testing.T) {
		require.NoError(t, mappings.MarkCreated(ctx, shop, 450789469, "S2S-1", "WB1"))

		m, err := mappings.Get(ctx, shop, 450789469)
		require.NoError(t, err)
		assert.Equal(t, store.StatusCreated, m.Status)
		require.NotNil(t, m.CarrierOrderID)
		assert.Equal(t, "S2S-1", *m.CarrierOrderID)
		require.NotNil(t, m.Waybill)
		assert.Equal(t, "WB1", *m.Waybill)
	})

	t.Run("claim after created is duplicate", func(t *testing.T) {
		res, err := mappings.Claim(ctx, shop, 450789469, "1001")
		require.NoError(t, err)
		assert.Equal(t, store.ClaimDuplicate, res)
	})

	t.Run("mark failed requires pending", func(t *testing.T) {
		err := mappings.MarkFailed(ctx, shop, 450789469)
		assert.ErrorIs(t, err, store.ErrStaleState)
	})
}

func TestMappingStore_ResubmitFailed(t *testing.T) {
	mappings := store.NewMappingStore(setupTestDB(t))
	ctx := context.Background()

	_, err := mappings.Claim(ctx, shop, 7, "1007")
	require.NoError(t, err)
	require.NoError(t, mappings.MarkFailed(ctx, shop, 7))

	res, err := mappings.Claim(ctx, shop, 7, "1007")
	require.NoError(t, err)
	assert.Equal(t, store.ClaimResubmit, res)

	m, err := mappings.Get(ctx, shop, 7)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPending, m.Status)
}

func ageMapping(t *testing.T, db *gorm.DB, orderID int64, age time.Duration) {
	t.Helper()
	err := db.Model(&store.OrderMapping{}).
		Where("shop_id = ? AND platform_order_id = ?", shop, orderID).
		UpdateColumn("updated_at", time.Now().UTC().Add(-age)).Error
	require.NoError(t, err)
}

func TestMappingStore_TakeoverExpiredClaim(t *testing.T) {
	db := setupTestDB(t)
	mappings := store.NewMappingStore(db, store.WithClaimLease(time.Minute))
	ctx := context.Background()

	_, err := mappings.Claim(ctx, shop, 8, "1008")
	require.NoError(t, err)

	ageMapping(t, db, 8, 30*time.Second)
	res, err := mappings.Claim(ctx, shop, 8, "1008")
	require.NoError(t, err)
	assert.Equal(t, store.ClaimDuplicate, res, "lease still held")

	ageMapping(t, db, 8, 2*time.Minute)
	res, err = mappings.Claim(ctx, shop, 8, "1008")
	require.NoError(t, err)
	assert.Equal(t, store.ClaimTakeover, res)
	assert.True(t, res.Owned())

	res, err = mappings.Claim(ctx, shop, 8, "1008")
	require.NoError(t, err)
	assert.Equal(t, store.ClaimDuplicate, res, "takeover renews the lease")

	require.NoError(t, mappings.MarkCreated(ctx, shop, 8, "S2S-8", "WB8"))
}

func TestMappingStore_ShopsArePartitioned(t *testing.T) {
	mappings := store.NewMappingStore(setupTestDB(t))
	ctx := context.Background()

	res1, err := mappings.Claim(ctx, "a.myshopify.com", 1, "1001")
	require.NoError(t, err)
	res2, err := mappings.Claim(ctx, "b.myshopify.com", 1, "1001")
	require.NoError(t, err)

	assert.Equal(t, store.ClaimNew, res1)
	assert.Equal(t, store.ClaimNew, res2)
}

func TestMappingStore_ConcurrentClaim(t *testing.T) {
	mappings := store.NewMappingStore(setupTestDB(t))
	ctx := context.Background()

	const racers = 16
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		owned int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := mappings.Claim(ctx, shop, 99, "1099")
			assert.NoError(t, err)
			if res.Owned() {
				mu.Lock()
				owned++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, owned)
}

func TestMappingStore_MarkFulfilled(t *testing.T) {
	db := setupTestDB(t)
	mappings := store.NewMappingStore(db)
	deadLetters := store.NewDeadLetterStore(db)
	ctx := context.Background()

	t.Run("updates existing mapping", func(t *testing.T) {
		_, err := mappings.Claim(ctx, shop, 1, "1001")
		require.NoError(t, err)
		require.NoError(t, mappings.MarkCreated(ctx, shop, 1, "S2S-1", ""))

		previous, err := mappings.MarkFulfilled(ctx, shop, 1, store.Fulfillment{
			OrderNumber:    "1001",
			FulfillmentID:  "gid://shopify/Fulfillment/9",
			TrackingNumber: "TRK123",
			TrackingURL:    "https://track.example.com/TRK123",
		})
		require.NoError(t, err)
		assert.Equal(t, store.StatusCreated, previous)

		m, err := mappings.Get(ctx, shop, 1)
		require.NoError(t, err)
		assert.Equal(t, store.StatusFulfilled, m.Status)
		assert.Equal(t, "S2S-1", *m.CarrierOrderID)
		assert.Equal(t, "gid://shopify/Fulfillment/9", *m.FulfillmentID)
		assert.Equal(t, "TRK123", *m.TrackingNumber)
		assert.Nil(t, m.Waybill)
	})

	t.Run("creates missing mapping", func(t *testing.T) {
		previous, err := mappings.MarkFulfilled(ctx, shop, 2, store.Fulfillment{
			OrderNumber:    "1002",
			FulfillmentID:  "gid://shopify/Fulfillment/10",
			TrackingNumber: "TRK456",
		})
		require.NoError(t, err)
		assert.Equal(t, store.Status(""), previous)

		m, err := mappings.FindByOrderNumber(ctx, shop, "1002")
		require.NoError(t, err)
		assert.Equal(t, int64(2), m.PlatformOrderID)
		assert.Equal(t, store.StatusFulfilled, m.Status)
		assert.Nil(t, m.TrackingURL)
	})

	t.Run("failed order drops its dead letters", func(t *testing.T) {
		_, err := mappings.Claim(ctx, shop, 3, "1003")
		require.NoError(t, err)
		require.NoError(t, mappings.MarkFailed(ctx, shop, 3))
		require.NoError(t, deadLetters.Add(ctx, &store.DeadLetterEntry{
			ShopID:          shop,
			PlatformOrderID: 3,
			ErrorKind:       "RETRY_EXHAUSTED",
			Payload:         []byte(`{"id":3}`),
		}))

		previous, err := mappings.MarkFulfilled(ctx, shop, 3, store.Fulfillment{
			OrderNumber:    "1003",
			FulfillmentID:  "gid://shopify/Fulfillment/11",
			TrackingNumber: "TRK789",
		})
		require.NoError(t, err)
		assert.Equal(t, store.StatusFailed, previous)

		_, err = deadLetters.LatestForOrder(ctx, shop, 3)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}

func TestMappingStore_NotFound(t *testing.T) {
	mappings := store.NewMappingStore(setupTestDB(t))

	_, err := mappings.Get(context.Background(), shop, 404)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = mappings.FindByOrderNumber(context.Background(), shop, "404")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMappingStore_CountByStatus(t *testing.T) {
	mappings := store.NewMappingStore(setupTestDB(t))
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		_, err := mappings.Claim(ctx, shop, i, fmt.Sprint(1000+i))
		require.NoError(t, err)
	}
	require.NoError(t, mappings.MarkFailed(ctx, shop, 3))

	counts, err := mappings.CountByStatus(ctx, shop)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts[store.StatusPending])
	assert.Equal(t, int64(1), counts[store.StatusFailed])
}

func TestDeadLetterStore(t *testing.T) {
	deadLetters := store.NewDeadLetterStore(setupTestDB(t))
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	first := &store.DeadLetterEntry{
		ShopID:          shop,
		PlatformOrderID: 1,
		ErrorKind:       "RETRIES_EXHAUSTED",
		ErrorMessage:    "service unavailable",
		RetryCount:      3,
		Payload:         []byte(`{"id":1}`),
		OccurredAt:      base,
	}
	require.NoError(t, deadLetters.Add(ctx, first))
	assert.NotEmpty(t, first.ID)

	second := &store.DeadLetterEntry{
		ShopID:          "other.myshopify.com",
		PlatformOrderID: 2,
		ErrorKind:       "INSUFFICIENT_CREDITS",
		OccurredAt:      base.Add(time.Minute),
	}
	require.NoError(t, deadLetters.Add(ctx, second))

	t.Run("get", func(t *testing.T) {
		got, err := deadLetters.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.RetryCount)
		assert.JSONEq(t, `{"id":1}`, string(got.Payload))
	})

	t.Run("list by shop and all", func(t *testing.T) {
		byShop, err := deadLetters.List(ctx, shop)
		require.NoError(t, err)
		assert.Len(t, byShop, 1)

		all, err := deadLetters.List(ctx, "")
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Equal(t, first.ID, all[0].ID)
	})

	t.Run("replace keeps one entry", func(t *testing.T) {
		replacement := &store.DeadLetterEntry{
			ShopID:          shop,
			PlatformOrderID: 1,
			ErrorKind:       "RETRIES_EXHAUSTED",
			RetryCount:      3,
			Payload:         first.Payload,
			OccurredAt:      base.Add(time.Hour),
		}
		require.NoError(t, deadLetters.Replace(ctx, first.ID, replacement))

		_, err := deadLetters.Get(ctx, first.ID)
		assert.ErrorIs(t, err, store.ErrNotFound)

		latest, err := deadLetters.LatestForOrder(ctx, shop, 1)
		require.NoError(t, err)
		assert.Equal(t, replacement.ID, latest.ID)
	})

	t.Run("delete by order", func(t *testing.T) {
		n, err := deadLetters.DeleteByOrder(ctx, shop, 1)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		_, err = deadLetters.LatestForOrder(ctx, shop, 1)
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("delete missing", func(t *testing.T) {
		assert.ErrorIs(t, deadLetters.Delete(ctx, "missing"), store.ErrNotFound)
		assert.NoError(t, deadLetters.Delete(ctx, second.ID))
	})
}
