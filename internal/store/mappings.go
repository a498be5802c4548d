package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ClaimResult tells the caller whether it owns the sync for an order.
type ClaimResult int

const (
	// ClaimDuplicate means another delivery already owns or finished the order.
	ClaimDuplicate ClaimResult = iota
	// ClaimNew means a PENDING mapping was inserted.
	ClaimNew
	// ClaimResubmit means a FAILED mapping was moved back to PENDING.
	ClaimResubmit
	// ClaimTakeover means a PENDING mapping whose lease expired was taken
	// over from an owner that never finished.
	ClaimTakeover
)

func (r ClaimResult) String() string {
	switch r {
	case ClaimNew:
		return "new"
	case ClaimResubmit:
		return "resubmit"
	case ClaimTakeover:
		return "takeover"
	default:
		return "duplicate"
	}
}

// Owned reports whether the caller should proceed with the sync.
func (r ClaimResult) Owned() bool {
	return r != ClaimDuplicate
}

// DefaultClaimLease is how long a PENDING claim is honoured before another
// delivery may take it over.
const DefaultClaimLease = 5 * time.Minute

// MappingStore persists OrderMapping rows keyed by (shop, platform order).
type MappingStore struct {
	db    *gorm.DB
	lease time.Duration
}

// MappingOption configures a MappingStore.
type MappingOption func(*MappingStore)

// WithClaimLease sets how long a PENDING claim blocks other deliveries.
// It must exceed the longest sync, or two owners may push the same order.
func WithClaimLease(d time.Duration) MappingOption {
	return func(s *MappingStore) {
		if d > 0 {
			s.lease = d
		}
	}
}

// NewMappingStore creates a mapping store.
func NewMappingStore(db *gorm.DB, opts ...MappingOption) *MappingStore {
	s := &MappingStore{db: db, lease: DefaultClaimLease}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Claim atomically takes ownership of an order. It inserts a PENDING row
// when none exists, flips a FAILED row back to PENDING, or takes over a
// PENDING row not touched within the lease. Any other existing row yields
// ClaimDuplicate. Concurrent callers for the same key get at most one
// owned result.
func (s *MappingStore) Claim(ctx context.Context, shopID string, orderID int64, orderNumber string) (ClaimResult, error) {
	m := &OrderMapping{
		ShopID:          shopID,
		PlatformOrderID: orderID,
		OrderNumber:     orderNumber,
		Status:          StatusPending,
	}
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "shop_id"}, {Name: "platform_order_id"}},
			DoNothing: true,
		}).
		Create(m)
	if result.Error != nil {
		return ClaimDuplicate, fmt.Errorf("failed to insert mapping: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return ClaimNew, nil
	}

	result = s.db.WithContext(ctx).
		Model(&OrderMapping{}).
		Where("shop_id = ? AND platform_order_id = ? AND status = ?", shopID, orderID, StatusFailed).
		Updates(map[string]interface{}{
			"status":       StatusPending,
			"order_number": orderNumber,
			"updated_at":   time.Now().UTC(),
		})
	if result.Error != nil {
		return ClaimDuplicate, fmt.Errorf("failed to resubmit mapping: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return ClaimResubmit, nil
	}

	now := time.Now().UTC()
	result = s.db.WithContext(ctx).
		Model(&OrderMapping{}).
		Where("shop_id = ? AND platform_order_id = ? AND status = ? AND updated_at < ?",
			shopID, orderID, StatusPending, now.Add(-s.lease)).
		Updates(map[string]interface{}{
			"order_number": orderNumber,
			"updated_at":   now,
		})
	if result.Error != nil {
		return ClaimDuplicate, fmt.Errorf("failed to take over mapping: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return ClaimTakeover, nil
	}
	return ClaimDuplicate, nil
}

// MarkCreated records the carrier order on a PENDING mapping.
func (s *MappingStore) MarkCreated(ctx context.Context, shopID string, orderID int64, carrierOrderID, waybill string) error {
	updates := map[string]interface{}{
		"status":           StatusCreated,
		"carrier_order_id": carrierOrderID,
		"updated_at":       time.Now().UTC(),
	}
	if waybill != "" {
		updates["waybill"] = waybill
	}
	return s.transition(ctx, shopID, orderID, StatusPending, updates)
}

// MarkFailed moves a PENDING mapping to FAILED.
func (s *MappingStore) MarkFailed(ctx context.Context, shopID string, orderID int64) error {
	return s.transition(ctx, shopID, orderID, StatusPending, map[string]interface{}{
		"status":     StatusFailed,
		"updated_at": time.Now().UTC(),
	})
}

func (s *MappingStore) transition(ctx context.Context, shopID string, orderID int64, from Status, updates map[string]interface{}) error {
	result := s.db.WithContext(ctx).
		Model(&OrderMapping{}).
		Where("shop_id = ? AND platform_order_id = ? AND status = ?", shopID, orderID, from).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update mapping: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: shop=%s order=%d want=%s", ErrStaleState, shopID, orderID, from)
	}
	return nil
}

// Fulfillment is the write-back outcome recorded on a mapping.
type Fulfillment struct {
	OrderNumber    string
	FulfillmentID  string
	TrackingNumber string
	TrackingURL    string
}

// MarkFulfilled records a fulfillment, creating the mapping if it does not
// exist yet, and discards the order's dead letters. It returns the status
// the mapping had before ("" when it was created here).
func (s *MappingStore) MarkFulfilled(ctx context.Context, shopID string, orderID int64, f Fulfillment) (Status, error) {
	now := time.Now().UTC()
	m := &OrderMapping{
		ShopID:          shopID,
		PlatformOrderID: orderID,
		OrderNumber:     f.OrderNumber,
		FulfillmentID:   strPtr(f.FulfillmentID),
		TrackingNumber:  strPtr(f.TrackingNumber),
		TrackingURL:     strPtr(f.TrackingURL),
		Status:          StatusFulfilled,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	var previous Status
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing OrderMapping
		err := tx.Select("status").
			Where("shop_id = ? AND platform_order_id = ?", shopID, orderID).
			Take(&existing).Error
		switch {
		case err == nil:
			previous = existing.Status
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("failed to read mapping: %w", err)
		}

		err = tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "shop_id"}, {Name: "platform_order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"status", "fulfillment_id", "tracking_number", "tracking_url", "updated_at",
			}),
		}).Create(m).Error
		if err != nil {
			return fmt.Errorf("failed to upsert fulfilled mapping: %w", err)
		}

		err = tx.Where("shop_id = ? AND platform_order_id = ?", shopID, orderID).
			Delete(&DeadLetterEntry{}).Error
		if err != nil {
			return fmt.Errorf("failed to clear dead letters: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return previous, nil
}

// Get returns the mapping for an order.
func (s *MappingStore) Get(ctx context.Context, shopID string, orderID int64) (*OrderMapping, error) {
	var m OrderMapping
	err := s.db.WithContext(ctx).
		Where("shop_id = ? AND platform_order_id = ?", shopID, orderID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mapping: %w", err)
	}
	return &m, nil
}

// FindByOrderNumber returns the mapping for a human-facing order number.
func (s *MappingStore) FindByOrderNumber(ctx context.Context, shopID, orderNumber string) (*OrderMapping, error) {
	var m OrderMapping
	err := s.db.WithContext(ctx).
		Where("shop_id = ? AND order_number = ?", shopID, orderNumber).
		Order("id DESC").
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find mapping by order number: %w", err)
	}
	return &m, nil
}

// CountByStatus returns the number of mappings per status for a shop.
func (s *MappingStore) CountByStatus(ctx context.Context, shopID string) (map[Status]int64, error) {
	var rows []struct {
		Status Status
		Count  int64
	}
	err := s.db.WithContext(ctx).
		Model(&OrderMapping{}).
		Select("status, COUNT(*) AS count").
		Where("shop_id = ?", shopID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count mappings: %w", err)
	}
	counts := make(map[Status]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
