package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeadLetterStore persists failed syncs for operator replay.
type DeadLetterStore struct {
	db *gorm.DB
}

// NewDeadLetterStore creates a dead-letter store.
func NewDeadLetterStore(db *gorm.DB) *DeadLetterStore {
	return &DeadLetterStore{db: db}
}

// Add inserts an entry, assigning its id and timestamp when unset.
func (s *DeadLetterStore) Add(ctx context.Context, entry *DeadLetterEntry) error {
	prepare(entry)
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("failed to add dead letter: %w", err)
	}
	return nil
}

// Get returns an entry by id.
func (s *DeadLetterStore) Get(ctx context.Context, id string) (*DeadLetterEntry, error) {
	var entry DeadLetterEntry
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter: %w", err)
	}
	return &entry, nil
}

// List returns entries oldest first. An empty shopID lists every shop.
func (s *DeadLetterStore) List(ctx context.Context, shopID string) ([]DeadLetterEntry, error) {
	query := s.db.WithContext(ctx).Order("occurred_at ASC")
	if shopID != "" {
		query = query.Where("shop_id = ?", shopID)
	}
	var entries []DeadLetterEntry
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	return entries, nil
}

// LatestForOrder returns the most recent entry for an order.
func (s *DeadLetterStore) LatestForOrder(ctx context.Context, shopID string, orderID int64) (*DeadLetterEntry, error) {
	var entry DeadLetterEntry
	err := s.db.WithContext(ctx).
		Where("shop_id = ? AND platform_order_id = ?", shopID, orderID).
		Order("occurred_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get dead letter for order: %w", err)
	}
	return &entry, nil
}

// Delete removes one entry.
func (s *DeadLetterStore) Delete(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).Where("id = ?", id).Delete(&DeadLetterEntry{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete dead letter: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteByOrder removes every entry for an order.
func (s *DeadLetterStore) DeleteByOrder(ctx context.Context, shopID string, orderID int64) (int64, error) {
	result := s.db.WithContext(ctx).
		Where("shop_id = ? AND platform_order_id = ?", shopID, orderID).
		Delete(&DeadLetterEntry{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete dead letters: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// Replace swaps oldID for entry in one transaction, so a failed replay
// leaves exactly one entry behind.
func (s *DeadLetterStore) Replace(ctx context.Context, oldID string, entry *DeadLetterEntry) error {
	prepare(entry)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", oldID).Delete(&DeadLetterEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete replaced dead letter: %w", err)
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to add dead letter: %w", err)
		}
		return nil
	})
}

func prepare(entry *DeadLetterEntry) {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = time.Now().UTC()
	}
}
