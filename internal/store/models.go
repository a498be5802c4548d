package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a row does not exist.
var ErrNotFound = errors.New("not found")

// ErrStaleState is returned when a guarded transition finds the row in an
// unexpected status.
var ErrStaleState = errors.New("mapping not in expected state")

// Status is the lifecycle state of an order mapping.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCreated   Status = "CREATED"
	StatusFulfilled Status = "FULFILLED"
	StatusFailed    Status = "FAILED"
)

// OrderMapping links a platform order to its carrier order.
type OrderMapping struct {
	ID              uint      `gorm:"primaryKey" json:"-"`
	ShopID          string    `gorm:"size:255;not null;uniqueIndex:idx_order_mappings_shop_order,priority:1;index:idx_order_mappings_shop_number,priority:1" json:"shopId"`
	PlatformOrderID int64     `gorm:"not null;uniqueIndex:idx_order_mappings_shop_order,priority:2" json:"platformOrderId"`
	OrderNumber     string    `gorm:"size:64;index:idx_order_mappings_shop_number,priority:2" json:"orderNumber"`
	CarrierOrderID  *string   `gorm:"size:255" json:"carrierOrderId,omitempty"`
	Waybill         *string   `gorm:"size:255" json:"waybill,omitempty"`
	FulfillmentID   *string   `gorm:"size:255" json:"fulfillmentId,omitempty"`
	TrackingNumber  *string   `gorm:"size:255" json:"trackingNumber,omitempty"`
	TrackingURL     *string   `gorm:"size:1024" json:"trackingUrl,omitempty"`
	Status          Status    `gorm:"size:16;not null;index" json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// TableName returns the table name.
func (OrderMapping) TableName() string {
	return "order_mappings"
}

// DeadLetterEntry records a sync that exhausted its retries or failed
// terminally. Payload is the raw order JSON kept for replay.
type DeadLetterEntry struct {
	ID              string    `gorm:"primaryKey;size:36" json:"id"`
	ShopID          string    `gorm:"size:255;not null;index:idx_dead_letters_shop_order,priority:1" json:"shopId"`
	PlatformOrderID int64     `gorm:"not null;index:idx_dead_letters_shop_order,priority:2" json:"platformOrderId"`
	ErrorKind       string    `gorm:"size:64;not null" json:"errorKind"`
	ErrorMessage    string    `gorm:"type:text" json:"errorMessage"`
	RetryCount      int       `gorm:"not null;default:0" json:"retryCount"`
	Payload         []byte    `json:"-"`
	OccurredAt      time.Time `gorm:"not null;index" json:"occurredAt"`
}

// TableName returns the table name.
func (DeadLetterEntry) TableName() string {
	return "dead_letter_entries"
}
