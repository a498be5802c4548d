// Package ordersync pushes platform orders to the carrier backend.
package ordersync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tournevent/shipbridge/internal/retry"
	"github.com/tournevent/shipbridge/internal/store"
	"github.com/tournevent/shipbridge/internal/telemetry"
	"github.com/tournevent/shipbridge/pkg/carrier"
	"github.com/tournevent/shipbridge/pkg/platform"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Outcome is the result of handling one order event.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
	OutcomeDropped   Outcome = "dropped"
)

// MappingStore is the subset of the mapping store the orchestrator uses.
type MappingStore interface {
	Claim(ctx context.Context, shopID string, orderID int64, orderNumber string) (store.ClaimResult, error)
	MarkCreated(ctx context.Context, shopID string, orderID int64, carrierOrderID, waybill string) error
	MarkFailed(ctx context.Context, shopID string, orderID int64) error
	Get(ctx context.Context, shopID string, orderID int64) (*store.OrderMapping, error)
}

// DeadLetterStore is the subset of the dead-letter store the orchestrator uses.
type DeadLetterStore interface {
	Add(ctx context.Context, entry *store.DeadLetterEntry) error
	Get(ctx context.Context, id string) (*store.DeadLetterEntry, error)
	List(ctx context.Context, shopID string) ([]store.DeadLetterEntry, error)
	LatestForOrder(ctx context.Context, shopID string, orderID int64) (*store.DeadLetterEntry, error)
	Replace(ctx context.Context, oldID string, entry *store.DeadLetterEntry) error
	DeleteByOrder(ctx context.Context, shopID string, orderID int64) (int64, error)
}

// Config tunes the orchestrator.
type Config struct {
	RequiredCredits   int
	Retry             retry.Policy
	ReplayConcurrency int
}

// Orchestrator turns order-created events into carrier orders.
type Orchestrator struct {
	backend     carrier.Backend
	mappings    MappingStore
	deadLetters DeadLetterStore
	cfg         Config
	logger      *otelzap.Logger
	metrics     *telemetry.Metrics
	tracer      trace.Tracer
}

// New creates an orchestrator. metrics may be nil.
func New(backend carrier.Backend, mappings MappingStore, deadLetters DeadLetterStore, cfg Config, logger *otelzap.Logger, metrics *telemetry.Metrics) *Orchestrator {
	if cfg.RequiredCredits <= 0 {
		cfg.RequiredCredits = 1
	}
	if cfg.ReplayConcurrency <= 0 {
		cfg.ReplayConcurrency = 4
	}
	return &Orchestrator{
		backend:     backend,
		mappings:    mappings,
		deadLetters: deadLetters,
		cfg:         cfg,
		logger:      logger,
		metrics:     metrics,
		tracer:      otel.Tracer("shipbridge/ordersync"),
	}
}

// OnOrderCreated handles one order-created delivery. It never fails the
// caller: every error ends in a log line, a dead-letter entry, or both.
func (o *Orchestrator) OnOrderCreated(ctx context.Context, shopID string, raw []byte) Outcome {
	ctx, span := o.tracer.Start(ctx, "ordersync.OnOrderCreated",
		trace.WithAttributes(attribute.String("shop.id", shopID)),
	)
	defer span.End()

	order, err := decodeOrder(raw)
	if err != nil {
		o.logger.Ctx(ctx).Warn("Dropping undecodable order webhook",
			zap.String("shop", shopID),
			zap.Int("bytes", len(raw)),
			zap.Error(err),
		)
		o.metrics.RecordSync(string(OutcomeDropped))
		span.SetStatus(codes.Error, err.Error())
		return OutcomeDropped
	}
	span.SetAttributes(
		attribute.Int64("order.id", order.ID),
		attribute.String("order.number", order.Number()),
	)

	claim, err := o.mappings.Claim(ctx, shopID, order.ID, order.Number())
	if err != nil {
		// Without a claim nothing can be keyed; the platform will redeliver.
		o.logger.Ctx(ctx).Error("Failed to claim order",
			zap.String("shop", shopID),
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
		o.metrics.RecordSync(string(OutcomeDropped))
		span.SetStatus(codes.Error, err.Error())
		return OutcomeDropped
	}
	if !claim.Owned() {
		o.logger.Ctx(ctx).Info("Duplicate order event ignored",
			zap.String("shop", shopID),
			zap.Int64("order_id", order.ID),
		)
		o.metrics.RecordSync(string(OutcomeDuplicate))
		return OutcomeDuplicate
	}
	if claim == store.ClaimTakeover {
		o.logger.Ctx(ctx).Warn("Taking over stale pending order",
			zap.String("shop", shopID),
			zap.Int64("order_id", order.ID),
		)
	}

	return o.dispatch(ctx, shopID, order, raw, "")
}

// dispatch runs admission control, transformation and order creation for
// a claimed order. replaceID names a dead-letter entry being replayed.
func (o *Orchestrator) dispatch(ctx context.Context, shopID string, order *platform.Order, raw []byte, replaceID string) Outcome {
	logger := o.logger.Ctx(ctx)
	start := time.Now()

	resp, err := o.createCarrierOrder(ctx, order)
	if err != nil {
		o.fail(ctx, shopID, order.ID, raw, replaceID, err)
		return OutcomeFailed
	}

	// The carrier already holds the order; record it even if the caller gave up.
	if err := o.mappings.MarkCreated(context.WithoutCancel(ctx), shopID, order.ID, resp.OrderID, resp.Waybill); err != nil {
		logger.Error("Carrier order created but mapping update failed",
			zap.String("shop", shopID),
			zap.Int64("order_id", order.ID),
			zap.String("carrier_order_id", resp.OrderID),
			zap.Error(err),
		)
	}
	if _, err := o.deadLetters.DeleteByOrder(ctx, shopID, order.ID); err != nil {
		logger.Warn("Failed to clear dead letters after successful sync",
			zap.String("shop", shopID),
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
	}

	logger.Info("Order synced to carrier",
		zap.String("shop", shopID),
		zap.Int64("order_id", order.ID),
		zap.String("reference", Reference(order.Number())),
		zap.String("carrier_order_id", resp.OrderID),
		zap.Duration("duration", time.Since(start)),
	)
	o.metrics.RecordSync(string(OutcomeCreated))
	return OutcomeCreated
}

func (o *Orchestrator) createCarrierOrder(ctx context.Context, order *platform.Order) (*carrier.OrderResponse, error) {
	balance, err := retry.Execute(ctx, func(ctx context.Context) (*carrier.CreditBalance, error) {
		return o.backend.CreditBalance(ctx)
	}, o.policy(ctx, "credit_balance"))
	if err != nil {
		o.recordCarrierError("credit_balance", err)
		return nil, err
	}
	if balance.Credits < o.cfg.RequiredCredits {
		return nil, retry.Terminal(fmt.Errorf("%w: have %d, need %d",
			ErrInsufficientCredits, balance.Credits, o.cfg.RequiredCredits))
	}

	req, err := BuildCarrierOrder(order)
	if err != nil {
		return nil, err
	}

	resp, err := retry.Execute(ctx, func(ctx context.Context) (*carrier.OrderResponse, error) {
		return o.backend.CreateOrder(ctx, req)
	}, o.policy(ctx, "create_order"))
	if err != nil {
		o.recordCarrierError("create_order", err)
		return nil, err
	}
	return resp, nil
}

// policy decorates the configured retry policy with logging and metrics.
func (o *Orchestrator) policy(ctx context.Context, operation string) retry.Policy {
	p := o.cfg.Retry
	inner := p.Notify
	p.Notify = func(attempt int, err error, delay time.Duration) {
		o.logger.Ctx(ctx).Warn("Retrying carrier call",
			zap.String("operation", operation),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		o.metrics.RecordRetry(operation)
		if inner != nil {
			inner(attempt, err, delay)
		}
	}
	return p
}

func (o *Orchestrator) recordCarrierError(operation string, err error) {
	code := "UNKNOWN"
	var carrierErr *carrier.Error
	if errors.As(err, &carrierErr) {
		code = carrierErr.Code
	}
	o.metrics.RecordCarrierError(operation, code)
}

// fail dead-letters the order and moves its mapping to FAILED.
func (o *Orchestrator) fail(ctx context.Context, shopID string, orderID int64, raw []byte, replaceID string, cause error) {
	logger := o.logger.Ctx(ctx)
	trace.SpanFromContext(ctx).SetStatus(codes.Error, cause.Error())

	// Terminal failures before any carrier retry count as zero retries.
	retries := retry.Attempts(cause) - 1
	if retries < 0 {
		retries = 0
	}
	entry := &store.DeadLetterEntry{
		ShopID:          shopID,
		PlatformOrderID: orderID,
		ErrorKind:       Kind(cause),
		ErrorMessage:    cause.Error(),
		RetryCount:      retries,
		Payload:         raw,
	}

	// The dead letter and mapping must be written even if the request
	// context is already done.
	writeCtx := context.WithoutCancel(ctx)

	var err error
	if replaceID != "" {
		err = o.deadLetters.Replace(writeCtx, replaceID, entry)
	} else {
		err = o.deadLetters.Add(writeCtx, entry)
	}
	if err != nil {
		logger.Error("Failed to write dead letter",
			zap.String("shop", shopID),
			zap.Int64("order_id", orderID),
			zap.NamedError("cause", cause),
			zap.Error(err),
		)
	}
	o.metrics.RecordDeadLetter(entry.ErrorKind)

	if err := o.mappings.MarkFailed(writeCtx, shopID, orderID); err != nil {
		logger.Error("Failed to mark mapping failed",
			zap.String("shop", shopID),
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
	}

	logger.Error("Order sync failed",
		zap.String("shop", shopID),
		zap.Int64("order_id", orderID),
		zap.String("kind", entry.ErrorKind),
		zap.Int("retry_count", retries),
		zap.String("dead_letter_id", entry.ID),
		zap.Error(cause),
	)
	o.metrics.RecordSync(string(OutcomeFailed))
}

// Resubmit replays the latest dead-letter entry of a FAILED order.
func (o *Orchestrator) Resubmit(ctx context.Context, shopID string, orderID int64) (Outcome, error) {
	m, err := o.mappings.Get(ctx, shopID, orderID)
	if err != nil {
		return "", err
	}
	if m.Status != store.StatusFailed {
		return "", fmt.Errorf("%w: status %s", ErrNotReplayable, m.Status)
	}
	entry, err := o.deadLetters.LatestForOrder(ctx, shopID, orderID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: no dead letter for order %d", ErrNotReplayable, orderID)
		}
		return "", err
	}
	return o.replay(ctx, entry)
}

// ReplayDeadLetter replays one dead-letter entry by id.
func (o *Orchestrator) ReplayDeadLetter(ctx context.Context, id string) (Outcome, error) {
	entry, err := o.deadLetters.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return o.replay(ctx, entry)
}

func (o *Orchestrator) replay(ctx context.Context, entry *store.DeadLetterEntry) (Outcome, error) {
	order, err := decodeOrder(entry.Payload)
	if err != nil {
		return "", fmt.Errorf("dead letter %s: %w", entry.ID, err)
	}

	claim, err := o.mappings.Claim(ctx, entry.ShopID, order.ID, order.Number())
	if err != nil {
		return "", err
	}
	if !claim.Owned() {
		m, err := o.mappings.Get(ctx, entry.ShopID, order.ID)
		if err != nil {
			return "", err
		}
		if m.Status == store.StatusPending {
			return "", fmt.Errorf("%w: order %d is being synced", ErrNotReplayable, order.ID)
		}
		// Already created by a later delivery; the entry is stale.
		if _, err := o.deadLetters.DeleteByOrder(ctx, entry.ShopID, order.ID); err != nil {
			return "", err
		}
		return OutcomeDuplicate, nil
	}

	o.logger.Ctx(ctx).Info("Replaying dead letter",
		zap.String("dead_letter_id", entry.ID),
		zap.String("shop", entry.ShopID),
		zap.Int64("order_id", order.ID),
	)
	return o.dispatch(ctx, entry.ShopID, order, entry.Payload, entry.ID), nil
}

// ReplaySummary counts the outcomes of a bulk replay.
type ReplaySummary struct {
	Total      int `json:"total"`
	Created    int `json:"created"`
	Failed     int `json:"failed"`
	Duplicates int `json:"duplicates"`
	Errors     int `json:"errors"`
}

// ReplayAll replays the latest entry of every dead-lettered order of a
// shop (every shop when shopID is empty) with bounded concurrency.
func (o *Orchestrator) ReplayAll(ctx context.Context, shopID string) (ReplaySummary, error) {
	entries, err := o.deadLetters.List(ctx, shopID)
	if err != nil {
		return ReplaySummary{}, err
	}

	type orderKey struct {
		shop  string
		order int64
	}
	latest := make(map[orderKey]store.DeadLetterEntry)
	var keys []orderKey
	for _, e := range entries {
		k := orderKey{e.ShopID, e.PlatformOrderID}
		if _, seen := latest[k]; !seen {
			keys = append(keys, k)
		}
		latest[k] = e
	}

	var (
		mu      sync.Mutex
		summary = ReplaySummary{Total: len(keys)}
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.ReplayConcurrency)
	for _, k := range keys {
		entry := latest[k]
		g.Go(func() error {
			outcome, err := o.replay(gctx, &entry)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				summary.Errors++
				o.logger.Ctx(gctx).Warn("Dead letter replay skipped",
					zap.String("dead_letter_id", entry.ID),
					zap.Error(err),
				)
			case outcome == OutcomeCreated:
				summary.Created++
			case outcome == OutcomeDuplicate:
				summary.Duplicates++
			default:
				summary.Failed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}

func decodeOrder(raw []byte) (*platform.Order, error) {
	var order platform.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if order.ID == 0 {
		return nil, fmt.Errorf("%w: missing order id", ErrInvalidPayload)
	}
	return &order, nil
}
