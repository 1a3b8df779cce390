package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Renal37/fulfillment-connector/internal/clients"
	"github.com/Renal37/fulfillment-connector/internal/database"
	"github.com/Renal37/fulfillment-connector/internal/logger"
	"github.com/Renal37/fulfillment-connector/internal/models"
)

type trackingStorage interface {
	FindRecordsByStatus(ctx context.Context, statuses []models.ProcessingStatus) (*[]database.RecordDB, error)

	TransitionStatus(ctx context.Context, orderID string, from, to models.ProcessingStatus, eventType models.EventType, transitionErr *models.EventError) (bool, error)

	SetFulfillmentStatus(ctx context.Context, orderID string, status models.FulfillmentStatus) error

	SetTracking(ctx context.Context, orderID, trackingNumber, carrier string) error

	MarkStaleAlerted(ctx context.Context, orderID string) error
}

type fulfillmentFetcher interface {
	GetOrder(ctx context.Context, idempotencyKey string) (*models.FulfillmentOrder, error)
}

type marketplaceUpdater interface {
	UpdateTracking(ctx context.Context, orderID, trackingNumber, carrier string) error
}

// TrackingService advances completed fulfillment orders toward final tracking
// confirmation on its own poll interval. There is no attempt ceiling here:
// shipment timing is outside the connector's control.
type TrackingService struct {
	storage     trackingStorage
	fulfillment fulfillmentFetcher
	marketplace marketplaceUpdater
	events      *EventBus
	staleAfter  time.Duration
}

func NewTrackingService(
	storage trackingStorage,
	fulfillment fulfillmentFetcher,
	marketplace marketplaceUpdater,
	events *EventBus,
	staleAfter time.Duration,
) *TrackingService {
	return &TrackingService{
		storage:     storage,
		fulfillment: fulfillment,
		marketplace: marketplace,
		events:      events,
		staleAfter:  staleAfter,
	}
}

// SyncAll runs one tracking sweep over every record waiting on shipment data.
func (t *TrackingService) SyncAll(ctx context.Context) error {
	records, err := t.storage.FindRecordsByStatus(ctx, []models.ProcessingStatus{
		models.StatusFulfillmentCreated,
		models.StatusSyncingTracking,
	})
	if err != nil {
		return fmt.Errorf("failed to load records for tracking sync: %w", err)
	}
	if records == nil {
		return nil
	}

	for _, record := range *records {
		t.syncOne(ctx, &record)
	}

	return nil
}

func (t *TrackingService) syncOne(ctx context.Context, record *database.RecordDB) {
	orderID := record.OrderID

	if record.CancelRequested {
		return
	}

	status := record.Status.ProcessingStatus
	if status == models.StatusFulfillmentCreated {
		ok, err := t.storage.TransitionStatus(ctx, orderID,
			models.StatusFulfillmentCreated, models.StatusSyncingTracking, "advanced", nil)
		if err != nil || !ok {
			if err != nil {
				logger.Log.Error("failed to enter tracking sync", zap.String("orderID", orderID), zap.Error(err))
			}
			return
		}
	}

	order, err := t.fulfillment.GetOrder(ctx, record.IdempotencyKey)
	if err != nil {
		if errors.Is(err, clients.ErrFulfillmentOrderNotFound) {
			logger.Log.Warn("fulfillment order missing on provider side", zap.String("orderID", orderID))
			return
		}
		logger.Log.Error("failed to fetch fulfillment order",
			zap.String("orderID", orderID),
			zap.Error(err),
		)
		return
	}

	if err := t.storage.SetFulfillmentStatus(ctx, orderID, order.Status); err != nil {
		logger.Log.Error("failed to store fulfillment status", zap.String("orderID", orderID), zap.Error(err))
		return
	}

	if order.Status.TerminalFailure() {
		t.failTracking(ctx, orderID, order.Status)
		return
	}

	tracked := order.FirstTrackedPackage()
	if tracked == nil {
		// No shipment yet, stay in SYNCING_TRACKING and alert once past the
		// staleness threshold.
		t.checkStaleness(ctx, record)
		return
	}

	if err := t.marketplace.UpdateTracking(ctx, orderID, tracked.TrackingNumber, tracked.Carrier); err != nil {
		// Retried on the next sweep; the fulfillment side already shipped,
		// failing the record here would lose a real shipment.
		logger.Log.Error("failed to push tracking to marketplace",
			zap.String("orderID", orderID),
			zap.Error(err),
		)
		return
	}

	if err := t.storage.SetTracking(ctx, orderID, tracked.TrackingNumber, tracked.Carrier); err != nil {
		logger.Log.Error("failed to store tracking data", zap.String("orderID", orderID), zap.Error(err))
		return
	}

	ok, err := t.storage.TransitionStatus(ctx, orderID,
		models.StatusSyncingTracking, models.StatusCompleted, models.EventTrackingSynced, nil)
	if err != nil {
		logger.Log.Error("failed to complete record", zap.String("orderID", orderID), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	t.events.Publish(ctx, models.NewEvent(orderID, models.EventTrackingSynced, nil))
}

func (t *TrackingService) failTracking(ctx context.Context, orderID string, status models.FulfillmentStatus) {
	eventErr := models.EventError{
		Code:      "unfulfillable",
		Message:   fmt.Sprintf("fulfillment order reached terminal status %s", status),
		Retryable: false,
	}

	ok, err := t.storage.TransitionStatus(ctx, orderID,
		models.StatusSyncingTracking, models.StatusFailed, models.EventTrackingFailed, &eventErr)
	if err != nil {
		logger.Log.Error("failed to persist tracking failure", zap.String("orderID", orderID), zap.Error(err))
		return
	}
	if !ok {
		return
	}

	t.events.Publish(ctx, models.NewEvent(orderID, models.EventTrackingFailed, &eventErr))
}

// checkStaleness fires the one-shot staleness alert. The alert is a
// notification, not a failure: the record keeps waiting.
func (t *TrackingService) checkStaleness(ctx context.Context, record *database.RecordDB) {
	if record.StaleAlerted || record.FulfillmentCreatedAt == nil {
		return
	}

	waited := time.Since(*record.FulfillmentCreatedAt)
	if waited < t.staleAfter {
		return
	}

	eventErr := models.EventError{
		Code:      "tracking_stale",
		Message:   fmt.Sprintf("no shipment after %s", waited.Round(time.Minute)),
		Retryable: true,
	}
	t.events.Publish(ctx, models.NewEvent(record.OrderID, models.EventTrackingStale, &eventErr))

	if err := t.storage.MarkStaleAlerted(ctx, record.OrderID); err != nil {
		logger.Log.Error("failed to mark staleness alert", zap.String("orderID", record.OrderID), zap.Error(err))
	}
}
