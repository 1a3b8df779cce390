package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Renal37/fulfillment-connector/internal/logger"
	"github.com/Renal37/fulfillment-connector/internal/models"
	"github.com/Renal37/fulfillment-connector/internal/skumap"
)

type marketplaceLister interface {
	ListAwaitingOrders(ctx context.Context, page, pageSize int) ([]models.InboundOrder, bool, error)
}

// SchedulerConfig holds the three independent poll intervals.
type SchedulerConfig struct {
	OrderPollInterval     time.Duration
	TrackingSyncInterval  time.Duration
	InventorySyncInterval time.Duration
	PageSize              int
}

// SchedulerQueues gives every timer its own bounded worker pool. A throttled
// or slow fulfillment provider pauses only the orders pool; tracking and
// inventory sweeps keep their own workers and queue slots.
type SchedulerQueues struct {
	Orders    *JobQueueService
	Tracking  *JobQueueService
	Inventory *JobQueueService
}

// Scheduler drives the connector: each timer only enqueues work into its own
// pool, so one provider cannot starve the others of worker capacity.
type Scheduler struct {
	config      SchedulerConfig
	queues      SchedulerQueues
	marketplace marketplaceLister
	pipeline    *PipelineService
	tracking    *TrackingService
	inventory   *InventoryService
	skus        *skumap.Table
}

func NewScheduler(
	config SchedulerConfig,
	queues SchedulerQueues,
	marketplace marketplaceLister,
	pipeline *PipelineService,
	tracking *TrackingService,
	inventory *InventoryService,
	skus *skumap.Table,
) *Scheduler {
	return &Scheduler{
		config:      config,
		queues:      queues,
		marketplace: marketplace,
		pipeline:    pipeline,
		tracking:    tracking,
		inventory:   inventory,
		skus:        skus,
	}
}

// Start launches the three polling loops and the startup recovery sweep.
func (s *Scheduler) Start(ctx context.Context) error {
	if err := s.pipeline.RecoverActive(ctx); err != nil {
		return err
	}

	go s.runTimer(ctx, "orders", s.queues.Orders, s.config.OrderPollInterval, s.pollOrders)
	go s.runTimer(ctx, "tracking", s.queues.Tracking, s.config.TrackingSyncInterval, s.syncTracking)
	go s.runTimer(ctx, "inventory", s.queues.Inventory, s.config.InventorySyncInterval, s.syncInventory)

	return nil
}

// runTimer enqueues the job immediately and then on every tick. A full queue
// means the previous sweep is still running, the tick is dropped.
func (s *Scheduler) runTimer(ctx context.Context, name string, queue *JobQueueService, interval time.Duration, job Job) {
	enqueue := func() {
		if err := queue.Enqueue(job); err != nil {
			logger.Log.Warn("failed to enqueue periodic job",
				zap.String("timer", name),
				zap.Error(err),
			)
		}
	}

	enqueue()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			enqueue()
		case <-ctx.Done():
			return
		}
	}
}

// pollOrders fetches marketplace orders awaiting shipment, registers unseen
// ones and re-enqueues records waiting in the pipeline (including inventory
// holds, which are re-checked on this cycle per the hold policy).
func (s *Scheduler) pollOrders(ctx context.Context) {
	page := 1
	for {
		orders, hasNext, err := s.marketplace.ListAwaitingOrders(ctx, page, s.config.PageSize)
		if err != nil {
			logger.Log.Error("order poll failed", zap.Int("page", page), zap.Error(err))
			break
		}

		for _, order := range orders {
			if err := s.pipeline.IngestOrder(ctx, order); err != nil {
				logger.Log.Error("failed to ingest order",
					zap.String("orderID", order.ID),
					zap.Error(err),
				)
			}
		}

		if !hasNext {
			break
		}
		page++
	}

	if err := s.pipeline.RecoverActive(ctx); err != nil {
		logger.Log.Error("failed to re-enqueue waiting records", zap.Error(err))
	}
}

func (s *Scheduler) syncTracking(ctx context.Context) {
	if err := s.tracking.SyncAll(ctx); err != nil {
		logger.Log.Error("tracking sweep failed", zap.Error(err))
	}
}

func (s *Scheduler) syncInventory(ctx context.Context) {
	if err := s.inventory.Refresh(ctx, s.skus.FulfillmentSKUs()); err != nil {
		logger.Log.Error("inventory refresh failed", zap.Error(err))
	}
}
