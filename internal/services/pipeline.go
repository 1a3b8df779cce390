package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Renal37/fulfillment-connector/internal/clients"
	"github.com/Renal37/fulfillment-connector/internal/database"
	"github.com/Renal37/fulfillment-connector/internal/logger"
	"github.com/Renal37/fulfillment-connector/internal/models"
)

var (
	ErrUnknownOrder     = errors.New("order is not known to the connector")
	ErrInvalidOperation = errors.New("operation is not valid for the current order status")
)

type pipelineStorage interface {
	CreateRecord(ctx context.Context, orderID, idempotencyKey string, orderPayload []byte) error

	FindRecord(ctx context.Context, orderID string) (*database.RecordDB, error)

	FindActiveRecords(ctx context.Context) (*[]database.RecordDB, error)

	TransitionStatus(ctx context.Context, orderID string, from, to models.ProcessingStatus, eventType models.EventType, transitionErr *models.EventError) (bool, error)

	IncrementRetry(ctx context.Context, orderID string, stepErr models.EventError) error

	IncrementHoldCycles(ctx context.Context, orderID string) (int, error)

	SetFulfillmentResult(ctx context.Context, orderID, fulfillmentOrderID string, status models.FulfillmentStatus) error

	SetCancelRequested(ctx context.Context, orderID string, requested bool) (bool, error)

	ResetForRedrive(ctx context.Context, orderID string) (bool, error)
}

type fulfillmentCreator interface {
	CreateOrder(ctx context.Context, req models.FulfillmentRequest) (*models.FulfillmentOrder, error)

	GetOrder(ctx context.Context, idempotencyKey string) (*models.FulfillmentOrder, error)

	CancelOrder(ctx context.Context, idempotencyKey string) error
}

type inventoryGuard interface {
	Check(ctx context.Context, req *models.FulfillmentRequest) ([]Shortage, error)
}

type jobQueue interface {
	Enqueue(job Job) error

	ScheduleJob(job Job, delay time.Duration)

	PauseAndResume(delay time.Duration)
}

// orderLocks hands out one mutex per order. The lock is held for a single
// pipeline step, not the whole pipeline, so a long wait on one record cannot
// monopolize a worker slot held by another goroutine for the same order.
type orderLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newOrderLocks() *orderLocks {
	return &orderLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *orderLocks) lock(orderID string) func() {
	l.mu.Lock()
	m, ok := l.locks[orderID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[orderID] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// release drops the entry once the pipeline no longer owns the record, so the
// map does not grow with every order the daemon ever saw. A goroutine racing
// across the eviction gets a fresh mutex; the CAS transition in the store
// remains the arbiter.
func (l *orderLocks) release(orderID string) {
	l.mu.Lock()
	delete(l.locks, orderID)
	l.mu.Unlock()
}

// PipelineConfig is the retry/hold policy scoped to one connector run.
type PipelineConfig struct {
	MaxRetryAttempts int
	RetryDelay       time.Duration
	MaxHoldCycles    int
	InventoryGuardOn bool
}

// PipelineService advances connector order records through the state machine,
// persisting after every step so a restart resumes exactly where it left off.
type PipelineService struct {
	storage     pipelineStorage
	validator   *ValidationService
	transformer *TransformService
	inventory   inventoryGuard
	fulfillment fulfillmentCreator
	events      *EventBus
	queue       jobQueue
	locks       *orderLocks
	config      PipelineConfig
}

func NewPipelineService(
	storage pipelineStorage,
	validator *ValidationService,
	transformer *TransformService,
	inventory inventoryGuard,
	fulfillment fulfillmentCreator,
	events *EventBus,
	queue jobQueue,
	config PipelineConfig,
) *PipelineService {
	return &PipelineService{
		storage:     storage,
		validator:   validator,
		transformer: transformer,
		inventory:   inventory,
		fulfillment: fulfillment,
		events:      events,
		queue:       queue,
		locks:       newOrderLocks(),
		config:      config,
	}
}

// IngestOrder registers a newly observed marketplace order and queues it for
// processing. Re-observing a known order is not an error.
func (p *PipelineService) IngestOrder(ctx context.Context, order models.InboundOrder) error {
	payload, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order payload: %w", err)
	}

	err = p.storage.CreateRecord(ctx, order.ID, IdempotencyKeyFor(order.ID), payload)
	if err != nil {
		if errors.Is(err, database.ErrDuplicateRecord) {
			return nil
		}
		return err
	}

	p.events.Publish(ctx, models.NewEvent(order.ID, models.EventReceived, nil))

	p.enqueueProcess(order.ID)

	return nil
}

// EnqueueProcess schedules pipeline advancement for an order.
func (p *PipelineService) EnqueueProcess(orderID string) {
	p.enqueueProcess(orderID)
}

func (p *PipelineService) enqueueProcess(orderID string) {
	job := func(ctx context.Context) {
		p.ProcessOrder(ctx, orderID)
	}
	if err := p.queue.Enqueue(job); err != nil {
		logger.Log.Error("failed to enqueue order processing",
			zap.String("orderID", orderID),
			zap.Error(err),
		)
	}
}

// ProcessOrder advances a record through as many pipeline steps as complete
// without error. State is persisted after each step; the per-order lock is
// taken per step.
func (p *PipelineService) ProcessOrder(ctx context.Context, orderID string) {
	for {
		again := p.advanceOne(ctx, orderID)
		if !again {
			return
		}
	}
}

// advanceOne executes a single pipeline step under the per-order lock and
// reports whether processing should continue.
func (p *PipelineService) advanceOne(ctx context.Context, orderID string) bool {
	unlock := p.locks.lock(orderID)
	defer unlock()

	record, err := p.storage.FindRecord(ctx, orderID)
	if err != nil {
		logger.Log.Error("failed to load connector record", zap.String("orderID", orderID), zap.Error(err))
		return false
	}
	if record == nil {
		logger.Log.Error("connector record disappeared", zap.String("orderID", orderID))
		return false
	}

	status := record.Status.ProcessingStatus
	if status.Terminal() {
		p.locks.release(orderID)
		return false
	}

	// Operator-requested cancellation suppresses automatic transitions
	// until an explicit resume.
	if record.CancelRequested {
		logger.Log.Info("order is cancelled, skipping processing", zap.String("orderID", orderID))
		return false
	}

	switch status {
	case models.StatusPending:
		return p.transition(ctx, orderID, models.StatusPending, models.StatusValidating, "", nil)
	case models.StatusValidating:
		return p.stepValidate(ctx, record)
	case models.StatusValidated:
		return p.stepInventoryGuard(ctx, record)
	case models.StatusTransforming:
		return p.stepTransform(ctx, record)
	case models.StatusCreating:
		return p.stepCreate(ctx, record)
	default:
		// FULFILLMENT_ORDER_CREATED and SYNCING_TRACKING belong to the
		// tracking synchronizer.
		p.locks.release(orderID)
		return false
	}
}

func (p *PipelineService) stepValidate(ctx context.Context, record *database.RecordDB) bool {
	order, err := p.inboundOrder(record)
	if err != nil {
		p.failOrder(ctx, record.OrderID, models.StatusValidating, models.EventValidationFailed, models.EventError{
			Code:    "validation_error",
			Message: err.Error(),
		})
		return false
	}

	if verr := p.validator.Validate(order); verr != nil {
		p.failOrder(ctx, record.OrderID, models.StatusValidating, models.EventValidationFailed, verr.EventError())
		return false
	}

	return p.transition(ctx, record.OrderID, models.StatusValidating, models.StatusValidated, models.EventValidated, nil)
}

// stepInventoryGuard holds the order in VALIDATED while the network cannot
// cover it, up to the configured number of cycles.
func (p *PipelineService) stepInventoryGuard(ctx context.Context, record *database.RecordDB) bool {
	if !p.config.InventoryGuardOn {
		return p.transition(ctx, record.OrderID, models.StatusValidated, models.StatusTransforming, "", nil)
	}

	order, err := p.inboundOrder(record)
	if err != nil {
		p.failOrder(ctx, record.OrderID, models.StatusValidated, models.EventFulfillmentFailed, models.EventError{
			Code:    "transform_error",
			Message: err.Error(),
		})
		return false
	}

	request, terr := p.transformer.Transform(order)
	if terr != nil {
		return p.failTransform(ctx, record.OrderID, models.StatusValidated, terr)
	}

	shortages, err := p.inventory.Check(ctx, request)
	if err != nil {
		// The guard is an optimization: a failed inventory query must not
		// block the order, the create call will be the real arbiter.
		logger.Log.Warn("inventory check failed, proceeding without guard",
			zap.String("orderID", record.OrderID),
			zap.Error(err),
		)
		return p.transition(ctx, record.OrderID, models.StatusValidated, models.StatusTransforming, "", nil)
	}

	if len(shortages) == 0 {
		return p.transition(ctx, record.OrderID, models.StatusValidated, models.StatusTransforming, "", nil)
	}

	shortageErr := ShortageError(shortages)
	cycles, err := p.storage.IncrementHoldCycles(ctx, record.OrderID)
	if err != nil {
		logger.Log.Error("failed to record inventory hold", zap.String("orderID", record.OrderID), zap.Error(err))
		return false
	}

	p.events.Publish(ctx, models.NewEvent(record.OrderID, models.EventInventoryLow, &shortageErr))

	if cycles > p.config.MaxHoldCycles {
		p.failOrder(ctx, record.OrderID, models.StatusValidated, models.EventFulfillmentFailed, shortageErr)
		return false
	}

	logger.Log.Info("order held on insufficient inventory",
		zap.String("orderID", record.OrderID),
		zap.Int("holdCycles", cycles),
	)

	// Stay in VALIDATED; the next order-poll cycle re-checks the order.
	return false
}

func (p *PipelineService) stepTransform(ctx context.Context, record *database.RecordDB) bool {
	order, err := p.inboundOrder(record)
	if err != nil {
		return p.failTransform(ctx, record.OrderID, models.StatusTransforming, err)
	}

	if _, terr := p.transformer.Transform(order); terr != nil {
		return p.failTransform(ctx, record.OrderID, models.StatusTransforming, terr)
	}

	return p.transition(ctx, record.OrderID, models.StatusTransforming, models.StatusCreating, "", nil)
}

// stepCreate issues the idempotent create call. The request is re-derived
// from the stored payload: transformation is deterministic, so the request
// that reaches the provider is the one the transform step produced.
func (p *PipelineService) stepCreate(ctx context.Context, record *database.RecordDB) bool {
	orderID := record.OrderID

	// A provider order id on the record means a previous run already got an
	// acknowledgment but crashed before the status transition.
	if record.FulfillmentOrderID != nil {
		return p.transition(ctx, orderID, models.StatusCreating, models.StatusFulfillmentCreated, models.EventFulfillmentOrder, nil)
	}

	// Once the record has entered CREATING there is no way to know whether
	// an earlier attempt reached the provider, so probe before creating.
	existing, err := p.fulfillment.GetOrder(ctx, record.IdempotencyKey)
	if err == nil {
		return p.adoptFulfillmentOrder(ctx, orderID, existing)
	}
	if !errors.Is(err, clients.ErrFulfillmentOrderNotFound) {
		return p.handleCreateError(ctx, record, err)
	}

	order, perr := p.inboundOrder(record)
	if perr != nil {
		return p.failTransform(ctx, orderID, models.StatusCreating, perr)
	}

	request, terr := p.transformer.Transform(order)
	if terr != nil {
		return p.failTransform(ctx, orderID, models.StatusCreating, terr)
	}

	created, err := p.fulfillment.CreateOrder(ctx, *request)
	if err != nil {
		if errors.Is(err, clients.ErrFulfillmentOrderExists) {
			existing, err := p.fulfillment.GetOrder(ctx, record.IdempotencyKey)
			if err != nil {
				return p.handleCreateError(ctx, record, err)
			}
			return p.adoptFulfillmentOrder(ctx, orderID, existing)
		}
		return p.handleCreateError(ctx, record, err)
	}

	return p.adoptFulfillmentOrder(ctx, orderID, created)
}

func (p *PipelineService) adoptFulfillmentOrder(ctx context.Context, orderID string, order *models.FulfillmentOrder) bool {
	if err := p.storage.SetFulfillmentResult(ctx, orderID, order.IdempotencyKey, order.Status); err != nil {
		logger.Log.Error("failed to store fulfillment result", zap.String("orderID", orderID), zap.Error(err))
		return false
	}

	return p.transition(ctx, orderID, models.StatusCreating, models.StatusFulfillmentCreated, models.EventFulfillmentOrder, nil)
}

// handleCreateError applies the retry policy to a classified creation error.
// The client has already retried transient failures inside one call budget;
// record-level retries re-drive the step itself.
func (p *PipelineService) handleCreateError(ctx context.Context, record *database.RecordDB, err error) bool {
	orderID := record.OrderID

	apiErr, ok := clients.AsAPIError(err)
	if !ok {
		p.failOrder(ctx, orderID, models.StatusCreating, models.EventFulfillmentFailed, models.EventError{
			Code:    "unknown_error",
			Message: err.Error(),
		})
		return false
	}

	eventErr := apiErr.EventError()

	if !apiErr.Retryable() || record.RetryCount+1 >= p.config.MaxRetryAttempts {
		if ierr := p.storage.IncrementRetry(ctx, orderID, eventErr); ierr != nil {
			logger.Log.Error("failed to record step error", zap.String("orderID", orderID), zap.Error(ierr))
		}
		p.failOrder(ctx, orderID, models.StatusCreating, models.EventFulfillmentFailed, eventErr)
		return false
	}

	if ierr := p.storage.IncrementRetry(ctx, orderID, eventErr); ierr != nil {
		logger.Log.Error("failed to record step error", zap.String("orderID", orderID), zap.Error(ierr))
		return false
	}

	delay := p.config.RetryDelay
	if apiErr.Class == clients.ErrorClassRateLimit && apiErr.RetryAfter > 0 {
		// Provider-wide throttling: pause the whole pool, other orders would
		// hit the same limit.
		p.queue.PauseAndResume(apiErr.RetryAfter)
		delay = apiErr.RetryAfter
	}

	logger.Log.Info("creation step will be retried",
		zap.String("orderID", orderID),
		zap.Int("retryCount", record.RetryCount+1),
		zap.Duration("delay", delay),
	)

	p.queue.ScheduleJob(func(ctx context.Context) {
		p.ProcessOrder(ctx, orderID)
	}, delay)

	return false
}

func (p *PipelineService) failTransform(ctx context.Context, orderID string, from models.ProcessingStatus, err error) bool {
	var terr *TransformError
	if !errors.As(err, &terr) {
		terr = &TransformError{Reason: err.Error()}
	}

	p.failOrder(ctx, orderID, from, models.EventFulfillmentFailed, terr.EventError())
	return false
}

// failOrder moves the record to FAILED with the classified error attached and
// emits a lifecycle event. When from is empty the current status is looked up
// so FAILED is reachable from any non-terminal state.
func (p *PipelineService) failOrder(ctx context.Context, orderID string, from models.ProcessingStatus, eventType models.EventType, eventErr models.EventError) {
	if from == "" {
		record, err := p.storage.FindRecord(ctx, orderID)
		if err != nil || record == nil {
			logger.Log.Error("failed to load record before failing it", zap.String("orderID", orderID), zap.Error(err))
			return
		}
		from = record.Status.ProcessingStatus
	}

	ok, err := p.storage.TransitionStatus(ctx, orderID, from, models.StatusFailed, eventType, &eventErr)
	if err != nil {
		logger.Log.Error("failed to persist FAILED transition", zap.String("orderID", orderID), zap.Error(err))
		return
	}
	if !ok {
		logger.Log.Warn("FAILED transition lost the race", zap.String("orderID", orderID))
		return
	}

	p.locks.release(orderID)
	p.events.Publish(ctx, models.NewEvent(orderID, eventType, &eventErr))
}

// transition performs a CAS status change; eventType may be empty for
// intermediate transitions that have no externally visible event.
func (p *PipelineService) transition(ctx context.Context, orderID string, from, to models.ProcessingStatus, eventType models.EventType, eventErr *models.EventError) bool {
	if !from.CanAdvanceTo(to) {
		logger.Log.Error("illegal transition requested",
			zap.String("orderID", orderID),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		)
		return false
	}

	historyEvent := eventType
	if historyEvent == "" {
		historyEvent = models.EventType("advanced")
	}

	ok, err := p.storage.TransitionStatus(ctx, orderID, from, to, historyEvent, eventErr)
	if err != nil {
		logger.Log.Error("failed to persist transition", zap.String("orderID", orderID), zap.Error(err))
		return false
	}
	if !ok {
		// Another worker advanced the record first.
		return false
	}

	if eventType != "" {
		p.events.Publish(ctx, models.NewEvent(orderID, eventType, eventErr))
	}

	return true
}

func (p *PipelineService) inboundOrder(record *database.RecordDB) (*models.InboundOrder, error) {
	var order models.InboundOrder
	if err := json.Unmarshal(record.OrderPayload, &order); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored order payload: %w", err)
	}
	return &order, nil
}

// RecoverActive re-enqueues every record the pipeline owns after a restart.
// Records waiting on tracking belong to the tracking synchronizer and are
// picked up by its own sweep.
func (p *PipelineService) RecoverActive(ctx context.Context) error {
	records, err := p.storage.FindActiveRecords(ctx)
	if err != nil {
		return err
	}
	if records == nil {
		return nil
	}

	for _, record := range *records {
		switch record.Status.ProcessingStatus {
		case models.StatusFulfillmentCreated, models.StatusSyncingTracking:
			continue
		default:
			p.enqueueProcess(record.OrderID)
		}
	}

	return nil
}

// Redrive resets a terminal record back to PENDING reusing the stored
// idempotency key and queues it for processing.
func (p *PipelineService) Redrive(ctx context.Context, orderID string) error {
	record, err := p.storage.FindRecord(ctx, orderID)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrUnknownOrder
	}

	ok, err := p.storage.ResetForRedrive(ctx, orderID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOperation
	}

	p.events.Publish(ctx, models.NewEvent(orderID, models.EventRedriven, nil))
	p.enqueueProcess(orderID)

	return nil
}

// Cancel suppresses further automatic transitions for the record. In-flight
// external calls are allowed to complete. If the fulfillment order already
// exists, a provider-side cancellation is requested best-effort.
func (p *PipelineService) Cancel(ctx context.Context, orderID string) error {
	record, err := p.storage.FindRecord(ctx, orderID)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrUnknownOrder
	}
	if record.Status.Terminal() {
		return ErrInvalidOperation
	}

	if _, err := p.storage.SetCancelRequested(ctx, orderID, true); err != nil {
		return err
	}

	status := record.Status.ProcessingStatus
	if status == models.StatusFulfillmentCreated || status == models.StatusSyncingTracking {
		if cerr := p.fulfillment.CancelOrder(ctx, record.IdempotencyKey); cerr != nil {
			logger.Log.Warn("provider-side cancellation failed",
				zap.String("orderID", orderID),
				zap.Error(cerr),
			)
		}
	}

	p.events.Publish(ctx, models.NewEvent(orderID, models.EventCancelled, nil))

	return nil
}

// Resume clears the cancellation flag and re-enqueues the record.
func (p *PipelineService) Resume(ctx context.Context, orderID string) error {
	record, err := p.storage.FindRecord(ctx, orderID)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrUnknownOrder
	}
	if !record.CancelRequested {
		return ErrInvalidOperation
	}

	if _, err := p.storage.SetCancelRequested(ctx, orderID, false); err != nil {
		return err
	}

	p.events.Publish(ctx, models.NewEvent(orderID, models.EventResumed, nil))
	p.enqueueProcess(orderID)

	return nil
}
