package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Renal37/fulfillment-connector/internal/clients"
	"github.com/Renal37/fulfillment-connector/internal/database"
	"github.com/Renal37/fulfillment-connector/internal/models"
)

// memoryStorage - потокобезопасное хранилище записей в памяти с той же
// CAS-семантикой переходов, что и у базы данных.
type memoryStorage struct {
	mu          sync.Mutex
	records     map[string]*database.RecordDB
	transitions map[string][]database.TransitionDB
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{
		records:     make(map[string]*database.RecordDB),
		transitions: make(map[string][]database.TransitionDB),
	}
}

func (s *memoryStorage) CreateRecord(_ context.Context, orderID, idempotencyKey string, orderPayload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[orderID]; ok {
		return database.ErrDuplicateRecord
	}

	now := time.Now()
	s.records[orderID] = &database.RecordDB{
		OrderID:        orderID,
		IdempotencyKey: idempotencyKey,
		Status:         database.StatusDB{ProcessingStatus: models.StatusPending},
		OrderPayload:   orderPayload,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	return nil
}

func (s *memoryStorage) FindRecord(_ context.Context, orderID string) (*database.RecordDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[orderID]
	if !ok {
		return nil, nil
	}

	copied := *record
	return &copied, nil
}

func (s *memoryStorage) FindRecordsByStatus(_ context.Context, statuses []models.ProcessingStatus) (*[]database.RecordDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[models.ProcessingStatus]bool, len(statuses))
	for _, status := range statuses {
		wanted[status] = true
	}

	var result []database.RecordDB
	for _, record := range s.records {
		if wanted[record.Status.ProcessingStatus] {
			result = append(result, *record)
		}
	}

	return &result, nil
}

func (s *memoryStorage) FindActiveRecords(ctx context.Context) (*[]database.RecordDB, error) {
	return s.FindRecordsByStatus(ctx, []models.ProcessingStatus{
		models.StatusPending,
		models.StatusValidating,
		models.StatusValidated,
		models.StatusTransforming,
		models.StatusCreating,
		models.StatusFulfillmentCreated,
		models.StatusSyncingTracking,
	})
}

func (s *memoryStorage) TransitionStatus(
	_ context.Context,
	orderID string,
	from, to models.ProcessingStatus,
	eventType models.EventType,
	transitionErr *models.EventError,
) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[orderID]
	if !ok || record.Status.ProcessingStatus != from {
		return false, nil
	}

	record.Status = database.StatusDB{ProcessingStatus: to}
	record.UpdatedAt = time.Now()
	if transitionErr != nil {
		record.LastErrorCode = &transitionErr.Code
		record.LastErrorMessage = &transitionErr.Message
		record.LastErrorRetryable = &transitionErr.Retryable
	}

	transition := database.TransitionDB{
		From:      database.StatusDB{ProcessingStatus: from},
		To:        database.StatusDB{ProcessingStatus: to},
		EventType: string(eventType),
		CreatedAt: record.UpdatedAt,
	}
	if transitionErr != nil {
		transition.ErrorCode = &transitionErr.Code
		transition.ErrorMessage = &transitionErr.Message
	}
	s.transitions[orderID] = append(s.transitions[orderID], transition)

	return true, nil
}

func (s *memoryStorage) FindTransitions(_ context.Context, orderID string) (*[]database.TransitionDB, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := append([]database.TransitionDB(nil), s.transitions[orderID]...)
	return &result, nil
}

func (s *memoryStorage) IncrementRetry(_ context.Context, orderID string, stepErr models.EventError) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.records[orderID]
	record.RetryCount++
	record.LastErrorCode = &stepErr.Code
	record.LastErrorMessage = &stepErr.Message
	record.LastErrorRetryable = &stepErr.Retryable

	return nil
}

func (s *memoryStorage) IncrementHoldCycles(_ context.Context, orderID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.records[orderID]
	record.HoldCycles++

	return record.HoldCycles, nil
}

func (s *memoryStorage) SetFulfillmentResult(_ context.Context, orderID, fulfillmentOrderID string, status models.FulfillmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	record := s.records[orderID]
	record.FulfillmentOrderID = &fulfillmentOrderID
	statusValue := string(status)
	record.FulfillmentStatus = &statusValue
	record.FulfillmentCreatedAt = &now

	return nil
}

func (s *memoryStorage) SetFulfillmentStatus(_ context.Context, orderID string, status models.FulfillmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	statusValue := string(status)
	s.records[orderID].FulfillmentStatus = &statusValue

	return nil
}

func (s *memoryStorage) SetTracking(_ context.Context, orderID, trackingNumber, carrier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record := s.records[orderID]
	record.TrackingNumber = &trackingNumber
	record.Carrier = &carrier

	return nil
}

func (s *memoryStorage) SetCancelRequested(_ context.Context, orderID string, requested bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[orderID]
	if !ok {
		return false, nil
	}
	record.CancelRequested = requested

	return true, nil
}

func (s *memoryStorage) MarkStaleAlerted(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[orderID].StaleAlerted = true

	return nil
}

func (s *memoryStorage) ResetForRedrive(_ context.Context, orderID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[orderID]
	if !ok || !record.Status.Terminal() {
		return false, nil
	}

	from := record.Status
	record.Status = database.StatusDB{ProcessingStatus: models.StatusPending}
	record.RetryCount = 0
	record.HoldCycles = 0
	record.LastErrorCode = nil
	record.LastErrorMessage = nil
	record.LastErrorRetryable = nil
	record.StaleAlerted = false
	record.CancelRequested = false

	s.transitions[orderID] = append(s.transitions[orderID], database.TransitionDB{
		From:      from,
		To:        database.StatusDB{ProcessingStatus: models.StatusPending},
		EventType: string(models.EventRedriven),
		CreatedAt: time.Now(),
	})

	return true, nil
}

// mustStatus возвращает текущий статус записи.
func (s *memoryStorage) mustStatus(t *testing.T, orderID string) models.ProcessingStatus {
	t.Helper()

	record, err := s.FindRecord(context.Background(), orderID)
	require.NoError(t, err)
	require.NotNil(t, record)

	return record.Status.ProcessingStatus
}

// fakeFulfillment эмулирует фулфилмент-сеть с идемпотентным созданием заказов.
type fakeFulfillment struct {
	mu          sync.Mutex
	orders      map[string]*models.FulfillmentOrder
	createErrs  []error
	probeMisses int
	createCalls int
	getCalls    int
	cancelled   []string
}

func newFakeFulfillment() *fakeFulfillment {
	return &fakeFulfillment{orders: make(map[string]*models.FulfillmentOrder)}
}

func (f *fakeFulfillment) CreateOrder(_ context.Context, req models.FulfillmentRequest) (*models.FulfillmentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.createCalls++

	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		return nil, err
	}

	if _, ok := f.orders[req.IdempotencyKey]; ok {
		return nil, clients.ErrFulfillmentOrderExists
	}

	order := &models.FulfillmentOrder{
		IdempotencyKey:     req.IdempotencyKey,
		MarketplaceOrderID: req.DisplayOrderID,
		Status:             models.FulfillmentStatusReceived,
		Destination:        req.Destination,
		Items:              req.Items,
	}
	f.orders[req.IdempotencyKey] = order

	copied := *order
	return &copied, nil
}

func (f *fakeFulfillment) GetOrder(_ context.Context, idempotencyKey string) (*models.FulfillmentOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.getCalls++

	if f.probeMisses > 0 {
		f.probeMisses--
		return nil, clients.ErrFulfillmentOrderNotFound
	}

	order, ok := f.orders[idempotencyKey]
	if !ok {
		return nil, clients.ErrFulfillmentOrderNotFound
	}

	copied := *order
	return &copied, nil
}

func (f *fakeFulfillment) CancelOrder(_ context.Context, idempotencyKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cancelled = append(f.cancelled, idempotencyKey)

	return nil
}

// fakeQueue выполняет задания синхронно либо накапливает их для ручного запуска.
type fakeQueue struct {
	mu        sync.Mutex
	inline    bool
	pending   []Job
	scheduled []Job
	delays    []time.Duration
	pauses    []time.Duration
}

func (q *fakeQueue) Enqueue(job Job) error {
	q.mu.Lock()
	if q.inline {
		q.mu.Unlock()
		job(context.Background())
		return nil
	}
	q.pending = append(q.pending, job)
	q.mu.Unlock()

	return nil
}

func (q *fakeQueue) ScheduleJob(job Job, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.scheduled = append(q.scheduled, job)
	q.delays = append(q.delays, delay)
}

func (q *fakeQueue) PauseAndResume(delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.pauses = append(q.pauses, delay)
}

// runScheduled выполняет все отложенные задания, включая порождённые ими новые.
func (q *fakeQueue) runScheduled(ctx context.Context) {
	for {
		q.mu.Lock()
		if len(q.scheduled) == 0 {
			q.mu.Unlock()
			return
		}
		job := q.scheduled[0]
		q.scheduled = q.scheduled[1:]
		q.mu.Unlock()

		job(ctx)
	}
}

func (q *fakeQueue) pendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.pending)
}

// fakeGuard подменяет проверку остатков.
type fakeGuard struct {
	mu        sync.Mutex
	shortages []Shortage
	err       error
	calls     int
}

func (g *fakeGuard) Check(_ context.Context, _ *models.FulfillmentRequest) ([]Shortage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++
	if g.err != nil {
		return nil, g.err
	}

	return g.shortages, nil
}

// recordingSink накапливает опубликованные события.
type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (s *recordingSink) Deliver(_ context.Context, event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)

	return nil
}

func (s *recordingSink) types() []models.EventType {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]models.EventType, len(s.events))
	for i, event := range s.events {
		result[i] = event.Type
	}

	return result
}

func mustPayload(t *testing.T, order models.InboundOrder) []byte {
	t.Helper()

	payload, err := json.Marshal(order)
	require.NoError(t, err)

	return payload
}
