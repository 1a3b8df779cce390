package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Renal37/fulfillment-connector/internal/models"
)

type fakeLister struct {
	pages [][]models.InboundOrder
	calls int
}

func (f *fakeLister) ListAwaitingOrders(_ context.Context, page, _ int) ([]models.InboundOrder, bool, error) {
	f.calls++
	if page > len(f.pages) {
		return nil, false, nil
	}
	return f.pages[page-1], page < len(f.pages), nil
}

func orderWithID(orderID string) models.InboundOrder {
	order := validOrder()
	order.ID = orderID
	return order
}

func newSchedulerFixture(t *testing.T, lister *fakeLister) (*Scheduler, *pipelineFixture) {
	t.Helper()

	pipelineFx := newPipelineFixture(t, defaultPipelineConfig(), true)
	inventory := NewInventoryService(&fakeInventoryClient{})
	tracking := NewTrackingService(
		pipelineFx.storage,
		pipelineFx.fulfillment,
		&fakeMarketplace{},
		NewEventBus(pipelineFx.sink),
		0,
	)

	ctx := context.Background()
	scheduler := NewScheduler(
		SchedulerConfig{PageSize: 10},
		SchedulerQueues{
			Orders:    NewJobQueueService(ctx, 10, 1),
			Tracking:  NewJobQueueService(ctx, 1, 1),
			Inventory: NewJobQueueService(ctx, 1, 1),
		},
		lister,
		pipelineFx.pipeline,
		tracking,
		inventory,
		testSKUTable(t),
	)

	return scheduler, pipelineFx
}

func TestPollOrdersIngestsAllPages(t *testing.T) {
	lister := &fakeLister{pages: [][]models.InboundOrder{
		{orderWithID("ORD-1"), orderWithID("ORD-2")},
		{orderWithID("ORD-3")},
	}}

	scheduler, fixture := newSchedulerFixture(t, lister)

	scheduler.pollOrders(context.Background())

	assert.Equal(t, 2, lister.calls)
	assert.Equal(t, models.StatusFulfillmentCreated, fixture.storage.mustStatus(t, "ORD-1"))
	assert.Equal(t, models.StatusFulfillmentCreated, fixture.storage.mustStatus(t, "ORD-2"))
	assert.Equal(t, models.StatusFulfillmentCreated, fixture.storage.mustStatus(t, "ORD-3"))
	assert.Len(t, fixture.fulfillment.orders, 3)
}

func TestPollOrdersReprocessesHeldRecords(t *testing.T) {
	lister := &fakeLister{}
	scheduler, fixture := newSchedulerFixture(t, lister)
	ctx := context.Background()

	// Заказ удержан по нехватке остатков.
	fixture.guard.shortages = []Shortage{{SKU: "FC-SKU-001", Requested: 2, Available: 0}}
	require.NoError(t, fixture.pipeline.IngestOrder(ctx, validOrder()))
	require.Equal(t, models.StatusValidated, fixture.storage.mustStatus(t, "ORD-1"))

	// Остатки пополнились: цикл опроса перезапускает удержанные записи.
	fixture.guard.shortages = nil
	scheduler.pollOrders(ctx)

	assert.Equal(t, models.StatusFulfillmentCreated, fixture.storage.mustStatus(t, "ORD-1"))
}

type countingInventoryClient struct {
	calls int32
}

func (c *countingInventoryClient) GetInventory(context.Context, []string) (map[string]models.InventoryLevel, error) {
	atomic.AddInt32(&c.calls, 1)
	return map[string]models.InventoryLevel{}, nil
}

func TestTimersSurviveThrottledOrderPool(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pipelineFx := newPipelineFixture(t, defaultPipelineConfig(), true)
	inventoryClient := &countingInventoryClient{}
	tracking := NewTrackingService(
		pipelineFx.storage,
		pipelineFx.fulfillment,
		&fakeMarketplace{},
		NewEventBus(pipelineFx.sink),
		0,
	)

	// Пул заказов зажат целиком: воркер на паузе, единственный слот очереди
	// занят. Так ведёт себя пул при троттлинге провайдера фулфилмента.
	ordersQueue := NewJobQueueService(ctx, 1, 1)
	ordersQueue.Pause()
	require.NoError(t, ordersQueue.Enqueue(func(context.Context) {}))

	lister := &fakeLister{}
	scheduler := NewScheduler(
		SchedulerConfig{
			OrderPollInterval:     5 * time.Millisecond,
			TrackingSyncInterval:  5 * time.Millisecond,
			InventorySyncInterval: 5 * time.Millisecond,
			PageSize:              10,
		},
		SchedulerQueues{
			Orders:    ordersQueue,
			Tracking:  NewJobQueueService(ctx, 1, 1),
			Inventory: NewJobQueueService(ctx, 1, 1),
		},
		lister,
		pipelineFx.pipeline,
		tracking,
		NewInventoryService(inventoryClient),
		testSKUTable(t),
	)

	require.NoError(t, scheduler.Start(ctx))

	// Цикл остатков работает, пока пул заказов стоит.
	assert.Eventually(t, func() bool {
		return atomic.LoadInt32(&inventoryClient.calls) > 0
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, lister.calls)
}

func TestPollOrdersDuplicatesAreHarmless(t *testing.T) {
	lister := &fakeLister{pages: [][]models.InboundOrder{{orderWithID("ORD-1")}}}
	scheduler, fixture := newSchedulerFixture(t, lister)
	ctx := context.Background()

	scheduler.pollOrders(ctx)
	scheduler.pollOrders(ctx)

	assert.Equal(t, 1, fixture.fulfillment.createCalls)
	assert.Len(t, fixture.fulfillment.orders, 1)
}
