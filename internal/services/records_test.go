package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Renal37/fulfillment-connector/internal/models"
)

func TestGetRecord(t *testing.T) {
	storage := newMemoryStorage()
	service := NewRecordQueryService(storage)
	ctx := context.Background()

	_, err := service.GetRecord(ctx, "ORD-404")
	assert.ErrorIs(t, err, ErrUnknownOrder)

	payload := mustPayload(t, validOrder())
	require.NoError(t, storage.CreateRecord(ctx, "ORD-1", "FC-ORD-1", payload))

	record, err := service.GetRecord(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", record.OrderID)
	assert.Equal(t, "FC-ORD-1", record.IdempotencyKey)
	assert.Equal(t, models.StatusPending, record.Status)
	assert.Nil(t, record.LastError)
}

func TestGetRecords(t *testing.T) {
	storage := newMemoryStorage()
	service := NewRecordQueryService(storage)
	ctx := context.Background()

	payload := mustPayload(t, validOrder())
	require.NoError(t, storage.CreateRecord(ctx, "ORD-1", "FC-ORD-1", payload))
	require.NoError(t, storage.CreateRecord(ctx, "ORD-2", "FC-ORD-2", payload))

	ok, err := storage.TransitionStatus(ctx, "ORD-2", models.StatusPending, models.StatusValidating, "advanced", nil)
	require.NoError(t, err)
	require.True(t, ok)

	all, err := service.GetRecords(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := service.GetRecords(ctx, string(models.StatusPending))
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "ORD-1", pending[0].OrderID)

	_, err = service.GetRecords(ctx, "NOT_A_STATUS")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestGetRecordsSortsByCreationTime(t *testing.T) {
	storage := newMemoryStorage()
	service := NewRecordQueryService(storage)
	ctx := context.Background()

	payload := mustPayload(t, validOrder())
	require.NoError(t, storage.CreateRecord(ctx, "ORD-1", "FC-ORD-1", payload))
	require.NoError(t, storage.CreateRecord(ctx, "ORD-2", "FC-ORD-2", payload))
	require.NoError(t, storage.CreateRecord(ctx, "ORD-3", "FC-ORD-3", payload))

	records, err := service.GetRecords(ctx, "")
	require.NoError(t, err)
	require.Len(t, records, 3)

	for i := 1; i < len(records); i++ {
		assert.False(t, records[i].CreatedAt.Time.Before(records[i-1].CreatedAt.Time))
	}
}

func TestGetHistory(t *testing.T) {
	storage := newMemoryStorage()
	service := NewRecordQueryService(storage)
	ctx := context.Background()

	_, err := service.GetHistory(ctx, "ORD-404")
	assert.ErrorIs(t, err, ErrUnknownOrder)

	payload := mustPayload(t, validOrder())
	require.NoError(t, storage.CreateRecord(ctx, "ORD-1", "FC-ORD-1", payload))

	history, err := service.GetHistory(ctx, "ORD-1")
	require.NoError(t, err)
	assert.Empty(t, history)

	ok, err := storage.TransitionStatus(ctx, "ORD-1", models.StatusPending, models.StatusValidating, "advanced", nil)
	require.NoError(t, err)
	require.True(t, ok)

	eventErr := &models.EventError{Code: "validation_error", Message: "city is required"}
	ok, err = storage.TransitionStatus(ctx, "ORD-1", models.StatusValidating, models.StatusFailed, models.EventValidationFailed, eventErr)
	require.NoError(t, err)
	require.True(t, ok)

	history, err = service.GetHistory(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, history, 2)

	assert.Equal(t, models.StatusPending, history[0].From)
	assert.Equal(t, models.StatusValidating, history[0].To)
	assert.Nil(t, history[0].Error)

	assert.Equal(t, models.StatusFailed, history[1].To)
	assert.Equal(t, models.EventValidationFailed, history[1].Event)
	require.NotNil(t, history[1].Error)
	assert.Equal(t, "validation_error", history[1].Error.Code)
}
