package services

import (
	"context"
	"errors"
	"sort"

	"github.com/Renal37/fulfillment-connector/internal/database"
	"github.com/Renal37/fulfillment-connector/internal/models"
	"github.com/Renal37/fulfillment-connector/internal/utils"
)

var ErrUnknownStatus = errors.New("unknown processing status")

type recordStorage interface {
	FindRecord(ctx context.Context, orderID string) (*database.RecordDB, error)

	FindRecordsByStatus(ctx context.Context, statuses []models.ProcessingStatus) (*[]database.RecordDB, error)

	FindTransitions(ctx context.Context, orderID string) (*[]database.TransitionDB, error)
}

// RecordQueryService exposes connector order records to the operator API.
type RecordQueryService struct {
	storage recordStorage
}

func NewRecordQueryService(storage recordStorage) *RecordQueryService {
	return &RecordQueryService{storage: storage}
}

func (s *RecordQueryService) GetRecord(ctx context.Context, orderID string) (*models.Record, error) {
	record, err := s.storage.FindRecord(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrUnknownOrder
	}

	result := toRecordModel(record)
	return &result, nil
}

// GetRecords lists records, optionally filtered by status, ordered by creation time.
func (s *RecordQueryService) GetRecords(ctx context.Context, status string) ([]models.Record, error) {
	var statuses []models.ProcessingStatus

	if status == "" {
		statuses = []models.ProcessingStatus{
			models.StatusPending,
			models.StatusValidating,
			models.StatusValidated,
			models.StatusTransforming,
			models.StatusCreating,
			models.StatusFulfillmentCreated,
			models.StatusSyncingTracking,
			models.StatusCompleted,
			models.StatusFailed,
		}
	} else {
		parsed := models.ProcessingStatus(status)
		if !parsed.Known() {
			return nil, ErrUnknownStatus
		}
		statuses = []models.ProcessingStatus{parsed}
	}

	records, err := s.storage.FindRecordsByStatus(ctx, statuses)
	if err != nil {
		return []models.Record{}, err
	}
	if records == nil {
		return []models.Record{}, nil
	}

	result := make([]models.Record, len(*records))
	for i := range *records {
		result[i] = toRecordModel(&(*records)[i])
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Time.Before(result[j].CreatedAt.Time)
	})

	return result, nil
}

func (s *RecordQueryService) GetHistory(ctx context.Context, orderID string) ([]models.Transition, error) {
	record, err := s.storage.FindRecord(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrUnknownOrder
	}

	transitions, err := s.storage.FindTransitions(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if transitions == nil {
		return []models.Transition{}, nil
	}

	result := make([]models.Transition, len(*transitions))
	for i, item := range *transitions {
		transition := models.Transition{
			From:  item.From.ProcessingStatus,
			To:    item.To.ProcessingStatus,
			Event: models.EventType(item.EventType),
			At:    utils.RFC3339Date{Time: item.CreatedAt},
		}
		if item.ErrorCode != nil {
			transition.Error = &models.EventError{Code: *item.ErrorCode}
			if item.ErrorMessage != nil {
				transition.Error.Message = *item.ErrorMessage
			}
		}
		result[i] = transition
	}

	return result, nil
}

func toRecordModel(record *database.RecordDB) models.Record {
	return models.Record{
		OrderID:            record.OrderID,
		IdempotencyKey:     record.IdempotencyKey,
		Status:             record.Status.ProcessingStatus,
		RetryCount:         record.RetryCount,
		HoldCycles:         record.HoldCycles,
		FulfillmentOrderID: record.FulfillmentOrderID,
		TrackingNumber:     record.TrackingNumber,
		Carrier:            record.Carrier,
		CancelRequested:    record.CancelRequested,
		LastError:          record.LastError(),
		CreatedAt:          utils.RFC3339Date{Time: record.CreatedAt},
		UpdatedAt:          utils.RFC3339Date{Time: record.UpdatedAt},
	}
}
