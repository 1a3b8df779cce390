package models

import (
	"context"
)

//go:generate mockgen -destination=mocks/mock_records.go . RecordService
type RecordService interface {
	GetRecord(ctx context.Context, orderID string) (*Record, error)

	GetRecords(ctx context.Context, status string) ([]Record, error)

	GetHistory(ctx context.Context, orderID string) ([]Transition, error)
}

//go:generate mockgen -destination=mocks/mock_pipeline.go . PipelineControlService
type PipelineControlService interface {
	Redrive(ctx context.Context, orderID string) error

	Cancel(ctx context.Context, orderID string) error

	Resume(ctx context.Context, orderID string) error
}
