package models

import (
	"github.com/Renal37/fulfillment-connector/internal/utils"
)

// ProcessingStatus - статус записи коннектора в конвейере обработки.
type ProcessingStatus string

const (
	StatusPending            ProcessingStatus = "PENDING"
	StatusValidating         ProcessingStatus = "VALIDATING"
	StatusValidated          ProcessingStatus = "VALIDATED"
	StatusTransforming       ProcessingStatus = "TRANSFORMING"
	StatusCreating           ProcessingStatus = "CREATING_FULFILLMENT_ORDER"
	StatusFulfillmentCreated ProcessingStatus = "FULFILLMENT_ORDER_CREATED"
	StatusSyncingTracking    ProcessingStatus = "SYNCING_TRACKING"
	StatusCompleted          ProcessingStatus = "COMPLETED"
	StatusFailed             ProcessingStatus = "FAILED"
)

// statusRank задаёт порядок статусов в конвейере. Переходы разрешены только вперёд.
var statusRank = map[ProcessingStatus]int{
	StatusPending:            0,
	StatusValidating:         1,
	StatusValidated:          2,
	StatusTransforming:       3,
	StatusCreating:           4,
	StatusFulfillmentCreated: 5,
	StatusSyncingTracking:    6,
	StatusCompleted:          7,
	StatusFailed:             8,
}

func (s ProcessingStatus) Known() bool {
	_, ok := statusRank[s]
	return ok
}

func (s ProcessingStatus) Rank() int {
	return statusRank[s]
}

func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanAdvanceTo разрешает переход на следующий статус конвейера либо в FAILED
// из любого нетерминального статуса. Возврат назад возможен только через
// операторский re-drive, который выполняется отдельной операцией хранилища.
func (s ProcessingStatus) CanAdvanceTo(next ProcessingStatus) bool {
	if !s.Known() || !next.Known() || s.Terminal() {
		return false
	}
	if next == StatusFailed {
		return true
	}
	return next.Rank() == s.Rank()+1
}

// Record - операторское представление записи коннектора.
type Record struct {
	OrderID            string            `json:"order_id"`
	IdempotencyKey     string            `json:"idempotency_key"`
	Status             ProcessingStatus  `json:"status"`
	RetryCount         int               `json:"retry_count"`
	HoldCycles         int               `json:"hold_cycles"`
	FulfillmentOrderID *string           `json:"fulfillment_order_id,omitempty"`
	TrackingNumber     *string           `json:"tracking_number,omitempty"`
	Carrier            *string           `json:"carrier,omitempty"`
	CancelRequested    bool              `json:"cancel_requested"`
	LastError          *EventError       `json:"last_error,omitempty"`
	CreatedAt          utils.RFC3339Date `json:"created_at"`
	UpdatedAt          utils.RFC3339Date `json:"updated_at"`
}

// Transition - одна запись истории переходов.
type Transition struct {
	From  ProcessingStatus  `json:"from"`
	To    ProcessingStatus  `json:"to"`
	Event EventType         `json:"event"`
	Error *EventError       `json:"error,omitempty"`
	At    utils.RFC3339Date `json:"at"`
}
