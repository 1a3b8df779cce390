package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ShippingSpeed string

const (
	ShippingSpeedStandard  ShippingSpeed = "standard"
	ShippingSpeedExpedited ShippingSpeed = "expedited"
	ShippingSpeedPriority  ShippingSpeed = "priority"
)

type FulfillmentItem struct {
	SKU           string          `json:"sku"`
	Quantity      int             `json:"quantity"`
	DeclaredValue decimal.Decimal `json:"declared_value"`
}

type DeliveryWindow struct {
	Earliest time.Time `json:"earliest"`
	Latest   time.Time `json:"latest"`
}

// FulfillmentRequest - заявка на создание заказа в фулфилмент-сети.
// IdempotencyKey детерминированно выводится из идентификатора заказа маркетплейса,
// поэтому повтор вызова создания не порождает дубликат.
type FulfillmentRequest struct {
	IdempotencyKey   string            `json:"idempotency_key"`
	DisplayOrderID   string            `json:"display_order_id"`
	DisplayOrderDate time.Time         `json:"display_order_date"`
	ShippingSpeed    ShippingSpeed     `json:"shipping_speed"`
	Destination      Address           `json:"destination"`
	Items            []FulfillmentItem `json:"items"`
	DeliveryWindow   *DeliveryWindow   `json:"delivery_window,omitempty"`
	NotifyEmails     []string          `json:"notify_emails,omitempty"`
}

type FulfillmentStatus string

const (
	FulfillmentStatusReceived          FulfillmentStatus = "received"
	FulfillmentStatusInvalid           FulfillmentStatus = "invalid"
	FulfillmentStatusPlanning          FulfillmentStatus = "planning"
	FulfillmentStatusProcessing        FulfillmentStatus = "processing"
	FulfillmentStatusCancelled         FulfillmentStatus = "cancelled"
	FulfillmentStatusComplete          FulfillmentStatus = "complete"
	FulfillmentStatusCompletePartialed FulfillmentStatus = "complete_partialled"
	FulfillmentStatusUnfulfillable     FulfillmentStatus = "unfulfillable"
)

// TerminalFailure сообщает, что сеть больше не будет исполнять заказ.
func (s FulfillmentStatus) TerminalFailure() bool {
	return s == FulfillmentStatusInvalid ||
		s == FulfillmentStatusCancelled ||
		s == FulfillmentStatusUnfulfillable
}

type TrackingPackage struct {
	Carrier          string     `json:"carrier"`
	TrackingNumber   string     `json:"tracking_number"`
	ShipDate         *time.Time `json:"ship_date,omitempty"`
	EstimatedArrival *time.Time `json:"estimated_arrival,omitempty"`
	ActualArrival    *time.Time `json:"actual_arrival,omitempty"`
}

type Shipment struct {
	ShipmentID string            `json:"shipment_id"`
	Packages   []TrackingPackage `json:"packages"`
}

// FulfillmentOrder - состояние заказа на стороне фулфилмент-сети.
type FulfillmentOrder struct {
	IdempotencyKey     string            `json:"idempotency_key"`
	MarketplaceOrderID string            `json:"marketplace_order_id"`
	Status             FulfillmentStatus `json:"status"`
	Destination        Address           `json:"destination"`
	Items              []FulfillmentItem `json:"items"`
	Shipments          []Shipment        `json:"shipments,omitempty"`
}

// FirstTrackedPackage возвращает первую посылку с перевозчиком и трек-номером.
func (o *FulfillmentOrder) FirstTrackedPackage() *TrackingPackage {
	for _, shipment := range o.Shipments {
		for i := range shipment.Packages {
			p := &shipment.Packages[i]
			if p.Carrier != "" && p.TrackingNumber != "" {
				return p
			}
		}
	}
	return nil
}

type InventoryLevel struct {
	SKU       string `json:"sku"`
	Available int    `json:"available"`
	Reserved  int    `json:"reserved"`
}
