package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusUnpaid           OrderStatus = "unpaid"
	OrderStatusAwaitingShipment OrderStatus = "awaiting_shipment"
	OrderStatusShipped          OrderStatus = "shipped"
	OrderStatusDelivered        OrderStatus = "delivered"
	OrderStatusCancelled        OrderStatus = "cancelled"
	OrderStatusCompleted        OrderStatus = "completed"
)

// Address в том виде, в котором его отдаёт маркетплейс.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

type OrderItem struct {
	SKU       string          `json:"sku"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Currency  string          `json:"currency"`
}

type PaymentSummary struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Tax         decimal.Decimal `json:"tax"`
	Discount    decimal.Decimal `json:"discount"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"currency"`
}

type OrderPackage struct {
	Carrier        string     `json:"carrier"`
	TrackingNumber string     `json:"tracking_number"`
	ShippedAt      *time.Time `json:"shipped_at,omitempty"`
}

// InboundOrder - нормализованное представление заказа маркетплейса.
// После первого получения заказ неизменяем, при повторном опросе обновляются только статусы.
type InboundOrder struct {
	ID             string         `json:"id"`
	Status         OrderStatus    `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	BuyerName      string         `json:"buyer_name"`
	BuyerEmail     string         `json:"buyer_email"`
	DeliveryOption string         `json:"delivery_option"`
	ShippingAddr   Address        `json:"shipping_address"`
	Items          []OrderItem    `json:"items"`
	Payment        PaymentSummary `json:"payment"`
	Packages       []OrderPackage `json:"packages,omitempty"`
}
