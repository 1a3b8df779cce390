package services

import (
	"fmt"
	"strings"

	"github.com/Renal37/fulfillment-connector/internal/models"
	"github.com/Renal37/fulfillment-connector/internal/skumap"
)

// idempotencyKeyPrefix makes provider-facing order ids traceable back to the
// marketplace order they came from.
const idempotencyKeyPrefix = "FC-"

// IdempotencyKeyFor derives the deterministic idempotency key for an order.
// The same marketplace order always maps to the same key, which is what
// guarantees at most one fulfillment order per inbound order.
func IdempotencyKeyFor(orderID string) string {
	return idempotencyKeyPrefix + orderID
}

// TransformError is a structural transformation failure: non-retryable,
// moves the record to FAILED.
type TransformError struct {
	Reason string
}

func (e *TransformError) Error() string {
	return "transformation failed: " + e.Reason
}

func (e *TransformError) EventError() models.EventError {
	return models.EventError{
		Code:      "transform_error",
		Message:   e.Error(),
		Retryable: false,
	}
}

// TransformService maps a validated inbound order into a fulfillment order request.
type TransformService struct {
	skus *skumap.Table
}

func NewTransformService(skus *skumap.Table) *TransformService {
	return &TransformService{skus: skus}
}

// Transform builds the fulfillment request. Runs only on validated orders,
// but the SKU table may have been reloaded since validation, so mapping
// lookups are re-checked here.
func (t *TransformService) Transform(order *models.InboundOrder) (*models.FulfillmentRequest, error) {
	if len(order.Items) == 0 {
		return nil, &TransformError{Reason: "order has no line items"}
	}

	items := make([]models.FulfillmentItem, 0, len(order.Items))
	for _, item := range order.Items {
		fulfillmentSKU, ok := t.skus.Resolve(item.SKU)
		if !ok {
			return nil, &TransformError{
				Reason: fmt.Sprintf("no fulfillment SKU mapping for %q", item.SKU),
			}
		}

		items = append(items, models.FulfillmentItem{
			SKU:           fulfillmentSKU,
			Quantity:      item.Quantity,
			DeclaredValue: item.UnitPrice,
		})
	}

	request := &models.FulfillmentRequest{
		IdempotencyKey:   IdempotencyKeyFor(order.ID),
		DisplayOrderID:   order.ID,
		DisplayOrderDate: order.CreatedAt,
		ShippingSpeed:    t.skus.SpeedFor(order.DeliveryOption),
		Destination:      normalizeAddress(order.ShippingAddr),
		Items:            items,
	}

	if order.BuyerEmail != "" {
		request.NotifyEmails = []string{order.BuyerEmail}
	}

	return request, nil
}

// normalizeAddress brings the marketplace address into the destination schema.
func normalizeAddress(addr models.Address) models.Address {
	return models.Address{
		Name:       strings.TrimSpace(addr.Name),
		Line1:      strings.TrimSpace(addr.Line1),
		Line2:      strings.TrimSpace(addr.Line2),
		City:       strings.TrimSpace(addr.City),
		Region:     strings.ToUpper(strings.TrimSpace(addr.Region)),
		PostalCode: strings.ToUpper(strings.ReplaceAll(addr.PostalCode, " ", "")),
		Country:    strings.ToUpper(strings.TrimSpace(addr.Country)),
		Phone:      strings.TrimSpace(addr.Phone),
	}
}
