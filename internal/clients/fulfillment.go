package clients

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Renal37/fulfillment-connector/internal/models"
)

var (
	// ErrFulfillmentOrderExists means the provider already accepted an order
	// with this idempotency key. The caller adopts the existing order.
	ErrFulfillmentOrderExists = errors.New("fulfillment order already exists")

	ErrFulfillmentOrderNotFound = errors.New("fulfillment order not found")
)

// FulfillmentClient talks to the fulfillment network APIs.
type FulfillmentClient struct {
	apiClient
}

func NewFulfillmentClient(baseURL string, rps float64, retry RetryPolicy) *FulfillmentClient {
	return &FulfillmentClient{newAPIClient("fulfillment", baseURL, rps, retry)}
}

// CreateOrder files a fulfillment order. The idempotency key doubles as the
// provider-facing order id, so a retried create after a timeout cannot
// produce a duplicate shipment.
func (c *FulfillmentClient) CreateOrder(ctx context.Context, req models.FulfillmentRequest) (*models.FulfillmentOrder, error) {
	var order models.FulfillmentOrder
	err := c.call(ctx, http.MethodPost, "/api/v1/fulfillment-orders", nil, req, &order)
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.StatusCode == http.StatusConflict {
			return nil, ErrFulfillmentOrderExists
		}
		return nil, fmt.Errorf("failed to create fulfillment order: %w", err)
	}

	return &order, nil
}

// GetOrder fetches the current provider-side state by idempotency key.
func (c *FulfillmentClient) GetOrder(ctx context.Context, idempotencyKey string) (*models.FulfillmentOrder, error) {
	var order models.FulfillmentOrder

	path := "/api/v1/fulfillment-orders/" + url.PathEscape(idempotencyKey)
	err := c.call(ctx, http.MethodGet, path, nil, nil, &order)
	if err != nil {
		if apiErr, ok := AsAPIError(err); ok && apiErr.StatusCode == http.StatusNotFound {
			return nil, ErrFulfillmentOrderNotFound
		}
		return nil, fmt.Errorf("failed to get fulfillment order: %w", err)
	}

	return &order, nil
}

// CancelOrder asks the network to cancel an order that has not shipped yet.
func (c *FulfillmentClient) CancelOrder(ctx context.Context, idempotencyKey string) error {
	path := "/api/v1/fulfillment-orders/" + url.PathEscape(idempotencyKey) + "/cancel"
	if err := c.call(ctx, http.MethodPost, path, nil, nil, nil); err != nil {
		return fmt.Errorf("failed to cancel fulfillment order: %w", err)
	}

	return nil
}

type inventoryResponse struct {
	Items []models.InventoryLevel `json:"items"`
}

// GetInventory returns available/reserved quantities for the given SKUs.
func (c *FulfillmentClient) GetInventory(ctx context.Context, skus []string) (map[string]models.InventoryLevel, error) {
	query := url.Values{}
	query.Set("skus", strings.Join(skus, ","))

	var res inventoryResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/inventory", query, nil, &res); err != nil {
		return nil, fmt.Errorf("failed to query inventory: %w", err)
	}

	levels := make(map[string]models.InventoryLevel, len(res.Items))
	for _, item := range res.Items {
		levels[item.SKU] = item
	}

	return levels, nil
}
