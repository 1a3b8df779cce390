package clients

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/Renal37/fulfillment-connector/internal/models"
)

// MarketplaceClient talks to the storefront order APIs.
type MarketplaceClient struct {
	apiClient
}

func NewMarketplaceClient(baseURL string, rps float64, retry RetryPolicy) *MarketplaceClient {
	return &MarketplaceClient{newAPIClient("marketplace", baseURL, rps, retry)}
}

type orderListResponse struct {
	Orders  []models.InboundOrder `json:"orders"`
	HasNext bool                  `json:"has_next"`
}

// ListAwaitingOrders returns one page of orders awaiting shipment.
func (c *MarketplaceClient) ListAwaitingOrders(ctx context.Context, page, pageSize int) ([]models.InboundOrder, bool, error) {
	query := url.Values{}
	query.Set("status", string(models.OrderStatusAwaitingShipment))
	query.Set("page", strconv.Itoa(page))
	query.Set("page_size", strconv.Itoa(pageSize))

	var res orderListResponse
	if err := c.call(ctx, http.MethodGet, "/api/v1/orders", query, nil, &res); err != nil {
		return nil, false, fmt.Errorf("failed to list awaiting orders: %w", err)
	}

	return res.Orders, res.HasNext, nil
}

type trackingUpdateRequest struct {
	TrackingNumber string `json:"tracking_number"`
	Carrier        string `json:"carrier"`
}

// UpdateTracking pushes a shipment tracking number back to the marketplace.
func (c *MarketplaceClient) UpdateTracking(ctx context.Context, orderID, trackingNumber, carrier string) error {
	payload := trackingUpdateRequest{TrackingNumber: trackingNumber, Carrier: carrier}

	path := "/api/v1/orders/" + url.PathEscape(orderID) + "/tracking"
	if err := c.call(ctx, http.MethodPost, path, nil, payload, nil); err != nil {
		return fmt.Errorf("failed to update tracking for order %s: %w", orderID, err)
	}

	return nil
}
