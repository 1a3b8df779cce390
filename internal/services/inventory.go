package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/Renal37/fulfillment-connector/internal/logger"
	"github.com/Renal37/fulfillment-connector/internal/models"
)

type inventoryClient interface {
	GetInventory(ctx context.Context, skus []string) (map[string]models.InventoryLevel, error)
}

// Shortage describes one SKU the network cannot currently cover.
type Shortage struct {
	SKU       string
	Requested int
	Available int
}

func ShortageError(shortages []Shortage) models.EventError {
	parts := make([]string, len(shortages))
	for i, s := range shortages {
		parts[i] = fmt.Sprintf("%s requested %d available %d", s.SKU, s.Requested, s.Available)
	}

	return models.EventError{
		Code:      "inventory_insufficient",
		Message:   "insufficient inventory: " + strings.Join(parts, "; "),
		Retryable: false,
	}
}

// InventoryService keeps a cache of fulfillment-network stock levels and
// answers the pre-flight guard check before order creation.
type InventoryService struct {
	client inventoryClient

	mu    sync.RWMutex
	cache map[string]models.InventoryLevel
}

func NewInventoryService(client inventoryClient) *InventoryService {
	return &InventoryService{
		client: client,
		cache:  make(map[string]models.InventoryLevel),
	}
}

// Refresh reloads stock levels for the given SKUs (driven by the
// inventory-sync timer).
func (s *InventoryService) Refresh(ctx context.Context, skus []string) error {
	if len(skus) == 0 {
		return nil
	}

	levels, err := s.client.GetInventory(ctx, skus)
	if err != nil {
		return fmt.Errorf("failed to refresh inventory cache: %w", err)
	}

	s.mu.Lock()
	for sku, level := range levels {
		s.cache[sku] = level
	}
	s.mu.Unlock()

	logger.Log.Debug("inventory cache refreshed", zap.Int("skus", len(levels)))

	return nil
}

// Check returns the shortages preventing the request from being filled.
// SKUs missing from the cache are queried directly so a cold cache does not
// hold orders back.
func (s *InventoryService) Check(ctx context.Context, req *models.FulfillmentRequest) ([]Shortage, error) {
	var unknown []string

	s.mu.RLock()
	for _, item := range req.Items {
		if _, ok := s.cache[item.SKU]; !ok {
			unknown = append(unknown, item.SKU)
		}
	}
	s.mu.RUnlock()

	if len(unknown) > 0 {
		if err := s.Refresh(ctx, unknown); err != nil {
			return nil, err
		}
	}

	var shortages []Shortage

	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, item := range req.Items {
		level := s.cache[item.SKU]
		if level.Available < item.Quantity {
			shortages = append(shortages, Shortage{
				SKU:       item.SKU,
				Requested: item.Quantity,
				Available: level.Available,
			})
		}
	}

	return shortages, nil
}
