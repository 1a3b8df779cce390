package skumap

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/Renal37/fulfillment-connector/internal/models"
)

// Table - таблица соответствий SKU маркетплейса и фулфилмент-сети,
// плюс отображение вариантов доставки на категории скорости отгрузки.
type Table struct {
	skus         map[string]string
	speeds       map[string]models.ShippingSpeed
	defaultSpeed models.ShippingSpeed
}

type tableFile struct {
	SKUs                 map[string]string `yaml:"skus"`
	ShippingSpeeds       map[string]string `yaml:"shipping_speeds"`
	DefaultShippingSpeed string            `yaml:"default_shipping_speed"`
}

var validSpeeds = map[models.ShippingSpeed]bool{
	models.ShippingSpeedStandard:  true,
	models.ShippingSpeedExpedited: true,
	models.ShippingSpeedPriority:  true,
}

// Load читает таблицу соответствий из YAML-файла.
func Load(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("не удалось прочитать файл таблицы SKU: %w", err)
	}

	return Parse(data)
}

// Parse разбирает содержимое таблицы соответствий.
func Parse(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("не удалось разобрать таблицу SKU: %w", err)
	}

	if len(file.SKUs) == 0 {
		return nil, fmt.Errorf("таблица SKU пуста")
	}

	table := &Table{
		skus:         file.SKUs,
		speeds:       make(map[string]models.ShippingSpeed, len(file.ShippingSpeeds)),
		defaultSpeed: models.ShippingSpeedStandard,
	}

	for option, speed := range file.ShippingSpeeds {
		shippingSpeed := models.ShippingSpeed(speed)
		if !validSpeeds[shippingSpeed] {
			return nil, fmt.Errorf("неизвестная категория скорости доставки %q для варианта %q", speed, option)
		}
		table.speeds[option] = shippingSpeed
	}

	if file.DefaultShippingSpeed != "" {
		shippingSpeed := models.ShippingSpeed(file.DefaultShippingSpeed)
		if !validSpeeds[shippingSpeed] {
			return nil, fmt.Errorf("неизвестная категория скорости доставки по умолчанию %q", file.DefaultShippingSpeed)
		}
		table.defaultSpeed = shippingSpeed
	}

	return table, nil
}

// Resolve возвращает SKU фулфилмент-сети для SKU маркетплейса.
func (t *Table) Resolve(marketplaceSKU string) (string, bool) {
	sku, ok := t.skus[marketplaceSKU]
	return sku, ok
}

// FulfillmentSKUs возвращает все SKU фулфилмент-сети из таблицы
// (используется обновлением кэша остатков).
func (t *Table) FulfillmentSKUs() []string {
	seen := make(map[string]bool, len(t.skus))
	result := make([]string, 0, len(t.skus))
	for _, sku := range t.skus {
		if !seen[sku] {
			seen[sku] = true
			result = append(result, sku)
		}
	}
	return result
}

// SpeedFor возвращает категорию скорости для варианта доставки маркетплейса.
// Неизвестные варианты получают категорию по умолчанию.
func (t *Table) SpeedFor(deliveryOption string) models.ShippingSpeed {
	if speed, ok := t.speeds[deliveryOption]; ok {
		return speed
	}
	return t.defaultSpeed
}
