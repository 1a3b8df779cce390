package services

import (
	"fmt"
	"regexp"

	"github.com/Renal37/fulfillment-connector/internal/models"
	"github.com/Renal37/fulfillment-connector/internal/skumap"
)

// ValidationError names the first failing field. Validation failures are
// never retried: the input will not change without an upstream fix.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) EventError() models.EventError {
	return models.EventError{
		Code:      "validation_error",
		Message:   e.Error(),
		Retryable: false,
	}
}

// postalFormats lists countries with a known postal code shape.
// Other destinations only require a non-empty code.
var postalFormats = map[string]*regexp.Regexp{
	"US": regexp.MustCompile(`^\d{5}(-\d{4})?$`),
	"CA": regexp.MustCompile(`^[A-Za-z]\d[A-Za-z] ?\d[A-Za-z]\d$`),
	"GB": regexp.MustCompile(`^[A-Za-z]{1,2}\d[A-Za-z\d]? ?\d[A-Za-z]{2}$`),
	"DE": regexp.MustCompile(`^\d{5}$`),
	"FR": regexp.MustCompile(`^\d{5}$`),
	"RU": regexp.MustCompile(`^\d{6}$`),
	"CN": regexp.MustCompile(`^\d{6}$`),
}

// ValidationService checks a fetched order for completeness before any
// external side effect is attempted.
type ValidationService struct {
	skus *skumap.Table
}

func NewValidationService(skus *skumap.Table) *ValidationService {
	return &ValidationService{skus: skus}
}

// Validate runs the checks in order and returns the first failure.
func (v *ValidationService) Validate(order *models.InboundOrder) *ValidationError {
	addr := order.ShippingAddr

	required := []struct {
		field string
		value string
	}{
		{"shipping_address.name", addr.Name},
		{"shipping_address.line1", addr.Line1},
		{"shipping_address.city", addr.City},
		{"shipping_address.postal_code", addr.PostalCode},
		{"shipping_address.country", addr.Country},
	}
	for _, check := range required {
		if check.value == "" {
			return &ValidationError{Field: check.field, Reason: "is required"}
		}
	}

	if format, ok := postalFormats[addr.Country]; ok && !format.MatchString(addr.PostalCode) {
		return &ValidationError{
			Field:  "shipping_address.postal_code",
			Reason: fmt.Sprintf("%q is not plausible for country %s", addr.PostalCode, addr.Country),
		}
	}

	if len(order.Items) == 0 {
		return &ValidationError{Field: "items", Reason: "order has no line items"}
	}

	for i, item := range order.Items {
		if item.SKU == "" {
			return &ValidationError{
				Field:  fmt.Sprintf("items[%d].sku", i),
				Reason: "is required",
			}
		}

		if _, ok := v.skus.Resolve(item.SKU); !ok {
			return &ValidationError{
				Field:  fmt.Sprintf("items[%d].sku", i),
				Reason: fmt.Sprintf("%q has no fulfillment SKU mapping", item.SKU),
			}
		}

		if item.Quantity <= 0 {
			return &ValidationError{
				Field:  fmt.Sprintf("items[%d].quantity", i),
				Reason: fmt.Sprintf("must be a positive integer, got %d", item.Quantity),
			}
		}
	}

	return nil
}
