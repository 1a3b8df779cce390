package skumap

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Renal37/fulfillment-connector/internal/models"
)

func TestParse(t *testing.T) {
	testCases := []struct {
		testName    string
		data        string
		expectError bool
	}{
		{
			testName: "Should parse a complete table",
			data: `
skus:
  MKT-001: FC-SKU-001
  MKT-002: FC-SKU-002
shipping_speeds:
  express: expedited
  economy: standard
default_shipping_speed: standard
`,
		},
		{
			testName:    "Should fail on an empty table",
			data:        `skus: {}`,
			expectError: true,
		},
		{
			testName: "Should fail on an unknown speed category",
			data: `
skus:
  MKT-001: FC-SKU-001
shipping_speeds:
  express: teleport
`,
			expectError: true,
		},
		{
			testName: "Should fail on an unknown default speed",
			data: `
skus:
  MKT-001: FC-SKU-001
default_shipping_speed: teleport
`,
			expectError: true,
		},
		{
			testName:    "Should fail on malformed YAML",
			data:        `skus: [`,
			expectError: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.testName, func(t *testing.T) {
			table, err := Parse([]byte(tc.data))

			if tc.expectError {
				assert.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.NotNil(t, table)
		})
	}
}

func TestResolve(t *testing.T) {
	table, err := Parse([]byte(`
skus:
  MKT-001: FC-SKU-001
`))
	require.NoError(t, err)

	sku, ok := table.Resolve("MKT-001")
	assert.True(t, ok)
	assert.Equal(t, "FC-SKU-001", sku)

	_, ok = table.Resolve("MKT-999")
	assert.False(t, ok)
}

func TestSpeedFor(t *testing.T) {
	table, err := Parse([]byte(`
skus:
  MKT-001: FC-SKU-001
shipping_speeds:
  express: expedited
default_shipping_speed: priority
`))
	require.NoError(t, err)

	assert.Equal(t, models.ShippingSpeedExpedited, table.SpeedFor("express"))
	assert.Equal(t, models.ShippingSpeedPriority, table.SpeedFor("unknown-option"))
}

func TestFulfillmentSKUs(t *testing.T) {
	table, err := Parse([]byte(`
skus:
  MKT-001: FC-SKU-001
  MKT-002: FC-SKU-001
  MKT-003: FC-SKU-002
`))
	require.NoError(t, err)

	skus := table.FulfillmentSKUs()
	assert.ElementsMatch(t, []string{"FC-SKU-001", "FC-SKU-002"}, skus)
}
