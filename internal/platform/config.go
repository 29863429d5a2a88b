// Package platform describes the source platforms whose exports can be imported.
//
// Each platform has a Config that maps canonical field names to the column
// names used in that platform's CSV export, names the date formats those
// exports use, and declares which extra columns are carried through as
// opaque key/value bags. Onboarding a platform is a config change only.
package platform

import (
	"maps"
	"sort"
	"strings"
)

// DefaultBatchSize is the number of rows accumulated per batch when a
// platform config does not set batch_size.
const DefaultBatchSize = 1000

// Canonical field names accepted in field_mapping.
const (
	FieldCustomerID       = "customer_id"
	FieldCustomerName     = "customer_name"
	FieldContactEmail     = "contact_email"
	FieldPhoneNumber      = "phone_number"
	FieldProductID        = "product_id"
	FieldProductName      = "product_name"
	FieldProductCategory  = "product_category"
	FieldOrderID          = "order_id"
	FieldOrderDate        = "order_date"
	FieldItemQuantity     = "item_quantity"
	FieldItemSellingPrice = "item_selling_price"
	FieldDeliveryAddress  = "delivery_address"
	FieldDeliveryDate     = "delivery_date"
	FieldDeliveryStatus   = "delivery_status"
	FieldDeliveryPartner  = "delivery_partner"
)

// CanonicalFields lists every field name a field_mapping may use.
var CanonicalFields = []string{
	FieldCustomerID, FieldCustomerName, FieldContactEmail, FieldPhoneNumber,
	FieldProductID, FieldProductName, FieldProductCategory,
	FieldOrderID, FieldOrderDate,
	FieldItemQuantity, FieldItemSellingPrice,
	FieldDeliveryAddress, FieldDeliveryDate, FieldDeliveryStatus, FieldDeliveryPartner,
}

// Binding pairs an output key with the source column it is read from.
type Binding struct {
	Key    string
	Column string
}

// Config is the import configuration of one platform. It is immutable once
// built; accessors hand out copies.
type Config struct {
	name               string
	batchSize          int
	fieldMapping       map[string]string
	orderDateFormat    string
	deliveryDateFormat string
	platformData       []Binding
	deliveryData       []Binding
}

// Name returns the platform name as stored.
func (c *Config) Name() string { return c.name }

// BatchSize returns the number of rows per batch.
func (c *Config) BatchSize() int { return c.batchSize }

// OrderDateFormat returns the format order dates are written in.
func (c *Config) OrderDateFormat() string { return c.orderDateFormat }

// DeliveryDateFormat returns the format delivery dates are written in.
func (c *Config) DeliveryDateFormat() string { return c.deliveryDateFormat }

// Column returns the source column mapped to a canonical field.
func (c *Config) Column(field string) (string, bool) {
	col, ok := c.fieldMapping[field]
	return col, ok
}

// FieldMapping returns a copy of the canonical field to column mapping.
func (c *Config) FieldMapping() map[string]string {
	return maps.Clone(c.fieldMapping)
}

// PlatformData returns the bindings that build an order's platform_data bag,
// sorted by key.
func (c *Config) PlatformData() []Binding {
	return append([]Binding(nil), c.platformData...)
}

// DeliveryData returns the bindings that build a delivery's delivery_data bag,
// sorted by key.
func (c *Config) DeliveryData() []Binding {
	return append([]Binding(nil), c.deliveryData...)
}

// Raw converts the config back to its document form.
func (c *Config) Raw() RawConfig {
	return RawConfig{
		BatchSize:                c.batchSize,
		FieldMapping:             maps.Clone(c.fieldMapping),
		OrderDateFormat:          c.orderDateFormat,
		DeliveryDateFormat:       c.deliveryDateFormat,
		PlatformDataFieldMapping: fromBindings(c.platformData),
		DeliveryDataFieldMapping: fromBindings(c.deliveryData),
	}
}

// NewConfig builds an immutable Config from its document form. A zero
// batch_size falls back to defaultBatchSize, and to DefaultBatchSize when
// that is not positive either.
func NewConfig(name string, raw RawConfig, defaultBatchSize int) (*Config, error) {
	name = strings.TrimSpace(name)
	if err := raw.validate(name); err != nil {
		return nil, err
	}

	batchSize := raw.BatchSize
	if batchSize == 0 {
		batchSize = defaultBatchSize
	}
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &Config{
		name:               name,
		batchSize:          batchSize,
		fieldMapping:       maps.Clone(raw.FieldMapping),
		orderDateFormat:    raw.OrderDateFormat,
		deliveryDateFormat: raw.DeliveryDateFormat,
		platformData:       toBindings(raw.PlatformDataFieldMapping),
		deliveryData:       toBindings(raw.DeliveryDataFieldMapping),
	}, nil
}

func toBindings(m map[string]string) []Binding {
	if len(m) == 0 {
		return nil
	}
	out := make([]Binding, 0, len(m))
	for k, v := range m {
		out = append(out, Binding{Key: k, Column: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func fromBindings(b []Binding) map[string]string {
	if len(b) == 0 {
		return nil
	}
	out := make(map[string]string, len(b))
	for _, x := range b {
		out[x.Key] = x.Column
	}
	return out
}
