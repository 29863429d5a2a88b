package core

import (
	"github.com/JonMunkholm/salesimport/internal/platform"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// RowMapper converts raw rows into entity fragments for one platform.
// Field access is plain map lookups through the platform's field mapping.
type RowMapper struct {
	platformID   uuid.UUID
	columns      map[string]string
	orderFormat  string
	deliveryFmt  string
	platformData []platform.Binding
	deliveryData []platform.Binding
}

// NewRowMapper prepares a mapper for p. The platform config is read once.
func NewRowMapper(p *platform.Platform) *RowMapper {
	return &RowMapper{
		platformID:   p.ID,
		columns:      p.Config.FieldMapping(),
		orderFormat:  p.Config.OrderDateFormat(),
		deliveryFmt:  p.Config.DeliveryDateFormat(),
		platformData: p.Config.PlatformData(),
		deliveryData: p.Config.DeliveryData(),
	}
}

// field returns the cleaned value of a canonical field and whether the
// field is mapped and its column exists in the row.
func (m *RowMapper) field(row Row, name string) (string, bool) {
	col, ok := m.columns[name]
	if !ok {
		return "", false
	}
	v, ok := row[col]
	if !ok {
		return "", false
	}
	return CleanCell(v), true
}

func (m *RowMapper) text(row Row, name string) string {
	v, _ := m.field(row, name)
	return v
}

func (m *RowMapper) nullable(row Row, name string) pgtype.Text {
	return ToPgText(m.field(row, name))
}

// Map produces the five fragments for one row. Missing columns give empty
// or null fields. A date or number that does not parse gives a
// *ParsingError; the caller adds the line number.
func (m *RowMapper) Map(row Row) (RowFragments, error) {
	orderID := m.text(row, platform.FieldOrderID)
	customerID := m.text(row, platform.FieldCustomerID)
	productID := m.text(row, platform.FieldProductID)

	orderDate, err := m.date(row, platform.FieldOrderDate, m.orderFormat)
	if err != nil {
		return RowFragments{}, err
	}
	deliveryDate, err := m.date(row, platform.FieldDeliveryDate, m.deliveryFmt)
	if err != nil {
		return RowFragments{}, err
	}
	quantity, err := m.number(row, platform.FieldItemQuantity)
	if err != nil {
		return RowFragments{}, err
	}
	price, err := m.number(row, platform.FieldItemSellingPrice)
	if err != nil {
		return RowFragments{}, err
	}
	price = price.Round(2)

	return RowFragments{
		Customer: Customer{
			ID:    customerID,
			Name:  m.nullable(row, platform.FieldCustomerName),
			Email: m.nullable(row, platform.FieldContactEmail),
			Phone: m.nullable(row, platform.FieldPhoneNumber),
		},
		Product: Product{
			ID:       productID,
			Name:     m.nullable(row, platform.FieldProductName),
			Category: m.nullable(row, platform.FieldProductCategory),
		},
		Order: Order{
			ID:           orderID,
			CustomerID:   customerID,
			PlatformID:   m.platformID,
			OrderDate:    orderDate,
			PlatformData: extractBag(row, m.platformData),
		},
		Item: OrderItem{
			OrderID:        orderID,
			ProductID:      productID,
			Quantity:       quantity,
			SellingPrice:   price,
			TotalSaleValue: quantity.Mul(price).Round(2),
		},
		Delivery: Delivery{
			OrderID:      orderID,
			Address:      m.text(row, platform.FieldDeliveryAddress),
			DeliveryDate: deliveryDate,
			Status:       m.text(row, platform.FieldDeliveryStatus),
			Partner:      m.nullable(row, platform.FieldDeliveryPartner),
			DeliveryData: extractBag(row, m.deliveryData),
		},
	}, nil
}

func (m *RowMapper) date(row Row, name, format string) (pgtype.Date, error) {
	v, _ := m.field(row, name)
	d, err := ParseDate(v, format)
	if err != nil {
		return pgtype.Date{}, &ParsingError{Field: name, Column: m.columns[name], Value: v, Err: err}
	}
	return d, nil
}

func (m *RowMapper) number(row Row, name string) (decimal.Decimal, error) {
	v, _ := m.field(row, name)
	d, err := ParseDecimal(v)
	if err != nil {
		return decimal.Zero, &ParsingError{Field: name, Column: m.columns[name], Value: v, Err: err}
	}
	return d, nil
}

// extractBag builds an attribute bag. Columns missing from the row are nil.
func extractBag(row Row, bindings []platform.Binding) Bag {
	if len(bindings) == 0 {
		return nil
	}
	bag := make(Bag, len(bindings))
	for _, b := range bindings {
		if v, ok := row[b.Column]; ok {
			v = CleanCell(v)
			bag[b.Key] = &v
		} else {
			bag[b.Key] = nil
		}
	}
	return bag
}
