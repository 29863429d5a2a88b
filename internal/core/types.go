package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// Row is one CSV record keyed by header name.
type Row map[string]string

// Bag is a schema-free attribute map attached to orders and deliveries.
// A nil value means the source column was missing from the file.
type Bag map[string]*string

// Customer is created by import only if its id is not already stored.
type Customer struct {
	ID    string
	Name  pgtype.Text
	Email pgtype.Text
	Phone pgtype.Text
}

// Product is created by import only if its id is not already stored.
type Product struct {
	ID       string
	Name     pgtype.Text
	Category pgtype.Text
}

// Order is inserted once per order_id; later duplicates are skipped.
type Order struct {
	ID           string
	CustomerID   string
	PlatformID   uuid.UUID
	OrderDate    pgtype.Date
	PlatformData Bag
}

// OrderItem is unique on (order, product, selling price). TotalSaleValue is
// always Quantity * SellingPrice.
type OrderItem struct {
	OrderID        string
	ProductID      string
	Quantity       decimal.Decimal
	SellingPrice   decimal.Decimal
	TotalSaleValue decimal.Decimal
}

// Delivery is unique on (order, status, address).
type Delivery struct {
	OrderID      string
	Address      string
	DeliveryDate pgtype.Date
	Status       string
	Partner      pgtype.Text
	DeliveryData Bag
}

// RowFragments are the five entity fragments mapped from one row.
type RowFragments struct {
	Customer Customer
	Product  Product
	Order    Order
	Item     OrderItem
	Delivery Delivery
}

// Batch is the set of fragments from a bounded run of consecutive rows,
// persisted as one atomic unit.
type Batch struct {
	Number     int
	Rows       int
	Customers  []Customer
	Products   []Product
	Orders     []Order
	Items      []OrderItem
	Deliveries []Delivery
}

// Empty reports whether no rows were accumulated.
func (b *Batch) Empty() bool {
	return b == nil || b.Rows == 0
}

// EntityCounts is the outcome of persisting one entity kind.
type EntityCounts struct {
	Inserted int `json:"inserted"`
	Skipped  int `json:"skipped"`
}

func (c *EntityCounts) add(o EntityCounts) {
	c.Inserted += o.Inserted
	c.Skipped += o.Skipped
}

func countsFor(submitted, inserted int) EntityCounts {
	return EntityCounts{Inserted: inserted, Skipped: submitted - inserted}
}

// LoadResult holds per-entity counts for one batch or a whole run.
type LoadResult struct {
	Customers  EntityCounts `json:"customers"`
	Products   EntityCounts `json:"products"`
	Orders     EntityCounts `json:"orders"`
	OrderItems EntityCounts `json:"order_items"`
	Deliveries EntityCounts `json:"deliveries"`
}

// Add accumulates o into r.
func (r *LoadResult) Add(o LoadResult) {
	r.Customers.add(o.Customers)
	r.Products.add(o.Products)
	r.Orders.add(o.Orders)
	r.OrderItems.add(o.OrderItems)
	r.Deliveries.add(o.Deliveries)
}

// Each calls fn for every entity kind in persistence order.
func (r LoadResult) Each(fn func(entity string, c EntityCounts)) {
	fn("customers", r.Customers)
	fn("products", r.Products)
	fn("orders", r.Orders)
	fn("order_items", r.OrderItems)
	fn("deliveries", r.Deliveries)
}

// FailedRow records a row excluded from the import and why.
type FailedRow struct {
	LineNumber int    `json:"line"`
	Reason     string `json:"reason"`
}

// RunSummary is the result of one import run.
type RunSummary struct {
	Platform   string        `json:"platform"`
	PlatformID uuid.UUID     `json:"platform_id"`
	RowsRead   int           `json:"rows_read"`
	RowsMapped int           `json:"rows_mapped"`
	Batches    int           `json:"batches"`
	Totals     LoadResult    `json:"totals"`
	FailedRows []FailedRow   `json:"failed_rows,omitempty"`
	BytesRead  int64         `json:"bytes_read"`
	Duration   time.Duration `json:"duration"`
}

// RowErrorPolicy decides what a row-scoped ParsingError does to a run.
type RowErrorPolicy string

const (
	// SkipRow excludes the row, records it in RunSummary.FailedRows and continues.
	SkipRow RowErrorPolicy = "skip"
	// AbortRun ends the run with the ParsingError.
	AbortRun RowErrorPolicy = "abort"
)

// ParseRowErrorPolicy converts a config value, defaulting to SkipRow.
func ParseRowErrorPolicy(s string) RowErrorPolicy {
	if strings.EqualFold(strings.TrimSpace(s), string(AbortRun)) {
		return AbortRun
	}
	return SkipRow
}
