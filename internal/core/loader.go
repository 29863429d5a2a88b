package core

import (
	"context"
	"fmt"
)

// CustomerRepo persists customers. CreateIfAbsent inserts only ids that are
// not stored yet and returns how many rows it inserted.
type CustomerRepo interface {
	CreateIfAbsent(ctx context.Context, customers []Customer) (int, error)
}

// ProductRepo persists products with create-if-absent semantics.
type ProductRepo interface {
	CreateIfAbsent(ctx context.Context, products []Product) (int, error)
}

// OrderRepo inserts orders, skipping any whose order_id exists.
type OrderRepo interface {
	BulkInsertIgnoreConflict(ctx context.Context, orders []Order) (int, error)
}

// OrderItemRepo inserts items, skipping (order, product, price) conflicts.
type OrderItemRepo interface {
	BulkInsertIgnoreConflict(ctx context.Context, items []OrderItem) (int, error)
}

// DeliveryRepo inserts deliveries, skipping (order, status, address) conflicts.
type DeliveryRepo interface {
	BulkInsertIgnoreConflict(ctx context.Context, deliveries []Delivery) (int, error)
}

// Repos is the set of repositories bound to one transaction.
type Repos struct {
	Customers  CustomerRepo
	Products   ProductRepo
	Orders     OrderRepo
	OrderItems OrderItemRepo
	Deliveries DeliveryRepo
}

// TxRunner runs fn inside one database transaction. The transaction is
// committed when fn returns nil and rolled back otherwise.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Repos) error) error
}

// Persistence stages, in the order they run.
const (
	StageCustomers  = "customers"
	StageProducts   = "products"
	StageOrders     = "orders"
	StageOrderItems = "order_items"
	StageDeliveries = "deliveries"
	StageCommit     = "commit"
)

// BulkLoader persists batches atomically in dependency order:
// customers and products before orders, orders before items and deliveries.
type BulkLoader struct {
	tx TxRunner
}

// NewBulkLoader returns a loader writing through tx.
func NewBulkLoader(tx TxRunner) *BulkLoader {
	return &BulkLoader{tx: tx}
}

// Load writes one batch. Any failure rolls the whole batch back and is
// returned as a *PersistenceError.
func (l *BulkLoader) Load(ctx context.Context, b *Batch) (LoadResult, error) {
	var (
		result LoadResult
		stage  string
	)

	err := l.tx.InTx(ctx, func(r Repos) error {
		result = LoadResult{}
		var (
			n   int
			err error
		)

		stage = StageCustomers
		if n, err = r.Customers.CreateIfAbsent(ctx, b.Customers); err != nil {
			return err
		}
		result.Customers = countsFor(len(b.Customers), n)

		stage = StageProducts
		if n, err = r.Products.CreateIfAbsent(ctx, b.Products); err != nil {
			return err
		}
		result.Products = countsFor(len(b.Products), n)

		stage = StageOrders
		if n, err = r.Orders.BulkInsertIgnoreConflict(ctx, b.Orders); err != nil {
			return err
		}
		result.Orders = countsFor(len(b.Orders), n)

		stage = StageOrderItems
		if n, err = r.OrderItems.BulkInsertIgnoreConflict(ctx, b.Items); err != nil {
			return err
		}
		result.OrderItems = countsFor(len(b.Items), n)

		stage = StageDeliveries
		if n, err = r.Deliveries.BulkInsertIgnoreConflict(ctx, b.Deliveries); err != nil {
			return err
		}
		result.Deliveries = countsFor(len(b.Deliveries), n)

		stage = StageCommit
		return nil
	})
	if err != nil {
		return LoadResult{}, &PersistenceError{Batch: b.Number, Stage: stage, Err: fmt.Errorf("rolled back: %w", err)}
	}
	return result, nil
}
