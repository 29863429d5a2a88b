package database

import (
	"context"
	"fmt"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/salesimport/internal/core"
)

// maxParams is PostgreSQL's limit on bind parameters per statement.
const maxParams = 65535

// chunkSize returns how many rows of cols columns fit in one statement.
func chunkSize(cols int) int {
	return maxParams / cols
}

// chunks splits n rows into [start, end) ranges of at most size rows.
func chunks(n, size int) [][2]int {
	var out [][2]int
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		out = append(out, [2]int{start, end})
	}
	return out
}

// insertIgnoringConflicts runs a multi-row INSERT ... ON CONFLICT DO NOTHING
// in chunks and returns the number of rows actually inserted.
func insertIgnoringConflicts(ctx context.Context, db DBTX, table, conflict string, cols []string, n int, values func(i int) []any) (int, error) {
	inserted := 0
	for _, c := range chunks(n, chunkSize(len(cols))) {
		ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
		ib.InsertInto(table)
		ib.Cols(cols...)
		for i := c[0]; i < c[1]; i++ {
			ib.Values(values(i)...)
		}

		query, args := ib.Build()
		query += " ON CONFLICT " + conflict + " DO NOTHING"

		tag, err := db.Exec(ctx, query, args...)
		if err != nil {
			return inserted, fmt.Errorf("insert %s: %w", table, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// existingIDs returns which of ids are already stored in table.col.
func existingIDs(ctx context.Context, db DBTX, table, col string, ids []string) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(ids))
	for _, c := range chunks(len(ids), maxParams) {
		sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
		sb.Select(col).From(table).Where(sb.In(col, sqlbuilder.Flatten(ids[c[0]:c[1]])...))

		query, args := sb.Build()
		rows, err := db.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("select %s: %w", table, err)
		}
		stored, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		for _, id := range stored {
			found[id] = struct{}{}
		}
	}
	return found, nil
}

// CustomerRepo implements core.CustomerRepo.
type CustomerRepo struct {
	db DBTX
}

// CreateIfAbsent inserts customers whose id is not stored. Existing rows
// are never updated. A concurrent run inserting the same id in between is
// absorbed by ON CONFLICT DO NOTHING.
func (r *CustomerRepo) CreateIfAbsent(ctx context.Context, customers []core.Customer) (int, error) {
	if len(customers) == 0 {
		return 0, nil
	}

	ids := make([]string, len(customers))
	for i, c := range customers {
		ids[i] = c.ID
	}
	existing, err := existingIDs(ctx, r.db, "customers", "customer_id", ids)
	if err != nil {
		return 0, err
	}

	missing := make([]core.Customer, 0, len(customers))
	for _, c := range customers {
		if _, ok := existing[c.ID]; !ok {
			missing = append(missing, c)
		}
	}

	return insertIgnoringConflicts(ctx, r.db, "customers", "(customer_id)",
		[]string{"customer_id", "customer_name", "contact_email", "phone_number"},
		len(missing),
		func(i int) []any {
			c := missing[i]
			return []any{c.ID, c.Name, c.Email, c.Phone}
		})
}

// ProductRepo implements core.ProductRepo.
type ProductRepo struct {
	db DBTX
}

// CreateIfAbsent inserts products whose id is not stored.
func (r *ProductRepo) CreateIfAbsent(ctx context.Context, products []core.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}

	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	existing, err := existingIDs(ctx, r.db, "products", "product_id", ids)
	if err != nil {
		return 0, err
	}

	missing := make([]core.Product, 0, len(products))
	for _, p := range products {
		if _, ok := existing[p.ID]; !ok {
			missing = append(missing, p)
		}
	}

	return insertIgnoringConflicts(ctx, r.db, "products", "(product_id)",
		[]string{"product_id", "product_name", "category"},
		len(missing),
		func(i int) []any {
			p := missing[i]
			return []any{p.ID, p.Name, p.Category}
		})
}

// OrderRepo implements core.OrderRepo.
type OrderRepo struct {
	db DBTX
}

// BulkInsertIgnoreConflict inserts orders, skipping existing order ids.
func (r *OrderRepo) BulkInsertIgnoreConflict(ctx context.Context, orders []core.Order) (int, error) {
	return insertIgnoringConflicts(ctx, r.db, "orders", "(order_id)",
		[]string{"order_id", "customer_id", "platform_id", "order_date", "platform_data"},
		len(orders),
		func(i int) []any {
			o := orders[i]
			return []any{o.ID, o.CustomerID, o.PlatformID, o.OrderDate, o.PlatformData}
		})
}

// OrderItemRepo implements core.OrderItemRepo.
type OrderItemRepo struct {
	db DBTX
}

// BulkInsertIgnoreConflict inserts items, skipping existing
// (order_id, product_id, selling_price) keys.
func (r *OrderItemRepo) BulkInsertIgnoreConflict(ctx context.Context, items []core.OrderItem) (int, error) {
	return insertIgnoringConflicts(ctx, r.db, "order_items", "ON CONSTRAINT order_items_natural_key",
		[]string{"order_id", "product_id", "quantity_sold", "selling_price", "total_sale_value"},
		len(items),
		func(i int) []any {
			it := items[i]
			return []any{it.OrderID, it.ProductID, it.Quantity, it.SellingPrice, it.TotalSaleValue}
		})
}

// DeliveryRepo implements core.DeliveryRepo.
type DeliveryRepo struct {
	db DBTX
}

// BulkInsertIgnoreConflict inserts deliveries, skipping existing
// (order_id, delivery_status, delivery_address) keys.
func (r *DeliveryRepo) BulkInsertIgnoreConflict(ctx context.Context, deliveries []core.Delivery) (int, error) {
	return insertIgnoringConflicts(ctx, r.db, "deliveries", "ON CONSTRAINT deliveries_natural_key",
		[]string{"order_id", "delivery_address", "delivery_date", "delivery_status", "delivery_partner", "delivery_data"},
		len(deliveries),
		func(i int) []any {
			d := deliveries[i]
			return []any{d.OrderID, d.Address, d.DeliveryDate, d.Status, d.Partner, d.DeliveryData}
		})
}
