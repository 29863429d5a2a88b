//go:build integration

package database

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/JonMunkholm/salesimport/internal/core"
	"github.com/JonMunkholm/salesimport/internal/platform"
)

const testDocument = `
Shopify:
  batch_size: 2
  field_mapping:
    order_id: Order ID
    customer_id: Customer ID
    product_id: Product ID
    item_selling_price: Price
    item_quantity: Qty
    order_date: Date
    delivery_status: Status
    delivery_address: Address
    delivery_partner: Partner
  order_date_format: "%Y-%m-%d"
  platform_data_field_mapping:
    channel: Channel
`

const exampleCSV = `Order ID,Customer ID,Product ID,Price,Qty,Date,Status,Address,Channel
o1,c1,p1,$5,2,2024-01-02,shipped,1 Main St,web
o2,c1,p2,$3,1,2024-01-02,pending,,pos
o3,c2,p1,$5,4,2024-01-03,shipped,9 High St,web
`

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("sales_test"),
		tcpostgres.WithUsername("postgres"),
		tcpostgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get connection string")

	require.NoError(t, MigrateUp(dsn))

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func loadTestPlatforms(t *testing.T, pool *pgxpool.Pool) *PlatformRepo {
	t.Helper()
	doc, err := platform.ParseDocument(strings.NewReader(testDocument))
	require.NoError(t, err)

	created, updated, err := LoadDocument(context.Background(), pool, doc, 1000)
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Equal(t, 0, updated)

	return NewPlatformRepo(pool, 1000)
}

func count(t *testing.T, pool *pgxpool.Pool, table string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT count(*) FROM "+table).Scan(&n))
	return n
}

func TestIntegration_ImportIdempotent(t *testing.T) {
	pool := newTestPool(t)
	platforms := loadTestPlatforms(t, pool)
	imp := core.NewImporter(platforms, core.NewBulkLoader(NewStore(pool)))
	ctx := context.Background()

	summary, err := imp.Run(ctx, "SHOPIFY", strings.NewReader(exampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Batches)
	assert.Equal(t, 3, summary.Totals.Orders.Inserted)
	assert.Equal(t, 2, summary.Totals.Products.Inserted)

	tables := []string{"customers", "products", "orders", "order_items", "deliveries"}
	first := map[string]int{}
	for _, tbl := range tables {
		first[tbl] = count(t, pool, tbl)
	}
	assert.Equal(t, map[string]int{"customers": 2, "products": 2, "orders": 3, "order_items": 3, "deliveries": 3}, first)

	summary, err = imp.Run(ctx, "shopify", strings.NewReader(exampleCSV))
	require.NoError(t, err)
	for _, tbl := range tables {
		assert.Equal(t, first[tbl], count(t, pool, tbl), "%s count changed on re-import", tbl)
	}
	assert.Equal(t, 0, summary.Totals.OrderItems.Inserted)
	assert.Equal(t, 3, summary.Totals.OrderItems.Skipped)

	var (
		total   decimal.Decimal
		partner *string
		channel string
		addr    string
	)
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT total_sale_value FROM order_items WHERE order_id = 'o3'`).Scan(&total))
	assert.True(t, total.Equal(decimal.NewFromInt(20)), "total = %s", total)

	require.NoError(t, pool.QueryRow(ctx,
		`SELECT delivery_partner, delivery_address FROM deliveries WHERE order_id = 'o2'`).Scan(&partner, &addr))
	assert.Nil(t, partner, "missing partner column is stored as NULL")
	assert.Equal(t, "", addr)

	require.NoError(t, pool.QueryRow(ctx,
		`SELECT platform_data->>'channel' FROM orders WHERE order_id = 'o1'`).Scan(&channel))
	assert.Equal(t, "web", channel)
}

func TestIntegration_BatchRollback(t *testing.T) {
	pool := newTestPool(t)
	platforms := loadTestPlatforms(t, pool)
	imp := core.NewImporter(platforms, core.NewBulkLoader(NewStore(pool)))

	// The second batch overflows numeric(10,2) and must leave nothing behind.
	src := "Order ID,Customer ID,Product ID,Price,Qty\n" +
		"o1,c1,p1,5,1\n" +
		"o2,c1,p1,6,1\n" +
		"o3,c9,p9,123456789012,1\n"

	summary, err := imp.Run(context.Background(), "shopify", strings.NewReader(src))

	var perr *core.PersistenceError
	require.True(t, errors.As(err, &perr), "error = %v", err)
	assert.Equal(t, 2, perr.Batch)
	assert.Equal(t, core.StageOrderItems, perr.Stage)
	assert.Equal(t, 1, summary.Batches)

	var n int
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT count(*) FROM customers WHERE customer_id = 'c9'`).Scan(&n))
	assert.Zero(t, n, "customer from the failed batch was committed")
	require.NoError(t, pool.QueryRow(context.Background(),
		`SELECT count(*) FROM orders WHERE order_id = 'o3'`).Scan(&n))
	assert.Zero(t, n, "order from the failed batch was committed")
	assert.Equal(t, 2, count(t, pool, "orders"))
}

func TestIntegration_PlatformRepo(t *testing.T) {
	pool := newTestPool(t)
	repo := loadTestPlatforms(t, pool)
	ctx := context.Background()

	p, err := repo.Resolve(ctx, "sHoPiFy")
	require.NoError(t, err)
	assert.Equal(t, "Shopify", p.Name())
	assert.Equal(t, platform.NameID("Shopify"), p.ID)
	assert.Equal(t, 2, p.Config.BatchSize())

	_, err = repo.Resolve(ctx, "unknownplatform")
	assert.ErrorIs(t, err, platform.ErrNotFound)

	// Reloading updates in place and keeps the id.
	doc, err := platform.ParseDocument(strings.NewReader(strings.Replace(testDocument, "batch_size: 2", "batch_size: 50", 1)))
	require.NoError(t, err)
	created, updated, err := LoadDocument(ctx, pool, doc, 1000)
	require.NoError(t, err)
	assert.Equal(t, 0, created)
	assert.Equal(t, 1, updated)

	p2, err := repo.Resolve(ctx, "shopify")
	require.NoError(t, err)
	assert.Equal(t, p.ID, p2.ID)
	assert.Equal(t, 50, p2.Config.BatchSize())
}

func TestIntegration_RunRepo(t *testing.T) {
	pool := newTestPool(t)
	runs := NewRunRepo(pool)
	ctx := context.Background()

	rec := core.RunRecord{
		JobID:     "job-1",
		Platform:  "Shopify",
		Source:    "abc-orders.csv",
		Status:    core.RunRunning,
		StartedAt: time.Now(),
	}
	require.NoError(t, runs.Start(ctx, rec))

	rec.Status = core.RunSucceeded
	rec.Attempts = 2
	rec.FinishedAt = time.Now()
	rec.Summary = &core.RunSummary{RowsRead: 10, RowsMapped: 9, Batches: 1}
	rec.Summary.Totals.Orders = core.EntityCounts{Inserted: 9}
	require.NoError(t, runs.Finish(ctx, rec))

	got, err := runs.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", got.Status)
	assert.Equal(t, 2, got.Attempts)
	assert.Equal(t, 1, got.RowsFailed)
	require.NotNil(t, got.Totals)
	assert.Equal(t, 9, got.Totals.Orders.Inserted)
	assert.NotNil(t, got.FinishedAt)

	_, err = runs.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}
