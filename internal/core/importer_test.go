package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/salesimport/internal/platform"
)

const exampleCSV = `Order ID,Customer ID,Product ID,Price,Qty,Total
o1,c1,p1,$5,2,999
o2,c1,p2,$3,1,999
o3,c2,p1,$5,4,999
`

func newTestImporter(t *testing.T, db *memDB, opts ...ImporterOption) (*Importer, *recordingLoader) {
	t.Helper()
	rec := &recordingLoader{inner: NewBulkLoader(db)}
	return NewImporter(testRegistry(t), rec, opts...), rec
}

func TestImporter_Example(t *testing.T) {
	db := newMemDB()
	imp, rec := newTestImporter(t, db)

	summary, err := imp.Run(context.Background(), "Shopify", strings.NewReader(exampleCSV))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(rec.batches) != 2 {
		t.Fatalf("batches loaded = %d, want 2", len(rec.batches))
	}

	b1, b2 := rec.batches[0], rec.batches[1]

	checkIDs := func(name string, got []string, want string) {
		t.Helper()
		if fmt.Sprint(got) != want {
			t.Errorf("%s = %v, want %s", name, got, want)
		}
	}
	custID := func(c Customer) string { return c.ID }
	prodID := func(p Product) string { return p.ID }
	orderID := func(o Order) string { return o.ID }
	item := func(i OrderItem) string {
		return fmt.Sprintf("(%s,%s,%s,%s)", i.OrderID, i.ProductID, i.Quantity, i.TotalSaleValue)
	}

	checkIDs("batch 1 customers", ids(b1.Customers, custID), "[c1]")
	checkIDs("batch 1 products", ids(b1.Products, prodID), "[p1 p2]")
	checkIDs("batch 1 orders", ids(b1.Orders, orderID), "[o1 o2]")
	checkIDs("batch 1 items", ids(b1.Items, item), "[(o1,p1,2,10) (o2,p2,1,3)]")

	checkIDs("batch 2 customers", ids(b2.Customers, custID), "[c2]")
	checkIDs("batch 2 orders", ids(b2.Orders, orderID), "[o3]")
	checkIDs("batch 2 items", ids(b2.Items, item), "[(o3,p1,4,20)]")

	// p1 was already stored by batch 1, so batch 2 creates no products.
	if summary.Totals.Products.Inserted != 2 || summary.Totals.Products.Skipped != 1 {
		t.Errorf("product totals = %+v, want 2 inserted 1 skipped", summary.Totals.Products)
	}
	if summary.RowsRead != 3 || summary.RowsMapped != 3 || summary.Batches != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if summary.Platform != "Shopify" || summary.PlatformID != platform.NameID("Shopify") {
		t.Errorf("summary platform = %q %s", summary.Platform, summary.PlatformID)
	}
	if summary.BytesRead != int64(len(exampleCSV)) {
		t.Errorf("BytesRead = %d, want %d", summary.BytesRead, len(exampleCSV))
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	for k, it := range db.state.items {
		if !it.TotalSaleValue.Equal(it.Quantity.Mul(it.SellingPrice)) {
			t.Errorf("item %v total %s != %s * %s", k, it.TotalSaleValue, it.Quantity, it.SellingPrice)
		}
		if it.TotalSaleValue.Equal(decimal.NewFromInt(999)) {
			t.Errorf("item %v took the source Total column", k)
		}
	}
}

func csvRows(n int) string {
	var sb strings.Builder
	sb.WriteString("Order ID,Customer ID,Product ID,Price,Qty\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&sb, "o%d,c%d,p%d,1.50,%d\n", i, i%3, i%5, i+1)
	}
	return sb.String()
}

func TestImporter_BatchBoundaries(t *testing.T) {
	const batchSize = 2 // Shopify in testDocument

	tests := []struct {
		rows      int
		wantLoads int
		wantLast  int
	}{
		{2 * batchSize, 2, batchSize},
		{2*batchSize + 1, 3, 1},
		{1, 1, 1},
		{0, 0, 0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d rows", tt.rows), func(t *testing.T) {
			imp, rec := newTestImporter(t, newMemDB())
			if _, err := imp.Run(context.Background(), "shopify", strings.NewReader(csvRows(tt.rows))); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if len(rec.batches) != tt.wantLoads {
				t.Fatalf("loads = %d, want %d", len(rec.batches), tt.wantLoads)
			}
			if tt.wantLoads > 0 {
				last := rec.batches[len(rec.batches)-1]
				if last.Rows != tt.wantLast || len(last.Orders) != tt.wantLast || len(last.Items) != tt.wantLast {
					t.Errorf("last batch = rows %d orders %d items %d, want %d", last.Rows, len(last.Orders), len(last.Items), tt.wantLast)
				}
			}
		})
	}
}

func TestImporter_Idempotent(t *testing.T) {
	db := newMemDB()
	imp, _ := newTestImporter(t, db)
	src := csvRows(7)

	if _, err := imp.Run(context.Background(), "shopify", strings.NewReader(src)); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	c1, p1, o1, i1, d1 := db.counts()

	summary, err := imp.Run(context.Background(), "SHOPIFY", strings.NewReader(src))
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	c2, p2, o2, i2, d2 := db.counts()

	if c1 != c2 || p1 != p2 || o1 != o2 || i1 != i2 || d1 != d2 {
		t.Errorf("counts changed: %v -> %v", []int{c1, p1, o1, i1, d1}, []int{c2, p2, o2, i2, d2})
	}
	if o1 != 7 || c1 != 3 || p1 != 5 {
		t.Errorf("first run counts customers=%d products=%d orders=%d", c1, p1, o1)
	}
	summary.Totals.Each(func(entity string, c EntityCounts) {
		if c.Inserted != 0 {
			t.Errorf("second run inserted %d %s", c.Inserted, entity)
		}
	})
}

func TestImporter_CaseInsensitivePlatform(t *testing.T) {
	for _, name := range []string{"Shopify", "shopify", "SHOPIFY"} {
		imp, _ := newTestImporter(t, newMemDB())
		summary, err := imp.Run(context.Background(), name, strings.NewReader(csvRows(1)))
		if err != nil {
			t.Fatalf("Run(%q) error = %v", name, err)
		}
		if summary.Platform != "Shopify" {
			t.Errorf("Run(%q) platform = %q", name, summary.Platform)
		}
	}
}

func TestImporter_UnknownPlatform(t *testing.T) {
	obs := &countingObserver{}
	imp, rec := newTestImporter(t, newMemDB(), WithObserver(obs))

	summary, err := imp.Run(context.Background(), "unknownplatform", strings.NewReader(exampleCSV))

	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("Run() error = %v, want *ConfigurationError", err)
	}
	if cfgErr.Platform != "unknownplatform" || !errors.Is(err, platform.ErrNotFound) {
		t.Errorf("ConfigurationError = %+v", cfgErr)
	}
	if summary != nil || len(rec.batches) != 0 {
		t.Error("nothing should be read or loaded for an unknown platform")
	}
	if IsRetryable(err) {
		t.Error("configuration errors must not be retried")
	}
	if obs.runs != 1 || obs.lastErr == nil {
		t.Errorf("observer runs = %d, lastErr = %v", obs.runs, obs.lastErr)
	}
}

func TestImporter_MissingPartnerColumn(t *testing.T) {
	db := newMemDB()
	imp, _ := newTestImporter(t, db)

	src := "Order ID,Customer ID,Product ID,Price,Qty,Address,Status\no1,c1,p1,2,1,1 Main St,shipped\n"
	if _, err := imp.Run(context.Background(), "shopify", strings.NewReader(src)); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	db.mu.Lock()
	defer db.mu.Unlock()
	d, ok := db.state.deliveries[deliveryKey{"o1", "shipped", "1 Main St"}]
	if !ok {
		t.Fatalf("delivery not stored: %v", db.state.deliveries)
	}
	if d.Partner.Valid {
		t.Errorf("Partner = %+v, want null", d.Partner)
	}
}

const badRowsCSV = `Order ID,Customer ID,Product ID,Price,Qty,Order Date
o1,c1,p1,5,1,2024-01-02
o2,c1,p1,5,one,2024-01-02
o3,c1,p1,5,1,02/01/2024
o4,c1,p1,5,1,2024-01-03
`

func TestImporter_SkipPolicy(t *testing.T) {
	db := newMemDB()
	obs := &countingObserver{}
	imp, rec := newTestImporter(t, db, WithObserver(obs))

	summary, err := imp.Run(context.Background(), "shopify", strings.NewReader(badRowsCSV))
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if summary.RowsRead != 4 || summary.RowsMapped != 2 {
		t.Errorf("rows read/mapped = %d/%d, want 4/2", summary.RowsRead, summary.RowsMapped)
	}
	if len(summary.FailedRows) != 2 || summary.FailedRows[0].LineNumber != 3 || summary.FailedRows[1].LineNumber != 4 {
		t.Errorf("FailedRows = %+v", summary.FailedRows)
	}
	if len(rec.batches) != 1 || rec.batches[0].Rows != 2 {
		t.Errorf("batches = %d, want one batch of the two good rows", len(rec.batches))
	}
	if obs.rowsFailed != 2 || obs.batches != 1 {
		t.Errorf("observer rowsFailed=%d batches=%d", obs.rowsFailed, obs.batches)
	}
}

func TestImporter_AbortPolicy(t *testing.T) {
	db := newMemDB()
	imp, rec := newTestImporter(t, db, WithRowErrorPolicy(AbortRun))

	summary, err := imp.Run(context.Background(), "shopify", strings.NewReader(badRowsCSV))

	var perr *ParsingError
	if !errors.As(err, &perr) {
		t.Fatalf("Run() error = %v, want *ParsingError", err)
	}
	if perr.LineNumber != 3 || perr.Field != "item_quantity" {
		t.Errorf("ParsingError = %+v", perr)
	}
	if len(rec.batches) != 0 {
		t.Errorf("batches loaded = %d, want 0", len(rec.batches))
	}
	if summary == nil || summary.RowsRead != 2 {
		t.Errorf("summary = %+v", summary)
	}
}

func TestImporter_PersistenceErrorPropagates(t *testing.T) {
	db := newMemDB()
	db.failAt(StageOrders, 1, errStorageDown)
	imp, _ := newTestImporter(t, db)

	summary, err := imp.Run(context.Background(), "shopify", strings.NewReader(csvRows(5)))

	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("Run() error = %v, want *PersistenceError", err)
	}
	if perr.Batch != 1 || !errors.Is(err, errStorageDown) {
		t.Errorf("PersistenceError = %+v", perr)
	}
	if summary.Batches != 0 {
		t.Errorf("Batches = %d, want 0", summary.Batches)
	}
	if c, _, o, _, _ := db.counts(); c != 0 || o != 0 {
		t.Errorf("customers=%d orders=%d after failed first batch", c, o)
	}
}

func TestImporter_EmptySource(t *testing.T) {
	imp, _ := newTestImporter(t, newMemDB())

	_, err := imp.Run(context.Background(), "shopify", strings.NewReader(""))
	if !errors.Is(err, ErrEmptyFile) {
		t.Errorf("Run() error = %v, want ErrEmptyFile", err)
	}
}

func TestImporter_Cancelled(t *testing.T) {
	imp, rec := newTestImporter(t, newMemDB())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := imp.Run(ctx, "shopify", strings.NewReader(csvRows(3)))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	if len(rec.batches) != 0 {
		t.Errorf("batches = %d after cancel", len(rec.batches))
	}
}
