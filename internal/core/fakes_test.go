package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"strings"
	"sync"
	"testing"

	"github.com/JonMunkholm/salesimport/internal/platform"
	"github.com/JonMunkholm/salesimport/internal/storage"
)

// testDocument configures the platforms used across core tests.
const testDocument = `
Shopify:
  batch_size: 2
  field_mapping:
    order_id: Order ID
    customer_id: Customer ID
    customer_name: Customer Name
    product_id: Product ID
    product_name: Product Name
    item_selling_price: Price
    item_quantity: Qty
    order_date: Order Date
    delivery_address: Address
    delivery_status: Status
    delivery_partner: Partner
    delivery_date: Delivered
  order_date_format: "%Y-%m-%d"
  delivery_date_format: "%d/%m/%Y"
  platform_data_field_mapping:
    channel: Channel
  delivery_data_field_mapping:
    tracking: Tracking No
`

func testRegistry(t testing.TB) *platform.Registry {
	t.Helper()
	doc, err := platform.ParseDocument(strings.NewReader(testDocument))
	if err != nil {
		t.Fatalf("ParseDocument() error = %v", err)
	}
	reg, err := platform.RegistryFromDocument(doc, platform.DefaultBatchSize)
	if err != nil {
		t.Fatalf("RegistryFromDocument() error = %v", err)
	}
	return reg
}

func testPlatform(t testing.TB) *platform.Platform {
	t.Helper()
	p, err := testRegistry(t).Resolve(context.Background(), "shopify")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	return p
}

type itemKey struct{ order, product, price string }

type deliveryKey struct{ order, status, address string }

type memState struct {
	customers  map[string]Customer
	products   map[string]Product
	orders     map[string]Order
	items      map[itemKey]OrderItem
	deliveries map[deliveryKey]Delivery
}

func (s memState) clone() memState {
	return memState{
		customers:  maps.Clone(s.customers),
		products:   maps.Clone(s.products),
		orders:     maps.Clone(s.orders),
		items:      maps.Clone(s.items),
		deliveries: maps.Clone(s.deliveries),
	}
}

// memDB is an in-memory TxRunner. Each transaction works on a copy of the
// committed state that replaces it only when fn succeeds. Orders, items and
// deliveries check their references like foreign keys.
type memDB struct {
	mu    sync.Mutex
	state memState

	// failStage makes the repo for that stage fail failCount times.
	failStage string
	failCount int
	failErr   error

	txs int
}

func newMemDB() *memDB {
	return &memDB{state: memState{
		customers:  map[string]Customer{},
		products:   map[string]Product{},
		orders:     map[string]Order{},
		items:      map[itemKey]OrderItem{},
		deliveries: map[deliveryKey]Delivery{},
	}}
}

func (db *memDB) failAt(stage string, times int, err error) {
	db.failStage, db.failCount, db.failErr = stage, times, err
}

func (db *memDB) InTx(ctx context.Context, fn func(Repos) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.txs++

	tx := &memTx{db: db, state: db.state.clone()}
	if err := fn(Repos{
		Customers:  (*memCustomers)(tx),
		Products:   (*memProducts)(tx),
		Orders:     (*memOrders)(tx),
		OrderItems: (*memItems)(tx),
		Deliveries: (*memDeliveries)(tx),
	}); err != nil {
		return err
	}
	db.state = tx.state
	return nil
}

func (db *memDB) counts() (customers, products, orders, items, deliveries int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	s := db.state
	return len(s.customers), len(s.products), len(s.orders), len(s.items), len(s.deliveries)
}

type memTx struct {
	db    *memDB
	state memState
}

func (tx *memTx) fail(stage string) error {
	if tx.db.failStage != stage || tx.db.failCount == 0 {
		return nil
	}
	tx.db.failCount--
	if tx.db.failErr != nil {
		return tx.db.failErr
	}
	return fmt.Errorf("injected %s failure", stage)
}

type (
	memCustomers  memTx
	memProducts   memTx
	memOrders     memTx
	memItems      memTx
	memDeliveries memTx
)

func (r *memCustomers) CreateIfAbsent(_ context.Context, cs []Customer) (int, error) {
	tx := (*memTx)(r)
	if err := tx.fail(StageCustomers); err != nil {
		return 0, err
	}
	n := 0
	for _, c := range cs {
		if _, ok := tx.state.customers[c.ID]; !ok {
			tx.state.customers[c.ID] = c
			n++
		}
	}
	return n, nil
}

func (r *memProducts) CreateIfAbsent(_ context.Context, ps []Product) (int, error) {
	tx := (*memTx)(r)
	if err := tx.fail(StageProducts); err != nil {
		return 0, err
	}
	n := 0
	for _, p := range ps {
		if _, ok := tx.state.products[p.ID]; !ok {
			tx.state.products[p.ID] = p
			n++
		}
	}
	return n, nil
}

func (r *memOrders) BulkInsertIgnoreConflict(_ context.Context, orders []Order) (int, error) {
	tx := (*memTx)(r)
	if err := tx.fail(StageOrders); err != nil {
		return 0, err
	}
	n := 0
	for _, o := range orders {
		if _, ok := tx.state.customers[o.CustomerID]; !ok {
			return 0, fmt.Errorf("order %s violates foreign key constraint on customer %s", o.ID, o.CustomerID)
		}
		if _, ok := tx.state.orders[o.ID]; !ok {
			tx.state.orders[o.ID] = o
			n++
		}
	}
	return n, nil
}

func (r *memItems) BulkInsertIgnoreConflict(_ context.Context, items []OrderItem) (int, error) {
	tx := (*memTx)(r)
	if err := tx.fail(StageOrderItems); err != nil {
		return 0, err
	}
	n := 0
	for _, it := range items {
		if _, ok := tx.state.orders[it.OrderID]; !ok {
			return 0, fmt.Errorf("item violates foreign key constraint on order %s", it.OrderID)
		}
		if _, ok := tx.state.products[it.ProductID]; !ok {
			return 0, fmt.Errorf("item violates foreign key constraint on product %s", it.ProductID)
		}
		k := itemKey{it.OrderID, it.ProductID, it.SellingPrice.StringFixed(2)}
		if _, ok := tx.state.items[k]; !ok {
			tx.state.items[k] = it
			n++
		}
	}
	return n, nil
}

func (r *memDeliveries) BulkInsertIgnoreConflict(_ context.Context, ds []Delivery) (int, error) {
	tx := (*memTx)(r)
	if err := tx.fail(StageDeliveries); err != nil {
		return 0, err
	}
	n := 0
	for _, d := range ds {
		if _, ok := tx.state.orders[d.OrderID]; !ok {
			return 0, fmt.Errorf("delivery violates foreign key constraint on order %s", d.OrderID)
		}
		k := deliveryKey{d.OrderID, d.Status, d.Address}
		if _, ok := tx.state.deliveries[k]; !ok {
			tx.state.deliveries[k] = d
			n++
		}
	}
	return n, nil
}

// recordingLoader keeps every batch it is asked to load.
type recordingLoader struct {
	inner   Loader
	batches []*Batch
}

func (l *recordingLoader) Load(ctx context.Context, b *Batch) (LoadResult, error) {
	l.batches = append(l.batches, b)
	return l.inner.Load(ctx, b)
}

// memSources is an in-memory SourceStore.
type memSources struct {
	mu      sync.Mutex
	files   map[string][]byte
	opens   int
	deletes int
	openErr error
}

func newMemSources(files map[string]string) *memSources {
	s := &memSources{files: map[string][]byte{}}
	for k, v := range files {
		s.files[k] = []byte(v)
	}
	return s
}

func (s *memSources) Open(_ context.Context, handle string) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opens++
	if s.openErr != nil {
		return nil, s.openErr
	}
	data, ok := s.files[handle]
	if !ok {
		return nil, fmt.Errorf("%s: %w", handle, storage.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *memSources) Delete(_ context.Context, handle string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	delete(s.files, handle)
	return nil
}

func (s *memSources) exists(handle string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.files[handle]
	return ok
}

// countingObserver tallies observer callbacks.
type countingObserver struct {
	mu         sync.Mutex
	batches    int
	rowsFailed int
	runs       int
	lastErr    error
}

func (o *countingObserver) BatchLoaded(string, *Batch, LoadResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches++
}

func (o *countingObserver) RowFailed(string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.rowsFailed++
}

func (o *countingObserver) RunFinished(_ string, _ *RunSummary, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runs++
	o.lastErr = err
}

var errStorageDown = errors.New("connection refused")
