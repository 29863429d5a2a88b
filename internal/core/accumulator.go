package core

// BatchAccumulator collects row fragments until the batch size is reached.
//
// Customers and products are keyed by id and the first occurrence in a
// batch wins. Orders, items and deliveries are kept in row order; their
// uniqueness is enforced when the batch is persisted. Only one batch is
// resident at a time.
type BatchAccumulator struct {
	size      int
	batch     *Batch
	customers map[string]struct{}
	products  map[string]struct{}
	number    int
}

// NewBatchAccumulator returns an accumulator that yields a batch every
// size rows. Sizes below one are treated as one.
func NewBatchAccumulator(size int) *BatchAccumulator {
	if size < 1 {
		size = 1
	}
	a := &BatchAccumulator{size: size}
	a.reset()
	return a
}

func (a *BatchAccumulator) reset() {
	a.number++
	a.batch = &Batch{Number: a.number}
	a.customers = make(map[string]struct{})
	a.products = make(map[string]struct{})
}

// Add appends one row's fragments. When the row count reaches the batch
// size the full batch is returned and the accumulator starts a new one.
func (a *BatchAccumulator) Add(f RowFragments) (*Batch, bool) {
	b := a.batch

	if _, seen := a.customers[f.Customer.ID]; !seen {
		a.customers[f.Customer.ID] = struct{}{}
		b.Customers = append(b.Customers, f.Customer)
	}
	if _, seen := a.products[f.Product.ID]; !seen {
		a.products[f.Product.ID] = struct{}{}
		b.Products = append(b.Products, f.Product)
	}
	b.Orders = append(b.Orders, f.Order)
	b.Items = append(b.Items, f.Item)
	b.Deliveries = append(b.Deliveries, f.Delivery)
	b.Rows++

	if b.Rows < a.size {
		return nil, false
	}
	a.reset()
	return b, true
}

// Drain returns the partial batch, if any rows were added since the last
// full batch, and resets the accumulator.
func (a *BatchAccumulator) Drain() (*Batch, bool) {
	b := a.batch
	if b.Empty() {
		return nil, false
	}
	a.reset()
	return b, true
}

// Pending returns the number of rows in the current partial batch.
func (a *BatchAccumulator) Pending() int {
	return a.batch.Rows
}
