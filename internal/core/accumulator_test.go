package core

import (
	"fmt"
	"testing"
)

func frag(order, customer, product string) RowFragments {
	return RowFragments{
		Customer: Customer{ID: customer},
		Product:  Product{ID: product},
		Order:    Order{ID: order, CustomerID: customer},
		Item:     OrderItem{OrderID: order, ProductID: product},
		Delivery: Delivery{OrderID: order},
	}
}

func ids[T any](items []T, id func(T) string) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}

func TestBatchAccumulator_Dedup(t *testing.T) {
	acc := NewBatchAccumulator(2)

	if _, ready := acc.Add(frag("o1", "c1", "p1")); ready {
		t.Fatal("batch ready after one row")
	}
	b, ready := acc.Add(frag("o2", "c1", "p2"))
	if !ready {
		t.Fatal("batch not ready after two rows")
	}

	if got := ids(b.Customers, func(c Customer) string { return c.ID }); fmt.Sprint(got) != "[c1]" {
		t.Errorf("customers = %v, want [c1]", got)
	}
	if got := ids(b.Products, func(p Product) string { return p.ID }); fmt.Sprint(got) != "[p1 p2]" {
		t.Errorf("products = %v, want [p1 p2]", got)
	}
	if len(b.Orders) != 2 || len(b.Items) != 2 || len(b.Deliveries) != 2 {
		t.Errorf("orders/items/deliveries = %d/%d/%d, want 2/2/2", len(b.Orders), len(b.Items), len(b.Deliveries))
	}
	if b.Number != 1 || b.Rows != 2 {
		t.Errorf("Number, Rows = %d, %d; want 1, 2", b.Number, b.Rows)
	}

	// Dedup state resets with the batch: c1 and p1 appear again in batch 2.
	acc.Add(frag("o3", "c1", "p1"))
	b2, ok := acc.Drain()
	if !ok {
		t.Fatal("Drain() returned no batch")
	}
	if b2.Number != 2 || len(b2.Customers) != 1 || len(b2.Products) != 1 {
		t.Errorf("batch 2 = %+v", b2)
	}
}

func TestBatchAccumulator_FirstOccurrenceWins(t *testing.T) {
	acc := NewBatchAccumulator(10)

	first := frag("o1", "c1", "p1")
	first.Customer.Name = ToPgText("First", true)
	second := frag("o2", "c1", "p1")
	second.Customer.Name = ToPgText("Second", true)

	acc.Add(first)
	acc.Add(second)
	b, _ := acc.Drain()

	if got := b.Customers[0].Name.String; got != "First" {
		t.Errorf("customer name = %q, want First", got)
	}
}

func TestBatchAccumulator_Boundaries(t *testing.T) {
	const size = 3

	tests := []struct {
		rows        int
		wantBatches int
		wantLast    int
	}{
		{0, 0, 0},
		{1, 1, 1},
		{size, 1, size},
		{2 * size, 2, size},
		{2*size + 1, 3, 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%d rows", tt.rows), func(t *testing.T) {
			acc := NewBatchAccumulator(size)
			var batches []*Batch
			for i := 0; i < tt.rows; i++ {
				if b, ok := acc.Add(frag(fmt.Sprintf("o%d", i), "c", "p")); ok {
					batches = append(batches, b)
				}
			}
			if b, ok := acc.Drain(); ok {
				batches = append(batches, b)
			}

			if len(batches) != tt.wantBatches {
				t.Fatalf("batches = %d, want %d", len(batches), tt.wantBatches)
			}
			if tt.wantBatches > 0 {
				if last := batches[len(batches)-1]; last.Rows != tt.wantLast {
					t.Errorf("last batch rows = %d, want %d", last.Rows, tt.wantLast)
				}
			}
			if acc.Pending() != 0 {
				t.Errorf("Pending() = %d after drain", acc.Pending())
			}
		})
	}
}

func TestBatchAccumulator_DrainEmpty(t *testing.T) {
	acc := NewBatchAccumulator(0)
	if _, ok := acc.Drain(); ok {
		t.Error("Drain() on empty accumulator returned a batch")
	}
	if _, ok := acc.Add(frag("o1", "c1", "p1")); !ok {
		t.Error("size below one should yield a batch per row")
	}
}
