package docgap

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// benchGoSource mixes documented and undocumented declarations so every
// stage has work to do.
const benchGoSource = `// Package inventory tracks stock levels.
package inventory

import (
	"errors"
	"sort"
)

// ErrOutOfStock is returned when a reservation exceeds the available count.
var ErrOutOfStock = errors.New("out of stock")

// Item is one stocked product.
type Item struct {
	SKU      string
	Name     string
	Count    int
	Reserved int
}

// Store reports and persists stock.
type Store interface {
	Get(sku string) (*Item, error)
	Put(item *Item) error
}

type Ledger struct {
	store Store
	audit []string
}

// NewLedger returns a ledger backed by s.
func NewLedger(s Store) *Ledger {
	return &Ledger{store: s}
}

// Reserve holds n units of sku.
func (l *Ledger) Reserve(sku string, n int) error {
	item, err := l.store.Get(sku)
	if err != nil {
		return err
	}
	if item.Count-item.Reserved < n {
		return ErrOutOfStock
	}
	item.Reserved += n
	l.audit = append(l.audit, "reserve "+sku)
	return l.store.Put(item)
}

func (l *Ledger) Release(sku string, n int) error {
	item, err := l.store.Get(sku)
	if err != nil {
		return err
	}
	if n > item.Reserved {
		n = item.Reserved
	}
	item.Reserved -= n
	l.audit = append(l.audit, "release "+sku)
	return l.store.Put(item)
}

// Available returns the unreserved count of item.
func Available(item *Item) int {
	return item.Count - item.Reserved
}

func LowStock(items []*Item, threshold int) []*Item {
	var out []*Item
	for _, it := range items {
		if Available(it) < threshold {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out
}

// Audit returns the ledger's operations in order.
func (l *Ledger) Audit() []string {
	return append([]string(nil), l.audit...)
}
`

// setupBenchRoot writes n copies of benchGoSource into a fresh directory.
func setupBenchRoot(b *testing.B, n int) string {
	b.Helper()
	root := b.TempDir()
	for i := range n {
		dir := filepath.Join(root, fmt.Sprintf("pkg%02d", i%10))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			b.Fatal(err)
		}
		path := filepath.Join(dir, fmt.Sprintf("bench%03d.go", i))
		if err := os.WriteFile(path, []byte(benchGoSource), 0o644); err != nil {
			b.Fatal(err)
		}
	}
	return root
}

func newBenchEngine(b *testing.B, opts ...Option) *Engine {
	b.Helper()
	e, err := New(filepath.Join(b.TempDir(), "bench.db"), opts...)
	if err != nil {
		b.Fatal(err)
	}
	return e
}

// BenchmarkRun_ColdCache measures a full run over 50 files with an empty
// cache.
func BenchmarkRun_ColdCache(b *testing.B) {
	ctx := context.Background()
	root := setupBenchRoot(b, 50)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		e := newBenchEngine(b)
		b.StartTimer()

		if _, err := e.Run(ctx, root); err != nil {
			e.Close()
			b.Fatal(err)
		}

		b.StopTimer()
		e.Close()
		b.StartTimer()
	}
}

// BenchmarkRun_WarmCache measures a run over 50 unchanged files, all served
// from the cache.
func BenchmarkRun_WarmCache(b *testing.B) {
	ctx := context.Background()
	root := setupBenchRoot(b, 50)
	e := newBenchEngine(b)
	defer e.Close()

	if _, err := e.Run(ctx, root); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.Run(ctx, root); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkRun_Parallel measures a cold run over 50 files with 4 analysis
// workers.
func BenchmarkRun_Parallel(b *testing.B) {
	ctx := context.Background()
	root := setupBenchRoot(b, 50)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		b.StopTimer()
		e := newBenchEngine(b, WithParallelAnalysis(4))
		b.StartTimer()

		if _, err := e.Run(ctx, root); err != nil {
			e.Close()
			b.Fatal(err)
		}

		b.StopTimer()
		e.Close()
		b.StartTimer()
	}
}
