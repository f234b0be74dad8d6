package purchase

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"compras-tracker/internal/scanning"
)

// ErrPersist marks a failed ledger write. The in-memory append has already
// happened when it is returned, so the caller gets the record together with
// the error and should treat it as a soft failure.
var ErrPersist = errors.New("persisting ledger failed")

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Ledger is the append-only collection of purchases plus derived
// statistics. ID assignment and the full-file rewrite are not safe under
// concurrent mutation, so every operation runs under a single mutex.
type Ledger struct {
	mu         sync.Mutex
	store      Store
	purchases  []*Purchase
	timeSource TimeSource
}

// NewLedger creates a Ledger backed by store, loading all persisted
// purchases up front
func NewLedger(store Store) (*Ledger, error) {
	return NewLedgerWithDeps(store, &defaultTimeSource{})
}

// NewLedgerWithDeps creates a Ledger with a custom time source for testing
func NewLedgerWithDeps(store Store, timeSource TimeSource) (*Ledger, error) {
	purchases, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("loading ledger: %w", err)
	}
	return &Ledger{
		store:      store,
		purchases:  purchases,
		timeSource: timeSource,
	}, nil
}

// Add registers a purchase from extracted ticket fields. The next
// sequential ID is assigned, the registration time is stamped server-side,
// and the full sequence is persisted before returning. When persistence
// fails the purchase is still returned together with an error wrapping
// ErrPersist.
func (l *Ledger) Add(fields scanning.TicketFields, imagePath string) (*Purchase, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	products := fields.Products
	if products == nil {
		products = []scanning.Product{}
	}

	p := &Purchase{
		ID:           len(l.purchases) + 1,
		Date:         fields.Date,
		Time:         fields.Time,
		Vendor:       fields.Vendor,
		Total:        parseTotal(fields.Total),
		Products:     products,
		ImagePath:    imagePath,
		RegisteredAt: l.timeSource.Now(),
	}

	l.purchases = append(l.purchases, p)

	if err := l.store.Save(l.purchases); err != nil {
		slog.Error("Failed to persist ledger", "purchase_id", p.ID, "error", err)
		return p, fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return p, nil
}

// Stats recomputes aggregate statistics over the full record set. It
// returns nil when no purchases exist.
func (l *Ledger) Stats() *Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.purchases) == 0 {
		return nil
	}

	stats := &Stats{Count: len(l.purchases)}
	for _, p := range l.purchases {
		stats.TotalSpend += p.Total
	}
	stats.AverageSpend = stats.TotalSpend / float64(stats.Count)
	stats.FrequentVendor = frequentVendor(l.purchases)
	return stats
}

// Recent returns the last n purchases in insertion order. n larger than
// the ledger is clamped to the whole ledger.
func (l *Ledger) Recent(n int) []*Purchase {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n < 0 {
		n = 0
	}
	if n > len(l.purchases) {
		n = len(l.purchases)
	}
	recent := make([]*Purchase, n)
	copy(recent, l.purchases[len(l.purchases)-n:])
	return recent
}

// Get retrieves a purchase by its 1-based sequential ID
func (l *Ledger) Get(id int) (*Purchase, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if id < 1 || id > len(l.purchases) {
		return nil, fmt.Errorf("purchase not found: %d", id)
	}
	return l.purchases[id-1], nil
}

// Count returns the number of registered purchases
func (l *Ledger) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.purchases)
}

// frequentVendor is the mode over non-empty vendor names. Ties break to
// the vendor seen first in insertion order.
func frequentVendor(purchases []*Purchase) string {
	counts := make(map[string]int)
	order := make([]string, 0)
	for _, p := range purchases {
		if p.Vendor == "" {
			continue
		}
		if _, seen := counts[p.Vendor]; !seen {
			order = append(order, p.Vendor)
		}
		counts[p.Vendor]++
	}

	var best string
	var bestCount int
	for _, vendor := range order {
		if counts[vendor] > bestCount {
			best = vendor
			bestCount = counts[vendor]
		}
	}
	return best
}

// parseTotal coerces the raw total string to a float, defaulting to 0 for
// unset or unparsable values
func parseTotal(raw string) float64 {
	if raw == "" {
		return 0
	}
	total, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return total
}
