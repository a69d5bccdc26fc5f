package projection

import (
	"sync"

	"github.com/ZeeShekh1908/royal/internal/live"
	"github.com/ZeeShekh1908/royal/internal/orders"
)

// AdminView is the admin's active-orders list fed from an AllOrders
// subscription. It is safe for use from the change loop and operator
// commands at the same time.
type AdminView struct {
	mu       sync.Mutex
	active   map[string]orders.Order
	versions map[string]int64
	hidden   map[string]bool
}

func NewAdminView() *AdminView {
	return &AdminView{
		active:   map[string]orders.Order{},
		versions: map[string]int64{},
		hidden:   map[string]bool{},
	}
}

// Apply folds a batch into the view and returns the alert candidates:
// documents added by this batch that are still active. Updates never are.
// An initial batch replaces the view, so a reconnect re-reports every
// active order and the ledger filters the ones already rung.
func (v *AdminView) Apply(b live.Batch) []orders.Order {
	v.mu.Lock()
	defer v.mu.Unlock()

	if b.Initial {
		v.active = map[string]orders.Order{}
		v.versions = map[string]int64{}
	}
	var candidates []orders.Order
	for _, c := range b.Changes {
		o := c.Order
		if held, ok := v.versions[o.ID]; ok && o.Version < held {
			continue
		}
		v.versions[o.ID] = o.Version
		if c.Type == live.Removed || !o.Status.Active() {
			delete(v.active, o.ID)
			delete(v.hidden, o.ID)
			continue
		}
		v.active[o.ID] = o
		if c.Type == live.Added {
			candidates = append(candidates, o)
		}
	}
	return candidates
}

// Orders returns the visible active orders, newest first.
func (v *AdminView) Orders() []orders.Order {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([]orders.Order, 0, len(v.active))
	for id, o := range v.active {
		if !v.hidden[id] {
			out = append(out, o)
		}
	}
	live.SortNewestFirst(out)
	return out
}

func (v *AdminView) Get(id string) (orders.Order, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	o, ok := v.active[id]
	return o, ok && !v.hidden[id]
}

// Hide removes an order from Orders ahead of store confirmation. The
// returned restore undoes it if the write fails.
func (v *AdminView) Hide(id string) (restore func()) {
	v.mu.Lock()
	v.hidden[id] = true
	v.mu.Unlock()
	return func() {
		v.mu.Lock()
		delete(v.hidden, id)
		v.mu.Unlock()
	}
}
