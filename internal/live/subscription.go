package live

import (
	"sync"

	"github.com/ZeeShekh1908/royal/internal/orders"
)

// Subscription delivers batches for one query on C until Unsubscribe.
type Subscription struct {
	C <-chan Batch

	id    uint64
	query Query
	hub   *Hub

	// guarded by hub.deliverMu
	versions map[string]int64
	present  map[string]bool

	mu     sync.Mutex
	queue  []Batch
	closed bool

	ch     chan Batch
	wake   chan struct{}
	stop   chan struct{}
	exited chan struct{}
	once   sync.Once
}

func newSubscription(h *Hub, id uint64, q Query) *Subscription {
	ch := make(chan Batch)
	s := &Subscription{
		C:        ch,
		id:       id,
		query:    q,
		hub:      h,
		versions: map[string]int64{},
		present:  map[string]bool{},
		ch:       ch,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		exited:   make(chan struct{}),
	}
	go s.loop()
	return s
}

func (s *Subscription) Query() Query { return s.query }

// Unsubscribe stops delivery. When it returns C is closed and no further
// batch will be received. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.hub.remove(s.id)
		s.mu.Lock()
		s.closed = true
		s.queue = nil
		s.mu.Unlock()
		close(s.stop)
		<-s.exited
		close(s.ch)
	})
}

func (s *Subscription) push(b Batch) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, b)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) loop() {
	defer close(s.exited)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.wake:
				continue
			case <-s.stop:
				return
			}
		}
		b := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.ch <- b:
		case <-s.stop:
			return
		}
	}
}

// apply turns one store event into a change for this query, or false when
// the event is stale or irrelevant.
func (s *Subscription) apply(o orders.Order) (Change, bool) {
	if v, ok := s.versions[o.ID]; ok && o.Version <= v {
		return Change{}, false
	}
	had := s.present[o.ID]
	match := s.query.Match(o)
	s.versions[o.ID] = o.Version
	switch {
	case match && had:
		return Change{Type: Modified, Order: o}, true
	case match:
		s.present[o.ID] = true
		return Change{Type: Added, Order: o}, true
	case had:
		delete(s.present, o.ID)
		return Change{Type: Removed, Order: o}, true
	}
	return Change{}, false
}

// reconcile diffs a fresh snapshot against what the subscriber already holds.
func (s *Subscription) reconcile(snap []orders.Order, initial bool) Batch {
	b := Batch{Initial: initial}
	seen := make(map[string]bool, len(snap))
	for _, o := range snap {
		seen[o.ID] = true
		if initial {
			s.versions[o.ID] = o.Version
			s.present[o.ID] = true
			b.Changes = append(b.Changes, Change{Type: Added, Order: o})
			continue
		}
		if c, ok := s.apply(o); ok {
			b.Changes = append(b.Changes, c)
		}
	}
	for id := range s.present {
		if !seen[id] {
			delete(s.present, id)
			b.Changes = append(b.Changes, Change{Type: Removed, Order: orders.Order{ID: id, Version: s.versions[id]}})
		}
	}
	return b
}
