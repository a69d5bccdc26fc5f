package live

import (
	"context"
	"errors"
	"sort"

	"github.com/ZeeShekh1908/royal/internal/orders"
)

type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Removed  ChangeType = "removed"
)

type Change struct {
	Type  ChangeType   `json:"type"`
	Order orders.Order `json:"order"`
}

// Batch is one ordered delivery. The first batch of a subscription has
// Initial set and carries the full current result as Added changes.
type Batch struct {
	Initial bool     `json:"initial"`
	Changes []Change `json:"changes"`
}

// Event is a raw row change from the store, in commit order.
type Event struct {
	Op    string
	Order orders.Order
}

// Store loads query snapshots. *orders.Repo satisfies it.
type Store interface {
	ListAll(ctx context.Context) ([]orders.Order, error)
	Get(ctx context.Context, id string) (orders.Order, error)
	ListByPhone(ctx context.Context, phone string) ([]orders.Order, error)
}

type Query struct {
	Name     string
	match    func(orders.Order) bool
	snapshot func(ctx context.Context, s Store) ([]orders.Order, error)
}

func (q Query) Match(o orders.Order) bool { return q.match(o) }

// AllOrders matches every order, newest first.
func AllOrders() Query {
	return Query{
		Name:  "all",
		match: func(orders.Order) bool { return true },
		snapshot: func(ctx context.Context, s Store) ([]orders.Order, error) {
			return s.ListAll(ctx)
		},
	}
}

func OrderByID(id string) Query {
	return Query{
		Name:  "order:" + id,
		match: func(o orders.Order) bool { return o.ID == id },
		snapshot: func(ctx context.Context, s Store) ([]orders.Order, error) {
			o, err := s.Get(ctx, id)
			if errors.Is(err, orders.ErrNotFound) {
				return nil, nil
			}
			if err != nil {
				return nil, err
			}
			return []orders.Order{o}, nil
		},
	}
}

// OrdersByPhone matches one customer's orders, newest first.
func OrdersByPhone(phone string) Query {
	return Query{
		Name:  "phone:" + phone,
		match: func(o orders.Order) bool { return o.Phone == phone },
		snapshot: func(ctx context.Context, s Store) ([]orders.Order, error) {
			return s.ListByPhone(ctx, phone)
		},
	}
}

// SortNewestFirst orders by createdAt desc, id breaking ties.
func SortNewestFirst(list []orders.Order) {
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].ID > list[j].ID
		}
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}
