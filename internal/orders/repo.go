package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("order not found")

type Repo struct{ DB *pgxpool.Pool }

const orderColumns = `id, customer_name, phone, address, payment_method, line_item,
	quantity, total_paise, status, version, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (Order, error) {
	var (
		o      Order
		status string
	)
	err := row.Scan(&o.ID, &o.CustomerName, &o.Phone, &o.Address, &o.PaymentMethod, &o.LineItem,
		&o.Quantity, &o.TotalPaise, &status, &o.Version, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return Order{}, err
	}
	if o.Status, err = ParseStatus(status); err != nil {
		return Order{}, fmt.Errorf("order %s: %w", o.ID, err)
	}
	return o, nil
}

func collect(rows pgx.Rows) ([]Order, error) {
	defer rows.Close()
	var out []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// Create stores a validated order. id, status, version and createdAt are
// assigned here, never by the caller.
func (r *Repo) Create(ctx context.Context, n NewOrder) (Order, error) {
	row := r.DB.QueryRow(ctx, `
		INSERT INTO orders(id, customer_name, phone, address, payment_method, line_item, quantity, total_paise, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending')
		RETURNING `+orderColumns,
		uuid.NewString(), n.CustomerName, n.Phone, n.Address, n.PaymentMethod, n.Item, n.Quantity, n.TotalPaise(),
	)
	o, err := scanOrder(row)
	if err != nil {
		return Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Order{}, ErrNotFound
	}
	return o, err
}

func (r *Repo) ListAll(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *Repo) ListActive(ctx context.Context) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE status IN ('pending', 'accepted') ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

func (r *Repo) ListByPhone(ctx context.Context, phone string) ([]Order, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+orderColumns+` FROM orders
		WHERE phone=$1 ORDER BY created_at DESC`, phone)
	if err != nil {
		return nil, err
	}
	return collect(rows)
}

// UpdateStatus is a compare-and-swap: the row changes only while its status
// still equals from. A lost race yields ErrStatusConflict.
func (r *Repo) UpdateStatus(ctx context.Context, id string, from, to Status) (Order, error) {
	o, err := scanOrder(r.DB.QueryRow(ctx, `
		UPDATE orders SET status=$3
		WHERE id=$1 AND status=$2
		RETURNING `+orderColumns, id, string(from), string(to)))
	if err == nil {
		return o, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Order{}, fmt.Errorf("update order %s status: %w", id, err)
	}
	var exists bool
	if err := r.DB.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM orders WHERE id=$1)`, id).Scan(&exists); err != nil {
		return Order{}, err
	}
	if !exists {
		return Order{}, ErrNotFound
	}
	return Order{}, ErrStatusConflict
}
