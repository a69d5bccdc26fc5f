package menu

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ DB *pgxpool.Pool }

const itemColumns = `id, name, price_paise, category, image_ref, created_at`

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.PricePaise, &it.Category, &it.ImageRef, &it.CreatedAt)
	return it, err
}

func (r *Repo) Create(ctx context.Context, name string, pricePaise int64, category, imageRef string) (Item, error) {
	it, err := scanItem(r.DB.QueryRow(ctx, `
		INSERT INTO menu_items(id, name, price_paise, category, image_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+itemColumns,
		uuid.NewString(), name, pricePaise, category, imageRef))
	if err != nil {
		return Item{}, fmt.Errorf("insert menu item: %w", err)
	}
	return it, nil
}

func (r *Repo) Get(ctx context.Context, id string) (Item, error) {
	it, err := scanItem(r.DB.QueryRow(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	return it, err
}

func (r *Repo) List(ctx context.Context) ([]Item, error) {
	rows, err := r.DB.Query(ctx, `SELECT `+itemColumns+` FROM menu_items ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *Repo) Update(ctx context.Context, id, name string, pricePaise int64, category, imageRef string) (Item, error) {
	it, err := scanItem(r.DB.QueryRow(ctx, `
		UPDATE menu_items SET name=$2, price_paise=$3, category=$4, image_ref=$5
		WHERE id=$1
		RETURNING `+itemColumns,
		id, name, pricePaise, category, imageRef))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("update menu item %s: %w", id, err)
	}
	return it, nil
}

func (r *Repo) Delete(ctx context.Context, id string) error {
	tag, err := r.DB.Exec(ctx, `DELETE FROM menu_items WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete menu item %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
