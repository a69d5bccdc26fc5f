package tokens

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrEmptyToken = errors.New("empty push token")

type AdminToken struct {
	ID           string    `json:"id"`
	Token        string    `json:"token"`
	RegisteredAt time.Time `json:"registeredAt"`
}

type Repo struct{ DB *pgxpool.Pool }

// Register stores token once; registering it again refreshes registeredAt.
func (r *Repo) Register(ctx context.Context, token string) (AdminToken, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return AdminToken{}, ErrEmptyToken
	}
	var t AdminToken
	err := r.DB.QueryRow(ctx, `
		INSERT INTO admin_tokens(id, token) VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET registered_at = now()
		RETURNING id, token, registered_at`,
		uuid.NewString(), token,
	).Scan(&t.ID, &t.Token, &t.RegisteredAt)
	if err != nil {
		return AdminToken{}, fmt.Errorf("register token: %w", err)
	}
	return t, nil
}

// List returns the token values only; that is all dispatch needs.
func (r *Repo) List(ctx context.Context) ([]string, error) {
	rows, err := r.DB.Query(ctx, `SELECT token FROM admin_tokens ORDER BY registered_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repo) Delete(ctx context.Context, token string) error {
	if _, err := r.DB.Exec(ctx, `DELETE FROM admin_tokens WHERE token=$1`, token); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}

// PruneStale drops tokens not re-registered within olderThan.
func (r *Repo) PruneStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.DB.Exec(ctx, `DELETE FROM admin_tokens WHERE registered_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("prune tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
