package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// Postgres keeps one collection of documents in the shared documents table.
type Postgres[V any] struct {
	db         *sql.DB
	collection string
}

func NewPostgres[V any](db *sql.DB, collection string) *Postgres[V] {
	return &Postgres[V]{db: db, collection: collection}
}

func (p *Postgres[V]) Get(ctx context.Context, id string) (V, error) {
	var v V
	var body []byte

	err := p.db.QueryRowContext(ctx, `
		SELECT body
		FROM documents
		WHERE collection = $1 AND id = $2
	`, p.collection, id).Scan(&body)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return v, ErrNotFound
		}
		return v, err
	}

	if err := json.Unmarshal(body, &v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", p.collection, id, err)
	}
	return v, nil
}

func (p *Postgres[V]) GetMany(ctx context.Context, ids []string) ([]V, error) {
	if len(ids) == 0 {
		return []V{}, nil
	}

	rows, err := p.db.QueryContext(ctx, `
		SELECT id, body
		FROM documents
		WHERE collection = $1 AND id = ANY($2)
	`, p.collection, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	found := make(map[string]V, len(ids))
	for rows.Next() {
		var id string
		var body []byte
		if err := rows.Scan(&id, &body); err != nil {
			return nil, err
		}
		var v V
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", p.collection, id, err)
		}
		found[id] = v
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]V, 0, len(found))
	for _, id := range ids {
		if v, ok := found[id]; ok {
			out = append(out, v)
		}
	}
	return out, nil
}

func (p *Postgres[V]) Put(ctx context.Context, id string, v V) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", p.collection, id, err)
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO documents (collection, id, body, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (collection, id)
		DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`, p.collection, id, body)
	return err
}

func (p *Postgres[V]) Delete(ctx context.Context, id string) error {
	result, err := p.db.ExecContext(ctx, `
		DELETE FROM documents
		WHERE collection = $1 AND id = $2
	`, p.collection, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

func (p *Postgres[V]) List(ctx context.Context) ([]V, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT body
		FROM documents
		WHERE collection = $1
		ORDER BY id
	`, p.collection)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []V{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var v V
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, fmt.Errorf("decode %s: %w", p.collection, err)
		}
		out = append(out, v)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}
