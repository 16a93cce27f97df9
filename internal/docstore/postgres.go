package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSchema creates the single jsonb table every collection is stored in.
const PostgresSchema = `CREATE TABLE IF NOT EXISTS documents (
  collection TEXT        NOT NULL,
  id         TEXT        NOT NULL,
  body       JSONB       NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  PRIMARY KEY (collection, id)
)`

// Postgres stores documents as jsonb bodies in one table keyed by
// (collection, id).
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres wraps an opened pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres { return &Postgres{pool: pool} }

// Migrate creates the documents table when it is missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, PostgresSchema)
	return err
}

func (s *Postgres) Get(ctx context.Context, coll, id string) (Document, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`, coll, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRaw(raw, id)
}

func (s *Postgres) Query(ctx context.Context, coll string, f Filter) ([]Document, error) {
	q := `SELECT id, body FROM documents WHERE collection = $1`
	args := []any{coll}
	if f.Field != "" {
		if err := checkField(f.Field); err != nil {
			return nil, err
		}
		q += ` AND body->>$2 = $3`
		args = append(args, f.Field, stringValue(f.Value))
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Document
	for rows.Next() {
		var (
			id  string
			raw []byte
		)
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, err
		}
		d, err := decodeRaw(raw, id)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Postgres) Set(ctx context.Context, coll, id string, doc Document) error {
	raw, err := json.Marshal(body(doc))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3::jsonb)
		 ON CONFLICT (collection, id) DO UPDATE SET body = EXCLUDED.body, updated_at = now()`,
		coll, id, string(raw))
	return err
}

func (s *Postgres) Create(ctx context.Context, coll, id string, doc Document) error {
	raw, err := json.Marshal(body(doc))
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3::jsonb)`, coll, id, string(raw))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return ErrAlreadyExists
	}
	return err
}

func (s *Postgres) Add(ctx context.Context, coll string, doc Document) (string, error) {
	id := uuid.NewString()
	if err := s.Create(ctx, coll, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Update merges Set into the body and drops Unset keys in one statement.
func (s *Postgres) Update(ctx context.Context, coll, id string, p Patch) error {
	set := body(p.Set)
	if set == nil {
		set = Document{}
	}
	raw, err := json.Marshal(set)
	if err != nil {
		return err
	}
	unset := p.Unset
	if unset == nil {
		unset = []string{}
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET body = (body || $3::jsonb) - $4::text[], updated_at = now()
		 WHERE collection = $1 AND id = $2`, coll, id, string(raw), unset)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Delete(ctx context.Context, coll, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, coll, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) Close(context.Context) error {
	s.pool.Close()
	return nil
}

// stringValue renders a filter value the way ->> and JSON_UNQUOTE do.
func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
