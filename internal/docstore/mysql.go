package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
)

// MySQLSchema creates the single table every collection is stored in.
const MySQLSchema = `CREATE TABLE IF NOT EXISTS documents (
  collection VARCHAR(64)  NOT NULL,
  id         VARCHAR(255) NOT NULL,
  body       JSON         NOT NULL,
  created_at DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
  updated_at DATETIME(6)  NOT NULL DEFAULT CURRENT_TIMESTAMP(6) ON UPDATE CURRENT_TIMESTAMP(6),
  PRIMARY KEY (collection, id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// MySQL stores documents as JSON bodies in one table keyed by
// (collection, id).
type MySQL struct {
	db *sql.DB
}

// NewMySQL wraps an opened *sql.DB.
func NewMySQL(db *sql.DB) *MySQL { return &MySQL{db: db} }

// Migrate creates the documents table when it is missing.
func (s *MySQL) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, MySQLSchema)
	return err
}

func (s *MySQL) Get(ctx context.Context, coll, id string) (Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`, coll, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeRaw(raw, id)
}

func (s *MySQL) Query(ctx context.Context, coll string, f Filter) ([]Document, error) {
	q := `SELECT id, body FROM documents WHERE collection = ?`
	args := []any{coll}
	if f.Field != "" {
		if err := checkField(f.Field); err != nil {
			return nil, err
		}
		q += ` AND JSON_UNQUOTE(JSON_EXTRACT(body, ?)) = ?`
		args = append(args, "$."+f.Field, stringValue(f.Value))
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
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

func (s *MySQL) Set(ctx context.Context, coll, id string, doc Document) error {
	raw, err := json.Marshal(body(doc))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)
		 ON DUPLICATE KEY UPDATE body = VALUES(body)`, coll, id, raw)
	return err
}

func (s *MySQL) Create(ctx context.Context, coll, id string, doc Document) error {
	raw, err := json.Marshal(body(doc))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`, coll, id, raw)
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return ErrAlreadyExists
	}
	return err
}

func (s *MySQL) Add(ctx context.Context, coll string, doc Document) (string, error) {
	id := uuid.NewString()
	if err := s.Create(ctx, coll, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

// Update reads the body under a row lock, applies the patch and writes it
// back in one transaction.
func (s *MySQL) Update(ctx context.Context, coll, id string, p Patch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	var raw []byte
	err = tx.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ? FOR UPDATE`, coll, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var d Document
	if err := json.Unmarshal(raw, &d); err != nil {
		return err
	}
	next, err := json.Marshal(apply(d, p))
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE documents SET body = ? WHERE collection = ? AND id = ?`, next, coll, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *MySQL) Delete(ctx context.Context, coll, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND id = ?`, coll, id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MySQL) Close(context.Context) error { return s.db.Close() }
