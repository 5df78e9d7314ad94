package storage

import (
	"context"
	"database/sql"
	"errors"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// dialect holds the statements that differ between database engines.
type dialect struct {
	name        string
	getEntry    string
	upsertEntry string
	// insertIfEmpty creates the entry or overwrites an empty value.
	insertIfEmpty string
	swapEntry     string
	deleteEntry   string
	listKeys      string
	entryExists   string
	deleteAll     string
}

var sqliteDialect = dialect{
	name:     "sqlite",
	getEntry: `SELECT value FROM kv_entries WHERE key = ?`,
	upsertEntry: `INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
	insertIfEmpty: `INSERT INTO kv_entries (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
WHERE kv_entries.value = ''`,
	swapEntry:   `UPDATE kv_entries SET value = ?, updated_at = CURRENT_TIMESTAMP WHERE key = ? AND value = ?`,
	deleteEntry: `DELETE FROM kv_entries WHERE key = ?`,
	listKeys:    `SELECT key FROM kv_entries ORDER BY key`,
	entryExists: `SELECT EXISTS(SELECT 1 FROM kv_entries WHERE key = ?)`,
	deleteAll:   `DELETE FROM kv_entries`,
}

var postgresDialect = dialect{
	name:     "postgres",
	getEntry: `SELECT value FROM kv_entries WHERE key = $1`,
	upsertEntry: `INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`,
	insertIfEmpty: `INSERT INTO kv_entries (key, value, updated_at) VALUES ($1, $2, NOW())
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
WHERE kv_entries.value = ''`,
	swapEntry:   `UPDATE kv_entries SET value = $1, updated_at = NOW() WHERE key = $2 AND value = $3`,
	deleteEntry: `DELETE FROM kv_entries WHERE key = $1`,
	listKeys:    `SELECT key FROM kv_entries ORDER BY key`,
	entryExists: `SELECT EXISTS(SELECT 1 FROM kv_entries WHERE key = $1)`,
	deleteAll:   `DELETE FROM kv_entries`,
}

// Queries runs the kv_entries statements for one dialect.
type Queries struct {
	db DBTX
	d  dialect
}

func newQueries(db DBTX, d dialect) *Queries {
	return &Queries{db: db, d: d}
}

// WithTx returns a copy bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, d: q.d}
}

func (q *Queries) GetEntry(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := q.db.QueryRowContext(ctx, q.d.getEntry, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (q *Queries) UpsertEntry(ctx context.Context, key, value string) error {
	_, err := q.db.ExecContext(ctx, q.d.upsertEntry, key, value)
	return err
}

// SwapEntry replaces the value of key only when it still equals old and
// reports whether a row changed.
func (q *Queries) SwapEntry(ctx context.Context, key, old, value string) (bool, error) {
	var (
		res sql.Result
		err error
	)
	if old == "" {
		res, err = q.db.ExecContext(ctx, q.d.insertIfEmpty, key, value)
	} else {
		res, err = q.db.ExecContext(ctx, q.d.swapEntry, value, key, old)
	}
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (q *Queries) DeleteEntry(ctx context.Context, key string) error {
	_, err := q.db.ExecContext(ctx, q.d.deleteEntry, key)
	return err
}

func (q *Queries) ListKeys(ctx context.Context) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, q.d.listKeys)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

func (q *Queries) EntryExists(ctx context.Context, key string) (bool, error) {
	var exists bool
	if err := q.db.QueryRowContext(ctx, q.d.entryExists, key).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

func (q *Queries) DeleteAll(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, q.d.deleteAll)
	return err
}
