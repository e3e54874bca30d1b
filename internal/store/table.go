package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// KV is one key/value pair returned from a range scan.
type KV[T any] struct {
	Key   string
	Value T
}

// Table is a typed view over one named table in the store. Values are
// JSON-encoded; T should be a plain struct (the models in pkg/models).
type Table[T any] struct {
	store *Store
	name  string
}

// NewTable binds a typed table to name, creating it on first access.
func NewTable[T any](s *Store, name string) *Table[T] {
	return &Table[T]{store: s, name: name}
}

// Get fetches the value stored under key. Returns ErrNotFound if absent.
func (t *Table[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	if err := t.store.ensureTable(ctx, t.name); err != nil {
		return zero, err
	}
	row := t.store.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT value FROM %q WHERE key = ?`, t.name), key)

	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return zero, ErrNotFound
		}
		return zero, fmt.Errorf("store: get %s/%s: %w", t.name, key, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("store: decode %s/%s: %w", t.name, key, err)
	}
	return v, nil
}

// Put inserts or overwrites the value stored under key.
func (t *Table[T]) Put(ctx context.Context, key string, v T) error {
	if err := t.store.ensureTable(ctx, t.name); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s: %w", t.name, key, err)
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	_, err = t.store.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, t.name),
		key, raw)
	if err != nil {
		return fmt.Errorf("store: put %s/%s: %w", t.name, key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (t *Table[T]) Delete(ctx context.Context, key string) error {
	if err := t.store.ensureTable(ctx, t.name); err != nil {
		return err
	}
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	_, err := t.store.db.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE key = ?`, t.name), key)
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", t.name, key, err)
	}
	return nil
}

// ScanRange returns every entry with key in [start, end) in key order,
// up to limit entries (0 means unlimited).
func (t *Table[T]) ScanRange(ctx context.Context, start, end string, limit int) ([]KV[T], error) {
	if err := t.store.ensureTable(ctx, t.name); err != nil {
		return nil, err
	}
	q := fmt.Sprintf(`SELECT key, value FROM %q WHERE key >= ? AND key < ? ORDER BY key ASC`, t.name)
	args := []any{start, end}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := t.store.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: scan %s: %w", t.name, err)
	}
	defer rows.Close()
	return scanRows[T](rows, t.name)
}

// ScanPrefix returns every entry whose key starts with prefix, in key
// order, up to limit entries (0 means unlimited).
func (t *Table[T]) ScanPrefix(ctx context.Context, prefix string, limit int) ([]KV[T], error) {
	return t.ScanRange(ctx, prefix, prefix+"\xff", limit)
}

// Count returns the number of entries currently in the table.
func (t *Table[T]) Count(ctx context.Context) (int, error) {
	if err := t.store.ensureTable(ctx, t.name); err != nil {
		return 0, err
	}
	var n int
	err := t.store.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT COUNT(*) FROM %q`, t.name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: count %s: %w", t.name, err)
	}
	return n, nil
}

func scanRows[T any](rows *sql.Rows, table string) ([]KV[T], error) {
	var out []KV[T]
	for rows.Next() {
		var key string
		var raw []byte
		if err := rows.Scan(&key, &raw); err != nil {
			return nil, fmt.Errorf("store: scan row %s: %w", table, err)
		}
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return nil, fmt.Errorf("store: decode row %s/%s: %w", table, key, err)
		}
		out = append(out, KV[T]{Key: key, Value: v})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// TxTable is a typed view over one named table, scoped to a running Tx.
type TxTable[T any] struct {
	tx   *Tx
	name string
}

// Table binds name to the transaction, creating the table if needed.
func TableTx[T any](ctx context.Context, tx *Tx, name string) (*TxTable[T], error) {
	if err := tx.store.ensureTableLocked(ctx, tx.tx, name); err != nil {
		return nil, err
	}
	return &TxTable[T]{tx: tx, name: name}, nil
}

// Get fetches the value stored under key within the transaction.
func (t *TxTable[T]) Get(ctx context.Context, key string) (T, error) {
	var zero T
	row := t.tx.tx.QueryRowContext(ctx, fmt.Sprintf(`SELECT value FROM %q WHERE key = ?`, t.name), key)
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == sql.ErrNoRows {
			return zero, ErrNotFound
		}
		return zero, fmt.Errorf("store: get %s/%s: %w", t.name, key, err)
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return zero, fmt.Errorf("store: decode %s/%s: %w", t.name, key, err)
	}
	return v, nil
}

// Put inserts or overwrites the value stored under key within the
// transaction.
func (t *TxTable[T]) Put(ctx context.Context, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %s/%s: %w", t.name, key, err)
	}
	_, err = t.tx.tx.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`, t.name),
		key, raw)
	if err != nil {
		return fmt.Errorf("store: put %s/%s: %w", t.name, key, err)
	}
	return nil
}

// Delete removes key within the transaction.
func (t *TxTable[T]) Delete(ctx context.Context, key string) error {
	_, err := t.tx.tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %q WHERE key = ?`, t.name), key)
	if err != nil {
		return fmt.Errorf("store: delete %s/%s: %w", t.name, key, err)
	}
	return nil
}

// ScanPrefix returns every entry whose key starts with prefix within the
// transaction, in key order.
func (t *TxTable[T]) ScanPrefix(ctx context.Context, prefix string) ([]KV[T], error) {
	rows, err := t.tx.tx.QueryContext(ctx,
		fmt.Sprintf(`SELECT key, value FROM %q WHERE key >= ? AND key < ? ORDER BY key ASC`, t.name),
		prefix, prefix+"\xff")
	if err != nil {
		return nil, fmt.Errorf("store: scan %s: %w", t.name, err)
	}
	defer rows.Close()
	return scanRows[T](rows, t.name)
}
