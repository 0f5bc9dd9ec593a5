package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/deferring/internal/relation"
)

// execer is the subset of *sql.DB and *sql.Tx used by record writes.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertRecord validates r, assigns its key when empty, inserts it, and sets
// r.ID.
func (s *Store) InsertRecord(ctx context.Context, r *Record) error {
	if err := s.insertRecord(ctx, s.db, r); err != nil {
		return fmt.Errorf("insert record: %w", err)
	}
	return nil
}

func (s *Store) insertRecord(ctx context.Context, q execer, r *Record) error {
	if _, persisted := r.Identity(); persisted {
		return fmt.Errorf("record %d is already persisted", r.ID)
	}
	if err := r.Validate(); err != nil {
		return err
	}
	attrs, err := marshalAttrs(r.Attrs)
	if err != nil {
		return err
	}
	if r.Key == "" {
		r.Key = s.keys.Generate()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO records (key, kind, name, attrs)
		VALUES (?, ?, ?, ?)
	`, r.Key, r.Kind, r.Name, attrs)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	r.ID = relation.ID(id)
	return nil
}

// SaveRecord writes the name and attributes of a persisted record.
func (s *Store) SaveRecord(ctx context.Context, r *Record) error {
	if err := s.saveRecord(ctx, s.db, r); err != nil {
		return fmt.Errorf("save record: %w", err)
	}
	return nil
}

func (s *Store) saveRecord(ctx context.Context, q execer, r *Record) error {
	if _, persisted := r.Identity(); !persisted {
		return errors.New("record is not persisted")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	attrs, err := marshalAttrs(r.Attrs)
	if err != nil {
		return err
	}
	res, err := q.ExecContext(ctx, `
		UPDATE records SET name = ?, attrs = ? WHERE id = ?
	`, r.Name, attrs, int64(r.ID))
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record %d not found", r.ID)
	}
	return nil
}

// FindRecords returns the records with the given ids, ordered by id. Missing
// ids are omitted. An empty kind matches every kind.
func (s *Store) FindRecords(ctx context.Context, kind string, ids []relation.ID) ([]*Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query := `SELECT id, key, kind, name, attrs FROM records WHERE id IN (` + placeholders(len(ids)) + `)`
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, int64(id))
	}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}
	query += ` ORDER BY id ASC`

	recs, err := queryRecords(ctx, s.db, query, args...)
	if err != nil {
		return nil, fmt.Errorf("find records: %w", err)
	}
	return recs, nil
}

// FindRecordByKey returns the record with the given external key.
func (s *Store) FindRecordByKey(ctx context.Context, key string) (*Record, bool, error) {
	recs, err := queryRecords(ctx, s.db, `
		SELECT id, key, kind, name, attrs FROM records WHERE key = ?
	`, key)
	if err != nil {
		return nil, false, fmt.Errorf("find record by key: %w", err)
	}
	if len(recs) == 0 {
		return nil, false, nil
	}
	return recs[0], true, nil
}

// ListRecords returns every record of kind ordered by id.
func (s *Store) ListRecords(ctx context.Context, kind string) ([]*Record, error) {
	recs, err := queryRecords(ctx, s.db, `
		SELECT id, key, kind, name, attrs FROM records WHERE kind = ? ORDER BY id ASC
	`, kind)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return recs, nil
}

// deleteRecords deletes the records with the given ids. Their links are
// removed by cascade. It returns the number of deleted rows.
func deleteRecords(ctx context.Context, q execer, ids []relation.ID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	res, err := q.ExecContext(ctx, `DELETE FROM records WHERE id IN (`+placeholders(len(ids))+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func queryRecords(ctx context.Context, q execer, query string, args ...any) ([]*Record, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		var (
			r     Record
			id    int64
			attrs string
		)
		if err := rows.Scan(&id, &r.Key, &r.Kind, &r.Name, &attrs); err != nil {
			return nil, err
		}
		r.ID = relation.ID(id)
		if r.Attrs, err = unmarshalAttrs(attrs); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
