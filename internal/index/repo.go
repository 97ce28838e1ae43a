package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/starford/picshelf/internal/apperr"
	"github.com/starford/picshelf/internal/models"
	"github.com/starford/picshelf/internal/predicate"
)

// deleteChunk keeps DELETE ... IN (...) under SQLite's host parameter limit.
const deleteChunk = 500

const selectColumns = `SELECT file_path, ai_keywords, used_date, used FROM files`

func storeErr(op string, err error) error {
	return fmt.Errorf("index: %s: %w: %w", op, apperr.ErrStoreUnavailable, err)
}

// InsertIfAbsent adds a record for path with no keywords, no usedDate and
// used=false. It reports whether a new row was created.
func (db *DB) InsertIfAbsent(ctx context.Context, path string) (bool, error) {
	res, err := db.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO files (file_path, ai_keywords, used_date, used) VALUES (?, NULL, NULL, 0)`, path)
	if err != nil {
		return false, storeErr("insert", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, storeErr("insert rows affected", err)
	}
	return n == 1, nil
}

// FetchAll returns every record in path order.
func (db *DB) FetchAll(ctx context.Context) ([]models.Record, error) {
	rows, err := db.conn.QueryContext(ctx, selectColumns+` ORDER BY file_path`)
	if err != nil {
		return nil, storeErr("fetch all", err)
	}
	return scanRecords(rows)
}

// FetchFiltered returns up to limit records matching p in the given order.
func (db *DB) FetchFiltered(ctx context.Context, p predicate.Predicate, order models.Order, limit int) ([]models.Record, error) {
	where, args, err := whereClause(p)
	if err != nil {
		return nil, err
	}
	orderBy, err := orderClause(order)
	if err != nil {
		return nil, err
	}
	if limit < 1 {
		return nil, fmt.Errorf("index: limit %d: %w", limit, apperr.ErrInvalidFilterSpec)
	}

	var sb strings.Builder
	sb.WriteString(selectColumns)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	sb.WriteString(" ORDER BY ")
	sb.WriteString(orderBy)
	sb.WriteString(" LIMIT ?")
	args = append(args, limit)

	rows, err := db.conn.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, storeErr("fetch filtered", err)
	}
	return scanRecords(rows)
}

// Get returns the record stored under path.
func (db *DB) Get(ctx context.Context, path string) (*models.Record, error) {
	row := db.conn.QueryRowContext(ctx, selectColumns+` WHERE file_path = ?`, path)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("index: get %s: %w", path, apperr.ErrRecordNotFound)
	}
	if err != nil {
		return nil, storeErr("get", err)
	}
	return &rec, nil
}

// UpdateField sets a single column of the record at path.
func (db *DB) UpdateField(ctx context.Context, path string, field models.Field, value models.Value) error {
	if !field.Valid() {
		return fmt.Errorf("index: update %q: %w", field, apperr.ErrInvalidField)
	}
	if field == models.FieldUsed && value.IsAbsent() {
		return fmt.Errorf("index: update %s: used cannot be cleared: %w", path, apperr.ErrInvalidValue)
	}
	res, err := db.conn.ExecContext(ctx,
		fmt.Sprintf(`UPDATE files SET %s = ? WHERE file_path = ?`, field), value.SQLArg(), path)
	if err != nil {
		return storeErr("update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("update rows affected", err)
	}
	if n == 0 {
		return fmt.Errorf("index: update %s: %w", path, apperr.ErrRecordNotFound)
	}
	return nil
}

// DeleteMany removes the records for paths and returns how many rows were
// actually deleted. Duplicates are ignored. An empty set never touches the
// database.
func (db *DB) DeleteMany(ctx context.Context, paths []string) (int, error) {
	uniq := dedupe(paths)
	if len(uniq) == 0 {
		return 0, nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, storeErr("begin tx", err)
	}
	defer tx.Rollback() //nolint:errcheck

	total := 0
	for start := 0; start < len(uniq); start += deleteChunk {
		end := min(start+deleteChunk, len(uniq))
		chunk := uniq[start:end]

		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(chunk)), ",")
		args := make([]any, len(chunk))
		for i, p := range chunk {
			args[i] = p
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM files WHERE file_path IN (`+placeholders+`)`, args...)
		if err != nil {
			return 0, storeErr("delete", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, storeErr("delete rows affected", err)
		}
		total += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, storeErr("commit delete", err)
	}
	return total, nil
}

// Count returns the number of records.
func (db *DB) Count(ctx context.Context) (int, error) {
	var n int
	if err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM files`).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(s rowScanner) (models.Record, error) {
	var (
		rec      models.Record
		keywords sql.NullString
		usedDate sql.NullString
		used     sql.NullInt64
	)
	if err := s.Scan(&rec.Path, &keywords, &usedDate, &used); err != nil {
		return rec, err
	}
	if keywords.Valid {
		rec.Keywords = &keywords.String
	}
	if usedDate.Valid {
		rec.UsedDate = &usedDate.String
	}
	rec.Used = used.Valid && used.Int64 != 0
	return rec, nil
}

func scanRecords(rows *sql.Rows) ([]models.Record, error) {
	defer rows.Close()
	out := []models.Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, storeErr("scan", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("rows", err)
	}
	return out, nil
}

func dedupe(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}
