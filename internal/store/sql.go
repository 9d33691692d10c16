package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking (SQLite user_version):
// 0 - empty database
// 1 - entity_groups + entities
const currentSchemaVersion = 1

// Driver names accepted by OpenSQL.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "pgx"
)

// SQL is a Backend on database/sql, for SQLite or Postgres.
type SQL struct {
	db       *sql.DB
	postgres bool
}

var _ Backend = (*SQL)(nil)

// OpenSQLite creates or opens a SQLite database at path.
func OpenSQLite(path string) (*SQL, error) {
	return OpenSQL(DriverSQLite, path)
}

// OpenSQL opens a database and applies the schema.
//
// SQLite databases are configured with:
//   - WAL mode for concurrent reads during writes
//   - NORMAL synchronous mode
//   - 5-second busy timeout for lock contention
//   - a single connection, so commits serialize in-process
//
// Postgres databases lock entity_groups rows with SELECT ... FOR UPDATE in
// sorted order during commit.
//
// This function is idempotent - safe to call multiple times.
func OpenSQL(driver, dsn string) (*SQL, error) {
	switch driver {
	case DriverSQLite:
	case DriverPostgres, "postgres":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &SQL{db: db, postgres: driver == DriverPostgres}
	if !s.postgres {
		// SQLite only supports one writer at a time
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply pragmas: %w", err)
		}
	}
	if err := s.applySchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQL) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB.
func (s *SQL) DB() *sql.DB {
	return s.db
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (s *SQL) applySchema() error {
	for _, stmt := range strings.Split(schemaSQL, ";") {
		if strings.TrimSpace(stripComments(stmt)) == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema: %w", err)
		}
	}
	if s.postgres {
		return nil
	}
	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}
	if version < currentSchemaVersion {
		if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
			return fmt.Errorf("set user_version: %w", err)
		}
	}
	return nil
}

func stripComments(stmt string) string {
	var b strings.Builder
	for _, line := range strings.Split(stmt, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// rebind rewrites ? placeholders to $n for Postgres.
func (s *SQL) rebind(query string) string {
	if !s.postgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQL) version(ctx context.Context, q querier, group string, forUpdate bool) (int64, error) {
	query := "SELECT version FROM entity_groups WHERE group_key = ?"
	if forUpdate && s.postgres {
		query += " FOR UPDATE"
	}
	var v int64
	err := q.QueryRowContext(ctx, s.rebind(query), group).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query version: %w", err)
	}
	return v, nil
}

// Version implements Backend.
func (s *SQL) Version(ctx context.Context, group string) (int64, error) {
	return s.version(ctx, s.db, group, false)
}

// Get implements Backend.
func (s *SQL) Get(ctx context.Context, key Key) ([]byte, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		s.rebind("SELECT data FROM entities WHERE group_key = ? AND kind = ? AND id = ?"),
		key.Group, key.Kind, key.ID,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query entity: %w", err)
	}
	return []byte(data), nil
}

// List implements Backend.
func (s *SQL) List(ctx context.Context, group, kind, afterID string, limit int) ([]Item, error) {
	query := "SELECT group_key, kind, id, data FROM entities WHERE group_key = ? AND kind = ? AND id > ? ORDER BY id"
	args := []any{group, kind, afterID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryItems(ctx, query, args...)
}

// Scan implements Backend.
func (s *SQL) Scan(ctx context.Context, kind string, after Key, limit int) ([]Item, error) {
	query := `SELECT group_key, kind, id, data FROM entities
		WHERE kind = ? AND (group_key > ? OR (group_key = ? AND id > ?))
		ORDER BY group_key, id`
	args := []any{kind, after.Group, after.Group, after.ID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	return s.queryItems(ctx, query, args...)
}

func (s *SQL) queryItems(ctx context.Context, query string, args ...any) ([]Item, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var it Item
		var data string
		if err := rows.Scan(&it.Key.Group, &it.Key.Kind, &it.Key.ID, &data); err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		it.Data = []byte(data)
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return items, nil
}

// Commit implements Backend.
func (s *SQL) Commit(ctx context.Context, reads map[string]int64, writes []Mutation) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	written := make(map[string]bool)
	for _, w := range writes {
		written[w.Key.Group] = true
	}
	groups := make([]string, 0, len(reads)+len(written))
	for g := range reads {
		groups = append(groups, g)
	}
	for g := range written {
		if _, ok := reads[g]; !ok {
			groups = append(groups, g)
		}
	}
	slices.Sort(groups)

	for _, g := range groups {
		// Materialise the row first so FOR UPDATE has something to lock
		// even for groups that have never been written.
		if _, err := tx.ExecContext(ctx,
			s.rebind("INSERT INTO entity_groups (group_key, version) VALUES (?, 0) ON CONFLICT (group_key) DO NOTHING"),
			g,
		); err != nil {
			return fmt.Errorf("ensure group %s: %w", g, err)
		}
		current, err := s.version(ctx, tx, g, true)
		if err != nil {
			return err
		}
		if seen, ok := reads[g]; ok && seen != current {
			return ErrConflict
		}
	}

	for _, w := range writes {
		if w.Delete {
			if _, err := tx.ExecContext(ctx,
				s.rebind("DELETE FROM entities WHERE group_key = ? AND kind = ? AND id = ?"),
				w.Key.Group, w.Key.Kind, w.Key.ID,
			); err != nil {
				return fmt.Errorf("delete %s: %w", w.Key, err)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind(`INSERT INTO entities (group_key, kind, id, data) VALUES (?, ?, ?, ?)
				ON CONFLICT (group_key, kind, id) DO UPDATE SET data = excluded.data`),
			w.Key.Group, w.Key.Kind, w.Key.ID, string(w.Data),
		); err != nil {
			return fmt.Errorf("write %s: %w", w.Key, err)
		}
	}

	for _, g := range groups {
		if !written[g] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			s.rebind("UPDATE entity_groups SET version = version + 1 WHERE group_key = ?"), g,
		); err != nil {
			return fmt.Errorf("bump group %s: %w", g, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}
