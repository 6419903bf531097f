package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/deusflow/newsdesk/internal/news"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// insertChunk bounds the rows of one multi-row INSERT.
const insertChunk = 200

var schema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		mode TEXT NOT NULL,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		title TEXT NOT NULL,
		link TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT '',
		published_at BIGINT NOT NULL DEFAULT 0,
		description TEXT NOT NULL DEFAULT '',
		keyword TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (mode, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_link ON articles(mode, link)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at)`,
	`CREATE TABLE IF NOT EXISTS read_links (
		mode TEXT NOT NULL,
		link TEXT NOT NULL,
		PRIMARY KEY (mode, link)
	)`,
	`CREATE TABLE IF NOT EXISTS snapshots (
		mode TEXT PRIMARY KEY,
		saved_at BIGINT NOT NULL
	)`,
}

// SQLStore persists snapshots in PostgreSQL or SQLite.
type SQLStore struct {
	db     *sql.DB
	sb     sq.StatementBuilderType
	maxAge time.Duration
	logger *slog.Logger
}

var _ Store = (*SQLStore)(nil)

// OpenSQL connects with driver ("postgres" or "sqlite") and creates the schema.
func OpenSQL(ctx context.Context, driver, dsn string, maxAge time.Duration, logger *slog.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var format sq.PlaceholderFormat
	switch driver {
	case DriverPostgres:
		format = sq.Dollar
	case DriverSQLite:
		format = sq.Question
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if driver == DriverSQLite {
		// one connection keeps :memory: databases shared and serializes writers
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("set WAL mode: %w", err)
		}
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	s := &SQLStore{
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(format),
		maxAge: maxAge,
		logger: logger,
	}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("snapshot store connected", "driver", driver)
	return s, nil
}

func (s *SQLStore) initSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Save replaces everything stored for the snapshot's mode in one transaction.
func (s *SQLStore) Save(ctx context.Context, snap Snapshot) (err error) {
	if snap.SavedAt.IsZero() {
		snap.SavedAt = time.Now()
	}
	mode := modeKey(snap.Mode)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	for _, table := range []string{"articles", "read_links"} {
		if err = s.exec(ctx, tx, s.sb.Delete(table).Where(sq.Eq{"mode": mode})); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for start := 0; start < len(snap.Articles); start += insertChunk {
		end := min(start+insertChunk, len(snap.Articles))
		ins := s.sb.Insert("articles").
			Columns("mode", "id", "position", "title", "link", "source", "published_at", "description", "keyword")
		for i, a := range snap.Articles[start:end] {
			ins = ins.Values(mode, a.ID, start+i, a.Title, a.Link, a.Source, a.Timestamp, a.Description, a.Keyword)
		}
		if err = s.exec(ctx, tx, ins); err != nil {
			return fmt.Errorf("insert articles: %w", err)
		}
	}

	for start := 0; start < len(snap.Read); start += insertChunk {
		end := min(start+insertChunk, len(snap.Read))
		ins := s.sb.Insert("read_links").Columns("mode", "link")
		for _, l := range snap.Read[start:end] {
			ins = ins.Values(mode, l)
		}
		if err = s.exec(ctx, tx, ins); err != nil {
			return fmt.Errorf("insert read links: %w", err)
		}
	}

	upsert := s.sb.Insert("snapshots").
		Columns("mode", "saved_at").
		Values(mode, snap.SavedAt.UnixMilli()).
		Suffix("ON CONFLICT (mode) DO UPDATE SET saved_at = EXCLUDED.saved_at")
	if err = s.exec(ctx, tx, upsert); err != nil {
		return fmt.Errorf("record snapshot: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	s.logger.Debug("snapshot saved", "mode", mode, "articles", len(snap.Articles), "read", len(snap.Read))
	return nil
}

// Load reads the snapshot for mode, articles in their saved order.
func (s *SQLStore) Load(ctx context.Context, mode news.Kind) (Snapshot, error) {
	key := modeKey(mode)
	snap := Snapshot{Mode: mode}

	query, args, err := s.sb.Select("saved_at").From("snapshots").Where(sq.Eq{"mode": key}).ToSql()
	if err != nil {
		return snap, fmt.Errorf("build query: %w", err)
	}
	var savedAt int64
	switch err := s.db.QueryRowContext(ctx, query, args...).Scan(&savedAt); {
	case err == sql.ErrNoRows:
		return snap, ErrNotFound
	case err != nil:
		return snap, fmt.Errorf("load snapshot: %w", err)
	}
	snap.SavedAt = time.UnixMilli(savedAt)

	query, args, err = s.sb.
		Select("id", "title", "link", "source", "published_at", "description", "keyword").
		From("articles").
		Where(sq.Eq{"mode": key}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return snap, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return snap, fmt.Errorf("load articles: %w", err)
	}
	for rows.Next() {
		a := news.Article{Mode: mode}
		if err := rows.Scan(&a.ID, &a.Title, &a.Link, &a.Source, &a.Timestamp, &a.Description, &a.Keyword); err != nil {
			rows.Close()
			return snap, fmt.Errorf("scan article: %w", err)
		}
		snap.Articles = append(snap.Articles, a)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("load articles: %w", err)
	}

	query, args, err = s.sb.Select("link").From("read_links").Where(sq.Eq{"mode": key}).OrderBy("link").ToSql()
	if err != nil {
		return snap, fmt.Errorf("build query: %w", err)
	}
	rows, err = s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return snap, fmt.Errorf("load read links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var link string
		if err := rows.Scan(&link); err != nil {
			return snap, fmt.Errorf("scan read link: %w", err)
		}
		snap.Read = append(snap.Read, link)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("load read links: %w", err)
	}

	snap.Articles = dropExpired(snap.Articles, s.maxAge, time.Now())
	return snap, nil
}

// Cleanup deletes dated articles published before cutoff in every mode.
func (s *SQLStore) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	query, args, err := s.sb.Delete("articles").
		Where(sq.Gt{"published_at": news.UnknownTimestamp}).
		Where(sq.Lt{"published_at": cutoff.UnixMilli()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build query: %w", err)
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.logger.Info("cleaned up old articles", "rows", n)
	}
	return n, nil
}

// GetStats returns article counts per mode.
func (s *SQLStore) GetStats(ctx context.Context) (map[string]int, error) {
	query, args, err := s.sb.Select("mode", "COUNT(*)").From("articles").GroupBy("mode").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	stats := map[string]int{}
	total := 0
	for rows.Next() {
		var mode string
		var count int
		if err := rows.Scan(&mode, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats["mode_"+mode] = count
		total += count
	}
	stats["total_items"] = total
	return stats, rows.Err()
}

func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLStore) exec(ctx context.Context, tx *sql.Tx, b sq.Sqlizer) error {
	query, args, err := b.ToSql()
	if err != nil {
		return fmt.Errorf("build query: %w", err)
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}
