package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "embed"

	_ "modernc.org/sqlite"

	"github.com/IshaanNene/markbook/internal/types"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// SQLiteStore keeps bookmarks in a local SQLite database.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite path is required")
	}

	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; sqlite serializes anyway.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable wal: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{
		db:     db,
		path:   path,
		logger: logger.With("component", "sqlite_store"),
	}
	s.logger.Info("sqlite store opened", "path", path)
	return s, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("apply schema: %w", err)
	}

	var versionStr string
	err = tx.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = 'schema_version'").Scan(&versionStr)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, "INSERT INTO metadata(key, value) VALUES('schema_version', ?)", strconv.Itoa(schemaVersion)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert schema version: %w", err)
		}
		return tx.Commit()
	}
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("read schema version: %w", err)
	}

	version, err := strconv.Atoi(versionStr)
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("parse schema version: %w", err)
	}
	if version > schemaVersion {
		_ = tx.Rollback()
		return fmt.Errorf("database schema version %d is newer than supported %d", version, schemaVersion)
	}

	return tx.Commit()
}

func (s *SQLiteStore) Name() string { return "sqlite" }

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const upsertSQL = `INSERT INTO bookmarks
    (tweet_id, url, text, author_name, author_handle, created_at,
     media_urls, like_count, retweet_count, reply_count, raw_json, ingested_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(tweet_id) DO UPDATE SET
    text = excluded.text,
    author_name = excluded.author_name,
    like_count = excluded.like_count,
    retweet_count = excluded.retweet_count,
    reply_count = excluded.reply_count,
    raw_json = excluded.raw_json,
    ingested_at = excluded.ingested_at`

func (s *SQLiteStore) Upsert(ctx context.Context, records []types.Record) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.wrap(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return 0, s.wrap(fmt.Errorf("prepare upsert: %w", err))
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, rec := range records {
		if rec.ID == "" {
			return 0, s.wrap(errors.New("tweet_id is required"))
		}
		media := rec.MediaURLs
		if media == nil {
			media = []string{}
		}
		mediaJSON, err := json.Marshal(media)
		if err != nil {
			return 0, s.wrap(fmt.Errorf("encode media_urls: %w", err))
		}
		raw, err := json.Marshal(rec)
		if err != nil {
			return 0, s.wrap(fmt.Errorf("encode record: %w", err))
		}

		if _, err := stmt.ExecContext(ctx,
			rec.ID, rec.URL, rec.Text,
			nullString(rec.AuthorName), nullString(rec.AuthorHandle), nullString(rec.CreatedAt),
			string(mediaJSON), rec.LikeCount, rec.RetweetCount, rec.ReplyCount,
			string(raw), now,
		); err != nil {
			return 0, s.wrap(fmt.Errorf("upsert %s: %w", rec.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, s.wrap(fmt.Errorf("commit: %w", err))
	}

	s.logger.Debug("bookmarks upserted", "count", len(records))
	return len(records), nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		TopAuthors: []AuthorCount{},
		Categories: []CategoryCount{},
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookmarks").Scan(&st.Total); err != nil {
		return nil, s.wrap(fmt.Errorf("count bookmarks: %w", err))
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(DISTINCT author_handle) FROM bookmarks").Scan(&st.Authors); err != nil {
		return nil, s.wrap(fmt.Errorf("count authors: %w", err))
	}

	var earliest, latest sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT MIN(created_at), MAX(created_at) FROM bookmarks").Scan(&earliest, &latest); err != nil {
		return nil, s.wrap(fmt.Errorf("date range: %w", err))
	}
	st.Earliest = fromNull(earliest)
	st.Latest = fromNull(latest)

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM bookmarks WHERE category IS NULL").Scan(&st.Uncategorized); err != nil {
		return nil, s.wrap(fmt.Errorf("count uncategorized: %w", err))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT author_handle, author_name, COUNT(*) AS count
		FROM bookmarks GROUP BY author_handle
		ORDER BY count DESC, author_handle ASC LIMIT ?`, topAuthorLimit)
	if err != nil {
		return nil, s.wrap(fmt.Errorf("top authors: %w", err))
	}
	for rows.Next() {
		var handle, name sql.NullString
		var ac AuthorCount
		if err := rows.Scan(&handle, &name, &ac.Count); err != nil {
			rows.Close()
			return nil, s.wrap(fmt.Errorf("scan author: %w", err))
		}
		ac.Handle = fromNull(handle)
		ac.Name = fromNull(name)
		st.TopAuthors = append(st.TopAuthors, ac)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT category, COUNT(*) AS count
		FROM bookmarks WHERE category IS NOT NULL
		GROUP BY category ORDER BY count DESC, category ASC`)
	if err != nil {
		return nil, s.wrap(fmt.Errorf("categories: %w", err))
	}
	defer rows.Close()
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, s.wrap(fmt.Errorf("scan category: %w", err))
		}
		st.Categories = append(st.Categories, cc)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err)
	}

	return st, nil
}

const bookmarkColumns = `tweet_id, url, text, author_name, author_handle, created_at,
	media_urls, like_count, retweet_count, reply_count, category, ingested_at`

func (s *SQLiteStore) Uncategorized(ctx context.Context, limit int) ([]Bookmark, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, "SELECT "+bookmarkColumns+
		" FROM bookmarks WHERE category IS NULL ORDER BY id LIMIT ?", limit)
	if err != nil {
		return nil, s.wrap(fmt.Errorf("query uncategorized: %w", err))
	}
	defer rows.Close()
	return s.scanBookmarks(rows)
}

var sqliteOrder = map[Sort]string{
	SortNewest:    "created_at DESC, id DESC",
	SortOldest:    "created_at ASC, id ASC",
	SortLiked:     "like_count DESC, id DESC",
	SortRetweeted: "retweet_count DESC, id DESC",
	SortDiscussed: "reply_count DESC, id DESC",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (s *SQLiteStore) Search(ctx context.Context, q Query) ([]Bookmark, error) {
	q, err := q.normalize()
	if err != nil {
		return nil, s.wrap(err)
	}

	var (
		where []string
		args  []any
	)
	if q.Search != "" {
		pattern := "%" + likeEscaper.Replace(q.Search) + "%"
		where = append(where, `(text LIKE ? ESCAPE '\' OR author_name LIKE ? ESCAPE '\' OR author_handle LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if q.Author != "" {
		where = append(where, "author_handle = ?")
		args = append(args, q.Author)
	}
	if q.Category != "" {
		where = append(where, "category = ?")
		args = append(args, q.Category)
	}

	query := "SELECT " + bookmarkColumns + " FROM bookmarks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY " + sqliteOrder[q.Sort] + " LIMIT ?"
	limit := q.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(fmt.Errorf("search bookmarks: %w", err))
	}
	defer rows.Close()
	return s.scanBookmarks(rows)
}

func (s *SQLiteStore) Delete(ctx context.Context, tweetID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM bookmarks WHERE tweet_id = ?", tweetID)
	if err != nil {
		return false, s.wrap(fmt.Errorf("delete %s: %w", tweetID, err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, s.wrap(err)
	}
	if n > 0 {
		s.logger.Info("bookmark deleted", "tweet_id", tweetID)
	}
	return n > 0, nil
}

func (s *SQLiteStore) scanBookmarks(rows *sql.Rows) ([]Bookmark, error) {
	out := []Bookmark{}
	for rows.Next() {
		var (
			b                   Bookmark
			text, category      sql.NullString
			name, handle, ctime sql.NullString
			media, ingested     string
		)
		if err := rows.Scan(&b.ID, &b.URL, &text, &name, &handle, &ctime, &media,
			&b.LikeCount, &b.RetweetCount, &b.ReplyCount, &category, &ingested); err != nil {
			return nil, s.wrap(fmt.Errorf("scan bookmark: %w", err))
		}
		b.Text = text.String
		b.AuthorName = fromNull(name)
		b.AuthorHandle = fromNull(handle)
		b.CreatedAt = fromNull(ctime)
		b.Category = fromNull(category)
		if err := json.Unmarshal([]byte(media), &b.MediaURLs); err != nil {
			s.logger.Warn("bad media_urls column", "tweet_id", b.ID, "error", err)
			b.MediaURLs = []string{}
		}
		if t, err := time.Parse(time.RFC3339Nano, ingested); err == nil {
			b.IngestedAt = t
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(err)
	}
	return out, nil
}

func (s *SQLiteStore) SetCategories(ctx context.Context, categories map[string]string) (int, error) {
	if len(categories) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, s.wrap(fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	updated := 0
	for id, category := range categories {
		res, err := tx.ExecContext(ctx, "UPDATE bookmarks SET category = ? WHERE tweet_id = ?", category, id)
		if err != nil {
			return 0, s.wrap(fmt.Errorf("set category %s: %w", id, err))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, s.wrap(err)
		}
		updated += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, s.wrap(fmt.Errorf("commit: %w", err))
	}
	return updated, nil
}

func (s *SQLiteStore) wrap(err error) error {
	return &types.StorageError{Backend: "sqlite", Err: err}
}

func nullString(p *string) sql.NullString {
	if p == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *p, Valid: true}
}

func fromNull(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return types.StringPtr(ns.String)
}
