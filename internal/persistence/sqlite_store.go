package persistence

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/MimeLyc/dualsub/internal/apperr"
	"github.com/MimeLyc/dualsub/internal/recorder"
	"github.com/MimeLyc/dualsub/internal/translation"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// SQLiteStore is the local persistent tier. It holds translation records and
// closed caption intervals. Capacity bounds the translations table; a write
// past it fails with KindQuotaExceeded.
type SQLiteStore struct {
	db       *sql.DB
	capacity int
}

func NewSQLiteStore(path string, capacity int) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, capacity: capacity}
	if err := store.init(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		return fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		version := migrationVersion(entry.Name())
		if version <= 0 {
			continue
		}
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations WHERE version = ?`, version).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", entry.Name(), err)
		}
		if exists > 0 {
			continue
		}
		// embed.FS paths always use forward slashes.
		content, err := migrationFiles.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES (?)`, version); err != nil {
			return fmt.Errorf("record migration %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// migrationVersion extracts the leading integer from a migration filename (e.g. "001_init.sql" → 1).
func migrationVersion(name string) int {
	for i, c := range name {
		if c < '0' || c > '9' {
			if i == 0 {
				return 0
			}
			n, _ := strconv.Atoi(name[:i])
			return n
		}
	}
	n, _ := strconv.Atoi(name)
	return n
}

func (s *SQLiteStore) Get(ctx context.Context, key translation.Key) (translation.Record, bool, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT id, video_id, model, source_lang, target_lang, source_text, translation, provider, updated_at
		 FROM translations
		 WHERE key_hash = ?`,
		key.Hash(),
	)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return translation.Record{}, false, nil
		}
		return translation.Record{}, false, err
	}
	return rec, true, nil
}

// Put inserts or replaces a record. A new row past the capacity is rejected
// with KindQuotaExceeded; replacing an existing row always succeeds.
func (s *SQLiteStore) Put(ctx context.Context, rec translation.Record) error {
	hash := rec.Key.Hash()
	if s.capacity > 0 {
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translations WHERE key_hash = ?`, hash).Scan(&exists); err != nil {
			return err
		}
		if exists == 0 {
			count, err := s.Count(ctx)
			if err != nil {
				return err
			}
			if count >= s.capacity {
				return apperr.QuotaExceeded("local translation store is full").
					WithContext("count", count).
					WithContext("capacity", s.capacity)
			}
		}
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO translations (
			key_hash, id, video_id, model, source_lang, target_lang, source_text, translation, provider, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key_hash) DO UPDATE SET
			translation=excluded.translation,
			provider=excluded.provider,
			updated_at=excluded.updated_at`,
		hash,
		rec.ID,
		rec.Key.VideoID,
		rec.Key.Model,
		rec.Key.SourceLang,
		rec.Key.TargetLang,
		rec.Key.Text,
		rec.Translation,
		rec.Provider,
		updatedAt.UnixMilli(),
	)
	return mapWriteError(err)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM translations`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// PruneOldest deletes the n least recently updated records.
func (s *SQLiteStore) PruneOldest(ctx context.Context, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(
		ctx,
		`DELETE FROM translations WHERE key_hash IN (
			SELECT key_hash FROM translations ORDER BY updated_at ASC, key_hash ASC LIMIT ?
		)`,
		n,
	)
	if err != nil {
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// ListByVideo returns the records cached for one video, oldest first.
func (s *SQLiteStore) ListByVideo(ctx context.Context, videoID string) ([]translation.Record, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, video_id, model, source_lang, target_lang, source_text, translation, provider, updated_at
		 FROM translations
		 WHERE video_id = ?
		 ORDER BY updated_at ASC, key_hash ASC`,
		videoID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]translation.Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		ret = append(ret, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

// SaveInterval stores a committed caption interval.
func (s *SQLiteStore) SaveInterval(ctx context.Context, iv recorder.Interval) error {
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO intervals (
			id, video_id, start_time, end_time, source_text, translation, translation_source, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		uuid.NewString(),
		iv.VideoID,
		iv.StartTime,
		iv.EndTime,
		iv.SourceText,
		iv.Translation,
		iv.TranslationSource,
		time.Now().UnixMilli(),
	)
	return mapWriteError(err)
}

// ListIntervals returns the stored intervals of a video ordered by start.
func (s *SQLiteStore) ListIntervals(ctx context.Context, videoID string) ([]recorder.Interval, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT video_id, start_time, end_time, source_text, translation, translation_source
		 FROM intervals
		 WHERE video_id = ?
		 ORDER BY start_time ASC, end_time ASC`,
		videoID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ret := make([]recorder.Interval, 0)
	for rows.Next() {
		var iv recorder.Interval
		if err := rows.Scan(&iv.VideoID, &iv.StartTime, &iv.EndTime, &iv.SourceText, &iv.Translation, &iv.TranslationSource); err != nil {
			return nil, err
		}
		ret = append(ret, iv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ret, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (translation.Record, error) {
	var rec translation.Record
	var updatedAt int64
	if err := row.Scan(
		&rec.ID,
		&rec.Key.VideoID,
		&rec.Key.Model,
		&rec.Key.SourceLang,
		&rec.Key.TargetLang,
		&rec.Key.Text,
		&rec.Translation,
		&rec.Provider,
		&updatedAt,
	); err != nil {
		return translation.Record{}, err
	}
	rec.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	return rec, nil
}

// mapWriteError reports SQLite's disk-full condition as QuotaExceeded.
func mapWriteError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "database or disk is full") {
		return apperr.Wrap(err, apperr.KindQuotaExceeded, "sqlite write rejected")
	}
	return err
}
