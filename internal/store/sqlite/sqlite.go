package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/savergiggio/Telgram-Server-Monitoring/internal/alerts"
)

// Store persists alert records in a sqlite database, one row per key.
// Each Save is a single upsert, so a crash mid-cycle can lose at most the
// last write and never corrupts other records.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir data dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA synchronous=NORMAL; PRAGMA temp_store=MEMORY;`); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS alert_records (
		key TEXT PRIMARY KEY,
		active INTEGER NOT NULL DEFAULT 0,
		first_triggered_at DATETIME,
		last_notified_at DATETIME,
		last_value REAL NOT NULL DEFAULT 0,
		reminder_count INTEGER NOT NULL DEFAULT 0
	);`)
	if err != nil {
		return fmt.Errorf("migrate failed: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Load(ctx context.Context, key alerts.Key) (*alerts.Record, error) {
	var rec alerts.Record
	var active int
	var first, last sql.NullTime
	err := s.db.QueryRowContext(ctx,
		`SELECT active, first_triggered_at, last_notified_at, last_value, reminder_count FROM alert_records WHERE key = ?`,
		string(key)).Scan(&active, &first, &last, &rec.LastValue, &rec.ReminderCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Active = active == 1
	if first.Valid {
		rec.FirstTriggeredAt = first.Time.UTC()
	}
	if last.Valid {
		rec.LastNotifiedAt = last.Time.UTC()
	}
	return &rec, nil
}

func (s *Store) Save(ctx context.Context, key alerts.Key, rec alerts.Record) error {
	active := 0
	if rec.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alert_records (key, active, first_triggered_at, last_notified_at, last_value, reminder_count)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET active=excluded.active, first_triggered_at=excluded.first_triggered_at,
			last_notified_at=excluded.last_notified_at, last_value=excluded.last_value, reminder_count=excluded.reminder_count`,
		string(key), active, nullTime(rec.FirstTriggeredAt), nullTime(rec.LastNotifiedAt), rec.LastValue, rec.ReminderCount)
	return err
}

func (s *Store) LoadAll(ctx context.Context) (map[alerts.Key]alerts.Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, active, first_triggered_at, last_notified_at, last_value, reminder_count FROM alert_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[alerts.Key]alerts.Record)
	for rows.Next() {
		var key string
		var rec alerts.Record
		var active int
		var first, last sql.NullTime
		if err := rows.Scan(&key, &active, &first, &last, &rec.LastValue, &rec.ReminderCount); err != nil {
			return nil, err
		}
		rec.Active = active == 1
		if first.Valid {
			rec.FirstTriggeredAt = first.Time.UTC()
		}
		if last.Valid {
			rec.LastNotifiedAt = last.Time.UTC()
		}
		out[alerts.Key(key)] = rec
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, key alerts.Key) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM alert_records WHERE key = ?`, string(key))
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}
