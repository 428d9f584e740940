package storage

import (
	"database/sql"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"MetalWatch/internal/model"
)

// SQLiteStore persists preferences, the dispatch ledger, and the decision
// and error logs to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode keeps command reads responsive while workers write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS user_prefs (
			user_id              TEXT PRIMARY KEY,
			paused               INTEGER NOT NULL DEFAULT 0,
			muted_until          INTEGER NOT NULL DEFAULT 0,
			filter               TEXT NOT NULL DEFAULT '',
			timezone_offset      INTEGER NOT NULL DEFAULT -3,
			confluence_threshold INTEGER NOT NULL DEFAULT 2,
			confluence_scope     TEXT NOT NULL DEFAULT 'ambos',
			updated_at           INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS dispatch_records (
			instrument TEXT NOT NULL,
			severity   TEXT NOT NULL,
			last_sent  INTEGER NOT NULL,
			PRIMARY KEY (instrument, severity)
		)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			alert_id   TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			instrument TEXT,
			severity   TEXT,
			kind       TEXT NOT NULL,
			sent       INTEGER NOT NULL,
			reason     TEXT NOT NULL DEFAULT '',
			at         INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_at ON decisions(at)`,

		`CREATE TABLE IF NOT EXISTS error_log (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			component TEXT NOT NULL,
			operation TEXT NOT NULL,
			message   TEXT NOT NULL,
			at        INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_errors_at ON error_log(at)`,

		`CREATE TABLE IF NOT EXISTS daily_closes (
			instrument TEXT NOT NULL,
			day        INTEGER NOT NULL,
			open       REAL, high REAL, low REAL, close REAL, volume REAL,
			PRIMARY KEY (instrument, day)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

func (s *SQLiteStore) LoadPreferences() ([]model.UserPreference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT user_id, paused, muted_until, filter,
		timezone_offset, confluence_threshold, confluence_scope, updated_at
		FROM user_prefs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prefs []model.UserPreference
	for rows.Next() {
		var p model.UserPreference
		var paused int
		var mutedUnix, updatedUnix int64
		var filter, scope string
		if err := rows.Scan(&p.UserID, &paused, &mutedUnix, &filter,
			&p.TimezoneOffset, &p.ConfluenceThreshold, &scope, &updatedUnix); err != nil {
			return nil, err
		}
		p.Paused = paused != 0
		if mutedUnix > 0 {
			p.MutedUntil = time.Unix(mutedUnix, 0).UTC()
		}
		if filter != "" {
			p.Filter = strings.Split(filter, ",")
		}
		p.ConfluenceScope = model.ConfluenceScope(scope)
		p.UpdatedAt = time.Unix(updatedUnix, 0).UTC()
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

func (s *SQLiteStore) SavePreference(p model.UserPreference) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var mutedUnix int64
	if !p.MutedUntil.IsZero() {
		mutedUnix = p.MutedUntil.Unix()
	}
	paused := 0
	if p.Paused {
		paused = 1
	}
	_, err := s.db.Exec(`INSERT INTO user_prefs
		(user_id, paused, muted_until, filter, timezone_offset, confluence_threshold, confluence_scope, updated_at)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET
			paused=excluded.paused, muted_until=excluded.muted_until,
			filter=excluded.filter, timezone_offset=excluded.timezone_offset,
			confluence_threshold=excluded.confluence_threshold,
			confluence_scope=excluded.confluence_scope,
			updated_at=excluded.updated_at`,
		p.UserID, paused, mutedUnix, strings.Join(p.Filter, ","),
		p.TimezoneOffset, p.ConfluenceThreshold, string(p.ConfluenceScope),
		time.Now().Unix(),
	)
	return err
}

func (s *SQLiteStore) LoadDispatchRecords() ([]model.DispatchRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT instrument, severity, last_sent FROM dispatch_records`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []model.DispatchRecord
	for rows.Next() {
		var r model.DispatchRecord
		var sev string
		var unix int64
		if err := rows.Scan(&r.Instrument, &sev, &unix); err != nil {
			return nil, err
		}
		r.Severity = model.Severity(sev)
		r.LastSent = time.Unix(unix, 0).UTC()
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) SaveDispatchRecord(rec model.DispatchRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO dispatch_records (instrument, severity, last_sent)
		VALUES (?,?,?)
		ON CONFLICT(instrument, severity) DO UPDATE SET last_sent=excluded.last_sent`,
		rec.Instrument, string(rec.Severity), rec.LastSent.Unix(),
	)
	return err
}

func (s *SQLiteStore) RecordDecision(d model.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sent := 0
	if d.Sent {
		sent = 1
	}
	_, err := s.db.Exec(`INSERT INTO decisions
		(alert_id, user_id, instrument, severity, kind, sent, reason, at)
		VALUES (?,?,?,?,?,?,?,?)`,
		d.AlertID, d.UserID, d.Instrument, string(d.Severity), string(d.Kind),
		sent, string(d.Reason), d.At.Unix(),
	)
	return err
}

func (s *SQLiteStore) RecentDecisions(limit int) ([]model.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT alert_id, user_id, instrument, severity, kind, sent, reason, at
		FROM decisions ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Decision
	for rows.Next() {
		var d model.Decision
		var sev, kind, reason string
		var sent int
		var unix int64
		if err := rows.Scan(&d.AlertID, &d.UserID, &d.Instrument, &sev, &kind, &sent, &reason, &unix); err != nil {
			return nil, err
		}
		d.Severity = model.Severity(sev)
		d.Kind = model.AlertKind(kind)
		d.Sent = sent != 0
		d.Reason = model.SuppressReason(reason)
		d.At = time.Unix(unix, 0).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DecisionCounts(since time.Time) (sent, suppressed int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	err = s.db.QueryRow(`SELECT
		COALESCE(SUM(sent), 0),
		COALESCE(SUM(1-sent), 0)
		FROM decisions WHERE at >= ?`, since.Unix()).Scan(&sent, &suppressed)
	return sent, suppressed, err
}

func (s *SQLiteStore) LogError(component, operation, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO error_log (component, operation, message, at)
		VALUES (?,?,?,?)`, component, operation, message, time.Now().Unix())
	return err
}

func (s *SQLiteStore) RecentErrors(limit int) ([]ErrorEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT component, operation, message, at
		FROM error_log ORDER BY at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ErrorEntry
	for rows.Next() {
		var e ErrorEntry
		var unix int64
		if err := rows.Scan(&e.Component, &e.Operation, &e.Message, &unix); err != nil {
			return nil, err
		}
		e.At = time.Unix(unix, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveDailyClose(ticker string, d model.DailyClose) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`INSERT INTO daily_closes (instrument, day, open, high, low, close, volume)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(instrument, day) DO UPDATE SET
			open=excluded.open, high=excluded.high, low=excluded.low,
			close=excluded.close, volume=excluded.volume`,
		ticker, d.Day.Unix(), d.Open, d.High, d.Low, d.Close, d.Volume,
	)
	return err
}

func (s *SQLiteStore) LoadDailyCloses(ticker string, limit int) ([]model.DailyClose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT day, open, high, low, close, volume FROM (
			SELECT * FROM daily_closes WHERE instrument = ? ORDER BY day DESC LIMIT ?
		) ORDER BY day ASC`, ticker, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.DailyClose
	for rows.Next() {
		var d model.DailyClose
		var unix int64
		if err := rows.Scan(&unix, &d.Open, &d.High, &d.Low, &d.Close, &d.Volume); err != nil {
			return nil, err
		}
		d.Day = time.Unix(unix, 0).UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Cleanup(olderThan time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().Add(-olderThan).Unix()
	if _, err := s.db.Exec(`DELETE FROM decisions WHERE at < ?`, cutoff); err != nil {
		return err
	}
	_, err := s.db.Exec(`DELETE FROM error_log WHERE at < ?`, cutoff)
	return err
}

func (s *SQLiteStore) Close() error {
	log.Println("[INFO] closing sqlite store")
	return s.db.Close()
}
