package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "greetbot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if _, err := db.ExecContext(context.Background(), migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Load(ctx context.Context) (State, error) {
	if s == nil || s.db == nil {
		return State{}, ErrClosed
	}
	st := NewState()

	rows, err := s.db.QueryContext(ctx, `SELECT id, mode, zone FROM recipients ORDER BY position`)
	if err != nil {
		return State{}, err
	}
	for rows.Next() {
		var (
			id, mode string
			zone     sql.NullString
		)
		if err := rows.Scan(&id, &mode, &zone); err != nil {
			_ = rows.Close()
			return State{}, err
		}
		st.Recipients = append(st.Recipients, id)
		st.Modes[id] = mode
		if zone.Valid && zone.String != "" {
			st.Zones[id] = zone.String
		}
	}
	if err := rows.Close(); err != nil {
		return State{}, err
	}

	wrows, err := s.db.QueryContext(ctx, `SELECT recipient_id, slot, text FROM windows ORDER BY recipient_id, slot, seq`)
	if err != nil {
		return State{}, err
	}
	defer wrows.Close()
	for wrows.Next() {
		var id, slot, text string
		if err := wrows.Scan(&id, &slot, &text); err != nil {
			return State{}, err
		}
		switch slot {
		case "morning":
			st.MorningWindows[id] = append(st.MorningWindows[id], text)
		case "night":
			st.NightWindows[id] = append(st.NightWindows[id], text)
		}
	}
	return st, wrows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, st State) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	st = st.normalize()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM windows`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM recipients`); err != nil {
		return err
	}
	for i, id := range st.Recipients {
		mode := st.Modes[id]
		if mode == "" {
			mode = "sweet"
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recipients(id, position, mode, zone) VALUES(?,?,?,?)`,
			id, i, mode, nullStr(st.Zones[id]),
		); err != nil {
			return err
		}
		if err := insertWindow(ctx, tx, id, "morning", st.MorningWindows[id]); err != nil {
			return err
		}
		if err := insertWindow(ctx, tx, id, "night", st.NightWindows[id]); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func insertWindow(ctx context.Context, tx *sql.Tx, id, slot string, texts []string) error {
	for seq, text := range texts {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO windows(recipient_id, slot, seq, text) VALUES(?,?,?,?)`,
			id, slot, seq, text,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO audit(at, recipient, action, detail) VALUES(?,?,?,?)`,
		e.At.Format(time.RFC3339Nano), e.Recipient, e.Action, nullStr(e.Detail),
	)
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
