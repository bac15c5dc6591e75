package infra

import (
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Ensure sqlcipher driver is registered.
	_ "github.com/mutecomm/go-sqlcipher/v4"

	"github.com/eliteGoblin/focusd/appguard/internal/domain"
)

const (
	storeDBName = "appguard.db"

	// Oldest sessions beyond this are pruned on insert.
	maxHistory = 1000

	metaBlockingEnabled = "blocking_enabled"
)

// EncryptedStore persists the block configuration and suppression history
// in a SQLCipher database.
type EncryptedStore struct {
	db     *sql.DB
	dbPath string
}

// NewEncryptedStore opens (or creates) the database in dataDir with key.
func NewEncryptedStore(dataDir string, key []byte) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096", dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// One writer avoids SQLITE_BUSY between the daemon's goroutines.
	db.SetMaxOpenConns(1)

	// A wrong key only surfaces on first real read.
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{db: db, dbPath: dbPath}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS blocked_apps (
		app_id TEXT PRIMARY KEY
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS interventions (
		id TEXT PRIMARY KEY,
		target_id TEXT NOT NULL,
		target_label TEXT NOT NULL,
		armed_at INTEGER NOT NULL,
		completed_at INTEGER NOT NULL,
		outcomes TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_interventions_armed ON interventions(armed_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- domain.ConfigRepository implementation ---

// LoadBlockConfiguration returns the persisted configuration, or nil if
// nothing was ever saved.
func (s *EncryptedStore) LoadBlockConfiguration() (*domain.BlockConfiguration, error) {
	var enabled string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, metaBlockingEnabled).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.Query(`SELECT app_id FROM blocked_apps`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []domain.AppID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, domain.AppID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	cfg := domain.NewBlockConfiguration(enabled == "1", ids)
	return &cfg, nil
}

// SaveBlockConfiguration replaces the persisted configuration.
func (s *EncryptedStore) SaveBlockConfiguration(cfg domain.BlockConfiguration) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM blocked_apps`); err != nil {
		return err
	}
	for _, id := range cfg.IDs() {
		if _, err := tx.Exec(`INSERT INTO blocked_apps (app_id) VALUES (?)`, string(id)); err != nil {
			return err
		}
	}

	enabled := "0"
	if cfg.Enabled {
		enabled = "1"
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, metaBlockingEnabled, enabled); err != nil {
		return err
	}
	return tx.Commit()
}

// --- domain.HistoryRecorder implementation ---

// RecordSession stores a finished session.
func (s *EncryptedStore) RecordSession(sess domain.SuppressionSession) error {
	outcomes, err := json.Marshal(sess.Outcomes)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO interventions (id, target_id, target_label, armed_at, completed_at, outcomes)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, string(sess.TargetID), sess.TargetLabel,
		sess.ArmedAt.UnixNano(), sess.CompletedAt.UnixNano(), string(outcomes),
	)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		DELETE FROM interventions WHERE id NOT IN (
			SELECT id FROM interventions ORDER BY armed_at DESC LIMIT ?
		)`, maxHistory)
	return err
}

// RecentSessions returns up to limit sessions, newest first.
func (s *EncryptedStore) RecentSessions(limit int) ([]domain.SuppressionSession, error) {
	rows, err := s.db.Query(`
		SELECT id, target_id, target_label, armed_at, completed_at, outcomes
		FROM interventions ORDER BY armed_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []domain.SuppressionSession
	for rows.Next() {
		var (
			sess                 domain.SuppressionSession
			targetID, outcomes   string
			armedAt, completedAt int64
		)
		if err := rows.Scan(&sess.ID, &targetID, &sess.TargetLabel, &armedAt, &completedAt, &outcomes); err != nil {
			return nil, err
		}
		sess.TargetID = domain.AppID(targetID)
		sess.ArmedAt = time.Unix(0, armedAt)
		sess.CompletedAt = time.Unix(0, completedAt)
		sess.Stage = domain.StageDone
		if err := json.Unmarshal([]byte(outcomes), &sess.Outcomes); err != nil {
			return nil, fmt.Errorf("failed to decode outcomes of %s: %w", sess.ID, err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// GetPath returns the database file path.
func (s *EncryptedStore) GetPath() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

var (
	_ domain.ConfigRepository = (*EncryptedStore)(nil)
	_ domain.HistoryRecorder  = (*EncryptedStore)(nil)
)
