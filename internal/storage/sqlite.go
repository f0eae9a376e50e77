package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

// SQLiteStore keeps profiles in a single SQLite database. The full profile
// document is stored as JSON next to the columns used for listing.
type SQLiteStore struct {
	db   *sql.DB
	path string
	rec  *telemetry.Recorder
}

// NewSQLiteStore opens (or creates) the database at path and migrates it.
func NewSQLiteStore(path string, rec *telemetry.Recorder) (*SQLiteStore, error) {
	if rec == nil {
		rec = telemetry.Discard()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("storage: create dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open database: %w", err)
	}
	// A single connection serialises writers without "database is locked".
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: ping database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path, rec: rec}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS profiles (
		profile_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		gender TEXT NOT NULL,
		language TEXT NOT NULL,
		document TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_profiles_name ON profiles(name);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save validates p, stamps UpdatedAt and upserts it.
func (s *SQLiteStore) Save(p voice.VoiceProfile) (SaveResult, error) {
	start := time.Now()
	s.rec.Trace(componentName, "STORAGE_SAVE", map[string]any{"profile_id": p.ProfileID, "name": p.Name}, 0)

	fail := func(err error) (SaveResult, error) {
		return SaveResult{}, s.rec.Failure(componentName, "STORAGE_SAVE_FAILED", "ERR_STORAGE_001",
			voice.RecoveryRetry, err, map[string]any{"profile_id": p.ProfileID})
	}
	if err := validateForSave(p); err != nil {
		return fail(err)
	}
	p.UpdatedAt = time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = p.UpdatedAt
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return fail(fmt.Errorf("storage: encode profile: %w", err))
	}

	query := `
		INSERT INTO profiles (profile_id, name, gender, language, document, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(profile_id) DO UPDATE SET
			name = excluded.name,
			gender = excluded.gender,
			language = excluded.language,
			document = excluded.document,
			updated_at = excluded.updated_at
	`
	if _, err := s.db.Exec(query,
		p.ProfileID,
		p.Name,
		string(p.Gender),
		p.Language,
		string(doc),
		p.CreatedAt.Format(time.RFC3339Nano),
		p.UpdatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return fail(fmt.Errorf("storage: upsert profile: %w", err))
	}

	s.rec.Trace(componentName, "STORAGE_SAVE_SUCCESS", map[string]any{"profile_id": p.ProfileID}, time.Since(start))
	return SaveResult{Success: true, ProfileID: p.ProfileID, FilePath: s.path}, nil
}

// Load reads the profile id.
func (s *SQLiteStore) Load(id string) (voice.VoiceProfile, error) {
	start := time.Now()
	s.rec.Trace(componentName, "STORAGE_LOAD", map[string]any{"profile_id": id}, 0)

	fail := func(err error) (voice.VoiceProfile, error) {
		return voice.VoiceProfile{}, s.rec.Failure(componentName, "STORAGE_LOAD_FAILED", "ERR_STORAGE_002",
			voice.RecoveryAbort, err, map[string]any{"profile_id": id})
	}
	if err := ValidateID(id); err != nil {
		return fail(err)
	}

	var doc string
	err := s.db.QueryRow(`SELECT document FROM profiles WHERE profile_id = ?`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return fail(fmt.Errorf("%w: %s", voice.ErrProfileNotFound, id))
	}
	if err != nil {
		return fail(fmt.Errorf("storage: query profile: %w", err))
	}
	var p voice.VoiceProfile
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return fail(fmt.Errorf("storage: decode profile: %w", err))
	}

	s.rec.Trace(componentName, "STORAGE_LOAD_SUCCESS", map[string]any{"profile_id": id}, time.Since(start))
	return p, nil
}

// List returns summaries of every stored profile ordered by name.
func (s *SQLiteStore) List() ([]voice.Summary, error) {
	start := time.Now()
	s.rec.Trace(componentName, "STORAGE_LIST", nil, 0)

	fail := func(err error) ([]voice.Summary, error) {
		return nil, s.rec.Failure(componentName, "STORAGE_LIST_FAILED", "ERR_STORAGE_003",
			voice.RecoveryRetry, err, nil)
	}
	rows, err := s.db.Query(`SELECT profile_id, name, gender, language, updated_at FROM profiles ORDER BY name, profile_id`)
	if err != nil {
		return fail(fmt.Errorf("storage: list profiles: %w", err))
	}
	defer rows.Close()

	out := []voice.Summary{}
	for rows.Next() {
		var sum voice.Summary
		var gender, updated string
		if err := rows.Scan(&sum.ProfileID, &sum.Name, &gender, &sum.Language, &updated); err != nil {
			return fail(fmt.Errorf("storage: scan profile: %w", err))
		}
		sum.Gender = voice.Gender(gender)
		if ts, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			sum.UpdatedAt = ts
		}
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return fail(fmt.Errorf("storage: iterate profiles: %w", err))
	}

	s.rec.Trace(componentName, "STORAGE_LIST_SUCCESS", map[string]any{"count": len(out)}, time.Since(start))
	return out, nil
}

// Delete removes the profile id.
func (s *SQLiteStore) Delete(id string) error {
	start := time.Now()
	s.rec.Trace(componentName, "STORAGE_DELETE", map[string]any{"profile_id": id}, 0)

	fail := func(err error) error {
		return s.rec.Failure(componentName, "STORAGE_DELETE_FAILED", "ERR_STORAGE_004",
			voice.RecoveryAbort, err, map[string]any{"profile_id": id})
	}
	if err := ValidateID(id); err != nil {
		return fail(err)
	}
	res, err := s.db.Exec(`DELETE FROM profiles WHERE profile_id = ?`, id)
	if err != nil {
		return fail(fmt.Errorf("storage: delete profile: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fail(fmt.Errorf("%w: %s", voice.ErrProfileNotFound, id))
	}

	s.rec.Trace(componentName, "STORAGE_DELETE_SUCCESS", map[string]any{"profile_id": id}, time.Since(start))
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
