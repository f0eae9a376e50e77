// Package storage persists voice profiles. Two backends share the Store
// contract: a directory of JSON documents and a single SQLite database.
package storage

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const componentName = "VoiceProfileStorageComponent"

// Backend names accepted by Open.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// Store persists voice profiles by identifier.
type Store interface {
	Save(p voice.VoiceProfile) (SaveResult, error)
	Load(id string) (voice.VoiceProfile, error)
	List() ([]voice.Summary, error)
	Delete(id string) error
	Close() error
}

// SaveResult describes a completed save.
type SaveResult struct {
	Success   bool   `json:"success"`
	ProfileID string `json:"profile_id"`
	FilePath  string `json:"file_path"`
}

// Open returns the store for backend rooted at path. For the JSON backend
// path is a directory; for SQLite it is the database file.
func Open(backend, path string, rec *telemetry.Recorder) (Store, error) {
	switch backend {
	case "", BackendJSON:
		return NewJSONStore(path, rec)
	case BackendSQLite:
		return NewSQLiteStore(path, rec)
	}
	return nil, fmt.Errorf("storage: unknown backend %q", backend)
}

// ValidateID rejects identifiers that could escape the storage directory.
func ValidateID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") || strings.ContainsRune(id, 0) {
		return fmt.Errorf("%w: %q", voice.ErrInvalidProfileID, id)
	}
	return nil
}

const maxNameLen = 64

// SanitizeName turns a profile name into a file name fragment: letters,
// digits, '-' and '_' are kept, whitespace becomes '_', anything else is
// dropped.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)), r == '-', r == '_':
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteByte('_')
		}
		if b.Len() >= maxNameLen {
			break
		}
	}
	if b.Len() == 0 {
		return "profile"
	}
	return b.String()
}

// validateForSave checks p before it reaches a backend.
func validateForSave(p voice.VoiceProfile) error {
	if err := ValidateID(p.ProfileID); err != nil {
		return err
	}
	return p.Validate()
}
