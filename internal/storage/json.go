package storage

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

// JSONStore keeps one <name>_<id>.json document per profile in a directory.
type JSONStore struct {
	mu    sync.Mutex
	dir   string
	rec   *telemetry.Recorder
	log   *slog.Logger
	index map[string]string // profile id -> file path
}

// NewJSONStore opens dir, creating it when missing, and indexes the profile
// documents already present.
func NewJSONStore(dir string, rec *telemetry.Recorder) (*JSONStore, error) {
	if rec == nil {
		rec = telemetry.Discard()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create dir: %w", err)
	}
	s := &JSONStore{
		dir:   dir,
		rec:   rec,
		log:   rec.Component(componentName),
		index: make(map[string]string),
	}
	s.loadExisting()
	return s, nil
}

// Dir returns the storage directory.
func (s *JSONStore) Dir() string {
	return s.dir
}

// Save validates p, stamps UpdatedAt and writes it. A rename moves the
// document to its new file name.
func (s *JSONStore) Save(p voice.VoiceProfile) (SaveResult, error) {
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

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fail(fmt.Errorf("storage: encode profile: %w", err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.dir, SanitizeName(p.Name)+"_"+p.ProfileID+".json")
	if err := writeFileAtomic(target, data); err != nil {
		return fail(err)
	}
	if old, ok := s.index[p.ProfileID]; ok && old != target {
		if err := os.Remove(old); err != nil && !os.IsNotExist(err) {
			s.log.Warn("remove stale profile document", "path", old, "error", err)
		}
	}
	s.index[p.ProfileID] = target

	s.rec.Trace(componentName, "STORAGE_SAVE_SUCCESS", map[string]any{
		"profile_id": p.ProfileID,
		"file_path":  target,
	}, time.Since(start))
	return SaveResult{Success: true, ProfileID: p.ProfileID, FilePath: target}, nil
}

// Load reads the profile id.
func (s *JSONStore) Load(id string) (voice.VoiceProfile, error) {
	start := time.Now()
	s.rec.Trace(componentName, "STORAGE_LOAD", map[string]any{"profile_id": id}, 0)

	fail := func(err error) (voice.VoiceProfile, error) {
		return voice.VoiceProfile{}, s.rec.Failure(componentName, "STORAGE_LOAD_FAILED", "ERR_STORAGE_002",
			voice.RecoveryAbort, err, map[string]any{"profile_id": id})
	}
	if err := ValidateID(id); err != nil {
		return fail(err)
	}

	s.mu.Lock()
	path, ok := s.index[id]
	s.mu.Unlock()
	if !ok {
		return fail(fmt.Errorf("%w: %s", voice.ErrProfileNotFound, id))
	}
	p, err := readProfile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.mu.Lock()
			delete(s.index, id)
			s.mu.Unlock()
			return fail(fmt.Errorf("%w: %s", voice.ErrProfileNotFound, id))
		}
		return fail(err)
	}

	s.rec.Trace(componentName, "STORAGE_LOAD_SUCCESS", map[string]any{"profile_id": id}, time.Since(start))
	return p, nil
}

// List returns summaries of every stored profile ordered by name.
func (s *JSONStore) List() ([]voice.Summary, error) {
	start := time.Now()
	s.rec.Trace(componentName, "STORAGE_LIST", nil, 0)

	s.mu.Lock()
	paths := make([]string, 0, len(s.index))
	for _, p := range s.index {
		paths = append(paths, p)
	}
	s.mu.Unlock()

	out := make([]voice.Summary, 0, len(paths))
	for _, path := range paths {
		p, err := readProfile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, s.rec.Failure(componentName, "STORAGE_LIST_FAILED", "ERR_STORAGE_003",
				voice.RecoveryRetry, err, map[string]any{"file_path": path})
		}
		out = append(out, p.Summary())
	}
	sortSummaries(out)

	s.rec.Trace(componentName, "STORAGE_LIST_SUCCESS", map[string]any{"count": len(out)}, time.Since(start))
	return out, nil
}

// Delete removes the profile id.
func (s *JSONStore) Delete(id string) error {
	start := time.Now()
	s.rec.Trace(componentName, "STORAGE_DELETE", map[string]any{"profile_id": id}, 0)

	fail := func(err error) error {
		return s.rec.Failure(componentName, "STORAGE_DELETE_FAILED", "ERR_STORAGE_004",
			voice.RecoveryAbort, err, map[string]any{"profile_id": id})
	}
	if err := ValidateID(id); err != nil {
		return fail(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	path, ok := s.index[id]
	if !ok {
		return fail(fmt.Errorf("%w: %s", voice.ErrProfileNotFound, id))
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fail(fmt.Errorf("storage: remove: %w", err))
	}
	delete(s.index, id)

	s.rec.Trace(componentName, "STORAGE_DELETE_SUCCESS", map[string]any{"profile_id": id}, time.Since(start))
	return nil
}

// Close is a no-op; documents are written synchronously.
func (s *JSONStore) Close() error {
	return nil
}

// loadExisting scans dir for profile documents and rebuilds the index.
func (s *JSONStore) loadExisting() {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		s.log.Warn("glob existing profiles", "error", err)
		return
	}
	for _, path := range matches {
		p, err := readProfile(path)
		if err != nil {
			s.log.Warn("skipping unreadable profile document", "path", path, "error", err)
			continue
		}
		if ValidateID(p.ProfileID) != nil {
			s.log.Warn("skipping profile document with invalid id", "path", path)
			continue
		}
		s.index[p.ProfileID] = path
	}
	if len(s.index) > 0 {
		s.log.Info("loaded existing profiles", "count", len(s.index), "dir", s.dir)
	}
}

func readProfile(path string) (voice.VoiceProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return voice.VoiceProfile{}, err
	}
	var p voice.VoiceProfile
	if err := json.Unmarshal(data, &p); err != nil {
		return voice.VoiceProfile{}, fmt.Errorf("storage: decode %s: %w", filepath.Base(path), err)
	}
	return p, nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".profile-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("storage: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	return nil
}

func sortSummaries(s []voice.Summary) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Name != s[j].Name {
			return s[i].Name < s[j].Name
		}
		return s[i].ProfileID < s[j].ProfileID
	})
}
