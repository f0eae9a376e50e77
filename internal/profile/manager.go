// Package profile creates, clones and updates voice profiles and keeps the
// working set in an in-memory cache keyed by profile identifier.
package profile

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const componentName = "VoiceProfileComponent"

// Manager owns the profile cache. It is safe for concurrent use.
type Manager struct {
	rec *telemetry.Recorder

	mu    sync.RWMutex
	cache map[string]voice.VoiceProfile
}

// NewManager returns an empty manager. A nil recorder discards telemetry.
func NewManager(rec *telemetry.Recorder) *Manager {
	if rec == nil {
		rec = telemetry.Discard()
	}
	return &Manager{
		rec:   rec,
		cache: make(map[string]voice.VoiceProfile),
	}
}

// CreateProfile builds a profile from defaults plus the set fields of update,
// validates it and caches it. A non-empty name overrides update.Name; when
// both are empty the profile keeps the default name.
func (m *Manager) CreateProfile(name string, update voice.ProfileUpdate) (voice.VoiceProfile, error) {
	start := time.Now()
	m.rec.Trace(componentName, "PROFILE_CREATE", map[string]any{"name": name}, 0)

	p := voice.NewProfile(name)
	update.Apply(&p)
	switch {
	case name != "":
		p.Name = name
	case p.Name == "":
		p.Name = voice.DefaultProfileName
	}
	if err := p.Validate(); err != nil {
		return voice.VoiceProfile{}, m.rec.Failure(componentName, "PROFILE_CREATE_FAILED", "ERR_PROFILE_001",
			voice.RecoveryRetry, err, map[string]any{"name": name})
	}

	m.put(p)
	m.rec.Trace(componentName, "PROFILE_CREATE_SUCCESS", map[string]any{
		"profile_id": p.ProfileID,
		"name":       p.Name,
	}, time.Since(start))
	return p.Clone(), nil
}

// LoadPreset clones the named preset under a new identifier and caches it.
func (m *Manager) LoadPreset(name string) (voice.VoiceProfile, error) {
	return m.derive(name, "", voice.ProfileUpdate{})
}

// DerivePreset clones the named preset, applies update on top of it and
// caches the result. A non-empty name overrides both the preset's name and
// update.Name.
func (m *Manager) DerivePreset(preset, name string, update voice.ProfileUpdate) (voice.VoiceProfile, error) {
	return m.derive(preset, name, update)
}

func (m *Manager) derive(preset, name string, update voice.ProfileUpdate) (voice.VoiceProfile, error) {
	start := time.Now()
	m.rec.Trace(componentName, "PROFILE_LOAD_PRESET", map[string]any{"preset": preset}, 0)

	p, ok := lookupPreset(preset)
	if !ok {
		return voice.VoiceProfile{}, m.rec.Failure(componentName, "PROFILE_LOAD_FAILED", "ERR_PROFILE_002",
			voice.RecoveryAbort, fmt.Errorf("%w: %s", voice.ErrPresetNotFound, preset), map[string]any{"preset": preset})
	}
	now := time.Now().UTC()
	p.ProfileID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now

	update.Apply(&p)
	if name != "" {
		p.Name = name
	}
	if err := p.Validate(); err != nil {
		return voice.VoiceProfile{}, m.rec.Failure(componentName, "PROFILE_LOAD_FAILED", "ERR_PROFILE_001",
			voice.RecoveryRetry, err, map[string]any{"preset": preset, "name": name})
	}

	m.put(p)
	m.rec.Trace(componentName, "PROFILE_LOAD_SUCCESS", map[string]any{
		"preset":     preset,
		"profile_id": p.ProfileID,
	}, time.Since(start))
	return p.Clone(), nil
}

// UpdateProfile applies update to the cached profile id. The change is
// validated on a copy and committed only when valid.
func (m *Manager) UpdateProfile(id string, update voice.ProfileUpdate) (voice.VoiceProfile, error) {
	start := time.Now()
	m.rec.Trace(componentName, "PROFILE_UPDATE", map[string]any{
		"profile_id": id,
		"updates":    update.Fields(),
	}, 0)

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.cache[id]
	if !ok {
		return voice.VoiceProfile{}, m.rec.Failure(componentName, "PROFILE_UPDATE_FAILED", "ERR_PROFILE_003",
			voice.RecoveryRetry, fmt.Errorf("%w: %s", voice.ErrProfileNotFound, id), map[string]any{"profile_id": id})
	}

	next := current.Clone()
	update.Apply(&next)
	next.ProfileID = current.ProfileID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = time.Now().UTC()
	if err := next.Validate(); err != nil {
		return voice.VoiceProfile{}, m.rec.Failure(componentName, "PROFILE_UPDATE_FAILED", "ERR_PROFILE_003",
			voice.RecoveryRetry, err, map[string]any{"profile_id": id})
	}

	m.cache[id] = next
	m.rec.Trace(componentName, "PROFILE_UPDATE_SUCCESS", map[string]any{"profile_id": id}, time.Since(start))
	return next.Clone(), nil
}

// ListPresets returns the available preset names.
func (m *Manager) ListPresets() []string {
	return PresetNames()
}

// Get returns a copy of the cached profile id.
func (m *Manager) Get(id string) (voice.VoiceProfile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.cache[id]
	if !ok {
		return voice.VoiceProfile{}, false
	}
	return p.Clone(), true
}

// Put caches p under its identifier, replacing any previous entry. It is used
// for profiles that come from storage rather than from this manager.
func (m *Manager) Put(p voice.VoiceProfile) error {
	if p.ProfileID == "" {
		return voice.ErrInvalidProfileID
	}
	if err := p.Validate(); err != nil {
		return err
	}
	m.put(p)
	return nil
}

// Forget drops id from the cache.
func (m *Manager) Forget(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cache, id)
}

// Len returns the number of cached profiles.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

func (m *Manager) put(p voice.VoiceProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache[p.ProfileID] = p.Clone()
}
