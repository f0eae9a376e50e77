// Package engine composes the voice customization components into the two
// high-level operations: creating a custom voice and rendering audio with a
// voice profile, an emotion and an effect chain.
package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/effects"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/emotion"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/profile"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/storage"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/transform"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const componentName = "VoiceCustomizationEngine"

// DefaultIntensity is used when ApplyOptions leaves the intensity unset.
const DefaultIntensity = 1.0

// Timbre map keys read into the VoiceTransform.
const (
	TimbreFormantShift = "formant_shift"
	TimbreMorph        = "timbre_morph"
	TimbreBreathiness  = "breathiness"
	TimbreRoughness    = "roughness"
)

// Customizer owns one instance of every component plus the profile store.
type Customizer struct {
	rec         *telemetry.Recorder
	profiles    *profile.Manager
	effects     *effects.Processor
	transformer *transform.Transformer
	emotions    *emotion.Engine
	store       storage.Store
}

// New returns a customizer persisting profiles to store. A nil recorder
// discards telemetry.
func New(store storage.Store, rec *telemetry.Recorder) *Customizer {
	if rec == nil {
		rec = telemetry.Discard()
	}
	return &Customizer{
		rec:         rec,
		profiles:    profile.NewManager(rec),
		effects:     effects.NewProcessor(rec),
		transformer: transform.NewTransformer(rec),
		emotions:    emotion.NewEngine(rec),
		store:       store,
	}
}

// Profiles exposes the profile manager.
func (c *Customizer) Profiles() *profile.Manager { return c.profiles }

// Store exposes the profile store.
func (c *Customizer) Store() storage.Store { return c.store }

// CreateCustomVoice builds a profile from basePreset (or defaults when
// empty), applies update on top, forces name, and saves the result.
func (c *Customizer) CreateCustomVoice(name, basePreset string, update voice.ProfileUpdate) (voice.VoiceProfile, error) {
	start := time.Now()
	c.rec.Trace(componentName, "CUSTOM_VOICE_CREATE", map[string]any{
		"name":        name,
		"base_preset": basePreset,
		"updates":     update.Fields(),
	}, 0)

	var (
		p   voice.VoiceProfile
		err error
	)
	if basePreset != "" {
		p, err = c.profiles.DerivePreset(basePreset, name, update)
	} else {
		p, err = c.profiles.CreateProfile(name, update)
	}
	if err != nil {
		return voice.VoiceProfile{}, err
	}

	res, err := c.store.Save(p)
	if err != nil {
		c.profiles.Forget(p.ProfileID)
		return voice.VoiceProfile{}, err
	}

	c.rec.Trace(componentName, "CUSTOM_VOICE_CREATED", map[string]any{
		"profile_id": p.ProfileID,
		"file_path":  res.FilePath,
	}, time.Since(start))
	return p, nil
}

// ApplyOptions tunes ApplyVoiceProfile. The zero value uses the profile's
// default emotion at DefaultIntensity with no effects. Transform, when set,
// is composed onto the transform derived from the profile.
type ApplyOptions struct {
	Emotion   voice.Emotion
	Intensity *float64
	Effects   []voice.EffectConfig
	Transform *voice.VoiceTransform
}

// Result is the rendered audio plus the parameters that produced it.
type Result struct {
	Audio     voice.AudioData
	Prosody   emotion.Prosody
	Transform voice.VoiceTransform
	Effects   []voice.EffectConfig
}

// ApplyVoiceProfile renders audio with p: emotional prosody is composed onto
// the profile and clamped, the resulting transform and effect chain are
// stamped, and the duration is rescaled by the final speed.
func (c *Customizer) ApplyVoiceProfile(audio voice.AudioData, p voice.VoiceProfile, opts ApplyOptions) (Result, error) {
	start := time.Now()
	em := opts.Emotion
	if em == "" {
		em = p.EmotionDefault
	}
	if em == "" {
		em = voice.EmotionNeutral
	}
	intensity := DefaultIntensity
	if opts.Intensity != nil {
		intensity = *opts.Intensity
	}
	c.rec.Trace(componentName, "VOICE_APPLY", map[string]any{
		"profile_id":  p.ProfileID,
		"emotion":     string(em),
		"intensity":   intensity,
		"num_effects": len(opts.Effects),
	}, 0)

	if err := p.Validate(); err != nil {
		return Result{}, c.rec.Failure(componentName, "VOICE_APPLY_FAILED", "ERR_ENGINE_001",
			voice.RecoveryAbort, err, map[string]any{"profile_id": p.ProfileID})
	}

	prosody, err := c.emotions.Apply(em, intensity, &p)
	if err != nil {
		return Result{}, err
	}
	prosody = prosody.Clamp()

	tr := TransformFor(p, *prosody.FinalPitch)
	if opts.Transform != nil {
		tr = transform.Compose(tr, *opts.Transform)
	}
	out, err := c.transformer.TransformVoice(audio, tr)
	if err != nil {
		return Result{}, err
	}
	out, err = c.effects.ApplyEffects(out, opts.Effects)
	if err != nil {
		return Result{}, err
	}

	speed, volume := *prosody.FinalSpeed, *prosody.FinalVolume
	marker := fmt.Sprintf("[PROSODY:speed=%.2f,volume=%.2f]", speed, volume)
	out = out.WithBytes(append([]byte(marker), out.Bytes...))
	out.Duration = audio.Duration / speed

	c.rec.Trace(componentName, "VOICE_APPLIED", map[string]any{
		"profile_id":   p.ProfileID,
		"final_pitch":  *prosody.FinalPitch,
		"final_speed":  speed,
		"final_volume": volume,
		"audio_size":   len(out.Bytes),
	}, time.Since(start))
	return Result{Audio: out, Prosody: prosody, Transform: tr, Effects: opts.Effects}, nil
}

// TransformFor builds the transform for p at the given pitch. Formant,
// morph, breathiness and roughness come from the profile's timbre map.
func TransformFor(p voice.VoiceProfile, pitch float64) voice.VoiceTransform {
	return voice.VoiceTransform{
		PitchShift:   pitch,
		FormantShift: p.Timbre[TimbreFormantShift],
		TimbreMorph:  p.Timbre[TimbreMorph],
		Breathiness:  p.Timbre[TimbreBreathiness],
		Roughness:    p.Timbre[TimbreRoughness],
	}
}

// PresetList returns the preset names.
func (c *Customizer) PresetList() []string {
	return c.profiles.ListPresets()
}

// LoadSavedProfile reads id from storage and caches it for later updates.
func (c *Customizer) LoadSavedProfile(id string) (voice.VoiceProfile, error) {
	p, err := c.store.Load(id)
	if err != nil {
		return voice.VoiceProfile{}, err
	}
	if err := c.profiles.Put(p); err != nil {
		c.rec.Component(componentName).Warn("stored profile failed validation", "profile_id", id, "error", err)
	}
	return p, nil
}

// SavedProfiles lists stored profiles.
func (c *Customizer) SavedProfiles() ([]voice.Summary, error) {
	return c.store.List()
}

// DeleteSavedProfile removes id from storage and from the cache.
func (c *Customizer) DeleteSavedProfile(id string) error {
	if err := c.store.Delete(id); err != nil {
		return err
	}
	c.profiles.Forget(id)
	return nil
}

// UpdateSavedProfile applies update to the stored profile id and saves it.
// Nothing is written when the update is invalid, and the cached profile is
// restored when the save fails.
func (c *Customizer) UpdateSavedProfile(id string, update voice.ProfileUpdate) (voice.VoiceProfile, error) {
	prev, ok := c.profiles.Get(id)
	if !ok {
		loaded, err := c.LoadSavedProfile(id)
		if err != nil {
			return voice.VoiceProfile{}, err
		}
		prev = loaded
	}
	p, err := c.profiles.UpdateProfile(id, update)
	if err != nil {
		return voice.VoiceProfile{}, err
	}
	if _, err := c.store.Save(p); err != nil {
		if perr := c.profiles.Put(prev); perr != nil {
			c.profiles.Forget(id)
		}
		return voice.VoiceProfile{}, err
	}
	return p, nil
}

// ResolveProfile returns the profile for a stored id or, failing that, an
// uncached clone of the named preset. Both empty yields a default profile.
func (c *Customizer) ResolveProfile(id, preset string) (voice.VoiceProfile, error) {
	if id != "" {
		if p, ok := c.profiles.Get(id); ok {
			return p, nil
		}
		p, err := c.LoadSavedProfile(id)
		if err == nil || preset == "" {
			return p, err
		}
		if !errors.Is(err, voice.ErrProfileNotFound) {
			return voice.VoiceProfile{}, err
		}
	}
	if preset != "" {
		p, err := profile.Preset(preset)
		if err != nil {
			return voice.VoiceProfile{}, c.rec.Failure(componentName, "VOICE_RESOLVE_FAILED", "ERR_ENGINE_002",
				voice.RecoveryAbort, err, map[string]any{"preset": preset})
		}
		return p, nil
	}
	return voice.NewProfile(""), nil
}
