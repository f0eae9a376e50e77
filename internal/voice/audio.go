package voice

import (
	"errors"
	"fmt"
	"maps"
	"time"
)

// AudioData is the audio envelope passed between components.
type AudioData struct {
	Bytes      []byte
	Format     string
	SampleRate int
	Duration   float64 // seconds
	Timestamp  time.Time
}

// NewAudio returns an AudioData stamped with the current time.
func NewAudio(data []byte, format string, sampleRate int, duration float64) AudioData {
	return AudioData{
		Bytes:      data,
		Format:     format,
		SampleRate: sampleRate,
		Duration:   duration,
		Timestamp:  time.Now().UTC(),
	}
}

// WithBytes returns a copy of a carrying data and a fresh timestamp. Format,
// sample rate and duration are preserved.
func (a AudioData) WithBytes(data []byte) AudioData {
	return NewAudio(data, a.Format, a.SampleRate, a.Duration)
}

// TextData is the text envelope passed between components.
type TextData struct {
	Text       string
	Confidence float64
	Language   string
	Metadata   map[string]any
}

// NewText returns a TextData with full confidence and the default language.
func NewText(text string) TextData {
	return TextData{
		Text:       text,
		Confidence: 1.0,
		Language:   DefaultLanguage,
		Metadata:   map[string]any{},
	}
}

// EffectConfig describes one effect in an effect chain.
type EffectConfig struct {
	Type       AudioEffect    `json:"effect_type"`
	Intensity  float64        `json:"intensity"` // [0, 1]
	Parameters map[string]any `json:"parameters"`
}

// Validate reports whether the effect type is known and the intensity in range.
func (c EffectConfig) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("%w: unknown effect type %q", ErrInvalidEffect, c.Type)
	}
	if !InRange(c.Intensity, 0, 1) {
		return fmt.Errorf("%w: %s intensity must be between 0.0 and 1.0, got %.2f", ErrInvalidEffect, c.Type, c.Intensity)
	}
	return nil
}

// Clone returns a copy of c with its own parameter map.
func (c EffectConfig) Clone() EffectConfig {
	c.Parameters = maps.Clone(c.Parameters)
	return c
}

// VoiceTransform describes a voice characteristic transformation. Zero values
// mean "leave unchanged"; FormantShift is a frequency ratio, so 0 is "none"
// rather than a real ratio.
type VoiceTransform struct {
	PitchShift   float64 `json:"pitch_shift"`   // semitones
	FormantShift float64 `json:"formant_shift"` // ratio
	TimbreMorph  float64 `json:"timbre_morph"`  // [-1, 1]
	Breathiness  float64 `json:"breathiness"`   // [0, 1]
	Roughness    float64 `json:"roughness"`     // [0, 1]
}

// MaxFormantRatio bounds VoiceTransform.FormantShift.
const MaxFormantRatio = 2.0

// Validate checks the transform ranges.
func (t VoiceTransform) Validate() error {
	var errs []error
	if !InRange(t.PitchShift, MinPitch, MaxPitch) {
		errs = append(errs, fmt.Errorf("pitch_shift must be between -12 and +12 semitones, got %.2f", t.PitchShift))
	}
	if !InRange(t.FormantShift, 0, MaxFormantRatio) {
		errs = append(errs, fmt.Errorf("formant_shift must be between 0 and 2.0, got %.2f", t.FormantShift))
	}
	if !InRange(t.TimbreMorph, -1, 1) {
		errs = append(errs, fmt.Errorf("timbre_morph must be between -1.0 and 1.0, got %.2f", t.TimbreMorph))
	}
	if !InRange(t.Breathiness, 0, 1) {
		errs = append(errs, fmt.Errorf("breathiness must be between 0.0 and 1.0, got %.2f", t.Breathiness))
	}
	if !InRange(t.Roughness, 0, 1) {
		errs = append(errs, fmt.Errorf("roughness must be between 0.0 and 1.0, got %.2f", t.Roughness))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidTransform, errors.Join(errs...))
}

// Applied lists the non-zero transform fields in application order.
func (t VoiceTransform) Applied() []string {
	var out []string
	if t.PitchShift != 0 {
		out = append(out, "pitch_shift")
	}
	if t.FormantShift != 0 {
		out = append(out, "formant_shift")
	}
	if t.TimbreMorph != 0 {
		out = append(out, "timbre_morph")
	}
	if t.Breathiness != 0 {
		out = append(out, "breathiness")
	}
	if t.Roughness != 0 {
		out = append(out, "roughness")
	}
	return out
}
