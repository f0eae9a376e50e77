package voice

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
)

// Parameter bounds shared by profiles, transforms and the emotion engine.
const (
	MinPitch  = -12.0
	MaxPitch  = 12.0
	MinSpeed  = 0.5
	MaxSpeed  = 2.0
	MinVolume = 0.0
	MaxVolume = 2.0

	DefaultProfileName = "Default Voice"
	DefaultLanguage    = "en-US"
	DefaultAccent      = "neutral"
)

// InRange reports whether lo <= v <= hi. NaN is never in range.
func InRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// VoiceProfile is a named bundle of voice parameters.
type VoiceProfile struct {
	ProfileID      string             `json:"profile_id"`
	Name           string             `json:"name"`
	Gender         Gender             `json:"gender"`
	Pitch          float64            `json:"pitch"`  // semitones, [-12, 12]
	Speed          float64            `json:"speed"`  // rate multiplier, [0.5, 2.0]
	Volume         float64            `json:"volume"` // gain multiplier, [0.0, 2.0]
	Timbre         map[string]float64 `json:"timbre"`
	Language       string             `json:"language"`
	Accent         string             `json:"accent"`
	AgeRange       AgeRange           `json:"age_range"`
	EmotionDefault Emotion            `json:"emotion_default"`
	CustomParams   map[string]any     `json:"custom_params"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// NewProfile returns a profile populated with defaults and a fresh identifier.
// An empty name falls back to DefaultProfileName.
func NewProfile(name string) VoiceProfile {
	if name == "" {
		name = DefaultProfileName
	}
	now := time.Now().UTC()
	return VoiceProfile{
		ProfileID:      uuid.NewString(),
		Name:           name,
		Gender:         GenderNeutral,
		Pitch:          0,
		Speed:          1.0,
		Volume:         1.0,
		Timbre:         map[string]float64{},
		Language:       DefaultLanguage,
		Accent:         DefaultAccent,
		AgeRange:       AgeAdult,
		EmotionDefault: EmotionNeutral,
		CustomParams:   map[string]any{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// Validate checks every ranged and enumerated field and returns a joined
// error describing all failures, or nil.
func (p VoiceProfile) Validate() error {
	var errs []error
	if !InRange(p.Pitch, MinPitch, MaxPitch) {
		errs = append(errs, fmt.Errorf("pitch must be between -12 and +12 semitones, got %.2f", p.Pitch))
	}
	if !InRange(p.Speed, MinSpeed, MaxSpeed) {
		errs = append(errs, fmt.Errorf("speed must be between 0.5 and 2.0, got %.2f", p.Speed))
	}
	if !InRange(p.Volume, MinVolume, MaxVolume) {
		errs = append(errs, fmt.Errorf("volume must be between 0.0 and 2.0, got %.2f", p.Volume))
	}
	if !p.Gender.IsValid() {
		errs = append(errs, fmt.Errorf("invalid gender: %q", p.Gender))
	}
	if !p.EmotionDefault.IsValid() {
		errs = append(errs, fmt.Errorf("invalid emotion_default: %q", p.EmotionDefault))
	}
	if !p.AgeRange.IsValid() {
		errs = append(errs, fmt.Errorf("invalid age_range: %q", p.AgeRange))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidProfile, errors.Join(errs...))
}

// Clone returns a deep copy of p.
func (p VoiceProfile) Clone() VoiceProfile {
	out := p
	out.Timbre = maps.Clone(p.Timbre)
	out.CustomParams = maps.Clone(p.CustomParams)
	if out.Timbre == nil {
		out.Timbre = map[string]float64{}
	}
	if out.CustomParams == nil {
		out.CustomParams = map[string]any{}
	}
	return out
}

// Summary is the listing view of a stored profile.
type Summary struct {
	ProfileID string    `json:"profile_id"`
	Name      string    `json:"name"`
	Gender    Gender    `json:"gender"`
	Language  string    `json:"language"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Summary returns the listing view of p.
func (p VoiceProfile) Summary() Summary {
	return Summary{
		ProfileID: p.ProfileID,
		Name:      p.Name,
		Gender:    p.Gender,
		Language:  p.Language,
		UpdatedAt: p.UpdatedAt,
	}
}

// ProfileUpdate carries optional replacements for profile fields. Nil fields
// are left untouched; map fields replace the whole map when non-nil.
type ProfileUpdate struct {
	Name           *string
	Gender         *Gender
	Pitch          *float64
	Speed          *float64
	Volume         *float64
	Timbre         map[string]float64
	Language       *string
	Accent         *string
	AgeRange       *AgeRange
	EmotionDefault *Emotion
	CustomParams   map[string]any
}

// Ptr returns a pointer to v. It keeps ProfileUpdate literals short.
func Ptr[T any](v T) *T {
	return &v
}

// Apply copies the set fields of u onto p. It does not validate.
func (u ProfileUpdate) Apply(p *VoiceProfile) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Gender != nil {
		p.Gender = *u.Gender
	}
	if u.Pitch != nil {
		p.Pitch = *u.Pitch
	}
	if u.Speed != nil {
		p.Speed = *u.Speed
	}
	if u.Volume != nil {
		p.Volume = *u.Volume
	}
	if u.Timbre != nil {
		p.Timbre = maps.Clone(u.Timbre)
	}
	if u.Language != nil {
		p.Language = *u.Language
	}
	if u.Accent != nil {
		p.Accent = *u.Accent
	}
	if u.AgeRange != nil {
		p.AgeRange = *u.AgeRange
	}
	if u.EmotionDefault != nil {
		p.EmotionDefault = *u.EmotionDefault
	}
	if u.CustomParams != nil {
		p.CustomParams = maps.Clone(u.CustomParams)
	}
}

// Fields lists the profile fields u sets, using their JSON names.
func (u ProfileUpdate) Fields() []string {
	var fields []string
	add := func(set bool, name string) {
		if set {
			fields = append(fields, name)
		}
	}
	add(u.Name != nil, "name")
	add(u.Gender != nil, "gender")
	add(u.Pitch != nil, "pitch")
	add(u.Speed != nil, "speed")
	add(u.Volume != nil, "volume")
	add(u.Timbre != nil, "timbre")
	add(u.Language != nil, "language")
	add(u.Accent != nil, "accent")
	add(u.AgeRange != nil, "age_range")
	add(u.EmotionDefault != nil, "emotion_default")
	add(u.CustomParams != nil, "custom_params")
	return fields
}

// IsEmpty reports whether u sets no field at all.
func (u ProfileUpdate) IsEmpty() bool {
	return len(u.Fields()) == 0
}
