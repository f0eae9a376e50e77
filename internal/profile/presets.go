package profile

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

type preset struct {
	key     string
	profile voice.VoiceProfile
}

// presets is kept as a slice so ListPresets has a stable order.
var presets = []preset{
	{"professional_male", voice.VoiceProfile{
		Name:     "Professional Male",
		Gender:   voice.GenderMale,
		Pitch:    -2.0,
		Speed:    0.95,
		Volume:   1.0,
		Accent:   "american",
		AgeRange: voice.AgeAdult,
	}},
	{"professional_female", voice.VoiceProfile{
		Name:     "Professional Female",
		Gender:   voice.GenderFemale,
		Pitch:    2.0,
		Speed:    1.0,
		Volume:   1.0,
		Accent:   "american",
		AgeRange: voice.AgeAdult,
	}},
	{"friendly_assistant", voice.VoiceProfile{
		Name:           "Friendly Assistant",
		Gender:         voice.GenderNeutral,
		Pitch:          1.0,
		Speed:          1.1,
		Volume:         1.0,
		EmotionDefault: voice.EmotionHappy,
		AgeRange:       voice.AgeYoung,
	}},
	{"narrator_deep", voice.VoiceProfile{
		Name:     "Deep Narrator",
		Gender:   voice.GenderMale,
		Pitch:    -4.0,
		Speed:    0.85,
		Volume:   1.1,
		Accent:   "british",
		AgeRange: voice.AgeAdult,
	}},
	{"child_voice", voice.VoiceProfile{
		Name:     "Child Voice",
		Gender:   voice.GenderNeutral,
		Pitch:    6.0,
		Speed:    1.2,
		Volume:   0.9,
		AgeRange: voice.AgeChild,
	}},
	{"elderly_wise", voice.VoiceProfile{
		Name:         "Elderly Wise",
		Gender:       voice.GenderMale,
		Pitch:        -1.0,
		Speed:        0.8,
		Volume:       0.95,
		AgeRange:     voice.AgeElderly,
		CustomParams: map[string]any{"tremolo": 0.3},
	}},
}

// PresetNames returns the preset keys in their canonical order.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.key
	}
	return names
}

// lookupPreset returns a fully defaulted copy of the named preset. The copy
// has no identifier or timestamps.
func lookupPreset(name string) (voice.VoiceProfile, bool) {
	for _, p := range presets {
		if p.key != name {
			continue
		}
		out := p.profile.Clone()
		if out.Language == "" {
			out.Language = voice.DefaultLanguage
		}
		if out.Accent == "" {
			out.Accent = voice.DefaultAccent
		}
		if out.EmotionDefault == "" {
			out.EmotionDefault = voice.EmotionNeutral
		}
		if out.AgeRange == "" {
			out.AgeRange = voice.AgeAdult
		}
		return out, true
	}
	return voice.VoiceProfile{}, false
}

// Preset returns an uncached copy of the named preset with a fresh
// identifier and timestamps.
func Preset(name string) (voice.VoiceProfile, error) {
	p, ok := lookupPreset(name)
	if !ok {
		return voice.VoiceProfile{}, fmt.Errorf("%w: %s", voice.ErrPresetNotFound, name)
	}
	now := time.Now().UTC()
	p.ProfileID = uuid.NewString()
	p.CreatedAt = now
	p.UpdatedAt = now
	return p, nil
}
