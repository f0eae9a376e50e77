// Package transform stamps voice characteristic transformations (pitch,
// formant, timbre, breathiness, roughness) onto audio buffers.
package transform

import (
	"fmt"
	"time"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const componentName = "VoiceTransformComponent"

// Transformer applies VoiceTransform records.
type Transformer struct {
	rec *telemetry.Recorder
}

// NewTransformer returns a transformer. A nil recorder discards telemetry.
func NewTransformer(rec *telemetry.Recorder) *Transformer {
	if rec == nil {
		rec = telemetry.Discard()
	}
	return &Transformer{rec: rec}
}

// TransformVoice validates tr and stamps one marker per non-zero field in
// the order pitch, formant, timbre, breathiness, roughness.
func (t *Transformer) TransformVoice(audio voice.AudioData, tr voice.VoiceTransform) (voice.AudioData, error) {
	start := time.Now()
	t.rec.Trace(componentName, "TRANSFORM_START", map[string]any{
		"pitch_shift":   tr.PitchShift,
		"formant_shift": tr.FormantShift,
	}, 0)

	if err := tr.Validate(); err != nil {
		return voice.AudioData{}, t.rec.Failure(componentName, "TRANSFORM_FAILED", "ERR_TRANSFORM_001",
			voice.RecoveryRetry, err, map[string]any{"transform": tr})
	}

	out := append([]byte(nil), audio.Bytes...)
	stamp := func(format string, v float64) {
		if v != 0 {
			out = append([]byte(fmt.Sprintf(format, v)), out...)
		}
	}
	stamp("[PITCH:%+.1f]", tr.PitchShift)
	stamp("[FORMANT:%+.2f]", tr.FormantShift)
	stamp("[TIMBRE:%+.2f]", tr.TimbreMorph)
	stamp("[BREATH:%.2f]", tr.Breathiness)
	stamp("[ROUGH:%.2f]", tr.Roughness)

	t.rec.Trace(componentName, "TRANSFORM_END", map[string]any{
		"transformations_applied": tr.Applied(),
	}, time.Since(start))
	return audio.WithBytes(out), nil
}

// Compose layers overlay onto base. Pitch shifts and timbre morphs add,
// formant ratios multiply (0 means none), breathiness and roughness add.
// Results are bounded to the VoiceTransform ranges; NaN is left for
// Validate to reject.
func Compose(base, overlay voice.VoiceTransform) voice.VoiceTransform {
	formant := base.FormantShift
	switch {
	case formant == 0:
		formant = overlay.FormantShift
	case overlay.FormantShift != 0:
		formant *= overlay.FormantShift
	}
	return voice.VoiceTransform{
		PitchShift:   bound(base.PitchShift+overlay.PitchShift, voice.MinPitch, voice.MaxPitch),
		FormantShift: bound(formant, 0, voice.MaxFormantRatio),
		TimbreMorph:  bound(base.TimbreMorph+overlay.TimbreMorph, -1, 1),
		Breathiness:  bound(base.Breathiness+overlay.Breathiness, 0, 1),
		Roughness:    bound(base.Roughness+overlay.Roughness, 0, 1),
	}
}

func bound(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

func MaleToFemale() voice.VoiceTransform {
	return voice.VoiceTransform{PitchShift: 4.0, FormantShift: 1.15, TimbreMorph: 0.5}
}

func FemaleToMale() voice.VoiceTransform {
	return voice.VoiceTransform{PitchShift: -4.0, FormantShift: 0.85, TimbreMorph: -0.5}
}

func RobotVoice() voice.VoiceTransform {
	return voice.VoiceTransform{FormantShift: 1.0, TimbreMorph: -1.0, Roughness: 0.8}
}

var presets = []struct {
	name  string
	build func() voice.VoiceTransform
}{
	{"male_to_female", MaleToFemale},
	{"female_to_male", FemaleToMale},
	{"robot", RobotVoice},
}

// PresetNames lists the names accepted by Preset.
func PresetNames() []string {
	names := make([]string, len(presets))
	for i, p := range presets {
		names[i] = p.name
	}
	return names
}

// Preset returns the named transform preset.
func Preset(name string) (voice.VoiceTransform, error) {
	for _, p := range presets {
		if p.name == name {
			return p.build(), nil
		}
	}
	return voice.VoiceTransform{}, fmt.Errorf("%w: unknown transform preset %q", voice.ErrInvalidTransform, name)
}
