// Package emotion maps discrete emotions and an intensity scalar onto
// prosody adjustments of a base voice profile.
package emotion

import (
	"fmt"
	"time"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const componentName = "EmotionEngineComponent"

// Modifier is the full-intensity prosody change for one emotion. Pitch is
// additive in semitones; the other fields are multipliers.
type Modifier struct {
	Pitch    float64 `json:"pitch_modifier"`
	Speed    float64 `json:"speed_modifier"`
	Volume   float64 `json:"volume_modifier"`
	Variance float64 `json:"pitch_variance"`
}

var table = map[voice.Emotion]Modifier{
	voice.EmotionNeutral:   {Pitch: 0, Speed: 1.0, Volume: 1.0, Variance: 1.0},
	voice.EmotionHappy:     {Pitch: 2.0, Speed: 1.1, Volume: 1.05, Variance: 1.3},
	voice.EmotionSad:       {Pitch: -1.5, Speed: 0.85, Volume: 0.9, Variance: 0.7},
	voice.EmotionAngry:     {Pitch: 1.0, Speed: 1.2, Volume: 1.2, Variance: 1.5},
	voice.EmotionExcited:   {Pitch: 3.0, Speed: 1.3, Volume: 1.1, Variance: 1.6},
	voice.EmotionCalm:      {Pitch: 0, Speed: 0.9, Volume: 0.95, Variance: 0.5},
	voice.EmotionFearful:   {Pitch: 2.5, Speed: 1.15, Volume: 0.85, Variance: 1.4},
	voice.EmotionConfident: {Pitch: -0.5, Speed: 0.95, Volume: 1.1, Variance: 0.8},
}

// Lookup returns the modifier table entry for e.
func Lookup(e voice.Emotion) (Modifier, bool) {
	m, ok := table[e]
	return m, ok
}

// ListEmotions returns every supported emotion.
func ListEmotions() []voice.Emotion {
	return voice.Emotions()
}

// Prosody is the result of scaling a Modifier by an intensity. The Final
// fields are set only when a base profile was supplied.
type Prosody struct {
	Emotion          voice.Emotion `json:"emotion"`
	Intensity        float64       `json:"intensity"`
	PitchShift       float64       `json:"pitch_shift"`
	SpeedMultiplier  float64       `json:"speed_multiplier"`
	VolumeMultiplier float64       `json:"volume_multiplier"`
	PitchVariance    float64       `json:"pitch_variance"`

	FinalPitch  *float64 `json:"final_pitch,omitempty"`
	FinalSpeed  *float64 `json:"final_speed,omitempty"`
	FinalVolume *float64 `json:"final_volume,omitempty"`
}

// HasFinals reports whether p was composed onto a base profile.
func (p Prosody) HasFinals() bool {
	return p.FinalPitch != nil && p.FinalSpeed != nil && p.FinalVolume != nil
}

// Clamp bounds the final values to the VoiceProfile ranges.
func (p Prosody) Clamp() Prosody {
	if p.FinalPitch != nil {
		p.FinalPitch = voice.Ptr(clamp(*p.FinalPitch, voice.MinPitch, voice.MaxPitch))
	}
	if p.FinalSpeed != nil {
		p.FinalSpeed = voice.Ptr(clamp(*p.FinalSpeed, voice.MinSpeed, voice.MaxSpeed))
	}
	if p.FinalVolume != nil {
		p.FinalVolume = voice.Ptr(clamp(*p.FinalVolume, voice.MinVolume, voice.MaxVolume))
	}
	return p
}

// Fields lists the keys of p that carry a value, matching its JSON names.
func (p Prosody) Fields() []string {
	fields := []string{"pitch_shift", "speed_multiplier", "volume_multiplier", "pitch_variance", "emotion", "intensity"}
	if p.HasFinals() {
		fields = append(fields, "final_pitch", "final_speed", "final_volume")
	}
	return fields
}

func clamp(v, lo, hi float64) float64 {
	return min(max(v, lo), hi)
}

// Engine computes emotional prosody.
type Engine struct {
	rec *telemetry.Recorder
}

// NewEngine returns an engine. A nil recorder discards telemetry.
func NewEngine(rec *telemetry.Recorder) *Engine {
	if rec == nil {
		rec = telemetry.Discard()
	}
	return &Engine{rec: rec}
}

// Apply scales the modifier for e by intensity and, when base is non-nil,
// composes the result onto it.
func (g *Engine) Apply(e voice.Emotion, intensity float64, base *voice.VoiceProfile) (Prosody, error) {
	start := time.Now()
	g.rec.Trace(componentName, "EMOTION_APPLY", map[string]any{
		"emotion":   string(e),
		"intensity": intensity,
	}, 0)

	fail := func(err error) (Prosody, error) {
		return Prosody{}, g.rec.Failure(componentName, "EMOTION_FAILED", "ERR_EMOTION_001", voice.RecoveryRetry, err,
			map[string]any{"emotion": string(e), "intensity": intensity})
	}
	m, ok := table[e]
	if !ok {
		return fail(fmt.Errorf("%w: %q", voice.ErrInvalidEmotion, e))
	}
	if !voice.InRange(intensity, 0, 1) {
		return fail(fmt.Errorf("%w: got %v", voice.ErrInvalidIntensity, intensity))
	}

	p := Prosody{
		Emotion:          e,
		Intensity:        intensity,
		PitchShift:       m.Pitch * intensity,
		SpeedMultiplier:  1 + (m.Speed-1)*intensity,
		VolumeMultiplier: 1 + (m.Volume-1)*intensity,
		PitchVariance:    1 + (m.Variance-1)*intensity,
	}
	if base != nil {
		p.FinalPitch = voice.Ptr(base.Pitch + p.PitchShift)
		p.FinalSpeed = voice.Ptr(base.Speed * p.SpeedMultiplier)
		p.FinalVolume = voice.Ptr(base.Volume * p.VolumeMultiplier)
	}

	g.rec.Trace(componentName, "EMOTION_SUCCESS", map[string]any{
		"emotion":       string(e),
		"modifications": p.Fields(),
	}, time.Since(start))
	return p, nil
}
