// Package effects builds effect configurations and applies effect chains to
// audio buffers by stamping one marker per effect.
package effects

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const componentName = "AudioEffectsComponent"

// Equalizer band gains are bounded to +/-12 dB.
const (
	MinBandGain = -12.0
	MaxBandGain = 12.0
)

// Processor applies effect chains.
type Processor struct {
	rec *telemetry.Recorder
}

// NewProcessor returns a processor. A nil recorder discards telemetry.
func NewProcessor(rec *telemetry.Recorder) *Processor {
	if rec == nil {
		rec = telemetry.Discard()
	}
	return &Processor{rec: rec}
}

// ApplyEffects validates the whole chain, then stamps each effect in order.
// Format, sample rate and duration are carried over unchanged.
func (p *Processor) ApplyEffects(audio voice.AudioData, chain []voice.EffectConfig) (voice.AudioData, error) {
	start := time.Now()
	types := make([]string, len(chain))
	for i, e := range chain {
		types[i] = string(e.Type)
	}
	p.rec.Trace(componentName, "EFFECT_START", map[string]any{
		"num_effects":  len(chain),
		"effect_types": types,
	}, 0)

	for _, e := range chain {
		if err := validate(e); err != nil {
			return voice.AudioData{}, p.rec.Failure(componentName, "EFFECT_FAILED", "ERR_EFFECT_001",
				voice.RecoveryRetry, err, map[string]any{"num_effects": len(chain)})
		}
	}

	out := append([]byte(nil), audio.Bytes...)
	for _, e := range chain {
		out = append(Marker(e), out...)
	}

	p.rec.Trace(componentName, "EFFECT_APPLIED", map[string]any{"effects": types}, time.Since(start))
	return audio.WithBytes(out), nil
}

// Marker returns the stamp written for e. Whole intensities keep one
// decimal place, so 1 is written as 1.0.
func Marker(e voice.EffectConfig) []byte {
	return []byte("[" + string(e.Type) + ":" + formatIntensity(e.Intensity) + "]")
}

func formatIntensity(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}

func validate(e voice.EffectConfig) error {
	if err := e.Validate(); err != nil {
		return err
	}
	if e.Type != voice.EffectEqualizer {
		return nil
	}
	for _, band := range []string{"bass", "mid", "treble"} {
		gain, ok := number(e.Parameters[band])
		if !ok {
			continue
		}
		if !voice.InRange(gain, MinBandGain, MaxBandGain) {
			return fmt.Errorf("%w: equalizer %s must be between -12 and +12 dB, got %.2f", voice.ErrInvalidEffect, band, gain)
		}
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
