package effects

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

// Reverb uses the room size as intensity.
func Reverb(roomSize, damping float64) voice.EffectConfig {
	return voice.EffectConfig{
		Type:       voice.EffectReverb,
		Intensity:  roomSize,
		Parameters: map[string]any{"damping": damping},
	}
}

// Echo uses the feedback as intensity and records both values.
func Echo(delayMS, feedback float64) voice.EffectConfig {
	return voice.EffectConfig{
		Type:      voice.EffectEcho,
		Intensity: feedback,
		Parameters: map[string]any{
			"delay_ms": delayMS,
			"feedback": feedback,
		},
	}
}

// Equalizer takes band gains in dB.
func Equalizer(bass, mid, treble float64) voice.EffectConfig {
	return voice.EffectConfig{
		Type:      voice.EffectEqualizer,
		Intensity: 0.5,
		Parameters: map[string]any{
			"bass":   bass,
			"mid":    mid,
			"treble": treble,
		},
	}
}

// Chorus uses the modulation depth as intensity.
func Chorus(depth, rateHz float64) voice.EffectConfig {
	return voice.EffectConfig{
		Type:       voice.EffectChorus,
		Intensity:  depth,
		Parameters: map[string]any{"rate_hz": rateHz},
	}
}

func Compressor(thresholdDB, ratio float64) voice.EffectConfig {
	return voice.EffectConfig{
		Type:      voice.EffectCompressor,
		Intensity: 0.5,
		Parameters: map[string]any{
			"threshold_db": thresholdDB,
			"ratio":        ratio,
		},
	}
}

func NoiseGate(thresholdDB float64) voice.EffectConfig {
	return voice.EffectConfig{
		Type:       voice.EffectNoiseGate,
		Intensity:  0.5,
		Parameters: map[string]any{"threshold_db": thresholdDB},
	}
}

var presetNames = []string{"reverb", "echo", "equalizer", "chorus", "compressor", "noise_gate"}

// PresetNames lists the names accepted by Preset.
func PresetNames() []string {
	return append([]string(nil), presetNames...)
}

// Preset returns the named effect with default parameters.
func Preset(name string) (voice.EffectConfig, error) {
	switch name {
	case "reverb":
		return Reverb(0.5, 0.5), nil
	case "echo":
		return Echo(500, 0.3), nil
	case "equalizer":
		return Equalizer(0, 0, 0), nil
	case "chorus":
		return Chorus(0.5, 1.5), nil
	case "compressor":
		return Compressor(-18, 4), nil
	case "noise_gate":
		return NoiseGate(-40), nil
	}
	return voice.EffectConfig{}, fmt.Errorf("%w: unknown effect preset %q", voice.ErrInvalidEffect, name)
}

// ParseChain parses a comma separated list of effect presets, each optionally
// followed by ":<intensity>", e.g. "reverb:0.7,echo". Blank input yields an
// empty chain.
func ParseChain(spec string) ([]voice.EffectConfig, error) {
	var chain []voice.EffectConfig
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		name, level, hasLevel := strings.Cut(item, ":")
		cfg, err := Preset(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		if hasLevel {
			v, err := strconv.ParseFloat(strings.TrimSpace(level), 64)
			if err != nil {
				return nil, fmt.Errorf("%w: intensity %q for %s: %v", voice.ErrInvalidEffect, level, name, err)
			}
			cfg.Intensity = v
			if cfg.Type == voice.EffectEcho {
				cfg.Parameters["feedback"] = v
			}
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		chain = append(chain, cfg)
	}
	return chain, nil
}
