package voice

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestEffectConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     EffectConfig
		wantErr bool
	}{
		{"reverb", EffectConfig{Type: EffectReverb, Intensity: 0.5}, false},
		{"zero", EffectConfig{Type: EffectEcho, Intensity: 0}, false},
		{"one", EffectConfig{Type: EffectChorus, Intensity: 1}, false},
		{"unknown_type", EffectConfig{Type: "invalid_effect", Intensity: 0.5}, true},
		{"over_one", EffectConfig{Type: EffectReverb, Intensity: 2}, true},
		{"negative", EffectConfig{Type: EffectReverb, Intensity: -0.1}, true},
		{"nan", EffectConfig{Type: EffectReverb, Intensity: math.NaN()}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() err=%v, wantErr=%v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidEffect) {
				t.Errorf("error %v does not wrap ErrInvalidEffect", err)
			}
		})
	}
}

func TestVoiceTransformValidate(t *testing.T) {
	tests := []struct {
		name    string
		tr      VoiceTransform
		wantErr string
	}{
		{"zero", VoiceTransform{}, ""},
		{"male_to_female", VoiceTransform{PitchShift: 4, FormantShift: 1.15, TimbreMorph: 0.5}, ""},
		{"pitch", VoiceTransform{PitchShift: 13}, "pitch_shift"},
		{"formant_negative", VoiceTransform{FormantShift: -0.5}, "formant_shift"},
		{"timbre", VoiceTransform{TimbreMorph: -1.5}, "timbre_morph"},
		{"breathiness", VoiceTransform{Breathiness: 1.2}, "breathiness"},
		{"roughness", VoiceTransform{Roughness: -0.2}, "roughness"},
		{"pitch_nan", VoiceTransform{PitchShift: math.NaN()}, "pitch_shift"},
		{"formant_nan", VoiceTransform{FormantShift: math.NaN()}, "formant_shift"},
		{"breathiness_nan", VoiceTransform{Breathiness: math.NaN()}, "breathiness"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tr.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want mention of %q", err, tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidTransform) {
				t.Errorf("error %v does not wrap ErrInvalidTransform", err)
			}
		})
	}
}

func TestVoiceTransformApplied(t *testing.T) {
	tr := VoiceTransform{PitchShift: 2, TimbreMorph: 0.3, Roughness: 0.8}
	got := strings.Join(tr.Applied(), ",")
	if got != "pitch_shift,timbre_morph,roughness" {
		t.Errorf("Applied() = %q", got)
	}
	if len((VoiceTransform{}).Applied()) != 0 {
		t.Error("zero transform reports applied fields")
	}
}

func TestAudioWithBytesPreservesShape(t *testing.T) {
	a := NewAudio([]byte("abc"), "wav", 16000, 2.0)
	b := a.WithBytes([]byte("xyzabc"))
	if b.Format != "wav" || b.SampleRate != 16000 || b.Duration != 2.0 {
		t.Errorf("WithBytes changed shape: %+v", b)
	}
	if string(a.Bytes) != "abc" {
		t.Error("WithBytes mutated the source")
	}
}

func TestComponentErrorWrapping(t *testing.T) {
	err := NewComponentError("VoiceProfileComponent", "ERR_PROFILE_002", RecoveryAbort, ErrPresetNotFound, map[string]any{"preset": "x"})
	if !errors.Is(err, ErrPresetNotFound) {
		t.Error("errors.Is failed on ComponentError")
	}
	if got := ErrorCode(err); got != "ERR_PROFILE_002" {
		t.Errorf("ErrorCode = %q", got)
	}
	if ErrorCode(errors.New("plain")) != "" {
		t.Error("ErrorCode of plain error should be empty")
	}
	if f := err.Fields(); f["recovery_action"] != "ABORT" {
		t.Errorf("Fields()[recovery_action] = %v", f["recovery_action"])
	}
}
