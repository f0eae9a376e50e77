// Package textnorm cleans text before synthesis and after recognition.
package textnorm

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const componentName = "TextNormalizerComponent"

// Options selects the normalization passes. StripWhitespace collapses runs
// of whitespace into single spaces and trims the ends.
type Options struct {
	RemovePunctuation bool
	Lowercase         bool
	StripWhitespace   bool
}

// DefaultOptions only collapses whitespace.
func DefaultOptions() Options {
	return Options{StripWhitespace: true}
}

// asciiPunctuation is the ASCII punctuation set removed by RemovePunctuation.
const asciiPunctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"

// Normalizer applies Options to text.
type Normalizer struct {
	rec *telemetry.Recorder
}

// NewNormalizer returns a normalizer. A nil recorder discards telemetry.
func NewNormalizer(rec *telemetry.Recorder) *Normalizer {
	if rec == nil {
		rec = telemetry.Discard()
	}
	return &Normalizer{rec: rec}
}

// Normalize applies whitespace collapsing, lowercasing and punctuation
// removal, in that order. The result metadata records the original and final
// lengths (in characters) and the passes applied.
func (n *Normalizer) Normalize(text string, opts Options) (voice.TextData, error) {
	start := time.Now()
	original := utf8.RuneCountInString(text)
	n.rec.Trace(componentName, "NORMALIZE_START", map[string]any{"original_length": original}, 0)

	if strings.TrimSpace(text) == "" {
		return voice.TextData{}, n.rec.Failure(componentName, "NORMALIZE_FAILED", "ERR_TEXT_001",
			voice.RecoveryRetry, voice.ErrEmptyText, map[string]any{"text_preview": preview(text)})
	}

	out := text
	if opts.StripWhitespace {
		out = strings.Join(strings.Fields(out), " ")
	}
	if opts.Lowercase {
		out = strings.ToLower(out)
	}
	if opts.RemovePunctuation {
		out = strings.Map(func(r rune) rune {
			if strings.ContainsRune(asciiPunctuation, r) {
				return -1
			}
			return r
		}, out)
	}

	final := utf8.RuneCountInString(out)
	result := voice.NewText(out)
	result.Metadata = map[string]any{
		"original_length": original,
		"final_length":    final,
		"operations": map[string]bool{
			"lowercase":          opts.Lowercase,
			"remove_punctuation": opts.RemovePunctuation,
			"strip_whitespace":   opts.StripWhitespace,
		},
	}

	n.rec.Trace(componentName, "NORMALIZE_END", map[string]any{
		"final_length":  final,
		"reduction_pct": math.Round((1-float64(final)/float64(original))*10000) / 100,
	}, time.Since(start))
	return result, nil
}

func preview(s string) string {
	if utf8.RuneCountInString(s) <= 50 {
		return s
	}
	return string([]rune(s)[:50])
}
