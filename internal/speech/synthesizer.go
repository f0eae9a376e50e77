// Package speech defines the text-to-speech and speech-to-text interfaces the
// adapter depends on, plus deterministic mock engines used in place of
// remote providers.
package speech

import (
	"context"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

// Synthesizer converts text to audio. The server depends on this interface so
// that tests and offline deployments can use MockSynthesizer.
type Synthesizer interface {
	Synthesize(ctx context.Context, text voice.TextData, opts SynthesisOptions) (voice.AudioData, error)
}

// SynthesisOptions selects the engine and voice for one request.
type SynthesisOptions struct {
	Engine string
	Voice  string
	Speed  float64 // <= 0 means 1.0
}

// Recognizer converts audio to text.
type Recognizer interface {
	Recognize(ctx context.Context, audio voice.AudioData, opts RecognitionOptions) (voice.TextData, error)
}

// RecognitionOptions selects the engine and language for one request.
type RecognitionOptions struct {
	Engine   string
	Language string
}
