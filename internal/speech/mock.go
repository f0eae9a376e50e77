package speech

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const (
	ttsComponent = "TTSEngineComponent"
	sttComponent = "SpeechRecognitionComponent"

	// MaxTextLength is the longest text MockSynthesizer accepts.
	MaxTextLength = 5000

	// charsPerSecond approximates speaking rate for duration estimates.
	charsPerSecond = 150

	mockPrefix       = "MOCK_AUDIO_DATA_"
	mockPayloadBytes = 100
	mockSampleRate   = 22050
	mockFormat       = "mp3"
	mockConfidence   = 0.95
)

var (
	ttsEngines = []string{"gtts", "pyttsx3", "azure", "elevenlabs"}
	sttEngines = []string{"google", "azure", "whisper", "sphinx"}
)

// TTSEngines lists the engine names MockSynthesizer accepts.
func TTSEngines() []string { return slices.Clone(ttsEngines) }

// STTEngines lists the engine names MockRecognizer accepts.
func STTEngines() []string { return slices.Clone(sttEngines) }

// MockSynthesizer implements Synthesizer with deterministic output: a fixed
// prefix followed by the first bytes of the text. It is intended for CI and
// for deployments without a remote TTS provider.
type MockSynthesizer struct {
	rec *telemetry.Recorder
}

// NewMockSynthesizer returns a mock synthesizer. A nil recorder discards
// telemetry.
func NewMockSynthesizer(rec *telemetry.Recorder) *MockSynthesizer {
	if rec == nil {
		rec = telemetry.Discard()
	}
	return &MockSynthesizer{rec: rec}
}

// Synthesize returns mock mp3 audio whose duration is proportional to the
// text length in characters and inversely proportional to speed. The payload
// keeps the first bytes of the text.
func (s *MockSynthesizer) Synthesize(ctx context.Context, text voice.TextData, opts SynthesisOptions) (voice.AudioData, error) {
	start := time.Now()
	if opts.Speed <= 0 {
		opts.Speed = 1.0
	}
	if opts.Voice == "" {
		opts.Voice = "default"
	}
	chars := utf8.RuneCountInString(text.Text)
	s.rec.Trace(ttsComponent, "TTS_REQUEST", map[string]any{
		"engine":      opts.Engine,
		"text_length": chars,
		"voice":       opts.Voice,
		"speed":       opts.Speed,
	}, 0)

	fail := func(err error) (voice.AudioData, error) {
		return voice.AudioData{}, s.rec.Failure(ttsComponent, "TTS_FAILED", "ERR_TTS_001",
			voice.RecoveryRetry, err, map[string]any{"engine": opts.Engine})
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if !slices.Contains(ttsEngines, opts.Engine) {
		return fail(fmt.Errorf("%w: %q", voice.ErrUnsupportedEngine, opts.Engine))
	}
	if strings.TrimSpace(text.Text) == "" {
		return fail(voice.ErrEmptyText)
	}
	if chars > MaxTextLength {
		return fail(fmt.Errorf("%w: %d > %d characters", voice.ErrTextTooLong, chars, MaxTextLength))
	}

	payload := []byte(text.Text)
	if len(payload) > mockPayloadBytes {
		payload = payload[:mockPayloadBytes]
	}
	data := append([]byte(mockPrefix), payload...)
	duration := float64(chars) / (charsPerSecond * opts.Speed)
	out := voice.NewAudio(data, mockFormat, mockSampleRate, duration)

	s.rec.Trace(ttsComponent, "TTS_SUCCESS", map[string]any{
		"audio_duration": out.Duration,
		"audio_size":     len(out.Bytes),
	}, time.Since(start))
	return out, nil
}

// MockRecognizer implements Recognizer with a canned transcription.
type MockRecognizer struct {
	rec *telemetry.Recorder
}

// NewMockRecognizer returns a mock recognizer. A nil recorder discards
// telemetry.
func NewMockRecognizer(rec *telemetry.Recorder) *MockRecognizer {
	if rec == nil {
		rec = telemetry.Discard()
	}
	return &MockRecognizer{rec: rec}
}

// Recognize returns "[MOCK TRANSCRIPTION from <engine>]".
func (r *MockRecognizer) Recognize(ctx context.Context, audio voice.AudioData, opts RecognitionOptions) (voice.TextData, error) {
	start := time.Now()
	if opts.Language == "" {
		opts.Language = voice.DefaultLanguage
	}
	r.rec.Trace(sttComponent, "STT_REQUEST", map[string]any{
		"engine":         opts.Engine,
		"language":       opts.Language,
		"audio_duration": audio.Duration,
	}, 0)

	fail := func(err error) (voice.TextData, error) {
		return voice.TextData{}, r.rec.Failure(sttComponent, "STT_FAILED", "ERR_STT_001",
			voice.RecoveryRetry, err, map[string]any{"engine": opts.Engine})
	}
	if err := ctx.Err(); err != nil {
		return fail(err)
	}
	if !slices.Contains(sttEngines, opts.Engine) {
		return fail(fmt.Errorf("%w: %q", voice.ErrUnsupportedEngine, opts.Engine))
	}
	if len(audio.Bytes) == 0 {
		return fail(voice.ErrEmptyAudio)
	}

	out := voice.TextData{
		Text:       fmt.Sprintf("[MOCK TRANSCRIPTION from %s]", opts.Engine),
		Confidence: mockConfidence,
		Language:   opts.Language,
		Metadata:   map[string]any{"engine": opts.Engine},
	}

	r.rec.Trace(sttComponent, "STT_SUCCESS", map[string]any{
		"text_length": len(out.Text),
		"confidence":  out.Confidence,
	}, time.Since(start))
	return out, nil
}
