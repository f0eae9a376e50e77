package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	napv1 "github.com/nupi-ai/nupi/api/nap/v1"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/adapterinfo"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/cache"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/config"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/effects"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/engine"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/speech"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/transform"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const (
	componentName = "SynthesisServer"
	chunkSize     = 4096 // bytes per chunk
)

// Request metadata keys selecting the voice.
const (
	MetaProfileID = "voicekit.profile_id"
	MetaPreset    = "voicekit.preset"
	MetaEmotion   = "voicekit.emotion"
	MetaIntensity = "voicekit.emotion_intensity"
	MetaEffects   = "voicekit.effects"
	MetaTransform = "voicekit.transform"
	MetaLanguage  = "nupi.lang.iso1"
)

// Server implements the TextToSpeechService: text is synthesized, rendered
// with the requested voice profile and streamed back in chunks.
type Server struct {
	napv1.UnimplementedTextToSpeechServiceServer

	cfg    config.Config
	log    *slog.Logger
	voices *engine.Customizer
	tts    speech.Synthesizer
	rec    *telemetry.Recorder
	cache  *cache.Cache // nil when caching is disabled
}

// New returns a new Server instance.
func New(cfg config.Config, logger *slog.Logger, voices *engine.Customizer, tts speech.Synthesizer, rec *telemetry.Recorder, audioCache *cache.Cache) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if voices == nil || tts == nil {
		panic("server: customizer and synthesizer must not be nil")
	}
	if rec == nil {
		rec = telemetry.Discard()
	}
	return &Server{
		cfg: cfg,
		log: logger.With(
			"component", "server",
			"tts_engine", cfg.TTSEngine,
		),
		voices: voices,
		tts:    tts,
		rec:    rec,
		cache:  audioCache,
	}
}

// voiceRequest is the voice selection carried in request metadata.
type voiceRequest struct {
	profileID string
	preset    string
	emotion   voice.Emotion
	intensity *float64
	effects   []voice.EffectConfig

	transformName string
	transform     *voice.VoiceTransform
}

func (s *Server) parseVoiceRequest(md map[string]string) (voiceRequest, error) {
	vr := voiceRequest{
		profileID: strings.TrimSpace(md[MetaProfileID]),
		preset:    strings.TrimSpace(md[MetaPreset]),
		emotion:   voice.Emotion(strings.ToLower(strings.TrimSpace(md[MetaEmotion]))),
		intensity: s.cfg.EmotionIntensity,
	}
	if vr.preset == "" {
		vr.preset = s.cfg.DefaultPreset
	}
	if raw := strings.TrimSpace(md[MetaIntensity]); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return voiceRequest{}, fmt.Errorf("invalid %s %q", MetaIntensity, raw)
		}
		vr.intensity = &v
	}
	if raw := strings.TrimSpace(md[MetaEffects]); raw != "" {
		chain, err := effects.ParseChain(raw)
		if err != nil {
			return voiceRequest{}, fmt.Errorf("invalid %s: %w", MetaEffects, err)
		}
		vr.effects = chain
	}
	if name := strings.ToLower(strings.TrimSpace(md[MetaTransform])); name != "" {
		tr, err := transform.Preset(name)
		if err != nil {
			return voiceRequest{}, fmt.Errorf("invalid %s: %w", MetaTransform, err)
		}
		vr.transformName, vr.transform = name, &tr
	}
	return vr, nil
}

// cachedRender is the on-disk form of a rendered buffer.
type cachedRender struct {
	Format     string  `json:"format"`
	SampleRate int     `json:"sample_rate"`
	Duration   float64 `json:"duration"`
	Emotion    string  `json:"emotion"`
	Intensity  float64 `json:"intensity"`
	Audio      []byte  `json:"audio"`
}

// StreamSynthesis accepts a text synthesis request and streams back audio chunks.
func (s *Server) StreamSynthesis(req *napv1.StreamSynthesisRequest, stream napv1.TextToSpeechService_StreamSynthesisServer) error {
	if req == nil {
		return fmt.Errorf("server: request is nil")
	}

	text := req.GetText()
	md := req.GetMetadata()
	logEntry := s.log.With(
		"session_id", req.GetSessionId(),
		"stream_id", req.GetStreamId(),
		"text_length", len(text),
	)

	if strings.TrimSpace(text) == "" {
		logEntry.Warn("empty text in synthesis request")
		return s.sendError(stream, "text is required")
	}

	vr, err := s.parseVoiceRequest(md)
	if err != nil {
		logEntry.Warn("invalid voice metadata", "error", err)
		return s.sendError(stream, err.Error())
	}
	profile, err := s.voices.ResolveProfile(vr.profileID, vr.preset)
	if err != nil {
		logEntry.Warn("voice profile unavailable", "error", err)
		return s.sendError(stream, fmt.Sprintf("voice profile: %v", err))
	}

	lang := resolveLanguage(s.cfg.Language, md)
	logEntry = logEntry.With("language", lang, "profile_id", profile.ProfileID, "profile", profile.Name)
	logEntry.Info("synthesis request received")
	s.rec.Trace(componentName, "SYNTHESIS_START", map[string]any{
		"session_id": req.GetSessionId(),
		"stream_id":  req.GetStreamId(),
		"profile_id": profile.ProfileID,
		"language":   lang,
	}, 0)

	if err := s.sendStatus(stream, napv1.SynthesisStatus_SYNTHESIS_STATUS_STARTED, nil); err != nil {
		logEntry.Error("failed to send started status", "error", err)
		return err
	}

	var cacheKey string
	if s.cache != nil {
		emotion := vr.emotion
		if emotion == "" {
			emotion = profile.EmotionDefault
		}
		intensity := engine.DefaultIntensity
		if vr.intensity != nil {
			intensity = *vr.intensity
		}
		cacheKey = cache.Key(cache.RenderKey{
			Text:        text,
			Engine:      s.cfg.TTSEngine,
			Fingerprint: cache.Fingerprint(profile),
			Emotion:     emotion,
			Intensity:   intensity,
			Effects:     vr.effects,
			Transform:   vr.transform,
		})
		if data, ok := s.cache.Get(cacheKey); ok {
			var hit cachedRender
			if err := json.Unmarshal(data, &hit); err == nil {
				logEntry.Info("cache hit", "key", cacheKey)
				v := adapterinfo.Voice{
					Engine:    s.cfg.TTSEngine,
					Profile:   profile,
					Emotion:   voice.Emotion(hit.Emotion),
					Intensity: hit.Intensity,
					Effects:   vr.effects,
					Transform: vr.transformName,
					Cached:    true,
				}
				return s.streamAudio(stream, hit.Audio, hit.Duration, v, text, time.Now(), logEntry)
			}
			logEntry.Warn("discarding undecodable cache entry", "key", cacheKey)
		}
		logEntry.Debug("cache miss", "key", cacheKey)
	}

	start := time.Now()
	input := voice.NewText(text)
	if lang != "auto" {
		input.Language = lang
	} else {
		input.Language = profile.Language
	}
	synthesized, err := s.tts.Synthesize(stream.Context(), input, speech.SynthesisOptions{
		Engine: s.cfg.TTSEngine,
		Speed:  1.0,
	})
	if err != nil {
		logEntry.Error("synthesis failed", "error", err)
		return s.sendError(stream, fmt.Sprintf("synthesis failed: %v", err))
	}

	res, err := s.voices.ApplyVoiceProfile(synthesized, profile, engine.ApplyOptions{
		Emotion:   vr.emotion,
		Intensity: vr.intensity,
		Effects:   vr.effects,
		Transform: vr.transform,
	})
	if err != nil {
		logEntry.Error("voice rendering failed", "error", err)
		return s.sendError(stream, fmt.Sprintf("voice rendering failed: %v", err))
	}

	if s.cache != nil {
		entry, err := json.Marshal(cachedRender{
			Format:     res.Audio.Format,
			SampleRate: res.Audio.SampleRate,
			Duration:   res.Audio.Duration,
			Emotion:    string(res.Prosody.Emotion),
			Intensity:  res.Prosody.Intensity,
			Audio:      res.Audio.Bytes,
		})
		if err == nil {
			err = s.cache.Put(cacheKey, entry)
		}
		if err != nil {
			logEntry.Warn("failed to store in cache", "error", err)
		}
	}

	v := adapterinfo.Voice{
		Engine:    s.cfg.TTSEngine,
		Profile:   profile,
		Emotion:   res.Prosody.Emotion,
		Intensity: res.Prosody.Intensity,
		Effects:   res.Effects,
		Transform: vr.transformName,
	}
	return s.streamAudio(stream, res.Audio.Bytes, res.Audio.Duration, v, text, start, logEntry)
}

// streamAudio sends data in chunkSize pieces. Each chunk carries its share of
// durationSec.
func (s *Server) streamAudio(stream napv1.TextToSpeechService_StreamSynthesisServer, data []byte, durationSec float64, v adapterinfo.Voice, text string, start time.Time, logEntry *slog.Logger) error {
	if err := s.sendStatus(stream, napv1.SynthesisStatus_SYNTHESIS_STATUS_PLAYING, nil); err != nil {
		logEntry.Error("failed to send playing status", "error", err)
		return err
	}

	ctx := stream.Context()
	chunkMeta := adapterinfo.SynthesisMetadata(v)
	var sequence uint64
	for offset := 0; offset < len(data); offset += chunkSize {
		if err := ctx.Err(); err != nil {
			logEntry.Info("synthesis interrupted", "reason", err)
			return s.sendStatus(stream, napv1.SynthesisStatus_SYNTHESIS_STATUS_INTERRUPTED, map[string]string{
				"reason": err.Error(),
			})
		}

		end := min(offset+chunkSize, len(data))
		sequence++
		chunk := &napv1.AudioChunk{
			Data:       data[offset:end],
			Sequence:   sequence,
			First:      sequence == 1,
			Last:       end == len(data),
			Metadata:   chunkMeta,
			DurationMs: chunkDurationMs(end-offset, len(data), durationSec),
		}
		resp := &napv1.SynthesisResponse{
			Status: napv1.SynthesisStatus_SYNTHESIS_STATUS_PLAYING,
			Chunk:  chunk,
		}
		if err := stream.Send(resp); err != nil {
			logEntry.Error("failed to send audio chunk", "error", err, "sequence", sequence)
			return err
		}
		logEntry.Debug("sent audio chunk", "sequence", sequence, "bytes", end-offset, "duration_ms", chunk.DurationMs)
	}

	elapsed := time.Since(start)
	logEntry.Info("synthesis completed",
		"total_bytes", len(data),
		"chunks", sequence,
		"cached", v.Cached,
		"elapsed_sec", elapsed.Seconds(),
	)
	s.rec.Trace(componentName, "SYNTHESIS_END", map[string]any{
		"profile_id":   v.Profile.ProfileID,
		"total_bytes":  len(data),
		"total_chunks": sequence,
		"cached":       v.Cached,
	}, elapsed)

	metadata := map[string]string{
		"total_bytes":  strconv.Itoa(len(data)),
		"total_chunks": strconv.FormatUint(sequence, 10),
		"duration_sec": fmt.Sprintf("%.2f", durationSec),
		"text_length":  strconv.Itoa(len(text)),
		"profile_id":   v.Profile.ProfileID,
	}
	if v.Cached {
		metadata["source"] = "cache"
	}
	return s.sendStatus(stream, napv1.SynthesisStatus_SYNTHESIS_STATUS_FINISHED, metadata)
}

// chunkDurationMs apportions the total duration by byte share.
func chunkDurationMs(n, total int, durationSec float64) uint32 {
	if total == 0 || durationSec <= 0 {
		return 0
	}
	return uint32(durationSec * 1000 * float64(n) / float64(total))
}

func (s *Server) sendStatus(stream napv1.TextToSpeechService_StreamSynthesisServer, status napv1.SynthesisStatus, metadata map[string]string) error {
	resp := &napv1.SynthesisResponse{
		Status:   status,
		Metadata: metadata,
	}
	return stream.Send(resp)
}

func (s *Server) sendError(stream napv1.TextToSpeechService_StreamSynthesisServer, message string) error {
	s.rec.Trace(componentName, "SYNTHESIS_FAILED", map[string]any{"error": message}, 0)
	resp := &napv1.SynthesisResponse{
		Status:       napv1.SynthesisStatus_SYNTHESIS_STATUS_ERROR,
		ErrorMessage: message,
	}
	if err := stream.Send(resp); err != nil {
		return err
	}
	return fmt.Errorf("synthesis error: %s", message)
}

// resolveLanguage returns the effective language code for the synthesizer
// based on the configured language mode and request metadata.
//
// Modes:
//   - "client": read nupi.lang.iso1 from metadata; fall back to "auto" if absent.
//   - "auto":   always return "auto" (the profile language is used).
//   - other:    return the configured code verbatim (ignore metadata).
func resolveLanguage(configLang string, metadata map[string]string) string {
	if configLang != "client" {
		return configLang
	}
	if code := strings.TrimSpace(metadata[MetaLanguage]); code != "" {
		return code
	}
	return "auto"
}
