package server

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	napv1 "github.com/nupi-ai/nupi/api/nap/v1"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/adapterinfo"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/cache"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/config"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/engine"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/speech"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/storage"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const neutralMarker = "[PROSODY:speed=1.00,volume=1.00]"

// fakeSynthesizer implements speech.Synthesizer for testing.
type fakeSynthesizer struct {
	data     []byte
	duration float64
	err      error

	mu    sync.Mutex
	calls int
	text  voice.TextData
	opts  speech.SynthesisOptions
}

func (f *fakeSynthesizer) Synthesize(_ context.Context, text voice.TextData, opts speech.SynthesisOptions) (voice.AudioData, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.text = text
	f.opts = opts
	if f.err != nil {
		return voice.AudioData{}, f.err
	}
	return voice.NewAudio(f.data, "mp3", 22050, f.duration), nil
}

func (f *fakeSynthesizer) snapshot() (int, voice.TextData, speech.SynthesisOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.text, f.opts
}

func testConfig() config.Config {
	return config.Config{
		ListenAddr: "bufconn",
		LogLevel:   "error",
		Language:   "client",
		TTSEngine:  "gtts",
	}
}

type harness struct {
	client napv1.TextToSpeechServiceClient
	voices *engine.Customizer
}

// setup creates a bufconn gRPC server+client pair backed by a fresh profile store.
func setup(t *testing.T, cfg config.Config, synth speech.Synthesizer, audioCache *cache.Cache) harness {
	t.Helper()
	store, err := storage.NewJSONStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	voices := engine.New(store, nil)

	buf := bufconn.Listen(1024 * 1024)
	srv := grpc.NewServer()
	napv1.RegisterTextToSpeechServiceServer(srv, New(cfg, slog.Default(), voices, synth, nil, audioCache))

	go func() {
		if err := srv.Serve(buf); err != nil {
			t.Logf("server exited: %v", err)
		}
	}()

	conn, err := grpc.NewClient(
		"passthrough:///bufconn",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return buf.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		srv.Stop()
	})
	return harness{client: napv1.NewTextToSpeechServiceClient(conn), voices: voices}
}

func synthesize(t *testing.T, h harness, req *napv1.StreamSynthesisRequest) []*napv1.SynthesisResponse {
	t.Helper()
	stream, err := h.client.StreamSynthesis(context.Background(), req)
	if err != nil {
		t.Fatalf("StreamSynthesis: %v", err)
	}
	var responses []*napv1.SynthesisResponse
	for {
		resp, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			// The server closes with an error after sending STATUS_ERROR.
			break
		}
		responses = append(responses, resp)
	}
	return responses
}

func chunks(responses []*napv1.SynthesisResponse) []*napv1.AudioChunk {
	var out []*napv1.AudioChunk
	for _, r := range responses {
		if r.Chunk != nil {
			out = append(out, r.Chunk)
		}
	}
	return out
}

func audioOf(responses []*napv1.SynthesisResponse) []byte {
	var buf bytes.Buffer
	for _, c := range chunks(responses) {
		buf.Write(c.Data)
	}
	return buf.Bytes()
}

func errorOf(responses []*napv1.SynthesisResponse) (string, bool) {
	for _, r := range responses {
		if r.Status == napv1.SynthesisStatus_SYNTHESIS_STATUS_ERROR {
			return r.ErrorMessage, true
		}
	}
	return "", false
}

func TestStreamSynthesisSuccess(t *testing.T) {
	data := bytes.Repeat([]byte{0xAB}, 10000)
	fake := &fakeSynthesizer{data: data, duration: 3.0}
	h := setup(t, testConfig(), fake, nil)

	responses := synthesize(t, h, &napv1.StreamSynthesisRequest{Text: "hello world", SessionId: "s", StreamId: "x"})

	got := audioOf(responses)
	want := append([]byte(neutralMarker), data...)
	if !bytes.Equal(got, want) {
		t.Fatalf("audio length = %d, want %d", len(got), len(want))
	}

	cs := chunks(responses)
	wantChunks := (len(want) + chunkSize - 1) / chunkSize
	if len(cs) != wantChunks {
		t.Fatalf("got %d chunks, want %d", len(cs), wantChunks)
	}
	var totalMs uint32
	for i, c := range cs {
		if c.Sequence != uint64(i+1) {
			t.Errorf("chunk %d sequence = %d", i, c.Sequence)
		}
		if c.First != (i == 0) || c.Last != (i == len(cs)-1) {
			t.Errorf("chunk %d first/last = %v/%v", i, c.First, c.Last)
		}
		if i < len(cs)-1 && len(c.Data) != chunkSize {
			t.Errorf("chunk %d size = %d", i, len(c.Data))
		}
		totalMs += c.DurationMs
	}
	if totalMs < 2990 || totalMs > 3000 {
		t.Errorf("total chunk duration = %dms, want about 3000", totalMs)
	}
}

func TestStreamSynthesisStatusSequence(t *testing.T) {
	h := setup(t, testConfig(), speech.NewMockSynthesizer(nil), nil)
	responses := synthesize(t, h, &napv1.StreamSynthesisRequest{Text: "sequence test"})

	if len(responses) < 3 {
		t.Fatalf("got %d responses, want at least 3", len(responses))
	}
	if responses[0].Status != napv1.SynthesisStatus_SYNTHESIS_STATUS_STARTED {
		t.Errorf("first status = %v, want STARTED", responses[0].Status)
	}
	if responses[1].Status != napv1.SynthesisStatus_SYNTHESIS_STATUS_PLAYING || responses[1].Chunk != nil {
		t.Errorf("second response = %v, want bare PLAYING", responses[1])
	}
	last := responses[len(responses)-1]
	if last.Status != napv1.SynthesisStatus_SYNTHESIS_STATUS_FINISHED {
		t.Errorf("last status = %v, want FINISHED", last.Status)
	}
	if last.Metadata["text_length"] != "13" || last.Metadata["total_chunks"] != "1" {
		t.Errorf("finished metadata = %v", last.Metadata)
	}

	want := neutralMarker + "MOCK_AUDIO_DATA_sequence test"
	if got := string(audioOf(responses)); got != want {
		t.Errorf("audio = %q, want %q", got, want)
	}
}

func TestStreamSynthesisEmptyText(t *testing.T) {
	fake := &fakeSynthesizer{}
	h := setup(t, testConfig(), fake, nil)

	for _, text := range []string{"", "   "} {
		responses := synthesize(t, h, &napv1.StreamSynthesisRequest{Text: text})
		if _, ok := errorOf(responses); !ok {
			t.Errorf("text %q: expected STATUS_ERROR", text)
		}
	}
	if calls, _, _ := fake.snapshot(); calls != 0 {
		t.Errorf("synthesizer called %d times", calls)
	}
}

func TestStreamSynthesisSynthesizerError(t *testing.T) {
	fake := &fakeSynthesizer{err: fmt.Errorf("%w: boom", voice.ErrUnsupportedEngine)}
	h := setup(t, testConfig(), fake, nil)

	msg, ok := errorOf(synthesize(t, h, &napv1.StreamSynthesisRequest{Text: "fail"}))
	if !ok {
		t.Fatal("expected STATUS_ERROR")
	}
	if !strings.Contains(msg, "synthesis failed") {
		t.Errorf("message = %q", msg)
	}
}

func TestStreamSynthesisVoiceMetadata(t *testing.T) {
	fake := &fakeSynthesizer{data: []byte("pcm"), duration: 1}
	h := setup(t, testConfig(), fake, nil)

	responses := synthesize(t, h, &napv1.StreamSynthesisRequest{
		Text: "narrate",
		Metadata: map[string]string{
			MetaPreset:    "narrator_deep",
			MetaEmotion:   "Sad",
			MetaIntensity: "0.4",
			MetaEffects:   "reverb:0.7",
		},
	})
	if msg, ok := errorOf(responses); ok {
		t.Fatalf("unexpected error: %s", msg)
	}

	cs := chunks(responses)
	if len(cs) != 1 {
		t.Fatalf("got %d chunks", len(cs))
	}
	md := cs[0].Metadata
	checks := map[string]string{
		adapterinfo.KeyProfile:   "Deep Narrator",
		adapterinfo.KeyEmotion:   "sad",
		adapterinfo.KeyIntensity: "0.4",
		adapterinfo.KeyEffects:   "reverb",
		adapterinfo.KeyEngine:    "gtts",
		adapterinfo.KeyCached:    "false",
	}
	for k, v := range checks {
		if md[k] != v {
			t.Errorf("metadata %s = %q, want %q", k, md[k], v)
		}
	}
	if !bytes.Contains(cs[0].Data, []byte("[reverb:0.7][PITCH:-4.6]pcm")) {
		t.Errorf("audio = %q", cs[0].Data)
	}
}

func TestStreamSynthesisSavedProfile(t *testing.T) {
	fake := &fakeSynthesizer{data: []byte("pcm"), duration: 1}
	h := setup(t, testConfig(), fake, nil)

	p, err := h.voices.CreateCustomVoice("Mine", "", voice.ProfileUpdate{Pitch: voice.Ptr(2.0)})
	if err != nil {
		t.Fatal(err)
	}
	responses := synthesize(t, h, &napv1.StreamSynthesisRequest{
		Text:     "mine",
		Metadata: map[string]string{MetaProfileID: p.ProfileID},
	})
	cs := chunks(responses)
	if len(cs) != 1 {
		t.Fatalf("got %d chunks", len(cs))
	}
	if cs[0].Metadata[adapterinfo.KeyProfileID] != p.ProfileID {
		t.Errorf("profile_id = %q", cs[0].Metadata[adapterinfo.KeyProfileID])
	}
	if !bytes.HasSuffix(cs[0].Data, []byte("[PITCH:+2.0]pcm")) {
		t.Errorf("audio = %q", cs[0].Data)
	}
}

func TestStreamSynthesisDefaultPreset(t *testing.T) {
	cfg := testConfig()
	cfg.DefaultPreset = "child_voice"
	h := setup(t, cfg, &fakeSynthesizer{data: []byte("x"), duration: 1}, nil)

	cs := chunks(synthesize(t, h, &napv1.StreamSynthesisRequest{Text: "hi"}))
	if len(cs) != 1 || cs[0].Metadata[adapterinfo.KeyProfile] != "Child Voice" {
		t.Fatalf("chunks = %v", cs)
	}
}

func TestStreamSynthesisInvalidVoiceMetadata(t *testing.T) {
	tests := map[string]map[string]string{
		"intensity_syntax": {MetaIntensity: "loud"},
		"intensity_range":  {MetaIntensity: "1.5"},
		"intensity_nan":    {MetaIntensity: "NaN"},
		"emotion":          {MetaEmotion: "bored"},
		"effects":          {MetaEffects: "flanger"},
		"preset":           {MetaPreset: "nope"},
		"transform":        {MetaTransform: "alien"},
		"profile":          {MetaProfileID: "missing"},
	}
	for name, md := range tests {
		t.Run(name, func(t *testing.T) {
			h := setup(t, testConfig(), &fakeSynthesizer{data: []byte("x"), duration: 1}, nil)
			responses := synthesize(t, h, &napv1.StreamSynthesisRequest{Text: "hi", Metadata: md})
			if _, ok := errorOf(responses); !ok {
				t.Error("expected STATUS_ERROR")
			}
			if len(chunks(responses)) != 0 {
				t.Error("no audio expected")
			}
		})
	}
}

func TestStreamSynthesisCacheHit(t *testing.T) {
	audioCache, err := cache.New(t.TempDir(), 1024*1024, nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	fake := &fakeSynthesizer{data: bytes.Repeat([]byte{1}, 5000), duration: 2}
	h := setup(t, testConfig(), fake, audioCache)

	req := &napv1.StreamSynthesisRequest{
		Text:     "cache me",
		Metadata: map[string]string{MetaPreset: "friendly_assistant", MetaEffects: "echo"},
	}
	first := synthesize(t, h, req)
	second := synthesize(t, h, req)

	if calls, _, _ := fake.snapshot(); calls != 1 {
		t.Errorf("synthesizer calls = %d, want 1", calls)
	}
	if !bytes.Equal(audioOf(first), audioOf(second)) {
		t.Error("cached audio differs from the original render")
	}
	last := second[len(second)-1]
	if last.Metadata["source"] != "cache" {
		t.Errorf("finished metadata = %v", last.Metadata)
	}
	cs := chunks(second)
	if cs[0].Metadata[adapterinfo.KeyCached] != "true" || cs[0].Metadata[adapterinfo.KeyEmotion] != "happy" {
		t.Errorf("chunk metadata = %v", cs[0].Metadata)
	}
	if st := audioCache.Stats(); st.Entries != 1 || st.Hits != 1 {
		t.Errorf("cache stats = %+v", st)
	}
}

func TestStreamSynthesisCacheMissOnDifferentVoice(t *testing.T) {
	audioCache, err := cache.New(t.TempDir(), 1024*1024, nil)
	if err != nil {
		t.Fatalf("cache.New: %v", err)
	}
	fake := &fakeSynthesizer{data: []byte("pcm"), duration: 1}
	h := setup(t, testConfig(), fake, audioCache)

	synthesize(t, h, &napv1.StreamSynthesisRequest{Text: "same", Metadata: map[string]string{MetaEmotion: "calm"}})
	synthesize(t, h, &napv1.StreamSynthesisRequest{Text: "same", Metadata: map[string]string{MetaEmotion: "angry"}})
	synthesize(t, h, &napv1.StreamSynthesisRequest{Text: "same", Metadata: map[string]string{MetaEmotion: "angry", MetaTransform: "robot"}})

	if calls, _, _ := fake.snapshot(); calls != 3 {
		t.Errorf("synthesizer calls = %d, want 3", calls)
	}
}

func TestStreamSynthesisTransformPreset(t *testing.T) {
	fake := &fakeSynthesizer{data: []byte("pcm"), duration: 1}
	h := setup(t, testConfig(), fake, nil)

	responses := synthesize(t, h, &napv1.StreamSynthesisRequest{
		Text: "shift",
		Metadata: map[string]string{
			MetaEmotion:   "neutral",
			MetaTransform: " Male_To_Female ",
		},
	})
	if msg, ok := errorOf(responses); ok {
		t.Fatalf("unexpected error: %s", msg)
	}
	cs := chunks(responses)
	if len(cs) != 1 {
		t.Fatalf("got %d chunks", len(cs))
	}
	if got := cs[0].Metadata[adapterinfo.KeyTransform]; got != "male_to_female" {
		t.Errorf("transform metadata = %q", got)
	}
	if !bytes.Contains(cs[0].Data, []byte("[TIMBRE:+0.50][FORMANT:+1.15][PITCH:+4.0]pcm")) {
		t.Errorf("audio = %q", cs[0].Data)
	}
}

func TestStreamSynthesisLanguage(t *testing.T) {
	tests := []struct {
		name     string
		mode     string
		metadata map[string]string
		want     string
	}{
		{"client_metadata", "client", map[string]string{MetaLanguage: "pl"}, "pl"},
		{"client_fallback", "client", nil, voice.DefaultLanguage},
		{"auto", "auto", map[string]string{MetaLanguage: "pl"}, voice.DefaultLanguage},
		{"fixed", "de", map[string]string{MetaLanguage: "pl"}, "de"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Language = tt.mode
			fake := &fakeSynthesizer{data: []byte("x"), duration: 1}
			h := setup(t, cfg, fake, nil)

			synthesize(t, h, &napv1.StreamSynthesisRequest{Text: "hi", Metadata: tt.metadata})
			_, text, opts := fake.snapshot()
			if text.Language != tt.want {
				t.Errorf("language = %q, want %q", text.Language, tt.want)
			}
			if opts.Engine != "gtts" {
				t.Errorf("engine = %q", opts.Engine)
			}
		})
	}
}

func TestChunkDurationMs(t *testing.T) {
	if got := chunkDurationMs(4096, 8192, 2); got != 1000 {
		t.Errorf("half = %d", got)
	}
	if got := chunkDurationMs(10, 0, 2); got != 0 {
		t.Errorf("empty = %d", got)
	}
	if got := chunkDurationMs(10, 10, 0); got != 0 {
		t.Errorf("no duration = %d", got)
	}
}
