package cache

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

func newCache(t *testing.T, maxBytes int64) (*Cache, string) {
	t.Helper()
	dir := t.TempDir()
	c, err := New(dir, maxBytes, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, dir
}

func TestPutAndGet(t *testing.T) {
	c, dir := newCache(t, 1024*1024)

	data := []byte("[PROSODY:speed=1.00,volume=1.00]MOCK_AUDIO_DATA_hello")
	if err := c.Put("key1", data); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "key1.bin")); err != nil {
		t.Fatalf("cache file missing: %v", err)
	}

	got, ok := c.Get("key1")
	if !ok {
		t.Fatal("Get returned false, want true")
	}
	if string(got) != string(data) {
		t.Errorf("Get = %q, want %q", got, data)
	}
}

func TestGetMiss(t *testing.T) {
	c, _ := newCache(t, 1024*1024)
	if _, ok := c.Get("nonexistent"); ok {
		t.Fatal("Get returned true for nonexistent key")
	}
}

func TestStats(t *testing.T) {
	c, _ := newCache(t, 1024)
	c.Put("a", make([]byte, 10))
	c.Put("b", make([]byte, 20))
	c.Put("a", make([]byte, 5))
	c.Get("a")
	c.Get("zzz")

	got := c.Stats()
	want := Stats{Entries: 2, Bytes: 25, Hits: 1, Misses: 1}
	if got != want {
		t.Errorf("Stats = %+v, want %+v", got, want)
	}
}

func TestEvictionLRU(t *testing.T) {
	c, _ := newCache(t, 100)

	if err := c.Put("a", make([]byte, 60)); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	// Does not fit next to "a".
	if err := c.Put("b", make([]byte, 60)); err != nil {
		t.Fatalf("Put b: %v", err)
	}

	if _, ok := c.Get("a"); ok {
		t.Error("key 'a' should have been evicted")
	}
	if _, ok := c.Get("b"); !ok {
		t.Error("key 'b' should still exist")
	}
}

func TestEvictionOrder(t *testing.T) {
	c, _ := newCache(t, 150)

	c.Put("old", make([]byte, 50))
	c.Put("mid", make([]byte, 50))
	c.Get("old")

	c.Put("new", make([]byte, 60))

	if _, ok := c.Get("mid"); ok {
		t.Error("key 'mid' should have been evicted (least recently accessed)")
	}
	if _, ok := c.Get("old"); !ok {
		t.Error("key 'old' should still exist (recently accessed)")
	}
	if _, ok := c.Get("new"); !ok {
		t.Error("key 'new' should exist")
	}
}

func TestPutOversized(t *testing.T) {
	c, _ := newCache(t, 50)
	if err := c.Put("big", make([]byte, 100)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok := c.Get("big"); ok {
		t.Error("oversized entry should not be cached")
	}
}

func TestConcurrentAccess(t *testing.T) {
	c, _ := newCache(t, 1024*1024)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			key := Key(RenderKey{Text: "text", Engine: "gtts"})
			c.Put(key, make([]byte, 100))
			c.Get(key)
		}()
	}
	wg.Wait()

	if got := c.Stats(); got.Entries != 1 || got.Bytes != 100 {
		t.Errorf("Stats = %+v", got)
	}
}

func TestKey(t *testing.T) {
	base := RenderKey{
		Text:        "hello",
		Engine:      "gtts",
		Fingerprint: "abc",
		Emotion:     voice.EmotionHappy,
		Intensity:   0.5,
		Effects:     []voice.EffectConfig{{Type: voice.EffectReverb, Intensity: 0.3}},
	}
	if Key(base) != Key(base) {
		t.Fatal("same input produced different keys")
	}

	variants := map[string]func(k *RenderKey){
		"text":      func(k *RenderKey) { k.Text = "world" },
		"engine":    func(k *RenderKey) { k.Engine = "azure" },
		"voice":     func(k *RenderKey) { k.Fingerprint = "def" },
		"emotion":   func(k *RenderKey) { k.Emotion = voice.EmotionSad },
		"intensity": func(k *RenderKey) { k.Intensity = 0.6 },
		"no_effect": func(k *RenderKey) { k.Effects = nil },
		"transform": func(k *RenderKey) { k.Transform = &voice.VoiceTransform{PitchShift: 4} },
		"params": func(k *RenderKey) {
			k.Effects = []voice.EffectConfig{{Type: voice.EffectReverb, Intensity: 0.3, Parameters: map[string]any{"damping": 0.1}}}
		},
	}
	for name, mutate := range variants {
		t.Run(name, func(t *testing.T) {
			k := base
			mutate(&k)
			if Key(k) == Key(base) {
				t.Error("different input produced same key")
			}
		})
	}
}

func TestFingerprint(t *testing.T) {
	a := voice.NewProfile("Same")
	b := voice.NewProfile("Same")
	if Fingerprint(a) != Fingerprint(b) {
		t.Error("profiles differing only by id should share a fingerprint")
	}
	b.Pitch = 3
	if Fingerprint(a) == Fingerprint(b) {
		t.Error("pitch change should alter the fingerprint")
	}
}

func TestLoadExisting(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "abc123.bin"), []byte("audio data"), 0o644)
	os.WriteFile(filepath.Join(dir, "def456.bin"), []byte("more audio"), 0o644)
	os.WriteFile(filepath.Join(dir, "ignored.pcm"), []byte("other"), 0o644)

	c, err := New(dir, 1024*1024, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	got, ok := c.Get("abc123")
	if !ok || string(got) != "audio data" {
		t.Errorf("abc123 = %q, %v", got, ok)
	}
	got, ok = c.Get("def456")
	if !ok || string(got) != "more audio" {
		t.Errorf("def456 = %q, %v", got, ok)
	}
	if _, ok := c.Get("ignored"); ok {
		t.Error("foreign extension should not be indexed")
	}
}

func TestLoadExistingEvictsOverCapacity(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "aaa.bin"), make([]byte, 50), 0o644)
	os.WriteFile(filepath.Join(dir, "bbb.bin"), make([]byte, 50), 0o644)
	os.WriteFile(filepath.Join(dir, "ccc.bin"), make([]byte, 50), 0o644)

	c, err := New(dir, 100, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	st := c.Stats()
	if st.Bytes > 100 {
		t.Errorf("bytes after loadExisting = %d, want <= 100", st.Bytes)
	}
	if st.Entries > 2 {
		t.Errorf("entry count = %d, want <= 2", st.Entries)
	}
}

func TestStaleFileCleanup(t *testing.T) {
	c, dir := newCache(t, 1024*1024)
	c.Put("stale", []byte("data"))

	os.Remove(filepath.Join(dir, "stale.bin"))

	if _, ok := c.Get("stale"); ok {
		t.Error("Get should return false for deleted file")
	}
	if _, ok := c.Get("stale"); ok {
		t.Error("second Get should also return false")
	}
	if st := c.Stats(); st.Bytes != 0 || st.Entries != 0 {
		t.Errorf("Stats = %+v", st)
	}
}
