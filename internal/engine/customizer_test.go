package engine

import (
	"bytes"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/effects"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/storage"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/transform"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

func newTestCustomizer(t *testing.T) *Customizer {
	t.Helper()
	store, err := storage.NewJSONStore(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("NewJSONStore: %v", err)
	}
	return New(store, nil)
}

func sampleAudio() voice.AudioData {
	return voice.NewAudio([]byte("test_audio"), "wav", 44100, 2.0)
}

func TestCreateCustomVoiceFromPreset(t *testing.T) {
	c := newTestCustomizer(t)
	p, err := c.CreateCustomVoice("My Voice", "professional_male", voice.ProfileUpdate{Pitch: voice.Ptr(-0.5)})
	if err != nil {
		t.Fatalf("CreateCustomVoice: %v", err)
	}
	if p.Name != "My Voice" || p.Pitch != -0.5 || p.Gender != voice.GenderMale || p.Speed != 0.95 {
		t.Errorf("profile = %+v", p)
	}
	saved, err := c.Store().Load(p.ProfileID)
	if err != nil {
		t.Fatalf("profile not saved: %v", err)
	}
	if saved.Pitch != -0.5 {
		t.Errorf("saved pitch = %v", saved.Pitch)
	}
}

func TestCreateCustomVoiceFromScratch(t *testing.T) {
	c := newTestCustomizer(t)
	p, err := c.CreateCustomVoice("Custom", "", voice.ProfileUpdate{
		Gender: voice.Ptr(voice.GenderFemale),
		Pitch:  voice.Ptr(2.0),
		Speed:  voice.Ptr(1.1),
	})
	if err != nil {
		t.Fatalf("CreateCustomVoice: %v", err)
	}
	if p.Name != "Custom" || p.Gender != voice.GenderFemale || p.Pitch != 2.0 {
		t.Errorf("profile = %+v", p)
	}
}

func TestCreateCustomVoiceErrors(t *testing.T) {
	c := newTestCustomizer(t)
	if _, err := c.CreateCustomVoice("x", "nope", voice.ProfileUpdate{}); !errors.Is(err, voice.ErrPresetNotFound) {
		t.Errorf("unknown preset err = %v", err)
	}
	if _, err := c.CreateCustomVoice("x", "", voice.ProfileUpdate{Speed: voice.Ptr(9.0)}); !errors.Is(err, voice.ErrInvalidProfile) {
		t.Errorf("invalid err = %v", err)
	}
	list, _ := c.SavedProfiles()
	if len(list) != 0 {
		t.Errorf("failed creations were saved: %v", list)
	}
}

func TestApplyVoiceProfile(t *testing.T) {
	c := newTestCustomizer(t)
	p, err := c.CreateCustomVoice("Test", "", voice.ProfileUpdate{Pitch: voice.Ptr(1.0)})
	if err != nil {
		t.Fatal(err)
	}

	res, err := c.ApplyVoiceProfile(sampleAudio(), p, ApplyOptions{
		Emotion:   voice.EmotionHappy,
		Intensity: voice.Ptr(0.8),
		Effects:   []voice.EffectConfig{effects.Reverb(0.5, 0.5)},
	})
	if err != nil {
		t.Fatalf("ApplyVoiceProfile: %v", err)
	}

	wantPitch := 1.0 + 2.0*0.8
	if math.Abs(res.Transform.PitchShift-wantPitch) > 1e-9 {
		t.Errorf("pitch = %v, want %v", res.Transform.PitchShift, wantPitch)
	}
	wantSpeed := 1 + 0.1*0.8
	if math.Abs(*res.Prosody.FinalSpeed-wantSpeed) > 1e-9 {
		t.Errorf("speed = %v, want %v", *res.Prosody.FinalSpeed, wantSpeed)
	}
	if math.Abs(res.Audio.Duration-2.0/wantSpeed) > 1e-9 {
		t.Errorf("duration = %v", res.Audio.Duration)
	}

	got := string(res.Audio.Bytes)
	want := "[PROSODY:speed=1.08,volume=1.04][reverb:0.5][PITCH:+2.6]test_audio"
	if got != want {
		t.Errorf("bytes = %q, want %q", got, want)
	}
	if res.Audio.Format != "wav" || res.Audio.SampleRate != 44100 {
		t.Errorf("shape changed: %+v", res.Audio)
	}
}

func TestApplyVoiceProfileDefaultsToProfileEmotion(t *testing.T) {
	c := newTestCustomizer(t)
	p, err := c.CreateCustomVoice("Assistant", "friendly_assistant", voice.ProfileUpdate{})
	if err != nil {
		t.Fatal(err)
	}
	res, err := c.ApplyVoiceProfile(sampleAudio(), p, ApplyOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Prosody.Emotion != voice.EmotionHappy || res.Prosody.Intensity != DefaultIntensity {
		t.Errorf("prosody = %+v", res.Prosody)
	}
}

func TestApplyVoiceProfileClampsFinals(t *testing.T) {
	c := newTestCustomizer(t)
	p := voice.NewProfile("edge")
	p.Pitch, p.Speed = 11, 1.9

	res, err := c.ApplyVoiceProfile(sampleAudio(), p, ApplyOptions{Emotion: voice.EmotionExcited})
	if err != nil {
		t.Fatalf("ApplyVoiceProfile: %v", err)
	}
	if res.Transform.PitchShift != voice.MaxPitch {
		t.Errorf("pitch = %v, want clamp to %v", res.Transform.PitchShift, voice.MaxPitch)
	}
	if *res.Prosody.FinalSpeed != voice.MaxSpeed {
		t.Errorf("speed = %v", *res.Prosody.FinalSpeed)
	}
}

func TestApplyVoiceProfileUsesTimbre(t *testing.T) {
	c := newTestCustomizer(t)
	p := voice.NewProfile("breathy")
	p.Timbre = map[string]float64{TimbreBreathiness: 0.4, TimbreFormantShift: 1.1}

	res, err := c.ApplyVoiceProfile(sampleAudio(), p, ApplyOptions{Emotion: voice.EmotionNeutral})
	if err != nil {
		t.Fatal(err)
	}
	if res.Transform.Breathiness != 0.4 || res.Transform.FormantShift != 1.1 {
		t.Errorf("transform = %+v", res.Transform)
	}
	if !bytes.Contains(res.Audio.Bytes, []byte("[BREATH:0.40]")) {
		t.Errorf("bytes = %q", res.Audio.Bytes)
	}
}

func TestApplyVoiceProfileComposesTransform(t *testing.T) {
	c := newTestCustomizer(t)
	p := voice.NewProfile("plain")
	p.Pitch = -2

	tr := transform.MaleToFemale()
	res, err := c.ApplyVoiceProfile(sampleAudio(), p, ApplyOptions{Emotion: voice.EmotionNeutral, Transform: &tr})
	if err != nil {
		t.Fatal(err)
	}
	want := voice.VoiceTransform{PitchShift: 2, FormantShift: 1.15, TimbreMorph: 0.5}
	if res.Transform != want {
		t.Errorf("transform = %+v, want %+v", res.Transform, want)
	}
	if !bytes.Contains(res.Audio.Bytes, []byte("[TIMBRE:+0.50][FORMANT:+1.15][PITCH:+2.0]test_audio")) {
		t.Errorf("bytes = %q", res.Audio.Bytes)
	}

	robot := transform.RobotVoice()
	p.Timbre = map[string]float64{TimbreRoughness: 0.5}
	res, err = c.ApplyVoiceProfile(sampleAudio(), p, ApplyOptions{Emotion: voice.EmotionNeutral, Transform: &robot})
	if err != nil {
		t.Fatal(err)
	}
	if res.Transform.Roughness != 1 || res.Transform.TimbreMorph != -1 {
		t.Errorf("robot transform = %+v", res.Transform)
	}
}

func TestApplyVoiceProfileErrors(t *testing.T) {
	c := newTestCustomizer(t)
	good := voice.NewProfile("ok")

	bad := voice.NewProfile("bad")
	bad.Volume = 7
	_, err := c.ApplyVoiceProfile(sampleAudio(), bad, ApplyOptions{})
	if !errors.Is(err, voice.ErrInvalidProfile) || voice.ErrorCode(err) != "ERR_ENGINE_001" {
		t.Errorf("invalid profile err = %v (%s)", err, voice.ErrorCode(err))
	}
	if _, err := c.ApplyVoiceProfile(sampleAudio(), good, ApplyOptions{Emotion: "bored"}); !errors.Is(err, voice.ErrInvalidEmotion) {
		t.Errorf("emotion err = %v", err)
	}
	if _, err := c.ApplyVoiceProfile(sampleAudio(), good, ApplyOptions{Intensity: voice.Ptr(2.0)}); !errors.Is(err, voice.ErrInvalidIntensity) {
		t.Errorf("intensity err = %v", err)
	}
	if _, err := c.ApplyVoiceProfile(sampleAudio(), good, ApplyOptions{Intensity: voice.Ptr(math.NaN())}); !errors.Is(err, voice.ErrInvalidIntensity) {
		t.Errorf("NaN intensity err = %v", err)
	}
	nanPitch := voice.NewProfile("nan")
	nanPitch.Pitch = math.NaN()
	if _, err := c.ApplyVoiceProfile(sampleAudio(), nanPitch, ApplyOptions{}); !errors.Is(err, voice.ErrInvalidProfile) {
		t.Errorf("NaN pitch err = %v", err)
	}
	bogus := []voice.EffectConfig{{Type: "flanger", Intensity: 0.2}}
	if _, err := c.ApplyVoiceProfile(sampleAudio(), good, ApplyOptions{Effects: bogus}); !errors.Is(err, voice.ErrInvalidEffect) {
		t.Errorf("effect err = %v", err)
	}
	timbre := voice.NewProfile("rough")
	timbre.Timbre[TimbreRoughness] = 3
	if _, err := c.ApplyVoiceProfile(sampleAudio(), timbre, ApplyOptions{}); !errors.Is(err, voice.ErrInvalidTransform) {
		t.Errorf("transform err = %v", err)
	}
}

func TestSavedProfileLifecycle(t *testing.T) {
	c := newTestCustomizer(t)
	p, err := c.CreateCustomVoice("Saved Voice", "", voice.ProfileUpdate{Pitch: voice.Ptr(1.5)})
	if err != nil {
		t.Fatal(err)
	}

	fresh := New(c.Store(), nil)
	loaded, err := fresh.LoadSavedProfile(p.ProfileID)
	if err != nil {
		t.Fatalf("LoadSavedProfile: %v", err)
	}
	if loaded.Name != p.Name || loaded.Pitch != p.Pitch {
		t.Errorf("loaded = %+v", loaded)
	}

	updated, err := fresh.UpdateSavedProfile(p.ProfileID, voice.ProfileUpdate{Name: voice.Ptr("Renamed")})
	if err != nil {
		t.Fatalf("UpdateSavedProfile: %v", err)
	}
	if updated.Name != "Renamed" || updated.Pitch != 1.5 {
		t.Errorf("updated = %+v", updated)
	}
	list, _ := fresh.SavedProfiles()
	if len(list) != 1 || list[0].Name != "Renamed" {
		t.Errorf("list = %+v", list)
	}

	if _, err := fresh.UpdateSavedProfile(p.ProfileID, voice.ProfileUpdate{Pitch: voice.Ptr(99.0)}); !errors.Is(err, voice.ErrInvalidProfile) {
		t.Errorf("invalid update err = %v", err)
	}
	again, _ := c.Store().Load(p.ProfileID)
	if again.Pitch != 1.5 {
		t.Errorf("invalid update reached storage: %v", again.Pitch)
	}

	if err := fresh.DeleteSavedProfile(p.ProfileID); err != nil {
		t.Fatalf("DeleteSavedProfile: %v", err)
	}
	if _, ok := fresh.Profiles().Get(p.ProfileID); ok {
		t.Error("deleted profile still cached")
	}
	if _, err := fresh.LoadSavedProfile(p.ProfileID); !errors.Is(err, voice.ErrProfileNotFound) {
		t.Errorf("load after delete err = %v", err)
	}
}

// failingSaveStore rejects saves once failSaves is set.
type failingSaveStore struct {
	storage.Store
	failSaves bool
}

func (s *failingSaveStore) Save(p voice.VoiceProfile) (storage.SaveResult, error) {
	if s.failSaves {
		return storage.SaveResult{}, errors.New("disk full")
	}
	return s.Store.Save(p)
}

func TestUpdateSavedProfileRestoresCacheOnSaveFailure(t *testing.T) {
	inner, err := storage.NewJSONStore(t.TempDir(), nil)
	if err != nil {
		t.Fatal(err)
	}
	store := &failingSaveStore{Store: inner}
	c := New(store, nil)

	p, err := c.CreateCustomVoice("Fragile", "", voice.ProfileUpdate{})
	if err != nil {
		t.Fatal(err)
	}
	store.failSaves = true
	if _, err := c.UpdateSavedProfile(p.ProfileID, voice.ProfileUpdate{Pitch: voice.Ptr(5.0)}); err == nil {
		t.Fatal("expected save error")
	}

	cached, ok := c.Profiles().Get(p.ProfileID)
	if !ok || cached.Pitch != 0 {
		t.Errorf("cached = %+v, %v; want the pre-update profile", cached, ok)
	}
	resolved, err := c.ResolveProfile(p.ProfileID, "")
	if err != nil || resolved.Pitch != 0 {
		t.Errorf("resolved pitch = %v, err = %v", resolved.Pitch, err)
	}
	stored, _ := inner.Load(p.ProfileID)
	if stored.Pitch != 0 {
		t.Errorf("stored pitch = %v", stored.Pitch)
	}
}

func TestResolveProfile(t *testing.T) {
	c := newTestCustomizer(t)
	saved, _ := c.CreateCustomVoice("Stored", "", voice.ProfileUpdate{Pitch: voice.Ptr(3.0)})

	got, err := c.ResolveProfile(saved.ProfileID, "")
	if err != nil || got.Pitch != 3.0 {
		t.Errorf("by id: %+v, %v", got, err)
	}
	got, err = c.ResolveProfile("missing", "narrator_deep")
	if err != nil || got.Name != "Deep Narrator" {
		t.Errorf("fallback to preset: %+v, %v", got, err)
	}
	if _, err := c.ResolveProfile("missing", ""); !errors.Is(err, voice.ErrProfileNotFound) {
		t.Errorf("missing id err = %v", err)
	}
	if _, err := c.ResolveProfile("", "nope"); !errors.Is(err, voice.ErrPresetNotFound) {
		t.Errorf("missing preset err = %v", err)
	}
	got, _ = c.ResolveProfile("", "")
	if got.Name != voice.DefaultProfileName {
		t.Errorf("default = %+v", got)
	}
	before := c.Profiles().Len()
	_, _ = c.ResolveProfile("", "child_voice")
	if c.Profiles().Len() != before {
		t.Error("preset resolution grew the cache")
	}
}

func TestPresetList(t *testing.T) {
	c := newTestCustomizer(t)
	list := c.PresetList()
	if len(list) == 0 || !strings.Contains(strings.Join(list, ","), "professional_male") {
		t.Errorf("presets = %v", list)
	}
}
