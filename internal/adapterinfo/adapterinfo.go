// Package adapterinfo exposes the adapter identity declared in plugin.yaml.
package adapterinfo

import (
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

// Metadata captures static identifiers for the adapter.
type Metadata struct {
	Name        string
	BinaryName  string
	Slug        string
	Description string
	GeneratorID string
	Version     string
}

// Info describes the current adapter.
var Info = mustLoadMetadata()

// Chunk metadata keys.
const (
	KeyGenerator = "generator"
	KeyEngine    = "engine"
	KeyProfileID = "profile_id"
	KeyProfile   = "profile_name"
	KeyEmotion   = "emotion"
	KeyIntensity = "emotion_intensity"
	KeyEffects   = "effects"
	KeyTransform = "transform"
	KeyCached    = "cached"
)

// Voice describes the rendered voice attached to emitted audio chunks.
type Voice struct {
	Engine    string
	Profile   voice.VoiceProfile
	Emotion   voice.Emotion
	Intensity float64
	Effects   []voice.EffectConfig
	Transform string // preset name, empty when none
	Cached    bool
}

// SynthesisMetadata produces the standard metadata payload attached
// to emitted TTS audio chunks.
func SynthesisMetadata(v Voice) map[string]string {
	md := map[string]string{
		KeyGenerator: Info.GeneratorID,
		KeyEngine:    v.Engine,
		KeyProfileID: v.Profile.ProfileID,
		KeyProfile:   v.Profile.Name,
		KeyEmotion:   string(v.Emotion),
		KeyIntensity: strconv.FormatFloat(v.Intensity, 'f', -1, 64),
		KeyCached:    strconv.FormatBool(v.Cached),
	}
	if len(v.Effects) > 0 {
		names := make([]string, len(v.Effects))
		for i, e := range v.Effects {
			names[i] = string(e.Type)
		}
		md[KeyEffects] = strings.Join(names, ",")
	}
	if v.Transform != "" {
		md[KeyTransform] = v.Transform
	}
	return md
}

// Version returns the adapter semantic version.
func Version() string {
	return Info.Version
}

const manifestFile = "plugin.yaml"

func mustLoadMetadata() Metadata {
	meta, err := LoadManifest(searchDirs()...)
	if err != nil {
		panic(err)
	}
	return meta
}

// searchDirs lists where plugin.yaml may live: next to the binary, the
// working directory, then the module root of this source file.
func searchDirs() []string {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if wd, err := os.Getwd(); err == nil {
		dirs = append(dirs, wd)
	}
	if _, file, _, ok := runtime.Caller(0); ok {
		dirs = append(dirs, filepath.Join(filepath.Dir(file), "..", ".."))
	}
	return dirs
}

// LoadManifest parses the first plugin.yaml found in dirs.
func LoadManifest(dirs ...string) (Metadata, error) {
	tried := make(map[string]bool, len(dirs))
	for _, dir := range dirs {
		path := filepath.Join(filepath.Clean(dir), manifestFile)
		if tried[path] {
			continue
		}
		tried[path] = true
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Metadata{}, fmt.Errorf("adapterinfo: read %s: %w", path, err)
		}
		return ParseManifest(data)
	}
	return Metadata{}, fmt.Errorf("adapterinfo: %s not found in %s", manifestFile, strings.Join(dirs, ", "))
}

type manifest struct {
	Metadata struct {
		Name        string `yaml:"name"`
		Slug        string `yaml:"slug"`
		Description string `yaml:"description"`
		Version     string `yaml:"version"`
		Generator   string `yaml:"generator"`
	} `yaml:"metadata"`
	Spec struct {
		Entrypoint struct {
			Command string `yaml:"command"`
		} `yaml:"entrypoint"`
	} `yaml:"spec"`
}

// ParseManifest decodes a plugin.yaml document. Version and slug are
// required; the other identifiers fall back to the slug or name.
func ParseManifest(data []byte) (Metadata, error) {
	var doc manifest
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Metadata{}, fmt.Errorf("adapterinfo: decode manifest: %w", err)
	}
	md := doc.Metadata
	meta := Metadata{
		Name:        cmp.Or(strings.TrimSpace(md.Name), strings.TrimSpace(md.Slug)),
		Slug:        strings.TrimSpace(md.Slug),
		Version:     strings.TrimSpace(md.Version),
		GeneratorID: cmp.Or(strings.TrimSpace(md.Generator), strings.TrimSpace(md.Slug)),
		BinaryName: cmp.Or(strings.TrimPrefix(strings.TrimSpace(doc.Spec.Entrypoint.Command), "./"),
			strings.TrimSpace(md.Slug)),
	}
	meta.Description = cmp.Or(strings.TrimSpace(md.Description), meta.Name)

	var errs []error
	if meta.Version == "" {
		errs = append(errs, errors.New("metadata.version missing"))
	}
	if meta.Slug == "" {
		errs = append(errs, errors.New("metadata.slug missing"))
	}
	if len(errs) > 0 {
		return Metadata{}, fmt.Errorf("adapterinfo: invalid manifest: %w", errors.Join(errs...))
	}
	return meta, nil
}
