// Package audiofile loads and writes audio files with path validation. It
// does not decode audio; the envelope's sample rate is a fixed default and
// the duration is estimated from the file size.
package audiofile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/voice"
)

const (
	loaderComponent = "AudioFileLoaderComponent"

	// DefaultSampleRate is reported for every loaded file.
	DefaultSampleRate = 44100

	// bytesPerSecond assumes 16-bit stereo at DefaultSampleRate.
	bytesPerSecond = DefaultSampleRate * 2 * 2
)

var loadFormats = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
}

// Loader reads audio files.
type Loader struct {
	rec     *telemetry.Recorder
	baseDir string
}

// LoaderOption customises a Loader.
type LoaderOption func(*Loader)

// WithBaseDir confines loads to files under dir.
func WithBaseDir(dir string) LoaderOption {
	return func(l *Loader) { l.baseDir = dir }
}

// NewLoader returns a loader. A nil recorder discards telemetry.
func NewLoader(rec *telemetry.Recorder, opts ...LoaderOption) *Loader {
	if rec == nil {
		rec = telemetry.Discard()
	}
	l := &Loader{rec: rec}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads path into an AudioData envelope.
func (l *Loader) Load(path string) (voice.AudioData, error) {
	start := time.Now()
	l.rec.Trace(loaderComponent, "FILE_LOAD_START", map[string]any{"file_path": path}, 0)

	resolved, err := filepath.Abs(path)
	if err != nil {
		return l.fail("ERR_AUDIO_999", voice.RecoveryRetry, err, path)
	}
	if l.baseDir != "" {
		if _, err := within(l.baseDir, resolved); err != nil {
			return l.fail("ERR_AUDIO_999", voice.RecoveryAbort, err, resolved)
		}
	}

	info, err := os.Stat(resolved)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return l.fail("ERR_AUDIO_001", voice.RecoveryAbort, fmt.Errorf("%w: %s", voice.ErrFileNotFound, resolved), resolved)
	case errors.Is(err, fs.ErrPermission):
		return l.fail("ERR_AUDIO_002", voice.RecoveryAbort, fmt.Errorf("%w: %s", voice.ErrPermission, resolved), resolved)
	case err != nil:
		return l.fail("ERR_AUDIO_999", voice.RecoveryRetry, err, resolved)
	case info.IsDir():
		return l.fail("ERR_AUDIO_999", voice.RecoveryRetry, fmt.Errorf("%w: %s is a directory", voice.ErrUnsupportedFormat, resolved), resolved)
	}

	ext := strings.ToLower(filepath.Ext(resolved))
	if !loadFormats[ext] {
		return l.fail("ERR_AUDIO_999", voice.RecoveryRetry, fmt.Errorf("%w: %q", voice.ErrUnsupportedFormat, filepath.Ext(resolved)), resolved)
	}

	data, err := os.ReadFile(resolved)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return l.fail("ERR_AUDIO_002", voice.RecoveryAbort, fmt.Errorf("%w: %s", voice.ErrPermission, resolved), resolved)
		}
		return l.fail("ERR_AUDIO_999", voice.RecoveryRetry, err, resolved)
	}

	out := voice.NewAudio(data, ext[1:], DefaultSampleRate, float64(len(data))/bytesPerSecond)
	l.rec.Trace(loaderComponent, "FILE_LOAD_SUCCESS", map[string]any{
		"file_size": len(data),
		"format":    out.Format,
	}, time.Since(start))
	return out, nil
}

func (l *Loader) fail(code string, recovery voice.Recovery, err error, path string) (voice.AudioData, error) {
	return voice.AudioData{}, l.rec.Failure(loaderComponent, "FILE_LOAD_ERROR", code, recovery, err,
		map[string]any{"file_path": path})
}

// within resolves target against base and reports an error if the result is
// outside base, either lexically or once symlinks are followed. It returns
// the cleaned absolute target.
func within(base, target string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(absBase, target)
	}
	target = filepath.Clean(target)
	if !contains(absBase, target) {
		return "", fmt.Errorf("%w: %s", voice.ErrPathTraversal, target)
	}

	realBase, err := resolveExisting(absBase)
	if err != nil {
		return "", err
	}
	realTarget, err := resolveExisting(target)
	if err != nil {
		return "", err
	}
	if !contains(realBase, realTarget) {
		return "", fmt.Errorf("%w: %s resolves to %s", voice.ErrPathTraversal, target, realTarget)
	}
	return target, nil
}

func contains(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// resolveExisting follows symlinks in the deepest existing ancestor of path
// and re-attaches the missing tail. A dangling symlink is rejected since a
// write through it would land wherever it points.
func resolveExisting(path string) (string, error) {
	var tail []string
	p := path
	for {
		resolved, err := filepath.EvalSymlinks(p)
		if err == nil {
			return filepath.Join(append([]string{resolved}, tail...)...), nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
		if info, lerr := os.Lstat(p); lerr == nil && info.Mode()&fs.ModeSymlink != 0 {
			return "", fmt.Errorf("%w: dangling symlink %s", voice.ErrPathTraversal, p)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path, nil
		}
		tail = append([]string{filepath.Base(p)}, tail...)
		p = parent
	}
}
