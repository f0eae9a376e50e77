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

const writerComponent = "AudioFileWriterComponent"

var writeExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
}

// WriteResult describes a completed write.
type WriteResult struct {
	FilePath string `json:"file_path"`
	FileSize int64  `json:"file_size"`
	Success  bool   `json:"success"`
}

// Writer saves audio under a base directory.
type Writer struct {
	rec     *telemetry.Recorder
	baseDir string
}

// NewWriter returns a writer rooted at baseDir, creating it when missing.
func NewWriter(baseDir string, rec *telemetry.Recorder) (*Writer, error) {
	if rec == nil {
		rec = telemetry.Discard()
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("audiofile: resolve base dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("audiofile: create base dir: %w", err)
	}
	return &Writer{rec: rec, baseDir: abs}, nil
}

// BaseDir returns the absolute base directory.
func (w *Writer) BaseDir() string {
	return w.baseDir
}

// Write stores audio at relPath under the base directory. Existing files are
// replaced only when overwrite is set.
func (w *Writer) Write(audio voice.AudioData, relPath string, overwrite bool) (WriteResult, error) {
	start := time.Now()
	w.rec.Trace(writerComponent, "WRITE_START", map[string]any{"file_path": relPath}, 0)

	target, err := within(w.baseDir, relPath)
	if err != nil {
		return w.fail("ERR_WRITE_999", voice.RecoveryAbort, err, relPath)
	}
	if ext := filepath.Ext(target); !writeExtensions[strings.ToLower(ext)] {
		return w.fail("ERR_WRITE_999", voice.RecoveryAbort, fmt.Errorf("%w: %q", voice.ErrInvalidExtension, ext), relPath)
	}
	if _, err := os.Stat(target); err == nil && !overwrite {
		return w.fail("ERR_WRITE_999", voice.RecoveryAbort, fmt.Errorf("%w: %s", voice.ErrFileExists, target), relPath)
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return w.ioFail(err, relPath)
	}
	if err := os.WriteFile(target, audio.Bytes, 0o644); err != nil {
		return w.ioFail(err, relPath)
	}
	info, err := os.Stat(target)
	if err != nil {
		return w.ioFail(err, relPath)
	}

	res := WriteResult{FilePath: target, FileSize: info.Size(), Success: true}
	w.rec.Trace(writerComponent, "WRITE_SUCCESS", map[string]any{
		"file_path": res.FilePath,
		"file_size": res.FileSize,
		"success":   true,
	}, time.Since(start))
	return res, nil
}

func (w *Writer) ioFail(err error, relPath string) (WriteResult, error) {
	if errors.Is(err, fs.ErrPermission) {
		return w.fail("ERR_WRITE_001", voice.RecoveryAbort, fmt.Errorf("%w: %w", voice.ErrPermission, err), relPath)
	}
	return w.fail("ERR_WRITE_002", voice.RecoveryRetry, err, relPath)
}

func (w *Writer) fail(code string, recovery voice.Recovery, err error, relPath string) (WriteResult, error) {
	return WriteResult{}, w.rec.Failure(writerComponent, "WRITE_FAILED", code, recovery, err,
		map[string]any{"file_path": relPath})
}
