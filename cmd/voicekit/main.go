// Command voicekit manages voice profiles and renders audio with them from
// the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/adapterinfo"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/config"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/engine"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/storage"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
	labelStyle   = lipgloss.NewStyle().Width(16).Foreground(lipgloss.Color("#06B6D4"))
)

// app holds the components shared by every subcommand. It is populated in
// the root PersistentPreRunE.
type app struct {
	configPath  string
	overrides   config.Config
	showMetrics bool

	cfg       config.Config
	rec       *telemetry.Recorder
	store     storage.Store
	voices    *engine.Customizer
	traceFile io.Closer
	metrics   *telemetry.Metrics
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("error: "+err.Error()))
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "voicekit",
		Short: "Create voice profiles and render speech with them",
		Long: titleStyle.Render("voicekit") + `

Voice profiles bundle pitch, speed, volume, accent and a default emotion.
Renders compose an emotion and an effect chain on top of a profile.

` + dimStyle.Render("Use 'voicekit [command] --help' for more information."),
		Version:           adapterinfo.Version(),
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error { return a.open(cmd) },
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.printMetrics(cmd); err != nil {
				return err
			}
			return a.close()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "YAML configuration file")
	flags.StringVar(&a.overrides.StorageBackend, "backend", "", "profile storage backend (json|sqlite)")
	flags.StringVar(&a.overrides.StoragePath, "storage", "", "profile directory (json) or database file (sqlite)")
	flags.StringVar(&a.overrides.LogLevel, "log-level", "", "system log level (debug|info|warn|error)")
	flags.StringVar(&a.overrides.TraceLogPath, "trace-log", "", "append JSON trace records to this file")
	flags.BoolVar(&a.showMetrics, "metrics", false, "print component event and error counts on exit")

	root.AddCommand(
		a.presetsCmd(),
		a.emotionsCmd(),
		a.createCmd(),
		a.listCmd(),
		a.showCmd(),
		a.updateCmd(),
		a.deleteCmd(),
		a.applyCmd(),
		a.speakCmd(),
		a.transcribeCmd(),
		a.normalizeCmd(),
		a.demoCmd(),
	)
	return root
}

// open resolves configuration and opens storage.
func (a *app) open(cmd *cobra.Command) error {
	var (
		cfg config.Config
		err error
	)
	if a.configPath != "" {
		cfg, err = config.LoadFile(a.configPath)
	} else {
		cfg, err = config.LoadYAML(eofReader{})
	}
	if err != nil {
		return err
	}
	applyOverride(&cfg.StorageBackend, a.overrides.StorageBackend)
	applyOverride(&cfg.StoragePath, a.overrides.StoragePath)
	applyOverride(&cfg.LogLevel, a.overrides.LogLevel)
	applyOverride(&cfg.TraceLogPath, a.overrides.TraceLogPath)
	if err := cfg.Validate(); err != nil {
		return err
	}
	a.cfg = cfg

	var opts []telemetry.Option
	if cfg.TraceLogPath != "" {
		f, err := telemetry.OpenTraceLog(cfg.TraceLogPath)
		if err != nil {
			return err
		}
		a.traceFile = f
		opts = append(opts, telemetry.WithTraceWriter(f))
	}
	if a.showMetrics {
		a.metrics = telemetry.NewMetrics()
		opts = append(opts, telemetry.WithMeterProvider(a.metrics.Provider()))
	}
	a.rec = telemetry.NewRecorder(telemetry.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel), opts...)

	a.store, err = storage.Open(cfg.StorageBackend, cfg.StoragePath, a.rec)
	if err != nil {
		return err
	}
	a.voices = engine.New(a.store, a.rec)
	return nil
}

func (a *app) close() error {
	var err error
	if a.store != nil {
		err = a.store.Close()
		a.store = nil
	}
	if a.traceFile != nil {
		a.traceFile.Close()
		a.traceFile = nil
	}
	if a.metrics != nil {
		a.metrics.Shutdown(context.Background())
		a.metrics = nil
	}
	return err
}

func (a *app) printMetrics(cmd *cobra.Command) error {
	if a.metrics == nil {
		return nil
	}
	sum, err := a.metrics.Summary(cmd.Context())
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	fmt.Fprintln(w, titleStyle.Render("Component events"))
	for _, c := range sum.Events {
		printField(w, c.Name, c.Value)
	}
	if len(sum.Errors) > 0 {
		fmt.Fprintln(w, titleStyle.Render("Errors"))
		for _, c := range sum.Errors {
			printField(w, c.Name, c.Value)
		}
	}
	return nil
}

func applyOverride(target *string, value string) {
	if value != "" {
		*target = value
	}
}

// eofReader is an empty YAML document.
type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }

func printField(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "  %s %v\n", labelStyle.Render(label+":"), value)
}
