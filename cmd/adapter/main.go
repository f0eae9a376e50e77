// Command adapter serves the voice customization TTS adapter over NAP.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthgrpc "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	napv1 "github.com/nupi-ai/nupi/api/nap/v1"

	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/adapterinfo"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/cache"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/config"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/engine"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/server"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/speech"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/storage"
	"github.com/nupi-ai/plugin-tts-voice-customizer/internal/telemetry"
)

const stopTimeout = 5 * time.Second

// lazyTTSServer answers Unavailable until the voice server is installed, so
// the port can be bound before storage is opened.
type lazyTTSServer struct {
	napv1.UnimplementedTextToSpeechServiceServer
	server atomic.Pointer[napv1.TextToSpeechServiceServer]
}

func (l *lazyTTSServer) setServer(srv napv1.TextToSpeechServiceServer) {
	l.server.Store(&srv)
}

func (l *lazyTTSServer) StreamSynthesis(req *napv1.StreamSynthesisRequest, stream napv1.TextToSpeechService_StreamSynthesisServer) error {
	srv := l.server.Load()
	if srv == nil {
		return status.Error(codes.Unavailable, "voice customizer is initializing, please retry in a moment")
	}
	return (*srv).StreamSynthesis(req, stream)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Loader{}.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger := telemetry.NewLogger(os.Stdout, cfg.LogLevel)
	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("adapter failed", "error", err)
		os.Exit(1)
	}
	logger.Info("adapter stopped")
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	logger.Info("starting adapter",
		"adapter", adapterinfo.Info.Name,
		"adapter_slug", adapterinfo.Info.Slug,
		"adapter_version", adapterinfo.Version(),
		"listen_addr", cfg.ListenAddr,
		"tts_engine", cfg.TTSEngine,
		"storage_backend", cfg.StorageBackend,
		"default_preset", orDefault(cfg.DefaultPreset),
		"emotion_intensity", floatOrDefault(cfg.EmotionIntensity),
	)

	lis, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("bind listener: %w", err)
	}
	defer lis.Close()
	logger.Info("listener bound, port ready", "addr", lis.Addr().String())

	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthgrpc.RegisterHealthServer(grpcServer, healthServer)
	lazy := &lazyTTSServer{}
	napv1.RegisterTextToSpeechServiceServer(grpcServer, lazy)
	setServing(healthServer, healthgrpc.HealthCheckResponse_NOT_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- err
		}
	}()

	deps, err := openDeps(cfg, logger)
	if err != nil {
		grpcServer.Stop()
		return err
	}
	defer deps.close(logger)

	lazy.setServer(server.New(cfg, logger, deps.voices, speech.NewMockSynthesizer(deps.rec), deps.rec, deps.cache))
	setServing(healthServer, healthgrpc.HealthCheckResponse_SERVING)
	logger.Info("adapter ready to serve requests")

	select {
	case err := <-serveErr:
		return fmt.Errorf("gRPC server terminated: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutdown requested, stopping gRPC server")
	setServing(healthServer, healthgrpc.HealthCheckResponse_NOT_SERVING)
	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(stopTimeout):
		logger.Warn("graceful stop timed out, forcing stop")
		grpcServer.Stop()
	}
	return nil
}

func setServing(h *health.Server, s healthgrpc.HealthCheckResponse_ServingStatus) {
	h.SetServingStatus("", s)
	h.SetServingStatus(napv1.TextToSpeechService_ServiceDesc.ServiceName, s)
}

// deps are the components opened after the port is bound.
type deps struct {
	traceFile io.Closer
	metrics   *telemetry.Metrics
	rec       *telemetry.Recorder
	store     storage.Store
	cache     *cache.Cache
	voices    *engine.Customizer
}

func openDeps(cfg config.Config, logger *slog.Logger) (*deps, error) {
	d := &deps{metrics: telemetry.NewMetrics()}
	opts := []telemetry.Option{telemetry.WithMeterProvider(d.metrics.Provider())}
	if cfg.TraceLogPath != "" {
		f, err := telemetry.OpenTraceLog(cfg.TraceLogPath)
		if err != nil {
			logger.Warn("failed to open trace log, continuing without", "path", cfg.TraceLogPath, "error", err)
		} else {
			d.traceFile = f
			opts = append(opts, telemetry.WithTraceWriter(f))
			logger.Info("trace log enabled", "path", cfg.TraceLogPath)
		}
	}
	d.rec = telemetry.NewRecorder(logger, opts...)

	store, err := storage.Open(cfg.StorageBackend, cfg.StoragePath, d.rec)
	if err != nil {
		d.close(logger)
		return nil, fmt.Errorf("open %s profile storage at %s: %w", cfg.StorageBackend, cfg.StoragePath, err)
	}
	d.store = store
	logger.Info("profile storage ready", "backend", cfg.StorageBackend, "path", cfg.StoragePath)

	if cfg.CacheEnabled() {
		c, err := cache.New(cfg.CacheDir, int64(cfg.CacheMaxSizeMB)*1024*1024, logger)
		if err != nil {
			logger.Warn("failed to initialize render cache, continuing without", "error", err)
		} else {
			d.cache = c
			logger.Info("render cache initialized", "dir", cfg.CacheDir, "max_size_mb", cfg.CacheMaxSizeMB)
		}
	}

	d.voices = engine.New(d.store, d.rec)
	return d, nil
}

// close logs the counter totals and releases everything openDeps acquired.
func (d *deps) close(logger *slog.Logger) {
	if sum, err := d.metrics.Summary(context.Background()); err == nil {
		for _, c := range sum.Events {
			logger.Info("component event total", "component", c.Name, "events", c.Value)
		}
		for _, c := range sum.Errors {
			logger.Warn("component error total", "error_code", c.Name, "errors", c.Value)
		}
	}
	if d.cache != nil {
		st := d.cache.Stats()
		logger.Info("render cache stats", "entries", st.Entries, "bytes", st.Bytes, "hits", st.Hits, "misses", st.Misses)
	}
	if d.store != nil {
		if err := d.store.Close(); err != nil {
			logger.Warn("failed to close profile storage", "error", err)
		}
	}
	if d.traceFile != nil {
		d.traceFile.Close()
	}
	_ = d.metrics.Shutdown(context.Background())
}

func orDefault(v string) any {
	if v == "" {
		return "default"
	}
	return v
}

func floatOrDefault(v *float64) any {
	if v == nil {
		return "default"
	}
	return *v
}
