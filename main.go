// Package main provides a command-line recorder that captures the audio an
// output device is currently playing and writes it to a WAV file.
//
// Usage:
//
//	looprec [flags] output.wav
//
// Recording runs until the duration limit elapses or the process is
// interrupted; either way the WAV file is finalized.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/looprec/looprec/internal/audio"
	"github.com/looprec/looprec/internal/config"
	"github.com/looprec/looprec/internal/recorder"
	"github.com/looprec/looprec/internal/server"
	"github.com/looprec/looprec/internal/util"
	"github.com/looprec/looprec/internal/wav"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "Path to JSON config file (optional)")
	device := flag.String("device", "", "Output device to capture: 'default', an index or a name substring")
	listDevices := flag.Bool("list-devices", false, "List output devices and exit")
	duration := flag.Int("duration", 0, "Stop after this many seconds (0 = record until interrupted)")
	sampleRate := flag.Int("sample-rate", 0, "Requested sample rate in Hz (0 = device mix rate)")
	channels := flag.Int("channels", 0, "Requested channel count (0 = device mix channels)")
	format := flag.String("format", "", "Sample encoding: int16, int24, int32 or float32 (default: device mix encoding)")
	listen := flag.String("listen", "", "Serve live status on this address (e.g. 127.0.0.1:8090)")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	if *debug {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if *showVersion {
		slog.Info("version info", "version", Version, "commit", Commit, "build_time", BuildTime)
		reportUpdate()
		return 0
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	// Command-line flags override the config file.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["device"] {
		cfg.Capture.Device = *device
	}
	if set["duration"] {
		cfg.Output.MaxDurationSeconds = *duration
	}
	if set["sample-rate"] {
		cfg.Capture.SampleRate = *sampleRate
	}
	if set["channels"] {
		cfg.Capture.Channels = *channels
	}
	if set["format"] {
		cfg.Capture.Format = *format
	}
	if set["listen"] {
		cfg.Status.Listen = *listen
	}
	if flag.NArg() > 0 {
		cfg.Output.Path = flag.Arg(0)
	}
	cfg.ApplyDefaults()

	audioCtx, err := audio.NewContext()
	if err != nil {
		slog.Error("failed to initialize audio backend", "error", err)
		return 1
	}
	defer func() {
		if err := audioCtx.Close(); err != nil {
			slog.Debug("audio backend close error", "error", err)
		}
	}()

	if *listDevices {
		return listOutputDevices(audioCtx)
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		return 1
	}

	requested, err := cfg.RequestedFormat()
	if err != nil {
		slog.Error("invalid capture format", "error", err)
		return 1
	}

	// Fail before touching the device if the output location is unusable.
	if err := util.CheckPathWritable(filepath.Dir(cfg.Output.Path)); err != nil {
		slog.Error("output directory is not writable",
			"dir", filepath.Dir(cfg.Output.Path), "error", err)
		return 1
	}

	dev, err := audioCtx.Resolve(cfg.Capture.Device)
	if err != nil {
		slog.Error("failed to select output device", "selector", cfg.Capture.Device, "error", err)
		return 1
	}

	session, err := audioCtx.Open(dev, requested)
	if err != nil {
		slog.Error("failed to open capture session", "device", dev.Name, "error", err)
		return 1
	}

	rec := recorder.New(recorder.Options{
		OutputPath:   cfg.Output.Path,
		MaxDuration:  cfg.MaxDuration(),
		BufferFrames: cfg.Capture.BufferFrames,
		Upload:       uploadConfig(cfg),
	}, session)

	runCtx, stop := signal.NotifyContext(context.Background(), util.ShutdownSignals()...)
	defer stop()

	var statusServer *http.Server
	if cfg.Status.Listen != "" {
		statusServer = server.New(cfg.Status.Listen, cfg.StatusInterval(), rec.Status).Start()
	}

	slog.Info("capturing output device", "device", dev.Name, "format", session.Format().String())

	summary, runErr := rec.Run(runCtx)

	if statusServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := statusServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("status server shutdown error", "error", err)
		}
	}

	if runErr != nil {
		slog.Error("recording failed", "error", runErr)
		if summary.Bytes > 0 {
			slog.Info("partial recording kept",
				"file", summary.Path, "duration", util.FormatDuration(summary.Duration))
		}
		return 1
	}

	reportSummary(summary)
	return 0
}

// listOutputDevices prints the available output devices, marking the default.
func listOutputDevices(audioCtx *audio.Context) int {
	devices, err := audioCtx.Devices()
	if err != nil {
		slog.Error("failed to enumerate output devices", "error", err)
		return 1
	}

	for _, dev := range devices {
		marker := " "
		if dev.Default {
			marker = "*"
		}
		fmt.Printf("%s %d: %s\n", marker, dev.Index, dev.Name)
	}
	return 0
}

// reportSummary logs the finished recording and verifies the written file.
func reportSummary(s recorder.Summary) {
	args := []any{
		"file", s.Path,
		"duration", util.FormatDuration(s.Duration),
		"format", s.Format.String(),
		"size", s.Bytes,
		"peak_db", s.PeakDB,
	}
	if s.FramesDropped > 0 {
		args = append(args, "frames_dropped", s.FramesDropped)
	}
	if s.Uploaded {
		args = append(args, "uploaded", true)
	}
	slog.Info("recording complete", args...)

	if info, err := wav.Probe(s.Path); err != nil {
		slog.Warn("written file failed verification", "file", s.Path, "error", err)
	} else {
		slog.Debug("output verified",
			"format", info.Format.String(), "duration", util.FormatDuration(info.Duration))
	}
}

// reportUpdate logs when a newer release is available.
func reportUpdate() {
	latest, err := latestRelease(context.Background())
	if err != nil {
		slog.Debug("update check failed", "error", err)
		return
	}

	current := normalizeVersion(Version)
	if latest == "" || current == "dev" || current == "unknown" {
		return
	}
	if isNewerVersion(latest, current) {
		slog.Info("update available", "current", current, "latest", latest)
	}
}

// uploadConfig converts the config upload section for the recorder, or nil
// when upload is not configured.
func uploadConfig(cfg *config.Config) *recorder.UploadConfig {
	if !cfg.Upload.IsConfigured() {
		return nil
	}
	return &recorder.UploadConfig{
		Endpoint:        cfg.Upload.Endpoint,
		Bucket:          cfg.Upload.Bucket,
		AccessKeyID:     cfg.Upload.AccessKeyID,
		SecretAccessKey: cfg.Upload.SecretAccessKey,
		KeyPrefix:       cfg.Upload.KeyPrefix,
	}
}
