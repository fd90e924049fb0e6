// Copyright 2026 The Ariana Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/ariana-dot-dev/ariana/bridge"
	"github.com/ariana-dot-dev/ariana/lib/clock"
	"github.com/ariana-dot-dev/ariana/lib/config"
	"github.com/ariana-dot-dev/ariana/lib/ipc"
	"github.com/ariana-dot-dev/ariana/lib/process"
	"github.com/ariana-dot-dev/ariana/lib/version"
	"github.com/ariana-dot-dev/ariana/stream"
	"github.com/ariana-dot-dev/ariana/transport"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

func run() error {
	var (
		configPath  string
		listenAddr  string
		videoFile   string
		metricsAddr string
		verbose     bool
		showVersion bool
	)

	flagSet := pflag.NewFlagSet("streamer", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the streamer config file (default: $"+config.EnvVar+")")
	flagSet.StringVarP(&listenAddr, "listen", "l", "", "serve the signaling WebSocket on this address instead of stdin/stdout IPC")
	flagSet.StringVar(&videoFile, "video-file", "", "H.264 Annex B file to replay as the video source")
	flagSet.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flagSet.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("streamer %s\n", version.Full())
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	// stdout carries IPC, so logs go to stderr.
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Bridge.Listen = listenAddr
	}
	if metricsAddr != "" {
		cfg.Metrics.Listen = metricsAddr
	}
	if videoFile == "" {
		return fmt.Errorf("--video-file is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := transport.NewMetrics(registry)

	channel, closeChannel, err := openChannel(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeChannel()

	streamTransport, err := transport.New(ctx, transport.Options{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics,
	})
	if err != nil {
		return fmt.Errorf("creating transport: %w", err)
	}
	host := stream.NewFileHost(videoFile, clock.Real(), logger)
	session := stream.NewSession(streamTransport, channel, host, logger)

	logger.Info("streamer starting",
		"version", version.Info(),
		"environment", cfg.Environment,
		"video_file", videoFile,
	)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	group, ctx := errgroup.WithContext(ctx)

	if cfg.Metrics.Listen != "" {
		serveMetrics(ctx, group, cfg.Metrics.Listen, registry, logger)
	}
	group.Go(func() error {
		// The session ending ends the process, metrics server included.
		defer cancel()
		return session.Run(ctx)
	})

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("streamer stopped")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// openChannel returns the IPC channel: the WebSocket bridge when
// cfg.Bridge.Listen is set, stdin/stdout otherwise.
func openChannel(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stream.Channel, func(), error) {
	if cfg.Bridge.Listen == "" {
		return ipc.NewConn[ipc.ServerIPCMessage, ipc.StreamerIPCMessage](os.Stdin, os.Stdout), func() {}, nil
	}

	b := &bridge.Bridge{
		ListenAddr: cfg.Bridge.Listen,
		Path:       cfg.Bridge.Path,
		Logger:     logger,
	}
	if err := b.Start(ctx); err != nil {
		return nil, nil, err
	}
	return b, b.Stop, nil
}

func serveMetrics(ctx context.Context, group *errgroup.Group, addr string, registry *prometheus.Registry, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	group.Go(func() error {
		logger.Info("serving metrics", "addr", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving metrics: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
}
