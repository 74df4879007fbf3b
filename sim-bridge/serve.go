package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AtDexters-Lab/sim-protocol/internal/auth"
	"github.com/AtDexters-Lab/sim-protocol/internal/config"
	"github.com/AtDexters-Lab/sim-protocol/internal/dispatch"
	"github.com/AtDexters-Lab/sim-protocol/internal/hub"
	"github.com/AtDexters-Lab/sim-protocol/internal/iface"
	"github.com/AtDexters-Lab/sim-protocol/internal/logging"
	"github.com/AtDexters-Lab/sim-protocol/internal/metrics"
	"github.com/AtDexters-Lab/sim-protocol/internal/model"
	"github.com/AtDexters-Lab/sim-protocol/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/acme/autocert"
	"golang.org/x/sync/errgroup"
)

const acmeChallengeAddress = ":80"

func serveCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve frontends over WebSocket and, optionally, raw TCP",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the configuration file (.yaml or .toml)")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if cfg.LogLevel != "" && !logging.SetLevel(cfg.LogLevel) {
		log.Warn().Str("logLevel", cfg.LogLevel).Msg("ignoring unknown log level")
	}
	logger := log.Logger
	logger.Info().Str("config", configPath).Str("addr", cfg.ListenAddress).Msg("configuration loaded")

	tlsConfig, acmeHandler, err := buildTLS(cfg, logger)
	if err != nil {
		return err
	}

	validator, err := auth.NewValidator(cfg)
	if err != nil {
		return fmt.Errorf("building token validator: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	host := dispatch.NewHost(newModel, dispatch.Options{
		Limits:        cfg.ProtocolLimits(),
		MaxFrameBytes: cfg.MaxFrameBytes,
		Logger:        logger,
		Metrics:       metrics.New(registry),
		Extensions:    cfg.Extensions,
	}, cfg.SendHandshake)

	var tcp *transport.Listener
	if cfg.TCPListenAddress != "" {
		ln, err := net.Listen("tcp", cfg.TCPListenAddress)
		if err != nil {
			return fmt.Errorf("tcp listener: %w", err)
		}
		tcp = transport.NewListener(ln, host, logger)
	}

	bridgeHub := hub.New(cfg, tlsConfig, validator, host, registry, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(bridgeHub.Run)

	var challengeServer *http.Server
	if acmeHandler != nil {
		challengeServer = &http.Server{
			Addr:              acmeChallengeAddress,
			Handler:           acmeHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			if err := challengeServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("acme challenge server: %w", err)
			}
			return nil
		})
	}

	if tcp != nil {
		g.Go(func() error { return tcp.Run(gctx) })
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutdown signal received")
		bridgeHub.Stop()
		if challengeServer != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
			defer cancel()
			_ = challengeServer.Shutdown(shutdownCtx)
		}
		return nil
	})

	logger.Info().Msg("sim-bridge is running, press CTRL+C to exit")
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info().Msg("shutdown complete")
	return nil
}

func newModel(logger zerolog.Logger) iface.Model {
	return model.New(logger)
}

// buildTLS returns the hub TLS configuration and, for ACME, the HTTP-01
// challenge handler. Both are nil when TLS is disabled.
func buildTLS(cfg *config.Config, logger zerolog.Logger) (*tls.Config, http.Handler, error) {
	switch {
	case cfg.Insecure:
		logger.Warn().Msg("TLS disabled; frontend tokens travel in clear text")
		return nil, nil, nil

	case cfg.PublicHostname != "":
		logger.Info().Str("hostname", cfg.PublicHostname).Msg("TLS mode: automatic (Let's Encrypt using HTTP-01)")
		cacheDir := cfg.AcmeCacheDir
		if cacheDir == "" {
			cacheDir = "acme_certs"
		}
		if err := os.MkdirAll(cacheDir, 0o700); err != nil {
			return nil, nil, fmt.Errorf("creating ACME cache directory %s: %w", cacheDir, err)
		}
		certManager := &autocert.Manager{
			Prompt:     autocert.AcceptTOS,
			HostPolicy: autocert.HostWhitelist(cfg.PublicHostname),
			Cache:      autocert.DirCache(cacheDir),
		}
		return certManager.TLSConfig(), certManager.HTTPHandler(nil), nil

	default:
		logger.Info().Msg("TLS mode: manual (from file)")
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			return nil, nil, fmt.Errorf("loading TLS certificates: %w", err)
		}
		return &tls.Config{Certificates: []tls.Certificate{cert}, MinVersion: tls.VersionTLS12}, nil, nil
	}
}
