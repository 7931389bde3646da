package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/twogc/fectun/internal"
	"github.com/twogc/fectun/internal/tunnel"
)

func main() {
	verbose := flag.Bool("verbose", false, "Development logging instead of production")
	noHMAC := flag.Bool("no-hmac", false, "Disable per-packet HMAC authentication")
	secretEnv := flag.String("secret-env", "FECTUN_SECRET", "Environment variable holding the HMAC secret")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve Prometheus /metrics on, e.g. :9100")
	receiveTimeout := flag.Duration("receive-timeout", 0, "Override the idle-resync timeout (0 uses the built-in default)")
	version := flag.Bool("version", false, "Print version information and exit")
	flag.Parse()

	if *version {
		internal.PrintVersion()
		return
	}

	args := flag.Args()
	if len(args) != 4 {
		fmt.Fprintln(os.Stderr, "usage: fectun [flags] <iface-name> <remote-host> <local-port> <remote-port>")
		fmt.Fprintln(os.Stderr, "  remote-host \"\" and remote-port 0 together select server mode")
		flag.PrintDefaults()
		os.Exit(2)
	}

	var localPort, remotePort int
	if _, err := fmt.Sscanf(args[2], "%d", &localPort); err != nil {
		fmt.Fprintf(os.Stderr, "invalid local port %q: %v\n", args[2], err)
		os.Exit(2)
	}
	if _, err := fmt.Sscanf(args[3], "%d", &remotePort); err != nil {
		fmt.Fprintf(os.Stderr, "invalid remote port %q: %v\n", args[3], err)
		os.Exit(2)
	}

	cfg := internal.TunnelConfig{
		IfaceName:      args[0],
		RemoteHost:     args[1],
		LocalPort:      localPort,
		RemotePort:     remotePort,
		Verbose:        *verbose,
		NoHMAC:         *noHMAC,
		SecretEnv:      *secretEnv,
		MetricsAddr:    *metricsAddr,
		ReceiveTimeout: *receiveTimeout,
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	var logger *zap.Logger
	var err error
	if cfg.Verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatal("failed to create logger:", err)
	}
	defer logger.Sync()

	var secret []byte
	if !cfg.NoHMAC {
		secret, err = tunnel.LoadSecret(cfg.SecretEnv)
		if err != nil {
			logger.Fatal("failed to load HMAC secret", zap.Error(err))
		}
		if secret == nil {
			logger.Warn("no HMAC secret found, running with authentication disabled",
				zap.String("secret_env", cfg.SecretEnv))
		}
	}

	registry := prometheus.NewRegistry()
	metrics := tunnel.NewMetrics(registry)

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
		logger.Info("serving Prometheus metrics", zap.String("addr", cfg.MetricsAddr))
	}

	t, err := tunnel.New(tunnel.Config{
		IfaceName:      cfg.IfaceName,
		RemoteHost:     cfg.RemoteHost,
		LocalPort:      cfg.LocalPort,
		RemotePort:     cfg.RemotePort,
		Secret:         secret,
		ReceiveTimeout: cfg.ReceiveTimeout,
	}, logger, metrics)
	if err != nil {
		logger.Fatal("failed to initialize tunnel", zap.Error(err))
	}
	defer t.Close()

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	logger.Info("tunnel starting",
		zap.String("iface", cfg.IfaceName),
		zap.Bool("server_mode", cfg.ServerMode()),
		zap.Int("local_port", cfg.LocalPort))

	if err := t.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("tunnel stopped with error", zap.Error(err))
	}
}
