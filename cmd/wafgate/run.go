package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wafgate/wafgate/internal/config"
	"github.com/wafgate/wafgate/internal/engine/corazawaf"
	"github.com/wafgate/wafgate/internal/gateway"
	"github.com/wafgate/wafgate/internal/logging"
	"github.com/wafgate/wafgate/internal/observability"
	"github.com/wafgate/wafgate/internal/rulestore"
)

func newRunCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the Wafgate gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return errors.New("config path is required")
			}
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runGateway(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	return cmd
}

func runGateway(ctx context.Context, cfg *config.Config) error {
	log := logging.Setup(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	eng := corazawaf.New(logging.EngineSink(log))
	store := rulestore.New(eng, log)
	loadRules(cfg, store, log)

	upstream, err := url.Parse(cfg.Upstream.URL)
	if err != nil {
		return err
	}
	proxy := httputil.NewSingleHostReverseProxy(upstream)
	proxy.Transport = newTransport()
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		switch {
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			http.Error(w, "upstream timeout", http.StatusGatewayTimeout)
		default:
			http.Error(w, "upstream error", http.StatusBadGateway)
		}
	}

	gw, err := gateway.New(eng, store, proxy, log)
	if err != nil {
		return err
	}
	gw.SetServerName(cfg.Server.Name)
	gw.SetRateLimit(cfg.RateLimit)

	if cfg.Logging.DecisionLog != "" {
		logger, closer, err := logging.OpenDecisionLog(cfg.ResolvePath(cfg.Logging.DecisionLog))
		if err != nil {
			return err
		}
		defer func() { _ = closer() }()
		gw.SetDecisionLogger(logger)
	}

	metricsSrv, err := startMetricsServer(cfg, gw, store)
	if err != nil {
		return err
	}
	defer func() {
		if metricsSrv != nil {
			_ = metricsSrv.Shutdown(context.Background())
		}
	}()

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           gw,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		if cfg.Server.TLS.Enabled {
			serverErr <- srv.ListenAndServeTLS(cfg.ResolvePath(cfg.Server.TLS.CertFile), cfg.ResolvePath(cfg.Server.TLS.KeyFile))
			return
		}
		serverErr <- srv.ListenAndServe()
	}()
	log.Info().Str("listen", cfg.Server.Listen).Str("upstream", cfg.Upstream.URL).Msg("gateway started")

	signalCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case <-signalCtx.Done():
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// loadRules performs the one-time startup load: file globs first, then the
// inline rules joined into a single source.
func loadRules(cfg *config.Config, store *rulestore.Store, log zerolog.Logger) {
	patterns := make([]string, 0, len(cfg.Rules.Files))
	for _, pattern := range cfg.Rules.Files {
		patterns = append(patterns, cfg.ResolvePath(pattern))
	}

	fromFiles := store.LoadFromFiles(patterns)
	fromInline := store.LoadFromText(cfg.Rules.InlineText())

	log.Info().
		Int("from_files", fromFiles).
		Int("from_inline", fromInline).
		Int("total", store.TotalRules()).
		Int("failures", store.Failures()).
		Msg("rules loaded")
}

func startMetricsServer(cfg *config.Config, gw *gateway.Gateway, store *rulestore.Store) (*http.Server, error) {
	if !cfg.Metrics.Enabled {
		return nil, nil
	}

	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	metrics.ObserveRuleLoad(store.TotalRules(), store.Failures())
	gw.SetMetrics(metrics)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	srv := &http.Server{Addr: cfg.Metrics.Listen, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv, nil
}

func newTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}
	return &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}
}
