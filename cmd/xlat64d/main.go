// xlat64d daemon -- SIIT/NAT64 6-to-4 packet translation (RFC 7915).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/go-xlat/xlat64/internal/config"
	"github.com/go-xlat/xlat64/internal/console"
	"github.com/go-xlat/xlat64/internal/idalloc"
	xlat64metrics "github.com/go-xlat/xlat64/internal/metrics"
	"github.com/go-xlat/xlat64/internal/ovsdb"
	"github.com/go-xlat/xlat64/internal/registry"
	appversion "github.com/go-xlat/xlat64/internal/version"
	"github.com/go-xlat/xlat64/internal/xlat"
)

// shutdownTimeout is the maximum time to wait for HTTP servers to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	ovsdbEndpoint := flag.String("ovsdb", "unix:/var/run/openvswitch/db.sock", "OVSDB endpoint for routing/device lookups")
	shell := flag.Bool("shell", false, "start the operator console on stdio instead of the daemon servers")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()))
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(config.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("xlat64d starting",
		slog.String("version", appversion.Version),
		slog.String("health_addr", cfg.Health.Addr),
		slog.String("metrics_addr", cfg.Metrics.Addr),
	)

	reg := prometheus.NewRegistry()
	collector := xlat64metrics.NewCollector(reg)

	reggy := registry.New(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ovs, err := ovsdb.New(ctx, *ovsdbEndpoint, logger)
	if err != nil {
		logger.Error("failed to connect to ovsdb", slog.String("error", err.Error()))
		return 1
	}
	defer ovs.Close()

	translator := xlat.NewTranslator(ovs, ovs, idalloc.New(), collector)

	if _, err := reconcileInstances(reggy, cfg, collector, logger); err != nil {
		logger.Error("failed to reconcile instances", slog.String("error", err.Error()))
		return 1
	}

	if *shell {
		return runShell(reggy, translator, logger)
	}

	if err := runServers(ctx, cfg, reggy, reg, logger, *configPath, logLevel, collector); err != nil {
		logger.Error("xlat64d exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("xlat64d stopped")
	return 0
}

// runShell starts the operator console against reggy and translator on
// stdio, returning once the operator exits it, in place of running the
// daemon servers.
func runShell(reggy *registry.Registry, translator *xlat.Translator, logger *slog.Logger) int {
	if err := console.New(reggy, translator, logger).Start(); err != nil {
		logger.Error("console exited with error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

// instKey identifies one instance slot for the stale-instance diff below.
type instKey struct{ namespace, name string }

// reconcileInstances publishes every declarative instance in cfg into
// reggy: new ones are added, and any that already exist under the same
// namespace/name are replaced by the freshly built instance (and logged),
// so it is safe to call both at startup against an empty registry and on
// SIGHUP reloads. Any instance currently in reggy but no longer present in
// cfg is removed. A namespace that lost an instance and has no instance
// left in cfg is returned so the caller can flush it (the namespace may
// still carry other config state the registry itself doesn't know about,
// e.g. a destroyed host-side network namespace).
func reconcileInstances(reggy *registry.Registry, cfg *config.Config, collector *xlat64metrics.Collector, logger *slog.Logger) ([]string, error) {
	wanted := make(map[instKey]struct{}, len(cfg.Instances))

	for i, ic := range cfg.Instances {
		wanted[instKey{ic.Namespace, ic.Name}] = struct{}{}

		inst, err := config.Build(ic)
		if err != nil {
			return nil, fmt.Errorf("instances[%d]: %w", i, err)
		}

		switch err := reggy.Add(ic.Namespace, inst); {
		case err == nil:
			collector.RegisterInstance(ic.Namespace, ic.Framework)
			logger.Info("instance published",
				slog.String("namespace", ic.Namespace),
				slog.String("name", ic.Name),
				slog.String("mode", ic.Mode),
			)
		case errors.Is(err, registry.ErrExists):
			if rerr := reggy.Replace(ic.Namespace, ic.Name, inst); rerr != nil {
				return nil, fmt.Errorf("instances[%d]: replace existing: %w", i, rerr)
			}
			collector.IncReplace()
			logger.Info("instance replaced",
				slog.String("namespace", ic.Namespace),
				slog.String("name", ic.Name),
			)
		default:
			return nil, fmt.Errorf("instances[%d]: add: %w", i, err)
		}
	}

	type staleInstance struct {
		key       instKey
		framework string
	}
	var stale []staleInstance
	reggy.Foreach(func(namespace string, inst *xlat.Instance) {
		k := instKey{namespace, inst.Name}
		if _, ok := wanted[k]; !ok {
			stale = append(stale, staleInstance{key: k, framework: inst.Framework.String()})
		}
	})

	staleNamespaces := make(map[string]struct{}, len(stale))
	for _, s := range stale {
		if err := reggy.Remove(s.key.namespace, s.key.name); err != nil {
			return nil, fmt.Errorf("remove stale instance %s/%s: %w", s.key.namespace, s.key.name, err)
		}
		collector.UnregisterInstance(s.key.namespace, s.framework)
		staleNamespaces[s.key.namespace] = struct{}{}
		logger.Info("stale instance removed",
			slog.String("namespace", s.key.namespace),
			slog.String("name", s.key.name),
		)
	}

	wantedNamespaces := make(map[string]struct{}, len(wanted))
	for k := range wanted {
		wantedNamespaces[k.namespace] = struct{}{}
	}
	namespaces := make([]string, 0, len(staleNamespaces))
	for ns := range staleNamespaces {
		if _, ok := wantedNamespaces[ns]; ok {
			continue
		}
		namespaces = append(namespaces, ns)
	}
	return namespaces, nil
}

// runServers sets up and runs the health and metrics HTTP servers using an
// errgroup under a signal-aware context, plus the systemd watchdog and
// SIGHUP reload goroutines.
func runServers(
	ctx context.Context,
	cfg *config.Config,
	reggy *registry.Registry,
	reg *prometheus.Registry,
	logger *slog.Logger,
	configPath string,
	logLevel *slog.LevelVar,
	collector *xlat64metrics.Collector,
) error {
	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	healthSrv := newHealthServer(cfg.Health)

	g, gCtx := errgroup.WithContext(ctx)

	startHTTPServers(gCtx, g, cfg, healthSrv, metricsSrv, logger)
	startDaemonGoroutines(gCtx, g, configPath, logLevel, reggy, collector, logger)

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(gCtx, logger, healthSrv, metricsSrv)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("run servers: %w", err)
	}
	return nil
}

func startHTTPServers(ctx context.Context, g *errgroup.Group, cfg *config.Config, healthSrv, metricsSrv *http.Server, logger *slog.Logger) {
	lc := net.ListenConfig{}

	g.Go(func() error {
		logger.Info("health server listening", slog.String("addr", cfg.Health.Addr))
		return listenAndServe(ctx, &lc, healthSrv, cfg.Health.Addr)
	})

	g.Go(func() error {
		logger.Info("metrics server listening",
			slog.String("addr", cfg.Metrics.Addr),
			slog.String("path", cfg.Metrics.Path))
		return listenAndServe(ctx, &lc, metricsSrv, cfg.Metrics.Addr)
	})
}

func startDaemonGoroutines(
	ctx context.Context,
	g *errgroup.Group,
	configPath string,
	logLevel *slog.LevelVar,
	reggy *registry.Registry,
	collector *xlat64metrics.Collector,
	logger *slog.Logger,
) {
	g.Go(func() error {
		return runWatchdog(ctx, logger)
	})

	sigHUP := make(chan os.Signal, 1)
	signal.Notify(sigHUP, syscall.SIGHUP)
	g.Go(func() error {
		defer signal.Stop(sigHUP)
		handleSIGHUP(ctx, sigHUP, configPath, logLevel, reggy, collector, logger)
		return nil
	})
}

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("failed to notify systemd readiness", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: READY")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("failed to notify systemd stopping", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Info("notified systemd: STOPPING")
	}
}

func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("failed to check systemd watchdog", slog.String("error", err.Error()))
		return nil
	}
	if interval == 0 {
		logger.Debug("systemd watchdog not configured, skipping keepalive")
		return nil
	}

	tickInterval := interval / 2
	logger.Info("systemd watchdog enabled",
		slog.Duration("watchdog_sec", interval),
		slog.Duration("keepalive_interval", tickInterval))

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("failed to send watchdog keepalive", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// handleSIGHUP reloads configuration and reconciles instances on SIGHUP.
// Blocks until ctx is cancelled.
func handleSIGHUP(
	ctx context.Context,
	sigHUP <-chan os.Signal,
	configPath string,
	logLevel *slog.LevelVar,
	reggy *registry.Registry,
	collector *xlat64metrics.Collector,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sigHUP:
			logger.Info("received SIGHUP, reloading configuration")
			reloadConfig(configPath, logLevel, reggy, collector, logger)
		}
	}
}

func reloadConfig(
	configPath string,
	logLevel *slog.LevelVar,
	reggy *registry.Registry,
	collector *xlat64metrics.Collector,
	logger *slog.Logger,
) {
	newCfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to reload configuration, keeping current settings", slog.String("error", err.Error()))
		return
	}

	oldLevel := logLevel.Level()
	newLevel := config.ParseLogLevel(newCfg.Log.Level)
	logLevel.Set(newLevel)

	logger.Info("configuration reloaded",
		slog.String("old_log_level", oldLevel.String()),
		slog.String("new_log_level", newLevel.String()))

	staleNamespaces, err := reconcileInstances(reggy, newCfg, collector, logger)
	if err != nil {
		logger.Error("failed to reconcile instances after reload", slog.String("error", err.Error()))
		return
	}
	for _, ns := range staleNamespaces {
		n := reggy.Flush(ns)
		logger.Info("namespace flushed after reload",
			slog.String("namespace", ns),
			slog.Int("removed", n),
		)
	}
}

// gracefulShutdown signals systemd, then shuts down the HTTP servers within
// shutdownTimeout.
func gracefulShutdown(ctx context.Context, logger *slog.Logger, servers ...*http.Server) error {
	logger.Info("initiating graceful shutdown")
	notifyStopping(logger)

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	var shutdownErr error
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			shutdownErr = errors.Join(shutdownErr, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return shutdownErr
}

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// newHealthServer builds the Connect-RPC health server (grpc.health.v1),
// reporting SERVING for the overall daemon. Wrapped in h2c so that gRPC
// health-check clients can connect over plaintext HTTP/2.
func newHealthServer(cfg config.HealthConfig) *http.Server {
	mux := http.NewServeMux()
	checker := grpchealth.NewStaticChecker(grpchealth.HealthV1ServiceName)
	mux.Handle(grpchealth.NewHandler(checker))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func newLoggerWithLevel(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
