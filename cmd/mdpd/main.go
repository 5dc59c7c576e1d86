package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/kstaniek/mdp-host/internal/driver"
	"github.com/kstaniek/mdp-host/internal/metrics"
	"github.com/kstaniek/mdp-host/internal/telemetry"
	"github.com/kstaniek/mdp-host/internal/transport"
)

const (
	rxBackoffMin = 500 * time.Millisecond
	rxBackoffMax = 10 * time.Second
)

// sleepFn allows tests to intercept backoff sleeps.
var sleepFn = time.Sleep

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("mdpd %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	hub := telemetry.NewHub()
	hub.OutBufSize = cfg.telemetryBuffer
	switch cfg.telemetryPolicy {
	case "kick":
		hub.Policy = telemetry.PolicyKick
	default:
		hub.Policy = telemetry.PolicyDrop
	}
	l.Info("build_info", "version", version, "commit", commit, "date", date)
	l.Info("telemetry_config", "policy", cfg.telemetryPolicy, "buffer", hub.OutBufSize)

	srv := telemetry.NewServer(
		telemetry.WithHub(hub),
		telemetry.WithListenAddr(cfg.telemetryAddr),
		telemetry.WithMaxClients(cfg.maxClients),
		telemetry.WithHandshakeTimeout(cfg.handshakeTO),
		telemetry.WithReadDeadline(cfg.clientReadTO),
	)
	go func() {
		if err := srv.Serve(ctx); err != nil {
			l.Error("telemetry_server_error", "error", err)
			cancel()
		}
	}()
	go startTelemetryMDNS(ctx, cfg, srv, l)

	var driverMu sync.Mutex
	var current *driver.Driver
	ready := func() bool {
		driverMu.Lock()
		defer driverMu.Unlock()
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return current != nil && ctx.Err() == nil
	}
	metrics.SetReadinessFunc(ready)
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		metricsSrv := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = metricsSrv.Shutdown(context.Background()) }()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runSerialLoop(ctx, cfg, l, hub, &driverMu, &current)
	}()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	_ = srv.Shutdown(context.Background())
	wg.Wait()
}

// runSerialLoop owns the head unit's serial connection, reconnecting with
// backoff whenever the Driver's read loop exits (device unplugged, USB-CDC
// reset, transient error).
func runSerialLoop(ctx context.Context, cfg *appConfig, l *slog.Logger, hub *telemetry.Hub, driverMu *sync.Mutex, current **driver.Driver) {
	backoff := rxBackoffMin
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		port, err := transport.Open(transport.Config{Name: cfg.serialDev, Baud: cfg.baud, ReadTimeout: cfg.serialReadTO})
		if err != nil {
			metrics.IncError(metrics.ErrSerialRead)
			l.Warn("serial_open_error", "error", err, "backoff", backoff)
			sleepFn(backoff)
			backoff = nextBackoff(backoff)
			continue
		}
		l.Info("serial_open", "device", cfg.serialDev, "baud", cfg.baud)
		backoff = rxBackoffMin

		d := driver.New(port)
		relay := telemetry.NewRelay(hub, d.Bus, d.Store)

		driverMu.Lock()
		*current = d
		driverMu.Unlock()

		relayCtx, relayCancel := context.WithCancel(ctx)
		go relay.Run(relayCtx)

		runErr := d.Run(ctx)
		relayCancel()
		relay.Close()
		d.Close()

		driverMu.Lock()
		*current = nil
		driverMu.Unlock()

		if ctx.Err() != nil {
			return
		}
		if runErr != nil {
			l.Warn("serial_connection_lost", "error", runErr, "backoff", backoff)
		}
		sleepFn(backoff)
		backoff = nextBackoff(backoff)
	}
}

func nextBackoff(b time.Duration) time.Duration {
	b *= 2
	if b > rxBackoffMax {
		return rxBackoffMax
	}
	return b
}

func startTelemetryMDNS(ctx context.Context, cfg *appConfig, srv *telemetry.Server, l *slog.Logger) {
	if !cfg.mdnsEnable {
		return
	}
	select {
	case <-srv.Ready():
	case <-ctx.Done():
		return
	}
	var port int
	if _, p, err := net.SplitHostPort(srv.Addr()); err == nil {
		if pn, perr := strconv.Atoi(p); perr == nil {
			port = pn
		}
	}
	cleanup, err := startMDNS(ctx, cfg, port)
	if err != nil {
		l.Warn("mdns_start_failed", "error", err)
		return
	}
	l.Info("mdns_started", "service", telemetry.ServiceType, "name", cfg.mdnsName, "port", port)
	go func() { <-ctx.Done(); cleanup() }()
}
