package main

import (
	"context"
	debugpkg "runtime/debug"
	pprof "runtime/pprof"

	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

var buildTime = "dev"

func main() {
	defer func() {
		if r := recover(); r != nil {
			path := "panic.log"
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644); err == nil {
				defer f.Close()
				ts := time.Now().UTC().Format(time.RFC3339)
				fmt.Fprintf(f, "[%s] panic: %v\nbuild_time=%s\n%s\n\n",
					ts, r, buildTime, debugpkg.Stack())
			}
		}
	}()

	debugpkg.SetGCPercent(200)

	configFlag := flag.String("config", "", "path to config.toml")
	stdoutLogFlag := flag.Bool("stdout", false, "mirror logs to stdout")
	profileFlag := flag.Bool("profile", false, "60s CPU profile")
	logLevelFlag := flag.String("log-level", "", "override log level (debug/info/warn/error)")
	flag.Parse()

	if *profileFlag {
		f, err := os.Create("default.pgo")
		if err != nil {
			logger.Warn("profile open failed", "error", err)
		} else if err := pprof.StartCPUProfile(f); err != nil {
			logger.Warn("profile start failed", "error", err)
		} else {
			go func() {
				time.Sleep(60 * time.Second)
				pprof.StopCPUProfile()
				f.Close()
			}()
		}
	}

	cfg, err := loadConfig(*configFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	configureFileLogging(cfg.LogFile, cfg.ErrorLogFile, cfg.DebugLogFile, cfg.LogToStdout || *stdoutLogFlag)
	switch *logLevelFlag {
	case "debug":
		setLogLevel(logLevelDebug)
	case "info":
		setLogLevel(logLevelInfo)
	case "warn":
		setLogLevel(logLevelWarn)
	case "error":
		setLogLevel(logLevelError)
	default:
		if cfg.Debug {
			setLogLevel(logLevelDebug)
		}
	}
	metrics := NewMetrics()
	rpc := NewRPCClient(cfg, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rpc.StartCookieWatcher(ctx)

	if err := waitForUpstream(ctx, rpc, cfg); err != nil {
		fatal("upstream unreachable", err)
	}

	jm := NewJobManager(rpc, cfg, metrics)
	validator := NewShareValidator(referenceVerifier{}, defaultExtranonce1Size)
	srv := NewServer(cfg, rpc, jm, validator, metrics)

	jobsErrCh := make(chan error, 1)
	go func() { jobsErrCh <- jm.Start(ctx) }()

	if cfg.MetricsAddr != "" {
		go serveMetrics(cfg.MetricsAddr, metrics, cfg.BlockNotifyPath, srv)
	}

	srvErrCh := make(chan error, 1)
	go func() { srvErrCh <- srv.Start(ctx) }()

	logger.Info("kawpow stratum server started", "listen", cfg.listenAddress(), "build", buildTime)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-jobsErrCh:
		if err != nil {
			// jm.Start's only error return is the initial getblocktemplate
			// fetch failing; a startup condition this server can't run
			// without, not one to log and shut down gracefully from.
			fatal("job manager failed to start", err)
		}
		stop()
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server exited", "error", err)
		}
		stop()
	}

	srv.Stop(10 * time.Second)
	logger.Stop()
}

// waitForUpstream blocks until the upstream node answers getblockchaininfo,
// retrying startupRetryAttempts times with a fixed delay before giving up.
func waitForUpstream(ctx context.Context, rpc *RPCClient, cfg *Config) error {
	attempts := cfg.StartupRetryAttempts
	if attempts <= 0 {
		attempts = defaultStartupRetryAttempts
	}
	delay := cfg.StartupRetryDelay
	if delay <= 0 {
		delay = defaultStartupRetryDelay
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		info, err := rpc.GetBlockchainInfo(ctx)
		if err == nil {
			logger.Info("connected to upstream", "blocks", info.Blocks, "progress", info.VerificationProgress)
			return nil
		}
		lastErr = err
		logger.Warn("waiting for upstream", "attempt", i+1, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("upstream unreachable after %d attempts: %w", attempts, lastErr)
}

func serveMetrics(addr string, m *Metrics, blockNotifyPath string, srv *Server) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	if blockNotifyPath != "" {
		mux.Handle(blockNotifyPath, srv.BlockNotifyHandler())
		logger.Info("block notify endpoint registered", "path", blockNotifyPath)
	}
	logger.Info("metrics server listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics server failed", "error", err)
	}
}
