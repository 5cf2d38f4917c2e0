package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/yndnr/vaultkv-go/internal/core/ratelimit"
	"github.com/yndnr/vaultkv-go/internal/core/vault"
	"github.com/yndnr/vaultkv-go/internal/infra/buildinfo"
	"github.com/yndnr/vaultkv-go/internal/infra/confloader"
	"github.com/yndnr/vaultkv-go/internal/infra/shutdown"
	"github.com/yndnr/vaultkv-go/internal/infra/tlsroots"
	"github.com/yndnr/vaultkv-go/internal/protocol"
	"github.com/yndnr/vaultkv-go/internal/server/adminserver"
	"github.com/yndnr/vaultkv-go/internal/server/config"
	"github.com/yndnr/vaultkv-go/internal/server/vaultserver"
	"github.com/yndnr/vaultkv-go/internal/storage"
	"github.com/yndnr/vaultkv-go/internal/storage/snapshot"
	"github.com/yndnr/vaultkv-go/internal/telemetry/logger"
	"github.com/yndnr/vaultkv-go/internal/telemetry/metric"
	"github.com/yndnr/vaultkv-go/pkg/integrity"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "vaultkv-server",
		Usage:     "secure key-value vault server",
		Version:   buildinfo.String(),
		ArgsUsage: "[port]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to configuration file",
				EnvVars: []string{"VAULTKV_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "TCP port to listen on",
			},
			&cli.StringFlag{
				Name:  "cert",
				Usage: "server certificate (PEM)",
			},
			&cli.StringFlag{
				Name:  "key",
				Usage: "server private key (PEM)",
			},
		},
		Action: run,
	}
}

func overridesFrom(c *cli.Context) (flagOverrides, error) {
	if c.NArg() > 1 {
		return flagOverrides{}, fmt.Errorf("unexpected arguments: %v", c.Args().Slice()[1:])
	}

	port := c.String("port")
	if c.NArg() == 1 {
		if port != "" {
			return flagOverrides{}, errors.New("port given both as --port and as an argument")
		}
		port = c.Args().First()
	}
	if port != "" {
		p, err := parsePort(port)
		if err != nil {
			return flagOverrides{}, err
		}
		port = p
	}

	return flagOverrides{
		Port:     port,
		CertFile: c.String("cert"),
		KeyFile:  c.String("key"),
	}, nil
}

func run(c *cli.Context) error {
	flags, err := overridesFrom(c)
	if err != nil {
		return err
	}

	configFile := c.String("config")
	cfg, err := loadConfig(configFile, flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := initLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	log.Info("starting vaultkv-server",
		"version", buildinfo.String(),
		"config", configFile)
	log.Debug("effective configuration", "config", config.Sanitize(cfg))

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	sh := shutdown.NewHandler(cfg.Server.ShutdownTimeout, shutdown.WithLogger(log.Slog()))
	sh.OnShutdown("logger", func(context.Context) error {
		return log.Close()
	})

	if err := start(ctx, cfg, configFile, flags, log, sh, cancel); err != nil {
		log.Error("startup failed", "error", err)
		cancel(err)
		_ = sh.Run()
		return err
	}

	log.Info("server started, press Ctrl+C to stop")
	if err := sh.Wait(ctx); err != nil {
		// hooks already logged their own failures
		fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
	}

	// a listener failure, not a signal, ended the run
	if err := context.Cause(ctx); err != nil {
		return err
	}
	return nil
}

// start builds every component, registers its shutdown hook and launches
// the listeners. Hooks run in reverse order of registration, so the vault
// listener drains before snapshots are finalized and storage is closed.
func start(
	ctx context.Context,
	cfg *config.ServerConfig,
	configFile string,
	flags flagOverrides,
	log logger.Logger,
	sh *shutdown.Handler,
	fail context.CancelCauseFunc,
) error {
	slogger := log.Slog()
	metrics := metric.NewRegistry()

	codec, err := integrity.New(integrity.Algorithm(cfg.Integrity.Algorithm))
	if err != nil {
		return err
	}

	storeOpts := []vault.Option{
		vault.WithCodec(codec),
		vault.WithLogger(slogger.With("component", "vault")),
		vault.WithViolationHandler(func(string) {
			metrics.IntegrityViolation()
		}),
	}

	var engine *storage.BadgerEngine
	if cfg.Storage.Engine == config.EngineBadger {
		engine, err = storage.OpenBadger(storage.BadgerConfig{
			Dir:         cfg.Storage.DataDir,
			SyncWrites:  cfg.Storage.Badger.SyncWrites,
			GCInterval:  cfg.Storage.Badger.GCInterval,
			GCThreshold: cfg.Storage.Badger.GCThreshold,
		}, slogger.With("component", "storage"))
		if err != nil {
			return fmt.Errorf("open storage: %w", err)
		}
		engine.RegisterMetrics(metrics.Prometheus())
		sh.OnShutdown("storage", func(context.Context) error {
			return engine.Close()
		})
		storeOpts = append(storeOpts, vault.WithBackend(engine))
	}

	store := vault.New(vault.Config{
		MaxKeyLen:    cfg.Limits.MaxKeyLen,
		MaxValueSize: cfg.Limits.MaxValueSize,
	}, storeOpts...)

	if engine != nil {
		loaded, rejected, err := store.LoadFrom(ctx, engine)
		if err != nil {
			return fmt.Errorf("load storage: %w", err)
		}
		log.Info("storage loaded",
			"engine", config.EngineBadger,
			"loaded", loaded,
			"rejected", rejected)
	}

	if cfg.Storage.Snapshot.Enabled {
		if err := startSnapshots(cfg, store, slogger, sh); err != nil {
			return err
		}
	}

	var limiter *ratelimit.Limiter
	if cfg.RateLimit.Enabled {
		limiter, err = ratelimit.New(ratelimit.Config{
			Capacity:      cfg.RateLimit.Capacity,
			RefillRate:    cfg.RateLimit.RefillRate,
			IdleExpiry:    cfg.RateLimit.IdleExpiry,
			SweepInterval: cfg.RateLimit.SweepInterval,
		}, ratelimit.WithLogger(slogger.With("component", "ratelimit")))
		if err != nil {
			return err
		}
		go limiter.Run(ctx)
	}

	metrics.MustRegister(metric.NewCollector(func() metric.Stats {
		return metric.Stats{
			StoreEntries:     store.Len(),
			RateLimitBuckets: limiter.Buckets(),
		}
	}))

	certs, err := tlsroots.NewWatcher(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile,
		tlsroots.WithLogger(slogger.With("component", "tls")))
	if err != nil {
		return fmt.Errorf("load certificate: %w", err)
	}
	if cfg.Server.TLS.Reload {
		go func() {
			if err := certs.Run(ctx); err != nil {
				log.Error("certificate watcher stopped", "error", err)
			}
		}()
	}

	srv, err := vaultserver.New(vaultserver.Config{
		Addr:             cfg.Server.Addr,
		TLSConfig:        certs.ServerConfig(),
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
		IdleTimeout:      cfg.Server.IdleTimeout,
		Limits: protocol.Limits{
			MaxArrayLen: protocol.DefaultMaxArrayLen,
			MaxBulkLen:  cfg.Limits.MaxFrameBulk,
		},
	}, store,
		vaultserver.WithLimiter(limiter),
		vaultserver.WithMetrics(metrics),
		vaultserver.WithLogger(slogger.With("component", "vaultserver")))
	if err != nil {
		return err
	}

	// Bind before returning so a busy port is a startup failure.
	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Server.Addr, err)
	}

	var admin *adminserver.Server
	if cfg.Admin.Enabled {
		admin = adminserver.New(adminserver.Config{Addr: cfg.Admin.Addr},
			adminserver.WithLogger(slogger.With("component", "admin")),
			adminserver.WithMetrics(metrics),
			adminserver.WithStats(func() adminserver.Stats {
				return adminserver.Stats{
					Entries:          store.Len(),
					ActiveSessions:   srv.ActiveSessions(),
					RateLimitBuckets: limiter.Buckets(),
				}
			}))
		adminLn, err := net.Listen("tcp", cfg.Admin.Addr)
		if err != nil {
			ln.Close()
			return fmt.Errorf("listen admin %s: %w", cfg.Admin.Addr, err)
		}
		sh.OnShutdown("admin", admin.Shutdown)
		go func() {
			if err := admin.Serve(ctx, adminLn); err != nil {
				log.Error("admin server error", "error", err)
			}
		}()
	}

	if configFile != "" {
		if err := watchConfig(ctx, configFile, flags, slogger); err != nil {
			log.Warn("config reload disabled", "error", err)
		}
	}

	sh.OnShutdown("vaultserver", func(ctx context.Context) error {
		if admin != nil {
			admin.SetReady(false)
		}
		log.Info("draining vault sessions", "active", srv.ActiveSessions())
		return srv.Shutdown(ctx)
	})

	go func() {
		if err := srv.Serve(ctx, ln); err != nil && !errors.Is(err, vaultserver.ErrServerClosed) {
			log.Error("vault server error", "error", err)
			fail(err)
		}
	}()
	return nil
}

// startSnapshots restores the newest readable snapshot into store and
// starts the periodic writer. The writer's final snapshot is taken by a
// shutdown hook, after the listener has drained.
func startSnapshots(cfg *config.ServerConfig, store *vault.Store, log *slog.Logger, sh *shutdown.Handler) error {
	sc := cfg.Storage.Snapshot
	mgr, err := snapshot.NewManager(snapshot.Config{
		Dir:        sc.Dir,
		Keep:       sc.Keep,
		Passphrase: []byte(sc.Passphrase),
		Cipher:     sc.Cipher,
		Algorithm:  store.Codec().Algorithm(),
		Logger:     log.With("component", "snapshot"),
	})
	if err != nil {
		return err
	}

	records, info, err := mgr.Load()
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshots):
		log.Info("no snapshot to restore", "dir", sc.Dir)
	case err != nil:
		return fmt.Errorf("restore snapshot: %w", err)
	default:
		loaded, rejected := store.Restore(context.Background(), records)
		log.Info("snapshot restored",
			"id", info.ID,
			"loaded", loaded,
			"rejected", rejected)
	}

	snapCtx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		mgr.Run(snapCtx, sc.Interval, store.Snapshot)
	}()
	sh.OnShutdown("snapshot", func(ctx context.Context) error {
		stop()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	return nil
}

// watchConfig reloads the config file on change. Only the log level is
// applied live; other settings need a restart.
func watchConfig(ctx context.Context, configFile string, flags flagOverrides, log *slog.Logger) error {
	w, err := confloader.NewWatcher(confloader.WithWatcherLogger(log))
	if err != nil {
		return err
	}
	if err := w.Watch(configFile); err != nil {
		return err
	}
	w.OnChange(func(string) {
		cfg, err := loadConfig(configFile, flags)
		if err != nil {
			log.Warn("ignoring invalid configuration change", "error", err)
			return
		}
		logger.SetLevel(cfg.Log.Level)
		log.Info("configuration reloaded", "log_level", cfg.Log.Level)
	})
	go w.Run(ctx)
	return nil
}

func initLogger(cfg *config.ServerConfig) (logger.Logger, error) {
	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     os.Stderr,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	})
	if err != nil {
		return nil, err
	}
	logger.SetDefault(log)
	return log, nil
}
