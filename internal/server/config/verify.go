package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/yndnr/vaultkv-go/pkg/integrity"
)

// Verify validates the configuration. It checks that referenced files
// exist but does not parse them.
func Verify(cfg *ServerConfig) error {
	if err := verifyServer(&cfg.Server); err != nil {
		return err
	}
	if err := verifyLimits(&cfg.Limits); err != nil {
		return err
	}
	if err := verifyRateLimit(&cfg.RateLimit); err != nil {
		return err
	}
	if _, err := integrity.New(integrity.Algorithm(cfg.Integrity.Algorithm)); err != nil {
		return fmt.Errorf("integrity.algorithm: %w", err)
	}
	if err := verifyStorage(&cfg.Storage); err != nil {
		return err
	}
	if cfg.Admin.Enabled {
		if _, _, err := net.SplitHostPort(cfg.Admin.Addr); err != nil {
			return fmt.Errorf("admin.addr: %w", err)
		}
	}
	return nil
}

func verifyServer(cfg *ServerSection) error {
	if _, _, err := net.SplitHostPort(cfg.Addr); err != nil {
		return fmt.Errorf("server.addr: %w", err)
	}
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return errors.New("server.tls.cert_file and server.tls.key_file are required")
	}
	for _, f := range []string{cfg.TLS.CertFile, cfg.TLS.KeyFile} {
		if _, err := os.Stat(f); err != nil {
			return fmt.Errorf("server.tls: %w", err)
		}
	}

	timeouts := map[string]int64{
		"server.handshake_timeout": int64(cfg.HandshakeTimeout),
		"server.read_timeout":      int64(cfg.ReadTimeout),
		"server.write_timeout":     int64(cfg.WriteTimeout),
		"server.idle_timeout":      int64(cfg.IdleTimeout),
		"server.shutdown_timeout":  int64(cfg.ShutdownTimeout),
	}
	for name, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}

func verifyLimits(cfg *LimitsSection) error {
	if cfg.MaxKeyLen < 1 {
		return errors.New("limits.max_key_len must be at least 1")
	}
	if cfg.MaxValueSize < 0 {
		return errors.New("limits.max_value_size must not be negative")
	}
	if cfg.MaxFrameBulk < cfg.MaxValueSize || cfg.MaxFrameBulk < cfg.MaxKeyLen {
		return errors.New("limits.max_frame_bulk must be at least max_value_size and max_key_len")
	}
	return nil
}

func verifyRateLimit(cfg *RateLimitSection) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.Capacity < 1 {
		return errors.New("ratelimit.capacity must be at least 1")
	}
	if cfg.RefillRate <= 0 {
		return errors.New("ratelimit.refill_rate must be positive")
	}
	if cfg.SweepInterval <= 0 {
		return errors.New("ratelimit.sweep_interval must be positive")
	}
	return nil
}

func verifyStorage(cfg *StorageSection) error {
	switch strings.ToLower(cfg.Engine) {
	case EngineMemory:
	case EngineBadger:
		if cfg.DataDir == "" {
			return errors.New("storage.data_dir is required for the badger engine")
		}
		if cfg.Badger.GCThreshold <= 0 || cfg.Badger.GCThreshold >= 1 {
			return errors.New("storage.badger.gc_threshold must be in (0, 1)")
		}
		if cfg.Snapshot.Enabled {
			return errors.New("storage.snapshot is only supported with the memory engine")
		}
	default:
		return fmt.Errorf("storage.engine: unknown engine %q", cfg.Engine)
	}

	if !cfg.Snapshot.Enabled {
		return nil
	}
	if cfg.Snapshot.Dir == "" {
		return errors.New("storage.snapshot.dir is required when snapshots are enabled")
	}
	if cfg.Snapshot.Keep < 1 {
		return errors.New("storage.snapshot.keep must be at least 1")
	}
	if cfg.Snapshot.Interval <= 0 {
		return errors.New("storage.snapshot.interval must be positive")
	}
	switch cfg.Snapshot.Cipher {
	case "chacha20-poly1305", "aes-256-gcm":
	default:
		return fmt.Errorf("storage.snapshot.cipher: unknown cipher %q", cfg.Snapshot.Cipher)
	}
	return nil
}
