package config

import "time"

// Default configuration values.
const (
	DefaultAddr      = ":7443"
	DefaultCertFile  = "cert.pem"
	DefaultKeyFile   = "key.pem"
	DefaultAdminAddr = "127.0.0.1:9470"

	DefaultHandshakeTimeout = 10 * time.Second
	DefaultReadTimeout      = 30 * time.Second
	DefaultWriteTimeout     = 30 * time.Second
	DefaultIdleTimeout      = 5 * time.Minute
	DefaultShutdownTimeout  = 15 * time.Second

	DefaultMaxKeyLen    = 256
	DefaultMaxValueSize = 512 * 1024
	DefaultMaxFrameBulk = 1024 * 1024

	DefaultRateCapacity      = 20
	DefaultRateRefill        = 10.0
	DefaultRateIdleExpiry    = 10 * time.Minute
	DefaultRateSweepInterval = time.Minute

	DefaultAlgorithm = "sha256"

	DefaultEngine         = "memory"
	DefaultDataDir        = "data"
	DefaultGCInterval     = 5 * time.Minute
	DefaultGCThreshold    = 0.5
	DefaultSnapshotEvery  = 5 * time.Minute
	DefaultSnapshotKeep   = 3
	DefaultSnapshotCipher = "chacha20-poly1305"

	DefaultLogLevel      = "info"
	DefaultLogFormat     = "json"
	DefaultLogMaxSizeMB  = 100
	DefaultLogMaxBackups = 3
)

// Storage engines.
const (
	EngineMemory = "memory"
	EngineBadger = "badger"
)

// Default returns the default server configuration.
func Default() *ServerConfig {
	return &ServerConfig{
		Server: ServerSection{
			Addr: DefaultAddr,
			TLS: TLSSection{
				CertFile: DefaultCertFile,
				KeyFile:  DefaultKeyFile,
			},
			HandshakeTimeout: DefaultHandshakeTimeout,
			ReadTimeout:      DefaultReadTimeout,
			WriteTimeout:     DefaultWriteTimeout,
			IdleTimeout:      DefaultIdleTimeout,
			ShutdownTimeout:  DefaultShutdownTimeout,
		},
		Limits: LimitsSection{
			MaxKeyLen:    DefaultMaxKeyLen,
			MaxValueSize: DefaultMaxValueSize,
			MaxFrameBulk: DefaultMaxFrameBulk,
		},
		RateLimit: RateLimitSection{
			Enabled:       true,
			Capacity:      DefaultRateCapacity,
			RefillRate:    DefaultRateRefill,
			IdleExpiry:    DefaultRateIdleExpiry,
			SweepInterval: DefaultRateSweepInterval,
		},
		Integrity: IntegritySection{
			Algorithm: DefaultAlgorithm,
		},
		Storage: StorageSection{
			Engine:  DefaultEngine,
			DataDir: DefaultDataDir,
			Badger: BadgerSection{
				GCInterval:  DefaultGCInterval,
				GCThreshold: DefaultGCThreshold,
			},
			Snapshot: SnapshotSection{
				Interval: DefaultSnapshotEvery,
				Keep:     DefaultSnapshotKeep,
				Cipher:   DefaultSnapshotCipher,
			},
		},
		Admin: AdminSection{
			Enabled: true,
			Addr:    DefaultAdminAddr,
		},
		Log: LogSection{
			Level:      DefaultLogLevel,
			Format:     DefaultLogFormat,
			MaxSizeMB:  DefaultLogMaxSizeMB,
			MaxBackups: DefaultLogMaxBackups,
		},
	}
}
