package config

import "time"

// ServerConfig is the root configuration for vaultkv-server.
type ServerConfig struct {
	Server    ServerSection    `koanf:"server"`
	Limits    LimitsSection    `koanf:"limits"`
	RateLimit RateLimitSection `koanf:"ratelimit"`
	Integrity IntegritySection `koanf:"integrity"`
	Storage   StorageSection   `koanf:"storage"`
	Admin     AdminSection     `koanf:"admin"`
	Log       LogSection       `koanf:"log"`
}

// ServerSection configures the TLS listener and per-connection timeouts.
type ServerSection struct {
	Addr string     `koanf:"addr"`
	TLS  TLSSection `koanf:"tls"`

	// HandshakeTimeout bounds the TLS handshake of a new connection.
	HandshakeTimeout time.Duration `koanf:"handshake_timeout"`
	// ReadTimeout bounds reading one frame once its first byte arrived.
	ReadTimeout time.Duration `koanf:"read_timeout"`
	// WriteTimeout bounds writing one response.
	WriteTimeout time.Duration `koanf:"write_timeout"`
	// IdleTimeout closes a connection that sends nothing for this long.
	IdleTimeout time.Duration `koanf:"idle_timeout"`
	// ShutdownTimeout bounds the graceful drain on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// TLSSection names the server certificate.
type TLSSection struct {
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
	// Reload swaps in a new certificate when the files change on disk.
	Reload bool `koanf:"reload"`
}

// LimitsSection bounds request shapes.
type LimitsSection struct {
	MaxKeyLen    int `koanf:"max_key_len"`
	MaxValueSize int `koanf:"max_value_size"`
	// MaxFrameBulk bounds any single bulk string on the wire. A value over
	// MaxValueSize but within MaxFrameBulk is rejected as INVALID; over
	// MaxFrameBulk the connection is closed.
	MaxFrameBulk int `koanf:"max_frame_bulk"`
}

// RateLimitSection configures per-client token buckets.
type RateLimitSection struct {
	Enabled       bool          `koanf:"enabled"`
	Capacity      int           `koanf:"capacity"`
	RefillRate    float64       `koanf:"refill_rate"`
	IdleExpiry    time.Duration `koanf:"idle_expiry"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// IntegritySection selects the digest algorithm.
type IntegritySection struct {
	Algorithm string `koanf:"algorithm"`
}

// StorageSection configures persistence.
type StorageSection struct {
	// Engine is "memory" or "badger".
	Engine   string          `koanf:"engine"`
	DataDir  string          `koanf:"data_dir"`
	Badger   BadgerSection   `koanf:"badger"`
	Snapshot SnapshotSection `koanf:"snapshot"`
}

// BadgerSection configures the badger engine.
type BadgerSection struct {
	SyncWrites  bool          `koanf:"sync_writes"`
	GCInterval  time.Duration `koanf:"gc_interval"`
	GCThreshold float64       `koanf:"gc_threshold"`
}

// SnapshotSection configures periodic snapshots of the memory engine.
type SnapshotSection struct {
	Enabled  bool          `koanf:"enabled"`
	Dir      string        `koanf:"dir"`
	Interval time.Duration `koanf:"interval"`
	Keep     int           `koanf:"keep"`
	// Passphrase, when set, seals snapshot contents.
	Passphrase string `koanf:"passphrase"`
	// Cipher is "chacha20-poly1305" or "aes-256-gcm".
	Cipher string `koanf:"cipher"`
}

// AdminSection configures the local HTTP admin endpoint.
type AdminSection struct {
	Enabled bool   `koanf:"enabled"`
	Addr    string `koanf:"addr"`
}

// LogSection configures logging.
type LogSection struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"`
	File       string `koanf:"file"`
	MaxSizeMB  int    `koanf:"max_size_mb"`
	MaxBackups int    `koanf:"max_backups"`
}
