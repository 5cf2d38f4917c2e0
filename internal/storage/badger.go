package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrClosed is returned by operations on a closed engine.
var ErrClosed = errors.New("storage: engine closed")

var recordPrefix = []byte("kv/")

// BadgerConfig configures the badger engine.
type BadgerConfig struct {
	// Dir is the database directory. Required.
	Dir string
	// SyncWrites fsyncs every write before it is acknowledged.
	SyncWrites bool
	// GCInterval is the value log GC period (default: 5m).
	GCInterval time.Duration
	// GCThreshold is the discard ratio passed to RunValueLogGC (default: 0.5).
	GCThreshold float64
}

// BadgerEngine stores vault records in Badger v3.
type BadgerEngine struct {
	db     *badger.DB
	cfg    BadgerConfig
	logger *slog.Logger
	closed atomic.Bool

	lastGCTime atomic.Int64 // Unix milliseconds
	gcRuns     atomic.Uint64

	metricsLSMSize      prometheus.Gauge
	metricsValueLogSize prometheus.Gauge
	metricsLastGCTime   prometheus.Gauge
	metricsGCRewrites   prometheus.Counter

	stopCh chan struct{}
	doneCh chan struct{}
}

// OpenBadger opens (or creates) the database in cfg.Dir and starts the
// value log GC loop.
func OpenBadger(cfg BadgerConfig, logger *slog.Logger) (*BadgerEngine, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("badger: dir is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.GCInterval <= 0 {
		cfg.GCInterval = 5 * time.Minute
	}
	if cfg.GCThreshold <= 0 || cfg.GCThreshold >= 1 {
		cfg.GCThreshold = 0.5
	}

	opts := badger.DefaultOptions(cfg.Dir).
		WithSyncWrites(cfg.SyncWrites).
		WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open db: %w", err)
	}

	e := &BadgerEngine{
		db:     db,
		cfg:    cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}

	go e.gcLoop()

	logger.Info("badger engine started",
		"dir", cfg.Dir,
		"sync_writes", cfg.SyncWrites,
		"gc_interval", cfg.GCInterval)

	return e, nil
}

// Put stores rec, replacing any previous record for its key.
func (e *BadgerEngine) Put(_ context.Context, rec Record) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(recordKey(rec.Key), EncodeRecordValue(rec))
	})
}

// Delete removes the record for key. Deleting an absent key is not an error.
func (e *BadgerEngine) Delete(_ context.Context, key string) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(recordKey(key))
	})
}

// Load calls fn for every stored record. Records that cannot be decoded
// are logged and removed after the scan.
func (e *BadgerEngine) Load(ctx context.Context, fn func(rec Record) error) error {
	if e.closed.Load() {
		return ErrClosed
	}

	var corrupt [][]byte
	err := e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = recordPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			key := string(item.Key()[len(recordPrefix):])

			var rec Record
			err := item.Value(func(val []byte) error {
				var derr error
				rec, derr = DecodeRecordValue(key, val)
				return derr
			})
			if errors.Is(err, ErrCorruptRecord) {
				e.logger.Warn("dropping undecodable record", "key", key, "error", err)
				corrupt = append(corrupt, item.KeyCopy(nil))
				continue
			}
			if err != nil {
				return err
			}
			if err := fn(rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger: load: %w", err)
	}

	for _, k := range corrupt {
		if err := e.db.Update(func(txn *badger.Txn) error { return txn.Delete(k) }); err != nil {
			e.logger.Error("failed to remove undecodable record", "error", err)
		}
	}
	return nil
}

// GC runs value log GC until nothing is left to rewrite and returns the
// number of rewrites.
func (e *BadgerEngine) GC(ctx context.Context) (int, error) {
	start := time.Now()

	runs := 0
	for ctx.Err() == nil {
		err := e.db.RunValueLogGC(e.cfg.GCThreshold)
		if err != nil {
			if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
				break
			}
			return runs, fmt.Errorf("gc: %w", err)
		}
		runs++
	}

	e.lastGCTime.Store(time.Now().UnixMilli())
	e.gcRuns.Add(uint64(runs))
	if e.metricsGCRewrites != nil {
		e.metricsGCRewrites.Add(float64(runs))
	}

	e.logger.Debug("gc completed",
		"rewrites", runs,
		"elapsed", time.Since(start))

	return runs, nil
}

// Stats reports storage sizes.
type Stats struct {
	LSMSize      int64
	ValueLogSize int64
	LastGCTime   int64 // Unix milliseconds, 0 if never
	GCRewrites   uint64
}

// Stats returns storage statistics.
func (e *BadgerEngine) Stats() Stats {
	lsm, vlog := e.db.Size()
	return Stats{
		LSMSize:      lsm,
		ValueLogSize: vlog,
		LastGCTime:   e.lastGCTime.Load(),
		GCRewrites:   e.gcRuns.Load(),
	}
}

// Close stops the GC loop and closes the database.
func (e *BadgerEngine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}
	e.logger.Info("shutting down badger engine")

	close(e.stopCh)
	<-e.doneCh

	if err := e.db.Close(); err != nil {
		return fmt.Errorf("close db: %w", err)
	}
	return nil
}

// RegisterMetrics registers the size and GC metrics with reg. Gauges are
// refreshed by the GC loop.
func (e *BadgerEngine) RegisterMetrics(reg prometheus.Registerer) *BadgerEngine {
	e.metricsLSMSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vaultkv",
		Subsystem: "badger",
		Name:      "lsm_size_bytes",
		Help:      "Badger LSM tree size in bytes",
	})
	e.metricsValueLogSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vaultkv",
		Subsystem: "badger",
		Name:      "value_log_size_bytes",
		Help:      "Badger value log size in bytes",
	})
	e.metricsLastGCTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vaultkv",
		Subsystem: "badger",
		Name:      "last_gc_timestamp_seconds",
		Help:      "Unix timestamp of the last Badger GC run",
	})
	e.metricsGCRewrites = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vaultkv",
		Subsystem: "badger",
		Name:      "gc_rewrites_total",
		Help:      "Value log files rewritten by Badger garbage collection",
	})

	reg.MustRegister(
		e.metricsLSMSize,
		e.metricsValueLogSize,
		e.metricsLastGCTime,
		e.metricsGCRewrites,
	)
	e.updateGauges()
	return e
}

func (e *BadgerEngine) updateGauges() {
	if e.metricsLSMSize == nil {
		return
	}
	st := e.Stats()
	e.metricsLSMSize.Set(float64(st.LSMSize))
	e.metricsValueLogSize.Set(float64(st.ValueLogSize))
	if st.LastGCTime > 0 {
		e.metricsLastGCTime.Set(float64(st.LastGCTime) / 1000.0)
	}
}

// gcLoop runs periodic garbage collection and refreshes size gauges.
func (e *BadgerEngine) gcLoop() {
	defer close(e.doneCh)

	gcTicker := time.NewTicker(e.cfg.GCInterval)
	defer gcTicker.Stop()
	sizeTicker := time.NewTicker(15 * time.Second)
	defer sizeTicker.Stop()

	for {
		select {
		case <-gcTicker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			if _, err := e.GC(ctx); err != nil {
				e.logger.Error("auto gc failed", "error", err)
			}
			cancel()
			e.updateGauges()

		case <-sizeTicker.C:
			e.updateGauges()

		case <-e.stopCh:
			return
		}
	}
}

func recordKey(key string) []byte {
	k := make([]byte, 0, len(recordPrefix)+len(key))
	k = append(k, recordPrefix...)
	return append(k, key...)
}

// badgerLogger adapts slog.Logger to Badger's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

// Badger is chatty at info level; its info lines go to debug.
func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
