package snapshot

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yndnr/vaultkv-go/internal/storage"
	"github.com/yndnr/vaultkv-go/pkg/integrity"
)

var magicBytes = []byte("VKVSNAP1")

const (
	filePrefix    = "snapshot-"
	fileExtension = ".snap"
	checksumSize  = 32
	headerVersion = 1

	// DefaultKeep is the number of snapshot files retained by Prune.
	DefaultKeep = 3
)

var (
	ErrInvalidMagic       = errors.New("snapshot: invalid magic bytes")
	ErrChecksumMismatch   = errors.New("snapshot: checksum mismatch")
	ErrCorrupt            = errors.New("snapshot: corrupt contents")
	ErrNoSnapshots        = errors.New("snapshot: no snapshots available")
	ErrAlgorithmMismatch  = errors.New("snapshot: digest algorithm differs from configuration")
	errUnsupportedVersion = errors.New("snapshot: unsupported header version")
)

type snapshotHeader struct {
	Version     int    `json:"version"`
	CreatedAt   int64  `json:"created_at"`
	RecordCount uint64 `json:"record_count"`
	Algorithm   string `json:"algorithm"`
	Sealed      bool   `json:"sealed"`
	Cipher      string `json:"cipher,omitempty"`
	Salt        []byte `json:"salt,omitempty"`
}

type snapshotRecord struct {
	Key    string `json:"key"`
	Value  []byte `json:"value"`
	Digest string `json:"digest"`
}

// Config configures the snapshot manager.
type Config struct {
	Dir string
	// Keep is the number of newest files Prune retains (default: 3).
	Keep int
	// Passphrase, when set, seals the record block.
	Passphrase []byte
	// Cipher is CipherChaCha20 (default) or CipherAESGCM.
	Cipher string
	// Algorithm is the digest algorithm of the records. Load refuses
	// snapshots written with another one.
	Algorithm integrity.Algorithm
	Logger    *slog.Logger
}

// Manager creates, loads and prunes snapshot files in one directory.
type Manager struct {
	cfg    Config
	sealer *sealer
	logger *slog.Logger
}

// NewManager creates the directory if needed. With a passphrase the
// Argon2id key for new files is derived here, once.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("snapshot: dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("snapshot: create dir: %w", err)
	}
	if cfg.Keep <= 0 {
		cfg.Keep = DefaultKeep
	}
	if cfg.Algorithm == "" {
		cfg.Algorithm = integrity.SHA256
	}

	m := &Manager{cfg: cfg, logger: cfg.Logger}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if len(cfg.Passphrase) > 0 {
		s, err := newSealer(cfg.Passphrase, cfg.Cipher)
		if err != nil {
			return nil, err
		}
		m.sealer = s
	}
	return m, nil
}

// Info describes a snapshot file.
type Info struct {
	ID          string `json:"id"`
	RecordCount int64  `json:"record_count"`
	CreatedAt   int64  `json:"created_at"`
	Size        int64  `json:"size"`
	Path        string `json:"path"`
	Checksum    string `json:"checksum"`
	Sealed      bool   `json:"sealed"`
}

// Create writes records to a new snapshot file. The file appears under
// its final name only once it is complete and synced.
func (m *Manager) Create(records []storage.Record) (*Info, error) {
	now := time.Now()
	id := m.generateID(now)

	hdr := snapshotHeader{
		Version:     headerVersion,
		CreatedAt:   now.UnixMilli(),
		RecordCount: uint64(len(records)),
		Algorithm:   string(m.cfg.Algorithm),
		Sealed:      m.sealer != nil,
	}
	if m.sealer != nil {
		hdr.Cipher = m.sealer.cipherName
		hdr.Salt = m.sealer.salt
	}
	hdrJSON, err := json.Marshal(hdr)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal header: %w", err)
	}

	encoded := make([]snapshotRecord, 0, len(records))
	for _, r := range records {
		encoded = append(encoded, snapshotRecord{
			Key:    r.Key,
			Value:  r.Value,
			Digest: r.Digest.String(),
		})
	}
	data, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("snapshot: marshal records: %w", err)
	}
	if m.sealer != nil {
		data, err = m.sealer.seal(data, hdrJSON)
		if err != nil {
			return nil, fmt.Errorf("snapshot: seal: %w", err)
		}
	}

	tempPath := filepath.Join(m.cfg.Dir, id+".tmp")
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("snapshot: create temp file: %w", err)
	}
	defer os.Remove(tempPath)

	sum, err := writeFile(file, hdrJSON, data)
	if err != nil {
		file.Close()
		return nil, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("snapshot: sync: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("snapshot: close: %w", err)
	}

	stat, err := os.Stat(tempPath)
	if err != nil {
		return nil, err
	}

	finalPath := filepath.Join(m.cfg.Dir, id+fileExtension)
	if err := os.Rename(tempPath, finalPath); err != nil {
		return nil, fmt.Errorf("snapshot: rename: %w", err)
	}

	return &Info{
		ID:          id,
		RecordCount: int64(len(records)),
		CreatedAt:   hdr.CreatedAt,
		Size:        stat.Size(),
		Path:        finalPath,
		Checksum:    hex.EncodeToString(sum),
		Sealed:      hdr.Sealed,
	}, nil
}

func writeFile(w io.Writer, hdrJSON, data []byte) ([]byte, error) {
	hash := sha256.New()
	mw := io.MultiWriter(w, hash)

	var lenBuf [4]byte
	if _, err := mw.Write(magicBytes); err != nil {
		return nil, fmt.Errorf("snapshot: write magic: %w", err)
	}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(hdrJSON)))
	if _, err := mw.Write(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("snapshot: write header length: %w", err)
	}
	if _, err := mw.Write(hdrJSON); err != nil {
		return nil, fmt.Errorf("snapshot: write header: %w", err)
	}
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	if _, err := mw.Write(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("snapshot: write data length: %w", err)
	}
	if _, err := mw.Write(data); err != nil {
		return nil, fmt.Errorf("snapshot: write data: %w", err)
	}

	// The trailer is not part of the hash.
	sum := hash.Sum(nil)
	if _, err := w.Write(sum); err != nil {
		return nil, fmt.Errorf("snapshot: write checksum: %w", err)
	}
	return sum, nil
}

// Load returns the records of the newest valid snapshot. Files with a bad
// checksum or unreadable contents are skipped in favour of older ones.
// A sealed snapshot that does not decrypt is an error, not a fallback.
func (m *Manager) Load() ([]storage.Record, *Info, error) {
	snapshots, err := m.List()
	if err != nil {
		return nil, nil, err
	}
	if len(snapshots) == 0 {
		return nil, nil, ErrNoSnapshots
	}

	for i := len(snapshots) - 1; i >= 0; i-- {
		records, info, err := m.loadFile(snapshots[i].Path)
		if err == nil {
			return records, info, nil
		}
		if errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrInvalidMagic) || errors.Is(err, ErrCorrupt) {
			m.logger.Warn("skipping invalid snapshot",
				"path", snapshots[i].Path,
				"error", err)
			continue
		}
		return nil, nil, err
	}

	return nil, nil, ErrNoSnapshots
}

func (m *Manager) loadFile(path string) ([]storage.Record, *Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	if stat.Size() < int64(len(magicBytes))+8+checksumSize {
		return nil, nil, ErrChecksumMismatch
	}

	bodyLen := stat.Size() - checksumSize
	expected := make([]byte, checksumSize)
	if _, err := io.ReadFull(io.NewSectionReader(f, bodyLen, checksumSize), expected); err != nil {
		return nil, nil, err
	}
	h := sha256.New()
	if _, err := io.CopyN(h, io.NewSectionReader(f, 0, bodyLen), bodyLen); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(h.Sum(nil), expected) {
		return nil, nil, ErrChecksumMismatch
	}

	br := bufio.NewReader(io.NewSectionReader(f, 0, bodyLen))

	magic := make([]byte, len(magicBytes))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, nil, err
	}
	if !bytes.Equal(magic, magicBytes) {
		return nil, nil, ErrInvalidMagic
	}

	hdrJSON, err := readBlock(br, bodyLen)
	if err != nil {
		return nil, nil, err
	}
	var hdr snapshotHeader
	if err := json.Unmarshal(hdrJSON, &hdr); err != nil {
		return nil, nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if hdr.Version != headerVersion {
		return nil, nil, fmt.Errorf("%w: %d", errUnsupportedVersion, hdr.Version)
	}
	if hdr.Algorithm != string(m.cfg.Algorithm) {
		return nil, nil, fmt.Errorf("%w: file %q, configured %q", ErrAlgorithmMismatch, hdr.Algorithm, m.cfg.Algorithm)
	}

	data, err := readBlock(br, bodyLen)
	if err != nil {
		return nil, nil, err
	}
	if hdr.Sealed {
		if m.sealer == nil {
			return nil, nil, ErrPassphraseNeeded
		}
		data, err = m.sealer.open(hdr.Cipher, hdr.Salt, data, hdrJSON)
		if err != nil {
			return nil, nil, err
		}
	}

	var decoded []snapshotRecord
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, nil, fmt.Errorf("%w: records: %v", ErrCorrupt, err)
	}
	records := make([]storage.Record, 0, len(decoded))
	for _, r := range decoded {
		d, err := integrity.ParseDigest(r.Digest)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: record %q: %v", ErrCorrupt, r.Key, err)
		}
		records = append(records, storage.Record{Key: r.Key, Value: r.Value, Digest: d})
	}

	info := &Info{
		ID:          strings.TrimSuffix(filepath.Base(path), fileExtension),
		RecordCount: int64(hdr.RecordCount),
		CreatedAt:   hdr.CreatedAt,
		Size:        stat.Size(),
		Path:        path,
		Checksum:    hex.EncodeToString(expected),
		Sealed:      hdr.Sealed,
	}
	return records, info, nil
}

// readBlock reads a length-prefixed block no longer than limit.
func readBlock(r io.Reader, limit int64) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if int64(n) > limit {
		return nil, fmt.Errorf("%w: block length %d", ErrCorrupt, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	return buf, nil
}

// List lists snapshot files oldest first (metadata only).
func (m *Manager) List() ([]*Info, error) {
	entries, err := os.ReadDir(m.cfg.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, fileExtension) {
			paths = append(paths, filepath.Join(m.cfg.Dir, name))
		}
	}
	sort.Strings(paths)

	var infos []*Info
	for _, p := range paths {
		stat, err := os.Stat(p)
		if err != nil {
			continue
		}
		infos = append(infos, &Info{
			ID:   strings.TrimSuffix(filepath.Base(p), fileExtension),
			Path: p,
			Size: stat.Size(),
		})
	}
	return infos, nil
}

// Prune deletes all but the newest Keep snapshots.
func (m *Manager) Prune() (int, error) {
	infos, err := m.List()
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := 0; i < len(infos)-m.cfg.Keep; i++ {
		if err := os.Remove(infos[i].Path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("snapshot: prune %s: %w", infos[i].Path, err)
		}
		removed++
	}
	return removed, nil
}

// Run snapshots the output of source every interval, and once more when
// ctx is cancelled, pruning after each write.
func (m *Manager) Run(ctx context.Context, interval time.Duration, source func() []storage.Record) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.snapshot(source)
		case <-ctx.Done():
			m.snapshot(source)
			return
		}
	}
}

func (m *Manager) snapshot(source func() []storage.Record) {
	start := time.Now()
	info, err := m.Create(source())
	if err != nil {
		m.logger.Error("snapshot failed", "error", err)
		return
	}
	if _, err := m.Prune(); err != nil {
		m.logger.Warn("snapshot prune failed", "error", err)
	}
	m.logger.Info("snapshot written",
		"id", info.ID,
		"records", info.RecordCount,
		"bytes", info.Size,
		"elapsed", time.Since(start))
}

func (m *Manager) generateID(t time.Time) string {
	ts := t.Format("20060102150405")
	seq := 1

	entries, _ := os.ReadDir(m.cfg.Dir)
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, filePrefix+ts+"-") && strings.HasSuffix(name, fileExtension) {
			seq++
		}
	}

	return fmt.Sprintf("%s%s-%04d", filePrefix, ts, seq)
}
