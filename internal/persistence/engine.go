package persistence

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/swarmguard/taskqueue/internal/clock"
)

const (
	primaryFileName   = "queue-state.json"
	secondaryFileName = "queue-state-backup.json"
	lockFileName      = "queue.lock"
	metadataFileName  = "persistence-metadata.json"
	backupsDirName    = "backups"
	tempDirName       = "temp"
)

// Config is PersistenceEngine's construction parameters, matching the
// storage-related fields of spec.md §6.
type Config struct {
	StorageDir          string
	LockStaleAfter       time.Duration
	RecoveryStaleAfter   time.Duration // default 24h
	RetentionDays        int           // default 7
	EnableVersioning     bool
	Codec                Codec
}

// Engine is PersistenceEngine.
type Engine struct {
	cfg   Config
	clock clock.Clock
}

// New creates an Engine rooted at cfg.StorageDir, creating the storage,
// backups, and temp subdirectories if absent.
func New(cfg Config, c clock.Clock) (*Engine, error) {
	if cfg.RecoveryStaleAfter == 0 {
		cfg.RecoveryStaleAfter = 24 * time.Hour
	}
	if cfg.RetentionDays == 0 {
		cfg.RetentionDays = 7
	}
	for _, dir := range []string{cfg.StorageDir, filepath.Join(cfg.StorageDir, backupsDirName), filepath.Join(cfg.StorageDir, tempDirName)} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("persistence: create %s: %w", dir, err)
		}
	}
	return &Engine{cfg: cfg, clock: c}, nil
}

func (e *Engine) path(name string) string { return filepath.Join(e.cfg.StorageDir, name) }

// PrimaryPath returns the path Save's atomic rename targets, for callers
// that need to report where a snapshot landed.
func (e *Engine) PrimaryPath() string { return e.path(primaryFileName) }

// LoadFile decodes and validates the snapshot at an arbitrary path (not
// necessarily one of the engine's own candidates), for an explicit
// Restore-from-path request. It does not acquire the write lock — callers
// must not race it against a concurrent Save.
func (e *Engine) LoadFile(path string) (Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read %s: %w", path, err)
	}
	var snap Snapshot
	if err := e.cfg.Codec.Decode(data, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := snap.Validate(); err != nil {
		return Snapshot{}, fmt.Errorf("validate %s: %w", path, err)
	}
	return snap, nil
}

var (
	ErrLockHeld = errors.New("persistence: lock held by another writer")
)

// acquireLock creates queue.lock exclusively, containing pid and
// timestamp. If the existing lock is older than LockStaleAfter, it is
// broken (deleted) and acquisition retried once.
func (e *Engine) acquireLock() error {
	lockPath := e.path(lockFileName)
	content := fmt.Sprintf("%d %s", os.Getpid(), e.clock.Now().Format(time.RFC3339Nano))

	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err == nil {
		defer f.Close()
		_, werr := f.WriteString(content)
		return werr
	}
	if !os.IsExist(err) {
		return fmt.Errorf("acquire lock: %w", err)
	}

	info, statErr := os.Stat(lockPath)
	if statErr != nil {
		return fmt.Errorf("stat stale lock: %w", statErr)
	}
	if e.clock.Now().Sub(info.ModTime()) < e.cfg.LockStaleAfter {
		return ErrLockHeld
	}
	if err := os.Remove(lockPath); err != nil {
		return fmt.Errorf("break stale lock: %w", err)
	}
	f, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("acquire lock after breaking stale: %w", err)
	}
	defer f.Close()
	_, werr := f.WriteString(content)
	return werr
}

func (e *Engine) releaseLock() error {
	err := os.Remove(e.path(lockFileName))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Save runs the full atomic write protocol (spec.md §4.4):
// lock -> encode -> write temp + fsync -> read back + validate ->
// rename -> optional backup copy -> metadata -> unlock.
func (e *Engine) Save(snap Snapshot) error {
	if err := e.acquireLock(); err != nil {
		return err
	}
	defer e.releaseLock()

	snap.SchemaVersion = SchemaVersion
	snap.Timestamp = e.clock.Now()

	data, err := e.cfg.Codec.Encode(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tempPath := filepath.Join(e.cfg.StorageDir, tempDirName, fmt.Sprintf("state-%d.tmp", e.clock.Now().UnixNano()))
	if err := writeAndFsync(tempPath, data); err != nil {
		return fmt.Errorf("write temp: %w", err)
	}
	defer os.Remove(tempPath) // the rename below removes it on success; this is a no-op then

	readBack, err := os.ReadFile(tempPath)
	if err != nil {
		return fmt.Errorf("reread temp: %w", err)
	}
	var reloaded Snapshot
	if err := e.cfg.Codec.Decode(readBack, &reloaded); err != nil {
		return fmt.Errorf("validate temp (decode): %w", err)
	}
	if err := reloaded.Validate(); err != nil {
		return fmt.Errorf("validate temp (integrity): %w", err)
	}

	primaryPath := e.path(primaryFileName)
	secondaryPath := e.path(secondaryFileName)
	if _, err := os.Stat(primaryPath); err == nil {
		// Rotate the current primary into the secondary tier before it's
		// overwritten, so Recover always has a one-generation-back fallback
		// even when versioning is disabled or the backups dir is empty.
		if err := copyFile(primaryPath, secondaryPath); err != nil {
			fmt.Fprintf(os.Stderr, "persistence: secondary rotation failed (primary snapshot still valid): %v\n", err)
		}
	}

	if err := os.Rename(tempPath, primaryPath); err != nil {
		return fmt.Errorf("rename to primary: %w", err)
	}

	if e.cfg.EnableVersioning {
		backupPath := filepath.Join(e.cfg.StorageDir, backupsDirName, fmt.Sprintf("queue-state-%s.json", e.clock.Now().UTC().Format("20060102T150405.000Z")))
		if err := copyFile(primaryPath, backupPath); err != nil {
			// Non-fatal: a valid primary snapshot exists regardless (spec.md §4.4).
			fmt.Fprintf(os.Stderr, "persistence: backup copy failed (primary snapshot still valid): %v\n", err)
		} else {
			e.pruneBackups()
		}
	}

	checksum := sha256.Sum256(data)
	meta := metadata{
		SizeBytes: int64(len(data)),
		Checksum:  hex.EncodeToString(checksum[:]),
		Timestamp: snap.Timestamp,
	}
	if err := writeMetadata(e.path(metadataFileName), meta); err != nil {
		fmt.Fprintf(os.Stderr, "persistence: metadata write failed (primary snapshot still valid): %v\n", err)
	}

	return nil
}

type metadata struct {
	SizeBytes int64     `json:"sizeBytes"`
	Checksum  string     `json:"checksum"`
	Timestamp time.Time `json:"timestamp"`
}

func writeAndFsync(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return writeAndFsync(dst, data)
}

func writeMetadata(path string, m metadata) error {
	data := fmt.Sprintf(`{"sizeBytes":%d,"checksum":%q,"timestamp":%q}`, m.SizeBytes, m.Checksum, m.Timestamp.UTC().Format(time.RFC3339Nano))
	return writeAndFsync(path, []byte(data))
}

// pruneBackups deletes backups older than RetentionDays, always keeping
// at least one even if all are expired (spec.md §4.4).
func (e *Engine) pruneBackups() {
	dir := filepath.Join(e.cfg.StorageDir, backupsDirName)
	entries, err := os.ReadDir(dir)
	if err != nil || len(entries) <= 1 {
		return
	}
	type fi struct {
		path    string
		modTime time.Time
	}
	var files []fi
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fi{path: filepath.Join(dir, entry.Name()), modTime: info.ModTime()})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })

	cutoff := e.clock.Now().Add(-time.Duration(e.cfg.RetentionDays) * 24 * time.Hour)
	for i, f := range files {
		if i == 0 {
			continue // always keep the newest
		}
		if f.modTime.Before(cutoff) {
			os.Remove(f.path)
		}
	}
}

// RecoveryResult reports which candidate succeeded and whether it was
// stale (spec.md §4.4 step 6).
type RecoveryResult struct {
	Snapshot Snapshot
	Source   string
	Empty    bool
	Stale    bool
}

// Recover runs the ordered fallback chain: primary, secondary, then
// versioned backups newest-first by mtime. The first candidate that
// decodes and validates wins; all others are logged and skipped.
func (e *Engine) Recover() (RecoveryResult, error) {
	candidates := e.recoveryCandidates()
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var snap Snapshot
		if err := e.cfg.Codec.Decode(data, &snap); err != nil {
			fmt.Fprintf(os.Stderr, "persistence: candidate %s failed to decode: %v\n", path, err)
			continue
		}
		if err := snap.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "persistence: candidate %s failed validation: %v\n", path, err)
			continue
		}
		stale := e.clock.Now().Sub(snap.Timestamp) > e.cfg.RecoveryStaleAfter
		return RecoveryResult{Snapshot: snap, Source: path, Stale: stale}, nil
	}
	return RecoveryResult{Empty: true}, nil
}

func (e *Engine) recoveryCandidates() []string {
	var candidates []string
	if _, err := os.Stat(e.path(primaryFileName)); err == nil {
		candidates = append(candidates, e.path(primaryFileName))
	}
	if _, err := os.Stat(e.path(secondaryFileName)); err == nil {
		candidates = append(candidates, e.path(secondaryFileName))
	}

	dir := filepath.Join(e.cfg.StorageDir, backupsDirName)
	entries, err := os.ReadDir(dir)
	if err == nil {
		type fi struct {
			path    string
			modTime time.Time
		}
		var files []fi
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			info, err := entry.Info()
			if err != nil {
				continue
			}
			files = append(files, fi{path: filepath.Join(dir, entry.Name()), modTime: info.ModTime()})
		}
		sort.Slice(files, func(i, j int) bool { return files[i].modTime.After(files[j].modTime) })
		for _, f := range files {
			candidates = append(candidates, f.path)
		}
	}
	return candidates
}

// HealthCheck reports the health-check surface spec.md §4.4 names.
type HealthCheck struct {
	StorageWritable bool
	PrimaryValid    bool
	BackupCount     int
	LastSyncAge     time.Duration
	DiskUsageBytes  int64
}

// Health inspects storage writability, primary snapshot validity, backup
// count, and last-sync age. It leaves snapshot and backup files untouched;
// the writability check writes and then removes a .health-probe file.
func (e *Engine) Health() HealthCheck {
	hc := HealthCheck{}

	probe := filepath.Join(e.cfg.StorageDir, ".health-probe")
	if err := writeAndFsync(probe, []byte(strconv.FormatInt(e.clock.Now().UnixNano(), 10))); err == nil {
		hc.StorageWritable = true
		os.Remove(probe)
	}

	if data, err := os.ReadFile(e.path(primaryFileName)); err == nil {
		var snap Snapshot
		if decErr := e.cfg.Codec.Decode(data, &snap); decErr == nil && snap.Validate() == nil {
			hc.PrimaryValid = true
			hc.LastSyncAge = e.clock.Now().Sub(snap.Timestamp)
		}
		hc.DiskUsageBytes += int64(len(data))
	}

	if entries, err := os.ReadDir(filepath.Join(e.cfg.StorageDir, backupsDirName)); err == nil {
		for _, entry := range entries {
			if !entry.IsDir() {
				hc.BackupCount++
				if info, err := entry.Info(); err == nil {
					hc.DiskUsageBytes += info.Size()
				}
			}
		}
	}

	return hc
}
