// Package config centralizes the environment-variable option set from
// spec.md §6. It follows the teacher's convention throughout
// services/orchestrator and libs/go/core: plain os.Getenv with defaults,
// no configuration framework.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is every tunable the process accepts, grouped by the component
// that consumes it.
type Config struct {
	// Persistence (spec.md §4.4, §6).
	StorageDir          string
	BackupRetentionDays int
	CompressionEnabled  bool
	EncryptionKey       []byte // nil disables encryption
	SyncIntervalMs      int
	MaxFileSize         int64
	EnableVersioning    bool
	LockStaleAfterMs    int
	RecoveryStaleAfterMs int

	// Scheduler (spec.md §4.3, §6).
	TickIntervalMs          int
	RebalanceIntervalMs     int
	AgentHeartbeatTimeoutMs int
	AbortGraceMs            int
}

// defaults matches spec.md §4.3/§4.4's stated defaults.
func defaults() Config {
	return Config{
		StorageDir:              "./data",
		BackupRetentionDays:     7,
		CompressionEnabled:      false,
		SyncIntervalMs:          5000,
		MaxFileSize:             100 << 20, // 100MB
		EnableVersioning:        true,
		LockStaleAfterMs:        60_000,
		RecoveryStaleAfterMs:    24 * 60 * 60 * 1000,
		TickIntervalMs:          100,
		RebalanceIntervalMs:     30_000,
		AgentHeartbeatTimeoutMs: 30_000,
		AbortGraceMs:            10_000,
	}
}

// Load reads every TASKQUEUE_* env var over the defaults and validates the
// result. A non-nil error here is the caller's cue to exit with code 2
// (config invalid, spec.md §6's exit-code table).
func Load() (Config, error) {
	cfg := defaults()

	cfg.StorageDir = getenv("TASKQUEUE_STORAGE_DIR", cfg.StorageDir)
	cfg.CompressionEnabled = getenvBool("TASKQUEUE_COMPRESSION_ENABLED", cfg.CompressionEnabled)
	cfg.EnableVersioning = getenvBool("TASKQUEUE_ENABLE_VERSIONING", cfg.EnableVersioning)
	if key := os.Getenv("TASKQUEUE_ENCRYPTION_KEY"); key != "" {
		cfg.EncryptionKey = []byte(key)
	}

	var err error
	if cfg.BackupRetentionDays, err = getenvInt("TASKQUEUE_BACKUP_RETENTION_DAYS", cfg.BackupRetentionDays); err != nil {
		return Config{}, err
	}
	if cfg.SyncIntervalMs, err = getenvInt("TASKQUEUE_SYNC_INTERVAL_MS", cfg.SyncIntervalMs); err != nil {
		return Config{}, err
	}
	if cfg.LockStaleAfterMs, err = getenvInt("TASKQUEUE_LOCK_STALE_AFTER_MS", cfg.LockStaleAfterMs); err != nil {
		return Config{}, err
	}
	if cfg.RecoveryStaleAfterMs, err = getenvInt("TASKQUEUE_RECOVERY_STALE_AFTER_MS", cfg.RecoveryStaleAfterMs); err != nil {
		return Config{}, err
	}
	if cfg.TickIntervalMs, err = getenvInt("TASKQUEUE_TICK_INTERVAL_MS", cfg.TickIntervalMs); err != nil {
		return Config{}, err
	}
	if cfg.RebalanceIntervalMs, err = getenvInt("TASKQUEUE_REBALANCE_INTERVAL_MS", cfg.RebalanceIntervalMs); err != nil {
		return Config{}, err
	}
	if cfg.AgentHeartbeatTimeoutMs, err = getenvInt("TASKQUEUE_AGENT_HEARTBEAT_TIMEOUT_MS", cfg.AgentHeartbeatTimeoutMs); err != nil {
		return Config{}, err
	}
	if cfg.AbortGraceMs, err = getenvInt("TASKQUEUE_ABORT_GRACE_MS", cfg.AbortGraceMs); err != nil {
		return Config{}, err
	}
	if v := os.Getenv("TASKQUEUE_MAX_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("config: TASKQUEUE_MAX_FILE_SIZE: %w", err)
		}
		cfg.MaxFileSize = n
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("config: storageDir must not be empty")
	}
	if c.BackupRetentionDays < 0 {
		return fmt.Errorf("config: backupRetentionDays must be >= 0, got %d", c.BackupRetentionDays)
	}
	if c.SyncIntervalMs <= 0 {
		return fmt.Errorf("config: syncIntervalMs must be > 0, got %d", c.SyncIntervalMs)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("config: maxFileSize must be > 0, got %d", c.MaxFileSize)
	}
	if c.TickIntervalMs <= 0 {
		return fmt.Errorf("config: tickIntervalMs must be > 0, got %d", c.TickIntervalMs)
	}
	if c.RebalanceIntervalMs <= 0 {
		return fmt.Errorf("config: rebalanceIntervalMs must be > 0, got %d", c.RebalanceIntervalMs)
	}
	if c.AgentHeartbeatTimeoutMs <= 0 {
		return fmt.Errorf("config: agentHeartbeatTimeoutMs must be > 0, got %d", c.AgentHeartbeatTimeoutMs)
	}
	if c.AbortGraceMs < 0 {
		return fmt.Errorf("config: abortGraceMs must be >= 0, got %d", c.AbortGraceMs)
	}
	if c.LockStaleAfterMs <= 0 {
		return fmt.Errorf("config: lockStaleAfterMs must be > 0, got %d", c.LockStaleAfterMs)
	}
	if c.RecoveryStaleAfterMs <= 0 {
		return fmt.Errorf("config: recoveryStaleAfterMs must be > 0, got %d", c.RecoveryStaleAfterMs)
	}
	if len(c.EncryptionKey) != 0 && len(c.EncryptionKey) != 32 {
		return fmt.Errorf("config: encryptionKey must be exactly 32 bytes for chacha20poly1305, got %d", len(c.EncryptionKey))
	}
	return nil
}

// Duration helpers convert the Ms fields used throughout this config into
// time.Duration for the scheduler/persistence constructors.
func (c Config) TickInterval() time.Duration      { return time.Duration(c.TickIntervalMs) * time.Millisecond }
func (c Config) RebalanceInterval() time.Duration { return time.Duration(c.RebalanceIntervalMs) * time.Millisecond }
func (c Config) AgentHeartbeatTimeout() time.Duration {
	return time.Duration(c.AgentHeartbeatTimeoutMs) * time.Millisecond
}
func (c Config) AbortGrace() time.Duration { return time.Duration(c.AbortGraceMs) * time.Millisecond }
func (c Config) SyncInterval() time.Duration {
	return time.Duration(c.SyncIntervalMs) * time.Millisecond
}
func (c Config) LockStaleAfter() time.Duration {
	return time.Duration(c.LockStaleAfterMs) * time.Millisecond
}
func (c Config) RecoveryStaleAfter() time.Duration {
	return time.Duration(c.RecoveryStaleAfterMs) * time.Millisecond
}
func (c Config) BackupRetention() int { return c.BackupRetentionDays }

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
