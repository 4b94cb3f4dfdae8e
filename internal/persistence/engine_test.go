package persistence

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/swarmguard/taskqueue/internal/clock"
	"github.com/swarmguard/taskqueue/internal/model"
)

func testSnapshot() Snapshot {
	return Snapshot{
		SessionID: "sess-1",
		Tasks: []model.Task{
			{ID: "t1", Title: "a", Status: model.StatusPending, CreatedAt: time.Unix(0, 0)},
		},
	}
}

func TestEngineSaveAndRecoverRoundTrip(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewManual(time.Unix(1_700_000_000, 0))
	eng, err := New(Config{StorageDir: dir, LockStaleAfter: time.Minute}, mc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Save(testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	res, err := eng.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if res.Empty {
		t.Fatal("expected recovered snapshot, got empty")
	}
	if res.Source != filepath.Join(dir, primaryFileName) {
		t.Fatalf("expected recovery from primary, got %s", res.Source)
	}
	if len(res.Snapshot.Tasks) != 1 || res.Snapshot.Tasks[0].ID != "t1" {
		t.Fatalf("unexpected recovered tasks: %+v", res.Snapshot.Tasks)
	}
}

func TestEngineSaveWithCompressionAndEncryption(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewManual(time.Unix(1_700_000_000, 0))
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	eng, err := New(Config{
		StorageDir: dir,
		Codec:      Codec{CompressionEnabled: true, EncryptionKey: key},
	}, mc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Save(testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	res, err := eng.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if res.Empty || len(res.Snapshot.Tasks) != 1 {
		t.Fatalf("unexpected recovery result: %+v", res)
	}
}

func TestEngineRecoverEmptyWhenNoFiles(t *testing.T) {
	dir := t.TempDir()
	eng, err := New(Config{StorageDir: dir}, clock.NewManual(time.Unix(0, 0)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := eng.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !res.Empty {
		t.Fatal("expected empty recovery result")
	}
}

func TestEngineRecoverFallsBackToBackupWhenPrimaryCorrupt(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewManual(time.Unix(1_700_000_000, 0))
	eng, err := New(Config{StorageDir: dir, EnableVersioning: true}, mc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Save(testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mc.Advance(time.Second)
	snap2 := testSnapshot()
	snap2.Tasks[0].ID = "t2"
	if err := eng.Save(snap2); err != nil {
		t.Fatalf("Save 2: %v", err)
	}

	if err := os.WriteFile(eng.path(primaryFileName), []byte("not json"), 0o644); err != nil {
		t.Fatalf("corrupt primary: %v", err)
	}

	res, err := eng.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if res.Empty {
		t.Fatal("expected fallback to a backup, got empty")
	}
	if res.Source == eng.path(primaryFileName) {
		t.Fatal("expected recovery to skip the corrupt primary")
	}
}

func TestEngineRecoverMarksStaleSnapshot(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewManual(time.Unix(1_700_000_000, 0))
	eng, err := New(Config{StorageDir: dir, RecoveryStaleAfter: time.Hour}, mc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Save(testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	mc.Advance(2 * time.Hour)

	res, err := eng.Recover()
	if err != nil {
		t.Fatalf("Recover: %v", err)
	}
	if !res.Stale {
		t.Fatal("expected snapshot to be marked stale")
	}
}

func TestEngineLockRejectsConcurrentWriterUntilStale(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewManual(time.Unix(1_700_000_000, 0))
	eng, err := New(Config{StorageDir: dir, LockStaleAfter: time.Minute}, mc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := os.WriteFile(eng.path(lockFileName), []byte("99999 stale"), 0o644); err != nil {
		t.Fatalf("seed lock: %v", err)
	}
	// Lock age is measured against the engine's clock, so date the file on it.
	if err := os.Chtimes(eng.path(lockFileName), mc.Now(), mc.Now()); err != nil {
		t.Fatalf("date lock: %v", err)
	}

	if err := eng.acquireLock(); err != ErrLockHeld {
		t.Fatalf("expected ErrLockHeld for fresh foreign lock, got %v", err)
	}

	mc.Advance(2 * time.Minute)
	if err := eng.acquireLock(); err != nil {
		t.Fatalf("expected stale lock to be broken, got %v", err)
	}
	eng.releaseLock()
}

func TestEngineHealthReportsPrimaryValidityAndBackupCount(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewManual(time.Unix(1_700_000_000, 0))
	eng, err := New(Config{StorageDir: dir, EnableVersioning: true}, mc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	hc := eng.Health()
	if !hc.StorageWritable {
		t.Fatal("expected storage to be writable")
	}
	if hc.PrimaryValid {
		t.Fatal("expected no primary before first save")
	}

	if err := eng.Save(testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}
	hc = eng.Health()
	if !hc.PrimaryValid {
		t.Fatal("expected primary valid after save")
	}
	if hc.BackupCount != 1 {
		t.Fatalf("expected 1 backup, got %d", hc.BackupCount)
	}
}

func TestEngineBackupRetentionKeepsAtLeastOne(t *testing.T) {
	dir := t.TempDir()
	mc := clock.NewManual(time.Unix(1_700_000_000, 0))
	eng, err := New(Config{StorageDir: dir, EnableVersioning: true, RetentionDays: 1}, mc)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := eng.Save(testSnapshot()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	mc.Advance(48 * time.Hour)
	if err := eng.Save(testSnapshot()); err != nil {
		t.Fatalf("Save 2: %v", err)
	}

	entries, err := os.ReadDir(filepath.Join(dir, backupsDirName))
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) < 1 {
		t.Fatal("expected retention to keep at least one backup")
	}
}
