package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"go.etcd.io/bbolt"

	"github.com/swarmguard/taskqueue/internal/model"
)

// bucketEvents mirrors the teacher's single-purpose-bucket-per-data-kind
// layout (services/orchestrator/persistence.go's bucketWorkflows etc.).
var bucketEvents = []byte("events")

// BoltJournal durably appends every event to a BoltDB file, keyed by the
// bucket's own sequence number (zero-padded to 20 digits) so iteration
// order is insertion order. It is the teacher's WorkflowStore repurposed from
// storing whole workflow definitions to append-only event logging —
// PersistenceEngine's snapshot contract (§4.4) is a different, file-based
// shape and is implemented separately in internal/persistence.
type BoltJournal struct {
	db *bbolt.DB
}

// OpenBoltJournal opens (creating if absent) a BoltDB file at path.
func OpenBoltJournal(path string) (*BoltJournal, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open event journal: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketEvents)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create event bucket: %w", err)
	}
	return &BoltJournal{db: db}, nil
}

// Append persists ev under a strictly increasing key so later readers can
// replay events in publish order.
func (j *BoltJournal) Append(ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return j.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		key := fmt.Sprintf("%020d", seq)
		return bucket.Put([]byte(key), data)
	})
}

// Replay reads back every journaled event in insertion order, calling fn
// for each. The process does not call it at startup, so MetricsCollector's
// rolling windows start empty after a restart.
func (j *BoltJournal) Replay(fn func(model.Event) error) error {
	return j.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bucketEvents)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(_, v []byte) error {
			var ev model.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			return fn(ev)
		})
	})
}

// Close closes the underlying BoltDB file.
func (j *BoltJournal) Close() error {
	return j.db.Close()
}
