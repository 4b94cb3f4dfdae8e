// Package persistence implements PersistenceEngine: atomic snapshot
// writes, an ordered recovery fallback chain, structural integrity
// validation, and backup retention (spec.md §4.4). A sha256 checksum of
// each written snapshot goes to the metadata file; recovery does not
// check it.
//
// Grounded on services/orchestrator/persistence.go's WorkflowStore for the
// general shape of a durability layer in this codebase (versioning on
// write, cache warm-up on open), generalized from a BoltDB key-value store
// into the spec's required flat-file snapshot-with-backups layout — the
// two aren't the same storage shape, so this package owns the file
// protocol itself rather than delegating to WorkflowStore (see DESIGN.md).
package persistence

import (
	"time"

	"github.com/swarmguard/taskqueue/internal/model"
)

// SchemaVersion is the current on-disk snapshot format version.
const SchemaVersion = 1

// Snapshot is the single versioned record PersistenceEngine writes and
// reads: schema version, wall-clock timestamp, session id, and fully
// enumerated tables, each as an ordered slice so round-trips are
// deterministic (I7).
type Snapshot struct {
	SchemaVersion int                     `json:"schemaVersion"`
	Timestamp     time.Time               `json:"timestamp"`
	SessionID     string                  `json:"sessionId"`
	Tasks         []model.Task            `json:"tasks"`
	Edges         []model.DependencyEdge  `json:"edges"`
	Agents        []model.Agent           `json:"agents"`
	Assignments   []model.Assignment      `json:"assignments"`
}

// Validate performs the structural + cross-reference integrity check the
// write and recovery protocols both require: every assignment's TaskID
// must reference a task in the snapshot, and every edge's endpoints must
// reference tasks in the snapshot (I1).
func (s *Snapshot) Validate() error {
	taskIDs := make(map[string]struct{}, len(s.Tasks))
	for _, t := range s.Tasks {
		taskIDs[t.ID] = struct{}{}
	}
	for _, a := range s.Assignments {
		if _, ok := taskIDs[a.TaskID]; !ok {
			return &IntegrityError{Reason: "assignment references unknown task", ID: a.TaskID}
		}
	}
	for _, e := range s.Edges {
		if _, ok := taskIDs[e.From]; !ok {
			return &IntegrityError{Reason: "edge references unknown task", ID: e.From}
		}
		if _, ok := taskIDs[e.To]; !ok {
			return &IntegrityError{Reason: "edge references unknown task", ID: e.To}
		}
	}
	return nil
}

// IntegrityError reports a structural validation failure.
type IntegrityError struct {
	Reason string
	ID     string
}

func (e *IntegrityError) Error() string {
	return "persistence: integrity check failed: " + e.Reason + " (" + e.ID + ")"
}
