// Package idgen generates opaque unique identifiers for tasks, dependency
// edges, agents, assignments, and snapshots.
//
// The teacher (dag_engine.go generateWorkflowID) derives ids from
// fmt.Sprintf("%s-%d", name, time.Now().UnixNano()), which is not
// collision-free under concurrent submission. Since spec.md treats ids as
// opaque, this is replaced with google/uuid, promoted here from an
// indirect-only dependency in the teacher's go.mod to direct use.
package idgen

import "github.com/google/uuid"

// Kind labels what an id is for; used only as a human-readable prefix so
// log lines and snapshot dumps are self-describing, never parsed back.
type Kind string

const (
	KindTask       Kind = "task"
	KindEdge       Kind = "edge"
	KindAgent      Kind = "agent"
	KindAssignment Kind = "assign"
	KindSnapshot   Kind = "snap"
)

// Generator produces opaque ids. A struct (rather than a bare function) so
// it can be swapped for a deterministic stub in tests that assert on exact
// ids (e.g. scenario replays).
type Generator struct {
	next func() string
}

// New returns a Generator backed by github.com/google/uuid.
func New() *Generator {
	return &Generator{next: uuid.NewString}
}

// NewDeterministic returns a Generator that yields ids from a fixed sequence,
// for tests that need reproducible ids.
func NewDeterministic(ids ...string) *Generator {
	i := 0
	return &Generator{next: func() string {
		if i >= len(ids) {
			// Fall back to real uuids once the fixed sequence is exhausted,
			// rather than panicking mid-test.
			return uuid.NewString()
		}
		id := ids[i]
		i++
		return id
	}}
}

// Next returns a new opaque id prefixed with kind, e.g. "task-3f9c...".
func (g *Generator) Next(kind Kind) string {
	return string(kind) + "-" + g.next()
}
