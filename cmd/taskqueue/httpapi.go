package main

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/swarmguard/taskqueue/internal/metrics"
	"github.com/swarmguard/taskqueue/internal/model"
	"github.com/swarmguard/taskqueue/internal/scheduler"
)

// newServer builds the Control API's HTTP façade. This is the CLI/RPC
// front end spec.md §1 calls out of scope for polish; it exists only to
// exercise the Control API over the wire, mirroring the teacher's plain
// net/http.ServeMux + json.Decoder/Encoder style (no router framework).
func newServer(sched *scheduler.Scheduler, collector *metrics.Collector) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/v1/tasks", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var t model.Task
		if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		id, err := sched.SubmitTask(r.Context(), t, time.Time{})
		if err != nil {
			writeSchedulerError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id})
	})

	mux.HandleFunc("/v1/tasks/", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Path[len("/v1/tasks/"):]
		if id == "" {
			http.NotFound(w, r)
			return
		}
		switch r.Method {
		case http.MethodGet:
			info, err := sched.TaskInfoOp(r.Context(), id)
			if err != nil {
				writeSchedulerError(w, err)
				return
			}
			_ = json.NewEncoder(w).Encode(info)
		case http.MethodDelete:
			reason := r.URL.Query().Get("reason")
			if err := sched.CancelTask(r.Context(), id, reason, time.Time{}); err != nil {
				writeSchedulerError(w, err)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/v1/tasks/ack", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			TaskID  string                      `json:"taskId"`
			Outcome scheduler.CompletionOutcome `json:"outcome"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := sched.AckCompletion(r.Context(), req.TaskID, req.Outcome, time.Time{}); err != nil {
			writeSchedulerError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/agents", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var a model.Agent
		if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := sched.RegisterAgent(r.Context(), a, time.Time{}); err != nil {
			writeSchedulerError(w, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
	})

	mux.HandleFunc("/v1/agents/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			AgentID string `json:"agentId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if err := sched.Heartbeat(r.Context(), req.AgentID, time.Time{}); err != nil {
			writeSchedulerError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})

	mux.HandleFunc("/v1/queue", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		status, err := sched.QueueStatusOp(r.Context())
		if err != nil {
			writeSchedulerError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(status)
	})

	mux.HandleFunc("/v1/metrics/window", func(w http.ResponseWriter, r *http.Request) {
		kind := metrics.WindowMinute
		switch r.URL.Query().Get("window") {
		case "hour":
			kind = metrics.WindowHour
		case "day":
			kind = metrics.WindowDay
		}
		_ = json.NewEncoder(w).Encode(collector.Snapshot(kind))
	})

	mux.HandleFunc("/v1/snapshot", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		label := r.URL.Query().Get("label")
		path, err := sched.SnapshotOp(r.Context(), label, time.Time{})
		if err != nil {
			writeSchedulerError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"path": path})
	})

	mux.HandleFunc("/v1/restore", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		path := r.URL.Query().Get("path")
		counts, err := sched.RestoreOp(r.Context(), path, time.Time{})
		if err != nil {
			writeSchedulerError(w, err)
			return
		}
		_ = json.NewEncoder(w).Encode(counts)
	})

	addr := getenvDefault("TASKQUEUE_HTTP_ADDR", ":8080")
	return &http.Server{Addr: addr, Handler: mux}
}

// writeSchedulerError maps a scheduler sentinel error to the matching HTTP
// status, per spec.md §6's Control API error table.
func writeSchedulerError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, scheduler.ErrUnknownID), errors.Is(err, scheduler.ErrUnknownDependency):
		status = http.StatusNotFound
	case errors.Is(err, scheduler.ErrDuplicateID):
		status = http.StatusConflict
	case errors.Is(err, scheduler.ErrWouldCycle), errors.Is(err, scheduler.ErrInvalidConstraint), errors.Is(err, scheduler.ErrWrongState):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, scheduler.ErrTimeout):
		status = http.StatusGatewayTimeout
	case errors.Is(err, scheduler.ErrLocked):
		status = http.StatusLocked
	case errors.Is(err, scheduler.ErrCorrupt), errors.Is(err, scheduler.ErrIncompatible):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, scheduler.ErrIO):
		status = http.StatusInternalServerError
	}
	http.Error(w, err.Error(), status)
}
