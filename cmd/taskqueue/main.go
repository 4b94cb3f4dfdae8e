// Command taskqueue is the process entrypoint: it wires Clock, IDGen,
// EventBus, the core registries, PersistenceEngine, and Scheduler together,
// exposes the Control API over HTTP, and shuts down cleanly on SIGINT/
// SIGTERM.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel"

	"github.com/swarmguard/taskqueue/internal/agent"
	"github.com/swarmguard/taskqueue/internal/clock"
	"github.com/swarmguard/taskqueue/internal/config"
	"github.com/swarmguard/taskqueue/internal/eventbus"
	"github.com/swarmguard/taskqueue/internal/graph"
	"github.com/swarmguard/taskqueue/internal/idgen"
	"github.com/swarmguard/taskqueue/internal/metrics"
	"github.com/swarmguard/taskqueue/internal/obs/logging"
	"github.com/swarmguard/taskqueue/internal/obs/otelinit"
	"github.com/swarmguard/taskqueue/internal/persistence"
	"github.com/swarmguard/taskqueue/internal/retrypolicy"
	"github.com/swarmguard/taskqueue/internal/scheduler"
	"github.com/swarmguard/taskqueue/internal/task"
)

// Exit codes (spec.md §6's exit-code table).
const (
	exitOK            = 0
	exitConfigInvalid = 2
	exitStorageError  = 3
	exitFatal         = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	service := "taskqueue"
	log := logging.Init(service)

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		return exitConfigInvalid
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_, shutdownTrace := otelinit.InitTracer(ctx, service)
	_, shutdownMeter := otelinit.InitMeter(ctx, service)
	defer func() {
		ctxSd, c := context.WithTimeout(context.Background(), 5*time.Second)
		defer c()
		_ = shutdownTrace(ctxSd)
		_ = shutdownMeter(ctxSd)
	}()

	sysClock := clock.System{}
	bus := eventbus.New()

	if journalPath := os.Getenv("TASKQUEUE_EVENT_JOURNAL_PATH"); journalPath != "" {
		journal, err := eventbus.OpenBoltJournal(journalPath)
		if err != nil {
			log.Error("event journal init failed", "error", err)
			return exitStorageError
		}
		bus.AttachJournal(journal)
		log.Info("event journal attached", "path", journalPath)
	}
	if natsURL := os.Getenv("TASKQUEUE_NATS_URL"); natsURL != "" {
		nc, err := nats.Connect(natsURL)
		if err != nil {
			log.Warn("nats connect failed, continuing without the event bridge", "error", err)
		} else {
			defer nc.Close()
			subject := getenvDefault("TASKQUEUE_NATS_SUBJECT", "taskqueue.events")
			bus.AttachBridge(eventbus.NewNATSBridge(nc, subject))
			log.Info("nats event bridge attached", "url", natsURL, "subject", subject)
		}
	}

	tasks := task.New(sysClock, bus)
	agents := agent.New(sysClock, bus, cfg.AgentHeartbeatTimeout())
	depGraph := graph.New(tasks.StatusOf)
	ids := idgen.New()

	persist, err := persistence.New(persistence.Config{
		StorageDir:           cfg.StorageDir,
		LockStaleAfter:       cfg.LockStaleAfter(),
		RecoveryStaleAfter:   cfg.RecoveryStaleAfter(),
		RetentionDays:        cfg.BackupRetention(),
		EnableVersioning:     cfg.EnableVersioning,
		Codec: persistence.Codec{
			CompressionEnabled: cfg.CompressionEnabled,
			EncryptionKey:      cfg.EncryptionKey,
		},
	}, sysClock)
	if err != nil {
		log.Error("persistence engine init failed", "error", err)
		return exitStorageError
	}

	schedCfg := scheduler.Config{
		TickInterval:          cfg.TickInterval(),
		RebalanceInterval:     cfg.RebalanceInterval(),
		AgentHeartbeatTimeout: cfg.AgentHeartbeatTimeout(),
		AbortGrace:            cfg.AbortGrace(),
		CommandBuffer:         256,
		SessionID:             service,
	}
	sched := scheduler.New(schedCfg, sysClock, log, depGraph, tasks, agents, bus, persist, retrypolicy.Default, ids)

	// otelinit.InitMeter sets the global MeterProvider on success and
	// leaves otel's own built-in no-op provider in place on failure, so
	// fetching a Meter off the global (matching the teacher's own
	// otel.GetMeterProvider().Meter("orchestrator") call) always works.
	meter := otel.GetMeterProvider().Meter(service)
	collector := metrics.New(sysClock, bus, meter)
	sched.OnTaskDuration(collector.ObserveTaskDuration)

	// The command loop runs on its own context so it is already serving
	// commands for the startup restore below and still serving them for
	// the final snapshot at shutdown.
	runCtx, stopRun := context.WithCancel(context.Background())
	defer stopRun()
	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(runCtx) }()

	log.Info("attempting startup recovery from persisted snapshot")
	if counts, err := sched.RestoreOp(ctx, "", time.Time{}); err != nil {
		log.Warn("startup recovery skipped", "error", err)
	} else {
		log.Info("startup recovery complete", "tasks", counts.Tasks, "agents", counts.Agents, "edges", counts.Edges, "assignments", counts.Assignments)
	}

	srv := newServer(sched, collector)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "error", err)
			cancel()
		}
	}()
	log.Info("taskqueue started", "addr", srv.Addr, "storage_dir", cfg.StorageDir)

	<-ctx.Done()
	log.Info("shutdown initiated")

	ctxSd, cancelSd := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelSd()
	_ = srv.Shutdown(ctxSd)

	if _, err := sched.SnapshotOp(ctxSd, "shutdown", time.Time{}); err != nil {
		log.Error("final snapshot on shutdown failed", "error", err)
	}

	cancel()
	stopRun()
	select {
	case <-schedDone:
	case <-time.After(5 * time.Second):
		log.Warn("scheduler loop did not exit within shutdown timeout")
	}

	log.Info("shutdown complete")
	return exitOK
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
