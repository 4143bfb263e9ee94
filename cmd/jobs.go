package main

import (
	"context"
	"time"

	"livesync/internal/jobs"
	"livesync/internal/orchestrator"
	"livesync/pkg/logger"
)

func (app *Application) initJobs() error {
	manager := jobs.NewManager(app.ctx)

	manager.Register(newReconnectSweepJob(app.config.Pool.SweepInterval, app.orchestrator))
	if app.statusRepo != nil {
		manager.Register(newStatusSnapshotJob(app.config.Pool.SnapshotInterval, app.orchestrator))
	}

	app.jobsManager = manager
	return nil
}

// reconnectSweepJob expires reconnect holds older than the window. The sweep
// itself runs on the orchestrator's event loop.
type reconnectSweepJob struct {
	interval     time.Duration
	orchestrator *orchestrator.Orchestrator
}

func newReconnectSweepJob(interval time.Duration, orch *orchestrator.Orchestrator) jobs.Job {
	return &reconnectSweepJob{interval: interval, orchestrator: orch}
}

func (j *reconnectSweepJob) Name() string {
	return "reconnect-sweep"
}

func (j *reconnectSweepJob) Interval() time.Duration {
	return j.interval
}

func (j *reconnectSweepJob) Deferred() bool {
	return true
}

func (j *reconnectSweepJob) Run(ctx context.Context) error {
	expired, err := j.orchestrator.Sweep(ctx)
	if err != nil {
		return err
	}
	if len(expired) > 0 {
		logger.InfoCtx(ctx, "reconnect sweep released %d sessions: %v", len(expired), expired)
	}
	return nil
}

// statusSnapshotJob refreshes the Redis pool status mirror before its TTL
// lapses on an idle pool
type statusSnapshotJob struct {
	interval     time.Duration
	orchestrator *orchestrator.Orchestrator
}

func newStatusSnapshotJob(interval time.Duration, orch *orchestrator.Orchestrator) jobs.Job {
	return &statusSnapshotJob{interval: interval, orchestrator: orch}
}

func (j *statusSnapshotJob) Name() string {
	return "status-snapshot"
}

func (j *statusSnapshotJob) Interval() time.Duration {
	return j.interval
}

func (j *statusSnapshotJob) Run(ctx context.Context) error {
	return j.orchestrator.PublishStatus(ctx)
}
