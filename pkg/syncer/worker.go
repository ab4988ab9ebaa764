// Package syncer runs the background worker that drains push jobs and
// creates Test Case work items in the tracker.
package syncer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/testcraft/testcraft/pkg/models"
	"github.com/testcraft/testcraft/pkg/queue"
	"github.com/testcraft/testcraft/pkg/storage"
	"github.com/testcraft/testcraft/pkg/tracker"
)

// caseStore is the slice of storage the worker needs.
type caseStore interface {
	GetTestCase(ctx context.Context, caseID string) (*models.GeneratedTestCase, error)
	MarkSynced(ctx context.Context, caseID, workItemID string) error
}

// Worker polls per-project push queues and syncs approved cases to the
// tracker. Projects are registered with Track; the API registers a project
// whenever a push job is enqueued for it.
type Worker struct {
	queue    queue.Manager
	store    caseStore
	tracker  tracker.Client
	logger   *slog.Logger
	interval time.Duration

	projects sync.Map // project -> struct{}
	wg       sync.WaitGroup
}

// NewWorker creates a push worker. initialProjects seeds the polling set so
// jobs left over from a previous run are picked up after a restart.
func NewWorker(q queue.Manager, store caseStore, tc tracker.Client, logger *slog.Logger, interval time.Duration, initialProjects ...string) *Worker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	w := &Worker{
		queue:    q,
		store:    store,
		tracker:  tc,
		logger:   logger.With(slog.String("component", "syncer")),
		interval: interval,
	}
	for _, p := range initialProjects {
		if p != "" {
			w.projects.Store(p, struct{}{})
		}
	}
	return w
}

// Track registers a project for queue polling. Safe for concurrent use.
func (w *Worker) Track(project string) {
	if project == "" {
		return
	}
	if _, loaded := w.projects.LoadOrStore(project, struct{}{}); !loaded {
		w.logger.Info("Tracking push queue", slog.String("project", project))
	}
}

// Start launches the polling loop. It returns immediately; the loop stops
// when ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.logger.Info("Push worker started", slog.Duration("interval", w.interval))
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				w.logger.Info("Push worker stopping")
				return
			case <-ticker.C:
				w.pollOnce(ctx)
			}
		}
	}()
}

// Wait blocks until the polling loop has exited.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// pollOnce drains every tracked project queue.
func (w *Worker) pollOnce(ctx context.Context) {
	w.projects.Range(func(key, _ interface{}) bool {
		project := key.(string)
		for {
			if ctx.Err() != nil {
				return false
			}
			job, ackNacker, err := w.queue.NextPush(project)
			if err != nil {
				w.logger.Error("Failed to fetch push job", slog.String("project", project), slog.String("error", err.Error()))
				return true
			}
			if job == nil {
				return true
			}
			w.processJob(ctx, job, ackNacker)
		}
	})
}

// processJob syncs each case of a push job. A tracker failure nacks the job
// back onto the queue; everything else (missing case, wrong status) is
// skipped so one bad case cannot wedge the whole job.
func (w *Worker) processJob(ctx context.Context, job *models.PushJob, ackNacker queue.AckNacker) {
	logger := w.logger.With(slog.String("job_id", job.ID), slog.String("project", job.Project))
	logger.Info("Processing push job", slog.Int("cases", len(job.CaseIDs)))

	for _, caseID := range job.CaseIDs {
		tc, err := w.store.GetTestCase(ctx, caseID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				logger.Warn("Push job references missing case, skipping", slog.String("case_id", caseID))
				continue
			}
			logger.Error("Failed to load case, requeueing job", slog.String("case_id", caseID), slog.String("error", err.Error()))
			w.nack(ackNacker, logger, true)
			return
		}
		if tc.Status != models.StatusApproved {
			logger.Warn("Case is not approved, skipping",
				slog.String("case_id", caseID),
				slog.String("status", tc.Status))
			continue
		}

		workItemID, err := w.tracker.CreateTestCase(ctx, job.Project, *tc)
		if err != nil {
			logger.Error("Tracker rejected case, requeueing job", slog.String("case_id", caseID), slog.String("error", err.Error()))
			w.nack(ackNacker, logger, true)
			return
		}

		if err := w.store.MarkSynced(ctx, caseID, workItemID); err != nil {
			// The work item exists; losing the linkage is worse than a
			// duplicate, so surface loudly but do not requeue.
			logger.Error("Failed to mark case synced",
				slog.String("case_id", caseID),
				slog.String("work_item_id", workItemID),
				slog.String("error", err.Error()))
			continue
		}
		logger.Info("Synced case to tracker", slog.String("case_id", caseID), slog.String("work_item_id", workItemID))
	}

	if err := ackNacker.Ack(); err != nil {
		logger.Error("Failed to ack push job", slog.String("error", err.Error()))
	}
}

func (w *Worker) nack(ackNacker queue.AckNacker, logger *slog.Logger, requeue bool) {
	if err := ackNacker.Nack(requeue); err != nil {
		logger.Error("Failed to nack push job", slog.String("error", err.Error()))
	}
}
