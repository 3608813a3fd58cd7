package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"backoffice-service/internal/util"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

const (
	QueueMaintenance = "maintenance"

	TaskOtpPurge = "otp:purge"
)

// OtpPurger removes used and expired one-time codes
type OtpPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// NewOtpPurgeTask builds the periodic purge task
func NewOtpPurgeTask() *asynq.Task {
	return asynq.NewTask(TaskOtpPurge, nil, asynq.Queue(QueueMaintenance), asynq.MaxRetry(1), asynq.Timeout(time.Minute))
}

// OtpPurgeHandler runs the purge task
type OtpPurgeHandler struct {
	purger OtpPurger
	logger *zap.Logger
}

func NewOtpPurgeHandler(purger OtpPurger) *OtpPurgeHandler {
	return &OtpPurgeHandler{purger: purger, logger: util.GetLogger()}
}

// ProcessTask implements asynq.Handler
func (h *OtpPurgeHandler) ProcessTask(ctx context.Context, task *asynq.Task) error {
	n, err := h.purger.PurgeExpired(ctx)
	if err != nil {
		return fmt.Errorf("otp purge: %w", err)
	}
	h.logger.Info("Purged one-time codes", zap.Int64("removed", n))
	return nil
}

// CronRegistration wires a cron expression to a prepared task
type CronRegistration struct {
	Spec string
	Task *asynq.Task
}

// WorkerConfig collects what the worker needs to start
type WorkerConfig struct {
	RedisOpts asynq.RedisClientOpt
	Handlers  map[string]asynq.Handler
	Cron      []CronRegistration
}

// Worker wraps the asynq server and its scheduler
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *zap.Logger
}

// NewWorker registers handlers and cron entries. An invalid cron spec is an error.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: 1,
		Queues:      map[string]int{QueueMaintenance: 1},
	})

	mux := asynq.NewServeMux()
	for taskType, h := range cfg.Handlers {
		mux.Handle(taskType, h)
	}

	var scheduler *asynq.Scheduler
	if len(cfg.Cron) > 0 {
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		for _, entry := range cfg.Cron {
			if entry.Spec == "" || entry.Task == nil {
				continue
			}
			if _, err := scheduler.Register(entry.Spec, entry.Task); err != nil {
				return nil, fmt.Errorf("register %s: %w", entry.Task.Type(), err)
			}
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: util.GetLogger()}, nil
}

// Run processes tasks until ctx is cancelled, then stops the scheduler and
// the server. Signals are left to the caller; asynq's own Run would install
// a second SIGTERM wait.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil {
		return errors.New("jobs: worker not configured")
	}

	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("start jobs server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("start scheduler: %w", err)
		}
	}
	w.logger.Info("Jobs worker started")

	<-ctx.Done()

	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	w.logger.Info("Jobs worker stopped")
	return ctx.Err()
}
