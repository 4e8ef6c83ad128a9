// internal/common/camunda/worker.go
package camunda

import (
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/camunda/zeebe/clients/go/v8/pkg/zbc"
	"go.uber.org/zap"
)

// HandlerFunc is the job callback a worker package exposes.
type HandlerFunc func(client worker.JobClient, job entities.Job)

// WorkerOptions bound one job worker's subscription.
type WorkerOptions struct {
	TaskType      string
	MaxJobsActive int
	Timeout       time.Duration
}

// Worker is one open job subscription. Closing it stops job polling; the
// underlying zeebe client is shared and stays open.
type Worker struct {
	jobWorker worker.JobWorker
	taskType  string
	logger    *zap.Logger
}

// StartWorker opens a job subscription for the task type. Handlers manage
// their own completion and failure commands.
func StartWorker(client zbc.Client, opts WorkerOptions, handler HandlerFunc, logger *zap.Logger) *Worker {
	if opts.MaxJobsActive <= 0 {
		opts.MaxJobsActive = 5
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	jobWorker := client.NewJobWorker().
		JobType(opts.TaskType).
		Handler(worker.JobHandler(handler)).
		MaxJobsActive(opts.MaxJobsActive).
		Timeout(opts.Timeout).
		Name(opts.TaskType + "-worker").
		Open()

	logger.Info("worker started",
		zap.String("taskType", opts.TaskType),
		zap.Int("maxJobsActive", opts.MaxJobsActive),
		zap.Duration("timeout", opts.Timeout),
	)

	return &Worker{jobWorker: jobWorker, taskType: opts.TaskType, logger: logger}
}

func (w *Worker) TaskType() string {
	return w.taskType
}

// Stop closes the subscription after draining in-flight jobs.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker", zap.String("taskType", w.taskType))
	w.jobWorker.Close()
	w.jobWorker.AwaitClose()
}
