package store

import (
	"context"
	"log/slog"

	"github.com/heimdex/clipdesk/internal/logging"
	"github.com/heimdex/clipdesk/internal/render"
)

const recorderBuffer = 32

// Recorder writes render job transitions to the repository in the
// background. Observe never blocks, so it can be called from the session
// loop.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
	jobs   chan render.Job

	// last transition observed, owned by Observe's caller
	lastID     string
	lastStatus render.Status
}

func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recorder{
		repo:   repo,
		logger: logger,
		jobs:   make(chan render.Job, recorderBuffer),
	}
}

// Observe queues job if its status changed since the last call. Transitions
// are dropped with a warning when the buffer is full.
func (r *Recorder) Observe(job render.Job) {
	if job.ID == "" || (job.ID == r.lastID && job.Status == r.lastStatus) {
		return
	}
	r.lastID, r.lastStatus = job.ID, job.Status

	select {
	case r.jobs <- job.Clone():
	default:
		r.logger.Warn("render history buffer full, dropping transition", "job_id", job.ID, "status", job.Status)
	}
}

// Run persists queued jobs until ctx is done, then drains what is left.
func (r *Recorder) Run(ctx context.Context) {
	for {
		select {
		case job := <-r.jobs:
			r.save(context.Background(), job)
		case <-ctx.Done():
			for {
				select {
				case job := <-r.jobs:
					r.save(context.Background(), job)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) save(ctx context.Context, job render.Job) {
	if err := r.repo.SaveRender(ctx, job); err != nil {
		r.logger.Warn("failed to record render", "job_id", job.ID, "status", job.Status, "error", err)
		return
	}
	r.logger.Debug("render recorded", "job_id", job.ID, "status", job.Status)
}
