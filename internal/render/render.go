// Package render tracks the lifecycle of the session's render job.
//
// The orchestrator is a plain state machine. It never performs I/O; the
// session controller dispatches the request and reports the outcome back.
package render

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/heimdex/clipdesk/internal/edit"
)

// Status is the state of the live render job.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusSubmitting Status = "submitting"
	StatusInProgress Status = "in_progress"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
)

// Active reports whether a request is outstanding.
func (s Status) Active() bool {
	return s == StatusSubmitting || s == StatusInProgress
}

// ErrInFlight is returned when a submission is attempted while another one
// is outstanding. Submissions are rejected, never queued.
var ErrInFlight = errors.New("a render is already in progress")

// Request is the body of POST /render. Unset optional parameters encode as
// JSON null, never as zero.
type Request struct {
	ProjectID        string   `json:"project_id"`
	AssetID          string   `json:"asset_id"`
	Start            float64  `json:"start"`
	End              *float64 `json:"end"`
	Speed            float64  `json:"speed"`
	Volume           float64  `json:"volume"`
	Rotate           int      `json:"rotate"`
	ResolutionWidth  *int     `json:"resolution_width"`
	ResolutionHeight *int     `json:"resolution_height"`
}

// NewRequest snapshots p for the given project and asset.
func NewRequest(projectID, assetID string, p edit.Params) Request {
	p = p.Clone()
	return Request{
		ProjectID:        projectID,
		AssetID:          assetID,
		Start:            p.TrimStart,
		End:              p.TrimEnd,
		Speed:            p.Speed,
		Volume:           p.Volume,
		Rotate:           int(p.Rotation),
		ResolutionWidth:  p.Width,
		ResolutionHeight: p.Height,
	}
}

// Clone returns a deep copy of r.
func (r Request) Clone() Request {
	c := r
	if r.End != nil {
		v := *r.End
		c.End = &v
	}
	if r.ResolutionWidth != nil {
		v := *r.ResolutionWidth
		c.ResolutionWidth = &v
	}
	if r.ResolutionHeight != nil {
		v := *r.ResolutionHeight
		c.ResolutionHeight = &v
	}
	return c
}

// Job is a snapshot of the live render job.
type Job struct {
	ID          string    `json:"id,omitempty"`
	Status      Status    `json:"status"`
	OutputURL   string    `json:"output_url,omitempty"`
	Message     string    `json:"message,omitempty"`
	Request     *Request  `json:"request,omitempty"`
	SubmittedAt time.Time `json:"submitted_at,omitzero"`
	FinishedAt  time.Time `json:"finished_at,omitzero"`
}

// Clone returns a deep copy of j.
func (j Job) Clone() Job {
	c := j
	if j.Request != nil {
		r := j.Request.Clone()
		c.Request = &r
	}
	return c
}

// Orchestrator owns the one live job of a session.
type Orchestrator struct {
	job Job
	now func() time.Time
}

func NewOrchestrator() *Orchestrator {
	return &Orchestrator{job: Job{Status: StatusIdle}, now: time.Now}
}

// Job returns a snapshot of the live job.
func (o *Orchestrator) Job() Job {
	return o.job.Clone()
}

// Begin starts a new job from the given selection and parameters and moves it
// to Submitting. It returns ErrInFlight, leaving the live job untouched, while
// another job is Submitting or InProgress.
func (o *Orchestrator) Begin(projectID, assetID string, p edit.Params) (Request, error) {
	if o.job.Status.Active() {
		return Request{}, ErrInFlight
	}
	req := NewRequest(projectID, assetID, p)
	snapshot := req.Clone()
	o.job = Job{
		ID:          uuid.NewString(),
		Status:      StatusSubmitting,
		Request:     &snapshot,
		SubmittedAt: o.now(),
	}
	return req, nil
}

// Dispatched moves a submitting job to InProgress.
func (o *Orchestrator) Dispatched(jobID string) error {
	return o.transition(jobID, StatusSubmitting, func(j *Job) {
		j.Status = StatusInProgress
	})
}

// Succeed records the output of the job.
func (o *Orchestrator) Succeed(jobID, outputURL string) error {
	return o.finish(jobID, func(j *Job) {
		j.Status = StatusSucceeded
		j.OutputURL = outputURL
	})
}

// Fail records the failure message of the job.
func (o *Orchestrator) Fail(jobID, message string) error {
	return o.finish(jobID, func(j *Job) {
		j.Status = StatusFailed
		j.Message = message
	})
}

func (o *Orchestrator) finish(jobID string, apply func(*Job)) error {
	if o.job.ID != jobID || !o.job.Status.Active() {
		return fmt.Errorf("render job %s is not active (status %s)", jobID, o.job.Status)
	}
	apply(&o.job)
	o.job.FinishedAt = o.now()
	return nil
}

func (o *Orchestrator) transition(jobID string, from Status, apply func(*Job)) error {
	if o.job.ID != jobID || o.job.Status != from {
		return fmt.Errorf("render job %s: cannot leave %s (status %s)", jobID, from, o.job.Status)
	}
	apply(&o.job)
	return nil
}
