// Package session implements the session controller: the single owner of
// the editor's state.
//
// All state lives on the controller's loop goroutine (Run). Public methods
// send closures to the loop and wait for them; network calls never run on the
// loop. Their results come back as further closures, where the asset epoch
// and the render job status decide whether they still apply.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/heimdex/clipdesk/internal/backend"
	"github.com/heimdex/clipdesk/internal/edit"
	"github.com/heimdex/clipdesk/internal/ident"
	"github.com/heimdex/clipdesk/internal/logging"
	"github.com/heimdex/clipdesk/internal/render"
)

// Backend is the subset of the render service the session uses.
type Backend interface {
	ListProjects(ctx context.Context) ([]ident.Record, error)
	CreateProject(ctx context.Context, title, description string) (ident.Record, error)
	UploadAsset(ctx context.Context, projectID, filename string, content io.Reader) (ident.Record, error)
	ListAssets(ctx context.Context, projectID string) ([]ident.Record, error)
	Render(ctx context.Context, req render.Request) (*backend.RenderResult, error)
}

// Opener presents a finished render to the user.
type Opener interface {
	Open(url string) error
}

type Config struct {
	Backend Backend
	Opener  Opener
	Logger  *slog.Logger
	// MaxUploadBytes rejects larger uploads before they are sent. Zero
	// disables the check.
	MaxUploadBytes int64
}

// UploadFile is a file chosen for upload. Size is -1 when unknown.
type UploadFile struct {
	Filename string
	Size     int64
	Content  io.Reader
}

type Controller struct {
	backend   Backend
	opener    Opener
	logger    *slog.Logger
	maxUpload int64

	ops     chan func()
	stopped chan struct{}

	// Owned by the loop goroutine.
	runCtx       context.Context
	catalog      *Catalog
	library      *Library
	params       *edit.Set
	renders      *render.Orchestrator
	status       string
	projectEpoch uint64
	listeners    []func(State)
	waiters      map[int]waiter
	nextWaiter   int

	// onAssetResult observes every asset fetch result handled by the loop.
	onAssetResult func(projectID string, applied bool)
}

type waiter struct {
	cond func(State) bool
	ch   chan State
}

func NewController(cfg Config) *Controller {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		backend:   cfg.Backend,
		opener:    cfg.Opener,
		logger:    logger,
		maxUpload: cfg.MaxUploadBytes,
		ops:       make(chan func()),
		stopped:   make(chan struct{}),
		catalog:   NewCatalog(),
		library:   NewLibrary(),
		params:    edit.NewSet(),
		renders:   render.NewOrchestrator(),
		waiters:   make(map[int]waiter),
	}
}

// Run executes operations until ctx is done. Operations issued before Run
// starts block until it does.
func (c *Controller) Run(ctx context.Context) {
	c.runCtx = ctx
	defer close(c.stopped)

	c.logger.Info("session controller started")
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("session controller stopping")
			return
		case op := <-c.ops:
			op()
		}
	}
}

// OnChange registers fn to receive a snapshot after every state change. fn
// runs on the loop goroutine and must not call back into the controller.
func (c *Controller) OnChange(fn func(State)) {
	_ = c.do(context.Background(), func() {
		c.listeners = append(c.listeners, fn)
	})
}

// Snapshot returns the current state.
func (c *Controller) Snapshot(ctx context.Context) (State, error) {
	var s State
	err := c.do(ctx, func() { s = c.snapshot() })
	return s, err
}

// Wait blocks until cond holds for the state and returns that state.
func (c *Controller) Wait(ctx context.Context, cond func(State) bool) (State, error) {
	ch := make(chan State, 1)
	id := -1
	err := c.do(ctx, func() {
		if s := c.snapshot(); cond(s) {
			ch <- s
			return
		}
		id = c.nextWaiter
		c.nextWaiter++
		c.waiters[id] = waiter{cond: cond, ch: ch}
	})
	if err != nil {
		return State{}, err
	}

	select {
	case s := <-ch:
		return s, nil
	case <-c.stopped:
		return State{}, ErrStopped
	case <-ctx.Done():
		if id >= 0 {
			_ = c.do(context.Background(), func() { delete(c.waiters, id) })
		}
		return State{}, ctx.Err()
	}
}

// LoadProjects replaces the catalog with the backend's project list. When
// loads overlap, only the most recently issued one is applied.
func (c *Controller) LoadProjects(ctx context.Context) (State, error) {
	var epoch uint64
	if err := c.do(ctx, func() {
		c.projectEpoch++
		epoch = c.projectEpoch
	}); err != nil {
		return State{}, err
	}

	records, fetchErr := c.backend.ListProjects(ctx)

	var s State
	var opErr error
	err := c.do(context.WithoutCancel(ctx), func() {
		defer func() { s = c.snapshot() }()
		if epoch != c.projectEpoch {
			c.logger.Debug("discarding stale project list", "epoch", epoch, "current", c.projectEpoch)
			return
		}
		if fetchErr != nil {
			opErr = fmt.Errorf("load projects: %w", fetchErr)
			c.fail(opErr, "Could not load projects: "+detailOr(fetchErr, fetchErr.Error()))
			return
		}
		projects := make([]Project, 0, len(records))
		for _, rec := range records {
			p, err := projectFromRecord(rec)
			if err != nil {
				opErr = fmt.Errorf("load projects: %w", err)
				c.fail(opErr, "Could not load projects: "+err.Error())
				return
			}
			projects = append(projects, p)
		}
		if c.catalog.Replace(projects) {
			c.library.Clear()
		}
		c.logger.Info("projects loaded", "count", len(projects))
		c.publish()
	})
	if err != nil {
		return State{}, err
	}
	return s, opErr
}

// CreateProject creates a project on the backend and makes it active. An
// empty title is replaced with "Project N".
func (c *Controller) CreateProject(ctx context.Context, title, description string) (State, error) {
	title = strings.TrimSpace(title)
	if err := c.do(ctx, func() {
		if title == "" {
			title = c.catalog.DefaultTitle()
		}
	}); err != nil {
		return State{}, err
	}

	rec, createErr := c.backend.CreateProject(ctx, title, description)

	// The backend call has finished; its outcome is applied even if the
	// caller has gone away.
	var s State
	var opErr error
	err := c.do(context.WithoutCancel(ctx), func() {
		defer func() { s = c.snapshot() }()
		if createErr != nil {
			detail := detailOr(createErr, genericCreateFailure)
			opErr = &CreationError{Detail: detail, Err: createErr}
			c.fail(opErr, detail)
			return
		}
		p, err := projectFromRecord(rec)
		if err != nil {
			opErr = fmt.Errorf("create project: %w", err)
			c.fail(opErr, err.Error())
			return
		}
		c.catalog.Insert(p)
		c.refreshAssets(p.ID)
		c.status = StatusCreated
		c.logger.Info("project created", "project_id", p.ID, "title", p.Title)
		c.publish()
	})
	if err != nil {
		return State{}, err
	}
	return s, opErr
}

// SelectProject makes id the active project and refreshes its assets.
// Selecting the already active project changes nothing.
func (c *Controller) SelectProject(ctx context.Context, id string) (State, error) {
	return c.mutate(ctx, func() error {
		if active, ok := c.catalog.Active(); ok && active.ID == id {
			return nil
		}
		if _, err := c.catalog.Select(id); err != nil {
			c.fail(err, err.Error())
			return err
		}
		c.refreshAssets(id)
		c.logger.Info("project selected", "project_id", id)
		return nil
	})
}

// ClearProject unsets the active project and empties the asset list.
func (c *Controller) ClearProject(ctx context.Context) (State, error) {
	return c.mutate(ctx, func() error {
		c.catalog.Clear()
		c.library.Clear()
		return nil
	})
}

// RefreshAssets re-fetches the assets of the active project.
func (c *Controller) RefreshAssets(ctx context.Context) (State, error) {
	return c.mutate(ctx, func() error {
		p, ok := c.catalog.Active()
		if !ok {
			err := &NoActiveProjectError{Op: "refresh assets"}
			c.fail(err, StatusNeedProject)
			return err
		}
		c.refreshAssets(p.ID)
		return nil
	})
}

// SelectAsset makes id the selected asset. Edit parameters carry over.
func (c *Controller) SelectAsset(ctx context.Context, id string) (State, error) {
	return c.mutate(ctx, func() error {
		if _, err := c.library.Select(id); err != nil {
			c.fail(err, err.Error())
			return err
		}
		return nil
	})
}

// UpdateParams applies raw parameter inputs. Rejected fields keep their
// previous values; accepted ones stay applied.
func (c *Controller) UpdateParams(ctx context.Context, u edit.Update) (State, error) {
	return c.mutate(ctx, func() error {
		if err := c.params.Apply(u); err != nil {
			c.fail(err, err.Error())
			return err
		}
		return nil
	})
}

// ResetParams restores the default parameters.
func (c *Controller) ResetParams(ctx context.Context) (State, error) {
	return c.mutate(ctx, func() error {
		c.params.Reset()
		return nil
	})
}

// Upload sends f to the active project under its cleaned filename. On success
// the asset is put at the head of the list and selected.
func (c *Controller) Upload(ctx context.Context, f UploadFile) (State, error) {
	f.Filename = CleanFilename(f.Filename)

	var projectID string
	s, err := c.mutate(ctx, func() error {
		p, ok := c.catalog.Active()
		if !ok {
			err := &NoActiveProjectError{Op: "upload"}
			c.fail(err, StatusNeedProject)
			return err
		}
		if err := c.checkUpload(f); err != nil {
			c.fail(err, err.Error())
			return err
		}
		projectID = p.ID
		c.status = StatusUploading
		return nil
	})
	if err != nil {
		return s, err
	}

	content := f.Content
	if c.maxUpload > 0 {
		content = &sizeGuard{r: content, remaining: c.maxUpload, limit: c.maxUpload}
	}
	rec, uploadErr := c.backend.UploadAsset(ctx, projectID, f.Filename, content)

	var opErr error
	err = c.do(context.WithoutCancel(ctx), func() {
		defer func() { s = c.snapshot() }()
		if uploadErr != nil {
			var verr *edit.ValidationError
			if errors.As(uploadErr, &verr) {
				opErr = verr
				c.fail(verr, verr.Error())
				return
			}
			detail := detailOr(uploadErr, genericUploadFailure)
			opErr = &UploadFailedError{Detail: detail, Err: uploadErr}
			c.fail(opErr, detail)
			return
		}
		a, err := assetFromRecord(rec, projectID)
		if err != nil {
			opErr = fmt.Errorf("upload: %w", err)
			c.fail(opErr, err.Error())
			return
		}
		if !c.library.Insert(a) {
			c.logger.Info("upload finished for an inactive project", "project_id", projectID, "asset_id", a.ID)
		}
		c.status = StatusUploaded
		c.logger.Info("asset uploaded", "project_id", projectID, "asset_id", a.ID, "kind", a.Kind)
		c.publish()
	})
	if err != nil {
		return State{}, err
	}
	return s, opErr
}

// SubmitRender snapshots the selection and parameters and dispatches a
// render. While another render is outstanding it returns render.ErrInFlight
// and the state is unchanged.
func (c *Controller) SubmitRender(ctx context.Context) (State, error) {
	var s State
	var opErr error
	err := c.do(ctx, func() {
		defer func() { s = c.snapshot() }()
		p, ok := c.catalog.Active()
		if !ok {
			opErr = &NoActiveProjectError{Op: "render"}
			c.fail(opErr, StatusNeedProject)
			return
		}
		a, ok := c.library.Selected()
		if !ok {
			opErr = &NoSelectedAssetError{Op: "render"}
			c.fail(opErr, StatusNeedAsset)
			return
		}
		req, err := c.renders.Begin(p.ID, a.ID, c.params.Params())
		if err != nil {
			opErr = err
			c.logger.Debug("render submission rejected", "error", err)
			return
		}
		job := c.renders.Job()
		c.status = StatusRendering
		c.logger.Info("render submitted", "job_id", job.ID, "project_id", p.ID, "asset_id", a.ID)
		c.publish()
		go c.dispatchRender(c.runCtx, job.ID, req)
	})
	if err != nil {
		return State{}, err
	}
	return s, opErr
}

func (c *Controller) dispatchRender(ctx context.Context, jobID string, req render.Request) {
	c.post(func() {
		if err := c.renders.Dispatched(jobID); err != nil {
			c.logger.Warn("render dispatch transition rejected", "job_id", jobID, "error", err)
			return
		}
		c.publish()
	})

	result, err := c.backend.Render(ctx, req)

	c.post(func() {
		if err == nil && result.OutputURL == "" {
			err = errors.New("backend returned no output_url")
		}
		if err != nil {
			detail := detailOr(err, genericRenderFailure)
			failure := &RenderFailedError{Detail: detail, Err: err}
			if ferr := c.renders.Fail(jobID, detail); ferr != nil {
				c.logger.Warn("render failure transition rejected", "job_id", jobID, "error", ferr)
				return
			}
			c.fail(failure, detail)
			return
		}
		if serr := c.renders.Succeed(jobID, result.OutputURL); serr != nil {
			c.logger.Warn("render success transition rejected", "job_id", jobID, "error", serr)
			return
		}
		c.status = StatusRenderDone
		c.logger.Info("render complete", "job_id", jobID, "output_url", result.OutputURL)
		c.publish()
		if c.opener != nil {
			if err := c.opener.Open(result.OutputURL); err != nil {
				c.logger.Warn("failed to open render output", "output_url", result.OutputURL, "error", err)
			}
		}
	})
}

// refreshAssets starts an epoch-guarded fetch of projectID's assets. Runs on
// the loop.
func (c *Controller) refreshAssets(projectID string) {
	epoch := c.library.BeginRefresh(projectID)
	ctx := c.runCtx
	go func() {
		records, err := c.backend.ListAssets(ctx, projectID)
		c.post(func() { c.applyAssets(epoch, projectID, records, err) })
	}()
}

func (c *Controller) applyAssets(epoch uint64, projectID string, records []ident.Record, fetchErr error) {
	applied := false
	defer func() {
		if c.onAssetResult != nil {
			c.onAssetResult(projectID, applied)
		}
	}()

	if epoch != c.library.Epoch() {
		c.logger.Debug("discarding stale asset list", "project_id", projectID, "epoch", epoch, "current", c.library.Epoch())
		return
	}
	if fetchErr != nil {
		c.library.Abandon(epoch)
		c.fail(fmt.Errorf("load assets: %w", fetchErr), "Could not load assets: "+detailOr(fetchErr, fetchErr.Error()))
		return
	}

	assets := make([]Asset, 0, len(records))
	for _, rec := range records {
		a, err := assetFromRecord(rec, projectID)
		var malformed *MalformedAssetError
		if errors.As(err, &malformed) {
			c.logger.Warn("skipping asset record", "project_id", projectID, "error", err)
			continue
		}
		if err != nil {
			c.library.Abandon(epoch)
			c.fail(fmt.Errorf("load assets: %w", err), "Could not load assets: "+err.Error())
			return
		}
		assets = append(assets, a)
	}

	applied = c.library.Apply(epoch, assets)
	c.logger.Info("assets loaded", "project_id", projectID, "count", len(assets))
	c.publish()
}

func (c *Controller) checkUpload(f UploadFile) error {
	if f.Content == nil {
		return &edit.ValidationError{Field: "file", Reason: "no file selected"}
	}
	if _, ok := KindForFilename(f.Filename); !ok {
		return &edit.ValidationError{Field: "file", Input: f.Filename, Reason: "only video, audio and image files can be uploaded"}
	}
	if c.maxUpload > 0 && f.Size > c.maxUpload {
		return &edit.ValidationError{Field: "file", Input: f.Filename, Reason: fmt.Sprintf("larger than %d bytes", c.maxUpload)}
	}
	return nil
}

// mutate runs fn on the loop and publishes when it succeeds.
func (c *Controller) mutate(ctx context.Context, fn func() error) (State, error) {
	var s State
	var opErr error
	err := c.do(ctx, func() {
		opErr = fn()
		if opErr == nil {
			c.publish()
		}
		s = c.snapshot()
	})
	if err != nil {
		return State{}, err
	}
	return s, opErr
}

// fail records err as the status line. Runs on the loop.
func (c *Controller) fail(err error, status string) {
	c.status = status
	c.logger.Warn("session operation failed", "error", err)
	c.publish()
}

// publish notifies listeners and waiters. Runs on the loop.
func (c *Controller) publish() {
	if len(c.listeners) == 0 && len(c.waiters) == 0 {
		return
	}
	s := c.snapshot()
	for _, fn := range c.listeners {
		fn(s)
	}
	for id, w := range c.waiters {
		if w.cond(s) {
			w.ch <- s
			delete(c.waiters, id)
		}
	}
}

func (c *Controller) do(ctx context.Context, op func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		op()
	}
	select {
	case c.ops <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
	<-done
	return nil
}

// post queues op from a background goroutine. It is dropped once the loop
// has stopped.
func (c *Controller) post(op func()) {
	select {
	case c.ops <- op:
	case <-c.stopped:
	}
}

// sizeGuard fails a read stream that exceeds the upload limit.
type sizeGuard struct {
	r         io.Reader
	remaining int64
	limit     int64
}

func (g *sizeGuard) Read(p []byte) (int, error) {
	n, err := g.r.Read(p)
	g.remaining -= int64(n)
	if g.remaining < 0 {
		return n, &edit.ValidationError{Field: "file", Reason: fmt.Sprintf("larger than %d bytes", g.limit)}
	}
	return n, err
}
