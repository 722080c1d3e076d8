package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/heimdex/clipdesk/internal/edit"
	"github.com/heimdex/clipdesk/internal/render"
	"github.com/heimdex/clipdesk/internal/session"
	"github.com/heimdex/clipdesk/internal/store"
	"github.com/heimdex/clipdesk/internal/ui"
)

// paramFlags maps render flags onto edit fields. Values go through the same
// validation as the API's text inputs.
var paramFlags = []struct {
	flag  string
	field string
	usage string
}{
	{"start", edit.FieldTrimStart, "Trim start in seconds"},
	{"end", edit.FieldTrimEnd, "Trim end in seconds (empty for the full length)"},
	{"speed", edit.FieldSpeed, "Playback speed multiplier"},
	{"volume", edit.FieldVolume, "Volume multiplier"},
	{"rotate", edit.FieldRotation, "Rotation: 0, 90, 180 or 270"},
	{"width", edit.FieldWidth, "Output width in pixels"},
	{"height", edit.FieldHeight, "Output height in pixels"},
}

func newRenderCommand(ctx *commandContext) *cobra.Command {
	var projectID, assetID string
	var open bool
	values := make(map[string]*string, len(paramFlags))

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render an asset and wait for the result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var u edit.Update
			for _, pf := range paramFlags {
				if cmd.Flags().Changed(pf.flag) {
					setUpdateField(&u, pf.field, *values[pf.flag])
				}
			}

			var opener session.Opener
			if open {
				opener = ui.NewBrowserOpener(ctx.cliLogger(cmd))
			}

			return ctx.withStore(func(repo *store.SQLiteRepository) error {
				return ctx.withSession(cmd, opener, func(c context.Context, ctrl *session.Controller) error {
					job, err := runRender(c, ctrl, repo, ctx.cliLogger(cmd), projectID, assetID, u)
					// a nil job means the render never started
					if err != nil && job == nil {
						return err
					}
					if ctx.json() {
						if werr := writeJSON(cmd, job); werr != nil {
							return werr
						}
					} else if job.Status == render.StatusSucceeded {
						fmt.Fprintf(cmd.OutOrStdout(), "Render %s succeeded\n%s\n", job.ID, job.OutputURL)
					}
					return err
				})
			})
		},
	}

	cmd.Flags().StringVar(&projectID, "project", "", "Project ID")
	cmd.Flags().StringVar(&assetID, "asset", "", "Asset ID")
	cmd.Flags().BoolVar(&open, "open", false, "Open the output when the render succeeds")
	for _, pf := range paramFlags {
		values[pf.flag] = cmd.Flags().String(pf.flag, "", pf.usage)
	}
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("asset")

	return cmd
}

func setUpdateField(u *edit.Update, field, value string) {
	v := value
	switch field {
	case edit.FieldTrimStart:
		u.TrimStart = &v
	case edit.FieldTrimEnd:
		u.TrimEnd = &v
	case edit.FieldSpeed:
		u.Speed = &v
	case edit.FieldVolume:
		u.Volume = &v
	case edit.FieldRotation:
		u.Rotation = &v
	case edit.FieldWidth:
		u.Width = &v
	case edit.FieldHeight:
		u.Height = &v
	}
}

// runRender drives one render through the session and records its
// transitions. A failed render returns the job together with the error.
func runRender(ctx context.Context, ctrl *session.Controller, repo store.Repository, logger *slog.Logger, projectID, assetID string, u edit.Update) (*render.Job, error) {
	recorder := store.NewRecorder(repo, logger)
	recCtx, stopRecorder := context.WithCancel(context.WithoutCancel(ctx))
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		recorder.Run(recCtx)
	}()
	defer func() {
		stopRecorder()
		<-recorderDone
	}()
	ctrl.OnChange(func(s session.State) { recorder.Observe(s.Render) })

	if _, err := openProject(ctx, ctrl, projectID); err != nil {
		return nil, err
	}
	if _, err := ctrl.SelectAsset(ctx, assetID); err != nil {
		return nil, err
	}
	if _, err := ctrl.UpdateParams(ctx, u); err != nil {
		return nil, err
	}

	s, err := ctrl.SubmitRender(ctx)
	if err != nil {
		return nil, err
	}
	jobID := s.Render.ID

	s, err = ctrl.Wait(ctx, func(s session.State) bool {
		return s.Render.ID == jobID && !s.Render.Status.Active()
	})
	if err != nil {
		return nil, err
	}

	job := s.Render.Clone()
	if job.Status == render.StatusFailed {
		logger.Warn("render failed", "job_id", job.ID, "message", job.Message)
		return &job, errors.New("render failed: " + job.Message)
	}
	return &job, nil
}

func newRendersCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "renders",
		Short: "Inspect the local render history",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent renders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be positive")
			}
			return ctx.withStore(func(repo *store.SQLiteRepository) error {
				jobs, err := repo.ListRenders(cmd.Context(), limit)
				if err != nil {
					return fmt.Errorf("list renders: %w", err)
				}
				return printRenders(cmd, ctx.json(), jobs)
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 20, "Maximum renders to show")

	showCmd := &cobra.Command{
		Use:   "show <render-id>",
		Short: "Show one render",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(repo *store.SQLiteRepository) error {
				job, err := repo.GetRender(cmd.Context(), args[0])
				if err != nil {
					return fmt.Errorf("get render: %w", err)
				}
				if job == nil {
					return fmt.Errorf("render %s not found", args[0])
				}
				if ctx.json() {
					return writeJSON(cmd, job)
				}
				return printRenders(cmd, false, []*render.Job{job})
			})
		},
	}

	cmd.AddCommand(listCmd, showCmd)
	return cmd
}

func printRenders(cmd *cobra.Command, asJSON bool, jobs []*render.Job) error {
	if asJSON {
		if jobs == nil {
			jobs = []*render.Job{}
		}
		return writeJSON(cmd, jobs)
	}
	if len(jobs) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No renders")
		return nil
	}

	colorize := shouldColorize(cmd.OutOrStdout())
	rows := make([][]string, 0, len(jobs))
	for _, j := range jobs {
		var project, asset, trim string
		if j.Request != nil {
			project, asset = j.Request.ProjectID, j.Request.AssetID
			trim = formatSeconds(j.Request.Start) + " - "
			if j.Request.End != nil {
				trim += formatSeconds(*j.Request.End)
			} else {
				trim += "end"
			}
		}
		result := j.OutputURL
		if j.Status == render.StatusFailed {
			result = j.Message
		}
		rows = append(rows, []string{
			j.ID, project, asset, trim, statusText(j.Status, colorize), formatTime(j.SubmittedAt), result,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(
		[]string{"ID", "Project", "Asset", "Trim", "Status", "Submitted", "Result"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	))
	return nil
}
