package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/heimdex/clipdesk/internal/session"
)

func newProjectsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List and create projects on the render backend",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, nil, func(c context.Context, ctrl *session.Controller) error {
				s, err := ctrl.LoadProjects(c)
				if err != nil {
					return err
				}
				return printProjects(cmd, ctx.json(), s.Projects)
			})
		},
	}

	var description string
	createCmd := &cobra.Command{
		Use:   "create [title]",
		Short: "Create a project",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var title string
			if len(args) == 1 {
				title = args[0]
			}
			return ctx.withSession(cmd, nil, func(c context.Context, ctrl *session.Controller) error {
				s, err := ctrl.CreateProject(c, title, description)
				if err != nil {
					return err
				}
				if ctx.json() {
					return writeJSON(cmd, s.ActiveProject)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created project %s (%s)\n", s.ActiveProject.Title, s.ActiveProject.ID)
				return nil
			})
		},
	}
	createCmd.Flags().StringVar(&description, "description", "", "Project description")

	cmd.AddCommand(listCmd, createCmd)
	return cmd
}

func newAssetsCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assets",
		Short: "List and upload project assets",
	}

	listCmd := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List a project's assets",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withSession(cmd, nil, func(c context.Context, ctrl *session.Controller) error {
				s, err := openProject(c, ctrl, args[0])
				if err != nil {
					return err
				}
				return printAssets(cmd, ctx.json(), s.Assets)
			})
		},
	}

	uploadCmd := &cobra.Command{
		Use:   "upload <project-id> <file>",
		Short: "Upload a media file to a project",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open upload: %w", err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat upload: %w", err)
			}

			return ctx.withSession(cmd, nil, func(c context.Context, ctrl *session.Controller) error {
				if _, err := openProject(c, ctrl, args[0]); err != nil {
					return err
				}
				s, err := ctrl.Upload(c, session.UploadFile{
					Filename: filepath.Base(args[1]),
					Size:     info.Size(),
					Content:  f,
				})
				if err != nil {
					return err
				}
				if ctx.json() {
					return writeJSON(cmd, s.SelectedAsset)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%s)\n", s.SelectedAsset.Filename, s.SelectedAsset.ID)
				return nil
			})
		},
	}

	cmd.AddCommand(listCmd, uploadCmd)
	return cmd
}

// openProject loads the catalog, activates projectID and waits for its assets.
func openProject(ctx context.Context, ctrl *session.Controller, projectID string) (session.State, error) {
	if _, err := ctrl.LoadProjects(ctx); err != nil {
		return session.State{}, err
	}
	if _, err := ctrl.SelectProject(ctx, projectID); err != nil {
		return session.State{}, err
	}
	s, err := ctrl.Wait(ctx, func(s session.State) bool { return !s.AssetsLoading })
	if err != nil {
		return session.State{}, err
	}
	if strings.HasPrefix(s.Status, "Could not load assets") {
		return session.State{}, errors.New(s.Status)
	}
	return s, nil
}

func printProjects(cmd *cobra.Command, asJSON bool, projects []session.Project) error {
	if asJSON {
		return writeJSON(cmd, projects)
	}
	if len(projects) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No projects")
		return nil
	}
	rows := make([][]string, 0, len(projects))
	for _, p := range projects {
		rows = append(rows, []string{p.ID, p.Title, p.Description})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Title", "Description"}, rows, nil))
	return nil
}

func printAssets(cmd *cobra.Command, asJSON bool, assets []session.Asset) error {
	if asJSON {
		return writeJSON(cmd, assets)
	}
	if len(assets) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No assets")
		return nil
	}
	rows := make([][]string, 0, len(assets))
	for _, a := range assets {
		rows = append(rows, []string{a.ID, a.Filename, a.DurationLabel()})
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"ID", "Filename", "Kind"}, rows, nil))
	return nil
}
