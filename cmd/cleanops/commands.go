package main

import (
	"bytes"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dharsanguruparan/CleanOps/internal/apperr"
	"github.com/dharsanguruparan/CleanOps/internal/attendance"
	"github.com/dharsanguruparan/CleanOps/internal/backend"
	"github.com/dharsanguruparan/CleanOps/internal/model"
	"github.com/dharsanguruparan/CleanOps/internal/photo"
	"github.com/dharsanguruparan/CleanOps/internal/progress"
	"github.com/dharsanguruparan/CleanOps/internal/render"
	"github.com/dharsanguruparan/CleanOps/internal/report"
	"github.com/dharsanguruparan/CleanOps/internal/session"
	"github.com/dharsanguruparan/CleanOps/internal/workspace"
)

func newLoginCmd() *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and cache the access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if password == "" {
				password = os.Getenv("CLEANOPS_PASSWORD")
			}
			var reasons []string
			if username == "" {
				reasons = append(reasons, "--username is required")
			}
			if password == "" {
				reasons = append(reasons, "--password or CLEANOPS_PASSWORD is required")
			}
			if err := apperr.Validation(reasons...); err != nil {
				return err
			}
			client := backend.New(current.cfg.APIBaseURL, current.cfg.APITimeout, current.logger)
			sess, err := client.Login(ctx, username, password)
			if err != nil {
				return err
			}
			current.sess.SaveCredentials(ctx, session.Credentials{
				Token:        sess.AccessToken,
				RefreshToken: sess.RefreshToken,
				Role:         sess.User.Role,
				UserID:       sess.User.ID,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s (user %d)\n", sess.User.Username, sess.User.ID)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "Account name")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (or set CLEANOPS_PASSWORD)")
	return cmd
}

func newLogoutCmd() *cobra.Command {
	var keepWork bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Forget the cached token and work in progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			current.sess.ClearAuth(ctx)
			if !keepWork {
				current.sess.ClearWork(ctx)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepWork, "keep-work", false, "Keep selections and photos for the next login")
	return cmd
}

func newCheckInCmd() *cobra.Command {
	var lat, lng float64
	cmd := &cobra.Command{
		Use:   "checkin",
		Short: "Record today's attendance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, id, err := current.client(ctx)
			if err != nil {
				return err
			}
			created, err := attendance.New(client, current.logger).EnsureCheckedIn(ctx, id.UserID, model.Location{Lat: lat, Lng: lng})
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintln(cmd.OutOrStdout(), "Checked in")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Already checked in today")
			}
			return nil
		},
	}
	cmd.Flags().Float64Var(&lat, "lat", 0, "Latitude")
	cmd.Flags().Float64Var(&lng, "lng", 0, "Longitude")
	return cmd
}

func newWorkspaceCmd() *cobra.Command {
	var contingency, cached bool
	var areaID int64
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Load the assigned area with its tasks and contingencies",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if cached {
				return printMarkdown(cmd, workspaceMarkdown(workspace.Snapshot(ctx, current.sess)))
			}
			client, id, err := current.client(ctx)
			if err != nil {
				return err
			}
			opts := workspace.Options{Type: model.ReportStandard, AreaID: model.ID(areaID)}
			if contingency {
				opts.Type = model.ReportContingency
			}
			state, err := workspace.New(client, current.logger).Load(ctx, current.sess, id.UserID, opts)
			if err != nil {
				return err
			}
			return printMarkdown(cmd, workspaceMarkdown(state))
		},
	}
	cmd.Flags().BoolVar(&contingency, "contingency", false, "Report a contingency instead of routine tasks")
	cmd.Flags().Int64Var(&areaID, "area", 0, "Report for this area instead of the assigned one")
	cmd.Flags().BoolVar(&cached, "cached", false, "Show the cached workspace without calling the backend")
	return cmd
}

func workspaceMarkdown(st workspace.State) string {
	var b strings.Builder
	if !st.Assigned || st.Area == nil {
		b.WriteString("# No area assigned\n\nAsk a supervisor to assign you an area.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "# %s\n\n_%s report_\n\n", st.Area.Label(), st.Type)
	b.WriteString("## Tasks\n\n")
	for _, t := range st.Tasks {
		fmt.Fprintf(&b, "- %s `%d` %s\n", checkbox(st.SelectedTasks, t.ID), t.ID, t.Text)
	}
	b.WriteString("\n## Contingencies\n\n")
	for _, c := range st.Contingencies {
		fmt.Fprintf(&b, "- %s `%d` %s\n", checkbox(st.SelectedContingencies, c.ID), c.ID, c.Name)
	}
	b.WriteString("\n## Photos\n\n")
	for _, slot := range model.Slots {
		if u := st.Photos.Get(slot); u != nil && *u != "" {
			fmt.Fprintf(&b, "- %s: %s\n", slot, *u)
		} else {
			fmt.Fprintf(&b, "- %s: _missing_\n", slot)
		}
	}
	return b.String()
}

func checkbox(selected []model.ID, id model.ID) string {
	for _, s := range selected {
		if s == id {
			return "[x]"
		}
	}
	return "[ ]"
}

func newToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "toggle task|contingency ID",
		Short:     "Mark a task or contingency done, or undo it",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"task", "contingency"},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			id, err := model.ParseID(args[1])
			if err != nil {
				return apperr.Validation(err.Error())
			}
			tracker := progress.New(ctx, current.sess)
			var selected bool
			switch args[0] {
			case "task":
				selected, err = tracker.ToggleTask(ctx, id)
			case "contingency":
				selected, err = tracker.ToggleContingency(ctx, id)
			default:
				return apperr.Validation(fmt.Sprintf("unknown kind %q, want task or contingency", args[0]))
			}
			if err != nil {
				return err
			}
			state := "cleared"
			if selected {
				state = "selected"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %d %s\n", args[0], id, state)
			return nil
		},
	}
}

func newUploadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "upload SLOT FILE",
		Short: "Attach a before, during or after photo",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			slot, err := model.ParseSlot(args[0])
			if err != nil {
				return apperr.Validation(err.Error())
			}
			f, err := os.Open(args[1])
			if err != nil {
				return fmt.Errorf("open photo: %w", err)
			}
			defer f.Close()
			info, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat photo: %w", err)
			}
			uploader := photo.NewImageHost(current.cfg.AssetUploadURL, current.cfg.AssetUploadPreset, current.cfg.APITimeout)
			mgr := photo.NewManager(ctx, uploader, current.sess, photo.Options{
				MaxBytes:     current.cfg.MaxPhotoBytes,
				AllowedTypes: current.cfg.AllowedPhotoTypes,
			}, current.logger)
			url, err := mgr.Upload(ctx, &photo.File{
				Name:        filepath.Base(args[1]),
				ContentType: mime.TypeByExtension(filepath.Ext(args[1])),
				Size:        info.Size(),
				Content:     f,
			}, slot)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s photo saved: %s\n", slot, url)
			return nil
		},
	}
}

func newSubmitCmd() *cobra.Command {
	var contingency bool
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit the cached work as a report",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, id, err := current.client(ctx)
			if err != nil {
				return err
			}
			typ := current.sess.ReportType(ctx)
			if cmd.Flags().Changed("contingency") {
				typ = model.ReportStandard
				if contingency {
					typ = model.ReportContingency
				}
			}
			asm := report.New(client, photo.ParseSlots(current.cfg.RequiredPhotoSlots), current.logger,
				report.WithFanout(current.cfg.FanoutLimit))
			rep, err := asm.Submit(ctx, current.sess, typ, id.UserID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report %d submitted\n", rep.ID)
			return nil
		},
	}
	cmd.Flags().BoolVar(&contingency, "contingency", false, "Submit as a contingency report")
	return cmd
}

func newReportsCmd() *cobra.Command {
	var userID int64
	cmd := &cobra.Command{
		Use:   "reports",
		Short: "List submitted reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, id, err := current.client(ctx)
			if err != nil {
				return err
			}
			who := id.UserID
			if id.IsAdmin() {
				who = model.ID(userID)
			}
			reports, err := client.Reports(ctx, who)
			if err != nil {
				return err
			}
			var b strings.Builder
			b.WriteString("| ID | Submitted | User | Area | Type | Tasks |\n|---|---|---|---|---|---|\n")
			for _, row := range render.IndexRows(reports) {
				r := row.Report
				if row.Err != nil {
					fmt.Fprintf(&b, "| %d | %s | %d | #%d | unreadable | |\n", r.ID, r.CreatedAt.Format("2006-01-02"), r.UserID, r.BucketID)
					continue
				}
				area := fmt.Sprintf("#%d", r.BucketID)
				if row.Content.Area != nil {
					area = row.Content.Area.Label()
				}
				fmt.Fprintf(&b, "| %d | %s | %d | %s | %s | %d |\n", r.ID, r.CreatedAt.Format("2006-01-02"), r.UserID, area, row.Content.Type, len(row.Content.Tasks))
			}
			return printMarkdown(cmd, b.String())
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "Only this user's reports (admins)")
	return cmd
}

// loadReport fetches and parses a report, refreshing names from the catalogs.
func loadReport(cmd *cobra.Command, raw string) (model.ReportContent, error) {
	ctx := cmd.Context()
	id, err := model.ParseID(raw)
	if err != nil {
		return model.ReportContent{}, apperr.Validation(err.Error())
	}
	client, _, err := current.client(ctx)
	if err != nil {
		return model.ReportContent{}, err
	}
	rep, err := client.Report(ctx, id)
	if err != nil {
		return model.ReportContent{}, err
	}
	content, err := render.Parse(rep)
	if err != nil {
		return model.ReportContent{}, err
	}
	return render.Hydrate(ctx, client, content)
}

func newPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview ID",
		Short: "Show a submitted report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := loadReport(cmd, args[0])
			if err != nil {
				return err
			}
			return printMarkdown(cmd, render.Preview(content))
		},
	}
}

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export ID",
		Short: "Render a report to PDF locally",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := loadReport(cmd, args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = fmt.Sprintf("report-%s.pdf", args[0])
			}
			var buf bytes.Buffer
			exporter := render.NewExporter(render.NewHTTPFetcher(current.cfg.APITimeout), current.logger)
			if err := exporter.Export(cmd.Context(), content, &buf); err != nil {
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write pdf: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", output, buf.Len())
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default report-ID.pdf)")
	return cmd
}

func newIndexCmd() *cobra.Command {
	var output string
	var userID int64
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Write a spreadsheet listing reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			client, id, err := current.client(ctx)
			if err != nil {
				return err
			}
			who := id.UserID
			if id.IsAdmin() {
				who = model.ID(userID)
			}
			reports, err := client.Reports(ctx, who)
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := render.ExportIndexXLSX(render.IndexRows(reports), &buf); err != nil {
				return err
			}
			if err := os.WriteFile(output, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write index: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d reports to %s\n", len(reports), output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "reports.xlsx", "Output file")
	cmd.Flags().Int64Var(&userID, "user", 0, "Only this user's reports (admins)")
	return cmd
}

func newAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign USER_ID AREA_ID",
		Short: "Assign a user to an area (admins)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			userID, err := model.ParseID(args[0])
			if err != nil {
				return apperr.Validation(err.Error())
			}
			areaID, err := model.ParseID(args[1])
			if err != nil {
				return apperr.Validation(err.Error())
			}
			client, id, err := current.client(ctx)
			if err != nil {
				return err
			}
			if !id.IsAdmin() {
				return fmt.Errorf("%w: admin role required", apperr.ErrAuth)
			}
			if err := client.AssignArea(ctx, userID, areaID); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %d assigned to area %d\n", userID, areaID)
			return nil
		},
	}
}
