package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/internal/auth"
	"github.com/wouterc/sagsfiler/internal/filemanager"
	"github.com/wouterc/sagsfiler/internal/logging"
	"github.com/wouterc/sagsfiler/pkg/protocol"
	"github.com/wouterc/sagsfiler/pkg/retry"
)

// ─── case ───────────────────────────────────────────────────────────────────

func newCaseCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "case",
		Short: "Show or register the selected case",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireCase(); err != nil {
				return writeErr(cmd, err)
			}
			info, err := app.api().Case(cmd.Context(), app.CaseID)
			if err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "case %s: number %s, export name %s\n",
				info.ID, info.CaseNumber, filemanager.ExportName(info.CaseNumber))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "register <case-number>",
		Short: "Register the case number used for file prefixes and exports",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireCase(); err != nil {
				return writeErr(cmd, err)
			}
			if err := app.api().RegisterCase(cmd.Context(), app.CaseID, args[0]); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "case %s registered as %s\n", app.CaseID, args[0])
			return nil
		},
	})
	return cmd
}

// ─── link / unlink ──────────────────────────────────────────────────────────

func newLinkCmd(app *App) *cobra.Command {
	var item protocol.LinkedInfo
	cmd := &cobra.Command{
		Use:   "link <path> <item-id>",
		Short: "Bind a file or folder to a checklist item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireCase(); err != nil {
				return writeErr(cmd, err)
			}
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil || id <= 0 {
				return writeErr(cmd, fmt.Errorf("invalid item id %q", args[1]))
			}
			item.ID = id
			p := filemanager.NormalizePath(args[0])
			if err := app.api().Link(cmd.Context(), app.CaseID, p, item); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s linked to checklist item %d\n", p, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&item.GroupNumber, "group-number", "", "Checklist group number")
	cmd.Flags().StringVar(&item.GroupName, "group-name", "", "Checklist group name")
	cmd.Flags().StringVar(&item.Title, "title", "", "Checklist item title")
	return cmd
}

func newUnlinkCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "unlink <path>",
		Short: "Remove the checklist binding of a file or folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.requireCase(); err != nil {
				return writeErr(cmd, err)
			}
			p := filemanager.NormalizePath(args[0])
			if err := app.api().Unlink(cmd.Context(), app.CaseID, p); err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s unlinked\n", p)
			return nil
		},
	}
}

// ─── watch ──────────────────────────────────────────────────────────────────

func newWatchCmd(app *App) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow changes to the case and re-list --dir when it is touched",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := app.controller(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := ctrl.SetPath(ctx, dir); err != nil {
				return writeErr(cmd, err)
			}
			out := cmd.OutOrStdout()
			renderView(out, ctrl.Snapshot(), time.Now())

			events, errs := app.api().Watch(ctx, app.CaseID, retry.DefaultConfig())
			for {
				select {
				case <-ctx.Done():
					return nil
				case err, ok := <-errs:
					if !ok {
						errs = nil
						continue
					}
					logging.Debug("event stream error", zap.Error(err))
				case ev, ok := <-events:
					if !ok {
						return nil
					}
					fmt.Fprintln(out, describeEvent(ev))
					refreshed, err := ctrl.ApplyEvent(ctx, ev)
					if err != nil {
						fmt.Fprintln(cmd.ErrOrStderr(), filemanager.ErrorMessage(err))
						continue
					}
					if refreshed {
						renderView(out, ctrl.Snapshot(), time.Now())
					}
				}
			}
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Folder to keep listed")
	return cmd
}

func describeEvent(ev protocol.CaseEvent) string {
	if ev.OldPath != "" {
		return fmt.Sprintf("%s: %s -> %s", ev.Type, ev.OldPath, ev.Path)
	}
	return fmt.Sprintf("%s: %s", ev.Type, ev.Path)
}

// ─── token ──────────────────────────────────────────────────────────────────

func newTokenCmd(app *App) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token [case...]",
		Short: "Mint an access token signed with JWT_SECRET",
		Long: strings.TrimSpace(`
Issues a token limited to the given cases (default: --case). Intended for
operators and scripts; the case application issues tokens for users.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := os.Getenv("JWT_SECRET")
			if secret == "" {
				return writeErr(cmd, errors.New("JWT_SECRET is not set"))
			}
			cases := args
			if len(cases) == 0 {
				if err := app.requireCase(); err != nil {
					return writeErr(cmd, err)
				}
				cases = []string{app.CaseID}
			}
			tok, exp, err := auth.New(secret).IssueToken(subject, cases, ttl)
			if err != nil {
				return writeErr(cmd, err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", exp.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "sagsfiler-cli", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	return cmd
}
