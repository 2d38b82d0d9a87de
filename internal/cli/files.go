package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wouterc/sagsfiler/internal/filemanager"
)

var errBlocked = errors.New("blocked by a checklist link")

// lookup navigates to the parent of p and returns its listing row.
func lookup(ctx context.Context, ctrl *filemanager.Controller, p string) (filemanager.FileEntry, error) {
	p = filemanager.NormalizePath(p)
	if p == "" {
		return filemanager.FileEntry{}, errors.New("the case root cannot be changed")
	}
	if err := ctrl.SetPath(ctx, filemanager.ParentPath(p)); err != nil {
		return filemanager.FileEntry{}, err
	}
	e, ok := ctrl.Listing().Find(p)
	if !ok {
		return filemanager.FileEntry{}, fmt.Errorf("not found: %s", p)
	}
	return e, nil
}

// report prints the outcome of a mutation. A blocked result prints the
// linked checklist item and its deep link, resolving the blocked dialog.
func report(cmd *cobra.Command, ctrl *filemanager.Controller, res filemanager.Result) error {
	out := cmd.OutOrStdout()
	switch res.Kind {
	case filemanager.ResultBlocked:
		fmt.Fprintln(cmd.ErrOrStderr(), res.Blocked.Describe())
		if u, err := ctrl.ShowLinkedItem(); err == nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Show item: %s\n", u)
		}
		return errBlocked
	case filemanager.ResultError:
		ctrl.Notices()
		return writeErr(cmd, errors.New(res.Message))
	}
	if res.NoOp {
		fmt.Fprintln(out, "Nothing to do.")
		return nil
	}
	for _, n := range ctrl.Notices() {
		fmt.Fprintln(out, n.Message)
	}
	return nil
}

// ─── ls ─────────────────────────────────────────────────────────────────────

func newLsCmd(app *App) *cobra.Command {
	var address string
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a folder of the case",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := app.controller(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			switch {
			case address != "":
				err = ctrl.SetAddress(ctx, address)
			case len(args) == 1:
				err = ctrl.SetPath(ctx, args[0])
			default:
				err = ctrl.SetPath(ctx, "")
			}
			if err != nil {
				return writeErr(cmd, err)
			}
			renderView(cmd.OutOrStdout(), ctrl.Snapshot(), time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&address, "address", "", "Shareable address (?path=...) to open")
	return cmd
}

func renderView(w io.Writer, v filemanager.View, now time.Time) {
	crumbs := make([]string, 0, len(v.Breadcrumbs))
	for _, b := range v.Breadcrumbs {
		crumbs = append(crumbs, b.Label)
	}
	fmt.Fprintln(w, strings.Join(crumbs, " / "))
	if v.Address != "" {
		fmt.Fprintf(w, "address: ?%s\n", v.Address)
	}

	if len(v.Listing.Entries) == 0 {
		fmt.Fprintln(w, "(empty folder)")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, e := range v.Listing.Entries {
		name, size := e.Name, humanize.Bytes(uint64(e.SizeBytes))
		if e.IsDirectory {
			name, size = e.Name+"/", "-"
		}
		linked := ""
		if e.LinkedInfo != nil {
			linked = fmt.Sprintf("linked: %s %s", e.LinkedInfo.GroupNumber, e.LinkedInfo.Title)
		}
		modified := "-"
		if e.ModifiedAt > 0 {
			modified = humanize.RelTime(time.Unix(e.ModifiedAt, 0), now, "ago", "from now")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", name, size, modified, linked)
	}
	tw.Flush()
}

// ─── folders ────────────────────────────────────────────────────────────────

func newFoldersCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "folders <path>",
		Short: "List the folders <path> can be moved to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := app.controller(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			entry, err := lookup(ctx, ctrl, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := ctrl.OpenMovePicker(ctx, entry); err != nil {
				return writeErr(cmd, err)
			}
			defer ctrl.DismissDialog()

			d, _ := ctrl.Dialog()
			if d.Kind == filemanager.DialogBlockedInfo {
				return report(cmd, ctrl, filemanager.Result{Kind: filemanager.ResultBlocked, Blocked: d.Blocked})
			}
			for _, f := range d.Folders {
				label := f.Path
				if label == "" {
					label = f.Name + " (root)"
				}
				fmt.Fprintln(cmd.OutOrStdout(), label)
			}
			return nil
		},
	}
}

// ─── mkdir / rename ─────────────────────────────────────────────────────────

func newMkdirCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mkdir <parent> <name>",
		Short: "Create a folder",
		Example: strings.TrimSpace(`
  sagsfiler mkdir "" Breve
  sagsfiler mkdir Breve Udgående`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := app.controller(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := ctrl.SetPath(ctx, args[0]); err != nil {
				return writeErr(cmd, err)
			}
			if err := ctrl.RequestCreateFolder(); err != nil {
				return writeErr(cmd, err)
			}
			return report(cmd, ctrl, ctrl.SubmitPrompt(ctx, args[1]))
		},
	}
}

func newRenameCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <path> <new-name>",
		Short: "Rename a file or folder",
		Long: strings.TrimSpace(`
Files keep the case prefix and their extension: only the base name is
replaced, so "brev" renames 1042_notat.pdf to 1042_brev.pdf. Folders take
the new name as given.`),
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := app.controller(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			entry, err := lookup(ctx, ctrl, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := ctrl.RequestRename(entry); err != nil {
				return writeErr(cmd, err)
			}
			return report(cmd, ctrl, ctrl.SubmitPrompt(ctx, args[1]))
		},
	}
}

// ─── mv / rm ────────────────────────────────────────────────────────────────

func newMvCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <path> <target-folder>",
		Short: "Move a file or folder into another folder",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := app.controller(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			entry, err := lookup(ctx, ctrl, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := ctrl.OpenMovePicker(ctx, entry); err != nil {
				return writeErr(cmd, err)
			}
			if d, _ := ctrl.Dialog(); d.Kind == filemanager.DialogBlockedInfo {
				return report(cmd, ctrl, filemanager.Result{Kind: filemanager.ResultBlocked, Blocked: d.Blocked})
			}
			return report(cmd, ctrl, ctrl.ChooseMoveTarget(ctx, args[1]))
		},
	}
}

func newRmCmd(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "rm <path>",
		Short: "Delete a file or folder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := app.controller(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			entry, err := lookup(ctx, ctrl, args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := ctrl.RequestDelete(entry); err != nil {
				return writeErr(cmd, err)
			}
			if d, _ := ctrl.Dialog(); d.Kind == filemanager.DialogBlockedInfo {
				return report(cmd, ctrl, filemanager.Result{Kind: filemanager.ResultBlocked, Blocked: d.Blocked})
			}
			if !yes && !confirm(cmd, fmt.Sprintf("Delete %q?", entry.Name)) {
				ctrl.DismissDialog()
				fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
				return nil
			}
			return report(cmd, ctrl, ctrl.ConfirmDelete(ctx))
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Do not ask for confirmation")
	return cmd
}

func confirm(cmd *cobra.Command, question string) bool {
	fmt.Fprintf(cmd.OutOrStdout(), "%s [y/N] ", question)
	line, _ := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes", "j", "ja":
		return true
	}
	return false
}
