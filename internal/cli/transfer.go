package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/wouterc/sagsfiler/internal/filemanager"
)

// ─── get ────────────────────────────────────────────────────────────────────

func newGetCmd(app *App) *cobra.Command {
	var view bool
	cmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Download one file into --out",
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
			res := ctrl.DownloadFile(ctx, entry, view)
			ctrl.WaitReleased()
			if !res.OK() {
				return report(cmd, ctrl, res)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s).\n",
				filepath.Join(app.OutDir, entry.Name), humanize.Bytes(uint64(entry.SizeBytes)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&view, "view", false, "Request the inline (view) variant")
	return cmd
}

// ─── put ────────────────────────────────────────────────────────────────────

func newPutCmd(app *App) *cobra.Command {
	var keepName bool
	cmd := &cobra.Command{
		Use:   "put <local-file> [folder]",
		Short: "Upload a file into a folder of the case",
		Long: strings.TrimSpace(`
The stored name gets the case prefix unless it already has it or
--keep-name is given. An existing file with the same name is replaced.`),
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := app.controller(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}

			f, err := os.Open(args[0])
			if err != nil {
				return writeErr(cmd, err)
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return writeErr(cmd, err)
			}
			if st.IsDir() {
				return writeErr(cmd, fmt.Errorf("%s is a directory", args[0]))
			}

			name := filepath.Base(args[0])
			if prefix := ctrl.Naming().Prefix(); !keepName && !strings.HasPrefix(name, prefix) {
				name = prefix + name
			}
			folder := ""
			if len(args) == 2 {
				folder = args[1]
			}
			target := filemanager.JoinPath(filemanager.NormalizePath(folder), name)

			resp, err := app.api().Upload(ctx, app.CaseID, target, f, st.Size())
			if err != nil {
				return writeErr(cmd, fmt.Errorf("%s", filemanager.ErrorMessage(err)))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%s).\n", resp.Path, humanize.Bytes(uint64(resp.Size)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&keepName, "keep-name", false, "Store the file under its local name")
	return cmd
}

// ─── export ─────────────────────────────────────────────────────────────────

func newExportCmd(app *App) *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "export [file...]",
		Short: "Download selected files of a folder as Sagsfiler_<case number>.zip",
		Long: strings.TrimSpace(`
Selects the named files (names or paths) of --dir, or every file when
none are given, and saves them as one archive in --out.`),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ctrl, err := app.controller(ctx)
			if err != nil {
				return writeErr(cmd, err)
			}
			if err := ctrl.SetPath(ctx, dir); err != nil {
				return writeErr(cmd, err)
			}

			if len(args) == 0 {
				ctrl.SelectAll(true)
			}
			for _, a := range args {
				p := filemanager.NormalizePath(a)
				if !strings.Contains(p, "/") {
					p = filemanager.JoinPath(ctrl.Path(), p)
				}
				if !ctrl.Toggle(p) {
					return writeErr(cmd, fmt.Errorf("not a file in %q: %s", ctrl.Path(), a))
				}
			}
			if len(ctrl.Selected()) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No files to export.")
				return nil
			}

			res := ctrl.ExportSelected(ctx)
			ctrl.WaitReleased()
			return report(cmd, ctrl, res)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Folder the files are selected from")
	return cmd
}
