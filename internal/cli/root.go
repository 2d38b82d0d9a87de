// Package cli implements the sagsfiler command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/internal/filemanager"
	"github.com/wouterc/sagsfiler/internal/logging"
	"github.com/wouterc/sagsfiler/pkg/client"
)

type App struct {
	Server     string
	Token      string
	CaseID     string
	CaseNumber string
	AppURL     string
	OutDir     string
	Verbose    bool

	client *client.Client
}

func NewRootCmd() *cobra.Command {
	app := &App{}

	cmd := &cobra.Command{
		Use:          "sagsfiler",
		Short:        "Case file manager client",
		SilenceUsage: true,
		Example: strings.TrimSpace(`
  # List the case root
  sagsfiler --case 1042 ls

  # Rename a file; the case prefix and extension are kept
  sagsfiler --case 1042 rename Breve/1042_brev.pdf "brev til ejer"

  # Download two files as Sagsfiler_<case number>.zip
  sagsfiler --case 1042 export --dir Breve a.pdf b.pdf
`),
	}

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level := "warn"
		if app.Verbose {
			level = "debug"
		}
		return logging.Init(logging.Config{Level: level, Format: "console", OutputPath: "stderr"})
	}

	cmd.PersistentFlags().StringVar(&app.Server, "server", envOr("SAGSFILER_SERVER", "http://localhost:8080"), "Server base URL")
	cmd.PersistentFlags().StringVar(&app.Token, "token", envOr("SAGSFILER_TOKEN", ""), "Bearer token")
	cmd.PersistentFlags().StringVar(&app.CaseID, "case", envOr("SAGSFILER_CASE", ""), "Case id")
	cmd.PersistentFlags().StringVar(&app.CaseNumber, "case-number", envOr("SAGSFILER_CASE_NUMBER", ""), "Case number (default: looked up on the server)")
	cmd.PersistentFlags().StringVar(&app.AppURL, "app-url", envOr("SAGSFILER_APP_URL", "http://localhost:3000"), "Web application root for checklist links")
	cmd.PersistentFlags().StringVar(&app.OutDir, "out", ".", "Directory downloads are saved to")
	cmd.PersistentFlags().BoolVarP(&app.Verbose, "verbose", "v", false, "Debug logging on stderr")

	cmd.AddCommand(newLsCmd(app))
	cmd.AddCommand(newFoldersCmd(app))
	cmd.AddCommand(newMkdirCmd(app))
	cmd.AddCommand(newRenameCmd(app))
	cmd.AddCommand(newMvCmd(app))
	cmd.AddCommand(newRmCmd(app))
	cmd.AddCommand(newGetCmd(app))
	cmd.AddCommand(newPutCmd(app))
	cmd.AddCommand(newExportCmd(app))
	cmd.AddCommand(newWatchCmd(app))
	cmd.AddCommand(newCaseCmd(app))
	cmd.AddCommand(newLinkCmd(app))
	cmd.AddCommand(newUnlinkCmd(app))
	cmd.AddCommand(newTokenCmd(app))

	return cmd
}

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func (app *App) api() *client.Client {
	if app.client == nil {
		app.client = client.New(client.Config{
			BaseURL:   app.Server,
			AuthToken: app.Token,
			Logger:    logging.L().Named("client"),
		})
	}
	return app.client
}

func (app *App) requireCase() error {
	if app.CaseID == "" {
		return errors.New("no case selected; pass --case or set SAGSFILER_CASE")
	}
	return nil
}

// controller builds a file manager for the selected case. The case number
// is fetched from the server unless given.
func (app *App) controller(ctx context.Context) (*filemanager.Controller, error) {
	if err := app.requireCase(); err != nil {
		return nil, err
	}
	number := app.CaseNumber
	if number == "" {
		info, err := app.api().Case(ctx, app.CaseID)
		switch {
		case err == nil:
			number = info.CaseNumber
		case isNotFound(err):
			logging.Debug("case not registered, using id as case number", zap.String("case", app.CaseID))
		default:
			return nil, err
		}
	}
	return filemanager.NewController(filemanager.Options{
		CaseID:       app.CaseID,
		CaseNumber:   number,
		AppBaseURL:   app.AppURL,
		API:          app.api(),
		Saver:        filemanager.DirSaver{Dir: app.OutDir},
		Logger:       logging.L().Named("filemanager"),
		ReleaseDelay: 100 * time.Millisecond,
	})
}

func isNotFound(err error) bool {
	ae, ok := client.AsAPIError(err)
	return ok && ae.Status == 404
}

func writeErr(cmd *cobra.Command, err error) error {
	fmt.Fprintln(cmd.ErrOrStderr(), err.Error())
	return err
}
