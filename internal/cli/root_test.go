package cli

import (
	"archive/zip"
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wouterc/sagsfiler/internal/api"
	"github.com/wouterc/sagsfiler/internal/auth"
	"github.com/wouterc/sagsfiler/internal/config"
	"github.com/wouterc/sagsfiler/internal/events"
	"github.com/wouterc/sagsfiler/internal/metadata"
	"github.com/wouterc/sagsfiler/internal/storage/local"
)

type cliEnv struct {
	url   string
	out   string
	store *metadata.Store
}

func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	ctx := context.Background()

	store, err := metadata.Open(metadata.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "meta.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.UpsertCase(ctx, "c1", "42"))

	backend, err := local.New(local.Config{RootPath: t.TempDir(), CreateDirs: true})
	require.NoError(t, err)

	cfg := &config.Config{MaxUploadSize: 1 << 20, MaxZipEntries: 100}
	srv := api.NewServer(store, backend, auth.New(""), events.NewBroadcaster(), cfg)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return &cliEnv{url: ts.URL, out: t.TempDir(), store: store}
}

func (e *cliEnv) run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var outBuf, errBuf bytes.Buffer
	cmd.SetOut(&outBuf)
	cmd.SetErr(&errBuf)
	cmd.SetIn(strings.NewReader(stdin))
	base := []string{"--server", e.url, "--case", "c1", "--app-url", "http://app.test", "--out", e.out}
	cmd.SetArgs(append(base, args...))
	err := cmd.ExecuteContext(context.Background())
	return outBuf.String(), errBuf.String(), err
}

func (e *cliEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, stderr, err := e.run(t, "", args...)
	require.NoError(t, err, "sagsfiler %v\nstderr:\n%s", args, stderr)
	return out
}

func writeLocal(t *testing.T, name, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestPutAppliesCasePrefix(t *testing.T) {
	env := newCLIEnv(t)

	env.mustRun(t, "mkdir", "", "Breve")
	out := env.mustRun(t, "put", writeLocal(t, "notat.pdf", "pdf"), "Breve")
	assert.Contains(t, out, "Uploaded Breve/42_notat.pdf")

	out = env.mustRun(t, "put", "--keep-name", writeLocal(t, "42_kort.png", "png"), "Breve")
	assert.Contains(t, out, "Uploaded Breve/42_kort.png")

	out = env.mustRun(t, "ls", "Breve")
	assert.Contains(t, out, "42 / Breve")
	assert.Contains(t, out, "address: ?path=Breve")
	assert.Contains(t, out, "42_notat.pdf")
	assert.Contains(t, out, "42_kort.png")
}

func TestLsByAddress(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "mkdir", "", "Breve")
	env.mustRun(t, "mkdir", "Breve", "Ind")

	out := env.mustRun(t, "ls", "--address", "?path=Breve")
	assert.Contains(t, out, "Ind/")

	out = env.mustRun(t, "ls", "Breve/Ind")
	assert.Contains(t, out, "(empty folder)")
}

func TestRenameKeepsPrefixAndExtension(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "put", writeLocal(t, "notat.pdf", "pdf"))

	out := env.mustRun(t, "rename", "42_notat.pdf", "brev til ejer")
	assert.Contains(t, out, `Renamed to "42_brev til ejer.pdf".`)

	out = env.mustRun(t, "rename", "42_brev til ejer.pdf", "42_brev til ejer.pdf")
	assert.Contains(t, out, "Nothing to do.")

	_, stderr, err := env.run(t, "", "rename", "42_brev til ejer.pdf", "a/b")
	require.Error(t, err)
	assert.NotEmpty(t, stderr)
}

func TestMove(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "mkdir", "", "A")
	env.mustRun(t, "mkdir", "A", "B")
	env.mustRun(t, "put", writeLocal(t, "x.txt", "x"), "A")

	out := env.mustRun(t, "folders", "A")
	assert.Equal(t, "42 (root)\n", out, "a folder is never offered as its own destination")

	env.mustRun(t, "mv", "A/42_x.txt", "A/B")
	out = env.mustRun(t, "ls", "A/B")
	assert.Contains(t, out, "42_x.txt")

	out = env.mustRun(t, "mv", "A/B/42_x.txt", "A/B")
	assert.Contains(t, out, "Nothing to do.")

	_, stderr, err := env.run(t, "", "mv", "A", "A/B")
	require.Error(t, err)
	assert.Contains(t, stderr, "cannot be moved into itself")
}

func TestLinkedEntryIsBlocked(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "mkdir", "", "Skøde")
	env.mustRun(t, "put", writeLocal(t, "skøde.pdf", "pdf"), "Skøde")
	env.mustRun(t, "link", "Skøde/42_skøde.pdf", "7", "--group-number", "3", "--title", "Tinglyst skøde")

	out := env.mustRun(t, "ls", "Skøde")
	assert.Contains(t, out, "linked: 3 Tinglyst skøde")

	_, stderr, err := env.run(t, "", "rm", "-y", "Skøde/42_skøde.pdf")
	require.ErrorIs(t, err, errBlocked)
	assert.Contains(t, stderr, "cannot be deleted")
	assert.Contains(t, stderr, "Show item: http://app.test/cases/c1/checklist?item=7")

	// A folder containing a linked file is refused by the server.
	_, stderr, err = env.run(t, "", "rm", "-y", "Skøde")
	require.ErrorIs(t, err, errBlocked)
	assert.Contains(t, stderr, "item=7")

	_, stderr, err = env.run(t, "", "mv", "Skøde/42_skøde.pdf", "")
	require.ErrorIs(t, err, errBlocked)
	assert.Contains(t, stderr, "cannot be moved")

	env.mustRun(t, "unlink", "Skøde/42_skøde.pdf")
	out = env.mustRun(t, "rm", "-y", "Skøde")
	assert.Contains(t, out, `"Skøde" deleted.`)
}

func TestRmConfirmation(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "mkdir", "", "Tom")

	out, _, err := env.run(t, "n\n", "rm", "Tom")
	require.NoError(t, err)
	assert.Contains(t, out, "Cancelled.")

	out, _, err = env.run(t, "ja\n", "rm", "Tom")
	require.NoError(t, err)
	assert.Contains(t, out, `"Tom" deleted.`)
}

func TestExport(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "mkdir", "", "Breve")
	env.mustRun(t, "put", writeLocal(t, "a.txt", "aaa"), "Breve")
	env.mustRun(t, "put", writeLocal(t, "b.txt", "bb"), "Breve")
	env.mustRun(t, "mkdir", "Breve", "Ind")

	out := env.mustRun(t, "export", "--dir", "Breve")
	assert.Contains(t, out, "Downloaded 2 files as Sagsfiler_42.zip.")

	zr, err := zip.OpenReader(filepath.Join(env.out, "Sagsfiler_42.zip"))
	require.NoError(t, err)
	defer zr.Close()
	var got []string
	for _, f := range zr.File {
		got = append(got, f.Name)
	}
	sort.Strings(got)
	assert.Equal(t, []string{"42_a.txt", "42_b.txt"}, got)

	_, _, err = env.run(t, "", "export", "--dir", "Breve", "Ind")
	require.Error(t, err, "folders are not selectable")
}

func TestGet(t *testing.T) {
	env := newCLIEnv(t)
	env.mustRun(t, "put", writeLocal(t, "a.txt", "hello"))

	out := env.mustRun(t, "get", "42_a.txt")
	assert.Contains(t, out, "Saved")

	data, err := os.ReadFile(filepath.Join(env.out, "42_a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}

func TestCaseCommands(t *testing.T) {
	env := newCLIEnv(t)

	out := env.mustRun(t, "case")
	assert.Contains(t, out, "number 42, export name Sagsfiler_42.zip")

	env.mustRun(t, "case", "register", "2024-118")
	out = env.mustRun(t, "case")
	assert.Contains(t, out, "Sagsfiler_2024-118.zip")
}

func TestTokenRequiresSecret(t *testing.T) {
	env := newCLIEnv(t)
	t.Setenv("JWT_SECRET", "")
	_, stderr, err := env.run(t, "", "token")
	require.Error(t, err)
	assert.Contains(t, stderr, "JWT_SECRET")

	t.Setenv("JWT_SECRET", "s3cret")
	out := env.mustRun(t, "token")
	claims, err := auth.New("s3cret").ValidateToken(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.True(t, claims.CanAccess("c1"))
	assert.False(t, claims.CanAccess("c2"))
}

func TestMissingCase(t *testing.T) {
	cmd := NewRootCmd()
	var errBuf bytes.Buffer
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&errBuf)
	t.Setenv("SAGSFILER_CASE", "")
	cmd.SetArgs([]string{"--case", "", "ls"})
	require.Error(t, cmd.Execute())
	assert.Contains(t, errBuf.String(), "no case selected")
}
