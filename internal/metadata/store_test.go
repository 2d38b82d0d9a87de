package metadata

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(DriverSQLite, "file:"+filepath.Join(t.TempDir(), "meta.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	return s
}

func mustDir(t *testing.T, s *Store, parent, name string) {
	t.Helper()
	if _, err := s.CreateDir(context.Background(), "c1", parent, name); err != nil {
		t.Fatalf("CreateDir %s/%s: %v", parent, name, err)
	}
}

func mustFile(t *testing.T, s *Store, p, key string) {
	t.Helper()
	if _, err := s.PutFile(context.Background(), &FileRow{CaseID: "c1", Path: p, Size: 3, ObjectKey: key}); err != nil {
		t.Fatalf("PutFile %s: %v", p, err)
	}
}

func paths(rows []*FileRow) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Path
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	if got := pg.rebind("a = ? AND b = ?"); got != "a = $1 AND b = $2" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestCases(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetCase(ctx, "c1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpsertCase(ctx, "c1", "41"); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertCase(ctx, "c1", "42"); err != nil {
		t.Fatal(err)
	}
	c, err := s.GetCase(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if c.Number != "42" {
		t.Errorf("expected case number 42, got %s", c.Number)
	}
}

func TestListDirOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustFile(t, s, "b.pdf", "k1")
	mustDir(t, s, "", "zeta")
	mustFile(t, s, "a.pdf", "k2")
	mustDir(t, s, "", "alpha")
	mustFile(t, s, "alpha/inner.txt", "k3")

	rows, err := s.ListDir(ctx, "c1", "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"alpha", "zeta", "a.pdf", "b.pdf"}
	if got := paths(rows); !equal(got, want) {
		t.Errorf("ListDir = %v, want %v", got, want)
	}

	rows, err = s.ListDir(ctx, "c1", "alpha")
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Name != "inner.txt" || rows[0].ParentPath != "alpha" {
		t.Errorf("unexpected children %+v", rows)
	}

	if _, err := s.ListDir(ctx, "c1", "a.pdf"); !errors.Is(err, ErrNotDir) {
		t.Errorf("expected ErrNotDir, got %v", err)
	}
	if _, err := s.ListDir(ctx, "c1", "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	other, err := s.ListDir(ctx, "c2", "")
	if err != nil || len(other) != 0 {
		t.Errorf("cases must not share entries: %v, %v", other, err)
	}
}

func TestCreateDirConflicts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustDir(t, s, "", "docs")
	if _, err := s.CreateDir(ctx, "c1", "", "docs"); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
	if _, err := s.CreateDir(ctx, "c1", "nope", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing parent, got %v", err)
	}
	if _, err := s.CreateDir(ctx, "c1", "", "a/b"); err == nil {
		t.Error("expected invalid name error")
	}

	folders, err := s.ListFolders(ctx, "c1")
	if err != nil || len(folders) != 1 || folders[0].Path != "docs" {
		t.Errorf("unexpected folders %v, %v", folders, err)
	}
}

func TestPutFileReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustFile(t, s, "a.pdf", "old")
	old, err := s.PutFile(ctx, &FileRow{CaseID: "c1", Path: "a.pdf", Size: 9, ObjectKey: "new"})
	if err != nil {
		t.Fatal(err)
	}
	if old != "old" {
		t.Errorf("expected previous key old, got %q", old)
	}
	r, err := s.Get(ctx, "c1", "a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if r.ObjectKey != "new" || r.Size != 9 {
		t.Errorf("unexpected row %+v", r)
	}

	mustDir(t, s, "", "docs")
	if _, err := s.PutFile(ctx, &FileRow{CaseID: "c1", Path: "docs", ObjectKey: "x"}); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists over a directory, got %v", err)
	}
}

func TestRenameDirectoryMovesDescendantsAndLinks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustDir(t, s, "", "docs")
	mustDir(t, s, "docs", "sub")
	mustFile(t, s, "docs/sub/skøde.pdf", "k1")
	mustFile(t, s, "docs-other.txt", "k2")
	if err := s.SetLink(ctx, "c1", Link{Path: "docs/sub/skøde.pdf", ItemID: 7, Title: "Skøde"}); err != nil {
		t.Fatal(err)
	}

	newPath, err := s.Rename(ctx, "c1", "docs", "bilag")
	if err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if newPath != "bilag" {
		t.Errorf("expected bilag, got %s", newPath)
	}

	tree, err := s.Subtree(ctx, "c1", "")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"bilag", "bilag/sub", "bilag/sub/skøde.pdf", "docs-other.txt"}
	if got := paths(tree); !equal(got, want) {
		t.Errorf("tree = %v, want %v", got, want)
	}

	r, err := s.Get(ctx, "c1", "bilag/sub/skøde.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if r.ParentPath != "bilag/sub" {
		t.Errorf("parent not rewritten: %s", r.ParentPath)
	}
	if r.Link == nil || r.Link.ItemID != 7 {
		t.Errorf("link did not follow rename: %+v", r.Link)
	}
}

func TestMoveRules(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustDir(t, s, "", "a")
	mustDir(t, s, "a", "b")
	mustDir(t, s, "", "c")
	mustFile(t, s, "a/b/x.txt", "k1")
	mustFile(t, s, "c/x.txt", "k2")
	mustFile(t, s, "y.txt", "k3")

	if _, err := s.Move(ctx, "c1", "a", "a/b"); !errors.Is(err, ErrIntoSelf) {
		t.Errorf("expected ErrIntoSelf, got %v", err)
	}
	if _, err := s.Move(ctx, "c1", "a", "a"); !errors.Is(err, ErrIntoSelf) {
		t.Errorf("expected ErrIntoSelf for self target, got %v", err)
	}
	if _, err := s.Move(ctx, "c1", "a/b/x.txt", "c"); !errors.Is(err, ErrExists) {
		t.Errorf("expected ErrExists, got %v", err)
	}
	if _, err := s.Move(ctx, "c1", "y.txt", "y.txt"); !errors.Is(err, ErrNotDir) {
		t.Errorf("expected ErrNotDir, got %v", err)
	}

	got, err := s.Move(ctx, "c1", "a/b", "")
	if err != nil {
		t.Fatalf("Move: %v", err)
	}
	if got != "b" {
		t.Errorf("expected b, got %s", got)
	}
	if _, err := s.Get(ctx, "c1", "b/x.txt"); err != nil {
		t.Errorf("descendant not moved: %v", err)
	}

	same, err := s.Move(ctx, "c1", "y.txt", "")
	if err != nil || same != "y.txt" {
		t.Errorf("move to current parent should be a no-op, got %s, %v", same, err)
	}
}

func TestLinkedBlocksMoveAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	mustDir(t, s, "", "docs")
	mustFile(t, s, "docs/a.pdf", "k1")
	mustFile(t, s, "docs/b.pdf", "k2")
	mustDir(t, s, "", "arkiv")
	if err := s.SetLink(ctx, "c1", Link{Path: "docs/b.pdf", ItemID: 12, GroupNumber: "3", GroupName: "Skøde", Title: "Underskrevet"}); err != nil {
		t.Fatal(err)
	}

	_, err := s.Delete(ctx, "c1", "docs")
	var le *LinkedError
	if !errors.As(err, &le) {
		t.Fatalf("expected LinkedError, got %v", err)
	}
	if le.Link.Path != "docs/b.pdf" || le.Link.Info().ID != 12 || le.Link.Info().GroupNumber != "3" {
		t.Errorf("unexpected link details %+v", le.Link)
	}

	if _, err := s.Move(ctx, "c1", "docs", "arkiv"); !errors.As(err, &le) {
		t.Errorf("expected LinkedError on move, got %v", err)
	}

	if _, err := s.Rename(ctx, "c1", "docs/b.pdf", "c.pdf"); err != nil {
		t.Errorf("rename of a linked entry is allowed, got %v", err)
	}

	keys, err := s.Delete(ctx, "c1", "docs/a.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if !equal(keys, []string{"k1"}) {
		t.Errorf("unexpected keys %v", keys)
	}

	if err := s.RemoveLink(ctx, "c1", "docs/c.pdf"); err != nil {
		t.Fatalf("RemoveLink: %v", err)
	}
	if err := s.RemoveLink(ctx, "c1", "docs/c.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	keys, err = s.Delete(ctx, "c1", "docs")
	if err != nil {
		t.Fatal(err)
	}
	if !equal(keys, []string{"k2"}) {
		t.Errorf("unexpected keys %v", keys)
	}
	if _, err := s.Get(ctx, "c1", "docs"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected docs gone, got %v", err)
	}
}

func TestRootIsImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Delete(ctx, "c1", ""); !errors.Is(err, ErrRoot) {
		t.Errorf("expected ErrRoot, got %v", err)
	}
	if _, err := s.Rename(ctx, "c1", "", "x"); !errors.Is(err, ErrRoot) {
		t.Errorf("expected ErrRoot, got %v", err)
	}
	if err := s.SetLink(ctx, "c1", Link{Path: "missing.pdf", ItemID: 1}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound linking a missing entry, got %v", err)
	}
}

func TestCleanPath(t *testing.T) {
	cases := map[string]string{
		"":            "",
		"/":           "",
		"/docs/a.pdf": "docs/a.pdf",
		"docs//sub/":  "docs/sub",
		"./docs":      "docs",
		`docs\a.pdf`:  "docs/a.pdf",
	}
	for in, want := range cases {
		got, err := CleanPath(in)
		if err != nil || got != want {
			t.Errorf("CleanPath(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"..", "docs/../../etc", "../x"} {
		if _, err := CleanPath(bad); err == nil {
			t.Errorf("CleanPath(%q) should fail", bad)
		}
	}
}
