package filemanager

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/wouterc/sagsfiler/pkg/protocol"
)

// fakeAPI is an in-memory API that records every call.
type fakeAPI struct {
	mu       sync.Mutex
	listings map[string][]protocol.ListEntry
	folders  []protocol.FolderEntry
	errs     map[string]error
	calls    []string
	zipPaths []string

	// onList runs before List returns, outside any controller lock.
	onList func(path string)
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		listings: make(map[string][]protocol.ListEntry),
		errs:     make(map[string]error),
	}
}

func (f *fakeAPI) record(op string, args ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, op+" "+strings.Join(args, " "))
	return f.errs[op]
}

// count returns how many recorded calls equal or start with prefix, e.g.
// "move" or "move a.pdf docs".
func (f *fakeAPI) count(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == prefix || strings.HasPrefix(c, prefix+" ") {
			n++
		}
	}
	return n
}

func (f *fakeAPI) List(ctx context.Context, caseID, path string) ([]protocol.ListEntry, error) {
	err := f.record("list", path)
	if f.onList != nil {
		f.onList(path)
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listings[path], nil
}

func (f *fakeAPI) CreateFolder(ctx context.Context, caseID, path, name string) error {
	return f.record("mkdir", path, name)
}

func (f *fakeAPI) Rename(ctx context.Context, caseID, path, newName string) error {
	return f.record("rename", path, newName)
}

func (f *fakeAPI) Move(ctx context.Context, caseID, sourcePath, targetPath string) error {
	return f.record("move", sourcePath, targetPath)
}

func (f *fakeAPI) Delete(ctx context.Context, caseID, path string) error {
	return f.record("delete", path)
}

func (f *fakeAPI) Download(ctx context.Context, caseID, path string, view bool) (io.ReadCloser, error) {
	if err := f.record("download", path); err != nil {
		return nil, err
	}
	return io.NopCloser(strings.NewReader("content of " + path)), nil
}

func (f *fakeAPI) DownloadZip(ctx context.Context, caseID string, paths []string) (io.ReadCloser, error) {
	if err := f.record("zip", paths...); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.zipPaths = append([]string(nil), paths...)
	f.mu.Unlock()
	return io.NopCloser(bytes.NewReader([]byte("PK\x03\x04zip"))), nil
}

func (f *fakeAPI) ListFolders(ctx context.Context, caseID string) ([]protocol.FolderEntry, error) {
	if err := f.record("folders"); err != nil {
		return nil, err
	}
	return f.folders, nil
}

func (f *fakeAPI) DownloadURL(caseID, path string, view bool) string {
	return fmt.Sprintf("https://files.example/%s/download?path=%s", caseID, path)
}

func (f *fakeAPI) ZipURL(caseID string, paths []string) string {
	return fmt.Sprintf("https://files.example/%s/zip?paths=%s", caseID, strings.Join(paths, ","))
}

// memorySaver keeps saved downloads in memory.
type memorySaver struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func (s *memorySaver) Save(name string, content io.Reader) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]byte)
	}
	s.saved[name] = data
	return nil
}

func linked(id int64) *protocol.LinkedInfo {
	return &protocol.LinkedInfo{GroupNumber: "2", GroupName: "Tinglysning", Title: "Skøde", ID: id}
}
