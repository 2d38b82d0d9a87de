package filemanager

import (
	"context"
	"io"

	"github.com/wouterc/sagsfiler/pkg/protocol"
)

// API is the server contract the file manager depends on. pkg/client
// provides the HTTP implementation; tests use in-memory fakes.
//
// Mutations that are refused because of a checklist link must return an
// error for which client.AsLinked reports true.
type API interface {
	List(ctx context.Context, caseID, path string) ([]protocol.ListEntry, error)
	CreateFolder(ctx context.Context, caseID, path, name string) error
	Rename(ctx context.Context, caseID, path, newName string) error
	Move(ctx context.Context, caseID, sourcePath, targetPath string) error
	Delete(ctx context.Context, caseID, path string) error
	Download(ctx context.Context, caseID, path string, view bool) (io.ReadCloser, error)
	DownloadZip(ctx context.Context, caseID string, paths []string) (io.ReadCloser, error)
	ListFolders(ctx context.Context, caseID string) ([]protocol.FolderEntry, error)

	// DownloadURL and ZipURL return absolute URLs usable without further
	// round trips, for the desktop-export drag descriptor.
	DownloadURL(caseID, path string, view bool) string
	ZipURL(caseID string, paths []string) string
}
