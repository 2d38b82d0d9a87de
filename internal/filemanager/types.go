// Package filemanager implements the case file manager: directory browsing,
// selection, naming rules, the link guard, the drag engine, batch export and
// the single-dialog orchestration. It is transport-agnostic and talks to the
// server through the API interface.
package filemanager

import (
	"errors"
	"fmt"

	"github.com/wouterc/sagsfiler/pkg/protocol"
)

var (
	// ErrStaleListing is returned when a listing fetch resolved after the
	// navigator had already moved to another path. The result was dropped.
	ErrStaleListing = errors.New("listing superseded by a newer path")

	// ErrActionPending is returned when the same kind of mutation is
	// triggered again while the first request is still in flight.
	ErrActionPending = errors.New("action already in progress")

	// ErrDialogActive is returned when a dialog is opened while another one
	// is showing.
	ErrDialogActive = errors.New("another dialog is open")
)

// LinkedInfo identifies the checklist line item an entry is bound to.
type LinkedInfo struct {
	GroupNumber string
	GroupName   string
	Title       string
	ID          int64
}

// FileEntry is one file or directory in a case. Path is relative to the case
// root, slash separated, without a leading slash.
type FileEntry struct {
	Path        string
	Name        string
	IsDirectory bool
	SizeBytes   int64
	ModifiedAt  int64 // unix seconds
	LinkedInfo  *LinkedInfo
}

// Linked reports whether the entry is bound to a checklist item.
func (e FileEntry) Linked() bool { return e.LinkedInfo != nil }

// DirectoryListing is the server-ordered content of one directory.
type DirectoryListing struct {
	Path    string
	Entries []FileEntry
}

// Find returns the entry with the given path.
func (l DirectoryListing) Find(path string) (FileEntry, bool) {
	for _, e := range l.Entries {
		if e.Path == path {
			return e, true
		}
	}
	return FileEntry{}, false
}

// Files returns the non-directory entries in listing order.
func (l DirectoryListing) Files() []FileEntry {
	var files []FileEntry
	for _, e := range l.Entries {
		if !e.IsDirectory {
			files = append(files, e)
		}
	}
	return files
}

// Folder is one directory as returned by the folder list used by the move picker.
type Folder struct {
	Name string
	Path string
}

// Action is a guarded mutation kind.
type Action string

const (
	ActionDelete Action = "delete"
	ActionMove   Action = "move"
)

// BlockedOperation is a refused mutation on a linked entry. The only way out
// is to open the owning checklist item and remove the link there.
type BlockedOperation struct {
	Action Action
	Item   FileEntry
	Linked LinkedInfo
}

// ResultKind tags a Result.
type ResultKind int

const (
	ResultOK ResultKind = iota
	ResultBlocked
	ResultError
)

func (k ResultKind) String() string {
	switch k {
	case ResultOK:
		return "ok"
	case ResultBlocked:
		return "blocked"
	case ResultError:
		return "error"
	default:
		return fmt.Sprintf("ResultKind(%d)", int(k))
	}
}

// Result is what every mutating call returns. Callers branch on Kind.
type Result struct {
	Kind    ResultKind
	Blocked *BlockedOperation
	Message string
	Err     error

	// NoOp is set when the call was accepted but nothing had to be sent,
	// e.g. a rename to the current name or a drop onto the source itself.
	NoOp bool
}

// OK reports whether the result is a success.
func (r Result) OK() bool { return r.Kind == ResultOK }

func okResult() Result   { return Result{Kind: ResultOK} }
func noOpResult() Result { return Result{Kind: ResultOK, NoOp: true} }

func blockedResult(b *BlockedOperation) Result {
	return Result{Kind: ResultBlocked, Blocked: b}
}

func errorResult(err error, message string) Result {
	return Result{Kind: ResultError, Err: err, Message: message}
}

// ValidationError is a client-side rejection that never reaches the network.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return e.Field + ": " + e.Reason
}

// AsValidation checks if an error is a ValidationError and returns it.
func AsValidation(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

func entryFromProtocol(e protocol.ListEntry) FileEntry {
	entry := FileEntry{
		Path:        NormalizePath(e.Path),
		Name:        e.Name,
		IsDirectory: e.IsDir,
		SizeBytes:   e.Size,
		ModifiedAt:  e.Modified,
	}
	if e.LinkedInfo != nil {
		li := linkedFromProtocol(*e.LinkedInfo)
		entry.LinkedInfo = &li
	}
	return entry
}

func linkedFromProtocol(li protocol.LinkedInfo) LinkedInfo {
	return LinkedInfo{
		GroupNumber: li.GroupNumber,
		GroupName:   li.GroupName,
		Title:       li.Title,
		ID:          li.ID,
	}
}
