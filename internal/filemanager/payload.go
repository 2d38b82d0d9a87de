package filemanager

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"strings"
)

// Native drag channels.
const (
	PayloadType       = "case-file-ref"
	FormatCaseFileRef = "application/x-case-file-ref"
	FormatText        = "text/plain"
	FormatDownloadURL = "DownloadURL"

	// PayloadMarker prefixes the JSON on the plain-text channel so receivers
	// that only read text can still recognise a case file reference.
	PayloadMarker = "CASEFILE_REF::"
)

// ErrFormatUnsupported is returned by a DataTransfer that cannot carry a format.
var ErrFormatUnsupported = errors.New("drag format not supported")

// DataTransfer is the native drag data store of the host window.
type DataTransfer interface {
	SetData(format, data string) error
	GetData(format string) string
}

// FileRef is the cross-window drag payload.
type FileRef struct {
	Type   string `json:"type"`
	Path   string `json:"path"`
	Name   string `json:"name"`
	CaseID string `json:"caseId"`
}

// EncodePayload writes the reference for a file entry on the structured
// channel and, marker prefixed, on the plain-text channel. Directories are
// not exported across windows.
func EncodePayload(dt DataTransfer, entry FileEntry, caseID string) error {
	if entry.IsDirectory {
		return &ValidationError{Field: "drag", Reason: "folders cannot be dragged out of the window"}
	}
	raw, err := json.Marshal(FileRef{
		Type:   PayloadType,
		Path:   entry.Path,
		Name:   entry.Name,
		CaseID: caseID,
	})
	if err != nil {
		return fmt.Errorf("encode drag payload: %w", err)
	}
	if err := dt.SetData(FormatCaseFileRef, string(raw)); err != nil {
		return fmt.Errorf("set %s: %w", FormatCaseFileRef, err)
	}
	if err := dt.SetData(FormatText, PayloadMarker+string(raw)); err != nil {
		return fmt.Errorf("set %s: %w", FormatText, err)
	}
	return nil
}

// DecodePayload reads a reference from dt. The structured channel wins; the
// plain-text channel is the fallback. References to another case, of another
// type, or malformed data yield ok=false and must be ignored.
func DecodePayload(dt DataTransfer, ownCaseID string) (FileRef, bool) {
	raw := dt.GetData(FormatCaseFileRef)
	if raw == "" {
		text := dt.GetData(FormatText)
		if !strings.HasPrefix(text, PayloadMarker) {
			return FileRef{}, false
		}
		raw = strings.TrimPrefix(text, PayloadMarker)
	}

	var ref FileRef
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return FileRef{}, false
	}
	if ref.Type != PayloadType || ref.CaseID == "" || ref.CaseID != ownCaseID {
		return FileRef{}, false
	}
	ref.Path = NormalizePath(ref.Path)
	if ref.Path == "" {
		return FileRef{}, false
	}
	return ref, true
}

// BatchZipName is the file name of the desktop-export zip for a case.
func BatchZipName(caseID string) string {
	return "Sagsfiler_" + caseID + ".zip"
}

// DownloadDescriptor builds the "<mime>:<filename>:<url>" value a browser
// materialises as a real file when the drag ends on the desktop.
func DownloadDescriptor(mimeType, filename, absoluteURL string) string {
	return mimeType + ":" + filename + ":" + absoluteURL
}

// MimeTypeFor guesses a content type from a file name.
func MimeTypeFor(name string) string {
	_, ext := SplitExtension(name)
	if ct := mime.TypeByExtension(strings.ToLower(ext)); ct != "" {
		if i := strings.Index(ct, ";"); i >= 0 {
			ct = ct[:i]
		}
		return ct
	}
	return "application/octet-stream"
}

// MemoryTransfer is an in-process DataTransfer. Formats listed in Unsupported
// reject SetData, which is how a host without a desktop-export channel
// presents itself.
type MemoryTransfer struct {
	data        map[string]string
	Unsupported map[string]bool
}

// NewMemoryTransfer creates an empty transfer that accepts the given formats
// as unsupported.
func NewMemoryTransfer(unsupported ...string) *MemoryTransfer {
	t := &MemoryTransfer{data: make(map[string]string), Unsupported: make(map[string]bool)}
	for _, f := range unsupported {
		t.Unsupported[f] = true
	}
	return t
}

// SetData stores data for format.
func (t *MemoryTransfer) SetData(format, data string) error {
	if t.Unsupported[format] {
		return ErrFormatUnsupported
	}
	t.data[format] = data
	return nil
}

// GetData returns the data for format or "".
func (t *MemoryTransfer) GetData(format string) string {
	return t.data[format]
}

// Formats returns the formats that carry data.
func (t *MemoryTransfer) Formats() []string {
	out := make([]string, 0, len(t.data))
	for f := range t.data {
		out = append(out, f)
	}
	return out
}
