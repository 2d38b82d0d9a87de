// Package protocol defines the API request/response types.
package protocol

// ErrorLinked is the error value the server uses when a mutation is refused
// because the entry (or something below it) is bound to a checklist item.
const ErrorLinked = "linked"

// ErrorResponse is returned on API errors.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    int         `json:"code,omitempty"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

// LinkedInfo identifies the checklist line item an entry is bound to.
type LinkedInfo struct {
	GroupNumber string `json:"gruppe_nr" mapstructure:"gruppe_nr"`
	GroupName   string `json:"gruppe_navn" mapstructure:"gruppe_navn"`
	Title       string `json:"titel" mapstructure:"titel"`
	ID          int64  `json:"id" mapstructure:"id"`
}

// LinkedErrorResponse is the 409 body for a mutation blocked by a link.
type LinkedErrorResponse struct {
	Error   string     `json:"error"`
	Details LinkedInfo `json:"details"`
}

// ListEntry is one row of GET /api/v1/cases/{caseId}/files.
type ListEntry struct {
	Path       string      `json:"path"`
	Name       string      `json:"name"`
	IsDir      bool        `json:"is_dir"`
	Size       int64       `json:"size"`
	Modified   int64       `json:"modified"`
	LinkedInfo *LinkedInfo `json:"linked_info,omitempty"`
}

// FolderEntry is one row of GET /api/v1/cases/{caseId}/folders.
type FolderEntry struct {
	Name string `json:"name"`
	Path string `json:"path"`
}

// CreateFolderRequest is the body for POST /api/v1/cases/{caseId}/folders.
type CreateFolderRequest struct {
	Path string `json:"path"`
	Name string `json:"name"`
}

// RenameRequest is the body for POST /api/v1/cases/{caseId}/rename.
type RenameRequest struct {
	Path    string `json:"path"`
	NewName string `json:"new_name"`
}

// MoveRequest is the body for POST /api/v1/cases/{caseId}/move.
type MoveRequest struct {
	SourcePath string `json:"source_path"`
	TargetPath string `json:"target_path"`
}

// ZipRequest is the body for POST /api/v1/cases/{caseId}/download-zip.
type ZipRequest struct {
	Paths []string `json:"paths"`
}

// UploadResponse is returned by PUT /api/v1/cases/{caseId}/content.
type UploadResponse struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}

// CaseEvent is published on GET /api/v1/cases/{caseId}/events after a mutation.
type CaseEvent struct {
	Type      string `json:"type"`
	CaseID    string `json:"case_id"`
	Path      string `json:"path"`
	OldPath   string `json:"old_path,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// CaseInfo is the body of GET and PUT /api/v1/cases/{caseId}.
type CaseInfo struct {
	ID         string `json:"id"`
	CaseNumber string `json:"case_number"`
}

// LinkRequest is the body for PUT /api/v1/cases/{caseId}/links. The case
// application calls it when a document is attached to a checklist item.
type LinkRequest struct {
	Path string     `json:"path"`
	Item LinkedInfo `json:"item"`
}
