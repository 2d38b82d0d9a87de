package filemanager

import "sort"

// DialogKind identifies the modal being shown.
type DialogKind int

const (
	DialogNone DialogKind = iota
	DialogConfirmDelete
	DialogCreateFolder
	DialogRenameFolder
	DialogRenameFile
	DialogMovePicker
	DialogBlockedInfo
)

func (k DialogKind) String() string {
	switch k {
	case DialogConfirmDelete:
		return "confirm-delete"
	case DialogCreateFolder:
		return "prompt:create-folder"
	case DialogRenameFolder:
		return "prompt:rename-folder"
	case DialogRenameFile:
		return "rename-file"
	case DialogMovePicker:
		return "move-picker"
	case DialogBlockedInfo:
		return "blocked-info"
	default:
		return "none"
	}
}

// Dialog is the state of the single open modal.
type Dialog struct {
	Kind   DialogKind
	Target FileEntry

	// Initial is the pre-filled text of a prompt. For rename-file it is the
	// editable base only; Prefix and Extension are shown as fixed labels.
	Initial   string
	Prefix    string
	Extension string

	// Folders lists move-picker destinations.
	Folders []Folder

	Blocked *BlockedOperation
}

// Dialogs sequences modals: at most one is open, and opening never replaces
// an open one.
type Dialogs struct {
	active *Dialog
}

// Open shows d. It fails with ErrDialogActive when another dialog is open.
func (o *Dialogs) Open(d Dialog) error {
	if o.active != nil {
		return ErrDialogActive
	}
	if d.Kind == DialogNone {
		return nil
	}
	o.active = &d
	return nil
}

// Close dismisses the open dialog, if any, and returns it.
func (o *Dialogs) Close() (Dialog, bool) {
	if o.active == nil {
		return Dialog{}, false
	}
	d := *o.active
	o.active = nil
	return d, true
}

// Active returns the open dialog.
func (o *Dialogs) Active() (Dialog, bool) {
	if o.active == nil {
		return Dialog{}, false
	}
	return *o.active, true
}

// renameFileDialog builds the rename dialog for a file: the prefix is a
// fixed label and only the base name is editable.
func renameFileDialog(policy NamingPolicy, entry FileEntry) Dialog {
	_, ext := SplitExtension(entry.Name)
	return Dialog{
		Kind:      DialogRenameFile,
		Target:    entry,
		Initial:   policy.EditableBase(entry.Name),
		Prefix:    policy.Prefix(),
		Extension: ext,
	}
}

// moveDestinations filters the case folder list for moving source: the
// source folder and everything below it are removed, and the case root is
// offered first.
func moveDestinations(caseNumber string, source FileEntry, folders []Folder) []Folder {
	out := []Folder{{Name: caseNumber, Path: ""}}
	for _, f := range folders {
		p := NormalizePath(f.Path)
		if p == "" {
			continue
		}
		if source.IsDirectory && IsSameOrDescendant(p, source.Path) {
			continue
		}
		out = append(out, Folder{Name: f.Name, Path: p})
	}
	sort.SliceStable(out[1:], func(i, j int) bool { return out[1+i].Path < out[1+j].Path })
	return out
}
