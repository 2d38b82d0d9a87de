package filemanager

import (
	"context"
	"fmt"
)

// Dialog flows: each Request* opens one modal, and the matching Submit or
// Confirm call closes it before doing the work, so a follow-up dialog (for
// example blocked-info after a refused delete) never competes with it.

// Dialog returns the open dialog.
func (c *Controller) Dialog() (Dialog, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialogs.Active()
}

// DismissDialog closes the open dialog without acting.
func (c *Controller) DismissDialog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialogs.Close()
}

func (c *Controller) openDialog(d Dialog) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialogs.Open(d)
}

func (c *Controller) closeDialog(kinds ...DialogKind) (Dialog, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.dialogs.Active()
	if !ok {
		return Dialog{}, fmt.Errorf("no dialog open")
	}
	for _, k := range kinds {
		if d.Kind == k {
			c.dialogs.Close()
			return d, nil
		}
	}
	return Dialog{}, fmt.Errorf("open dialog is %s", d.Kind)
}

// RequestDelete asks for confirmation, or shows the blocked-info dialog
// straight away for a linked entry.
func (c *Controller) RequestDelete(entry FileEntry) error {
	if b := c.guard.Check(ActionDelete, entry); b != nil {
		return c.openDialog(Dialog{Kind: DialogBlockedInfo, Target: entry, Blocked: b})
	}
	return c.openDialog(Dialog{Kind: DialogConfirmDelete, Target: entry})
}

// ConfirmDelete closes the confirm dialog and deletes its target.
func (c *Controller) ConfirmDelete(ctx context.Context) Result {
	d, err := c.closeDialog(DialogConfirmDelete)
	if err != nil {
		return errorResult(err, err.Error())
	}
	return c.Delete(ctx, d.Target)
}

// RequestCreateFolder opens the folder name prompt.
func (c *Controller) RequestCreateFolder() error {
	return c.openDialog(Dialog{Kind: DialogCreateFolder})
}

// RequestRename opens the rename dialog matching the entry kind.
func (c *Controller) RequestRename(entry FileEntry) error {
	if entry.IsDirectory {
		return c.openDialog(Dialog{Kind: DialogRenameFolder, Target: entry, Initial: entry.Name})
	}
	return c.openDialog(renameFileDialog(c.naming, entry))
}

// ValidatePrompt reports whether text may be submitted to the open prompt.
// The UI keeps the confirm button disabled while it returns an error.
func (c *Controller) ValidatePrompt(text string) error {
	d, ok := c.Dialog()
	if !ok {
		return fmt.Errorf("no dialog open")
	}
	switch d.Kind {
	case DialogCreateFolder, DialogRenameFolder:
		_, err := c.naming.FolderName(text)
		return err
	case DialogRenameFile:
		_, _, err := c.naming.RenameFile(d.Target.Name, text)
		return err
	default:
		return fmt.Errorf("open dialog is %s", d.Kind)
	}
}

// SubmitPrompt applies text to the open create/rename prompt. Invalid text
// leaves the dialog open and never reaches the network.
func (c *Controller) SubmitPrompt(ctx context.Context, text string) Result {
	if err := c.ValidatePrompt(text); err != nil {
		return validationResult(err)
	}
	d, err := c.closeDialog(DialogCreateFolder, DialogRenameFolder, DialogRenameFile)
	if err != nil {
		return errorResult(err, err.Error())
	}
	if d.Kind == DialogCreateFolder {
		return c.CreateFolder(ctx, text)
	}
	return c.Rename(ctx, d.Target, text)
}

// OpenMovePicker loads every folder of the case and opens the picker for entry.
func (c *Controller) OpenMovePicker(ctx context.Context, entry FileEntry) error {
	if _, open := c.Dialog(); open {
		return ErrDialogActive
	}
	if b := c.guard.Check(ActionMove, entry); b != nil {
		return c.openDialog(Dialog{Kind: DialogBlockedInfo, Target: entry, Blocked: b})
	}
	rows, err := c.api.ListFolders(ctx, c.caseID)
	if err != nil {
		c.notice(NoticeError, ErrorMessage(err))
		return fmt.Errorf("list folders: %w", err)
	}
	folders := make([]Folder, 0, len(rows))
	for _, r := range rows {
		folders = append(folders, Folder{Name: r.Name, Path: NormalizePath(r.Path)})
	}
	return c.openDialog(Dialog{
		Kind:    DialogMovePicker,
		Target:  entry,
		Folders: moveDestinations(c.caseNumber, entry, folders),
	})
}

// ChooseMoveTarget closes the picker and moves its entry into target.
func (c *Controller) ChooseMoveTarget(ctx context.Context, target string) Result {
	d, err := c.closeDialog(DialogMovePicker)
	if err != nil {
		return errorResult(err, err.Error())
	}
	return c.Move(ctx, MoveIntent{Source: d.Target, TargetPath: target, Origin: OriginPicker})
}

// ShowLinkedItem resolves the blocked-info dialog: it closes it and returns
// the checklist deep link to navigate to.
func (c *Controller) ShowLinkedItem() (string, error) {
	d, err := c.closeDialog(DialogBlockedInfo)
	if err != nil {
		return "", err
	}
	return c.guard.ShowItemURL(d.Blocked), nil
}
