package filemanager

import "strings"

// NamingPolicy enforces the case file naming rules: every renamed file
// carries the "<caseNumber>_" prefix and keeps its original extension.
// Folder names are plain.
type NamingPolicy struct {
	CaseNumber string
}

// Prefix returns the fixed, non-editable file name prefix.
func (p NamingPolicy) Prefix() string {
	return p.CaseNumber + "_"
}

// SplitExtension splits name into base and extension. The extension starts
// at the last "." unless that dot is the first character, so ".env" has no
// extension.
func SplitExtension(name string) (base, ext string) {
	i := strings.LastIndex(name, ".")
	if i <= 0 {
		return name, ""
	}
	return name[:i], name[i:]
}

// EditableBase returns the part of a file name the user is allowed to edit:
// the name without the case prefix and without the extension.
func (p NamingPolicy) EditableBase(name string) string {
	base, _ := SplitExtension(name)
	return strings.TrimPrefix(base, p.Prefix())
}

// RenameFile computes the final server-visible name for a file rename.
// changed is false when the result equals current; the caller then skips the
// network call.
func (p NamingPolicy) RenameFile(current, edited string) (final string, changed bool, err error) {
	text := strings.TrimSpace(edited)
	if err := checkNameChars("name", text); err != nil {
		return "", false, err
	}

	prefix := p.Prefix()
	_, ext := SplitExtension(current)

	text = strings.TrimPrefix(text, prefix)
	if ext != "" {
		text = strings.TrimSuffix(text, ext)
	}
	if text == "" {
		return "", false, &ValidationError{Field: "name", Reason: "name must not be empty"}
	}

	final = prefix + text + ext
	return final, final != current, nil
}

// FolderName validates a plain folder name for create or rename. No prefix
// and no extension handling applies.
func (p NamingPolicy) FolderName(input string) (string, error) {
	name := strings.TrimSpace(input)
	if err := checkNameChars("folder name", name); err != nil {
		return "", err
	}
	return name, nil
}

func checkNameChars(field, name string) error {
	switch {
	case name == "":
		return &ValidationError{Field: field, Reason: "must not be empty"}
	case name == "." || name == "..":
		return &ValidationError{Field: field, Reason: "is reserved"}
	case strings.ContainsAny(name, "/\\"):
		return &ValidationError{Field: field, Reason: "must not contain path separators"}
	}
	return nil
}
