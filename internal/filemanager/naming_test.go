package filemanager

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitExtension(t *testing.T) {
	tests := []struct {
		name, base, ext string
	}{
		{"report.pdf", "report", ".pdf"},
		{"archive.tar.gz", "archive.tar", ".gz"},
		{"README", "README", ""},
		{".env", ".env", ""},
		{"CASE1_a.b.docx", "CASE1_a.b", ".docx"},
	}
	for _, tt := range tests {
		base, ext := SplitExtension(tt.name)
		assert.Equal(t, tt.base, base, tt.name)
		assert.Equal(t, tt.ext, ext, tt.name)
	}
}

func TestRenameFile(t *testing.T) {
	p := NamingPolicy{CaseNumber: "CASE1"}

	tests := []struct {
		current, edited, want string
		changed               bool
	}{
		{"CASE1_report.pdf", "final", "CASE1_final.pdf", true},
		{"CASE1_report.pdf", "final.pdf", "CASE1_final.pdf", true},
		{"CASE1_report.pdf", "CASE1_final", "CASE1_final.pdf", true},
		{"CASE1_report.pdf", "  final  ", "CASE1_final.pdf", true},
		{"CASE1_report.pdf", "report", "CASE1_report.pdf", false},
		{"scan.jpg", "scan", "CASE1_scan.jpg", true},
		{"notes", "todo", "CASE1_todo", true},
		{"CASE1_report.pdf", "final.docx", "CASE1_final.docx.pdf", true},
	}
	for _, tt := range tests {
		got, changed, err := p.RenameFile(tt.current, tt.edited)
		require.NoError(t, err, "%s -> %q", tt.current, tt.edited)
		assert.Equal(t, tt.want, got, "%s -> %q", tt.current, tt.edited)
		assert.Equal(t, tt.changed, changed, "%s -> %q", tt.current, tt.edited)
	}
}

func TestRenameFile_Invalid(t *testing.T) {
	p := NamingPolicy{CaseNumber: "CASE1"}
	for _, edited := range []string{"", "   ", ".pdf", "CASE1_", "a/b", `a\b`, ".."} {
		_, _, err := p.RenameFile("CASE1_report.pdf", edited)
		require.Error(t, err, "edited %q", edited)
		_, ok := AsValidation(err)
		assert.True(t, ok, "edited %q: expected ValidationError, got %T", edited, err)
	}
}

func TestEditableBase(t *testing.T) {
	p := NamingPolicy{CaseNumber: "CASE1"}
	assert.Equal(t, "report", p.EditableBase("CASE1_report.pdf"))
	assert.Equal(t, "scan", p.EditableBase("scan.jpg"))
	assert.Equal(t, "CASE1_", p.Prefix())
}

func TestFolderName(t *testing.T) {
	p := NamingPolicy{CaseNumber: "CASE1"}
	name, err := p.FolderName("  Bilag 2024 ")
	require.NoError(t, err)
	assert.Equal(t, "Bilag 2024", name)

	name, err = p.FolderName("v1.2")
	require.NoError(t, err)
	assert.Equal(t, "v1.2", name)

	_, err = p.FolderName("")
	assert.Error(t, err)
	_, err = p.FolderName("a/b")
	assert.Error(t, err)
}
