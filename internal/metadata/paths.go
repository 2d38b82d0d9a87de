package metadata

import (
	"fmt"
	"path"
	"strings"
	"unicode/utf8"
)

// CleanPath normalises a client supplied path to the stored form: slash
// separated, relative to the case root, no leading or trailing slash. The
// root is "". Paths that climb out of the case are rejected.
func CleanPath(p string) (string, error) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", fmt.Errorf("invalid path %q", p)
		}
	}
	p = path.Clean("/" + p)
	return strings.TrimPrefix(p, "/"), nil
}

// ValidName reports whether name can be a single path segment.
func ValidName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, "/\\") && strings.TrimSpace(name) == name
}

// JoinPath joins a directory and an entry name.
func JoinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return dir + "/" + name
}

// ParentPath returns the directory containing p ("" for top-level entries).
func ParentPath(p string) string {
	i := strings.LastIndexByte(p, '/')
	if i < 0 {
		return ""
	}
	return p[:i]
}

// BaseName returns the last segment of p.
func BaseName(p string) string {
	return p[strings.LastIndexByte(p, '/')+1:]
}

// IsWithin reports whether p lies strictly below dir.
func IsWithin(p, dir string) bool {
	if dir == "" {
		return p != ""
	}
	return strings.HasPrefix(p, dir+"/")
}

// subtreeArgs returns the substr length and prefix for matching entries
// strictly below dir. Both PostgreSQL and SQLite count substr in characters.
func subtreeArgs(dir string) (int, string) {
	return utf8.RuneCountInString(dir) + 1, dir + "/"
}
