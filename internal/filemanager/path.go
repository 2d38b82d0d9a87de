package filemanager

import (
	"net/url"
	"strings"
)

// AddressParam is the query parameter carrying the current directory, so a
// copied address reopens the same folder.
const AddressParam = "path"

// NormalizePath turns any user or server supplied path into the canonical
// form: slash separated, no leading or trailing slash, no empty segments.
// The case root is "".
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	parts := strings.Split(p, "/")
	out := parts[:0]
	for _, s := range parts {
		if s == "" || s == "." {
			continue
		}
		out = append(out, s)
	}
	return strings.Join(out, "/")
}

// Segments returns the non-empty segments of p.
func Segments(p string) []string {
	p = NormalizePath(p)
	if p == "" {
		return nil
	}
	return strings.Split(p, "/")
}

// JoinPath joins a directory and a name.
func JoinPath(dir, name string) string {
	dir = NormalizePath(dir)
	if dir == "" {
		return NormalizePath(name)
	}
	return NormalizePath(dir + "/" + name)
}

// ParentPath returns the directory containing p. The parent of the root is
// the root.
func ParentPath(p string) string {
	p = NormalizePath(p)
	i := strings.LastIndex(p, "/")
	if i < 0 {
		return ""
	}
	return p[:i]
}

// BaseName returns the last segment of p.
func BaseName(p string) string {
	p = NormalizePath(p)
	return p[strings.LastIndex(p, "/")+1:]
}

// IsSameOrDescendant reports whether p is dir itself or lies below it.
func IsSameOrDescendant(p, dir string) bool {
	p, dir = NormalizePath(p), NormalizePath(dir)
	if p == dir {
		return true
	}
	if dir == "" {
		return true
	}
	return strings.HasPrefix(p, dir+"/")
}

// Breadcrumb is one navigation node derived from a path.
type Breadcrumb struct {
	Label string
	Path  string

	// Terminal marks the current directory. It never accepts drops.
	Terminal bool
}

// BreadcrumbsFor derives the trail for p. The first node is the case root
// labelled with the case number; the last node is p itself.
func BreadcrumbsFor(caseNumber, p string) []Breadcrumb {
	segs := Segments(p)
	crumbs := make([]Breadcrumb, 0, len(segs)+1)
	crumbs = append(crumbs, Breadcrumb{Label: caseNumber, Path: ""})
	for i, s := range segs {
		crumbs = append(crumbs, Breadcrumb{
			Label: s,
			Path:  strings.Join(segs[:i+1], "/"),
		})
	}
	crumbs[len(crumbs)-1].Terminal = true
	return crumbs
}

// AddressQuery encodes p as the shareable query string ("path=a%2Fb").
// The root encodes to "".
func AddressQuery(p string) string {
	p = NormalizePath(p)
	if p == "" {
		return ""
	}
	v := url.Values{}
	v.Set(AddressParam, p)
	return v.Encode()
}

// PathFromAddress extracts the directory from a query string or full URL.
// Anything unparsable yields the root.
func PathFromAddress(raw string) string {
	if i := strings.Index(raw, "?"); i >= 0 {
		raw = raw[i+1:]
	}
	v, err := url.ParseQuery(raw)
	if err != nil {
		return ""
	}
	return NormalizePath(v.Get(AddressParam))
}
