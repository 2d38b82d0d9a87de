package filemanager

// Selection tracks selected file paths within the current listing.
// Directories are never selectable. It only reads the listing it is given.
type Selection struct {
	paths map[string]struct{}
}

// NewSelection creates an empty selection.
func NewSelection() *Selection {
	return &Selection{paths: make(map[string]struct{})}
}

// Toggle adds or removes a file path. Paths that are not files in listing
// are ignored. It reports whether the path is selected afterwards.
func (s *Selection) Toggle(listing DirectoryListing, path string) bool {
	path = NormalizePath(path)
	if _, ok := s.paths[path]; ok {
		delete(s.paths, path)
		return false
	}
	e, ok := listing.Find(path)
	if !ok || e.IsDirectory {
		return false
	}
	s.paths[path] = struct{}{}
	return true
}

// SelectAll selects every file in listing when checked, otherwise clears.
func (s *Selection) SelectAll(listing DirectoryListing, checked bool) {
	s.Clear()
	if !checked {
		return
	}
	for _, e := range listing.Entries {
		if !e.IsDirectory {
			s.paths[e.Path] = struct{}{}
		}
	}
}

// AllSelected is the derived "select all" indicator: true iff the listing has
// at least one file and every file is selected.
func (s *Selection) AllSelected(listing DirectoryListing) bool {
	files := 0
	for _, e := range listing.Entries {
		if !e.IsDirectory {
			files++
		}
	}
	return files > 0 && len(s.paths) == files
}

// Contains reports whether path is selected.
func (s *Selection) Contains(path string) bool {
	_, ok := s.paths[NormalizePath(path)]
	return ok
}

// Len returns the number of selected paths.
func (s *Selection) Len() int { return len(s.paths) }

// Paths returns the selected paths in listing order.
func (s *Selection) Paths(listing DirectoryListing) []string {
	out := make([]string, 0, len(s.paths))
	for _, e := range listing.Entries {
		if _, ok := s.paths[e.Path]; ok {
			out = append(out, e.Path)
		}
	}
	return out
}

// Clear empties the selection.
func (s *Selection) Clear() {
	for k := range s.paths {
		delete(s.paths, k)
	}
}

// Retain drops selected paths that are no longer files in listing.
func (s *Selection) Retain(listing DirectoryListing) {
	for p := range s.paths {
		e, ok := listing.Find(p)
		if !ok || e.IsDirectory {
			delete(s.paths, p)
		}
	}
}
