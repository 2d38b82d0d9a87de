package filemanager

import "math"

// DefaultActivationDistance is how far (in pixels) the pointer must travel
// after press before a pointer drag starts. Shorter movements stay clicks.
const DefaultActivationDistance = 5.0

// DropTargetKind says what sits under the pointer on drop.
type DropTargetKind int

const (
	TargetDirectoryRow DropTargetKind = iota
	TargetFileRow
	TargetBreadcrumb
)

// DropTarget is a candidate drop location.
type DropTarget struct {
	Kind     DropTargetKind
	Path     string
	Terminal bool
}

// DirectoryTarget is a directory row in the listing.
func DirectoryTarget(path string) DropTarget {
	return DropTarget{Kind: TargetDirectoryRow, Path: NormalizePath(path)}
}

// FileTarget is a file row. File rows never accept drops.
func FileTarget(path string) DropTarget {
	return DropTarget{Kind: TargetFileRow, Path: NormalizePath(path)}
}

// BreadcrumbTarget is a breadcrumb node.
func BreadcrumbTarget(b Breadcrumb) DropTarget {
	return DropTarget{Kind: TargetBreadcrumb, Path: b.Path, Terminal: b.Terminal}
}

// AcceptsDrop reports whether a drag may end on t.
func (t DropTarget) AcceptsDrop() bool {
	switch t.Kind {
	case TargetDirectoryRow:
		return true
	case TargetBreadcrumb:
		return !t.Terminal
	default:
		return false
	}
}

// IntentOrigin records which drag protocol produced a MoveIntent.
type IntentOrigin int

const (
	OriginPointer IntentOrigin = iota
	OriginNative
	OriginPicker
)

// MoveIntent asks the controller to move Source into the directory TargetPath.
type MoveIntent struct {
	Source     FileEntry
	TargetPath string
	Origin     IntentOrigin
}

// DragSession is the single live in-app drag.
type DragSession struct {
	Source  FileEntry
	OriginX float64
	OriginY float64
	OffsetX float64
	OffsetY float64

	// Active is set once the pointer has moved past the activation distance.
	Active bool
}

// PointerSession produces move intents from in-app pointer drags. At most one
// session is live; Begin supersedes the previous one the way pointer capture
// does.
type PointerSession struct {
	threshold float64
	session   *DragSession
}

// NewPointerSession creates a session tracker. A threshold <= 0 uses
// DefaultActivationDistance.
func NewPointerSession(threshold float64) *PointerSession {
	if threshold <= 0 {
		threshold = DefaultActivationDistance
	}
	return &PointerSession{threshold: threshold}
}

// Begin arms a drag for entry at the press position.
func (p *PointerSession) Begin(entry FileEntry, x, y float64) {
	p.session = &DragSession{Source: entry, OriginX: x, OriginY: y}
}

// MoveTo updates the pointer position and reports whether the drag is active.
func (p *PointerSession) MoveTo(x, y float64) bool {
	s := p.session
	if s == nil {
		return false
	}
	s.OffsetX = x - s.OriginX
	s.OffsetY = y - s.OriginY
	if !s.Active && math.Hypot(s.OffsetX, s.OffsetY) >= p.threshold {
		s.Active = true
	}
	return s.Active
}

// Current returns a copy of the live session.
func (p *PointerSession) Current() (DragSession, bool) {
	if p.session == nil {
		return DragSession{}, false
	}
	return *p.session, true
}

// Drop ends the session. It yields an intent only when the drag was active
// and the target accepts drops.
func (p *PointerSession) Drop(target DropTarget) (MoveIntent, bool) {
	s := p.session
	p.session = nil
	if s == nil || !s.Active || !target.AcceptsDrop() {
		return MoveIntent{}, false
	}
	return MoveIntent{Source: s.Source, TargetPath: target.Path, Origin: OriginPointer}, true
}

// Cancel ends the session without an intent.
func (p *PointerSession) Cancel() {
	p.session = nil
}
