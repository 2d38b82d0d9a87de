package filemanager

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/pkg/protocol"
)

// Pending-action keys. A key that is in flight cannot be triggered again.
const (
	actionCreate = "create"
	actionRename = "rename"
	actionMove   = "move"
	actionDelete = "delete"
	actionExport = "export"
)

// Options configures a Controller.
type Options struct {
	CaseID     string
	CaseNumber string

	// AppBaseURL is the web application root used for checklist deep links.
	AppBaseURL string

	API   API
	Saver Saver

	Logger             *zap.Logger
	ActivationDistance float64
	ReleaseDelay       time.Duration
	TempDir            string
}

// Controller owns the state of one open case: the requested path, the
// displayed listing, the selection, the drag session, the open dialog and the
// notice queue. Everything the UI needs flows through it; dependents receive
// it explicitly.
//
// Network calls are made without holding the lock, so a Controller may be
// driven from several goroutines.
type Controller struct {
	caseID     string
	caseNumber string

	api      API
	log      *zap.Logger
	naming   NamingPolicy
	guard    LinkGuard
	exporter *BatchExporter

	mu        sync.Mutex
	path      string
	listing   DirectoryListing
	loaded    bool
	selection *Selection
	pointer   *PointerSession
	dialogs   Dialogs
	notices   []Notice
	pending   map[string]bool
}

// NewController creates a controller positioned at the case root. Call
// SetPath or Refresh to load the first listing.
func NewController(opts Options) (*Controller, error) {
	if opts.API == nil {
		return nil, errors.New("filemanager: API is required")
	}
	if opts.CaseID == "" {
		return nil, errors.New("filemanager: case id is required")
	}
	if opts.CaseNumber == "" {
		opts.CaseNumber = opts.CaseID
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.ReleaseDelay <= 0 {
		opts.ReleaseDelay = DefaultReleaseDelay
	}
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	if opts.Saver == nil {
		opts.Saver = DirSaver{Dir: "."}
	}

	log := opts.Logger.With(zap.String("case_id", opts.CaseID))
	return &Controller{
		caseID:     opts.CaseID,
		caseNumber: opts.CaseNumber,
		api:        opts.API,
		log:        log,
		naming:     NamingPolicy{CaseNumber: opts.CaseNumber},
		guard:      LinkGuard{CaseID: opts.CaseID, AppBaseURL: opts.AppBaseURL},
		exporter: &BatchExporter{
			api:          opts.API,
			caseID:       opts.CaseID,
			caseNumber:   opts.CaseNumber,
			saver:        opts.Saver,
			tempDir:      opts.TempDir,
			releaseDelay: opts.ReleaseDelay,
			log:          log,
		},
		selection: NewSelection(),
		pointer:   NewPointerSession(opts.ActivationDistance),
		pending:   make(map[string]bool),
	}, nil
}

// Naming returns the naming policy of the case.
func (c *Controller) Naming() NamingPolicy { return c.naming }

// ─── Navigation & listing ───────────────────────────────────────────────────

// View is an immutable snapshot for rendering.
type View struct {
	Path        string
	Address     string
	Breadcrumbs []Breadcrumb
	Listing     DirectoryListing
	Loading     bool
	Selected    []string
	AllSelected bool
	Dialog      *Dialog
	Drag        *DragSession
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	entries := make([]FileEntry, len(c.listing.Entries))
	copy(entries, c.listing.Entries)
	listing := DirectoryListing{Path: c.listing.Path, Entries: entries}

	v := View{
		Path:        c.path,
		Address:     AddressQuery(c.path),
		Breadcrumbs: BreadcrumbsFor(c.caseNumber, c.path),
		Listing:     listing,
		Loading:     !c.loaded || c.listing.Path != c.path,
		Selected:    c.selection.Paths(c.current()),
		AllSelected: c.selection.AllSelected(c.current()),
	}
	if d, ok := c.dialogs.Active(); ok {
		v.Dialog = &d
	}
	if s, ok := c.pointer.Current(); ok {
		v.Drag = &s
	}
	return v
}

// Path returns the requested path.
func (c *Controller) Path() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.path
}

// Listing returns the displayed listing.
func (c *Controller) Listing() DirectoryListing {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listing
}

// SetPath navigates to p. The selection is cleared when the path changes.
// The fetch is tagged with p; if another SetPath happens before it resolves
// the result is discarded and ErrStaleListing is returned.
func (c *Controller) SetPath(ctx context.Context, p string) error {
	p = NormalizePath(p)

	c.mu.Lock()
	if p != c.path || !c.loaded {
		c.selection.Clear()
		c.pointer.Cancel()
	}
	c.path = p
	c.mu.Unlock()

	return c.load(ctx, p)
}

// SetAddress navigates to the directory encoded in a shareable address.
func (c *Controller) SetAddress(ctx context.Context, address string) error {
	return c.SetPath(ctx, PathFromAddress(address))
}

// Refresh re-fetches the current path. The selection survives, minus files
// that disappeared.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.load(ctx, c.Path())
}

// Up navigates to the parent directory.
func (c *Controller) Up(ctx context.Context) error {
	return c.SetPath(ctx, ParentPath(c.Path()))
}

// Open navigates into a directory entry. Files are ignored.
func (c *Controller) Open(ctx context.Context, entry FileEntry) error {
	if !entry.IsDirectory {
		return nil
	}
	return c.SetPath(ctx, entry.Path)
}

func (c *Controller) load(ctx context.Context, p string) error {
	rows, err := c.api.List(ctx, c.caseID, p)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path != p {
		c.log.Debug("discarding stale listing",
			zap.String("requested", p), zap.String("current", c.path))
		return ErrStaleListing
	}
	if err != nil {
		c.pushNotice(NoticeError, ErrorMessage(err))
		return fmt.Errorf("list %q: %w", p, err)
	}

	entries := make([]FileEntry, 0, len(rows))
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		e := entryFromProtocol(r)
		if seen[e.Path] {
			continue
		}
		seen[e.Path] = true
		entries = append(entries, e)
	}
	c.listing = DirectoryListing{Path: p, Entries: entries}
	c.loaded = true
	c.selection.Retain(c.listing)
	return nil
}

// ApplyEvent refreshes the listing when a change event touches the current
// directory. It reports whether a refresh was issued.
func (c *Controller) ApplyEvent(ctx context.Context, ev protocol.CaseEvent) (bool, error) {
	if ev.CaseID != "" && ev.CaseID != c.caseID {
		return false, nil
	}
	cur := c.Path()
	touched := ParentPath(ev.Path) == cur
	if ev.OldPath != "" && ParentPath(ev.OldPath) == cur {
		touched = true
	}
	if !touched {
		return false, nil
	}
	err := c.Refresh(ctx)
	if errors.Is(err, ErrStaleListing) {
		err = nil
	}
	return true, err
}

// ─── Selection ──────────────────────────────────────────────────────────────

// current is the listing of the requested path. While a fetch is in flight,
// or after it failed, the displayed listing belongs to another directory and
// current is empty. Caller holds c.mu.
func (c *Controller) current() DirectoryListing {
	if c.listing.Path != c.path {
		return DirectoryListing{Path: c.path}
	}
	return c.listing
}

// Toggle flips selection of a file path in the current listing.
func (c *Controller) Toggle(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Toggle(c.current(), path)
}

// SelectAll selects every file in the listing, or clears the selection.
func (c *Controller) SelectAll(checked bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selection.SelectAll(c.current(), checked)
}

// AllSelected is the "select all" indicator.
func (c *Controller) AllSelected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.AllSelected(c.current())
}

// Selected returns the selected paths in listing order.
func (c *Controller) Selected() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Paths(c.current())
}

// ─── Notices ────────────────────────────────────────────────────────────────

// Notices drains the queued transient notices.
func (c *Controller) Notices() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.notices
	c.notices = nil
	return out
}

// pushNotice queues a notice. c.mu must be held.
func (c *Controller) pushNotice(level NoticeLevel, msg string) {
	c.notices = append(c.notices, Notice{Level: level, Message: msg})
	switch level {
	case NoticeError:
		c.log.Warn("notice", zap.String("level", level.String()), zap.String("message", msg))
	default:
		c.log.Info("notice", zap.String("level", level.String()), zap.String("message", msg))
	}
}

func (c *Controller) notice(level NoticeLevel, msg string) {
	c.mu.Lock()
	c.pushNotice(level, msg)
	c.mu.Unlock()
}

// ─── Pending actions ────────────────────────────────────────────────────────

func (c *Controller) begin(action string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending[action] {
		return false
	}
	c.pending[action] = true
	return true
}

func (c *Controller) end(action string) {
	c.mu.Lock()
	delete(c.pending, action)
	c.mu.Unlock()
}

// Pending reports whether an action kind is in flight, so the UI can
// disable its trigger.
func (c *Controller) Pending(action string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[action]
}

func pendingResult() Result {
	return errorResult(ErrActionPending, "Please wait for the previous request to finish.")
}

func validationResult(err error) Result {
	return errorResult(err, ErrorMessage(err))
}

// finish turns a mutation outcome into notices, dialogs and a refresh.
func (c *Controller) finish(ctx context.Context, res Result, success string) Result {
	switch res.Kind {
	case ResultOK:
		c.notice(NoticeSuccess, success)
		if err := c.Refresh(ctx); err != nil && !errors.Is(err, ErrStaleListing) {
			c.log.Warn("refresh after mutation", zap.Error(err))
		}
	case ResultBlocked:
		c.showBlocked(res.Blocked)
	case ResultError:
		c.notice(NoticeError, res.Message)
	}
	return res
}

// showBlocked opens the blocked-info dialog unless another dialog is open.
func (c *Controller) showBlocked(b *BlockedOperation) {
	c.log.Info("operation blocked by checklist link",
		zap.String("action", string(b.Action)),
		zap.String("path", b.Item.Path),
		zap.Int64("item_id", b.Linked.ID))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.dialogs.Open(Dialog{Kind: DialogBlockedInfo, Target: b.Item, Blocked: b}); err != nil {
		c.log.Debug("blocked-info dialog not shown", zap.Error(err))
	}
}

// ─── Mutations ──────────────────────────────────────────────────────────────

// CreateFolder creates a folder named name in the current directory.
func (c *Controller) CreateFolder(ctx context.Context, name string) Result {
	name, err := c.naming.FolderName(name)
	if err != nil {
		return validationResult(err)
	}
	if !c.begin(actionCreate) {
		return pendingResult()
	}
	defer c.end(actionCreate)

	dir := c.Path()
	err = c.api.CreateFolder(ctx, c.caseID, dir, name)
	if err != nil {
		return c.finish(ctx, errorResult(err, ErrorMessage(err)), "")
	}
	c.log.Info("folder created", zap.String("path", JoinPath(dir, name)))
	return c.finish(ctx, okResult(), fmt.Sprintf("Folder %q created.", name))
}

// Rename renames entry. Files go through the prefix and extension rules;
// folders take the text as-is.
func (c *Controller) Rename(ctx context.Context, entry FileEntry, text string) Result {
	var (
		final   string
		changed bool
		err     error
	)
	if entry.IsDirectory {
		final, err = c.naming.FolderName(text)
		changed = final != entry.Name
	} else {
		final, changed, err = c.naming.RenameFile(entry.Name, text)
	}
	if err != nil {
		return validationResult(err)
	}
	if !changed {
		return noOpResult()
	}
	if !c.begin(actionRename) {
		return pendingResult()
	}
	defer c.end(actionRename)

	if err := c.api.Rename(ctx, c.caseID, entry.Path, final); err != nil {
		return c.finish(ctx, errorResult(err, ErrorMessage(err)), "")
	}
	c.log.Info("entry renamed", zap.String("path", entry.Path), zap.String("new_name", final))
	return c.finish(ctx, okResult(), fmt.Sprintf("Renamed to %q.", final))
}

// Delete deletes entry unless the link guard refuses it.
func (c *Controller) Delete(ctx context.Context, entry FileEntry) Result {
	if b := c.guard.Check(ActionDelete, entry); b != nil {
		return c.finish(ctx, blockedResult(b), "")
	}
	if !c.begin(actionDelete) {
		return pendingResult()
	}
	defer c.end(actionDelete)

	err := c.api.Delete(ctx, c.caseID, entry.Path)
	res := c.guard.Convert(ActionDelete, entry, err)
	if res.OK() {
		c.log.Info("entry deleted", zap.String("path", entry.Path))
	}
	return c.finish(ctx, res, fmt.Sprintf("%q deleted.", entry.Name))
}

// Move is the single consumer of move intents from every drag producer and
// the move picker.
func (c *Controller) Move(ctx context.Context, intent MoveIntent) Result {
	src := intent.Source
	target := NormalizePath(intent.TargetPath)

	if src.Path == target {
		return noOpResult()
	}
	if b := c.guard.Check(ActionMove, src); b != nil {
		return c.finish(ctx, blockedResult(b), "")
	}
	if ParentPath(src.Path) == target {
		return noOpResult()
	}
	if src.IsDirectory && IsSameOrDescendant(target, src.Path) {
		return validationResult(&ValidationError{
			Field:  "target",
			Reason: "a folder cannot be moved into itself or one of its subfolders",
		})
	}
	if !c.begin(actionMove) {
		return pendingResult()
	}
	defer c.end(actionMove)

	err := c.api.Move(ctx, c.caseID, src.Path, target)
	res := c.guard.Convert(ActionMove, src, err)
	if res.OK() {
		c.log.Info("entry moved", zap.String("source", src.Path), zap.String("target", target))
	}
	return c.finish(ctx, res, fmt.Sprintf("%q moved.", src.Name))
}

// ─── Pointer drag ───────────────────────────────────────────────────────────

// BeginDrag arms an in-app drag of entry, replacing any live session.
func (c *Controller) BeginDrag(entry FileEntry, x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pointer.Begin(entry, x, y)
}

// DragMove reports whether the drag has passed the activation distance.
func (c *Controller) DragMove(x, y float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pointer.MoveTo(x, y)
}

// CancelDrag ends the drag without moving anything.
func (c *Controller) CancelDrag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pointer.Cancel()
}

// DropOn ends the pointer drag on target and forwards the intent, if any.
func (c *Controller) DropOn(ctx context.Context, target DropTarget) Result {
	c.mu.Lock()
	intent, ok := c.pointer.Drop(target)
	c.mu.Unlock()
	if !ok {
		return noOpResult()
	}
	return c.Move(ctx, intent)
}

// ─── Native drag ────────────────────────────────────────────────────────────

// StartNativeDrag fills dt for a drag leaving the window: the case file
// reference on the structured and plain-text channels, and a desktop
// download descriptor. A host without the descriptor channel gets a notice;
// the drag itself still proceeds.
func (c *Controller) StartNativeDrag(dt DataTransfer, entry FileEntry) error {
	if err := EncodePayload(dt, entry, c.caseID); err != nil {
		return err
	}

	c.mu.Lock()
	selected := c.selection.Paths(c.current())
	inSelection := c.selection.Contains(entry.Path)
	c.mu.Unlock()

	var descriptor string
	if inSelection && len(selected) > 1 {
		descriptor = DownloadDescriptor("application/zip", BatchZipName(c.caseID),
			c.api.ZipURL(c.caseID, selected))
	} else {
		descriptor = DownloadDescriptor(MimeTypeFor(entry.Name), entry.Name,
			c.api.DownloadURL(c.caseID, entry.Path, false))
	}
	if err := dt.SetData(FormatDownloadURL, descriptor); err != nil {
		if errors.Is(err, ErrFormatUnsupported) {
			c.notice(NoticeInfo, noticeDesktopUnsupported)
			return nil
		}
		return fmt.Errorf("set %s: %w", FormatDownloadURL, err)
	}
	return nil
}

// HandleExternalDrop accepts a native drop from another window onto target.
// Payloads from other cases and unrecognised data are ignored.
func (c *Controller) HandleExternalDrop(ctx context.Context, dt DataTransfer, target DropTarget) Result {
	if !target.AcceptsDrop() {
		return noOpResult()
	}
	ref, ok := DecodePayload(dt, c.caseID)
	if !ok {
		c.log.Debug("ignoring foreign drop payload")
		return noOpResult()
	}

	c.mu.Lock()
	src, found := c.current().Find(ref.Path)
	c.mu.Unlock()
	if !found {
		src = FileEntry{Path: ref.Path, Name: ref.Name}
	}
	return c.Move(ctx, MoveIntent{Source: src, TargetPath: target.Path, Origin: OriginNative})
}

// ─── Export ─────────────────────────────────────────────────────────────────

// ExportSelected downloads the selection as Sagsfiler_<caseNumber>.zip.
// An empty selection does nothing.
func (c *Controller) ExportSelected(ctx context.Context) Result {
	paths := c.Selected()
	if len(paths) == 0 {
		return noOpResult()
	}
	if !c.begin(actionExport) {
		return pendingResult()
	}
	defer c.end(actionExport)

	d, err := c.exporter.ExportZip(ctx, paths)
	if err != nil {
		res := errorResult(err, ErrorMessage(err))
		c.notice(NoticeError, res.Message)
		return res
	}

	c.mu.Lock()
	c.selection.Clear()
	c.pushNotice(NoticeSuccess, fmt.Sprintf("Downloaded %d files as %s.", len(paths), d.Name))
	c.mu.Unlock()
	c.log.Info("selection exported", zap.Int("files", len(paths)), zap.Int64("bytes", d.Size))
	return okResult()
}

// WaitReleased blocks until every spooled download has been released.
func (c *Controller) WaitReleased() {
	c.exporter.Wait()
}

// DownloadFile saves a single file. view asks the server for inline display.
func (c *Controller) DownloadFile(ctx context.Context, entry FileEntry, view bool) Result {
	if entry.IsDirectory {
		return validationResult(&ValidationError{Field: "download", Reason: "folders are downloaded via export"})
	}
	if _, err := c.exporter.ExportFile(ctx, entry, view); err != nil {
		res := errorResult(err, ErrorMessage(err))
		c.notice(NoticeError, res.Message)
		return res
	}
	return okResult()
}
