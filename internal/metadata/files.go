package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/internal/logging"
	"github.com/wouterc/sagsfiler/internal/metrics"
)

// FileRow maps to the case_files table, joined with its link if any.
type FileRow struct {
	CaseID     string
	Path       string
	ParentPath string
	Name       string
	IsDir      bool
	Size       int64
	ModTime    time.Time
	ObjectKey  string
	Link       *Link
}

const fileSelect = `SELECT f.case_id, f.path, f.parent_path, f.name, f.is_dir, f.size, f.mod_time, f.object_key,
	        l.item_id, l.gruppe_nr, l.gruppe_navn, l.titel
	 FROM case_files f
	 LEFT JOIN file_links l ON l.case_id = f.case_id AND l.path = f.path`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(sc rowScanner) (*FileRow, error) {
	var r FileRow
	var mod int64
	var itemID sql.NullInt64
	var groupNr, groupName, title sql.NullString
	if err := sc.Scan(&r.CaseID, &r.Path, &r.ParentPath, &r.Name, &r.IsDir, &r.Size, &mod, &r.ObjectKey,
		&itemID, &groupNr, &groupName, &title); err != nil {
		return nil, err
	}
	r.ModTime = time.Unix(mod, 0)
	if itemID.Valid {
		r.Link = &Link{
			Path:        r.Path,
			ItemID:      itemID.Int64,
			GroupNumber: groupNr.String,
			GroupName:   groupName.String,
			Title:       title.String,
		}
	}
	return &r, nil
}

func collectFiles(rows *sql.Rows) ([]*FileRow, error) {
	defer rows.Close()
	var out []*FileRow
	for rows.Next() {
		r, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func rootRow(caseID string) *FileRow {
	return &FileRow{CaseID: caseID, IsDir: true}
}

func (s *Store) get(ctx context.Context, q querier, caseID, p string) (*FileRow, error) {
	if p == "" {
		return rootRow(caseID), nil
	}
	r, err := scanFile(s.queryRow(ctx, q, fileSelect+` WHERE f.case_id = ? AND f.path = ?`, caseID, p))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", p, err)
	}
	return r, nil
}

func (s *Store) dir(ctx context.Context, q querier, caseID, p string) (*FileRow, error) {
	r, err := s.get(ctx, q, caseID, p)
	if err != nil {
		return nil, err
	}
	if !r.IsDir {
		return nil, ErrNotDir
	}
	return r, nil
}

func (s *Store) exists(ctx context.Context, q querier, caseID, p string) (bool, error) {
	var n int
	err := s.queryRow(ctx, q, `SELECT COUNT(*) FROM case_files WHERE case_id = ? AND path = ?`, caseID, p).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", p, err)
	}
	return n > 0, nil
}

// Get returns a single entry. The root ("") is a synthetic directory row.
func (s *Store) Get(ctx context.Context, caseID, p string) (*FileRow, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("get_file", time.Since(start)) }()
	return s.get(ctx, s.db, caseID, p)
}

// ListDir returns the direct children of dir, directories first, then by name.
func (s *Store) ListDir(ctx context.Context, caseID, dir string) ([]*FileRow, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_dir", time.Since(start)) }()

	if _, err := s.dir(ctx, s.db, caseID, dir); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, s.db,
		fileSelect+` WHERE f.case_id = ? AND f.parent_path = ? ORDER BY f.is_dir DESC, f.name`,
		caseID, dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	return collectFiles(rows)
}

// ListFolders returns every directory of the case ordered by path.
func (s *Store) ListFolders(ctx context.Context, caseID string) ([]*FileRow, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("list_folders", time.Since(start)) }()

	rows, err := s.query(ctx, s.db,
		fileSelect+` WHERE f.case_id = ? AND f.is_dir = ? ORDER BY f.path`, caseID, true)
	if err != nil {
		return nil, fmt.Errorf("list folders: %w", err)
	}
	return collectFiles(rows)
}

// Subtree returns p and every entry below it ordered by path. For the root
// it returns the whole case.
func (s *Store) Subtree(ctx context.Context, caseID, p string) ([]*FileRow, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("subtree", time.Since(start)) }()

	if p == "" {
		rows, err := s.query(ctx, s.db, fileSelect+` WHERE f.case_id = ? ORDER BY f.path`, caseID)
		if err != nil {
			return nil, fmt.Errorf("subtree: %w", err)
		}
		return collectFiles(rows)
	}

	n, prefix := subtreeArgs(p)
	rows, err := s.query(ctx, s.db,
		fileSelect+` WHERE f.case_id = ? AND (f.path = ? OR substr(f.path, 1, ?) = ?) ORDER BY f.path`,
		caseID, p, n, prefix)
	if err != nil {
		return nil, fmt.Errorf("subtree %s: %w", p, err)
	}
	out, err := collectFiles(rows)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *Store) insert(ctx context.Context, q querier, r *FileRow) error {
	_, err := s.exec(ctx, q,
		`INSERT INTO case_files (case_id, path, parent_path, name, is_dir, size, mod_time, object_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.CaseID, r.Path, r.ParentPath, r.Name, r.IsDir, r.Size, r.ModTime.Unix(), r.ObjectKey)
	if err != nil {
		return fmt.Errorf("insert %s: %w", r.Path, err)
	}
	return nil
}

// CreateDir creates directory name inside parent.
func (s *Store) CreateDir(ctx context.Context, caseID, parent, name string) (*FileRow, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("create_dir", time.Since(start)) }()

	if !ValidName(name) {
		return nil, fmt.Errorf("invalid folder name %q", name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.dir(ctx, tx, caseID, parent); err != nil {
		return nil, err
	}
	p := JoinPath(parent, name)
	taken, err := s.exists(ctx, tx, caseID, p)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrExists
	}

	row := &FileRow{
		CaseID:     caseID,
		Path:       p,
		ParentPath: parent,
		Name:       name,
		IsDir:      true,
		ModTime:    time.Now().Truncate(time.Second),
	}
	if err := s.insert(ctx, tx, row); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return row, nil
}

// PutFile records uploaded content at r.Path. An existing file is replaced
// and its previous object key returned so the caller can drop the object.
// The entry keeps its link when replaced.
func (s *Store) PutFile(ctx context.Context, r *FileRow) (oldKey string, err error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("put_file", time.Since(start)) }()

	if r.Path == "" {
		return "", ErrRoot
	}
	r.ParentPath = ParentPath(r.Path)
	r.Name = BaseName(r.Path)
	r.IsDir = false
	if r.ModTime.IsZero() {
		r.ModTime = time.Now().Truncate(time.Second)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.dir(ctx, tx, r.CaseID, r.ParentPath); err != nil {
		return "", err
	}

	existing, err := s.get(ctx, tx, r.CaseID, r.Path)
	switch {
	case errors.Is(err, ErrNotFound):
		if err := s.insert(ctx, tx, r); err != nil {
			return "", err
		}
	case err != nil:
		return "", err
	case existing.IsDir:
		return "", ErrExists
	default:
		oldKey = existing.ObjectKey
		if _, err := s.exec(ctx, tx,
			`UPDATE case_files SET size = ?, mod_time = ?, object_key = ? WHERE case_id = ? AND path = ?`,
			r.Size, r.ModTime.Unix(), r.ObjectKey, r.CaseID, r.Path); err != nil {
			return "", fmt.Errorf("update %s: %w", r.Path, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return oldKey, nil
}

// ─── Rename & Move ───────────────────────────────────────────────────────────

// Rename gives the entry at p a new name in the same directory and returns
// the new path. Links follow the entry.
func (s *Store) Rename(ctx context.Context, caseID, p, newName string) (string, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("rename", time.Since(start)) }()

	if !ValidName(newName) {
		return "", fmt.Errorf("invalid name %q", newName)
	}
	return s.relocate(ctx, caseID, p, ParentPath(p), newName, false)
}

// Move places the entry at p inside targetDir, keeping its name, and returns
// the new path. Moving into the current parent is a no-op. A linked entry,
// or a directory holding one, is refused with *LinkedError.
func (s *Store) Move(ctx context.Context, caseID, p, targetDir string) (string, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("move", time.Since(start)) }()

	return s.relocate(ctx, caseID, p, targetDir, BaseName(p), true)
}

func (s *Store) relocate(ctx context.Context, caseID, src, dstDir, dstName string, guard bool) (string, error) {
	if src == "" {
		return "", ErrRoot
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row, err := s.get(ctx, tx, caseID, src)
	if err != nil {
		return "", err
	}

	dst := JoinPath(dstDir, dstName)
	if dst == src {
		return src, nil
	}

	if guard {
		if row.IsDir && (dstDir == src || IsWithin(dstDir, src)) {
			return "", ErrIntoSelf
		}
		link, err := s.firstLink(ctx, tx, caseID, src)
		if err != nil {
			return "", err
		}
		if link != nil {
			return "", &LinkedError{Path: src, Link: *link}
		}
	}

	if _, err := s.dir(ctx, tx, caseID, dstDir); err != nil {
		return "", err
	}
	taken, err := s.exists(ctx, tx, caseID, dst)
	if err != nil {
		return "", err
	}
	if taken {
		return "", ErrExists
	}

	if _, err := s.exec(ctx, tx,
		`UPDATE case_files SET path = ?, parent_path = ?, name = ?, mod_time = ? WHERE case_id = ? AND path = ?`,
		dst, dstDir, dstName, time.Now().Unix(), caseID, src); err != nil {
		return "", fmt.Errorf("move %s: %w", src, err)
	}

	n, prefix := subtreeArgs(src)
	if row.IsDir {
		if _, err := s.exec(ctx, tx,
			`UPDATE case_files SET
			   path = CAST(? AS TEXT) || substr(path, ?),
			   parent_path = CAST(? AS TEXT) || substr(parent_path, ?)
			 WHERE case_id = ? AND substr(path, 1, ?) = ?`,
			dst, n, dst, n, caseID, n, prefix); err != nil {
			return "", fmt.Errorf("move children of %s: %w", src, err)
		}
	}

	if _, err := s.exec(ctx, tx,
		`UPDATE file_links SET path = CAST(? AS TEXT) || substr(path, ?)
		 WHERE case_id = ? AND (path = ? OR substr(path, 1, ?) = ?)`,
		dst, n, caseID, src, n, prefix); err != nil {
		return "", fmt.Errorf("move links of %s: %w", src, err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}

	logging.Debug("entry relocated", zap.String("case_id", caseID), zap.String("from", src), zap.String("to", dst))
	return dst, nil
}

// ─── Delete ──────────────────────────────────────────────────────────────────

// Delete removes the entry at p and everything below it, returning the
// object keys whose content should be removed from storage. A linked entry,
// or a directory holding one, is refused with *LinkedError.
func (s *Store) Delete(ctx context.Context, caseID, p string) ([]string, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("delete", time.Since(start)) }()

	if p == "" {
		return nil, ErrRoot
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := s.get(ctx, tx, caseID, p); err != nil {
		return nil, err
	}
	link, err := s.firstLink(ctx, tx, caseID, p)
	if err != nil {
		return nil, err
	}
	if link != nil {
		return nil, &LinkedError{Path: p, Link: *link}
	}

	n, prefix := subtreeArgs(p)
	rows, err := s.query(ctx, tx,
		`SELECT object_key FROM case_files
		 WHERE case_id = ? AND (path = ? OR substr(path, 1, ?) = ?) AND is_dir = ? AND object_key <> ''`,
		caseID, p, n, prefix, false)
	if err != nil {
		return nil, fmt.Errorf("collect keys: %w", err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if _, err := s.exec(ctx, tx,
		`DELETE FROM case_files WHERE case_id = ? AND (path = ? OR substr(path, 1, ?) = ?)`,
		caseID, p, n, prefix); err != nil {
		return nil, fmt.Errorf("delete %s: %w", p, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return keys, nil
}
