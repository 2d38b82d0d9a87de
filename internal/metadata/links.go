package metadata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/wouterc/sagsfiler/internal/metrics"
	"github.com/wouterc/sagsfiler/pkg/protocol"
)

// Link binds an entry to a checklist line item of the case.
type Link struct {
	Path        string
	ItemID      int64
	GroupNumber string
	GroupName   string
	Title       string
}

// Info returns the wire form of the link.
func (l Link) Info() protocol.LinkedInfo {
	return protocol.LinkedInfo{
		GroupNumber: l.GroupNumber,
		GroupName:   l.GroupName,
		Title:       l.Title,
		ID:          l.ItemID,
	}
}

// firstLink returns the first link on p or below it, or nil.
func (s *Store) firstLink(ctx context.Context, q querier, caseID, p string) (*Link, error) {
	n, prefix := subtreeArgs(p)
	var l Link
	err := s.queryRow(ctx, q,
		`SELECT path, item_id, gruppe_nr, gruppe_navn, titel FROM file_links
		 WHERE case_id = ? AND (path = ? OR substr(path, 1, ?) = ?)
		 ORDER BY path LIMIT 1`,
		caseID, p, n, prefix).
		Scan(&l.Path, &l.ItemID, &l.GroupNumber, &l.GroupName, &l.Title)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("check links of %s: %w", p, err)
	}
	return &l, nil
}

// FirstLink returns the first link on p or anywhere below it, or nil when
// the subtree is free to move or delete.
func (s *Store) FirstLink(ctx context.Context, caseID, p string) (*Link, error) {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("first_link", time.Since(start)) }()
	return s.firstLink(ctx, s.db, caseID, p)
}

// SetLink binds the entry at l.Path to a checklist item, replacing any
// previous binding of that entry.
func (s *Store) SetLink(ctx context.Context, caseID string, l Link) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("set_link", time.Since(start)) }()

	if l.Path == "" {
		return ErrRoot
	}
	ok, err := s.exists(ctx, s.db, caseID, l.Path)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}

	_, err = s.exec(ctx, s.db,
		`INSERT INTO file_links (case_id, path, item_id, gruppe_nr, gruppe_navn, titel)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (case_id, path) DO UPDATE SET
		   item_id = excluded.item_id,
		   gruppe_nr = excluded.gruppe_nr,
		   gruppe_navn = excluded.gruppe_navn,
		   titel = excluded.titel`,
		caseID, l.Path, l.ItemID, l.GroupNumber, l.GroupName, l.Title)
	if err != nil {
		return fmt.Errorf("set link %s: %w", l.Path, err)
	}
	return nil
}

// RemoveLink unbinds the entry at p.
func (s *Store) RemoveLink(ctx context.Context, caseID, p string) error {
	start := time.Now()
	defer func() { metrics.RecordDBQuery("remove_link", time.Since(start)) }()

	res, err := s.exec(ctx, s.db, `DELETE FROM file_links WHERE case_id = ? AND path = ?`, caseID, p)
	if err != nil {
		return fmt.Errorf("remove link %s: %w", p, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
