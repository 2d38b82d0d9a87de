package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/internal/events"
	"github.com/wouterc/sagsfiler/internal/logging"
	"github.com/wouterc/sagsfiler/internal/metadata"
	"github.com/wouterc/sagsfiler/internal/metrics"
	"github.com/wouterc/sagsfiler/internal/storage"
	"github.com/wouterc/sagsfiler/pkg/protocol"
)

// ─── Download ───────────────────────────────────────────────────────────────

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	p, ok := s.cleanPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}

	row, err := s.metadata.Get(r.Context(), caseID, p)
	if err != nil {
		s.sendStoreError(w, r, "download", err)
		return
	}
	if row.IsDir {
		s.sendError(w, http.StatusBadRequest, "use download-zip for folders")
		return
	}

	reader, size, err := s.storage.GetObject(r.Context(), row.ObjectKey)
	if err != nil {
		if storage.IsNotFound(err) {
			s.sendError(w, http.StatusNotFound, "content missing for "+p)
			return
		}
		logging.WithContext(r.Context()).Error("get object failed", zap.String("key", row.ObjectKey), zap.Error(err))
		s.sendError(w, http.StatusBadGateway, "storage unavailable")
		return
	}
	defer reader.Close()

	ct := mime.TypeByExtension(path.Ext(row.Name))
	if ct == "" {
		ct = "application/octet-stream"
	}
	disposition := "attachment"
	if r.URL.Query().Get("view") == "1" {
		disposition = "inline"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Disposition", contentDisposition(disposition, row.Name))
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	w.Header().Set("Last-Modified", row.ModTime.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)

	n, err := io.Copy(w, reader)
	if err != nil {
		logging.WithContext(r.Context()).Warn("content transfer error", zap.String("path", p), zap.Error(err))
	}
	metrics.RecordContentDownload(n)
}

// contentDisposition formats the header with an RFC 2231 filename when the
// name is not plain ASCII.
func contentDisposition(kind, filename string) string {
	if v := mime.FormatMediaType(kind, map[string]string{"filename": filename}); v != "" {
		return v
	}
	return kind
}

// ─── Upload ─────────────────────────────────────────────────────────────────

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	p, ok := s.cleanPath(w, r.URL.Query().Get("path"))
	if !ok {
		return
	}
	if p == "" || !metadata.ValidName(metadata.BaseName(p)) {
		s.sendError(w, http.StatusBadRequest, "file path required")
		return
	}

	if r.ContentLength > s.maxUploadSize {
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file too large: max %d bytes", s.maxUploadSize))
		return
	}

	parent, err := s.metadata.Get(r.Context(), caseID, metadata.ParentPath(p))
	if err != nil {
		s.sendStoreError(w, r, "upload", err)
		return
	}
	if !parent.IsDir {
		s.sendStoreError(w, r, "upload", metadata.ErrNotDir)
		return
	}

	key := storage.NewObjectKey(caseID)
	body := &countingReader{r: http.MaxBytesReader(w, r.Body, s.maxUploadSize)}
	if err := s.storage.PutObject(r.Context(), key, body, r.ContentLength); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.sendError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("file too large: max %d bytes", s.maxUploadSize))
			return
		}
		logging.WithContext(r.Context()).Error("put object failed", zap.String("key", key), zap.Error(err))
		s.sendError(w, http.StatusInternalServerError, "failed to store content")
		return
	}

	oldKey, err := s.metadata.PutFile(r.Context(), &metadata.FileRow{
		CaseID:    caseID,
		Path:      p,
		Size:      body.n,
		ModTime:   time.Now().Truncate(time.Second),
		ObjectKey: key,
	})
	if err != nil {
		if delErr := s.storage.DeleteObject(r.Context(), key); delErr != nil {
			logging.WithContext(r.Context()).Warn("failed to drop unreferenced object", zap.String("key", key), zap.Error(delErr))
		}
		s.sendStoreError(w, r, "upload", err)
		return
	}
	if oldKey != "" {
		if err := s.storage.DeleteObject(r.Context(), oldKey); err != nil {
			logging.WithContext(r.Context()).Warn("failed to delete replaced object", zap.String("key", oldKey), zap.Error(err))
		}
	}

	metrics.RecordContentUpload(body.n)
	logging.WithContext(r.Context()).Info("file uploaded",
		zap.String("case_id", caseID),
		zap.String("path", p),
		zap.Int64("size", body.n),
		zap.Bool("replaced", oldKey != ""))
	s.publishEvent(caseID, events.EventUploaded, p, "")

	sendJSON(w, http.StatusCreated, protocol.UploadResponse{Path: p, Size: body.n})
}

// ─── Multi download ─────────────────────────────────────────────────────────

func (s *Server) handleZipBody(w http.ResponseWriter, r *http.Request) {
	var req protocol.ZipRequest
	if !s.decode(w, r, &req) {
		return
	}
	s.streamZip(w, r, req.Paths)
}

// handleZipQuery serves the same archive for GET with repeated path
// parameters, which is what desktop drag descriptors point at.
func (s *Server) handleZipQuery(w http.ResponseWriter, r *http.Request) {
	s.streamZip(w, r, r.URL.Query()["path"])
}

type zipItem struct {
	name string
	row  *metadata.FileRow
}

// zipName picks the archive name for a case, Sagsfiler_<caseNumber>.zip
// when the case is registered.
func (s *Server) zipName(r *http.Request, caseID string) string {
	number := caseID
	if c, err := s.metadata.GetCase(r.Context(), caseID); err == nil && c.Number != "" {
		number = c.Number
	}
	return "Sagsfiler_" + number + ".zip"
}

// collectZipItems expands the requested paths into archive entries.
// Directories are included recursively under their own name; the root
// contributes the whole case with its stored paths.
func (s *Server) collectZipItems(r *http.Request, caseID string, paths []string) ([]zipItem, error) {
	used := map[string]int{}
	uniqueTop := func(base string) string {
		n := used[base]
		used[base] = n + 1
		if n == 0 {
			return base
		}
		ext := path.Ext(base)
		return fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(base, ext), n, ext)
	}

	var items []zipItem
	for _, p := range paths {
		rows, err := s.metadata.Subtree(r.Context(), caseID, p)
		if err != nil {
			return nil, err
		}
		if p == "" {
			for _, row := range rows {
				items = append(items, zipItem{name: row.Path, row: row})
			}
			continue
		}
		top := uniqueTop(metadata.BaseName(p))
		for _, row := range rows {
			name := top + strings.TrimPrefix(row.Path, p)
			items = append(items, zipItem{name: name, row: row})
		}
	}
	return items, nil
}

func (s *Server) streamZip(w http.ResponseWriter, r *http.Request, rawPaths []string) {
	caseID, ok := s.caseID(w, r)
	if !ok {
		return
	}
	if len(rawPaths) == 0 {
		s.sendError(w, http.StatusBadRequest, "no paths given")
		return
	}
	paths := make([]string, 0, len(rawPaths))
	for _, raw := range rawPaths {
		p, ok := s.cleanPath(w, raw)
		if !ok {
			return
		}
		paths = append(paths, p)
	}

	items, err := s.collectZipItems(r, caseID, paths)
	if err != nil {
		s.sendStoreError(w, r, "download_zip", err)
		return
	}
	if s.maxZipEntries > 0 && len(items) > s.maxZipEntries {
		s.sendError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("too many entries: max %d", s.maxZipEntries))
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", contentDisposition("attachment", s.zipName(r, caseID)))
	w.WriteHeader(http.StatusOK)

	zw := zip.NewWriter(w)
	var total int64
	err = s.writeZip(r, zw, items, &total)
	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		// Headers are sent; the client sees a truncated archive.
		logging.WithContext(r.Context()).Warn("zip export aborted",
			zap.String("case_id", caseID), zap.Error(err))
	}
	metrics.RecordZipExport(len(items), total, err == nil)
}

func (s *Server) writeZip(r *http.Request, zw *zip.Writer, items []zipItem, total *int64) error {
	ctx := r.Context()
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if it.row.IsDir {
			if _, err := zw.CreateHeader(&zip.FileHeader{
				Name:     it.name + "/",
				Modified: it.row.ModTime,
			}); err != nil {
				return err
			}
			continue
		}

		wr, err := zw.CreateHeader(&zip.FileHeader{
			Name:     it.name,
			Method:   zip.Deflate,
			Modified: it.row.ModTime,
		})
		if err != nil {
			return err
		}
		rc, _, err := s.storage.GetObject(ctx, it.row.ObjectKey)
		if err != nil {
			return fmt.Errorf("%s: %w", it.row.Path, err)
		}
		n, err := io.Copy(wr, rc)
		rc.Close()
		*total += n
		if err != nil {
			return fmt.Errorf("%s: %w", it.row.Path, err)
		}
	}
	return nil
}
