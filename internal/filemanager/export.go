package filemanager

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultReleaseDelay is how long a spooled download stays available after
// it has been handed to the Saver.
const DefaultReleaseDelay = time.Second

// ExportName is the save-as name of a batch export for a case number.
func ExportName(caseNumber string) string {
	return "Sagsfiler_" + caseNumber + ".zip"
}

// Saver receives finished downloads ("save as").
type Saver interface {
	Save(name string, content io.Reader) error
}

// DirSaver writes downloads into a directory.
type DirSaver struct {
	Dir string
}

// Save writes content to Dir/name, replacing any existing file.
func (s DirSaver) Save(name string, content io.Reader) error {
	dst := filepath.Join(s.Dir, filepath.Base(name))
	f, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return f.Close()
}

// Download is a spooled binary handle. It must be released once the user
// has it; the exporter schedules that after a bounded delay.
type Download struct {
	Name string
	Size int64

	path string
	once sync.Once
	err  error
}

// Open reads the spooled content.
func (d *Download) Open() (io.ReadCloser, error) {
	return os.Open(d.path)
}

// Release deletes the spooled content. It is safe to call more than once.
func (d *Download) Release() error {
	d.once.Do(func() {
		if err := os.Remove(d.path); err != nil && !os.IsNotExist(err) {
			d.err = err
		}
	})
	return d.err
}

// Released reports whether the spooled content is gone.
func (d *Download) Released() bool {
	_, err := os.Stat(d.path)
	return os.IsNotExist(err)
}

// BatchExporter bundles selections into zip downloads and delivers single
// files through the same spool-and-release path.
type BatchExporter struct {
	api          API
	caseID       string
	caseNumber   string
	saver        Saver
	tempDir      string
	releaseDelay time.Duration
	log          *zap.Logger

	releases sync.WaitGroup
}

// ExportZip requests a zip of paths and delivers it as Sagsfiler_<caseNumber>.zip.
func (x *BatchExporter) ExportZip(ctx context.Context, paths []string) (*Download, error) {
	body, err := x.api.DownloadZip(ctx, x.caseID, paths)
	if err != nil {
		return nil, err
	}
	return x.deliver(body, ExportName(x.caseNumber))
}

// ExportFile requests one file and delivers it under its own name.
func (x *BatchExporter) ExportFile(ctx context.Context, entry FileEntry, view bool) (*Download, error) {
	body, err := x.api.Download(ctx, x.caseID, entry.Path, view)
	if err != nil {
		return nil, err
	}
	return x.deliver(body, entry.Name)
}

func (x *BatchExporter) deliver(body io.ReadCloser, name string) (*Download, error) {
	d, err := x.spool(body, name)
	if err != nil {
		return nil, err
	}

	rc, err := d.Open()
	if err != nil {
		d.Release()
		return nil, err
	}
	err = x.saver.Save(name, rc)
	rc.Close()

	x.releases.Add(1)
	time.AfterFunc(x.releaseDelay, func() {
		defer x.releases.Done()
		if err := d.Release(); err != nil {
			x.log.Warn("release download", zap.String("name", name), zap.Error(err))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("save %s: %w", name, err)
	}
	return d, nil
}

// Wait blocks until every delivered download has been released.
func (x *BatchExporter) Wait() {
	x.releases.Wait()
}

func (x *BatchExporter) spool(body io.ReadCloser, name string) (*Download, error) {
	defer body.Close()

	f, err := os.CreateTemp(x.tempDir, ".sagsfiler-*.part")
	if err != nil {
		return nil, fmt.Errorf("create spool for %s: %w", name, err)
	}
	n, err := io.Copy(f, body)
	if err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close spool for %s: %w", name, err)
	}
	return &Download{Name: name, Size: n, path: f.Name()}, nil
}
