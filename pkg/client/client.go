// Package client provides the HTTP client for the case file API.
//
// Calls are never retried: a failed mutation is reported to the user, who
// decides whether to try again.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/wouterc/sagsfiler/pkg/protocol"
)

// Client talks to one sagsfiler server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *zap.Logger

	mu        sync.RWMutex
	authToken string
}

// Config holds client configuration.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	AuthToken string
	Logger    *zap.Logger
}

// New creates a new client. A zero Timeout means no client-side timeout;
// downloads may legitimately take long.
func New(cfg Config) *Client {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		log:       cfg.Logger,
		authToken: cfg.AuthToken,
	}
}

// SetAuthToken sets the bearer token for requests.
func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
}

// applyAuth adds the auth header to a request if a token is set.
func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

func (c *Client) caseURL(caseID, endpoint string, q url.Values) string {
	u := c.baseURL + "/api/v1/cases/" + url.PathEscape(caseID)
	if endpoint != "" {
		u += "/" + endpoint
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// do sends req and returns the response for 2xx statuses. Everything else
// is converted to a typed error and the body is closed.
func (c *Client) do(op string, req *http.Request) (*http.Response, error) {
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug("request failed", zap.String("op", op), zap.Error(err))
		return nil, &NetworkError{Op: op, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(op, resp)
	}
	return resp, nil
}

func (c *Client) sendJSON(ctx context.Context, op, method, u string, body interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

func (c *Client) getJSON(ctx context.Context, op, u string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.do(op, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return &NetworkError{Op: op, Err: err}
		}
		defer gr.Close()
		reader = gr
	}
	if err := json.NewDecoder(reader).Decode(out); err != nil {
		return &NetworkError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// Ping checks if the server is reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := c.do("ping", req)
	if err != nil {
		return err
	}
	return resp.Body.Close()
}

// List returns the entries of one directory in server order.
func (c *Client) List(ctx context.Context, caseID, path string) ([]protocol.ListEntry, error) {
	var entries []protocol.ListEntry
	q := url.Values{"path": {path}}
	if err := c.getJSON(ctx, "list", c.caseURL(caseID, "files", q), &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// ListFolders returns every directory of the case, flattened.
func (c *Client) ListFolders(ctx context.Context, caseID string) ([]protocol.FolderEntry, error) {
	var folders []protocol.FolderEntry
	if err := c.getJSON(ctx, "list folders", c.caseURL(caseID, "folders", nil), &folders); err != nil {
		return nil, err
	}
	return folders, nil
}

// CreateFolder creates name inside path.
func (c *Client) CreateFolder(ctx context.Context, caseID, path, name string) error {
	return c.sendJSON(ctx, "create folder", http.MethodPost, c.caseURL(caseID, "folders", nil),
		protocol.CreateFolderRequest{Path: path, Name: name})
}

// Rename gives the entry at path a new name; the server derives the new path.
func (c *Client) Rename(ctx context.Context, caseID, path, newName string) error {
	return c.sendJSON(ctx, "rename", http.MethodPost, c.caseURL(caseID, "rename", nil),
		protocol.RenameRequest{Path: path, NewName: newName})
}

// Move moves sourcePath into the directory targetPath.
func (c *Client) Move(ctx context.Context, caseID, sourcePath, targetPath string) error {
	return c.sendJSON(ctx, "move", http.MethodPost, c.caseURL(caseID, "move", nil),
		protocol.MoveRequest{SourcePath: sourcePath, TargetPath: targetPath})
}

// Delete removes the entry at path (recursively for directories).
func (c *Client) Delete(ctx context.Context, caseID, path string) error {
	q := url.Values{"path": {path}}
	return c.sendJSON(ctx, "delete", http.MethodDelete, c.caseURL(caseID, "files", q), nil)
}

// Download streams one file. The caller must close the reader.
func (c *Client) Download(ctx context.Context, caseID, path string, view bool) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(caseID, path, view), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.do("download", req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// DownloadZip streams a zip of paths. The caller must close the reader.
func (c *Client) DownloadZip(ctx context.Context, caseID string, paths []string) (io.ReadCloser, error) {
	body, err := json.Marshal(protocol.ZipRequest{Paths: paths})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.caseURL(caseID, "download-zip", nil), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do("download zip", req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// Upload stores content at path, replacing an existing file.
func (c *Client) Upload(ctx context.Context, caseID, path string, content io.Reader, size int64) (*protocol.UploadResponse, error) {
	q := url.Values{"path": {path}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.caseURL(caseID, "content", q), content)
	if err != nil {
		return nil, err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.do("upload", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out protocol.UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &NetworkError{Op: "upload", Err: err}
	}
	return &out, nil
}

// Case returns the registered case, including its case number.
func (c *Client) Case(ctx context.Context, caseID string) (*protocol.CaseInfo, error) {
	var info protocol.CaseInfo
	if err := c.getJSON(ctx, "get case", c.caseURL(caseID, "", nil), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// RegisterCase creates the case or updates its case number.
func (c *Client) RegisterCase(ctx context.Context, caseID, caseNumber string) error {
	return c.sendJSON(ctx, "register case", http.MethodPut, c.caseURL(caseID, "", nil),
		protocol.CaseInfo{ID: caseID, CaseNumber: caseNumber})
}

// Link binds the entry at path to a checklist item.
func (c *Client) Link(ctx context.Context, caseID, path string, item protocol.LinkedInfo) error {
	return c.sendJSON(ctx, "link", http.MethodPut, c.caseURL(caseID, "links", nil),
		protocol.LinkRequest{Path: path, Item: item})
}

// Unlink removes the checklist binding of the entry at path.
func (c *Client) Unlink(ctx context.Context, caseID, path string) error {
	q := url.Values{"path": {path}}
	return c.sendJSON(ctx, "unlink", http.MethodDelete, c.caseURL(caseID, "links", q), nil)
}

// DownloadURL is the absolute single-file download URL.
func (c *Client) DownloadURL(caseID, path string, view bool) string {
	q := url.Values{"path": {path}}
	if view {
		q.Set("view", "1")
	}
	c.linkToken(q)
	return c.caseURL(caseID, "download", q)
}

// ZipURL is the absolute batch-zip URL for a GET download.
func (c *Client) ZipURL(caseID string, paths []string) string {
	q := url.Values{"path": paths}
	c.linkToken(q)
	return c.caseURL(caseID, "download-zip", q)
}

// linkToken embeds the bearer token in a URL that is opened without our
// headers, such as a download dropped on the desktop.
func (c *Client) linkToken(q url.Values) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		q.Set("token", c.authToken)
	}
}
