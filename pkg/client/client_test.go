package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/wouterc/sagsfiler/pkg/protocol"
	"github.com/wouterc/sagsfiler/pkg/retry"
)

func testClient(handler http.Handler) (*Client, *httptest.Server) {
	ts := httptest.NewServer(handler)
	c := New(Config{BaseURL: ts.URL, AuthToken: "tok"})
	return c, ts
}

func TestList_Success(t *testing.T) {
	var gotPath, gotAuth string
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/cases/c1/files" {
			t.Errorf("unexpected URL path %s", r.URL.Path)
		}
		gotPath = r.URL.Query().Get("path")
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode([]protocol.ListEntry{
			{Path: "a", Name: "a", IsDir: true},
			{Path: "b.pdf", Name: "b.pdf", Size: 12},
		})
	}))
	defer ts.Close()

	entries, err := c.List(context.Background(), "c1", "sub dir")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].IsDir || entries[1].Size != 12 {
		t.Errorf("unexpected entries: %+v", entries)
	}
	if gotPath != "sub dir" {
		t.Errorf("expected path query 'sub dir', got %q", gotPath)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("expected bearer token, got %q", gotAuth)
	}
}

func TestList_Gzip(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			t.Error("expected Accept-Encoding gzip")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Encoding", "gzip")
		gw := gzip.NewWriter(w)
		json.NewEncoder(gw).Encode([]protocol.ListEntry{{Path: "x.txt", Name: "x.txt"}})
		gw.Close()
	}))
	defer ts.Close()

	entries, err := c.List(context.Background(), "c1", "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != "x.txt" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestDelete_Linked(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("expected DELETE, got %s", r.Method)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		// gruppe_nr sent as a number must still decode.
		io.WriteString(w, `{"error":"linked","details":{"gruppe_nr":3,"gruppe_navn":"Skøde","titel":"Underskrevet skøde","id":77}}`)
	}))
	defer ts.Close()

	err := c.Delete(context.Background(), "c1", "docs/skoede.pdf")
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	le, ok := AsLinked(err)
	if !ok {
		t.Fatalf("expected LinkedError, got %T: %v", err, err)
	}
	if le.Details.ID != 77 {
		t.Errorf("expected id 77, got %d", le.Details.ID)
	}
	if le.Details.GroupNumber != "3" {
		t.Errorf("expected gruppe_nr 3, got %q", le.Details.GroupNumber)
	}
	if le.Details.Title != "Underskrevet skøde" {
		t.Errorf("unexpected title %q", le.Details.Title)
	}
}

func TestDelete_LinkedWithoutDetails(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"linked","details":"unavailable"}`)
	}))
	defer ts.Close()

	err := c.Delete(context.Background(), "c1", "docs/skoede.pdf")
	if _, ok := AsLinked(err); ok {
		t.Fatal("linked error without details must not decode as LinkedError")
	}
	ae, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if ae.Status != http.StatusConflict {
		t.Errorf("expected 409, got %d", ae.Status)
	}
	if ae.Message != "" {
		t.Errorf("the linked code must not become the message, got %q", ae.Message)
	}
}

func TestMove_APIError(t *testing.T) {
	var body protocol.MoveRequest
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(protocol.ErrorResponse{Error: "target already exists"})
	}))
	defer ts.Close()

	err := c.Move(context.Background(), "c1", "a.txt", "docs")
	if _, ok := AsLinked(err); ok {
		t.Fatal("plain conflict must not decode as linked")
	}
	ae, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected APIError, got %T: %v", err, err)
	}
	if ae.Status != http.StatusConflict || ae.Message != "target already exists" {
		t.Errorf("unexpected APIError %+v", ae)
	}
	if body.SourcePath != "a.txt" || body.TargetPath != "docs" {
		t.Errorf("unexpected request body %+v", body)
	}
}

func TestMutation_NotRetried(t *testing.T) {
	var attempts atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	err := c.Rename(context.Background(), "c1", "a.txt", "b.txt")
	if err == nil {
		t.Fatal("expected error")
	}
	if ae, ok := AsAPIError(err); !ok || ae.Status != http.StatusInternalServerError {
		t.Errorf("expected 500 APIError, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected exactly 1 attempt, got %d", attempts.Load())
	}
}

func TestNetworkError(t *testing.T) {
	c, ts := testClient(http.NotFoundHandler())
	ts.Close()

	_, err := c.List(context.Background(), "c1", "")
	if !IsNetwork(err) {
		t.Errorf("expected NetworkError, got %T: %v", err, err)
	}
	if _, ok := AsAPIError(err); ok {
		t.Error("network failure must not be an APIError")
	}
}

func TestDownloadZip(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req protocol.ZipRequest
		json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/zip")
		fmt.Fprintf(w, "zip:%s", strings.Join(req.Paths, ","))
	}))
	defer ts.Close()

	rc, err := c.DownloadZip(context.Background(), "c1", []string{"a.txt", "b.txt"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "zip:a.txt,b.txt" {
		t.Errorf("unexpected body %q", data)
	}
}

func TestURLs(t *testing.T) {
	c := New(Config{BaseURL: "https://sager.example/"})

	got := c.DownloadURL("c 1", "docs/a b.pdf", true)
	want := "https://sager.example/api/v1/cases/c%201/download?path=docs%2Fa+b.pdf&view=1"
	if got != want {
		t.Errorf("DownloadURL = %s, want %s", got, want)
	}

	got = c.ZipURL("c1", []string{"a.txt", "b.txt"})
	want = "https://sager.example/api/v1/cases/c1/download-zip?path=a.txt&path=b.txt"
	if got != want {
		t.Errorf("ZipURL = %s, want %s", got, want)
	}

	c.SetAuthToken("tok")
	got = c.ZipURL("c1", []string{"a.txt"})
	want = "https://sager.example/api/v1/cases/c1/download-zip?path=a.txt&token=tok"
	if got != want {
		t.Errorf("ZipURL with token = %s, want %s", got, want)
	}
}

func TestWatch_ReceivesEvents(t *testing.T) {
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, ": hello\n\n")
		io.WriteString(w, "event: moved\ndata: {\"case_id\":\"c1\",\"path\":\"docs/a.txt\",\"old_path\":\"a.txt\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, _ := c.Watch(ctx, "c1", retry.Config{InitialWait: time.Millisecond, MaxWait: time.Millisecond})

	select {
	case ev := <-events:
		if ev.Type != "moved" {
			t.Errorf("expected type from event line, got %q", ev.Type)
		}
		if ev.Path != "docs/a.txt" || ev.OldPath != "a.txt" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestWatch_Reconnects(t *testing.T) {
	var conns atomic.Int32
	c, ts := testClient(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if conns.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		io.WriteString(w, "data: {\"type\":\"deleted\",\"path\":\"x\"}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, errs := c.Watch(ctx, "c1", retry.Config{InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond})

	select {
	case err := <-errs:
		if _, ok := AsAPIError(err); !ok {
			t.Errorf("expected APIError for first connection, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no connection error reported")
	}

	select {
	case ev := <-events:
		if ev.Type != "deleted" {
			t.Errorf("unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event after reconnect")
	}
}
