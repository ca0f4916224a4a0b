package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/session"
)

type echoPayload struct {
	Reply string `json:"reply"`
	Count int    `json:"count"`
}

// newTestClient creates a Client pointing at a test HTTP server.
func newTestClient(server *httptest.Server, opts ...Option) *Client {
	opts = append([]Option{WithHTTPClient(server.Client())}, opts...)
	return NewClient(server.URL, opts...)
}

func TestCallSuccessDecodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content type: %s", r.Header.Get("Content-Type"))
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("missing request ID header")
		}
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		if in["message"] != "hello" {
			t.Errorf("unexpected body: %v", in)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(echoPayload{Reply: "hi", Count: 2})
	}))
	defer server.Close()

	client := newTestClient(server)
	res := Call[echoPayload](context.Background(), client, Request{
		Method: http.MethodPost,
		Path:   "chat",
		JSON:   map[string]string{"message": "hello"},
	})

	got, ok := res.Value()
	if !ok {
		t.Fatalf("expected success, got %v", res.Err())
	}
	if got != (echoPayload{Reply: "hi", Count: 2}) {
		t.Errorf("payload = %+v", got)
	}
	if res.Err() != nil {
		t.Error("success result must not carry an error")
	}
}

func TestNonSuccessStatusesAlwaysFail(t *testing.T) {
	statuses := []int{301, 400, 401, 403, 404, 409, 429, 500, 502, 503}
	for _, status := range statuses {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				w.Write([]byte(`{"reply":"should not decode"}`))
			}))
			defer server.Close()

			client := newTestClient(server, WithHTTPClient(&http.Client{
				CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
			}))
			res := Call[echoPayload](context.Background(), client, Request{Path: "/records"})
			if res.OK() {
				t.Fatalf("status %d produced a success result", status)
			}
			if res.Err() == nil {
				t.Fatal("failure result without an error")
			}
			if res.Err().Status != status {
				t.Errorf("status = %d, want %d", res.Err().Status, status)
			}
		})
	}
}

func TestStructuredErrorRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"code":"OPENAI_RATE_LIMIT","message":"quota exceeded upstream"}`))
	}))
	defer server.Close()

	res := newTestClient(server).Do(context.Background(), Request{Method: http.MethodPost, Path: "/analyze"})
	err := res.Err()
	if err == nil {
		t.Fatal("expected failure")
	}
	if err.Code != apierr.CodeUpstreamRateLimit || err.Kind != apierr.KindUpstreamRateLimit {
		t.Errorf("classification = %s/%s", err.Code, err.Kind)
	}
	if err.Message != "Too many requests. Please wait a moment and try again." {
		t.Errorf("message = %q", err.Message)
	}
	policy := apierr.Policy(err)
	if !policy.Recoverable || policy.Delay != 60*time.Second {
		t.Errorf("policy = %+v, want recoverable with 60s delay", policy)
	}
}

func TestErrorBodyVariants(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantCode    apierr.Code
		wantKind    apierr.Kind
		wantMessage string
	}{
		{
			name:        "nested security service error",
			status:      400,
			body:        `{"error":{"code":"VALIDATION_ERROR","message":"Email already registered"}}`,
			wantCode:    apierr.CodeValidation,
			wantKind:    apierr.KindValidation,
			wantMessage: "Email already registered",
		},
		{
			name:        "unknown code keeps server message",
			status:      500,
			body:        `{"code":"DB_MELTDOWN","message":"Database is on fire"}`,
			wantCode:    "DB_MELTDOWN",
			wantKind:    apierr.KindUnknown,
			wantMessage: "Database is on fire",
		},
		{
			name:        "unknown code without message",
			status:      500,
			body:        `{"code":"DB_MELTDOWN"}`,
			wantCode:    "DB_MELTDOWN",
			wantKind:    apierr.KindUnknown,
			wantMessage: apierr.FallbackMessage,
		},
		{
			name:        "storage failure",
			status:      500,
			body:        `{"code":"STORAGE_ERROR","message":"PutItem failed"}`,
			wantCode:    apierr.CodeStorage,
			wantKind:    apierr.KindSave,
			wantMessage: "Failed to save your data. Please try again.",
		},
		{
			name:        "html gateway page",
			status:      502,
			body:        `<html><body>Bad Gateway</body></html>`,
			wantCode:    apierr.CodeNetwork,
			wantKind:    apierr.KindNetwork,
			wantMessage: "Network error. Please check your connection and try again.",
		},
		{
			name:        "fastapi detail string",
			status:      400,
			body:        `{"detail":"File size exceeds 10MB limit"}`,
			wantCode:    apierr.CodeValidation,
			wantKind:    apierr.KindValidation,
			wantMessage: "File size exceeds 10MB limit",
		},
		{
			name:        "unauthorized without code",
			status:      401,
			body:        ``,
			wantCode:    apierr.CodeAuthRequired,
			wantKind:    apierr.KindAuthRequired,
			wantMessage: "Please log in to continue.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			defer server.Close()

			err := newTestClient(server).Do(context.Background(), Request{Path: "/x"}).Err()
			if err == nil {
				t.Fatal("expected failure")
			}
			if err.Code != tt.wantCode || err.Kind != tt.wantKind {
				t.Errorf("classification = %s/%s, want %s/%s", err.Code, err.Kind, tt.wantCode, tt.wantKind)
			}
			if err.Message != tt.wantMessage {
				t.Errorf("message = %q, want %q", err.Message, tt.wantMessage)
			}
		})
	}
}

func TestTimeoutIsDistinctFromNetworkFailure(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := newTestClient(server, WithTimeouts(Timeouts{Analysis: 50 * time.Millisecond}))
	start := time.Now()
	err := client.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/analyze",
		JSON:   map[string]string{},
		Class:  ClassAnalysis,
	}).Err()
	if err == nil {
		t.Fatal("expected timeout failure")
	}
	if err.Code != apierr.CodeTimeout || err.Kind != apierr.KindTimeout {
		t.Errorf("classification = %s/%s, want timeout", err.Code, err.Kind)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took %s", elapsed)
	}
}

func TestConnectionRefusedIsNetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	err := NewClient(url).Do(context.Background(), Request{Path: "/health"}).Err()
	if err == nil {
		t.Fatal("expected failure")
	}
	if err.Code != apierr.CodeNetwork {
		t.Errorf("code = %s, want NETWORK_ERROR", err.Code)
	}
}

func TestAuthRequiredWithoutSessionSendsNothing(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client := newTestClient(server)
	err := client.Do(context.Background(), Request{Path: "/records", Auth: true, Session: &session.Session{}}).Err()
	if err == nil || err.Code != apierr.CodeAuthRequired {
		t.Fatalf("err = %v, want AUTH_REQUIRED", err)
	}
	if hits.Load() != 0 {
		t.Errorf("server received %d requests, want 0", hits.Load())
	}
}

func TestBearerTokenAttachedOnlyWhenRequested(t *testing.T) {
	var gotAuth []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = append(gotAuth, r.Header.Get("Authorization"))
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := newTestClient(server)
	sess := &session.Session{Token: "tok-abc"}
	client.Do(context.Background(), Request{Path: "/a", Auth: true, Session: sess})
	client.Do(context.Background(), Request{Path: "/b", Session: sess})

	if len(gotAuth) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(gotAuth))
	}
	if gotAuth[0] != "Bearer tok-abc" {
		t.Errorf("auth header = %q, want Bearer tok-abc", gotAuth[0])
	}
	if gotAuth[1] != "" {
		t.Errorf("unexpected auth header on public call: %q", gotAuth[1])
	}
}

func TestMultipartUpload(t *testing.T) {
	dir := t.TempDir()
	imgPath := filepath.Join(dir, "scan.png")
	// PNG signature followed by padding is enough for MIME sniffing.
	pngBytes := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, make([]byte, 64)...)
	if err := os.WriteFile(imgPath, pngBytes, 0644); err != nil {
		t.Fatal(err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
		}
		if r.FormValue("user_id") != "u-9" {
			t.Errorf("user_id = %q", r.FormValue("user_id"))
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		defer file.Close()
		if header.Filename != "scan.png" {
			t.Errorf("filename = %q", header.Filename)
		}
		if ct := header.Header.Get("Content-Type"); ct != "image/png" {
			t.Errorf("part content type = %q, want image/png", ct)
		}
		data, _ := io.ReadAll(file)
		if len(data) != len(pngBytes) {
			t.Errorf("uploaded %d bytes, want %d", len(data), len(pngBytes))
		}
		w.Write([]byte(`{"reply":"stored","count":1}`))
	}))
	defer server.Close()

	res := Call[echoPayload](context.Background(), newTestClient(server), Request{
		Method: http.MethodPost,
		Path:   "/analyze-and-store",
		Fields: map[string]string{"user_id": "u-9"},
		Files:  []FilePart{{Field: "file", Path: imgPath}},
		Class:  ClassAnalysis,
	})
	if !res.OK() {
		t.Fatalf("unexpected failure: %v", res.Err())
	}
}

func TestMultipartMissingFileFailsBeforeSending(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	err := newTestClient(server).Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/analyze",
		Files:  []FilePart{{Field: "file", Path: filepath.Join(t.TempDir(), "missing.jpg")}},
	}).Err()
	if err == nil || err.Kind != apierr.KindImageProcessing {
		t.Fatalf("err = %v, want image processing failure", err)
	}
	if hits.Load() != 0 {
		t.Error("request should not be sent when the file is unreadable")
	}
}

func TestEmptySuccessBodyAndInvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/empty") {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		w.Write([]byte(`not json`))
	}))
	defer server.Close()

	client := newTestClient(server)
	empty := Call[echoPayload](context.Background(), client, Request{Method: http.MethodDelete, Path: "/records/1/empty"})
	if !empty.OK() {
		t.Errorf("204 should succeed, got %v", empty.Err())
	}

	bad := client.Do(context.Background(), Request{Path: "/garbage"})
	if bad.OK() || bad.Err().Code != apierr.CodeUnknown {
		t.Errorf("invalid JSON success body = %v, want UNKNOWN_ERROR failure", bad.Err())
	}
}

func TestResolveJoinsPaths(t *testing.T) {
	c := NewClient("https://api.example.com/v1/")
	for _, p := range []string{"chats", "/chats"} {
		if got := c.resolve(p, nil); got != "https://api.example.com/v1/chats" {
			t.Errorf("resolve(%q) = %q", p, got)
		}
	}
}

func TestResultInvariant(t *testing.T) {
	zero := Result[int]{}
	if zero.OK() || zero.Err() == nil {
		t.Error("zero Result must be a failure with an error")
	}
	failed := Fail[int](nil)
	if failed.OK() || failed.Err().Code != apierr.CodeUnknown {
		t.Error("Fail(nil) must coerce to UNKNOWN_ERROR")
	}

	var okCalls, errCalls int
	Ok(5).Match(func(int) { okCalls++ }, func(*apierr.Error) { errCalls++ })
	failed.Match(func(int) { okCalls++ }, func(*apierr.Error) { errCalls++ })
	if okCalls != 1 || errCalls != 1 {
		t.Errorf("Match calls: ok=%d err=%d", okCalls, errCalls)
	}

	doubled := Map(Ok(21), func(v int) int { return v * 2 })
	if v, _ := doubled.Value(); v != 42 {
		t.Errorf("Map = %d", v)
	}
}
