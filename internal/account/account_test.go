package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/fpang/medassist/internal/apierr"
	"github.com/fpang/medassist/internal/session"
	"github.com/fpang/medassist/internal/transport"
)

func newTestService(t *testing.T, server *httptest.Server) (*Service, *session.FileStore) {
	t.Helper()
	store := session.NewFileStore(filepath.Join(t.TempDir(), "session.yaml"))
	tc := transport.NewClient(server.URL, transport.WithHTTPClient(server.Client()))
	return New(tc, store), store
}

func TestLoginValidationBeforeNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	svc, _ := newTestService(t, server)
	tests := []struct {
		name    string
		req     LoginRequest
		message string
	}{
		{"empty password", LoginRequest{Email: "a@b.com"}, "Password is required."},
		{"empty email", LoginRequest{Password: "secret"}, "Email is required."},
		{"bad email", LoginRequest{Email: "not-an-email", Password: "secret"}, "Please enter a valid email address."},
		{"bad language", LoginRequest{Email: "a@b.com", Password: "secret", Language: "fr"}, "Language must be one of: en ar."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.Login(context.Background(), tt.req).Err()
			if err == nil || err.Kind != apierr.KindValidation {
				t.Fatalf("err = %v, want validation failure", err)
			}
			if err.Message != tt.message {
				t.Errorf("message = %q, want %q", err.Message, tt.message)
			}
		})
	}
	if hits.Load() != 0 {
		t.Errorf("server received %d requests, want 0", hits.Load())
	}
}

func TestRegisterPasswordLength(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	svc, _ := newTestService(t, server)
	err := svc.Register(context.Background(), RegisterRequest{Name: "A", Email: "a@b.com", Password: "123"}).Err()
	if err == nil || err.Message != "Password must be at least 6 characters." {
		t.Errorf("err = %v", err)
	}
}

func TestLoginPersistsSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+PathLogin {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("login must not send a bearer token")
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "nour@example.com" || body["password"] != "pw" {
			t.Errorf("body = %v", body)
		}
		if _, leaked := body["Language"]; leaked {
			t.Error("language should not be sent")
		}
		w.Write([]byte(`{"data":{"token":"jwt-1","user":{"_id":42,"userName":"Nour","email":"nour@example.com","role":"patient","roleId":3,"appId":"med","appName":"MedAssist"}}}`))
	}))
	defer server.Close()

	svc, store := newTestService(t, server)
	sess, err := svc.Login(context.Background(), LoginRequest{Email: " nour@example.com ", Password: "pw", Language: "ar"}).Unwrap()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := session.UserProfile{ID: "42", Name: "Nour", Email: "nour@example.com", Role: "patient", RoleID: "3", AppID: "med", AppName: "MedAssist"}
	if sess.Token != "jwt-1" || sess.User != want || sess.Language != "ar" {
		t.Errorf("session = %+v", sess)
	}

	loaded, loadErr := store.Load()
	if loadErr != nil {
		t.Fatal(loadErr)
	}
	if loaded.Token != "jwt-1" || loaded.User.ID != "42" || loaded.Language != "ar" {
		t.Errorf("persisted = %+v", loaded)
	}

	if err := svc.Logout(); err != nil {
		t.Fatal(err)
	}
	cleared, _ := svc.Current()
	if cleared.Authenticated() || cleared.Language != "" {
		t.Errorf("after logout = %+v", cleared)
	}
}

func TestLoginRejectedCredentials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":"VALIDATION_ERROR","message":"Invalid email or password"}}`))
	}))
	defer server.Close()

	svc, store := newTestService(t, server)
	err := svc.Login(context.Background(), LoginRequest{Email: "a@b.com", Password: "wrong"}).Err()
	if err == nil || err.Message != "Invalid email or password" {
		t.Fatalf("err = %v", err)
	}
	sess, _ := store.Load()
	if sess.Authenticated() {
		t.Error("failed login must not persist a session")
	}
}

func TestResponseWithoutToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"id":"1"}}`))
	}))
	defer server.Close()

	svc, _ := newTestService(t, server)
	err := svc.Register(context.Background(), RegisterRequest{Name: "A", Email: "a@b.com", Password: "123456"}).Err()
	if err == nil || err.Code != apierr.CodeUnknown {
		t.Errorf("err = %v, want UNKNOWN_ERROR", err)
	}
}
