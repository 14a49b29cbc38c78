package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestLoginInstallsToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/login" || r.Method != http.MethodPost {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["email"] != "siswa@example.sch.id" {
			t.Errorf("email: got %q", body["email"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": "jwt-abc",
			"user":  map[string]string{"email": "siswa@example.sch.id", "name": "Siswa"},
		})
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second, zerolog.Nop())
	result, err := client.Login(context.Background(), "siswa@example.sch.id", "rahasia")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Token != "jwt-abc" || result.Name != "Siswa" {
		t.Errorf("result: %+v", result)
	}
	if client.Token() != "jwt-abc" {
		t.Errorf("token not installed: %q", client.Token())
	}
}

func TestLoginRejectedCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second, zerolog.Nop())
	_, err := client.Login(context.Background(), "siswa@example.sch.id", "salah")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 StatusError, got %v", err)
	}
}

func TestSubmitAssignmentCarriesSubmittedAt(t *testing.T) {
	var gotSubmittedAt, gotFilename, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/assessments/42/submit-assignment" {
			t.Errorf("path: %s", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		gotSubmittedAt = r.FormValue("submitted_at")
		file, header, err := r.FormFile("assignment_file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		file.Close()
		gotFilename = header.Filename
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "spooled.pdf")
	if err := os.WriteFile(path, []byte("%PDF"), 0o644); err != nil {
		t.Fatalf("write spool file: %v", err)
	}

	client := New(srv.URL, 5*time.Second, zerolog.Nop())
	client.SetToken("jwt-abc")

	submittedAt := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	if err := client.SubmitAssignment(context.Background(), 42, path, "hw.pdf", submittedAt); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if gotSubmittedAt != "2025-01-01T10:00:00Z" {
		t.Errorf("submitted_at on the wire: got %q, want original capture time", gotSubmittedAt)
	}
	if gotFilename != "hw.pdf" {
		t.Errorf("filename: got %q, want hw.pdf", gotFilename)
	}
	if gotAuth != "Bearer jwt-abc" {
		t.Errorf("authorization: got %q", gotAuth)
	}
}

func TestPerClientTokenIsolation(t *testing.T) {
	a := New("http://a.invalid", time.Second, zerolog.Nop())
	b := New("http://b.invalid", time.Second, zerolog.Nop())

	a.SetToken("token-a")
	if b.Token() != "" {
		t.Error("token leaked between client instances")
	}
}

func TestServerTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"server_time": "2025-06-01T12:00:00Z"})
	}))
	defer srv.Close()

	client := New(srv.URL, 5*time.Second, zerolog.Nop())
	got, err := client.ServerTime(context.Background())
	if err != nil {
		t.Fatalf("server time: %v", err)
	}
	want := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}

	if !client.Probe(context.Background()) {
		t.Error("probe should succeed against a healthy server")
	}
}

func TestProbeFailsFastOnDeadServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // dead endpoint

	client := New(srv.URL, 30*time.Second, zerolog.Nop())
	if client.Probe(context.Background()) {
		t.Error("probe should fail against a closed server")
	}
}
