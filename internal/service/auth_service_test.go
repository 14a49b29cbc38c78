package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-client/internal/apiclient"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/repository"
)

func newAuthFixture(t *testing.T, handler http.Handler) (*AuthService, *repository.AccountRepository, *apiclient.Client) {
	t.Helper()

	db := newSchedulerTestDB(t)
	accounts := repository.NewAccountRepository(db)
	guard := NewTimeGuardService(repository.NewTimeTrustRepository(db), 5*time.Minute, zerolog.Nop())

	baseURL := "http://127.0.0.1:0"
	if handler != nil {
		srv := httptest.NewServer(handler)
		t.Cleanup(srv.Close)
		baseURL = srv.URL
	}
	api := apiclient.New(baseURL, 5*time.Second, zerolog.Nop())

	wiped := func(ctx context.Context) error { return nil }
	svc := NewAuthService(accounts, api, guard, wiped, bcrypt.MinCost, zerolog.Nop())
	return svc, accounts, api
}

func TestLoginOnlineCachesCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token": "jwt-abc",
			"user":  map[string]string{"email": "siswa@example.sch.id", "name": "Siswa"},
		})
	})
	mux.HandleFunc("/time", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"server_time": time.Now().UTC().Format(time.RFC3339)})
	})

	svc, accounts, api := newAuthFixture(t, mux)
	ctx := context.Background()

	session, err := svc.LoginOnline(ctx, "siswa@example.sch.id", "rahasia123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if session.Mode != LoginModeOnline {
		t.Errorf("mode: got %q, want online", session.Mode)
	}
	if api.Token() != "jwt-abc" {
		t.Errorf("token not installed: %q", api.Token())
	}

	acc, err := accounts.Get(ctx, "siswa@example.sch.id")
	if err != nil {
		t.Fatalf("account not stored: %v", err)
	}
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte("rahasia123")) != nil {
		t.Error("cached hash does not match the password")
	}
}

func TestLoginOnlineRejectedCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid"}`, http.StatusUnauthorized)
	})

	svc, _, _ := newAuthFixture(t, mux)
	_, err := svc.LoginOnline(context.Background(), "siswa@example.sch.id", "salah")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
}

func TestLoginOfflineAgainstCachedHash(t *testing.T) {
	svc, accounts, api := newAuthFixture(t, nil)
	ctx := context.Background()

	hash, _ := bcrypt.GenerateFromPassword([]byte("rahasia123"), bcrypt.MinCost)
	if err := accounts.Upsert(ctx, model.Account{
		UserEmail:    "siswa@example.sch.id",
		Name:         "Siswa",
		AuthToken:    "jwt-cached",
		PasswordHash: string(hash),
	}); err != nil {
		t.Fatalf("seed account: %v", err)
	}

	session, err := svc.LoginOffline(ctx, "siswa@example.sch.id", "rahasia123")
	if err != nil {
		t.Fatalf("offline login: %v", err)
	}
	if session.Mode != LoginModeOffline {
		t.Errorf("mode: got %q, want offline", session.Mode)
	}
	if api.Token() != "jwt-cached" {
		t.Errorf("cached token not reinstalled: %q", api.Token())
	}

	if _, err := svc.LoginOffline(ctx, "siswa@example.sch.id", "salah"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: got %v, want ErrInvalidCredentials", err)
	}
	if _, err := svc.LoginOffline(ctx, "lain@example.sch.id", "rahasia123"); !errors.Is(err, ErrOfflineLoginUnavailable) {
		t.Fatalf("unknown account: got %v, want ErrOfflineLoginUnavailable", err)
	}
}

func TestLogoutWipesWhenAsked(t *testing.T) {
	db := newSchedulerTestDB(t)
	accounts := repository.NewAccountRepository(db)
	guard := NewTimeGuardService(repository.NewTimeTrustRepository(db), 5*time.Minute, zerolog.Nop())
	api := apiclient.New("http://127.0.0.1:0", time.Second, zerolog.Nop())

	wipeCalls := 0
	svc := NewAuthService(accounts, api, guard, func(ctx context.Context) error {
		wipeCalls++
		return nil
	}, bcrypt.MinCost, zerolog.Nop())
	ctx := context.Background()

	if err := accounts.Upsert(ctx, model.Account{UserEmail: "siswa@example.sch.id", AuthToken: "t"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	api.SetToken("t")

	if err := svc.Logout(ctx, false); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if wipeCalls != 0 {
		t.Error("plain logout must not wipe")
	}
	if api.Token() != "" {
		t.Error("token not cleared on logout")
	}
	if _, err := svc.ActiveSession(ctx); !errors.Is(err, ErrNoActiveAccount) {
		t.Fatalf("session after logout: got %v, want ErrNoActiveAccount", err)
	}

	if err := svc.Logout(ctx, true); err != nil {
		t.Fatalf("logout with wipe: %v", err)
	}
	if wipeCalls != 1 {
		t.Errorf("wipe calls: got %d, want 1", wipeCalls)
	}
}

func TestTokenExpired(t *testing.T) {
	signed := func(exp time.Time) string {
		tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp.Unix()})
		s, _ := tok.SignedString([]byte("unused"))
		return s
	}
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"}).SignedString([]byte("unused"))

	tests := []struct {
		name  string
		token string
		want  bool
	}{
		{"empty", "", true},
		{"garbage", "not-a-jwt", true},
		{"expired", signed(time.Now().Add(-time.Hour)), true},
		{"valid", signed(time.Now().Add(time.Hour)), false},
		{"no exp claim", noExp, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TokenExpired(tc.token); got != tc.want {
				t.Errorf("TokenExpired = %v, want %v", got, tc.want)
			}
		})
	}
}
