package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/exstem-client/internal/apiclient"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/repository"
)

// Common auth errors.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNoActiveAccount    = errors.New("no active account on this device")
	// ErrOfflineLoginUnavailable means the user never logged in online on
	// this device, so there are no cached credentials to verify against.
	ErrOfflineLoginUnavailable = errors.New("offline login unavailable for this account")
)

// LoginMode records which path authenticated the session.
type LoginMode string

const (
	LoginModeOnline  LoginMode = "online"
	LoginModeOffline LoginMode = "offline"
)

// Session describes the signed-in account returned to the UI.
type Session struct {
	Email string    `json:"email"`
	Name  string    `json:"name"`
	Mode  LoginMode `json:"mode"`
}

// OfflineWiper clears all offline rows across every local account. Wired to
// the full set of repositories in cmd/agent.
type OfflineWiper func(ctx context.Context) error

// AuthService manages local accounts: online login against the remote API,
// offline re-login against cached bcrypt credentials, and logout.
type AuthService struct {
	accounts   *repository.AccountRepository
	api        *apiclient.Client
	guard      *TimeGuardService
	wipe       OfflineWiper
	bcryptCost int
	log        zerolog.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(
	accounts *repository.AccountRepository,
	api *apiclient.Client,
	guard *TimeGuardService,
	wipe OfflineWiper,
	bcryptCost int,
	log zerolog.Logger,
) *AuthService {
	return &AuthService{
		accounts:   accounts,
		api:        api,
		guard:      guard,
		wipe:       wipe,
		bcryptCost: bcryptCost,
		log:        log.With().Str("component", "auth").Logger(),
	}
}

// LoginOnline authenticates against the remote API, stores the token plus a
// bcrypt credential cache for later offline logins, and anchors trusted
// time for the user.
func (s *AuthService) LoginOnline(ctx context.Context, email, password string) (*Session, error) {
	result, err := s.api.Login(ctx, email, password)
	if err != nil {
		var statusErr *apiclient.StatusError
		if errors.As(err, &statusErr) && (statusErr.Code == 401 || statusErr.Code == 422) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("remote login: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash credentials: %w", err)
	}

	accountEmail := result.Email
	if accountEmail == "" {
		accountEmail = email
	}

	if err := s.accounts.Upsert(ctx, model.Account{
		UserEmail:    accountEmail,
		Name:         result.Name,
		AuthToken:    result.Token,
		PasswordHash: string(hash),
	}); err != nil {
		return nil, fmt.Errorf("store account: %w", err)
	}

	// Anchor trusted time while we know the server is reachable. A failure
	// here is not fatal to login; the guard simply has no fresh anchor.
	if serverTime, err := s.api.ServerTime(ctx); err == nil {
		if err := s.guard.RecordTrustedTime(ctx, accountEmail, serverTime); err != nil {
			s.log.Warn().Err(err).Msg("Trusted time capture failed after login")
		}
	} else {
		s.log.Warn().Err(err).Msg("Server time fetch failed after login")
	}

	s.log.Info().Str("user_email", accountEmail).Msg("Online login")
	return &Session{Email: accountEmail, Name: result.Name, Mode: LoginModeOnline}, nil
}

// LoginOffline verifies the password against the cached bcrypt hash and
// reactivates the account without touching the network.
func (s *AuthService) LoginOffline(ctx context.Context, email, password string) (*Session, error) {
	acc, err := s.accounts.Get(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrOfflineLoginUnavailable
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acc.PasswordHash == "" {
		return nil, ErrOfflineLoginUnavailable
	}

	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	acc.Active = true
	if err := s.accounts.Upsert(ctx, *acc); err != nil {
		return nil, fmt.Errorf("reactivate account: %w", err)
	}

	// Reuse the stored token for queued uploads once connectivity returns.
	s.api.SetToken(acc.AuthToken)

	s.log.Info().Str("user_email", acc.UserEmail).Msg("Offline login")
	return &Session{Email: acc.UserEmail, Name: acc.Name, Mode: LoginModeOffline}, nil
}

// ActiveUserEmail implements AccountResolver for the scheduler.
func (s *AuthService) ActiveUserEmail(ctx context.Context) (string, error) {
	acc, err := s.accounts.GetActive(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return acc.UserEmail, nil
}

// ActiveSession returns the signed-in account, or ErrNoActiveAccount.
func (s *AuthService) ActiveSession(ctx context.Context) (*Session, error) {
	acc, err := s.accounts.GetActive(ctx)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoActiveAccount
	}
	if err != nil {
		return nil, fmt.Errorf("load active account: %w", err)
	}

	mode := LoginModeOnline
	if TokenExpired(acc.AuthToken) {
		mode = LoginModeOffline
	}
	return &Session{Email: acc.UserEmail, Name: acc.Name, Mode: mode}, nil
}

// RestoreToken re-installs the active account's token on the API client.
// Called on agent startup so queued uploads work without a fresh login.
func (s *AuthService) RestoreToken(ctx context.Context) {
	acc, err := s.accounts.GetActive(ctx)
	if err != nil {
		return
	}
	s.api.SetToken(acc.AuthToken)
}

// Logout deactivates the current account. With wipeOfflineData set it also
// removes every offline row for every local account — destructive, so the
// UI must have confirmed it with the user.
func (s *AuthService) Logout(ctx context.Context, wipeOfflineData bool) error {
	acc, err := s.accounts.GetActive(ctx)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("load active account: %w", err)
	}
	if acc != nil {
		if err := s.accounts.Deactivate(ctx, acc.UserEmail); err != nil {
			return fmt.Errorf("deactivate account: %w", err)
		}
	}

	s.api.SetToken("")

	if wipeOfflineData {
		if err := s.wipe(ctx); err != nil {
			return fmt.Errorf("wipe offline data: %w", err)
		}
		s.log.Info().Msg("All offline accounts wiped")
	}
	return nil
}

// TokenExpired inspects the JWT exp claim without verifying the signature —
// the client does not hold the server's signing secret; expiry is only used
// to decide whether to prompt for a fresh online login.
func TokenExpired(token string) bool {
	if token == "" {
		return true
	}

	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false // No exp claim: treat as non-expiring.
	}
	return exp.Before(time.Now())
}
