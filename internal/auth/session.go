package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	// Fallback lifetime when the server does not say when tokens expire.
	tokenLifetime = 8 * time.Hour
	// Refresh this long before the expiry rather than at it.
	refreshBuffer = 5 * time.Minute

	exchangePath = "/auth/v1/login"
)

// SessionState names the authentication state machine states.
type SessionState string

const (
	StateUnauthenticated SessionState = "unauthenticated"
	StateAuthenticating  SessionState = "authenticating"
	StateAuthenticated   SessionState = "authenticated"
	StateRefreshing      SessionState = "refreshing"
	StateFailed          SessionState = "failed"
)

// Config declares the vendor auth endpoints and client identity.
type Config struct {
	AuthBaseURL  string
	AuthorizeURL string
	TokenURL     string
	ClientID     string
	AppVersion   string
	// Account keys the persisted state locally and in the blob mirror.
	Account   string
	StatePath string
}

// Session owns the credential state machine for one account. All devices
// under the account share the same Session by reference; refresh is globally
// single-flight so concurrent callers never race a token rotation.
type Session struct {
	cfg        Config
	oauthCfg   *oauth2.Config
	httpClient *http.Client
	blob       BlobStore
	login      LoginSurface
	log        *zap.Logger

	mu       sync.Mutex
	creds    Credentials
	mobileID string
	state    SessionState
	inflight *refreshResult
}

type refreshResult struct {
	done chan struct{}
	err  error
}

// NewSession loads persisted refresh state (local file first, blob mirror as
// fallback) and returns an unauthenticated session ready to refresh on
// demand. A missing state is not an error; the caller may still install
// tokens via InitializeWithTokens or FullLogin.
func NewSession(cfg Config, blob BlobStore, log *zap.Logger) (*Session, error) {
	if cfg.TokenURL == "" {
		return nil, fmt.Errorf("token URL is required")
	}
	if cfg.AuthBaseURL == "" {
		return nil, fmt.Errorf("auth base URL is required")
	}
	if cfg.StatePath == "" {
		return nil, fmt.Errorf("state path is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	s := &Session{
		cfg: cfg,
		oauthCfg: &oauth2.Config{
			ClientID: cfg.ClientID,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthorizeURL,
				TokenURL: cfg.TokenURL,
			},
		},
		httpClient: &http.Client{Timeout: 15 * time.Second},
		blob:       blob,
		log:        log,
		state:      StateUnauthenticated,
	}
	s.login = &formLogin{httpClient: s.httpClient, log: log}

	state, err := s.loadInitialState()
	if err != nil {
		return nil, err
	}
	s.creds.RefreshToken = state.RefreshToken
	s.mobileID = state.MobileID
	if s.mobileID == "" {
		s.mobileID = uuid.NewString()
		if state.RefreshToken != "" {
			s.persistState(context.Background())
		}
	}

	return s, nil
}

// SetLoginSurface swaps the interactive login parser. The default scrapes the
// vendor's server-templated login page, which is externally controlled and
// known-fragile.
func (s *Session) SetLoginSurface(surface LoginSurface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if surface != nil {
		s.login = surface
	}
}

// State returns the current state machine state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Credentials returns a copy of the current credential set.
func (s *Session) Credentials() Credentials {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creds
}

// MobileID is the stable per-install device identifier sent with the
// token exchange and every command envelope.
func (s *Session) MobileID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mobileID
}

// SeedRefreshToken installs an externally supplied refresh credential when no
// persisted state carries one. The next refresh turns it into a full
// credential set.
func (s *Session) SeedRefreshToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if token != "" && s.creds.RefreshToken == "" {
		s.creds.RefreshToken = token
	}
}

// InitializeWithTokens installs externally obtained tokens (e.g. from the
// host platform's pairing flow), derives the expiry, and runs the token
// exchange. On failure the session stays unauthenticated.
func (s *Session) InitializeWithTokens(ctx context.Context, access, id, refresh string) error {
	if access == "" || id == "" {
		return authErr("initialize", "access and id tokens are required")
	}

	s.mu.Lock()
	s.state = StateAuthenticating
	mobileID := s.mobileID
	s.mu.Unlock()

	expiresAt := tokenExpiry(id, time.Now())

	exchange, err := s.exchangeToken(ctx, id, mobileID)
	if err != nil {
		s.mu.Lock()
		s.state = StateUnauthenticated
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.creds = Credentials{
		AccessToken:   access,
		IDToken:       id,
		ExchangeToken: exchange,
		RefreshToken:  refresh,
		ExpiresAt:     expiresAt,
	}
	s.state = StateAuthenticated
	s.mu.Unlock()

	tokenValid.Set(1)
	s.persistState(ctx)
	return nil
}

// EnsureAuthenticated is a no-op while the session holds fresh credentials,
// and otherwise refreshes. Callers without a refresh credential get an
// AuthError; re-pairing through the host platform is the only repair.
func (s *Session) EnsureAuthenticated(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateAuthenticated && time.Until(s.creds.ExpiresAt) > refreshBuffer {
		s.mu.Unlock()
		return nil
	}
	if s.creds.RefreshToken == "" {
		s.state = StateFailed
		s.mu.Unlock()
		tokenValid.Set(0)
		return authErr("ensure", "no refresh credential available")
	}
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// Refresh rotates the credential set: refresh-token grant first, then an
// unconditional re-run of the token exchange with the fresh id token. The
// exchange token is never reused across an id-token rotation. Concurrent
// callers await the same in-flight refresh.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if r := s.inflight; r != nil {
		s.mu.Unlock()
		select {
		case <-r.done:
			return r.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	r := &refreshResult{done: make(chan struct{})}
	s.inflight = r
	s.state = StateRefreshing
	refreshToken := s.creds.RefreshToken
	mobileID := s.mobileID
	s.mu.Unlock()

	err := s.doRefresh(ctx, refreshToken, mobileID)

	s.mu.Lock()
	r.err = err
	s.inflight = nil
	if err == nil {
		s.state = StateAuthenticated
	} else {
		s.state = StateFailed
	}
	s.mu.Unlock()
	close(r.done)

	return err
}

func (s *Session) doRefresh(ctx context.Context, refreshToken, mobileID string) error {
	if refreshToken == "" {
		refreshFailure.Inc()
		tokenValid.Set(0)
		return authErr("refresh", "no refresh credential available")
	}

	tokenCtx := context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	source := s.oauthCfg.TokenSource(tokenCtx, &oauth2.Token{RefreshToken: refreshToken})
	token, err := source.Token()
	if err != nil {
		refreshFailure.Inc()
		tokenValid.Set(0)
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			body := strings.TrimSpace(string(retrieveErr.Body))
			return AuthError{Op: "refresh", Err: fmt.Errorf("token endpoint %d: %s", retrieveErr.Response.StatusCode, body)}
		}
		return AuthError{Op: "refresh", Err: err}
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		refreshFailure.Inc()
		tokenValid.Set(0)
		return authErr("refresh", "token response missing id_token")
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = tokenExpiry(idToken, time.Now())
	}

	exchange, err := s.exchangeToken(ctx, idToken, mobileID)
	if err != nil {
		refreshFailure.Inc()
		tokenValid.Set(0)
		return err
	}

	s.mu.Lock()
	s.creds.AccessToken = token.AccessToken
	s.creds.IDToken = idToken
	s.creds.ExchangeToken = exchange
	s.creds.ExpiresAt = expiresAt
	if token.RefreshToken != "" {
		s.creds.RefreshToken = token.RefreshToken
	}
	s.mu.Unlock()

	refreshSuccess.Inc()
	tokenValid.Set(1)
	s.log.Info("session refreshed", zap.Time("expires_at", expiresAt))
	s.persistState(ctx)
	return nil
}

// FullLogin drives the best-effort interactive login through the configured
// LoginSurface and installs whatever credentials it recovers. The login
// page's structure is externally controlled; failure to parse it surfaces as
// an AuthError.
func (s *Session) FullLogin(ctx context.Context, username, password string) error {
	s.mu.Lock()
	surface := s.login
	s.mu.Unlock()

	creds, err := surface.CompleteLogin(ctx, LoginTranscript{
		AuthorizeURL: s.cfg.AuthorizeURL,
		ClientID:     s.cfg.ClientID,
		Username:     username,
		Password:     password,
	})
	if err != nil {
		return err
	}
	return s.InitializeWithTokens(ctx, creds.AccessToken, creds.IDToken, creds.RefreshToken)
}

// MarkFailed records that the server rejected freshly refreshed credentials.
func (s *Session) MarkFailed() {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
	tokenValid.Set(0)
}

func (s *Session) exchangeToken(ctx context.Context, idToken, mobileID string) (string, error) {
	payload := map[string]string{
		"appVersion":  s.cfg.AppVersion,
		"mobileId":    mobileID,
		"os":          "android",
		"osVersion":   "11",
		"deviceModel": "honairco",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", AuthError{Op: "exchange", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.AuthBaseURL+exchangePath, bytes.NewReader(body))
	if err != nil {
		return "", AuthError{Op: "exchange", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("id-token", idToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		exchangeFailure.Inc()
		return "", AuthError{Op: "exchange", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		exchangeFailure.Inc()
		data, _ := io.ReadAll(resp.Body)
		return "", authErr("exchange", "exchange endpoint %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var out struct {
		CognitoUser struct {
			Token string `json:"Token"`
		} `json:"cognitoUser"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		exchangeFailure.Inc()
		return "", AuthError{Op: "exchange", Err: fmt.Errorf("decode exchange response: %w", err)}
	}
	if out.CognitoUser.Token == "" {
		exchangeFailure.Inc()
		return "", authErr("exchange", "exchange response missing service token")
	}
	return out.CognitoUser.Token, nil
}

func (s *Session) loadInitialState() (State, error) {
	local, localErr := LoadState(s.cfg.StatePath)
	if localErr == nil {
		return local, nil
	}
	if !errors.Is(localErr, ErrStateNotFound) {
		return State{}, localErr
	}

	if s.blob == nil {
		return State{}, nil
	}

	data, blobErr := s.blob.Load(context.Background(), s.cfg.Account)
	if blobErr != nil {
		if errors.Is(blobErr, ErrBlobNotFound) {
			return State{}, nil
		}
		return State{}, blobErr
	}
	state, err := DecodeState(data)
	if err != nil {
		return State{}, err
	}
	if err := WriteState(s.cfg.StatePath, state); err != nil {
		return State{}, err
	}
	return state, nil
}

func (s *Session) persistState(ctx context.Context) {
	s.mu.Lock()
	state := State{
		SchemaVersion: SchemaVersion,
		RefreshToken:  s.creds.RefreshToken,
		MobileID:      s.mobileID,
	}
	s.mu.Unlock()

	if state.RefreshToken == "" {
		return
	}
	if err := WriteState(s.cfg.StatePath, state); err != nil {
		s.log.Warn("persist auth state", zap.Error(err))
		return
	}
	if s.blob == nil {
		return
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return
	}
	if err := s.blob.Save(ctx, s.cfg.Account, data); err != nil {
		remotePersistOK.Set(0)
		s.log.Warn("persist auth blob", zap.Error(err))
		return
	}
	remotePersistOK.Set(1)
}

// tokenExpiry reads the exp claim without verifying the signature; the token
// was just issued to us over TLS and is only inspected for scheduling.
func tokenExpiry(token string, issued time.Time) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil && exp.Unix() > 0 {
			return exp.Time
		}
	}
	return issued.Add(tokenLifetime)
}
