package pocket

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/quire/internal/apperr"
)

// SettingKind names the settings record holding the Pocket credentials.
const SettingKind = "pocket"

// State is the position in the authorization handshake.
type State string

const (
	StateUnconfigured   State = "unconfigured"
	StateRequestedToken State = "requested_token"
	StateAuthorized     State = "authorized"
)

// Credentials is the persisted handshake record.
type Credentials struct {
	State       State  `json:"state"`
	ConsumerKey string `json:"consumer_key,omitempty"`
	Code        string `json:"code,omitempty"`
	Nonce       string `json:"nonce,omitempty"`
	AccessToken string `json:"access_token,omitempty"`
	Username    string `json:"username,omitempty"`
}

// SettingsStore persists small JSON records.
type SettingsStore interface {
	LoadSetting(kind string, v any) error
	SaveSetting(kind string, v any) error
}

// Session drives the handshake Unconfigured -> RequestedToken -> Authorized.
type Session struct {
	client      *Client
	store       SettingsStore
	redirectURI string

	mu sync.Mutex
}

// NewSession creates a session. redirectURI is where Pocket sends the user
// back; a state parameter is appended to it.
func NewSession(client *Client, store SettingsStore, redirectURI string) *Session {
	return &Session{client: client, store: store, redirectURI: redirectURI}
}

// Status returns the current record; a missing record reads as Unconfigured.
func (s *Session) Status() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Begin requests a token for consumerKey and returns the URL the user must
// visit to approve it. Calling Begin again restarts the handshake.
func (s *Session) Begin(ctx context.Context, consumerKey string) (string, error) {
	if consumerKey == "" {
		return "", apperr.Validation("consumer key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce := uuid.NewString()
	redirect, err := withState(s.redirectURI, nonce)
	if err != nil {
		return "", err
	}
	code, err := s.client.RequestToken(ctx, consumerKey, redirect)
	if err != nil {
		return "", err
	}
	creds := Credentials{
		State:       StateRequestedToken,
		ConsumerKey: consumerKey,
		Code:        code,
		Nonce:       nonce,
	}
	if err := s.store.SaveSetting(SettingKind, creds); err != nil {
		return "", err
	}
	return s.client.AuthorizeURL(code, redirect), nil
}

// Complete finishes the handshake after the user approved it. nonce is the
// state parameter Pocket echoed back on the redirect.
func (s *Session) Complete(ctx context.Context, nonce string) (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	creds, err := s.load()
	if err != nil {
		return Credentials{}, err
	}
	if creds.State != StateRequestedToken {
		return Credentials{}, fmt.Errorf("pocket: no authorization in progress: %w", apperr.ErrRefused)
	}
	if nonce != creds.Nonce {
		return Credentials{}, fmt.Errorf("pocket: state mismatch: %w", apperr.ErrRefused)
	}
	token, user, err := s.client.AccessToken(ctx, creds.ConsumerKey, creds.Code)
	if err != nil {
		return Credentials{}, err
	}
	creds = Credentials{
		State:       StateAuthorized,
		ConsumerKey: creds.ConsumerKey,
		AccessToken: token,
		Username:    user,
	}
	if err := s.store.SaveSetting(SettingKind, creds); err != nil {
		return Credentials{}, err
	}
	return creds, nil
}

// Credentials returns the stored credentials, or apperr.ErrRefused until the
// handshake has completed.
func (s *Session) Credentials() (Credentials, error) {
	creds, err := s.Status()
	if err != nil {
		return Credentials{}, err
	}
	if creds.State != StateAuthorized {
		return Credentials{}, fmt.Errorf("pocket: not authorized: %w", apperr.ErrRefused)
	}
	return creds, nil
}

func (s *Session) load() (Credentials, error) {
	var creds Credentials
	err := s.store.LoadSetting(SettingKind, &creds)
	if errors.Is(err, apperr.ErrNotFound) {
		return Credentials{State: StateUnconfigured}, nil
	}
	if err != nil {
		return Credentials{}, err
	}
	if creds.State == "" {
		creds.State = StateUnconfigured
	}
	return creds, nil
}

func withState(redirectURI, nonce string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil || !u.IsAbs() {
		return "", apperr.Validation("redirect uri %q must be absolute", redirectURI)
	}
	q := u.Query()
	q.Set("state", nonce)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
