package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/quantlab/scanbridge/pkg/config"
	"github.com/quantlab/scanbridge/pkg/httputil"
	"github.com/quantlab/scanbridge/pkg/logger"
)

// defaultTokenTTL is assumed when the auth API omits expires_in, and for
// tokens supplied statically through configuration.
const defaultTokenTTL = time.Hour

// Manager owns the broker credential and its refresh lifecycle. At most
// one refresh is in flight at a time; concurrent callers that observe an
// expired token wait for that refresh instead of issuing their own.
type Manager struct {
	store      Store
	httpClient *httputil.Client
	cfg        config.DhanConfig
	logger     *logger.Logger

	mu   sync.RWMutex
	cred *Credential
}

// tokenResponse is the auth API refresh response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// NewManager creates a token manager seeded from the store, falling back
// to the statically configured token when the store is empty.
func NewManager(cfg config.DhanConfig, store Store, httpClient *httputil.Client, log *logger.Logger) (*Manager, error) {
	m := &Manager{
		store:      store,
		httpClient: httpClient,
		cfg:        cfg,
		logger:     log.Component("auth"),
	}

	cred, err := store.Load(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if cred == nil && cfg.AccessToken != "" {
		// Static token from the environment: assume the default validity
		// window, the first refresh establishes the real expiry.
		cred = &Credential{
			ClientID:     cfg.ClientID,
			AccessToken:  cfg.AccessToken,
			RefreshToken: cfg.RefreshToken,
			ExpiresAt:    time.Now().Add(defaultTokenTTL),
		}
	}

	if cred != nil {
		cred.Secret = cfg.APISecret
		if cred.RefreshToken == "" {
			cred.RefreshToken = cfg.RefreshToken
		}
	}
	m.cred = cred

	return m, nil
}

// Token returns a valid access token, refreshing when expired. A failed
// refresh falls back to the last known token; ErrNoCredential is returned
// only when no token has ever existed.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	if m.cred.Usable(time.Now()) {
		token := m.cred.AccessToken
		m.mu.RUnlock()
		return token, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring the write lock: another caller may have
	// completed the refresh while we waited.
	if m.cred.Usable(time.Now()) {
		return m.cred.AccessToken, nil
	}

	cred, err := m.refresh(ctx)
	if err != nil {
		if m.cred != nil && m.cred.AccessToken != "" {
			m.logger.WithError(err).Warn("Token refresh failed, using last known token")
			return m.cred.AccessToken, nil
		}
		return "", fmt.Errorf("token refresh failed: %w: %w", ErrNoCredential, err)
	}

	m.cred = cred
	m.persist(ctx, cred)

	return cred.AccessToken, nil
}

// Refresh forces a token refresh regardless of expiry. Used by the CLI and
// the keepalive job. The previous credential is kept on failure.
func (m *Manager) Refresh(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, err := m.refresh(ctx)
	if err != nil {
		return err
	}

	m.cred = cred
	m.persist(ctx, cred)
	return nil
}

// ExpiresAt returns the current token expiry, zero when no token exists.
func (m *Manager) ExpiresAt() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.cred == nil {
		return time.Time{}
	}
	return m.cred.ExpiresAt
}

// refresh performs the auth API call. Callers must hold the write lock.
func (m *Manager) refresh(ctx context.Context) (*Credential, error) {
	refreshToken := m.cfg.RefreshToken
	if m.cred != nil && m.cred.RefreshToken != "" {
		refreshToken = m.cred.RefreshToken
	}
	if refreshToken == "" {
		return nil, fmt.Errorf("no refresh token configured")
	}

	url := fmt.Sprintf("%s/token/refresh", m.cfg.BaseURL)
	body := map[string]string{
		"client_id":     m.cfg.ClientID,
		"client_secret": m.cfg.APISecret,
		"refresh_token": refreshToken,
	}

	resp, err := m.httpClient.PostJSON(ctx, url, body)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token request failed with status %d: %s", resp.StatusCode, string(respBody))
	}

	var tokenResp tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" {
		return nil, fmt.Errorf("token response missing access_token")
	}

	ttl := defaultTokenTTL
	if tokenResp.ExpiresIn > 0 {
		ttl = time.Duration(tokenResp.ExpiresIn) * time.Second
	}

	m.logger.WithField("expires_in", int(ttl.Seconds())).Info("Access token refreshed")

	return &Credential{
		ClientID:     m.cfg.ClientID,
		Secret:       m.cfg.APISecret,
		RefreshToken: refreshToken,
		AccessToken:  tokenResp.AccessToken,
		ExpiresAt:    time.Now().Add(ttl),
	}, nil
}

// persist writes the credential through the store. Persistence failures are
// logged, not fatal: the refreshed token is still usable in-process.
func (m *Manager) persist(ctx context.Context, cred *Credential) {
	if err := m.store.Save(ctx, cred); err != nil {
		m.logger.WithError(err).Error("Failed to persist credential")
	}
}
