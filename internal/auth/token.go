package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrCredentialsRejected means the identity provider refused the client
	// credentials themselves. Retrying the grant cannot help until an operator
	// fixes the registration.
	ErrCredentialsRejected = errors.New("identity provider rejected client credentials")
	// ErrProviderUnavailable covers network failures, timeouts and 5xx
	// responses from the token endpoint. The grant can be retried.
	ErrProviderUnavailable = errors.New("identity provider unavailable")
)

// Credentials is everything the client-credentials grant needs.
type Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
}

// AccessToken is a bearer token with its expiry instant. It is never
// persisted; a refreshed token replaces the previous one atomically.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// TokenProvider caches a service-identity bearer token and refreshes it ahead
// of expiry. Refresh is single-flight: concurrent callers share one grant
// request instead of stampeding the identity provider.
type TokenProvider struct {
	creds  Credentials
	client *http.Client
	skew   time.Duration
	logger *logrus.Logger

	mu      sync.RWMutex
	current *AccessToken

	group singleflight.Group
}

func NewTokenProvider(creds Credentials, timeout, skew time.Duration, logger *logrus.Logger) *TokenProvider {
	return &TokenProvider{
		creds:  creds,
		client: &http.Client{Timeout: timeout},
		skew:   skew,
		logger: logger,
	}
}

// Token returns the cached token when it is still comfortably within its
// validity window, otherwise performs (or joins) a refresh.
func (p *TokenProvider) Token(ctx context.Context) (AccessToken, error) {
	if tok, ok := p.cached(); ok {
		return tok, nil
	}
	return p.refresh(ctx)
}

// ForceRefresh discards the cached token and fetches a new one. Callers use
// it when the remote service rejects a token the provider still considers
// valid, e.g. after a provider-side revocation.
func (p *TokenProvider) ForceRefresh(ctx context.Context) (AccessToken, error) {
	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()

	return p.refresh(ctx)
}

func (p *TokenProvider) cached() (AccessToken, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.current == nil {
		return AccessToken{}, false
	}
	if !time.Now().Add(p.skew).Before(p.current.ExpiresAt) {
		return AccessToken{}, false
	}
	return *p.current, true
}

func (p *TokenProvider) refresh(ctx context.Context) (AccessToken, error) {
	v, err, _ := p.group.Do("token", func() (interface{}, error) {
		// A concurrent caller may have finished a refresh while we queued.
		if tok, ok := p.cached(); ok {
			return tok, nil
		}

		tok, err := p.grant(ctx)
		if err != nil {
			return nil, err
		}

		p.mu.Lock()
		p.current = &tok
		p.mu.Unlock()

		return tok, nil
	})
	if err != nil {
		return AccessToken{}, err
	}
	return v.(AccessToken), nil
}

func (p *TokenProvider) grant(ctx context.Context) (AccessToken, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", p.creds.ClientID)
	form.Set("client_secret", p.creds.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.creds.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return AccessToken{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return AccessToken{}, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode >= 500:
		return AccessToken{}, fmt.Errorf("%w: token endpoint returned %d", ErrProviderUnavailable, resp.StatusCode)
	default:
		return AccessToken{}, fmt.Errorf("%w: token endpoint returned %d", ErrCredentialsRejected, resp.StatusCode)
	}

	var body struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return AccessToken{}, fmt.Errorf("%w: decode token response: %v", ErrProviderUnavailable, err)
	}
	if body.AccessToken == "" {
		return AccessToken{}, fmt.Errorf("%w: token response missing access_token", ErrProviderUnavailable)
	}

	tok := AccessToken{
		Value:     body.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(body.ExpiresIn) * time.Second),
	}

	p.logger.WithFields(logrus.Fields{
		"client_id":  p.creds.ClientID,
		"expires_in": body.ExpiresIn,
	}).Debug("acquired access token")

	return tok, nil
}
