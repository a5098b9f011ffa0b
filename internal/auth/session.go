// Package auth implements the OAuth2 authorization-code + PKCE login flow
// used by Channel Plus deployments, with persisted, auto-refreshing bearer
// tokens. Login and refresh are never retried in a loop: a rejected
// credential is fatal to the run.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/chget/chplus-dl/internal/config"
)

// expiryLeeway is subtracted from the access token's exp claim so a token
// about to expire mid-request is refreshed up front.
const expiryLeeway = 30 * time.Second

const oauthScope = "openid profile email offline_access"

// Credentials are the account username and password used for the
// resource-owner login form.
type Credentials struct {
	Username string
	Password string
}

// tokenResponse is the token endpoint's reply for both the
// authorization-code and refresh-token grants.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// Session is the authentication state machine for one account. It owns the
// current token pair exclusively; all authenticated callers obtain bearer
// tokens through Token.
type Session struct {
	profile *config.Profile
	creds   Credentials
	store   TokenStore
	client  *http.Client

	authorizeEndpoint string
	tokenEndpoint     string
	pkce              *PKCE
	auth0Client       string

	mu    sync.Mutex
	pair  TokenPair
	group singleflight.Group
}

// NewSession creates an uninitialized session. If client is nil, a
// cookie-carrying client is created; the login form flow depends on the
// Auth0 session cookie surviving across the authorize and credential
// requests.
func NewSession(profile *config.Profile, creds Credentials, store TokenStore, client *http.Client) *Session {
	if client == nil {
		jar, _ := cookiejar.New(nil)
		client = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}
	return &Session{
		profile:     profile,
		creds:       creds,
		store:       store,
		client:      client,
		auth0Client: Auth0ClientHeader(),
	}
}

// Initialize discovers the tenant's OAuth endpoints, derives fresh PKCE
// state, and either restores a persisted token pair or performs a login.
func (s *Session) Initialize(ctx context.Context) error {
	if err := s.discover(ctx); err != nil {
		return err
	}

	pkce, err := GeneratePKCE()
	if err != nil {
		return authErr("pkce", err)
	}
	s.pkce = pkce

	pair, err := s.store.Load(s.creds.Username)
	switch {
	case err == nil:
		s.mu.Lock()
		s.pair = pair
		s.mu.Unlock()
		log.Debug("restored persisted token pair")
		return nil
	case errors.Is(err, ErrTokenNotFound):
		return s.login(ctx)
	default:
		return authErr("load", err)
	}
}

// Token returns a valid bearer token, refreshing or re-logging-in first if
// the current access token is stale. Concurrent callers share a single
// refresh; only one re-authentication is ever in flight.
func (s *Session) Token(ctx context.Context) (string, error) {
	if token, ok := s.freshToken(); ok {
		return token, nil
	}

	v, err, _ := s.group.Do("reauth", func() (any, error) {
		if token, ok := s.freshToken(); ok {
			return token, nil
		}
		if err := s.refresh(ctx); err != nil {
			return "", err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.pair.AccessToken, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// freshToken returns the current access token if its expiry claim is still
// in the future. A token whose claims cannot be decoded counts as stale.
func (s *Session) freshToken() (string, bool) {
	s.mu.Lock()
	pair := s.pair
	s.mu.Unlock()

	if pair.AccessToken == "" {
		return "", false
	}
	exp, err := tokenExpiry(pair.AccessToken)
	if err != nil {
		log.Debugf("access token expiry undecodable, forcing refresh: %v", err)
		return "", false
	}
	if time.Now().Add(expiryLeeway).After(exp) {
		return "", false
	}
	return pair.AccessToken, true
}

// discover fetches the OpenID discovery document and records the authorize
// and token endpoints.
func (s *Session) discover(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.profile.OpenIDConfigurationURL(), nil)
	if err != nil {
		return authErr("discover", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return authErr("discover", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return authErrf("discover", "openid configuration returned status %d", resp.StatusCode)
	}

	var doc struct {
		AuthorizationEndpoint string `json:"authorization_endpoint"`
		TokenEndpoint         string `json:"token_endpoint"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return authErr("discover", err)
	}
	if doc.AuthorizationEndpoint == "" || doc.TokenEndpoint == "" {
		return authErrf("discover", "openid configuration missing endpoints")
	}

	s.authorizeEndpoint = doc.AuthorizationEndpoint
	s.tokenEndpoint = doc.TokenEndpoint
	log.Debugf("discovered oauth endpoints: authorize=%s token=%s", doc.AuthorizationEndpoint, doc.TokenEndpoint)
	return nil
}

// login runs the full authorization-code flow: fetch the hosted login form
// through the authorize endpoint, submit credentials to the echoed form
// URL, pull the authorization code off the final redirect, and exchange it
// with the PKCE verifier.
func (s *Session) login(ctx context.Context) error {
	formURL, err := s.fetchLoginForm(ctx)
	if err != nil {
		return err
	}

	code, err := s.submitCredentials(ctx, formURL)
	if err != nil {
		return err
	}

	pair, err := s.exchange(ctx, url.Values{
		"client_id":     {s.profile.ClientID},
		"code_verifier": {s.pkce.Verifier},
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {s.profile.RedirectURI()},
	})
	if err != nil {
		return authErr("exchange", err)
	}

	return s.adopt(pair)
}

// refresh exchanges the refresh token for a new pair, falling back to a
// full login when the grant is rejected.
func (s *Session) refresh(ctx context.Context) error {
	s.mu.Lock()
	refreshToken := s.pair.RefreshToken
	s.mu.Unlock()

	if refreshToken == "" {
		return s.login(ctx)
	}

	pair, err := s.exchange(ctx, url.Values{
		"client_id":     {s.profile.ClientID},
		"redirect_uri":  {s.profile.RedirectURI()},
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
	})
	if err != nil {
		log.Warnf("token refresh rejected, attempting login: %v", err)
		return s.login(ctx)
	}

	return s.adopt(pair)
}

// fetchLoginForm GETs the authorize URL and follows its redirects to the
// hosted login form. The form URL (with the echoed state) is the submit
// target.
func (s *Session) fetchLoginForm(ctx context.Context) (*url.URL, error) {
	authorizeURL := s.authorizeURL()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, authorizeURL, nil)
	if err != nil {
		return nil, authErr("authorize", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, authErr("authorize", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, authErrf("authorize", "login page returned status %d", resp.StatusCode)
	}

	return resp.Request.URL, nil
}

// submitCredentials POSTs the account credentials to the login form and
// extracts the authorization code from the final redirect's query.
func (s *Session) submitCredentials(ctx context.Context, formURL *url.URL) (string, error) {
	form := url.Values{
		"username": {s.creds.Username},
		"password": {s.creds.Password},
		"state":    {formURL.Query().Get("state")},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, formURL.String(), strings.NewReader(form.Encode()))
	if err != nil {
		return "", authErr("login", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Auth0-Client", s.auth0Client)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", authErr("login", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	// The redirect target is not a real page; only the code parameter on
	// the final URL matters.
	code := resp.Request.URL.Query().Get("code")
	if code == "" {
		return "", authErrf("login", "credentials rejected: no authorization code in redirect")
	}
	return code, nil
}

// exchange POSTs a grant to the token endpoint and requires both tokens in
// the reply.
func (s *Session) exchange(ctx context.Context, form url.Values) (TokenPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return TokenPair{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Auth0-Client", s.auth0Client)

	resp, err := s.client.Do(req)
	if err != nil {
		return TokenPair{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return TokenPair{}, fmt.Errorf("token endpoint returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return TokenPair{}, fmt.Errorf("decode token response: %w", err)
	}
	if tr.AccessToken == "" || tr.RefreshToken == "" {
		return TokenPair{}, errors.New("token response missing tokens")
	}

	return TokenPair{AccessToken: tr.AccessToken, RefreshToken: tr.RefreshToken}, nil
}

// adopt replaces the current pair wholesale and persists it.
func (s *Session) adopt(pair TokenPair) error {
	s.mu.Lock()
	s.pair = pair
	s.mu.Unlock()

	if err := s.store.Save(s.creds.Username, pair); err != nil {
		return authErr("persist", err)
	}
	return nil
}

// authorizeURL builds the authorize request with the PKCE challenge and the
// platform's ext parameters.
func (s *Session) authorizeURL() string {
	params := url.Values{
		"audience":              {s.profile.Audience},
		"client_id":             {s.profile.ClientID},
		"code_challenge":        {s.pkce.Challenge},
		"code_challenge_method": {"S256"},
		"ext-group_id":          {"1"},
		"ext-login_enable":      {"null"},
		"ext-platform_id":       {s.profile.PlatformID},
		"ext-terms":             {s.profile.TermsURL()},
		"nonce":                 {s.pkce.Nonce},
		"prompt":                {"login"},
		"redirect_uri":          {s.profile.RedirectURI()},
		"response_mode":         {"query"},
		"response_type":         {"code"},
		"scope":                 {oauthScope},
		"state":                 {s.pkce.State},
		"auth0Client":           {s.auth0Client},
	}
	return fmt.Sprintf("%s?%s", s.authorizeEndpoint, params.Encode())
}

// tokenExpiry decodes the exp claim of a JWT without verifying its
// signature; expiry is only advisory here, the server remains the
// authority.
func tokenExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, errors.New("token has no exp claim")
	}
	return exp.Time, nil
}
