package gotrue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/luxclinic/sessiond/internal/domain"
)

// Config holds the auth API configuration
type Config struct {
	BaseURL    string // e.g. https://auth.luxclinic.dev/auth/v1
	AnonKey    string // public API key sent with every request
	ServiceKey string // service-role key for admin endpoints
	Timeout    time.Duration
}

// Client talks to a GoTrue-compatible auth API and implements
// domain.IdentityProvider. It owns the refresh timer and the persisted
// token pair; session events are delivered to a single subscriber.
type Client struct {
	config     Config
	httpClient *http.Client
	tokens     domain.TokenStore

	mu           sync.Mutex
	session      *domain.Identity
	refreshTimer *time.Timer

	subMu      sync.Mutex
	subscriber func(domain.SessionEvent)
}

// NewClient creates an auth API client. A nil token store keeps the
// session in memory only.
func NewClient(cfg Config, tokens domain.TokenStore) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if tokens == nil {
		tokens = &memoryTokenStore{}
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		tokens:     tokens,
	}
}

// Close stops the refresh timer.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
}

// Subscribe registers the session-event subscriber, replacing any
// previous one. The returned func unregisters it.
func (c *Client) Subscribe(fn func(domain.SessionEvent)) func() {
	c.subMu.Lock()
	c.subscriber = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		if c.subscriber != nil {
			c.subscriber = nil
		}
		c.subMu.Unlock()
	}
}

func (c *Client) emit(ev domain.SessionEvent) {
	c.subMu.Lock()
	fn := c.subscriber
	c.subMu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

// CurrentSession resolves a previously established session: the live
// in-memory one if still valid, otherwise a refresh from the persisted
// token pair. Returns (nil, nil) when no session exists.
func (c *Client) CurrentSession(ctx context.Context) (*domain.Identity, error) {
	c.mu.Lock()
	if c.session != nil && time.Until(c.session.ExpiresAt) > 30*time.Second {
		ident := *c.session
		c.mu.Unlock()
		return &ident, nil
	}
	c.mu.Unlock()

	_, refreshToken, err := c.tokens.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading stored tokens: %w", err)
	}
	if refreshToken == "" {
		return nil, nil
	}

	ident, err := c.refresh(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("restoring session: %w", err)
	}
	return ident, nil
}

// SignInWithPassword performs the password grant and emits SIGNED_IN.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*domain.Identity, error) {
	var tr tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=password",
		map[string]string{"email": email, "password": password}, "", &tr)
	if err != nil {
		return nil, err
	}

	ident, err := c.adopt(ctx, &tr)
	if err != nil {
		return nil, err
	}
	c.emit(domain.SessionEvent{Kind: domain.EventSignedIn, Identity: ident})
	return ident, nil
}

// SignUp registers a new identity. When the project requires email
// confirmation the response carries no token pair and Session stays nil.
func (c *Client) SignUp(ctx context.Context, email, password string) (*domain.SignUpResult, error) {
	var tr tokenResponse
	err := c.do(ctx, http.MethodPost, "/signup",
		map[string]string{"email": email, "password": password}, "", &tr)
	if err != nil {
		return nil, err
	}

	res := &domain.SignUpResult{}
	if tr.AccessToken != "" {
		ident, err := c.adopt(ctx, &tr)
		if err != nil {
			return nil, err
		}
		res.Identity = ident
		res.Session = ident
		c.emit(domain.SessionEvent{Kind: domain.EventSignedIn, Identity: ident})
		return res, nil
	}

	if tr.User.ID == "" {
		return nil, fmt.Errorf("signup: response carried no user")
	}
	res.Identity = &domain.Identity{ID: tr.User.ID, Email: tr.User.Email}
	return res, nil
}

// SignOut revokes the session at the server and always clears the local
// one, emitting SIGNED_OUT. Without an active session it returns
// domain.ErrSessionMissing after clearing anyway.
func (c *Client) SignOut(ctx context.Context) error {
	c.mu.Lock()
	var access string
	if c.session != nil {
		access = c.session.AccessToken
	}
	c.mu.Unlock()

	var apiErr error
	if access == "" {
		apiErr = domain.ErrSessionMissing
	} else if err := c.do(ctx, http.MethodPost, "/logout", nil, access, nil); err != nil {
		apiErr = err
	}

	c.dropSession(ctx)
	c.emit(domain.SessionEvent{Kind: domain.EventSignedOut})
	return apiErr
}

// SendPasswordReset asks the server to mail a recovery link.
func (c *Client) SendPasswordReset(ctx context.Context, email, redirectURL string) error {
	path := "/recover"
	if redirectURL != "" {
		path += "?redirect_to=" + url.QueryEscape(redirectURL)
	}
	return c.do(ctx, http.MethodPost, path, map[string]string{"email": email}, "", nil)
}

// UpdatePassword changes the signed-in user's password.
func (c *Client) UpdatePassword(ctx context.Context, newPassword string) error {
	c.mu.Lock()
	var access string
	if c.session != nil {
		access = c.session.AccessToken
	}
	c.mu.Unlock()
	if access == "" {
		return domain.ErrSessionMissing
	}
	return c.do(ctx, http.MethodPut, "/user", map[string]string{"password": newPassword}, access, nil)
}

// SetSession adopts a token pair delivered out of band (the recovery
// redirect) and emits SIGNED_IN.
func (c *Client) SetSession(ctx context.Context, accessToken, refreshToken string) (*domain.Identity, error) {
	ident, err := identityFromTokens(accessToken, refreshToken)
	if err != nil {
		return nil, err
	}
	c.storeSession(ctx, ident)
	c.emit(domain.SessionEvent{Kind: domain.EventSignedIn, Identity: ident})
	return ident, nil
}

// refresh exchanges the refresh token for a fresh session and emits
// TOKEN_REFRESHED.
func (c *Client) refresh(ctx context.Context, refreshToken string) (*domain.Identity, error) {
	var tr tokenResponse
	err := c.do(ctx, http.MethodPost, "/token?grant_type=refresh_token",
		map[string]string{"refresh_token": refreshToken}, "", &tr)
	if err != nil {
		return nil, err
	}
	ident, err := c.adopt(ctx, &tr)
	if err != nil {
		return nil, err
	}
	c.emit(domain.SessionEvent{Kind: domain.EventTokenRefreshed, Identity: ident})
	return ident, nil
}

// adopt turns a token response into the live session and persists it.
func (c *Client) adopt(ctx context.Context, tr *tokenResponse) (*domain.Identity, error) {
	ident, err := identityFromTokens(tr.AccessToken, tr.RefreshToken)
	if err != nil {
		return nil, err
	}
	c.storeSession(ctx, ident)
	return ident, nil
}

func (c *Client) storeSession(ctx context.Context, ident *domain.Identity) {
	c.mu.Lock()
	cp := *ident
	c.session = &cp
	c.scheduleRefreshLocked()
	c.mu.Unlock()

	if err := c.tokens.Save(ctx, ident.AccessToken, ident.RefreshToken); err != nil {
		log.Printf("gotrue: persisting tokens: %v", err)
	}
}

func (c *Client) dropSession(ctx context.Context) {
	c.mu.Lock()
	c.session = nil
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
		c.refreshTimer = nil
	}
	c.mu.Unlock()

	if err := c.tokens.Clear(ctx); err != nil {
		log.Printf("gotrue: clearing stored tokens: %v", err)
	}
}

// scheduleRefreshLocked arms the refresh timer a safety margin before
// the access token expires. Caller holds c.mu.
func (c *Client) scheduleRefreshLocked() {
	if c.refreshTimer != nil {
		c.refreshTimer.Stop()
	}
	delay := time.Until(c.session.ExpiresAt) - 60*time.Second
	if delay < 5*time.Second {
		delay = 5 * time.Second
	}
	c.refreshTimer = time.AfterFunc(delay, c.refreshNow)
}

func (c *Client) refreshNow() {
	c.mu.Lock()
	var refreshToken string
	if c.session != nil {
		refreshToken = c.session.RefreshToken
	}
	c.mu.Unlock()
	if refreshToken == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()
	if _, err := c.refresh(ctx, refreshToken); err != nil {
		// Leave recovery to the next CurrentSession call; stacking a
		// retry loop here would compound with the transport's own.
		log.Printf("gotrue: background refresh: %v", err)
	}
}

// identityFromTokens reads id, email, and expiry out of the access
// token. The signature is the server's concern; this client only needs
// the registered claims.
func identityFromTokens(accessToken, refreshToken string) (*domain.Identity, error) {
	var claims domain.AccessClaims
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, &claims); err != nil {
		return nil, fmt.Errorf("parsing access token: %w", err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("access token carries no subject")
	}
	ident := &domain.Identity{
		ID:           claims.Subject,
		Email:        claims.Email,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}
	if claims.ExpiresAt != nil {
		ident.ExpiresAt = claims.ExpiresAt.Time
	}
	return ident, nil
}

// tokenResponse is the shape of /token, /signup, and /admin/users
// responses.
type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	// Admin endpoints return the user at the top level.
	ID    string `json:"id"`
	Email string `json:"email"`
}

// apiError is GoTrue's error envelope; older endpoints use msg, newer
// ones error_description.
type apiError struct {
	Message     string `json:"msg"`
	Description string `json:"error_description"`
	ErrorCode   string `json:"error"`
	Status      int    `json:"-"`
}

func (e *apiError) Error() string {
	switch {
	case e.Description != "":
		return e.Description
	case e.Message != "":
		return e.Message
	case e.ErrorCode != "":
		return e.ErrorCode
	default:
		return fmt.Sprintf("auth api error (status %d)", e.Status)
	}
}

// do performs one API call. The anon key authenticates the app; a
// bearer token, when given, authenticates the user.
func (c *Client) do(ctx context.Context, method, path string, body any, bearer string, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.config.BaseURL, "/")+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", c.config.AnonKey)
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.config.AnonKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("auth api request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &apiError{Status: resp.StatusCode}
		_ = json.Unmarshal(data, apiErr)
		if resp.StatusCode == http.StatusUnauthorized && bearer != "" && bearer != c.config.AnonKey {
			return fmt.Errorf("%w: %s", domain.ErrSessionMissing, apiErr.Error())
		}
		return apiErr
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}

// memoryTokenStore keeps the token pair for the process lifetime only.
type memoryTokenStore struct {
	mu      sync.Mutex
	access  string
	refresh string
}

func (s *memoryTokenStore) Load(ctx context.Context) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access, s.refresh, nil
}

func (s *memoryTokenStore) Save(ctx context.Context, access, refresh string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh = access, refresh
	return nil
}

func (s *memoryTokenStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.access, s.refresh = "", ""
	return nil
}
