package identity

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"task-calendar/backend/internal/models"

	"github.com/gofrs/uuid"
)

// APIError is a non-2xx answer from the identity service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("identity service returned %d: %s", e.Status, e.Message)
}

// Client relays sign-in flows to a GoTrue-compatible identity service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL != "" && !strings.HasPrefix(baseURL, "http") {
		baseURL = "https://" + baseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/") + "/auth/v1",
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type gotrueUser struct {
	ID           string                   `json:"id"`
	Email        string                   `json:"email"`
	UserMetadata map[string]interface{}   `json:"user_metadata"`
	Identities   []map[string]interface{} `json:"identities"`
}

func (u gotrueUser) model() (models.User, error) {
	id, err := uuid.FromString(u.ID)
	if err != nil {
		return models.User{}, fmt.Errorf("identity service returned user id %q: %w", u.ID, err)
	}
	return models.User{ID: id, Email: u.Email, Metadata: u.UserMetadata}, nil
}

type gotrueSession struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	User         *gotrueUser `json:"user"`
}

func (s gotrueSession) model() (*Session, error) {
	if s.AccessToken == "" || s.User == nil {
		return nil, ErrNoSession
	}
	user, err := s.User.model()
	if err != nil {
		return nil, err
	}
	expires := time.Unix(s.ExpiresAt, 0)
	if s.ExpiresAt == 0 {
		expires = time.Now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return &Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    expires,
		User:         user,
	}, nil
}

func (c *Client) makeRequest(ctx context.Context, method, endpoint string, query url.Values, body interface{}, bearer string, out interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	}

	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if bearer == "" {
		bearer = c.apiKey
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, respBody)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	var raw struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		ErrorCode        string `json:"error_code"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	json.Unmarshal(body, &raw)

	e := &APIError{Status: status, Code: raw.ErrorCode}
	if e.Code == "" {
		e.Code = raw.Error
	}
	for _, m := range []string{raw.ErrorDescription, raw.Msg, raw.Message, raw.Error} {
		if m != "" {
			e.Message = m
			break
		}
	}
	if e.Message == "" {
		e.Message = strings.TrimSpace(string(body))
	}
	return e
}

type SignUpResult struct {
	User models.User
	// Session is nil while the e-mail address awaits confirmation.
	Session *Session
	// AlreadyRegistered is reported by the service as a user with no identities.
	AlreadyRegistered bool
}

func (c *Client) SignUp(ctx context.Context, email, password, nickname, redirectTo string) (*SignUpResult, error) {
	body := map[string]interface{}{
		"email":    email,
		"password": password,
		"data": map[string]interface{}{
			"nickname":        strings.TrimSpace(nickname),
			"email_confirmed": false,
		},
	}
	var resp struct {
		gotrueSession
		gotrueUser
	}
	if err := c.makeRequest(ctx, http.MethodPost, "/signup", redirectQuery(redirectTo), body, "", &resp); err != nil {
		return nil, err
	}

	// Confirmation-pending sign-ups answer with the bare user object.
	u := resp.gotrueSession.User
	if u == nil {
		u = &resp.gotrueUser
	}
	user, err := u.model()
	if err != nil {
		return nil, err
	}

	result := &SignUpResult{User: user, AlreadyRegistered: u.Identities != nil && len(u.Identities) == 0}
	if resp.AccessToken != "" {
		resp.gotrueSession.User = u
		if result.Session, err = resp.gotrueSession.model(); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return c.token(ctx, "password", map[string]string{"email": email, "password": password})
}

func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// ExchangeCode completes the PKCE OAuth flow started by AuthorizeURL.
func (c *Client) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*Session, error) {
	return c.token(ctx, "pkce", map[string]string{"auth_code": authCode, "code_verifier": codeVerifier})
}

func (c *Client) token(ctx context.Context, grant string, body interface{}) (*Session, error) {
	var resp gotrueSession
	q := url.Values{"grant_type": {grant}}
	if err := c.makeRequest(ctx, http.MethodPost, "/token", q, body, "", &resp); err != nil {
		return nil, err
	}
	return resp.model()
}

// VerifyOTP confirms an e-mail link (token_hash + type).
func (c *Client) VerifyOTP(ctx context.Context, tokenHash, otpType string) (*Session, error) {
	var resp gotrueSession
	body := map[string]string{"token_hash": tokenHash, "type": otpType}
	if err := c.makeRequest(ctx, http.MethodPost, "/verify", nil, body, "", &resp); err != nil {
		return nil, err
	}
	return resp.model()
}

func (c *Client) Resend(ctx context.Context, email, redirectTo string) error {
	body := map[string]string{"type": "signup", "email": email}
	return c.makeRequest(ctx, http.MethodPost, "/resend", redirectQuery(redirectTo), body, "", nil)
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.makeRequest(ctx, http.MethodPost, "/logout", nil, nil, accessToken, nil)
}

func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	var resp gotrueUser
	if err := c.makeRequest(ctx, http.MethodGet, "/user", nil, nil, accessToken, &resp); err != nil {
		return nil, err
	}
	user, err := resp.model()
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// AuthorizeURL is where the browser starts an OAuth sign-in. The returned
// verifier must be kept by the caller for ExchangeCode.
func (c *Client) AuthorizeURL(provider, redirectTo string) (authURL, verifier string, err error) {
	verifier, err = newCodeVerifier()
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256([]byte(verifier))

	q := url.Values{
		"provider":              {provider},
		"redirect_to":           {redirectTo},
		"code_challenge":        {base64.RawURLEncoding.EncodeToString(sum[:])},
		"code_challenge_method": {"s256"},
		"access_type":           {"offline"},
		"prompt":                {"consent"},
	}
	return c.baseURL + "/authorize?" + q.Encode(), verifier, nil
}

func newCodeVerifier() (string, error) {
	b := make([]byte, 48)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func redirectQuery(redirectTo string) url.Values {
	if redirectTo == "" {
		return nil
	}
	return url.Values{"redirect_to": {redirectTo}}
}

// LocalizedMessage turns identity service failures into user-facing text.
func LocalizedMessage(err error, fallback string) string {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return fallback
	}
	switch {
	case strings.Contains(apiErr.Message, "Email not confirmed"):
		return "이메일이 인증되지 않았습니다. 이메일의 인증 링크를 클릭해주세요."
	case strings.Contains(apiErr.Message, "Invalid login credentials"):
		return "이메일 또는 비밀번호가 올바르지 않습니다."
	case strings.Contains(apiErr.Message, "User already registered"):
		return "이 이메일은 이미 등록되어 있습니다. 로그인을 시도해주세요."
	case apiErr.Message != "":
		return apiErr.Message
	}
	return fallback
}
