package handlers_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"task-calendar/backend/internal/handlers"
	"task-calendar/backend/internal/identity"
	"task-calendar/backend/internal/middleware"
	"task-calendar/backend/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

// MockIdentityClient answers every flow with the configured session.
type MockIdentityClient struct {
	session      *identity.Session
	user         *models.User
	userErr      error
	signUp       *identity.SignUpResult
	err          error
	signOutErr   error
	lastVerifier string
	lastRedirect string
	signOutCalls int
}

func (m *MockIdentityClient) SignUp(ctx context.Context, email, password, nickname, redirectTo string) (*identity.SignUpResult, error) {
	m.lastRedirect = redirectTo
	if m.err != nil {
		return nil, m.err
	}
	return m.signUp, nil
}

func (m *MockIdentityClient) SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *MockIdentityClient) Refresh(ctx context.Context, refreshToken string) (*identity.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *MockIdentityClient) ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*identity.Session, error) {
	m.lastVerifier = codeVerifier
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *MockIdentityClient) VerifyOTP(ctx context.Context, tokenHash, otpType string) (*identity.Session, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.session, nil
}

func (m *MockIdentityClient) Resend(ctx context.Context, email, redirectTo string) error {
	m.lastRedirect = redirectTo
	return m.err
}

func (m *MockIdentityClient) SignOut(ctx context.Context, accessToken string) error {
	m.signOutCalls++
	return m.signOutErr
}

func (m *MockIdentityClient) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	if m.userErr != nil {
		return nil, m.userErr
	}
	if m.user != nil {
		return m.user, nil
	}
	return &m.session.User, nil
}

func (m *MockIdentityClient) AuthorizeURL(provider, redirectTo string) (string, string, error) {
	m.lastRedirect = redirectTo
	if m.err != nil {
		return "", "", m.err
	}
	return "https://idp.example.com/authorize?provider=" + provider, "verifier-123", nil
}

type AuthHandlerTestSuite struct {
	suite.Suite
	client     *MockIdentityClient
	workspaces *MockWorkspaceService
	listeners  *identity.Listeners
	events     []identity.Event
	router     *gin.Engine
}

const siteURL = "https://tasks.example.com"

func (suite *AuthHandlerTestSuite) SetupTest() {
	suite.client = &MockIdentityClient{session: testSession()}
	suite.workspaces = &MockWorkspaceService{workspace: &models.Workspace{ID: uuid.Must(uuid.NewV4()), Name: "kim의 워크스페이스", WorkspaceKey: "k"}}
	suite.listeners = identity.NewListeners()
	suite.events = nil
	suite.listeners.Subscribe(func(event identity.Event, _ *identity.Session) {
		suite.events = append(suite.events, event)
	})

	handler := handlers.NewAuthHandler(suite.client, suite.workspaces, suite.listeners, siteURL+"/", handlers.CookieOptions{}, testLog)
	suite.router = newTestRouter()
	suite.router.POST("/auth/signup", handler.SignUp)
	suite.router.POST("/auth/signin", handler.SignIn)
	suite.router.POST("/auth/refresh", handler.Refresh)
	suite.router.POST("/auth/resend", handler.Resend)
	suite.router.GET("/auth/oauth/:provider", handler.OAuthStart)
	suite.router.GET("/auth/callback", handler.Callback)
	suite.router.POST("/auth/signout", handler.SignOut)
	suite.router.POST("/auth/signout-session", mockSession(testSession()), handler.SignOut)
	suite.router.GET("/auth/me", mockSession(suite.client.session), handler.Me)
}

func (suite *AuthHandlerTestSuite) TestSignUpWithSession() {
	suite.client.signUp = &identity.SignUpResult{User: suite.client.session.User, Session: suite.client.session}

	w := performJSON(suite.router, http.MethodPost, "/auth/signup", map[string]string{
		"email": "Kim@Example.com", "password": "secret1", "nickname": "kim",
	})

	suite.Equal(http.StatusCreated, w.Code)
	body := decode(suite.T(), w)
	suite.Equal("access", body["access_token"])
	suite.NotNil(body["workspace"])
	suite.Equal(1, suite.workspaces.ensureCalls)
	suite.Equal([]identity.Event{identity.EventSignedIn}, suite.events)
	suite.Equal(siteURL+"/api/auth/callback", suite.client.lastRedirect)
}

func (suite *AuthHandlerTestSuite) TestSignUpNeedsConfirmation() {
	suite.client.signUp = &identity.SignUpResult{User: suite.client.session.User}

	w := performJSON(suite.router, http.MethodPost, "/auth/signup", map[string]string{
		"email": "kim@example.com", "password": "secret1", "nickname": "kim",
	})

	suite.Equal(http.StatusCreated, w.Code)
	suite.Equal(true, decode(suite.T(), w)["confirmation_required"])
	suite.Zero(suite.workspaces.ensureCalls)
	suite.Empty(suite.events)
}

func (suite *AuthHandlerTestSuite) TestSignUpAlreadyRegistered() {
	suite.client.signUp = &identity.SignUpResult{AlreadyRegistered: true}

	w := performJSON(suite.router, http.MethodPost, "/auth/signup", map[string]string{
		"email": "kim@example.com", "password": "secret1", "nickname": "kim",
	})

	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *AuthHandlerTestSuite) TestSignUpValidation() {
	tests := []struct {
		name  string
		body  map[string]string
		field string
	}{
		{name: "short password", body: map[string]string{"email": "a@b.co", "password": "12345", "nickname": "kim"}, field: "password"},
		{name: "bad nickname", body: map[string]string{"email": "a@b.co", "password": "secret1", "nickname": "k"}, field: "nickname"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			w := performJSON(suite.router, http.MethodPost, "/auth/signup", tt.body)
			suite.Equal(http.StatusBadRequest, w.Code)
			suite.Equal(tt.field, decode(suite.T(), w)["field"])
		})
	}

	w := performJSON(suite.router, http.MethodPost, "/auth/signup", map[string]string{"email": "not-an-email", "password": "secret1"})
	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("invalid_request", decode(suite.T(), w)["error"])
}

func (suite *AuthHandlerTestSuite) TestSignIn() {
	w := performJSON(suite.router, http.MethodPost, "/auth/signin", map[string]string{"email": "kim@example.com", "password": "secret1"})

	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("bearer", decode(suite.T(), w)["token_type"])
	suite.Equal([]identity.Event{identity.EventSignedIn}, suite.events)
}

func (suite *AuthHandlerTestSuite) TestSignInRejected() {
	suite.client.err = &identity.APIError{Status: http.StatusBadRequest, Message: "Invalid login credentials"}

	w := performJSON(suite.router, http.MethodPost, "/auth/signin", map[string]string{"email": "kim@example.com", "password": "wrong"})

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.Equal("이메일 또는 비밀번호가 올바르지 않습니다.", decode(suite.T(), w)["error"])
	suite.Empty(suite.events)
}

func (suite *AuthHandlerTestSuite) TestSignInSucceedsWhenProvisioningFails() {
	suite.workspaces.ensureErr = errBoom

	w := performJSON(suite.router, http.MethodPost, "/auth/signin", map[string]string{"email": "kim@example.com", "password": "secret1"})

	suite.Equal(http.StatusOK, w.Code)
	suite.NotContains(decode(suite.T(), w), "workspace")
}

func (suite *AuthHandlerTestSuite) TestOAuthStart() {
	w := performJSON(suite.router, http.MethodGet, "/auth/oauth/google", nil)

	suite.Equal(http.StatusFound, w.Code)
	suite.Equal("https://idp.example.com/authorize?provider=google", w.Header().Get("Location"))
	suite.Contains(w.Header().Get("Set-Cookie"), "pkce_verifier=verifier-123")

	w = performJSON(suite.router, http.MethodGet, "/auth/oauth/myspace", nil)
	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *AuthHandlerTestSuite) TestCallbackWithCode() {
	req := httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc", nil)
	req.AddCookie(&http.Cookie{Name: "pkce_verifier", Value: "verifier-123"})
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusFound, w.Code)
	location := w.Header().Get("Location")
	suite.True(strings.HasPrefix(location, siteURL+"/#"), location)
	fragment, err := url.ParseQuery(strings.SplitN(location, "#", 2)[1])
	suite.Require().NoError(err)
	suite.Equal("access", fragment.Get("access_token"))
	suite.Equal("refresh", fragment.Get("refresh_token"))
	suite.Equal("verifier-123", suite.client.lastVerifier)
	suite.Equal(1, suite.workspaces.ensureCalls)
}

func (suite *AuthHandlerTestSuite) TestCallbackWithTokenHash() {
	w := performJSON(suite.router, http.MethodGet, "/auth/callback?token_hash=h&type=signup", nil)

	suite.Equal(http.StatusFound, w.Code)
	suite.True(strings.HasPrefix(w.Header().Get("Location"), siteURL+"/#"))
	suite.Equal([]identity.Event{identity.EventSignedIn}, suite.events)
}

func (suite *AuthHandlerTestSuite) TestCallbackErrors() {
	tests := []struct {
		name    string
		path    string
		err     error
		message string
	}{
		{name: "missing params", path: "/auth/callback", message: "인증 링크가 올바르지 않습니다. 이메일의 링크를 다시 확인해주세요."},
		{name: "code without verifier", path: "/auth/callback?code=abc", message: "로그인 세션이 만료되었습니다. 다시 시도해주세요."},
		{name: "otp rejected", path: "/auth/callback?token_hash=h&type=signup", err: errBoom, message: "이메일 인증에 실패했습니다"},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			suite.client.err = tt.err
			w := performJSON(suite.router, http.MethodGet, tt.path, nil)

			suite.Equal(http.StatusFound, w.Code)
			location, err := url.Parse(w.Header().Get("Location"))
			suite.Require().NoError(err)
			suite.Equal("/auth/confirm", location.Path)
			suite.Equal("true", location.Query().Get("error"))
			suite.Equal(tt.message, location.Query().Get("message"))
		})
	}
}

func (suite *AuthHandlerTestSuite) TestRefresh() {
	w := performJSON(suite.router, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": "refresh"})
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal([]identity.Event{identity.EventTokenRefreshed}, suite.events)

	suite.client.err = errBoom
	w = performJSON(suite.router, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": "stale"})
	suite.Equal(http.StatusUnauthorized, w.Code)
	suite.Equal("invalid_refresh_token", decode(suite.T(), w)["error"])
}

func (suite *AuthHandlerTestSuite) TestSignOut() {
	suite.client.signOutErr = errBoom

	w := performJSON(suite.router, http.MethodPost, "/auth/signout-session", nil)

	suite.Equal(http.StatusOK, w.Code)
	suite.Equal(1, suite.client.signOutCalls)
	suite.Contains(w.Header().Get("Set-Cookie"), middleware.WorkspaceCookie+"=;")
	suite.Equal([]identity.Event{identity.EventSignedOut}, suite.events)
}

func (suite *AuthHandlerTestSuite) TestSignOutWithoutSession() {
	w := performJSON(suite.router, http.MethodPost, "/auth/signout", nil)

	suite.Equal(http.StatusOK, w.Code)
	suite.Zero(suite.client.signOutCalls)
}

func (suite *AuthHandlerTestSuite) TestMe() {
	w := performJSON(suite.router, http.MethodGet, "/auth/me", nil)

	suite.Equal(http.StatusOK, w.Code)
	body := decode(suite.T(), w)
	suite.Equal("kim", body["nickname"])
	suite.NotNil(body["workspace"])
}

func (suite *AuthHandlerTestSuite) TestMeUsesProviderMetadata() {
	fresh := suite.client.session.User
	fresh.Metadata = map[string]interface{}{"nickname": "kim2"}
	suite.client.user = &fresh

	w := performJSON(suite.router, http.MethodGet, "/auth/me", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("kim2", decode(suite.T(), w)["nickname"])

	suite.client.userErr = &identity.APIError{Status: http.StatusBadGateway, Message: "down"}
	w = performJSON(suite.router, http.MethodGet, "/auth/me", nil)
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal("kim", decode(suite.T(), w)["nickname"])
}

func (suite *AuthHandlerTestSuite) TestResend() {
	w := performJSON(suite.router, http.MethodPost, "/auth/resend", map[string]string{"email": "kim@example.com"})
	suite.Equal(http.StatusOK, w.Code)
	suite.Equal(siteURL+"/api/auth/callback", suite.client.lastRedirect)

	suite.client.err = &identity.APIError{Status: http.StatusTooManyRequests, Message: "rate limited"}
	w = performJSON(suite.router, http.MethodPost, "/auth/resend", map[string]string{"email": "kim@example.com"})
	suite.Equal(http.StatusTooManyRequests, w.Code)
}

func TestAuthHandlerTestSuite(t *testing.T) {
	suite.Run(t, new(AuthHandlerTestSuite))
}

func TestAuthRoutesNeedIdentityClient(t *testing.T) {
	router := handlers.SetupRouter(handlers.RouterDeps{
		Tasks:       &MockTaskService{},
		Attachments: &MockAttachmentService{},
		Workspaces:  &MockWorkspaceService{workspace: &models.Workspace{ID: uuid.Must(uuid.NewV4())}},
		Verifier:    identity.NewJWTVerifier("secret", "authenticated"),
		Log:         testLog,
	})

	w := performJSON(router, http.MethodPost, "/api/auth/signin", map[string]string{"email": "a@b.co", "password": "secret1"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performJSON(router, http.MethodGet, "/live", nil)
	require.Equal(t, http.StatusOK, w.Code)
}
