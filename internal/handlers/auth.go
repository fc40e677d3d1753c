package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"task-calendar/backend/internal/identity"
	"task-calendar/backend/internal/middleware"
	"task-calendar/backend/internal/models"
	"task-calendar/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const (
	verifierCookie = "pkce_verifier"
	minPassword    = 6
)

var oauthProviders = map[string]bool{"google": true, "github": true, "kakao": true}

// IdentityClient is the slice of the GoTrue client the handlers use.
type IdentityClient interface {
	SignUp(ctx context.Context, email, password, nickname, redirectTo string) (*identity.SignUpResult, error)
	SignInWithPassword(ctx context.Context, email, password string) (*identity.Session, error)
	Refresh(ctx context.Context, refreshToken string) (*identity.Session, error)
	ExchangeCode(ctx context.Context, authCode, codeVerifier string) (*identity.Session, error)
	VerifyOTP(ctx context.Context, tokenHash, otpType string) (*identity.Session, error)
	Resend(ctx context.Context, email, redirectTo string) error
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*models.User, error)
	AuthorizeURL(provider, redirectTo string) (string, string, error)
}

// CookieOptions controls the cookies set by auth and workspace handlers.
type CookieOptions struct {
	Secure bool
	Domain string
}

func (o CookieOptions) set(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(name, value, maxAge, "/", o.Domain, o.Secure, true)
}

func (o CookieOptions) clear(c *gin.Context, name string) {
	o.set(c, name, "", -1)
}

type AuthHandler struct {
	client     IdentityClient
	workspaces services.WorkspaceService
	listeners  *identity.Listeners
	siteURL    string
	cookies    CookieOptions
	log        logrus.FieldLogger
}

func NewAuthHandler(client IdentityClient, workspaces services.WorkspaceService, listeners *identity.Listeners, siteURL string, cookies CookieOptions, log logrus.FieldLogger) *AuthHandler {
	if listeners == nil {
		listeners = identity.NewListeners()
	}
	return &AuthHandler{
		client:     client,
		workspaces: workspaces,
		listeners:  listeners,
		siteURL:    strings.TrimRight(siteURL, "/"),
		cookies:    cookies,
		log:        log,
	}
}

func (h *AuthHandler) callbackURL() string {
	return h.siteURL + "/api/auth/callback"
}

type SignUpRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Nickname string `json:"nickname"`
}

type CredentialsRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type sessionResponse struct {
	AccessToken  string            `json:"access_token"`
	RefreshToken string            `json:"refresh_token"`
	TokenType    string            `json:"token_type"`
	ExpiresAt    int64             `json:"expires_at"`
	User         models.User       `json:"user"`
	Workspace    *models.Workspace `json:"workspace,omitempty"`
}

func newSessionResponse(s *identity.Session, ws *models.Workspace) sessionResponse {
	return sessionResponse{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    "bearer",
		ExpiresAt:    s.ExpiresAt.Unix(),
		User:         s.User,
		Workspace:    ws,
	}
}

func (h *AuthHandler) SignUp(c *gin.Context) {
	var req SignUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := identity.ValidateNickname(req.Nickname); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "field": "nickname"})
		return
	}
	if len(req.Password) < minPassword {
		c.JSON(http.StatusBadRequest, gin.H{"error": "비밀번호는 최소 6자 이상이어야 합니다", "field": "password"})
		return
	}

	result, err := h.client.SignUp(c.Request.Context(), req.Email, req.Password, req.Nickname, h.callbackURL())
	if err != nil {
		middleware.RequestLogger(c, h.log).WithError(err).Warn("sign up failed")
		c.JSON(statusFor(err, http.StatusBadRequest), gin.H{"error": identity.LocalizedMessage(err, "회원가입 중 오류가 발생했습니다.")})
		return
	}

	if result.AlreadyRegistered {
		c.JSON(http.StatusConflict, gin.H{"error": "이 이메일은 이미 등록되어 있습니다. 로그인을 시도해주세요."})
		return
	}

	if result.Session == nil {
		c.JSON(http.StatusCreated, gin.H{
			"confirmation_required": true,
			"message":               "인증 이메일을 보냈습니다. 이메일의 링크를 클릭해주세요.",
			"user":                  result.User,
		})
		return
	}

	ws := h.signedIn(c, identity.EventSignedIn, result.Session)
	c.JSON(http.StatusCreated, newSessionResponse(result.Session, ws))
}

func (h *AuthHandler) SignIn(c *gin.Context) {
	var req CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	session, err := h.client.SignInWithPassword(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)), req.Password)
	if err != nil {
		middleware.RequestLogger(c, h.log).WithError(err).Info("sign in rejected")
		c.JSON(statusFor(err, http.StatusUnauthorized), gin.H{"error": identity.LocalizedMessage(err, "로그인 중 오류가 발생했습니다.")})
		return
	}

	ws := h.signedIn(c, identity.EventSignedIn, session)
	c.JSON(http.StatusOK, newSessionResponse(session, ws))
}

// OAuthStart redirects the browser to the provider, keeping the PKCE
// verifier in a short-lived cookie for the callback.
func (h *AuthHandler) OAuthStart(c *gin.Context) {
	provider := c.Param("provider")
	if !oauthProviders[provider] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported provider"})
		return
	}

	authURL, verifier, err := h.client.AuthorizeURL(provider, h.callbackURL())
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	h.cookies.set(c, verifierCookie, verifier, 600)
	c.Redirect(http.StatusFound, authURL)
}

// Callback finishes both the OAuth code flow and e-mail confirmation links,
// then hands the session to the site in the URL fragment.
func (h *AuthHandler) Callback(c *gin.Context) {
	ctx := c.Request.Context()
	code := c.Query("code")
	tokenHash := c.Query("token_hash")
	otpType := c.Query("type")

	var (
		session *identity.Session
		err     error
	)
	switch {
	case code != "":
		verifier, cookieErr := c.Cookie(verifierCookie)
		if cookieErr != nil || verifier == "" {
			h.confirmError(c, "로그인 세션이 만료되었습니다. 다시 시도해주세요.")
			return
		}
		h.cookies.clear(c, verifierCookie)
		session, err = h.client.ExchangeCode(ctx, code, verifier)
		if err != nil {
			middleware.RequestLogger(c, h.log).WithError(err).Warn("oauth code exchange failed")
			h.confirmError(c, identity.LocalizedMessage(err, "Google 로그인에 실패했습니다"))
			return
		}
	case tokenHash != "" && otpType != "":
		session, err = h.client.VerifyOTP(ctx, tokenHash, otpType)
		if err != nil {
			middleware.RequestLogger(c, h.log).WithError(err).Warn("email verification failed")
			h.confirmError(c, identity.LocalizedMessage(err, "이메일 인증에 실패했습니다"))
			return
		}
	default:
		h.confirmError(c, "인증 링크가 올바르지 않습니다. 이메일의 링크를 다시 확인해주세요.")
		return
	}

	h.signedIn(c, identity.EventSignedIn, session)

	fragment := url.Values{
		"access_token":  {session.AccessToken},
		"refresh_token": {session.RefreshToken},
		"expires_at":    {strconv.FormatInt(session.ExpiresAt.Unix(), 10)},
		"token_type":    {"bearer"},
	}
	c.Redirect(http.StatusFound, h.siteURL+"/#"+fragment.Encode())
}

func (h *AuthHandler) confirmError(c *gin.Context, message string) {
	q := url.Values{"error": {"true"}, "message": {message}}
	c.Redirect(http.StatusFound, h.siteURL+"/auth/confirm?"+q.Encode())
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request format",
			"details": err.Error(),
		})
		return
	}

	session, err := h.client.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":   "invalid_refresh_token",
			"message": identity.LocalizedMessage(err, "세션이 만료되었습니다. 다시 로그인해주세요."),
		})
		return
	}

	h.listeners.Emit(identity.EventTokenRefreshed, session)
	c.JSON(http.StatusOK, newSessionResponse(session, nil))
}

// SignOut always succeeds for the caller; a failed upstream revoke is logged.
func (h *AuthHandler) SignOut(c *gin.Context) {
	session, _ := middleware.SessionFrom(c)
	if session != nil && h.client != nil {
		if err := h.client.SignOut(c.Request.Context(), session.AccessToken); err != nil {
			middleware.RequestLogger(c, h.log).WithError(err).Warn("identity sign out failed")
		}
	}

	h.cookies.clear(c, middleware.WorkspaceCookie)
	h.listeners.Emit(identity.EventSignedOut, session)
	c.JSON(http.StatusOK, gin.H{
		"message": "Successfully logged out",
	})
}

func (h *AuthHandler) Me(c *gin.Context) {
	session, ok := middleware.SessionFrom(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "로그인이 필요합니다."})
		return
	}

	// Token claims can lag behind metadata edits, so prefer the provider's copy.
	user := session.User
	if h.client != nil {
		fresh, err := h.client.GetUser(c.Request.Context(), session.AccessToken)
		switch {
		case err != nil:
			middleware.RequestLogger(c, h.log).WithError(err).Warn("failed to fetch user from identity provider")
		case fresh.ID == user.ID:
			user = *fresh
		}
	}

	ws, err := h.workspaces.EnsureWorkspace(c.Request.Context(), user)
	if err != nil {
		handleTaskError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"user":      user,
		"nickname":  identity.DeriveNickname(user),
		"workspace": ws,
	})
}

func (h *AuthHandler) Resend(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.client.Resend(c.Request.Context(), strings.ToLower(strings.TrimSpace(req.Email)), h.callbackURL()); err != nil {
		middleware.RequestLogger(c, h.log).WithError(err).Warn("resend confirmation failed")
		c.JSON(statusFor(err, http.StatusBadGateway), gin.H{"error": identity.LocalizedMessage(err, "인증 이메일 재전송에 실패했습니다.")})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "인증 이메일을 다시 보냈습니다."})
}

// signedIn provisions the workspace and notifies listeners. Provisioning
// failures do not fail the sign-in; the next request retries through
// RequireWorkspace.
func (h *AuthHandler) signedIn(c *gin.Context, event identity.Event, session *identity.Session) *models.Workspace {
	ws, err := h.workspaces.EnsureWorkspace(c.Request.Context(), session.User)
	if err != nil {
		middleware.RequestLogger(c, h.log).WithError(err).WithField("user_id", session.User.ID.String()).Error("workspace provisioning failed")
	}
	h.listeners.Emit(event, session)
	return ws
}

// statusFor passes through 4xx answers from the identity service and maps
// everything else to fallback, or 502 for upstream failures.
func statusFor(err error, fallback int) int {
	var apiErr *identity.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Status >= 400 && apiErr.Status < 500 {
			return apiErr.Status
		}
		return http.StatusBadGateway
	}
	return fallback
}
