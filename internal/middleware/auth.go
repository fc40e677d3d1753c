package middleware

import (
	"errors"
	"net/http"
	"strings"

	"task-calendar/backend/internal/identity"
	"task-calendar/backend/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
	"github.com/sirupsen/logrus"
)

const (
	ContextKeySession = "session"
	ContextKeyScope   = "scope"

	// WorkspaceCookie remembers the workspace chosen through key login.
	WorkspaceCookie = "current_workspace_key"
)

// Authenticate resolves a Bearer token into a session when one is sent.
// Requests without a token pass through; a bad token is rejected.
func Authenticate(verifier identity.TokenVerifier, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token_format",
				"message": "Authorization header must use Bearer token",
			})
			return
		}

		session, err := verifier.Verify(c.Request.Context(), strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			RequestLogger(c, log).WithError(err).Debug("token rejected")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "invalid_token",
				"message": "Token validation failed",
			})
			return
		}

		c.Set(ContextKeySession, session)
		c.Next()
	}
}

// RequireSession rejects requests that Authenticate did not resolve.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := SessionFrom(c); !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "missing_token",
				"message": "Authorization header is required",
			})
			return
		}
		c.Next()
	}
}

// RequireWorkspace picks the workspace the request works in: the signed-in
// user's own workspace, or else the one remembered by the key-login cookie.
func RequireWorkspace(workspaces services.WorkspaceService, log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		if session, ok := SessionFrom(c); ok {
			ws, err := workspaces.EnsureWorkspace(ctx, session.User)
			if err != nil {
				RequestLogger(c, log).WithError(err).Error("workspace provisioning failed")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": services.ErrWorkspaceProvisioning.Error()})
				return
			}
			c.Set(ContextKeyScope, services.Scope{WorkspaceID: ws.ID, UserID: session.User.ID})
			c.Next()
			return
		}

		key, err := c.Cookie(WorkspaceCookie)
		if err != nil || key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "로그인이 필요합니다."})
			return
		}

		ws, err := workspaces.LoginWithKey(ctx, key)
		if err != nil {
			if errors.Is(err, services.ErrWorkspaceNotFound) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
				return
			}
			RequestLogger(c, log).WithError(err).Error("workspace key lookup failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "로그인 중 오류가 발생했습니다."})
			return
		}

		// Key sessions have no account; tasks are attributed to no user.
		c.Set(ContextKeyScope, services.Scope{WorkspaceID: ws.ID, UserID: uuid.Nil})
		c.Next()
	}
}

func SessionFrom(c *gin.Context) (*identity.Session, bool) {
	v, ok := c.Get(ContextKeySession)
	if !ok {
		return nil, false
	}
	session, ok := v.(*identity.Session)
	return session, ok && session != nil
}

func ScopeFrom(c *gin.Context) (services.Scope, bool) {
	v, ok := c.Get(ContextKeyScope)
	if !ok {
		return services.Scope{}, false
	}
	scope, ok := v.(services.Scope)
	return scope, ok
}
