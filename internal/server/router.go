package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/roamlabs/roam/backend/internal/auth"
	"github.com/roamlabs/roam/backend/internal/identity"
	"go.uber.org/zap"
)

const accountHandleContextKey = "roam_account_handle"

var (
	errMissingTokenManager    = errors.New("token manager dependency required")
	errMissingIdentityService = errors.New("identity service dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// BackendTokenManager mints and validates the backend JWTs handed to
// clients.
type BackendTokenManager interface {
	IssueToken(ctx context.Context, accountHandle, email string) (string, int64, error)
	ValidateToken(token string) (auth.TokenClaims, error)
}

// Dependencies wires the HTTP layer to the core services.
type Dependencies struct {
	TokenManager    BackendTokenManager
	IdentityService *identity.Service
	Logger          *zap.Logger
}

// NewHTTPHandler assembles the gin router for the identity API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.IdentityService == nil {
		return nil, errMissingIdentityService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		tokens:   deps.TokenManager,
		identity: deps.IdentityService,
		logger:   logger,
	}

	router.POST("/auth/signup", handler.handleSignup)
	router.POST("/auth/login", handler.handleLogin)
	router.POST("/auth/logout", handler.handleLogout)
	router.POST("/auth/password-reset", handler.handlePasswordReset)
	router.GET("/auth/email-available", handler.handleEmailAvailable)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/auth/session", handler.handleSession)

	return router, nil
}

type httpHandler struct {
	tokens   BackendTokenManager
	identity *identity.Service
	logger   *zap.Logger
}

type signupRequestPayload struct {
	Email     string `json:"email"`
	Password  string `json:"password"`
	Username  string `json:"username"`
	Bio       string `json:"bio"`
	AvatarURL string `json:"avatar_url"`
}

type loginRequestPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentialsResponsePayload struct {
	User        identity.User   `json:"user"`
	Session     json.RawMessage `json:"session"`
	AccessToken string          `json:"access_token"`
	ExpiresIn   int64           `json:"expires_in"`
	TokenType   string          `json:"token_type"`
}

func (h *httpHandler) handleSignup(c *gin.Context) {
	var request signupRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	credentials, err := h.identity.Signup(c.Request.Context(), identity.SignupInput{
		Email:     request.Email,
		Password:  request.Password,
		Username:  request.Username,
		Bio:       request.Bio,
		AvatarURL: request.AvatarURL,
	})
	if err != nil {
		h.renderServiceError(c, "signup failed", err)
		return
	}

	h.renderCredentials(c, http.StatusCreated, credentials)
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" || request.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	credentials, err := h.identity.Login(c.Request.Context(), request.Email, request.Password)
	if err != nil {
		h.renderServiceError(c, "login failed", err)
		return
	}

	h.renderCredentials(c, http.StatusOK, credentials)
}

// handleLogout forwards the provider access token from the Authorization
// header; the backend holds no session state to clear.
func (h *httpHandler) handleLogout(c *gin.Context) {
	token, err := bearerToken(c.Request)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	if err := h.identity.Logout(c.Request.Context(), token); err != nil {
		h.renderServiceError(c, "logout failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handlePasswordReset(c *gin.Context) {
	var request struct {
		Email string `json:"email"`
	}
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	if err := h.identity.ResetPassword(c.Request.Context(), request.Email); err != nil {
		h.renderServiceError(c, "password reset request failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *httpHandler) handleEmailAvailable(c *gin.Context) {
	email := c.Query("email")
	if strings.TrimSpace(email) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	normalized, err := h.identity.CheckEmailAvailable(c.Request.Context(), email)
	if err != nil {
		h.renderServiceError(c, "email availability check failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"available": true, "email": normalized})
}

func (h *httpHandler) handleSession(c *gin.Context) {
	handle := c.GetString(accountHandleContextKey)
	profile, err := h.identity.VerifyToken(c.Request.Context(), handle)
	if err != nil {
		h.renderServiceError(c, "session check failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"valid": true, "user": profile})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	token, err := bearerToken(c.Request)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	c.Set(accountHandleContextKey, claims.Subject)
	c.Next()
}

func (h *httpHandler) renderCredentials(c *gin.Context, status int, credentials identity.Credentials) {
	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), credentials.User.AccountID, credentials.User.Email)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(status, credentialsResponsePayload{
		User:        credentials.User,
		Session:     credentials.Session,
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

func (h *httpHandler) renderServiceError(c *gin.Context, message string, err error) {
	kind := identity.KindOf(err)
	status := kindToStatus(kind)
	if status >= http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	} else {
		h.logger.Info(message, zap.String("kind", string(kind)), zap.Error(err))
	}
	if kind == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
		return
	}
	c.JSON(status, gin.H{"error": string(kind)})
}

func kindToStatus(kind identity.Kind) int {
	switch kind {
	case identity.KindDuplicateEmail:
		return http.StatusConflict
	case identity.KindInvalidCredentials, identity.KindInvalidToken:
		return http.StatusUnauthorized
	case identity.KindProfileNotFound:
		return http.StatusNotFound
	case identity.KindProviderFailure, identity.KindSignOutFailure, identity.KindResetRequest:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errInvalidAuthorization
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", errInvalidAuthorization
	}
	return strings.TrimSpace(parts[1]), nil
}
