// Package api exposes the conversation store, speech services, and auth
// over HTTP. Everything under /api except auth requires a bearer token.
package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/alchemy-app/backend/internal/auth"
	"github.com/alchemy-app/backend/internal/backend"
	"github.com/alchemy-app/backend/internal/settings"
	"github.com/alchemy-app/backend/internal/speech"
	"github.com/alchemy-app/backend/internal/store"
)

const redactedAPIKey = "********"

type Handler struct {
	authService *auth.Service
	store       *store.ConversationStore
	synthesizer *speech.Synthesizer
	recognizer  *speech.Recognizer
	logger      *zap.SugaredLogger
}

type HandlerOptions struct {
	Auth        *auth.Service
	Store       *store.ConversationStore
	Synthesizer *speech.Synthesizer
	Recognizer  *speech.Recognizer
	Logger      *zap.SugaredLogger
}

func NewHandler(opts HandlerOptions) *Handler {
	return &Handler{
		authService: opts.Auth,
		store:       opts.Store,
		synthesizer: opts.Synthesizer,
		recognizer:  opts.Recognizer,
		logger:      opts.Logger,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	apiGroup := router.Group("/api")

	authGroup := apiGroup.Group("/auth")
	authGroup.POST("/register", h.handleRegister)
	authGroup.POST("/login", h.handleLogin)

	protected := apiGroup.Group("")
	protected.Use(h.requireAuth)

	chatGroup := protected.Group("/chat")
	chatGroup.GET("", h.handleActiveConversation)
	chatGroup.POST("/send", h.handleSend)
	chatGroup.POST("/new", h.handleNewConversation)
	chatGroup.POST("/select", h.handleSelectConversation)
	chatGroup.GET("/history", h.handleHistory)
	chatGroup.DELETE("/history", h.handleClearHistory)
	chatGroup.DELETE("/history/:id", h.handleDeleteConversation)
	chatGroup.PATCH("/history/:id", h.handleRenameConversation)
	chatGroup.POST("/backend", h.handleSetBackend)

	protected.GET("/config", h.handleGetConfig)
	protected.PUT("/config", h.handleUpdateConfig)

	speechGroup := protected.Group("/speech")
	speechGroup.POST("/tts", h.handleTTS)
	speechGroup.GET("/recognize", h.handleRecognize)
}

func (h *Handler) requireAuth(c *gin.Context) {
	token := parseAuthorizationToken(c.GetHeader("Authorization"))
	if token == "" {
		writeError(c, http.StatusUnauthorized, "missing bearer token", auth.ErrInvalidToken)
		c.Abort()
		return
	}

	claims, err := h.authService.VerifyToken(token)
	if err != nil {
		writeError(c, http.StatusUnauthorized, "invalid token", err)
		c.Abort()
		return
	}

	c.Set("userID", claims.Subject)
	c.Next()
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

func (h *Handler) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.authService.Register(c.Request.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrUsernameRequired), errors.Is(err, auth.ErrPasswordTooWeak):
			writeError(c, http.StatusBadRequest, err.Error(), err)
		case errors.Is(err, auth.ErrUserExists), errors.Is(err, auth.ErrEmailExists):
			writeError(c, http.StatusConflict, err.Error(), err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to register user", err)
		}
		return
	}

	c.JSON(http.StatusCreated, newAuthResponse(result))
}

func (h *Handler) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), auth.LoginInput{
		Identifier: req.Identifier,
		Password:   req.Password,
	})
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(c, http.StatusUnauthorized, err.Error(), err)
			return
		}
		writeError(c, http.StatusInternalServerError, "failed to login", err)
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(result))
}

type sendRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleSend(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	if err := h.store.SendMessage(c.Request.Context(), req.Text); err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyMessage):
			writeError(c, http.StatusBadRequest, "message text is required", err)
		case errors.Is(err, store.ErrBusy):
			writeError(c, http.StatusConflict, "a reply is already being generated", err)
		default:
			writeError(c, statusFromBackendError(err), "reply generation failed", err)
		}
		return
	}

	c.JSON(http.StatusOK, h.conversationState())
}

func (h *Handler) handleActiveConversation(c *gin.Context) {
	c.JSON(http.StatusOK, h.conversationState())
}

func (h *Handler) handleNewConversation(c *gin.Context) {
	conversation := h.store.StartNewConversation()
	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

type selectRequest struct {
	ID string `json:"id"`
}

func (h *Handler) handleSelectConversation(c *gin.Context) {
	var req selectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	conversation, err := h.store.SelectConversation(req.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, "conversation not found", err)
			return
		}
		writeError(c, http.StatusInternalServerError, "failed to select conversation", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversation": conversation})
}

func (h *Handler) handleHistory(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"conversations": h.store.History()})
}

func (h *Handler) handleClearHistory(c *gin.Context) {
	if err := h.store.ClearAllHistory(c.Request.Context()); err != nil {
		writeError(c, http.StatusInternalServerError, "failed to clear history", err)
		return
	}
	c.JSON(http.StatusOK, h.conversationState())
}

func (h *Handler) handleDeleteConversation(c *gin.Context) {
	err := h.store.DeleteConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(c, http.StatusNotFound, "conversation not found", err)
			return
		}
		writeError(c, http.StatusInternalServerError, "failed to delete conversation", err)
		return
	}

	c.JSON(http.StatusOK, h.conversationState())
}

type renameRequest struct {
	Title string `json:"title"`
}

func (h *Handler) handleRenameConversation(c *gin.Context) {
	var req renameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	err := h.store.RenameConversation(c.Request.Context(), c.Param("id"), req.Title)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrEmptyTitle):
			writeError(c, http.StatusBadRequest, "title is required", err)
		case errors.Is(err, store.ErrNotFound):
			writeError(c, http.StatusNotFound, "conversation not found", err)
		default:
			writeError(c, http.StatusInternalServerError, "failed to rename conversation", err)
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"conversations": h.store.History()})
}

type setBackendRequest struct {
	Kind string `json:"kind"`
}

func (h *Handler) handleSetBackend(c *gin.Context) {
	var req setBackendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	kind, err := backend.ParseKind(req.Kind)
	if err != nil {
		writeError(c, http.StatusBadRequest, "unknown backend kind", err)
		return
	}

	if err := h.store.SetBackend(c.Request.Context(), kind); err != nil {
		writeError(c, statusFromBackendError(err), "failed to switch backend", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"backend": string(h.store.BackendKind())})
}

func (h *Handler) handleGetConfig(c *gin.Context) {
	cfg := h.store.Configuration()
	if cfg.APIKey != "" {
		cfg.APIKey = redactedAPIKey
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

func (h *Handler) handleUpdateConfig(c *gin.Context) {
	var req settings.Settings
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	// A blank or redacted key means "keep the stored one".
	if req.APIKey == "" || req.APIKey == redactedAPIKey {
		req.APIKey = h.store.Configuration().APIKey
	}

	if err := h.store.UpdateConfiguration(c.Request.Context(), req); err != nil {
		writeError(c, statusFromBackendError(err), "failed to update configuration", err)
		return
	}

	if h.synthesizer != nil {
		h.synthesizer.SetVoice(req.VoiceID, req.SpeechRate)
	}

	cfg := h.store.Configuration()
	if cfg.APIKey != "" {
		cfg.APIKey = redactedAPIKey
	}
	c.JSON(http.StatusOK, gin.H{"config": cfg})
}

type ttsRequest struct {
	Text string `json:"text"`
}

func (h *Handler) handleTTS(c *gin.Context) {
	if h.synthesizer == nil {
		writeError(c, http.StatusServiceUnavailable, "speech synthesis is not configured", errors.New("no synthesizer"))
		return
	}

	var req ttsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(c, http.StatusBadRequest, "text is required", errors.New("empty text"))
		return
	}

	if err := h.synthesizer.Speak(c.Request.Context(), req.Text); err != nil {
		if errors.Is(err, speech.ErrMissingCredential) {
			writeError(c, http.StatusBadRequest, err.Error(), err)
			return
		}
		writeError(c, http.StatusBadGateway, "speech synthesis failed", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "spoken"})
}

func (h *Handler) conversationState() gin.H {
	return gin.H{
		"conversation": h.store.Active(),
		"busy":         h.store.Busy(),
		"last_error":   h.store.LastError(),
		"backend":      string(h.store.BackendKind()),
	}
}

func newAuthResponse(result *auth.AuthResult) gin.H {
	return gin.H{
		"token":     result.Token,
		"expiresAt": result.ExpiresAt.Format(time.RFC3339),
		"user": gin.H{
			"id":        result.User.ID,
			"username":  result.User.Username,
			"email":     result.User.Email,
			"createdAt": result.User.CreatedAt.Format(time.RFC3339),
			"updatedAt": result.User.UpdatedAt.Format(time.RFC3339),
		},
	}
}

// statusFromBackendError maps the backend error taxonomy onto HTTP. Caller
// mistakes are 4xx; upstream failures surface as 502.
func statusFromBackendError(err error) int {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, backend.ErrInvalidEndpoint),
		errors.Is(err, backend.ErrMissingCredential):
		return http.StatusBadRequest
	case errors.Is(err, backend.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	case errors.As(err, &apiErr),
		errors.Is(err, backend.ErrEmptyResponse),
		errors.Is(err, backend.ErrDecodeFailure):
		return http.StatusBadGateway
	default:
		return http.StatusBadGateway
	}
}

func parseAuthorizationToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}

	if strings.HasPrefix(strings.ToLower(header), "bearer ") {
		return strings.TrimSpace(header[7:])
	}

	return ""
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}
