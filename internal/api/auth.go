package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/relaychat/internal/apperr"
	"github.com/lalith-99/relaychat/internal/auth"
	"github.com/lalith-99/relaychat/internal/files"
	"github.com/lalith-99/relaychat/internal/models"
	"github.com/lalith-99/relaychat/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler handles register and login, the only public endpoints
// besides health and metrics.
type AuthHandler struct {
	users     repository.UserRepository
	tokens    *auth.Tokens
	files     files.Store
	maxUpload int64
	logger    *zap.Logger
}

func NewAuthHandler(users repository.UserRepository, tokens *auth.Tokens, store files.Store, maxUpload int64, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens, files: store, maxUpload: maxUpload, logger: logger}
}

// registerRequest binds from JSON or from a multipart form that may also
// carry an "avatar" file.
type registerRequest struct {
	Username string `json:"username" form:"username" binding:"required,max=64"`
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,min=8"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// authResponse is what both register and login return. The client sends
// the token as "Authorization: Bearer <token>", or as ?token= on /v1/ws.
type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register handles POST /v1/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Username == "" {
		respondError(c, h.logger, apperr.Validation("username is required"))
		return
	}

	existing, err := h.users.GetByEmail(c.Request.Context(), req.Email)
	if err != nil {
		respondError(c, h.logger, apperr.Store("check existing user", err))
		return
	}
	if existing != nil {
		respondError(c, h.logger, apperr.Conflict("email already registered"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondError(c, h.logger, apperr.Store("hash password", err))
		return
	}

	avatar, err := upload(c, h.files, "avatar", "avatars", h.maxUpload)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	user, err := h.users.Create(c.Request.Context(), req.Username, req.Email, string(hash), avatar)
	if err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			respondError(c, h.logger, apperr.Conflict("email already registered"))
			return
		}
		respondError(c, h.logger, apperr.Store("create user", err))
		return
	}

	token, err := h.tokens.Issue(user.ID, user.Email)
	if err != nil {
		respondError(c, h.logger, apperr.Store("issue token", err))
		return
	}

	c.JSON(http.StatusCreated, authResponse{Token: token, User: user})
}

// Login handles POST /v1/auth/login. A successful login stamps last_seen.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.users.GetByEmail(c.Request.Context(), email)
	if err != nil {
		respondError(c, h.logger, apperr.Store("find user", err))
		return
	}

	// Unknown email and wrong password get the same answer.
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		respondError(c, h.logger, apperr.Auth("invalid email or password"))
		return
	}

	now := time.Now().UTC()
	if err := h.users.TouchLastSeen(c.Request.Context(), user.ID, now); err != nil {
		h.logger.Warn("failed to update last seen", zap.String("user_id", user.ID.String()), zap.Error(err))
	} else {
		user.LastSeen = &now
	}

	token, err := h.tokens.Issue(user.ID, user.Email)
	if err != nil {
		respondError(c, h.logger, apperr.Store("issue token", err))
		return
	}

	c.JSON(http.StatusOK, authResponse{Token: token, User: user})
}
