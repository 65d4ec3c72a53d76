package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/lalith-99/relaychat/internal/apperr"
	"github.com/lalith-99/relaychat/internal/files"
	"github.com/lalith-99/relaychat/internal/middleware"
	"github.com/lalith-99/relaychat/internal/repository"
	"go.uber.org/zap"
)

const searchLimit = 20

type UserHandler struct {
	users     repository.UserRepository
	files     files.Store
	maxUpload int64
	logger    *zap.Logger
}

func NewUserHandler(users repository.UserRepository, store files.Store, maxUpload int64, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, files: store, maxUpload: maxUpload, logger: logger}
}

// GetMe handles GET /v1/users/me
func (h *UserHandler) GetMe(c *gin.Context) {
	user, err := h.users.GetByID(c.Request.Context(), middleware.GetUserID(c))
	if err != nil {
		respondError(c, h.logger, apperr.Store("get user", err))
		return
	}
	// A valid token for a user that no longer exists.
	if user == nil {
		respondError(c, h.logger, apperr.NotFound("user not found"))
		return
	}

	c.JSON(http.StatusOK, user)
}

type updateMeRequest struct {
	Username *string `json:"username" form:"username" binding:"omitempty,max=64"`
}

// UpdateMe handles PATCH /v1/users/me with a JSON body or a multipart form
// carrying "username" and/or an "avatar" file.
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var req updateMeRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" {
			respondError(c, h.logger, apperr.Validation("username cannot be blank"))
			return
		}
		req.Username = &name
	}

	avatar, err := upload(c, h.files, "avatar", "avatars", h.maxUpload)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	if req.Username == nil && avatar == nil {
		respondError(c, h.logger, apperr.Validation("nothing to update"))
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), middleware.GetUserID(c), req.Username, avatar)
	if err != nil {
		respondError(c, h.logger, apperr.Store("update profile", err))
		return
	}
	if user == nil {
		respondError(c, h.logger, apperr.NotFound("user not found"))
		return
	}

	c.JSON(http.StatusOK, user)
}

// Search handles GET /v1/users?search=. The caller is never in the results.
func (h *UserHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("search"))
	if q == "" {
		c.JSON(http.StatusOK, []any{})
		return
	}

	users, err := h.users.Search(c.Request.Context(), q, middleware.GetUserID(c), searchLimit)
	if err != nil {
		respondError(c, h.logger, apperr.Store("search users", err))
		return
	}

	c.JSON(http.StatusOK, users)
}
