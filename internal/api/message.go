package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/apperr"
	"github.com/lalith-99/relaychat/internal/chat"
	"github.com/lalith-99/relaychat/internal/files"
	"github.com/lalith-99/relaychat/internal/middleware"
	"github.com/lalith-99/relaychat/internal/models"
	"github.com/lalith-99/relaychat/internal/redisx"
	"go.uber.org/zap"
)

type MessageHandler struct {
	svc       *chat.Service
	files     files.Store
	limiter   redisx.RateLimiter
	idem      redisx.IdempotencyStore
	maxUpload int64
	logger    *zap.Logger
}

func NewMessageHandler(
	svc *chat.Service,
	store files.Store,
	limiter redisx.RateLimiter,
	idem redisx.IdempotencyStore,
	maxUpload int64,
	logger *zap.Logger,
) *MessageHandler {
	return &MessageHandler{
		svc:       svc,
		files:     store,
		limiter:   limiter,
		idem:      idem,
		maxUpload: maxUpload,
		logger:    logger,
	}
}

// createMessageRequest binds from JSON, or from a multipart form with an
// optional "file". Either body or file must end up non-empty.
type createMessageRequest struct {
	Body *string `json:"body" form:"body"`
}

// Create handles POST /v1/chats/:id/messages
//
// An Idempotency-Key header makes a retried request answer 409 instead of
// posting the message twice.
func (h *MessageHandler) Create(c *gin.Context) {
	chatID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	userID := middleware.GetUserID(c)
	ctx := c.Request.Context()

	var req createMessageRequest
	if err := c.ShouldBind(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	ok, err := h.limiter.Allow(ctx, "send:"+userID.String())
	if err != nil {
		respondError(c, h.logger, apperr.Store("rate limit", err))
		return
	}
	if !ok {
		respondError(c, h.logger, apperr.RateLimited("sending too fast"))
		return
	}

	var idemKey string
	if key := strings.TrimSpace(c.GetHeader("Idempotency-Key")); key != "" {
		idemKey = "send:" + userID.String() + ":" + key
		first, err := h.idem.Claim(ctx, idemKey)
		if err != nil {
			respondError(c, h.logger, apperr.Store("idempotency", err))
			return
		}
		if !first {
			respondError(c, h.logger, apperr.Conflict("duplicate request"))
			return
		}
	}

	msg, err := h.send(c, chatID, req.Body)
	if err != nil {
		if idemKey != "" {
			h.release(ctx, idemKey)
		}
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) send(c *gin.Context, chatID uuid.UUID, body *string) (*models.Message, error) {
	fileRef, err := upload(c, h.files, "file", "messages", h.maxUpload)
	if err != nil {
		return nil, err
	}
	return h.svc.SendMessage(c.Request.Context(), chatID, middleware.GetUserID(c), body, fileRef)
}

// release frees an idempotency key after a failed send so a retry with the
// same key is accepted. It outlives a request that timed out.
func (h *MessageHandler) release(ctx context.Context, key string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := h.idem.Release(ctx, key); err != nil {
		h.logger.Warn("failed to release idempotency key", zap.String("key", key), zap.Error(err))
	}
}

// List handles GET /v1/chats/:id/messages?before=123&limit=50
//
// Cursor pagination: "before" is a message id (omit for the newest page),
// "limit" defaults to 50 and is capped at 100. Each page is oldest first.
func (h *MessageHandler) List(c *gin.Context) {
	chatID, err := uuidParam(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	var before int64
	if b := c.Query("before"); b != "" {
		before, err = strconv.ParseInt(b, 10, 64)
		if err != nil || before < 0 {
			respondError(c, h.logger, apperr.Validation("invalid 'before' parameter"))
			return
		}
	}

	limit := chat.DefaultPageSize
	if l := c.Query("limit"); l != "" {
		limit, err = strconv.Atoi(l)
		if err != nil || limit < 1 {
			respondError(c, h.logger, apperr.Validation("invalid 'limit' parameter"))
			return
		}
	}

	messages, err := h.svc.ListMessages(c.Request.Context(), chatID, middleware.GetUserID(c), before, limit)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

type editMessageRequest struct {
	Body string `json:"body" binding:"required"`
}

// Edit handles PATCH /v1/messages/:id
func (h *MessageHandler) Edit(c *gin.Context) {
	messageID, err := int64Param(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}
	var req editMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, h.logger, bindError(err))
		return
	}

	msg, err := h.svc.EditMessage(c.Request.Context(), messageID, middleware.GetUserID(c), req.Body)
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

// Delete handles DELETE /v1/messages/:id
func (h *MessageHandler) Delete(c *gin.Context) {
	messageID, err := int64Param(c, "id")
	if err != nil {
		respondError(c, h.logger, err)
		return
	}

	if err := h.svc.DeleteMessage(c.Request.Context(), messageID, middleware.GetUserID(c)); err != nil {
		respondError(c, h.logger, err)
		return
	}

	c.Status(http.StatusNoContent)
}
