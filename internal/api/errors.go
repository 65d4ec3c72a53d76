package api

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/lalith-99/relaychat/internal/apperr"
	"github.com/lalith-99/relaychat/internal/files"
	"go.uber.org/zap"
)

// respondError writes the {"error", "message"} body for err. Store failures
// are logged here and reach the client only as "internal error".
func respondError(c *gin.Context, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindStore {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(apperr.HTTPStatus(kind), gin.H{
		"error":   apperr.Code(kind),
		"message": apperr.PublicMessage(err),
	})
}

func uuidParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid " + name)
	}
	return id, nil
}

func int64Param(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid " + name)
	}
	return id, nil
}

// bindError turns a gin binding failure into a validation error.
func bindError(err error) error {
	return apperr.Validation(err.Error())
}

// upload stores the multipart file in field, if present, and returns its
// reference. A request without the field returns nil.
func upload(c *gin.Context, store files.Store, field, prefix string, maxBytes int64) (*string, error) {
	fh, err := c.FormFile(field)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, nil
		}
		return nil, apperr.Validation("invalid " + field + " upload")
	}
	if maxBytes > 0 && fh.Size > maxBytes {
		return nil, apperr.Validation(field + " is too large")
	}

	f, err := fh.Open()
	if err != nil {
		return nil, apperr.Validation("invalid " + field + " upload")
	}
	defer func(f multipart.File) { _ = f.Close() }(f)

	ref, err := store.Put(c.Request.Context(), prefix, fh.Filename, fh.Header.Get("Content-Type"), f, fh.Size)
	if err != nil {
		return nil, err
	}
	return &ref, nil
}
