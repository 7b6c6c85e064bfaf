package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/store"
)

// Response is the envelope of every API reply.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Message string      `json:"message,omitempty"`
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// fail writes err with the status of its kind. Server-side failures are
// logged with the request's context and sent with their underlying message.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(err)
	msg := apperr.Message(err)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.Error(err),
			zap.String("kind", string(kind)),
			zap.String("path", c.FullPath()),
			zap.String("request_id", c.GetString("request_id")),
			zap.String("company_id", c.GetString("company_id")),
		)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, Response{Success: false, Error: string(kind), Message: msg})
}

// readOptions maps ?include_inactive on by-id reads.
func readOptions(c *gin.Context) store.ReadOptions {
	include, _ := strconv.ParseBool(c.Query("include_inactive"))
	return store.ReadOptions{IncludeInactive: include}
}

func bind(c *gin.Context, logger *zap.Logger, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		fail(c, logger, apperr.Validation("invalid request: %s", err.Error()))
		return false
	}
	return true
}

func pathID(c *gin.Context, logger *zap.Logger, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		fail(c, logger, apperr.Validation("invalid %s", name))
		return uuid.Nil, false
	}
	return id, true
}

func queryID(c *gin.Context, logger *zap.Logger, name string) (*uuid.UUID, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		fail(c, logger, apperr.Validation("invalid %s", name))
		return nil, false
	}
	return &id, true
}

func listOptions(c *gin.Context) store.ListOptions {
	include, _ := strconv.ParseBool(c.Query("include_inactive"))
	return store.ListOptions{
		IncludeInactive: include,
		Limit:           parseLimit(c.Query("limit"), 100),
		Offset:          parseOffset(c.Query("offset")),
	}
}

func parseLimit(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func parseOffset(value string) int {
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}
