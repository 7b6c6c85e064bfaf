package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/apiserver/middleware"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
)

// The adapters below turn service methods of the common CRUD shapes into
// gin handlers.

func createWith[In, Out any](logger *zap.Logger, fn func(context.Context, tenant.Scope, In) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req In
		if !bind(c, logger, &req) {
			return
		}
		out, err := fn(c.Request.Context(), middleware.Scope(c), req)
		if err != nil {
			fail(c, logger, err)
			return
		}
		created(c, out)
	}
}

func getWith[Out any](logger *zap.Logger, fn func(context.Context, tenant.Scope, uuid.UUID, ...store.ReadOptions) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathID(c, logger, "id")
		if !valid {
			return
		}
		out, err := fn(c.Request.Context(), middleware.Scope(c), id, readOptions(c))
		if err != nil {
			fail(c, logger, err)
			return
		}
		ok(c, out)
	}
}

func listWith[Out any](logger *zap.Logger, fn func(context.Context, tenant.Scope, store.ListOptions) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		out, err := fn(c.Request.Context(), middleware.Scope(c), listOptions(c))
		if err != nil {
			fail(c, logger, err)
			return
		}
		ok(c, out)
	}
}

func updateWith[P, Out any](logger *zap.Logger, fn func(context.Context, tenant.Scope, uuid.UUID, P) (Out, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathID(c, logger, "id")
		if !valid {
			return
		}
		var patch P
		if !bind(c, logger, &patch) {
			return
		}
		out, err := fn(c.Request.Context(), middleware.Scope(c), id, patch)
		if err != nil {
			fail(c, logger, err)
			return
		}
		ok(c, out)
	}
}

// Deleter soft-deletes a row of any registered kind.
type Deleter interface {
	Delete(ctx context.Context, scope tenant.Scope, kind softdelete.Kind, id uuid.UUID) (*softdelete.Result, error)
}

// DeleteHandler soft-deletes the row named by the id path parameter.
func DeleteHandler(logger *zap.Logger, d Deleter, kind softdelete.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, valid := pathID(c, logger, "id")
		if !valid {
			return
		}
		res, err := d.Delete(c.Request.Context(), middleware.Scope(c), kind, id)
		if err != nil {
			fail(c, logger, err)
			return
		}
		c.JSON(http.StatusOK, Response{Success: true, Data: res, Message: res.Message})
	}
}
