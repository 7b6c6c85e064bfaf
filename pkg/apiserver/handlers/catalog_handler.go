package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/apiserver/middleware"
	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/catalog"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/softdelete"
)

type CatalogHandler struct {
	svc    *catalog.Service
	logger *zap.Logger
}

func NewCatalogHandler(svc *catalog.Service, logger *zap.Logger) *CatalogHandler {
	return &CatalogHandler{svc: svc, logger: logger}
}

type userRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

type roleRequest struct {
	RoleID uuid.UUID `json:"role_id" binding:"required"`
}

type customerRequest struct {
	CustomerID uuid.UUID `json:"customer_id" binding:"required"`
}

// Register mounts the catalog routes on rg.
func (h *CatalogHandler) Register(rg *gin.RouterGroup) {
	svc, log := h.svc, h.logger

	rg.POST("/groups", createWith(log, svc.CreateGroup))
	rg.GET("/groups", listWith(log, svc.ListGroups))
	rg.GET("/groups/:id", getWith(log, svc.GetGroup))
	rg.PUT("/groups/:id", updateWith(log, svc.UpdateGroup))
	rg.DELETE("/groups/:id", DeleteHandler(log, svc, softdelete.KindGroup))
	rg.GET("/groups/:id/users", h.ListGroupUsers)
	rg.POST("/groups/:id/users", h.AddUserToGroup)
	rg.DELETE("/groups/:id/users/:user_id", h.RemoveUserFromGroup)
	rg.GET("/groups/:id/roles", h.ListGroupRoles)
	rg.POST("/groups/:id/roles", h.AssignRole)
	rg.DELETE("/groups/:id/roles/:role_id", h.UnassignRole)

	rg.POST("/roles", createWith(log, svc.CreateRole))
	rg.GET("/roles", listWith(log, svc.ListRoles))
	rg.GET("/roles/:id", getWith(log, svc.GetRole))
	rg.PUT("/roles/:id", updateWith(log, svc.UpdateRole))
	rg.DELETE("/roles/:id", DeleteHandler(log, svc, softdelete.KindRole))

	rg.POST("/products", createWith(log, svc.CreateProduct))
	rg.GET("/products", listWith(log, svc.ListProducts))
	rg.GET("/products/:id", getWith(log, svc.GetProduct))
	rg.PUT("/products/:id", updateWith(log, svc.UpdateProduct))
	rg.DELETE("/products/:id", DeleteHandler(log, svc, softdelete.KindProduct))
	rg.GET("/products/:id/customers", h.ListProductCustomers)
	rg.POST("/products/:id/customers", h.LinkCustomer)
	rg.DELETE("/products/:id/customers/:customer_id", h.UnlinkCustomer)

	rg.POST("/customers", createWith(log, svc.CreateCustomer))
	rg.GET("/customers", listWith(log, svc.ListCustomers))
	rg.GET("/customers/:id", getWith(log, svc.GetCustomer))
	rg.PUT("/customers/:id", updateWith(log, svc.UpdateCustomer))
	rg.DELETE("/customers/:id", DeleteHandler(log, svc, softdelete.KindCustomer))

	rg.POST("/raw-materials", createWith(log, svc.CreateRawMaterial))
	rg.GET("/raw-materials", listWith(log, svc.ListRawMaterials))
	rg.GET("/raw-materials/:id", getWith(log, svc.GetRawMaterial))
	rg.PUT("/raw-materials/:id", updateWith(log, svc.UpdateRawMaterial))
	rg.DELETE("/raw-materials/:id", DeleteHandler(log, svc, softdelete.KindRawMaterial))

	rg.POST("/semi-products", createWith(log, svc.CreateSemiProduct))
	rg.GET("/semi-products", listWith(log, svc.ListSemiProducts))
	rg.GET("/semi-products/:id", getWith(log, svc.GetSemiProduct))
	rg.PUT("/semi-products/:id", updateWith(log, svc.UpdateSemiProduct))
	rg.DELETE("/semi-products/:id", DeleteHandler(log, svc, softdelete.KindSemiProduct))

	rg.POST("/warehouses", createWith(log, svc.CreateWarehouse))
	rg.GET("/warehouses", listWith(log, svc.ListWarehouses))
	rg.GET("/warehouses/:id", getWith(log, svc.GetWarehouse))
	rg.PUT("/warehouses/:id", updateWith(log, svc.UpdateWarehouse))
	rg.DELETE("/warehouses/:id", DeleteHandler(log, svc, softdelete.KindWarehouse))

	rg.POST("/inventory", createWith(log, svc.CreateInventory))
	rg.GET("/inventory", h.ListInventory)
	rg.GET("/inventory/:id", getWith(log, svc.GetInventory))
	rg.PUT("/inventory/:id", updateWith(log, svc.UpdateInventory))
	rg.DELETE("/inventory/:id", DeleteHandler(log, svc, softdelete.KindInventory))
	rg.GET("/stock-alerts", h.BelowMinimum)

	rg.POST("/recipes", createWith(log, svc.CreateRecipe))
	rg.GET("/recipes", h.ListRecipes)
	rg.GET("/recipes/:id", getWith(log, svc.GetRecipe))
	rg.PUT("/recipes/:id", updateWith(log, svc.UpdateRecipe))
	rg.DELETE("/recipes/:id", DeleteHandler(log, svc, softdelete.KindRecipe))
	rg.POST("/recipes/:id/details", updateWith(log, svc.AddRecipeDetail))
	rg.DELETE("/recipes/:id/details/:detail_id", h.RemoveRecipeDetail)
	rg.GET("/recipes/:id/requirements", h.MaterialRequirements)

	rg.POST("/specs", createWith(log, svc.CreateSpec))
	rg.GET("/specs", listWith(log, svc.ListSpecs))
	rg.GET("/specs/:id", getWith(log, svc.GetSpec))
	rg.PUT("/specs/:id", updateWith(log, svc.UpdateSpec))
	rg.DELETE("/specs/:id", DeleteHandler(log, svc, softdelete.KindSpec))
	rg.POST("/specs/:id/details", updateWith(log, svc.AddSpecDetail))
	rg.DELETE("/specs/:id/details/:detail_id", h.RemoveSpecDetail)
}

func (h *CatalogHandler) AddUserToGroup(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req userRequest
	if !bind(c, h.logger, &req) {
		return
	}
	link, err := h.svc.AddUserToGroup(c.Request.Context(), middleware.Scope(c), id, req.UserID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, link)
}

func (h *CatalogHandler) RemoveUserFromGroup(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	if err := h.svc.RemoveUserFromGroup(c.Request.Context(), middleware.Scope(c), id, c.Param("user_id")); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "user removed from group"})
}

func (h *CatalogHandler) ListGroupUsers(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	users, err := h.svc.ListGroupUsers(c.Request.Context(), middleware.Scope(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, users)
}

func (h *CatalogHandler) AssignRole(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req roleRequest
	if !bind(c, h.logger, &req) {
		return
	}
	link, err := h.svc.AssignRole(c.Request.Context(), middleware.Scope(c), id, req.RoleID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, link)
}

func (h *CatalogHandler) UnassignRole(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	roleID, valid := pathID(c, h.logger, "role_id")
	if !valid {
		return
	}
	if err := h.svc.UnassignRole(c.Request.Context(), middleware.Scope(c), id, roleID); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "role removed from group"})
}

func (h *CatalogHandler) ListGroupRoles(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	roles, err := h.svc.ListGroupRoles(c.Request.Context(), middleware.Scope(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, roles)
}

func (h *CatalogHandler) LinkCustomer(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req customerRequest
	if !bind(c, h.logger, &req) {
		return
	}
	link, err := h.svc.LinkCustomer(c.Request.Context(), middleware.Scope(c), id, req.CustomerID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, link)
}

func (h *CatalogHandler) UnlinkCustomer(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	customerID, valid := pathID(c, h.logger, "customer_id")
	if !valid {
		return
	}
	if err := h.svc.UnlinkCustomer(c.Request.Context(), middleware.Scope(c), id, customerID); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "customer unlinked"})
}

func (h *CatalogHandler) ListProductCustomers(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	customers, err := h.svc.ListProductCustomers(c.Request.Context(), middleware.Scope(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, customers)
}

// itemFilter reads an optional product_id, raw_material_id or semi_product_id
// query parameter. At most one may be given.
func (h *CatalogHandler) itemFilter(c *gin.Context) (model.ItemRef, bool) {
	var ref model.ItemRef
	for _, kind := range []model.ItemKind{model.ItemProduct, model.ItemRawMaterial, model.ItemSemiProduct} {
		id, valid := queryID(c, h.logger, kind.Column())
		if !valid {
			return ref, false
		}
		if id == nil {
			continue
		}
		if !ref.IsZero() {
			fail(c, h.logger, apperr.Validation("filter by at most one item"))
			return ref, false
		}
		ref = model.ItemRef{Kind: kind, ID: *id}
	}
	return ref, true
}

func (h *CatalogHandler) ListInventory(c *gin.Context) {
	warehouseID, valid := queryID(c, h.logger, "warehouse_id")
	if !valid {
		return
	}
	item, valid := h.itemFilter(c)
	if !valid {
		return
	}
	rows, err := h.svc.ListInventory(c.Request.Context(), middleware.Scope(c), catalog.InventoryFilter{WarehouseID: warehouseID, Item: item}, listOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, rows)
}

func (h *CatalogHandler) BelowMinimum(c *gin.Context) {
	rows, err := h.svc.BelowMinimum(c.Request.Context(), middleware.Scope(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, rows)
}

func (h *CatalogHandler) ListRecipes(c *gin.Context) {
	item, valid := h.itemFilter(c)
	if !valid {
		return
	}
	if item.Kind == model.ItemRawMaterial {
		fail(c, h.logger, apperr.Validation("recipes produce products or semi-products"))
		return
	}
	recipes, err := h.svc.ListRecipes(c.Request.Context(), middleware.Scope(c), item, listOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, recipes)
}

// MaterialRequirements reports raw material totals for ?quantity units of
// the recipe's output. quantity defaults to the recipe's own output.
func (h *CatalogHandler) MaterialRequirements(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	ctx, scope := c.Request.Context(), middleware.Scope(c)
	var qty decimal.Decimal
	if raw := c.Query("quantity"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			fail(c, h.logger, apperr.Validation("invalid quantity"))
			return
		}
		qty = parsed
	} else {
		recipe, err := h.svc.GetRecipe(ctx, scope, id)
		if err != nil {
			fail(c, h.logger, err)
			return
		}
		qty = recipe.OutputQuantity
	}
	reqs, err := h.svc.MaterialRequirements(ctx, scope, id, qty)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, reqs)
}

func (h *CatalogHandler) RemoveRecipeDetail(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	detailID, valid := pathID(c, h.logger, "detail_id")
	if !valid {
		return
	}
	if err := h.svc.RemoveRecipeDetail(c.Request.Context(), middleware.Scope(c), id, detailID); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "recipe detail deleted successfully"})
}

func (h *CatalogHandler) RemoveSpecDetail(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	detailID, valid := pathID(c, h.logger, "detail_id")
	if !valid {
		return
	}
	if err := h.svc.RemoveSpecDetail(c.Request.Context(), middleware.Scope(c), id, detailID); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "spec detail deleted successfully"})
}
