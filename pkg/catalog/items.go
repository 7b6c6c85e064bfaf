package catalog

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
	"github.com/prodflow/prodflow/pkg/uniqueness"
)

// ItemInput creates a product, semi-product or raw material. MinStock only
// applies to raw materials.
type ItemInput struct {
	CompanyID   *uuid.UUID      `json:"company_id"`
	Code        string          `json:"code" binding:"required"`
	Name        string          `json:"name" binding:"required"`
	Unit        string          `json:"unit"`
	Description string          `json:"description"`
	MinStock    decimal.Decimal `json:"min_stock"`
}

type ItemPatch struct {
	Code        *string          `json:"code"`
	Name        *string          `json:"name"`
	Unit        *string          `json:"unit"`
	Description *string          `json:"description"`
	MinStock    *decimal.Decimal `json:"min_stock"`
}

// prepareItem validates a new coded item and resolves its company.
func (s *Service) prepareItem(ctx context.Context, scope tenant.Scope, kind model.ItemKind, in *ItemInput) (uuid.UUID, error) {
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	if err := required("code", in.Code, "name", in.Name); err != nil {
		return uuid.Nil, err
	}
	if in.MinStock.IsNegative() {
		return uuid.Nil, apperr.Validation("min_stock must not be negative")
	}
	companyID, err := scope.CompanyForCreate(in.CompanyID)
	if err != nil {
		return uuid.Nil, err
	}
	rule := uniqueness.Code(kind.Table(), kind.Label()+" code", in.Code, companyID)
	if err := s.unique.Ensure(ctx, scope, rule); err != nil {
		return uuid.Nil, err
	}
	return companyID, nil
}

// patchItem loads the live item and builds the column patch for p.
func (s *Service) patchItem(ctx context.Context, scope tenant.Scope, kind model.ItemKind, id uuid.UUID, p ItemPatch) (map[string]interface{}, error) {
	row := kind.NewRow()
	if err := store.LoadTarget(ctx, s.db, scope, row, id, kind.Label()); err != nil {
		return nil, err
	}
	patch := map[string]interface{}{}
	if err := setString(patch, "code", p.Code); err != nil {
		return nil, err
	}
	if err := setString(patch, "name", p.Name); err != nil {
		return nil, err
	}
	if err := setString(patch, "unit", p.Unit); err != nil {
		return nil, err
	}
	setText(patch, "description", p.Description)
	if code, ok := patch["code"].(string); ok {
		rule := uniqueness.Code(kind.Table(), kind.Label()+" code", code, row.Header().CompanyID).Excluding(id)
		if err := s.unique.Ensure(ctx, scope, rule); err != nil {
			return nil, err
		}
	}
	if p.MinStock != nil {
		if kind != model.ItemRawMaterial {
			return nil, apperr.Validation("min_stock only applies to raw materials")
		}
		if p.MinStock.IsNegative() {
			return nil, apperr.Validation("min_stock must not be negative")
		}
		patch["min_stock"] = *p.MinStock
	}
	return patch, nil
}

func (s *Service) CreateProduct(ctx context.Context, scope tenant.Scope, in ItemInput) (*model.Product, error) {
	companyID, err := s.prepareItem(ctx, scope, model.ItemProduct, &in)
	if err != nil {
		return nil, err
	}
	p := &model.Product{
		Base:        model.NewBase(companyID, scope.ActorID()),
		Code:        in.Code,
		Name:        in.Name,
		Unit:        in.Unit,
		Description: in.Description,
	}
	if p.Unit == "" {
		p.Unit = "pcs"
	}
	if err := s.db.Insert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) GetProduct(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.Product, error) {
	return get[model.Product](ctx, s.db, scope, id, "product", opts)
}

func (s *Service) ListProducts(ctx context.Context, scope tenant.Scope, opts store.ListOptions) ([]model.Product, error) {
	return list[model.Product](ctx, s.db, opts.Query(scope, "code ASC"))
}

func (s *Service) UpdateProduct(ctx context.Context, scope tenant.Scope, id uuid.UUID, p ItemPatch) (*model.Product, error) {
	patch, err := s.patchItem(ctx, scope, model.ItemProduct, id, p)
	if err != nil {
		return nil, err
	}
	if err := s.update(ctx, scope, &model.Product{}, id, patch); err != nil {
		return nil, err
	}
	return s.GetProduct(ctx, scope, id)
}

func (s *Service) CreateRawMaterial(ctx context.Context, scope tenant.Scope, in ItemInput) (*model.RawMaterial, error) {
	companyID, err := s.prepareItem(ctx, scope, model.ItemRawMaterial, &in)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Unit) == "" {
		return nil, apperr.Validation("unit is required")
	}
	m := &model.RawMaterial{
		Base:        model.NewBase(companyID, scope.ActorID()),
		Code:        in.Code,
		Name:        in.Name,
		Unit:        in.Unit,
		MinStock:    in.MinStock,
		Description: in.Description,
	}
	if err := s.db.Insert(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) GetRawMaterial(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.RawMaterial, error) {
	return get[model.RawMaterial](ctx, s.db, scope, id, "raw material", opts)
}

func (s *Service) ListRawMaterials(ctx context.Context, scope tenant.Scope, opts store.ListOptions) ([]model.RawMaterial, error) {
	return list[model.RawMaterial](ctx, s.db, opts.Query(scope, "code ASC"))
}

func (s *Service) UpdateRawMaterial(ctx context.Context, scope tenant.Scope, id uuid.UUID, p ItemPatch) (*model.RawMaterial, error) {
	patch, err := s.patchItem(ctx, scope, model.ItemRawMaterial, id, p)
	if err != nil {
		return nil, err
	}
	if err := s.update(ctx, scope, &model.RawMaterial{}, id, patch); err != nil {
		return nil, err
	}
	return s.GetRawMaterial(ctx, scope, id)
}

func (s *Service) CreateSemiProduct(ctx context.Context, scope tenant.Scope, in ItemInput) (*model.SemiProduct, error) {
	companyID, err := s.prepareItem(ctx, scope, model.ItemSemiProduct, &in)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Unit) == "" {
		return nil, apperr.Validation("unit is required")
	}
	sp := &model.SemiProduct{
		Base:        model.NewBase(companyID, scope.ActorID()),
		Code:        in.Code,
		Name:        in.Name,
		Unit:        in.Unit,
		Description: in.Description,
	}
	if err := s.db.Insert(ctx, sp); err != nil {
		return nil, err
	}
	return sp, nil
}

func (s *Service) GetSemiProduct(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.SemiProduct, error) {
	return get[model.SemiProduct](ctx, s.db, scope, id, "semi product", opts)
}

func (s *Service) ListSemiProducts(ctx context.Context, scope tenant.Scope, opts store.ListOptions) ([]model.SemiProduct, error) {
	return list[model.SemiProduct](ctx, s.db, opts.Query(scope, "code ASC"))
}

func (s *Service) UpdateSemiProduct(ctx context.Context, scope tenant.Scope, id uuid.UUID, p ItemPatch) (*model.SemiProduct, error) {
	patch, err := s.patchItem(ctx, scope, model.ItemSemiProduct, id, p)
	if err != nil {
		return nil, err
	}
	if err := s.update(ctx, scope, &model.SemiProduct{}, id, patch); err != nil {
		return nil, err
	}
	return s.GetSemiProduct(ctx, scope, id)
}

type CustomerInput struct {
	CompanyID *uuid.UUID `json:"company_id"`
	Name      string     `json:"name" binding:"required"`
	Email     string     `json:"email"`
	Phone     string     `json:"phone"`
	Address   string     `json:"address"`
}

type CustomerPatch struct {
	Name    *string `json:"name"`
	Email   *string `json:"email"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

func (s *Service) CreateCustomer(ctx context.Context, scope tenant.Scope, in CustomerInput) (*model.Customer, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperr.Validation("name is required")
	}
	companyID, err := scope.CompanyForCreate(in.CompanyID)
	if err != nil {
		return nil, err
	}
	c := &model.Customer{
		Base:    model.NewBase(companyID, scope.ActorID()),
		Name:    name,
		Email:   strings.TrimSpace(in.Email),
		Phone:   strings.TrimSpace(in.Phone),
		Address: in.Address,
	}
	if err := s.db.Insert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCustomer(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.Customer, error) {
	return get[model.Customer](ctx, s.db, scope, id, "customer", opts)
}

func (s *Service) ListCustomers(ctx context.Context, scope tenant.Scope, opts store.ListOptions) ([]model.Customer, error) {
	return list[model.Customer](ctx, s.db, opts.Query(scope, "name ASC"))
}

func (s *Service) UpdateCustomer(ctx context.Context, scope tenant.Scope, id uuid.UUID, p CustomerPatch) (*model.Customer, error) {
	var c model.Customer
	if err := store.LoadTarget(ctx, s.db, scope, &c, id, "customer"); err != nil {
		return nil, err
	}
	patch := map[string]interface{}{}
	if err := setString(patch, "name", p.Name); err != nil {
		return nil, err
	}
	setText(patch, "email", p.Email)
	setText(patch, "phone", p.Phone)
	setText(patch, "address", p.Address)
	if err := s.update(ctx, scope, &model.Customer{}, id, patch); err != nil {
		return nil, err
	}
	return s.GetCustomer(ctx, scope, id)
}

// LinkCustomer records that a customer buys a product.
func (s *Service) LinkCustomer(ctx context.Context, scope tenant.Scope, productID, customerID uuid.UUID) (*model.ProductCustomer, error) {
	var p model.Product
	if err := store.LoadOwner(ctx, s.db, scope, &p, productID, "product"); err != nil {
		return nil, err
	}
	var c model.Customer
	if err := store.LoadParent(ctx, s.db, scope, &c, customerID, "customer", p.CompanyID); err != nil {
		return nil, err
	}
	rule := uniqueness.Rule{
		Table:     model.TableProductCustomers,
		Fields:    []uniqueness.Field{{Column: "product_id", Value: p.ID}, {Column: "customer_id", Value: c.ID}},
		CompanyID: p.CompanyID,
		Message:   "customer is already linked to this product",
	}
	if err := s.unique.Ensure(ctx, scope, rule); err != nil {
		return nil, err
	}
	link := &model.ProductCustomer{Base: model.NewBase(p.CompanyID, scope.ActorID()), ProductID: p.ID, CustomerID: c.ID}
	if err := s.db.Insert(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (s *Service) UnlinkCustomer(ctx context.Context, scope tenant.Scope, productID, customerID uuid.UUID) error {
	var link model.ProductCustomer
	err := s.db.FindOne(ctx, &link, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.Eq("product_id", productID), store.Eq("customer_id", customerID)},
	})
	if err := store.Lookup(err, "product customer"); err != nil {
		return err
	}
	_, err = s.Delete(ctx, scope, softdelete.KindProductCustomer, link.ID)
	return err
}

func (s *Service) ListProductCustomers(ctx context.Context, scope tenant.Scope, productID uuid.UUID) ([]model.Customer, error) {
	links, err := list[model.ProductCustomer](ctx, s.db, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.Eq("product_id", productID)},
	})
	if err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return []model.Customer{}, nil
	}
	ids := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.CustomerID)
	}
	return list[model.Customer](ctx, s.db, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.In("id", ids)},
		Order:    "name ASC",
	})
}

type WarehouseInput struct {
	CompanyID *uuid.UUID `json:"company_id"`
	Code      string     `json:"code" binding:"required"`
	Name      string     `json:"name" binding:"required"`
	Location  string     `json:"location"`
}

type WarehousePatch struct {
	Code     *string `json:"code"`
	Name     *string `json:"name"`
	Location *string `json:"location"`
}

func (s *Service) CreateWarehouse(ctx context.Context, scope tenant.Scope, in WarehouseInput) (*model.Warehouse, error) {
	code, name := strings.TrimSpace(in.Code), strings.TrimSpace(in.Name)
	if err := required("code", code, "name", name); err != nil {
		return nil, err
	}
	companyID, err := scope.CompanyForCreate(in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := s.unique.Ensure(ctx, scope, uniqueness.Code(model.TableWarehouses, "warehouse code", code, companyID)); err != nil {
		return nil, err
	}
	w := &model.Warehouse{Base: model.NewBase(companyID, scope.ActorID()), Code: code, Name: name, Location: in.Location}
	if err := s.db.Insert(ctx, w); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *Service) GetWarehouse(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.Warehouse, error) {
	return get[model.Warehouse](ctx, s.db, scope, id, "warehouse", opts)
}

func (s *Service) ListWarehouses(ctx context.Context, scope tenant.Scope, opts store.ListOptions) ([]model.Warehouse, error) {
	return list[model.Warehouse](ctx, s.db, opts.Query(scope, "code ASC"))
}

func (s *Service) UpdateWarehouse(ctx context.Context, scope tenant.Scope, id uuid.UUID, p WarehousePatch) (*model.Warehouse, error) {
	var w model.Warehouse
	if err := store.LoadTarget(ctx, s.db, scope, &w, id, "warehouse"); err != nil {
		return nil, err
	}
	patch := map[string]interface{}{}
	if err := setString(patch, "code", p.Code); err != nil {
		return nil, err
	}
	if err := setString(patch, "name", p.Name); err != nil {
		return nil, err
	}
	setText(patch, "location", p.Location)
	if code, ok := patch["code"].(string); ok && code != w.Code {
		rule := uniqueness.Code(model.TableWarehouses, "warehouse code", code, w.CompanyID).Excluding(id)
		if err := s.unique.Ensure(ctx, scope, rule); err != nil {
			return nil, err
		}
	}
	if err := s.update(ctx, scope, &model.Warehouse{}, id, patch); err != nil {
		return nil, err
	}
	return s.GetWarehouse(ctx, scope, id)
}
