package workflow

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
	"github.com/prodflow/prodflow/pkg/uniqueness"
)

type OrderInput struct {
	CompanyID     *uuid.UUID      `json:"company_id"`
	Code          string          `json:"code" binding:"required"`
	PlanID        *uuid.UUID      `json:"plan_id"`
	ProductID     *uuid.UUID      `json:"product_id"`
	SemiProductID *uuid.UUID      `json:"semi_product_id"`
	RecipeID      uuid.UUID       `json:"recipe_id" binding:"required"`
	Quantity      decimal.Decimal `json:"quantity"`
	StartDate     *time.Time      `json:"start_date"`
	EndDate       *time.Time      `json:"end_date"`
	Notes         string          `json:"notes"`
}

type OrderPatch struct {
	Quantity  *decimal.Decimal `json:"quantity"`
	StartDate *time.Time       `json:"start_date"`
	EndDate   *time.Time       `json:"end_date"`
	Progress  *int             `json:"progress"`
	Notes     *string          `json:"notes"`
}

type OrderFilter struct {
	PlanID *uuid.UUID
	Status model.OrderStatus
}

func checkProgress(p int) error {
	if p < 0 || p > 100 {
		return apperr.Validation("progress must be between 0 and 100")
	}
	return nil
}

func (s *Service) CreateOrder(ctx context.Context, scope tenant.Scope, in OrderInput) (*model.ProductionOrder, error) {
	in.Code = strings.TrimSpace(in.Code)
	if in.Code == "" {
		return nil, apperr.Validation("code is required")
	}
	if in.RecipeID == uuid.Nil {
		return nil, apperr.Validation("recipe_id is required")
	}
	if !in.Quantity.IsPositive() {
		return nil, apperr.Validation("quantity must be greater than zero")
	}
	if err := checkDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	produced, err := model.ProducedFromColumns(in.ProductID, in.SemiProductID)
	if err != nil {
		return nil, err
	}
	companyID, err := scope.CompanyForCreate(in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := s.unique.Ensure(ctx, scope, uniqueness.Code(model.TableProductionOrders, "production order code", in.Code, companyID)); err != nil {
		return nil, err
	}

	if in.PlanID != nil {
		var plan model.ProductionPlan
		if err := store.LoadParent(ctx, s.db, scope, &plan, *in.PlanID, "production plan", companyID); err != nil {
			return nil, err
		}
		if plan.PlanStatus.Terminal() {
			return nil, apperr.Precondition("production plan is %s", plan.PlanStatus)
		}
	}

	ref := produced.Ref()
	if err := store.LoadParent(ctx, s.db, scope, ref.Kind.NewRow(), ref.ID, ref.Kind.Label(), companyID); err != nil {
		return nil, err
	}

	var recipe model.Recipe
	if err := store.LoadParent(ctx, s.db, scope, &recipe, in.RecipeID, "recipe", companyID); err != nil {
		return nil, err
	}
	recipeOutput, err := recipe.Produced()
	if err != nil || recipeOutput.Ref() != ref {
		return nil, apperr.Precondition("recipe does not produce the ordered %s", ref.Kind.Label())
	}

	order := &model.ProductionOrder{
		Base:        model.NewBase(companyID, scope.ActorID()),
		Code:        in.Code,
		PlanID:      in.PlanID,
		RecipeID:    in.RecipeID,
		Quantity:    in.Quantity,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		OrderStatus: model.OrderDraft,
		Notes:       in.Notes,
	}
	order.SetProduced(produced)
	if err := s.db.Insert(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns the order with its live stages in sequence order.
func (s *Service) GetOrder(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.ProductionOrder, error) {
	var order model.ProductionOrder
	q := store.ReadQuery(scope, id, opts...)
	q.Preload = []string{"Stages"}
	if err := store.Lookup(s.db.FindOne(ctx, &order, q), "production order"); err != nil {
		return nil, err
	}
	sort.Slice(order.Stages, func(i, j int) bool {
		return order.Stages[i].SequenceNumber < order.Stages[j].SequenceNumber
	})
	return &order, nil
}

func (s *Service) ListOrders(ctx context.Context, scope tenant.Scope, f OrderFilter, opts store.ListOptions) ([]model.ProductionOrder, error) {
	var conds []store.Cond
	if f.PlanID != nil {
		conds = append(conds, store.Eq("plan_id", *f.PlanID))
	}
	if f.Status != "" {
		conds = append(conds, store.Eq("order_status", f.Status))
	}
	var orders []model.ProductionOrder
	if err := s.db.Find(ctx, &orders, opts.Query(scope, "created_at DESC", conds...)); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateOrder changes descriptive fields. Status moves only through
// TransitionOrder.
func (s *Service) UpdateOrder(ctx context.Context, scope tenant.Scope, id uuid.UUID, p OrderPatch) (*model.ProductionOrder, error) {
	var order model.ProductionOrder
	if err := store.LoadTarget(ctx, s.db, scope, &order, id, "production order"); err != nil {
		return nil, err
	}
	if order.OrderStatus.Terminal() {
		return nil, apperr.Precondition("production order is %s and can no longer be changed", order.OrderStatus)
	}

	patch := map[string]interface{}{}
	if p.Quantity != nil {
		if !p.Quantity.IsPositive() {
			return nil, apperr.Validation("quantity must be greater than zero")
		}
		patch["quantity"] = *p.Quantity
	}
	start, end := order.StartDate, order.EndDate
	if p.StartDate != nil {
		start = p.StartDate
		patch["start_date"] = p.StartDate
	}
	if p.EndDate != nil {
		end = p.EndDate
		patch["end_date"] = p.EndDate
	}
	if err := checkDates(start, end); err != nil {
		return nil, err
	}
	if p.Progress != nil {
		if err := checkProgress(*p.Progress); err != nil {
			return nil, err
		}
		patch["progress"] = *p.Progress
	}
	if p.Notes != nil {
		patch["notes"] = *p.Notes
	}
	if len(patch) > 0 {
		if _, err := s.db.Update(ctx, &model.ProductionOrder{}, store.ByID(scope, id), s.stamp(patch, scope.ActorID())); err != nil {
			return nil, err
		}
	}
	return s.GetOrder(ctx, scope, id)
}

// TransitionOrder moves the order along draft, pending, in_progress and
// completed, or cancels it from any non-terminal state. Progress, when given,
// is written alongside the status.
func (s *Service) TransitionOrder(ctx context.Context, scope tenant.Scope, id uuid.UUID, to model.OrderStatus, progress *int) (*model.ProductionOrder, error) {
	var order model.ProductionOrder
	if err := store.LoadTarget(ctx, s.db, scope, &order, id, "production order"); err != nil {
		return nil, err
	}
	if !OrderMachine.Valid(to) {
		return nil, apperr.Validation("unknown order status %q", to)
	}
	from := order.OrderStatus
	if err := OrderMachine.Check(from, to); err != nil {
		return nil, err
	}

	now := s.now()
	patch := map[string]interface{}{"order_status": to}
	switch to {
	case model.OrderInProgress:
		patch["started_at"] = now
	case model.OrderCompleted:
		patch["finished_at"] = now
		patch["progress"] = 100
	case model.OrderCancelled:
		patch["finished_at"] = now
	}
	if progress != nil && to != model.OrderCompleted {
		if err := checkProgress(*progress); err != nil {
			return nil, err
		}
		patch["progress"] = *progress
	}

	event := transitionEvent(model.EventOrderTransitioned, entityOrder, order.CompanyID, order.ID, string(from), string(to),
		model.JSONB{"code": order.Code})
	unit := store.Unit{Name: "workflow.transition_order", Entity: entityOrder, ID: order.ID, CompanyID: order.CompanyID}
	if err := s.db.Run(ctx, unit,
		s.updateStep("update order", &model.ProductionOrder{}, store.ByID(scope, id), s.stamp(patch, scope.ActorID())),
		recordStep(event),
	); err != nil {
		return nil, err
	}
	s.published(ctx, event)

	return s.GetOrder(ctx, scope, id)
}
