package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
	"github.com/prodflow/prodflow/pkg/uniqueness"
)

type PlanInput struct {
	CompanyID *uuid.UUID `json:"company_id"`
	Code      string     `json:"code" binding:"required"`
	Name      string     `json:"name" binding:"required"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Priority  int        `json:"priority"`
	Notes     string     `json:"notes"`
}

type PlanPatch struct {
	Code      *string    `json:"code"`
	Name      *string    `json:"name"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Priority  *int       `json:"priority"`
	Notes     *string    `json:"notes"`
}

func checkDates(start, end *time.Time) error {
	if start != nil && end != nil && end.Before(*start) {
		return apperr.Validation("end_date must not be before start_date")
	}
	return nil
}

func (s *Service) CreatePlan(ctx context.Context, scope tenant.Scope, in PlanInput) (*model.ProductionPlan, error) {
	in.Code = strings.TrimSpace(in.Code)
	if in.Code == "" || strings.TrimSpace(in.Name) == "" {
		return nil, apperr.Validation("code and name are required")
	}
	if err := checkDates(in.StartDate, in.EndDate); err != nil {
		return nil, err
	}
	companyID, err := scope.CompanyForCreate(in.CompanyID)
	if err != nil {
		return nil, err
	}
	if err := s.unique.Ensure(ctx, scope, uniqueness.Code(model.TableProductionPlans, "production plan code", in.Code, companyID)); err != nil {
		return nil, err
	}

	plan := &model.ProductionPlan{
		Base:       model.NewBase(companyID, scope.ActorID()),
		Code:       in.Code,
		Name:       in.Name,
		StartDate:  in.StartDate,
		EndDate:    in.EndDate,
		PlanStatus: model.PlanDraft,
		Priority:   in.Priority,
		Notes:      in.Notes,
	}
	if err := s.db.Insert(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

func (s *Service) GetPlan(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.ProductionPlan, error) {
	var plan model.ProductionPlan
	if err := store.Read(ctx, s.db, scope, &plan, id, "production plan", opts...); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (s *Service) ListPlans(ctx context.Context, scope tenant.Scope, status model.PlanStatus, opts store.ListOptions) ([]model.ProductionPlan, error) {
	var conds []store.Cond
	if status != "" {
		conds = append(conds, store.Eq("plan_status", status))
	}
	var plans []model.ProductionPlan
	if err := s.db.Find(ctx, &plans, opts.Query(scope, "priority DESC, created_at ASC", conds...)); err != nil {
		return nil, err
	}
	return plans, nil
}

func (s *Service) UpdatePlan(ctx context.Context, scope tenant.Scope, id uuid.UUID, p PlanPatch) (*model.ProductionPlan, error) {
	var plan model.ProductionPlan
	if err := store.LoadTarget(ctx, s.db, scope, &plan, id, "production plan"); err != nil {
		return nil, err
	}
	if plan.PlanStatus.Terminal() {
		return nil, apperr.Precondition("production plan is %s and can no longer be changed", plan.PlanStatus)
	}

	patch := map[string]interface{}{}
	if p.Code != nil {
		code := strings.TrimSpace(*p.Code)
		if code == "" {
			return nil, apperr.Validation("code must not be empty")
		}
		rule := uniqueness.Code(model.TableProductionPlans, "production plan code", code, plan.CompanyID).Excluding(plan.ID)
		if err := s.unique.Ensure(ctx, scope, rule); err != nil {
			return nil, err
		}
		patch["code"] = code
	}
	if p.Name != nil {
		patch["name"] = *p.Name
	}
	start, end := plan.StartDate, plan.EndDate
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
	if p.Priority != nil {
		patch["priority"] = *p.Priority
	}
	if p.Notes != nil {
		patch["notes"] = *p.Notes
	}
	if len(patch) == 0 {
		return &plan, nil
	}

	if _, err := s.db.Update(ctx, &model.ProductionPlan{}, store.ByID(scope, id), s.stamp(patch, scope.ActorID())); err != nil {
		return nil, err
	}
	return s.GetPlan(ctx, scope, id)
}

func (s *Service) TransitionPlan(ctx context.Context, scope tenant.Scope, id uuid.UUID, to model.PlanStatus) (*model.ProductionPlan, error) {
	var plan model.ProductionPlan
	if err := store.LoadTarget(ctx, s.db, scope, &plan, id, "production plan"); err != nil {
		return nil, err
	}
	if !PlanMachine.Valid(to) {
		return nil, apperr.Validation("unknown plan status %q", to)
	}
	from := plan.PlanStatus
	if err := PlanMachine.Check(from, to); err != nil {
		return nil, err
	}

	event := transitionEvent(model.EventPlanTransitioned, entityPlan, plan.CompanyID, plan.ID, string(from), string(to), nil)
	patch := s.stamp(map[string]interface{}{"plan_status": to}, scope.ActorID())
	unit := store.Unit{Name: "workflow.transition_plan", Entity: entityPlan, ID: plan.ID, CompanyID: plan.CompanyID}
	if err := s.db.Run(ctx, unit,
		s.updateStep("update plan", &model.ProductionPlan{}, store.ByID(scope, id), patch),
		recordStep(event),
	); err != nil {
		return nil, err
	}
	s.published(ctx, event)

	return s.GetPlan(ctx, scope, id)
}
