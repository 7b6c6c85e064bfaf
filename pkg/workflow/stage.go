package workflow

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/metrics"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/sequence"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
)

type StageInput struct {
	ProductionOrderID uuid.UUID `json:"production_order_id" binding:"required"`
	// SequenceNumber is assigned after the order's last stage when omitted.
	SequenceNumber       *int   `json:"sequence_number"`
	Name                 string `json:"name" binding:"required"`
	Description          string `json:"description"`
	QualityCheckRequired bool   `json:"quality_check_required"`
}

type StagePatch struct {
	Name                 *string `json:"name"`
	Description          *string `json:"description"`
	QualityCheckRequired *bool   `json:"quality_check_required"`
}

type ResourceInput struct {
	ResourceType string `json:"resource_type" binding:"required"`
	ResourceName string `json:"resource_name" binding:"required"`
	Notes        string `json:"notes"`
}

// openOrder loads a live order that can still take stage changes.
func (s *Service) openOrder(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*model.ProductionOrder, error) {
	var order model.ProductionOrder
	if err := store.LoadOwner(ctx, s.db, scope, &order, id, "production order"); err != nil {
		return nil, err
	}
	if order.OrderStatus.Terminal() {
		metrics.RejectedTransitionsTotal.WithLabelValues(entityStage, "order_terminal").Inc()
		return nil, apperr.Precondition("production order is %s", order.OrderStatus)
	}
	return &order, nil
}

func (s *Service) CreateStage(ctx context.Context, scope tenant.Scope, in StageInput) (*model.ProductionStage, error) {
	if strings.TrimSpace(in.Name) == "" {
		return nil, apperr.Validation("name is required")
	}
	order, err := s.openOrder(ctx, scope, in.ProductionOrderID)
	if err != nil {
		return nil, err
	}

	var number int
	if in.SequenceNumber != nil {
		number = *in.SequenceNumber
		if number <= 0 {
			return nil, apperr.Validation("sequence_number must be a positive integer")
		}
		taken, err := s.seq.Taken(ctx, scope, sequence.ProductionStages, order.ID, number)
		if err != nil {
			return nil, err
		}
		if taken {
			metrics.ConflictsTotal.WithLabelValues("uniqueness", model.TableProductionStages).Inc()
			return nil, apperr.Conflict("sequence number %d is already used in this production order", number)
		}
	} else {
		number, err = s.seq.Next(ctx, scope, sequence.ProductionStages, order.ID)
		if err != nil {
			return nil, err
		}
	}

	stage := &model.ProductionStage{
		Base:                 model.NewBase(order.CompanyID, scope.ActorID()),
		ProductionOrderID:    order.ID,
		SequenceNumber:       number,
		Name:                 in.Name,
		Description:          in.Description,
		StageStatus:          model.StagePending,
		QualityCheckRequired: in.QualityCheckRequired,
	}
	if err := s.db.Insert(ctx, stage); err != nil {
		return nil, err
	}
	return stage, nil
}

func (s *Service) GetStage(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.ProductionStage, error) {
	var stage model.ProductionStage
	q := store.ReadQuery(scope, id, opts...)
	q.Preload = []string{"Resources"}
	if err := store.Lookup(s.db.FindOne(ctx, &stage, q), "production stage"); err != nil {
		return nil, err
	}
	return &stage, nil
}

func (s *Service) ListStages(ctx context.Context, scope tenant.Scope, orderID uuid.UUID, opts store.ListOptions) ([]model.ProductionStage, error) {
	var stages []model.ProductionStage
	q := opts.Query(scope, "sequence_number ASC", store.Eq("production_order_id", orderID))
	if err := s.db.Find(ctx, &stages, q); err != nil {
		return nil, err
	}
	return stages, nil
}

// UpdateStage changes descriptive fields of a stage that has not finished.
// The quality requirement is fixed once the stage has started.
func (s *Service) UpdateStage(ctx context.Context, scope tenant.Scope, id uuid.UUID, p StagePatch) (*model.ProductionStage, error) {
	var stage model.ProductionStage
	if err := store.LoadTarget(ctx, s.db, scope, &stage, id, "production stage"); err != nil {
		return nil, err
	}
	if stage.StageStatus.Terminal() {
		return nil, apperr.Precondition("production stage is %s and can no longer be changed", stage.StageStatus)
	}
	if _, err := s.openOrder(ctx, scope, stage.ProductionOrderID); err != nil {
		return nil, err
	}

	patch := map[string]interface{}{}
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return nil, apperr.Validation("name must not be empty")
		}
		patch["name"] = *p.Name
	}
	if p.Description != nil {
		patch["description"] = *p.Description
	}
	if p.QualityCheckRequired != nil && *p.QualityCheckRequired != stage.QualityCheckRequired {
		if stage.StageStatus != model.StagePending {
			return nil, apperr.Precondition("quality_check_required can only change while the stage is pending")
		}
		patch["quality_check_required"] = *p.QualityCheckRequired
	}
	if len(patch) > 0 {
		if _, err := s.db.Update(ctx, &model.ProductionStage{}, store.ByID(scope, id), s.stamp(patch, scope.ActorID())); err != nil {
			return nil, err
		}
	}
	return s.GetStage(ctx, scope, id)
}

// TransitionStage advances a stage. Completing a stage that requires a
// quality check needs an approving check first.
func (s *Service) TransitionStage(ctx context.Context, scope tenant.Scope, id uuid.UUID, to model.StageStatus) (*model.ProductionStage, error) {
	var stage model.ProductionStage
	if err := store.LoadTarget(ctx, s.db, scope, &stage, id, "production stage"); err != nil {
		return nil, err
	}
	if !StageMachine.Valid(to) {
		return nil, apperr.Validation("unknown stage status %q", to)
	}
	if _, err := s.openOrder(ctx, scope, stage.ProductionOrderID); err != nil {
		return nil, err
	}
	from := stage.StageStatus
	if err := StageMachine.Check(from, to); err != nil {
		return nil, err
	}
	if to == model.StageCompleted && stage.QualityCheckRequired && !stage.QualityApproved {
		metrics.RejectedTransitionsTotal.WithLabelValues(entityStage, "quality_gate").Inc()
		return nil, apperr.Precondition("quality check must pass before the stage can be completed")
	}

	patch := map[string]interface{}{"stage_status": to}
	switch to {
	case model.StageInProgress:
		patch["started_at"] = s.now()
	case model.StageCompleted, model.StageCancelled:
		patch["completed_at"] = s.now()
	}

	event := transitionEvent(model.EventStageTransitioned, entityStage, stage.CompanyID, stage.ID, string(from), string(to),
		model.JSONB{"production_order_id": stage.ProductionOrderID.String(), "sequence_number": stage.SequenceNumber})
	unit := store.Unit{Name: "workflow.transition_stage", Entity: entityStage, ID: stage.ID, CompanyID: stage.CompanyID}
	if err := s.db.Run(ctx, unit,
		s.updateStep("update stage", &model.ProductionStage{}, store.ByID(scope, id), s.stamp(patch, scope.ActorID())),
		recordStep(event),
	); err != nil {
		return nil, err
	}
	s.published(ctx, event)

	return s.GetStage(ctx, scope, id)
}

func (s *Service) AddStageResource(ctx context.Context, scope tenant.Scope, stageID uuid.UUID, in ResourceInput) (*model.StageResource, error) {
	if strings.TrimSpace(in.ResourceType) == "" || strings.TrimSpace(in.ResourceName) == "" {
		return nil, apperr.Validation("resource_type and resource_name are required")
	}
	var stage model.ProductionStage
	if err := store.LoadOwner(ctx, s.db, scope, &stage, stageID, "production stage"); err != nil {
		return nil, err
	}
	if stage.StageStatus.Terminal() {
		return nil, apperr.Precondition("production stage is %s", stage.StageStatus)
	}

	res := &model.StageResource{
		Base:              model.NewBase(stage.CompanyID, scope.ActorID()),
		ProductionStageID: stage.ID,
		ResourceType:      in.ResourceType,
		ResourceName:      in.ResourceName,
		Notes:             in.Notes,
	}
	if err := s.db.Insert(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) RemoveStageResource(ctx context.Context, scope tenant.Scope, stageID, resourceID uuid.UUID) error {
	var res model.StageResource
	if err := store.Get(ctx, s.db, scope, &res, resourceID, "stage resource"); err != nil {
		return err
	}
	if res.ProductionStageID != stageID {
		return apperr.NotFound("stage resource")
	}
	_, err := s.deleter.Delete(ctx, scope, softdelete.KindStageResource, resourceID)
	return err
}
