package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/metrics"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
)

type QualityItemInput struct {
	// ID selects an existing item to update. Items without one are added.
	ID            *uuid.UUID `json:"id"`
	Parameter     string     `json:"parameter" binding:"required"`
	ExpectedValue string     `json:"expected_value"`
	ActualValue   string     `json:"actual_value"`
	Unit          string     `json:"unit"`
	Passed        bool       `json:"passed"`
}

type QualityCheckInput struct {
	ProductionStageID uuid.UUID          `json:"production_stage_id" binding:"required"`
	Passed            bool               `json:"passed"`
	Notes             string             `json:"notes"`
	CheckDate         *time.Time         `json:"check_date"`
	Items             []QualityItemInput `json:"items"`
}

func validateItems(items []QualityItemInput) error {
	for i, it := range items {
		if strings.TrimSpace(it.Parameter) == "" {
			return apperr.Validation("items[%d].parameter is required", i)
		}
	}
	return nil
}

// CreateQualityCheck records a check against a stage that requires one and is
// in progress. The stage's approval is set to the check's result.
func (s *Service) CreateQualityCheck(ctx context.Context, scope tenant.Scope, in QualityCheckInput) (*model.QualityCheck, error) {
	if err := validateItems(in.Items); err != nil {
		return nil, err
	}

	var stage model.ProductionStage
	if err := store.Get(ctx, s.db, scope, &stage, in.ProductionStageID, "production stage"); err != nil {
		return nil, err
	}
	if !stage.Status {
		return nil, apperr.Precondition("production stage is inactive")
	}
	if !stage.QualityCheckRequired {
		metrics.RejectedTransitionsTotal.WithLabelValues(entityCheck, "not_required").Inc()
		return nil, apperr.Precondition("quality check is not required for this stage")
	}
	if stage.StageStatus != model.StageInProgress {
		metrics.RejectedTransitionsTotal.WithLabelValues(entityCheck, "stage_not_in_progress").Inc()
		return nil, apperr.Precondition("stage must be in progress")
	}
	if err := scope.AuthorizeWrite(stage.CompanyID); err != nil {
		return nil, err
	}

	checkDate := s.now()
	if in.CheckDate != nil {
		checkDate = *in.CheckDate
	}
	check := &model.QualityCheck{
		Base:              model.NewBase(stage.CompanyID, scope.ActorID()),
		ProductionStageID: stage.ID,
		Passed:            in.Passed,
		Notes:             in.Notes,
		CheckDate:         checkDate,
		CheckedBy:         scope.ActorID(),
	}
	for _, it := range in.Items {
		check.Items = append(check.Items, model.QualityCheckItem{
			Base:           model.NewBase(stage.CompanyID, scope.ActorID()),
			QualityCheckID: check.ID,
			Parameter:      it.Parameter,
			ExpectedValue:  it.ExpectedValue,
			ActualValue:    it.ActualValue,
			Unit:           it.Unit,
			Passed:         it.Passed,
		})
	}

	event := model.NewProductionEvent(stage.CompanyID, model.EventQualityRecorded, entityCheck, check.ID, model.JSONB{
		"production_stage_id": stage.ID.String(),
		"passed":              check.Passed,
	})
	unit := store.Unit{Name: "workflow.create_quality_check", Entity: entityCheck, ID: check.ID, CompanyID: stage.CompanyID}
	if err := s.db.Run(ctx, unit,
		store.Step{
			Name: "insert quality check",
			Do: func(ctx context.Context, st store.Store) error {
				return st.Insert(ctx, check)
			},
		},
		s.approveStep(scope, stage.ID, check.Passed),
		recordStep(event),
	); err != nil {
		return nil, err
	}
	s.published(ctx, event)

	return check, nil
}

// approveStep writes a check result through to the stage. Only check writes
// and DeleteQualityCheck change quality_approved.
func (s *Service) approveStep(scope tenant.Scope, stageID uuid.UUID, passed bool) store.Step {
	patch := s.stamp(map[string]interface{}{"quality_approved": passed}, scope.ActorID())
	return s.updateStep("update stage approval", &model.ProductionStage{}, store.ByID(scope, stageID), patch)
}

// DeleteQualityCheck soft-deletes a check and sets the stage's approval from
// its latest remaining live check. Stages in a terminal state keep their
// approval.
func (s *Service) DeleteQualityCheck(ctx context.Context, scope tenant.Scope, id uuid.UUID) (*softdelete.Result, error) {
	var check model.QualityCheck
	if err := store.LoadTarget(ctx, s.db, scope, &check, id, "quality check"); err != nil {
		return nil, err
	}
	res, err := s.deleter.Delete(ctx, scope, softdelete.KindQualityCheck, id)
	if err != nil {
		return nil, err
	}

	var stage model.ProductionStage
	if err := store.Get(ctx, s.db, scope, &stage, check.ProductionStageID, "production stage"); err != nil {
		return nil, apperr.Partial("workflow.delete_quality_check", "load stage", err)
	}
	if stage.StageStatus.Terminal() {
		return res, nil
	}
	remaining, err := s.ListQualityChecks(ctx, scope, stage.ID, store.ListOptions{Limit: 1})
	if err != nil {
		return nil, apperr.Partial("workflow.delete_quality_check", "load remaining checks", err)
	}
	passed := stage.QualityCheckRequired && len(remaining) > 0 && remaining[0].Passed
	if passed == stage.QualityApproved {
		return res, nil
	}
	patch := s.stamp(map[string]interface{}{"quality_approved": passed}, scope.ActorID())
	if _, err := s.db.Update(ctx, &model.ProductionStage{}, store.ByID(scope, stage.ID), patch); err != nil {
		return nil, apperr.Partial("workflow.delete_quality_check", "update stage approval", err)
	}
	return res, nil
}

func (s *Service) GetQualityCheck(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.QualityCheck, error) {
	var check model.QualityCheck
	q := store.ReadQuery(scope, id, opts...)
	q.Preload = []string{"Items"}
	if err := store.Lookup(s.db.FindOne(ctx, &check, q), "quality check"); err != nil {
		return nil, err
	}
	return &check, nil
}

func (s *Service) ListQualityChecks(ctx context.Context, scope tenant.Scope, stageID uuid.UUID, opts store.ListOptions) ([]model.QualityCheck, error) {
	var checks []model.QualityCheck
	q := opts.Query(scope, "check_date DESC, created_at DESC", store.Eq("production_stage_id", stageID))
	q.Preload = []string{"Items"}
	if err := s.db.Find(ctx, &checks, q); err != nil {
		return nil, err
	}
	return checks, nil
}

// UpdateQualityCheckItems saves the given items and recomputes the check as
// the conjunction of all its live items, then carries the result to the
// stage the same way creation does.
func (s *Service) UpdateQualityCheckItems(ctx context.Context, scope tenant.Scope, checkID uuid.UUID, items []QualityItemInput) (*model.QualityCheck, error) {
	if err := validateItems(items); err != nil {
		return nil, err
	}

	var check model.QualityCheck
	if err := store.LoadTarget(ctx, s.db, scope, &check, checkID, "quality check"); err != nil {
		return nil, err
	}

	var existing []model.QualityCheckItem
	if err := s.db.Find(ctx, &existing, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.Eq("quality_check_id", check.ID)},
	}); err != nil {
		return nil, err
	}

	merged := make(map[uuid.UUID]bool, len(existing)+len(items))
	known := make(map[uuid.UUID]bool, len(existing))
	for _, it := range existing {
		merged[it.ID] = it.Passed
		known[it.ID] = true
	}

	var steps []store.Step
	for i, it := range items {
		it := it
		if it.ID != nil {
			if !known[*it.ID] {
				return nil, apperr.NotFound("quality check item")
			}
			merged[*it.ID] = it.Passed
			patch := s.stamp(map[string]interface{}{
				"parameter":      it.Parameter,
				"expected_value": it.ExpectedValue,
				"actual_value":   it.ActualValue,
				"unit":           it.Unit,
				"passed":         it.Passed,
			}, scope.ActorID())
			steps = append(steps, s.updateStep(fmt.Sprintf("update item %d", i), &model.QualityCheckItem{}, store.ByID(scope, *it.ID), patch))
			continue
		}

		row := &model.QualityCheckItem{
			Base:           model.NewBase(check.CompanyID, scope.ActorID()),
			QualityCheckID: check.ID,
			Parameter:      it.Parameter,
			ExpectedValue:  it.ExpectedValue,
			ActualValue:    it.ActualValue,
			Unit:           it.Unit,
			Passed:         it.Passed,
		}
		merged[row.ID] = it.Passed
		steps = append(steps, store.Step{
			Name: fmt.Sprintf("insert item %d", i),
			Do: func(ctx context.Context, st store.Store) error {
				return st.Insert(ctx, row)
			},
		})
	}

	passed := true
	for _, p := range merged {
		passed = passed && p
	}

	event := model.NewProductionEvent(check.CompanyID, model.EventQualityRecorded, entityCheck, check.ID, model.JSONB{
		"production_stage_id": check.ProductionStageID.String(),
		"passed":              passed,
		"recomputed":          true,
	})
	steps = append(steps,
		s.updateStep("update quality check", &model.QualityCheck{}, store.ByID(scope, check.ID),
			s.stamp(map[string]interface{}{"passed": passed}, scope.ActorID())),
		s.approveStep(scope, check.ProductionStageID, passed),
		recordStep(event),
	)

	unit := store.Unit{Name: "workflow.update_quality_check_items", Entity: entityCheck, ID: check.ID, CompanyID: check.CompanyID}
	if err := s.db.Run(ctx, unit, steps...); err != nil {
		return nil, err
	}
	s.published(ctx, event)

	return s.GetQualityCheck(ctx, scope, check.ID)
}
