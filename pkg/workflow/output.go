package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/tenant"
	"github.com/prodflow/prodflow/pkg/uniqueness"
)

type OutputInput struct {
	ProductionOrderID uuid.UUID       `json:"production_order_id" binding:"required"`
	Quantity          decimal.Decimal `json:"quantity"`
	Unit              string          `json:"unit" binding:"required"`
	WarehouseID       *uuid.UUID      `json:"warehouse_id"`
	OutputDate        *time.Time      `json:"output_date"`
	QualityStatus     string          `json:"quality_status"`
	LotNumbers        []string        `json:"lot_numbers"`
	Notes             string          `json:"notes"`
}

const QualityStatusPending = "pending"

func (s *Service) CreateOutput(ctx context.Context, scope tenant.Scope, in OutputInput) (*model.ProductionOutput, error) {
	if !in.Quantity.IsPositive() {
		return nil, apperr.Validation("quantity must be greater than zero")
	}
	if strings.TrimSpace(in.Unit) == "" {
		return nil, apperr.Validation("unit is required")
	}

	var order model.ProductionOrder
	if err := store.LoadOwner(ctx, s.db, scope, &order, in.ProductionOrderID, "production order"); err != nil {
		return nil, err
	}
	if order.OrderStatus == model.OrderCancelled {
		return nil, apperr.Precondition("cannot record output for a cancelled production order")
	}
	if in.WarehouseID != nil {
		var wh model.Warehouse
		if err := store.LoadParent(ctx, s.db, scope, &wh, *in.WarehouseID, "warehouse", order.CompanyID); err != nil {
			return nil, err
		}
	}

	outputDate := s.now()
	if in.OutputDate != nil {
		outputDate = *in.OutputDate
	}
	status := strings.TrimSpace(in.QualityStatus)
	if status == "" {
		status = QualityStatusPending
	}

	output := &model.ProductionOutput{
		Base:              model.NewBase(order.CompanyID, scope.ActorID()),
		ProductionOrderID: order.ID,
		Quantity:          in.Quantity,
		Unit:              in.Unit,
		WarehouseID:       in.WarehouseID,
		OutputDate:        outputDate,
		QualityStatus:     status,
		LotNumbers:        model.StringList(in.LotNumbers),
		Notes:             in.Notes,
	}

	event := model.NewProductionEvent(order.CompanyID, model.EventOutputRecorded, entityOutput, output.ID, model.JSONB{
		"production_order_id": order.ID.String(),
		"quantity":            output.Quantity.String(),
		"unit":                output.Unit,
	})
	unit := store.Unit{Name: "workflow.create_output", Entity: entityOutput, ID: output.ID, CompanyID: order.CompanyID}
	if err := s.db.Run(ctx, unit,
		store.Step{
			Name: "insert output",
			Do: func(ctx context.Context, st store.Store) error {
				return st.Insert(ctx, output)
			},
		},
		recordStep(event),
	); err != nil {
		return nil, err
	}
	s.published(ctx, event)

	return output, nil
}

func (s *Service) GetOutput(ctx context.Context, scope tenant.Scope, id uuid.UUID, opts ...store.ReadOptions) (*model.ProductionOutput, error) {
	var output model.ProductionOutput
	if err := store.Read(ctx, s.db, scope, &output, id, "production output", opts...); err != nil {
		return nil, err
	}
	return &output, nil
}

func (s *Service) ListOutputs(ctx context.Context, scope tenant.Scope, orderID uuid.UUID, opts store.ListOptions) ([]model.ProductionOutput, error) {
	var outputs []model.ProductionOutput
	q := opts.Query(scope, "output_date DESC", store.Eq("production_order_id", orderID))
	if err := s.db.Find(ctx, &outputs, q); err != nil {
		return nil, err
	}
	return outputs, nil
}

// UpdateQualityStatus sets the descriptive quality label of an output. It
// gates nothing.
func (s *Service) UpdateQualityStatus(ctx context.Context, scope tenant.Scope, id uuid.UUID, status string) (*model.ProductionOutput, error) {
	status = strings.TrimSpace(status)
	if status == "" || len(status) > 50 {
		return nil, apperr.Validation("quality_status must be between 1 and 50 characters")
	}
	var output model.ProductionOutput
	if err := store.LoadTarget(ctx, s.db, scope, &output, id, "production output"); err != nil {
		return nil, err
	}
	patch := s.stamp(map[string]interface{}{"quality_status": status}, scope.ActorID())
	if _, err := s.db.Update(ctx, &model.ProductionOutput{}, store.ByID(scope, id), patch); err != nil {
		return nil, err
	}
	return s.GetOutput(ctx, scope, id)
}

// LinkQualityCheck attaches a check taken on one of the output's order stages.
func (s *Service) LinkQualityCheck(ctx context.Context, scope tenant.Scope, outputID, checkID uuid.UUID) (*model.OutputQualityCheck, error) {
	var output model.ProductionOutput
	if err := store.LoadOwner(ctx, s.db, scope, &output, outputID, "production output"); err != nil {
		return nil, err
	}
	var check model.QualityCheck
	if err := store.LoadParent(ctx, s.db, scope, &check, checkID, "quality check", output.CompanyID); err != nil {
		return nil, err
	}
	var stage model.ProductionStage
	if err := store.Get(ctx, s.db, scope, &stage, check.ProductionStageID, "production stage"); err != nil {
		return nil, err
	}
	if stage.ProductionOrderID != output.ProductionOrderID {
		return nil, apperr.Precondition("quality check does not belong to this production order")
	}

	rule := uniqueness.Rule{
		Table:     model.TableOutputQualityChecks,
		Label:     "output quality check",
		Fields:    []uniqueness.Field{{Column: "production_output_id", Value: output.ID}, {Column: "quality_check_id", Value: check.ID}},
		CompanyID: output.CompanyID,
		Message:   "quality check is already linked to this output",
	}
	if err := s.unique.Ensure(ctx, scope, rule); err != nil {
		return nil, err
	}

	link := &model.OutputQualityCheck{
		Base:               model.NewBase(output.CompanyID, scope.ActorID()),
		ProductionOutputID: output.ID,
		QualityCheckID:     check.ID,
	}
	if err := s.db.Insert(ctx, link); err != nil {
		return nil, err
	}
	return link, nil
}

func (s *Service) UnlinkQualityCheck(ctx context.Context, scope tenant.Scope, outputID, checkID uuid.UUID) error {
	var link model.OutputQualityCheck
	err := s.db.FindOne(ctx, &link, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where: []store.Cond{
			store.Eq("production_output_id", outputID),
			store.Eq("quality_check_id", checkID),
		},
	})
	if err := store.Lookup(err, "output quality check"); err != nil {
		return err
	}
	_, err = s.deleter.Delete(ctx, scope, softdelete.KindOutputQualityCheck, link.ID)
	return err
}

func (s *Service) ListOutputQualityChecks(ctx context.Context, scope tenant.Scope, outputID uuid.UUID) ([]model.QualityCheck, error) {
	var links []model.OutputQualityCheck
	if err := s.db.Find(ctx, &links, store.Query{
		Scope:    scope,
		LiveOnly: true,
		Where:    []store.Cond{store.Eq("production_output_id", outputID)},
	}); err != nil {
		return nil, err
	}
	if len(links) == 0 {
		return []model.QualityCheck{}, nil
	}
	ids := make([]uuid.UUID, 0, len(links))
	for _, l := range links {
		ids = append(ids, l.QualityCheckID)
	}
	var checks []model.QualityCheck
	q := store.Query{Scope: scope, Where: []store.Cond{store.In("id", ids)}, Preload: []string{"Items"}, Order: "check_date DESC"}
	if err := s.db.Find(ctx, &checks, q); err != nil {
		return nil, err
	}
	return checks, nil
}
