package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/prodflow/prodflow/pkg/apperr"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/softdelete"
	"github.com/prodflow/prodflow/pkg/store"
	"github.com/prodflow/prodflow/pkg/store/postgres"
	"github.com/prodflow/prodflow/pkg/store/storetest"
	"github.com/prodflow/prodflow/pkg/tenant"
)

type recorder struct {
	events []*model.ProductionEvent
	fail   bool
}

func (r *recorder) PublishProductionEvent(_ context.Context, e *model.ProductionEvent) error {
	if r.fail {
		return errors.New("redis down")
	}
	r.events = append(r.events, e)
	return nil
}

type env struct {
	ctx       context.Context
	db        *postgres.Store
	svc       *Service
	published *recorder
	company   uuid.UUID
	scope     tenant.Scope
	product   *model.Product
	recipe    *model.Recipe
}

func newEnv(t *testing.T) *env {
	t.Helper()
	db := storetest.New(t)
	logger := zaptest.NewLogger(t)
	rec := &recorder{}
	company := uuid.New()
	e := &env{
		ctx:       context.Background(),
		db:        db,
		svc:       NewService(db, softdelete.NewCoordinator(db, nil, logger), rec, logger),
		published: rec,
		company:   company,
		scope:     tenant.For(tenant.Actor{ID: "op-1", CompanyID: company, Roles: []tenant.Role{tenant.RoleUser}}),
	}
	e.product = &model.Product{Base: model.NewBase(company, "seed"), Code: "P-1", Name: "Bread", Unit: "pcs"}
	e.recipe = &model.Recipe{Base: model.NewBase(company, "seed"), Code: "R-1", Name: "Bread", ProductID: &e.product.ID, Unit: "pcs"}
	require.NoError(t, db.Insert(e.ctx, e.product))
	require.NoError(t, db.Insert(e.ctx, e.recipe))
	return e
}

func (e *env) order(t *testing.T, code string) *model.ProductionOrder {
	t.Helper()
	o, err := e.svc.CreateOrder(e.ctx, e.scope, OrderInput{
		Code:      code,
		ProductID: &e.product.ID,
		RecipeID:  e.recipe.ID,
		Quantity:  decimal.NewFromInt(100),
	})
	require.NoError(t, err)
	return o
}

func (e *env) stage(t *testing.T, order uuid.UUID, name string, required bool) *model.ProductionStage {
	t.Helper()
	s, err := e.svc.CreateStage(e.ctx, e.scope, StageInput{ProductionOrderID: order, Name: name, QualityCheckRequired: required})
	require.NoError(t, err)
	return s
}

func kind(err error) apperr.Kind { return apperr.KindOf(err) }

func TestQualityGatedStageScenario(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	s := e.stage(t, o.ID, "Bake", true)
	assert.Equal(t, model.StagePending, s.StageStatus)

	_, err := e.svc.CreateQualityCheck(e.ctx, e.scope, QualityCheckInput{ProductionStageID: s.ID, Passed: true})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPrecondition, kind(err))
	assert.Contains(t, apperr.Message(err), "must be in progress")

	_, err = e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageInProgress)
	require.NoError(t, err)

	_, err = e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageCompleted)
	assert.Equal(t, apperr.KindPrecondition, kind(err), "unapproved stage cannot complete")

	check, err := e.svc.CreateQualityCheck(e.ctx, e.scope, QualityCheckInput{
		ProductionStageID: s.ID,
		Passed:            true,
		Items:             []QualityItemInput{{Parameter: "crust color", ExpectedValue: "golden", ActualValue: "golden", Passed: true}},
	})
	require.NoError(t, err)
	assert.True(t, check.Passed)

	got, err := e.svc.GetStage(e.ctx, e.scope, s.ID)
	require.NoError(t, err)
	assert.True(t, got.QualityApproved)

	done, err := e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageCompleted)
	require.NoError(t, err)
	assert.Equal(t, model.StageCompleted, done.StageStatus)
	assert.NotNil(t, done.CompletedAt)
}

func TestQualityCheckNotRequiredAlwaysFails(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	s := e.stage(t, o.ID, "Pack", false)

	for _, to := range []model.StageStatus{"", model.StageInProgress} {
		if to != "" {
			_, err := e.svc.TransitionStage(e.ctx, e.scope, s.ID, to)
			require.NoError(t, err)
		}
		_, err := e.svc.CreateQualityCheck(e.ctx, e.scope, QualityCheckInput{ProductionStageID: s.ID, Passed: true})
		assert.Equal(t, apperr.KindPrecondition, kind(err))
		assert.Equal(t, "quality check is not required for this stage", apperr.Message(err))
	}
}

func TestFailedCheckRevokesApproval(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	s := e.stage(t, o.ID, "Bake", true)
	_, err := e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageInProgress)
	require.NoError(t, err)

	_, err = e.svc.CreateQualityCheck(e.ctx, e.scope, QualityCheckInput{ProductionStageID: s.ID, Passed: true})
	require.NoError(t, err)
	failed, err := e.svc.CreateQualityCheck(e.ctx, e.scope, QualityCheckInput{ProductionStageID: s.ID, Passed: false})
	require.NoError(t, err)
	assert.False(t, failed.Passed)

	got, err := e.svc.GetStage(e.ctx, e.scope, s.ID)
	require.NoError(t, err)
	assert.False(t, got.QualityApproved)
}

func TestDeletingCheckRederivesApproval(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	s := e.stage(t, o.ID, "Bake", true)
	_, err := e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageInProgress)
	require.NoError(t, err)

	early := e.svc.now().Add(-time.Hour)
	failed, err := e.svc.CreateQualityCheck(e.ctx, e.scope, QualityCheckInput{ProductionStageID: s.ID, Passed: false, CheckDate: &early})
	require.NoError(t, err)
	passed, err := e.svc.CreateQualityCheck(e.ctx, e.scope, QualityCheckInput{ProductionStageID: s.ID, Passed: true})
	require.NoError(t, err)

	got, err := e.svc.GetStage(e.ctx, e.scope, s.ID)
	require.NoError(t, err)
	require.True(t, got.QualityApproved)

	res, err := e.svc.DeleteQualityCheck(e.ctx, e.scope, passed.ID)
	require.NoError(t, err)
	assert.Equal(t, "quality check deleted successfully", res.Message)

	got, err = e.svc.GetStage(e.ctx, e.scope, s.ID)
	require.NoError(t, err)
	assert.False(t, got.QualityApproved, "approval follows the remaining failed check")

	_, err = e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageCompleted)
	assert.Equal(t, apperr.KindPrecondition, kind(err))

	_, err = e.svc.DeleteQualityCheck(e.ctx, e.scope, failed.ID)
	require.NoError(t, err)
	got, err = e.svc.GetStage(e.ctx, e.scope, s.ID)
	require.NoError(t, err)
	assert.False(t, got.QualityApproved)

	_, err = e.svc.GetQualityCheck(e.ctx, e.scope, failed.ID)
	assert.Equal(t, apperr.KindNotFound, kind(err))
	_, err = e.svc.GetQualityCheck(e.ctx, e.scope, failed.ID, store.ReadOptions{IncludeInactive: true})
	assert.NoError(t, err)
}

func TestDeletingOnlyPassingCheckBlocksCompletion(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	s := e.stage(t, o.ID, "Bake", true)
	_, err := e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageInProgress)
	require.NoError(t, err)

	check, err := e.svc.CreateQualityCheck(e.ctx, e.scope, QualityCheckInput{ProductionStageID: s.ID, Passed: true})
	require.NoError(t, err)
	_, err = e.svc.DeleteQualityCheck(e.ctx, e.scope, check.ID)
	require.NoError(t, err)

	_, err = e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageCompleted)
	assert.Equal(t, apperr.KindPrecondition, kind(err))
}

func TestStageQualityRequirementFixedOnceStarted(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	s := e.stage(t, o.ID, "Bake", true)

	off := false
	pending, err := e.svc.UpdateStage(e.ctx, e.scope, s.ID, StagePatch{QualityCheckRequired: &off})
	require.NoError(t, err)
	assert.False(t, pending.QualityCheckRequired)

	on := true
	_, err = e.svc.UpdateStage(e.ctx, e.scope, s.ID, StagePatch{QualityCheckRequired: &on})
	require.NoError(t, err)

	_, err = e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageInProgress)
	require.NoError(t, err)

	_, err = e.svc.UpdateStage(e.ctx, e.scope, s.ID, StagePatch{QualityCheckRequired: &off})
	require.Error(t, err)
	assert.Equal(t, apperr.KindPrecondition, kind(err))

	got, err := e.svc.GetStage(e.ctx, e.scope, s.ID)
	require.NoError(t, err)
	assert.True(t, got.QualityCheckRequired)

	_, err = e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageCompleted)
	assert.Equal(t, apperr.KindPrecondition, kind(err), "the gate still applies")

	name := "Bake long"
	renamed, err := e.svc.UpdateStage(e.ctx, e.scope, s.ID, StagePatch{Name: &name, QualityCheckRequired: &on})
	require.NoError(t, err, "restating the current requirement is allowed")
	assert.Equal(t, "Bake long", renamed.Name)
}

func TestOrderDeleteBlockedByStages(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	s := e.stage(t, o.ID, "Bake", true)
	_, err := e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageInProgress)
	require.NoError(t, err)
	_, err = e.svc.CreateQualityCheck(e.ctx, e.scope, QualityCheckInput{ProductionStageID: s.ID, Passed: true})
	require.NoError(t, err)

	_, err = e.svc.deleter.Delete(e.ctx, e.scope, softdelete.KindProductionOrder, o.ID)
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, kind(err))
	assert.Equal(t, "Cannot delete production order: it has production stages", apperr.Message(err))

	got, err := e.svc.GetStage(e.ctx, e.scope, s.ID)
	require.NoError(t, err)
	assert.True(t, got.Status)
	checks, err := e.svc.ListQualityChecks(e.ctx, e.scope, s.ID, store.ListOptions{})
	require.NoError(t, err)
	assert.Len(t, checks, 1)

	empty := e.order(t, "PO-2")
	_, err = e.svc.deleter.Delete(e.ctx, e.scope, softdelete.KindProductionOrder, empty.ID)
	require.NoError(t, err)
	_, err = e.svc.GetOrder(e.ctx, e.scope, empty.ID)
	assert.Equal(t, apperr.KindNotFound, kind(err))
}

func TestQualityCheckOtherTenantIsNotFound(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	s := e.stage(t, o.ID, "Bake", true)

	other := tenant.For(tenant.Actor{ID: "x", CompanyID: uuid.New()})
	_, err := e.svc.CreateQualityCheck(e.ctx, other, QualityCheckInput{ProductionStageID: s.ID, Passed: true})
	assert.Equal(t, apperr.KindNotFound, kind(err))
}

func TestUpdateQualityCheckItemsRecomputes(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	s := e.stage(t, o.ID, "Bake", true)
	_, err := e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageInProgress)
	require.NoError(t, err)

	check, err := e.svc.CreateQualityCheck(e.ctx, e.scope, QualityCheckInput{
		ProductionStageID: s.ID,
		Passed:            true,
		Items: []QualityItemInput{
			{Parameter: "weight", Passed: true},
			{Parameter: "moisture", Passed: true},
		},
	})
	require.NoError(t, err)
	require.Len(t, check.Items, 2)

	moisture := check.Items[1].ID
	updated, err := e.svc.UpdateQualityCheckItems(e.ctx, e.scope, check.ID, []QualityItemInput{
		{ID: &moisture, Parameter: "moisture", ActualValue: "18%", Passed: false},
	})
	require.NoError(t, err)
	assert.False(t, updated.Passed)
	assert.Len(t, updated.Items, 2)

	stage, err := e.svc.GetStage(e.ctx, e.scope, s.ID)
	require.NoError(t, err)
	assert.False(t, stage.QualityApproved)

	updated, err = e.svc.UpdateQualityCheckItems(e.ctx, e.scope, check.ID, []QualityItemInput{
		{ID: &moisture, Parameter: "moisture", ActualValue: "12%", Passed: true},
		{Parameter: "color", Passed: true},
	})
	require.NoError(t, err)
	assert.True(t, updated.Passed)
	assert.Len(t, updated.Items, 3)

	stage, err = e.svc.GetStage(e.ctx, e.scope, s.ID)
	require.NoError(t, err)
	assert.True(t, stage.QualityApproved)

	missing := uuid.New()
	_, err = e.svc.UpdateQualityCheckItems(e.ctx, e.scope, check.ID, []QualityItemInput{{ID: &missing, Parameter: "x"}})
	assert.Equal(t, apperr.KindNotFound, kind(err))
}

func TestOrderTransitions(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	assert.Equal(t, model.OrderDraft, o.OrderStatus)

	_, err := e.svc.TransitionOrder(e.ctx, e.scope, o.ID, model.OrderCompleted, nil)
	require.Error(t, err)
	var appErr *apperr.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, apperr.KindInvalidState, appErr.Kind)
	assert.Equal(t, "draft", appErr.From)
	assert.Equal(t, "completed", appErr.To)

	progress := 30
	for _, to := range []model.OrderStatus{model.OrderPending, model.OrderInProgress} {
		o, err = e.svc.TransitionOrder(e.ctx, e.scope, o.ID, to, &progress)
		require.NoError(t, err)
	}
	assert.Equal(t, 30, o.Progress)
	assert.NotNil(t, o.StartedAt)

	o, err = e.svc.TransitionOrder(e.ctx, e.scope, o.ID, model.OrderCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, 100, o.Progress)

	_, err = e.svc.TransitionOrder(e.ctx, e.scope, o.ID, model.OrderCancelled, nil)
	assert.Equal(t, apperr.KindInvalidState, kind(err), "terminal orders stay put")

	_, err = e.svc.CreateStage(e.ctx, e.scope, StageInput{ProductionOrderID: o.ID, Name: "Late"})
	assert.Equal(t, apperr.KindPrecondition, kind(err))

	require.Len(t, e.published.events, 3)
	assert.Equal(t, model.EventOrderTransitioned, e.published.events[0].EventType)

	var outbox []model.ProductionEvent
	require.NoError(t, e.db.Find(e.ctx, &outbox, store.Query{Scope: e.scope, Where: []store.Cond{store.Eq("entity_id", o.ID)}}))
	assert.Len(t, outbox, 3)
}

func TestCancelledOrderFreezesStages(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	s := e.stage(t, o.ID, "Mix", false)

	_, err := e.svc.TransitionOrder(e.ctx, e.scope, o.ID, model.OrderCancelled, nil)
	require.NoError(t, err)

	_, err = e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageInProgress)
	assert.Equal(t, apperr.KindPrecondition, kind(err))

	_, err = e.svc.CreateOutput(e.ctx, e.scope, OutputInput{ProductionOrderID: o.ID, Quantity: decimal.NewFromInt(1), Unit: "pcs"})
	assert.Equal(t, apperr.KindPrecondition, kind(err))
}

func TestStageSequencing(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")

	first := e.stage(t, o.ID, "Mix", false)
	second := e.stage(t, o.ID, "Proof", false)
	assert.Equal(t, 10, first.SequenceNumber)
	assert.Equal(t, 20, second.SequenceNumber)

	fifteen := 15
	mid, err := e.svc.CreateStage(e.ctx, e.scope, StageInput{ProductionOrderID: o.ID, Name: "Rest", SequenceNumber: &fifteen})
	require.NoError(t, err)
	assert.Equal(t, 15, mid.SequenceNumber)

	_, err = e.svc.CreateStage(e.ctx, e.scope, StageInput{ProductionOrderID: o.ID, Name: "Dup", SequenceNumber: &fifteen})
	assert.Equal(t, apperr.KindConflict, kind(err))

	got, err := e.svc.GetOrder(e.ctx, e.scope, o.ID)
	require.NoError(t, err)
	require.Len(t, got.Stages, 3)
	assert.Equal(t, []int{10, 15, 20}, []int{got.Stages[0].SequenceNumber, got.Stages[1].SequenceNumber, got.Stages[2].SequenceNumber})
}

func TestCreateOrderValidation(t *testing.T) {
	e := newEnv(t)
	semi := &model.SemiProduct{Base: model.NewBase(e.company, "seed"), Code: "SP-1", Name: "Dough", Unit: "kg"}
	require.NoError(t, e.db.Insert(e.ctx, semi))

	_, err := e.svc.CreateOrder(e.ctx, e.scope, OrderInput{
		Code: "PO-X", ProductID: &e.product.ID, SemiProductID: &semi.ID, RecipeID: e.recipe.ID, Quantity: decimal.NewFromInt(1),
	})
	assert.Equal(t, apperr.KindValidation, kind(err), "both produced columns")

	_, err = e.svc.CreateOrder(e.ctx, e.scope, OrderInput{Code: "PO-X", RecipeID: e.recipe.ID, Quantity: decimal.NewFromInt(1)})
	assert.Equal(t, apperr.KindValidation, kind(err), "neither produced column")

	_, err = e.svc.CreateOrder(e.ctx, e.scope, OrderInput{
		Code: "PO-X", SemiProductID: &semi.ID, RecipeID: e.recipe.ID, Quantity: decimal.NewFromInt(1),
	})
	assert.Equal(t, apperr.KindPrecondition, kind(err), "recipe makes the product, not the semi-product")

	e.order(t, "PO-1")
	_, err = e.svc.CreateOrder(e.ctx, e.scope, OrderInput{
		Code: "PO-1", ProductID: &e.product.ID, RecipeID: e.recipe.ID, Quantity: decimal.NewFromInt(1),
	})
	assert.Equal(t, apperr.KindConflict, kind(err))
}

func TestPlanLifecycle(t *testing.T) {
	e := newEnv(t)
	plan, err := e.svc.CreatePlan(e.ctx, e.scope, PlanInput{Code: "PL-1", Name: "Week 1"})
	require.NoError(t, err)
	assert.Equal(t, model.PlanDraft, plan.PlanStatus)

	_, err = e.svc.TransitionPlan(e.ctx, e.scope, plan.ID, model.PlanCompleted)
	assert.Equal(t, apperr.KindInvalidState, kind(err))

	plan, err = e.svc.TransitionPlan(e.ctx, e.scope, plan.ID, model.PlanActive)
	require.NoError(t, err)
	assert.Equal(t, model.PlanActive, plan.PlanStatus)

	plan, err = e.svc.TransitionPlan(e.ctx, e.scope, plan.ID, model.PlanCancelled)
	require.NoError(t, err)

	_, err = e.svc.CreateOrder(e.ctx, e.scope, OrderInput{
		Code: "PO-9", PlanID: &plan.ID, ProductID: &e.product.ID, RecipeID: e.recipe.ID, Quantity: decimal.NewFromInt(1),
	})
	assert.Equal(t, apperr.KindPrecondition, kind(err), "cancelled plans take no orders")
}

func TestOutputQualityLinks(t *testing.T) {
	e := newEnv(t)
	o := e.order(t, "PO-1")
	s := e.stage(t, o.ID, "Bake", true)
	_, err := e.svc.TransitionStage(e.ctx, e.scope, s.ID, model.StageInProgress)
	require.NoError(t, err)
	check, err := e.svc.CreateQualityCheck(e.ctx, e.scope, QualityCheckInput{ProductionStageID: s.ID, Passed: true})
	require.NoError(t, err)

	out, err := e.svc.CreateOutput(e.ctx, e.scope, OutputInput{
		ProductionOrderID: o.ID, Quantity: decimal.NewFromInt(95), Unit: "pcs", LotNumbers: []string{"L-001", "L-002"},
	})
	require.NoError(t, err)
	assert.Equal(t, QualityStatusPending, out.QualityStatus)

	_, err = e.svc.LinkQualityCheck(e.ctx, e.scope, out.ID, check.ID)
	require.NoError(t, err)
	_, err = e.svc.LinkQualityCheck(e.ctx, e.scope, out.ID, check.ID)
	assert.Equal(t, apperr.KindConflict, kind(err))

	linked, err := e.svc.ListOutputQualityChecks(e.ctx, e.scope, out.ID)
	require.NoError(t, err)
	require.Len(t, linked, 1)
	assert.Equal(t, check.ID, linked[0].ID)

	other := e.order(t, "PO-2")
	otherOut, err := e.svc.CreateOutput(e.ctx, e.scope, OutputInput{ProductionOrderID: other.ID, Quantity: decimal.NewFromInt(1), Unit: "pcs"})
	require.NoError(t, err)
	_, err = e.svc.LinkQualityCheck(e.ctx, e.scope, otherOut.ID, check.ID)
	assert.Equal(t, apperr.KindPrecondition, kind(err))

	require.NoError(t, e.svc.UnlinkQualityCheck(e.ctx, e.scope, out.ID, check.ID))
	linked, err = e.svc.ListOutputQualityChecks(e.ctx, e.scope, out.ID)
	require.NoError(t, err)
	assert.Empty(t, linked)

	updated, err := e.svc.UpdateQualityStatus(e.ctx, e.scope, out.ID, "approved")
	require.NoError(t, err)
	assert.Equal(t, "approved", updated.QualityStatus)

	got, err := e.svc.GetOutput(e.ctx, e.scope, out.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StringList{"L-001", "L-002"}, got.LotNumbers)
}

func TestPublishFailureDoesNotFailTransition(t *testing.T) {
	e := newEnv(t)
	e.published.fail = true
	o := e.order(t, "PO-1")

	_, err := e.svc.TransitionOrder(e.ctx, e.scope, o.ID, model.OrderPending, nil)
	assert.NoError(t, err)
}

func TestMachineTables(t *testing.T) {
	assert.True(t, OrderMachine.Can(model.OrderDraft, model.OrderCancelled))
	assert.True(t, OrderMachine.Can(model.OrderInProgress, model.OrderCancelled))
	assert.False(t, OrderMachine.Can(model.OrderDraft, model.OrderInProgress))
	assert.False(t, StageMachine.Can(model.StageCompleted, model.StageCancelled))
	assert.False(t, StageMachine.Can(model.StagePending, model.StagePending))
	assert.False(t, PlanMachine.Can(model.PlanCompleted, model.PlanActive))
}
