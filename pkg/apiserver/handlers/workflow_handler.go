package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/prodflow/prodflow/pkg/apiserver/middleware"
	"github.com/prodflow/prodflow/pkg/model"
	"github.com/prodflow/prodflow/pkg/store/postgres"
	"github.com/prodflow/prodflow/pkg/workflow"
)

type WorkflowHandler struct {
	svc    *workflow.Service
	outbox *postgres.OutboxRepository
	logger *zap.Logger
}

func NewWorkflowHandler(svc *workflow.Service, outbox *postgres.OutboxRepository, logger *zap.Logger) *WorkflowHandler {
	return &WorkflowHandler{svc: svc, outbox: outbox, logger: logger}
}

type transitionRequest struct {
	Status   string `json:"status" binding:"required"`
	Progress *int   `json:"progress"`
}

type qualityStatusRequest struct {
	QualityStatus string `json:"quality_status" binding:"required"`
}

type qualityItemsRequest struct {
	Items []workflow.QualityItemInput `json:"items" binding:"required"`
}

type linkCheckRequest struct {
	QualityCheckID uuid.UUID `json:"quality_check_id" binding:"required"`
}

func (h *WorkflowHandler) CreatePlan(c *gin.Context) {
	var req workflow.PlanInput
	if !bind(c, h.logger, &req) {
		return
	}
	plan, err := h.svc.CreatePlan(c.Request.Context(), middleware.Scope(c), req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, plan)
}

func (h *WorkflowHandler) ListPlans(c *gin.Context) {
	plans, err := h.svc.ListPlans(c.Request.Context(), middleware.Scope(c), model.PlanStatus(c.Query("status")), listOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, plans)
}

func (h *WorkflowHandler) GetPlan(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	plan, err := h.svc.GetPlan(c.Request.Context(), middleware.Scope(c), id, readOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, plan)
}

func (h *WorkflowHandler) UpdatePlan(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req workflow.PlanPatch
	if !bind(c, h.logger, &req) {
		return
	}
	plan, err := h.svc.UpdatePlan(c.Request.Context(), middleware.Scope(c), id, req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, plan)
}

func (h *WorkflowHandler) TransitionPlan(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req transitionRequest
	if !bind(c, h.logger, &req) {
		return
	}
	plan, err := h.svc.TransitionPlan(c.Request.Context(), middleware.Scope(c), id, model.PlanStatus(req.Status))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, plan)
}

func (h *WorkflowHandler) CreateOrder(c *gin.Context) {
	var req workflow.OrderInput
	if !bind(c, h.logger, &req) {
		return
	}
	order, err := h.svc.CreateOrder(c.Request.Context(), middleware.Scope(c), req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, order)
}

func (h *WorkflowHandler) ListOrders(c *gin.Context) {
	planID, valid := queryID(c, h.logger, "plan_id")
	if !valid {
		return
	}
	filter := workflow.OrderFilter{PlanID: planID, Status: model.OrderStatus(c.Query("status"))}
	orders, err := h.svc.ListOrders(c.Request.Context(), middleware.Scope(c), filter, listOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, orders)
}

func (h *WorkflowHandler) GetOrder(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	order, err := h.svc.GetOrder(c.Request.Context(), middleware.Scope(c), id, readOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, order)
}

func (h *WorkflowHandler) UpdateOrder(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req workflow.OrderPatch
	if !bind(c, h.logger, &req) {
		return
	}
	order, err := h.svc.UpdateOrder(c.Request.Context(), middleware.Scope(c), id, req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, order)
}

func (h *WorkflowHandler) TransitionOrder(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req transitionRequest
	if !bind(c, h.logger, &req) {
		return
	}
	order, err := h.svc.TransitionOrder(c.Request.Context(), middleware.Scope(c), id, model.OrderStatus(req.Status), req.Progress)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, order)
}

// OrderEvents lists the outbox history of an order the caller can see.
func (h *WorkflowHandler) OrderEvents(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	if _, err := h.svc.GetOrder(c.Request.Context(), middleware.Scope(c), id, readOptions(c)); err != nil {
		fail(c, h.logger, err)
		return
	}
	events, err := h.outbox.ForEntity(c.Request.Context(), middleware.Scope(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, events)
}

func (h *WorkflowHandler) ListStages(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	stages, err := h.svc.ListStages(c.Request.Context(), middleware.Scope(c), id, listOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, stages)
}

func (h *WorkflowHandler) ListOutputs(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	outputs, err := h.svc.ListOutputs(c.Request.Context(), middleware.Scope(c), id, listOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, outputs)
}

func (h *WorkflowHandler) CreateStage(c *gin.Context) {
	var req workflow.StageInput
	if !bind(c, h.logger, &req) {
		return
	}
	stage, err := h.svc.CreateStage(c.Request.Context(), middleware.Scope(c), req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, stage)
}

func (h *WorkflowHandler) GetStage(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	stage, err := h.svc.GetStage(c.Request.Context(), middleware.Scope(c), id, readOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, stage)
}

func (h *WorkflowHandler) UpdateStage(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req workflow.StagePatch
	if !bind(c, h.logger, &req) {
		return
	}
	stage, err := h.svc.UpdateStage(c.Request.Context(), middleware.Scope(c), id, req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, stage)
}

func (h *WorkflowHandler) TransitionStage(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req transitionRequest
	if !bind(c, h.logger, &req) {
		return
	}
	stage, err := h.svc.TransitionStage(c.Request.Context(), middleware.Scope(c), id, model.StageStatus(req.Status))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, stage)
}

func (h *WorkflowHandler) AddStageResource(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req workflow.ResourceInput
	if !bind(c, h.logger, &req) {
		return
	}
	res, err := h.svc.AddStageResource(c.Request.Context(), middleware.Scope(c), id, req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, res)
}

func (h *WorkflowHandler) RemoveStageResource(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	resourceID, valid := pathID(c, h.logger, "resource_id")
	if !valid {
		return
	}
	if err := h.svc.RemoveStageResource(c.Request.Context(), middleware.Scope(c), id, resourceID); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "stage resource removed"})
}

func (h *WorkflowHandler) ListQualityChecks(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	checks, err := h.svc.ListQualityChecks(c.Request.Context(), middleware.Scope(c), id, listOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, checks)
}

func (h *WorkflowHandler) CreateQualityCheck(c *gin.Context) {
	var req workflow.QualityCheckInput
	if !bind(c, h.logger, &req) {
		return
	}
	check, err := h.svc.CreateQualityCheck(c.Request.Context(), middleware.Scope(c), req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, check)
}

func (h *WorkflowHandler) GetQualityCheck(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	check, err := h.svc.GetQualityCheck(c.Request.Context(), middleware.Scope(c), id, readOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, check)
}

// DeleteQualityCheck soft-deletes a check and re-derives its stage's approval.
func (h *WorkflowHandler) DeleteQualityCheck(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	res, err := h.svc.DeleteQualityCheck(c.Request.Context(), middleware.Scope(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: res, Message: res.Message})
}

func (h *WorkflowHandler) UpdateQualityCheckItems(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req qualityItemsRequest
	if !bind(c, h.logger, &req) {
		return
	}
	check, err := h.svc.UpdateQualityCheckItems(c.Request.Context(), middleware.Scope(c), id, req.Items)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, check)
}

func (h *WorkflowHandler) CreateOutput(c *gin.Context) {
	var req workflow.OutputInput
	if !bind(c, h.logger, &req) {
		return
	}
	output, err := h.svc.CreateOutput(c.Request.Context(), middleware.Scope(c), req)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, output)
}

func (h *WorkflowHandler) GetOutput(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	output, err := h.svc.GetOutput(c.Request.Context(), middleware.Scope(c), id, readOptions(c))
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, output)
}

func (h *WorkflowHandler) UpdateQualityStatus(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req qualityStatusRequest
	if !bind(c, h.logger, &req) {
		return
	}
	output, err := h.svc.UpdateQualityStatus(c.Request.Context(), middleware.Scope(c), id, req.QualityStatus)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, output)
}

func (h *WorkflowHandler) LinkQualityCheck(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	var req linkCheckRequest
	if !bind(c, h.logger, &req) {
		return
	}
	link, err := h.svc.LinkQualityCheck(c.Request.Context(), middleware.Scope(c), id, req.QualityCheckID)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	created(c, link)
}

func (h *WorkflowHandler) UnlinkQualityCheck(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	checkID, valid := pathID(c, h.logger, "check_id")
	if !valid {
		return
	}
	if err := h.svc.UnlinkQualityCheck(c.Request.Context(), middleware.Scope(c), id, checkID); err != nil {
		fail(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Message: "quality check unlinked"})
}

func (h *WorkflowHandler) ListOutputQualityChecks(c *gin.Context) {
	id, valid := pathID(c, h.logger, "id")
	if !valid {
		return
	}
	checks, err := h.svc.ListOutputQualityChecks(c.Request.Context(), middleware.Scope(c), id)
	if err != nil {
		fail(c, h.logger, err)
		return
	}
	ok(c, checks)
}
