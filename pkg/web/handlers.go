package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/ruleflow/pkg/models"
	"github.com/dukex/ruleflow/pkg/persistence"
	"github.com/dukex/ruleflow/pkg/registry"
	"github.com/dukex/ruleflow/pkg/workflow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type APIHandlers struct {
	repository  *workflow.Repository
	coordinator *workflow.Coordinator
	executions  persistence.ExecutionRepository
	registry    *registry.Registry
	validator   *validator.Validate
}

func NewAPIHandlers(
	repository *workflow.Repository,
	coordinator *workflow.Coordinator,
	executions persistence.ExecutionRepository,
	registry *registry.Registry,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		repository:  repository,
		coordinator: coordinator,
		executions:  executions,
		registry:    registry,
		validator:   validator,
	}
}

// Register mounts every endpoint on router.
func (h *APIHandlers) Register(router fiber.Router) {
	w := router.Group("/workflows")
	w.Get("/", h.GetWorkflows)
	w.Post("/", h.CreateWorkflow)
	w.Get("/:id", h.GetWorkflow)
	w.Delete("/:id", h.DeleteWorkflow)
	w.Post("/:id/simulate", h.SimulateWorkflow)
	w.Get("/:id/executions", h.GetWorkflowExecutions)

	router.Post("/events", h.PostEvent)
	router.Get("/executions/:id", h.GetExecution)
	router.Post("/executions/:id/actions/:actionId/retry", h.RetryAction)
	router.Get("/registry", h.GetRegistry)
	router.Get("/health", h.HealthCheck)
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	all := h.repository.FetchAll()
	status := models.WorkflowStatus(c.Query("status"))

	workflows := make([]*models.WorkflowDefinition, 0, len(all))

	for _, def := range all {
		if status == "" || def.Status == status {
			workflows = append(workflows, def)
		}
	}

	return c.JSON(WorkflowListResponse{Workflows: workflows, TotalCount: len(workflows)})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	def, err := h.repository.FetchByID(id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(def)
}

// CreateWorkflow loads a definition document. A new id gets version 1; an
// existing id must carry a higher version or none at all.
func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	def, err := workflow.DecodeDocument(c.Body())
	if err != nil {
		return handleEngineError(c, err)
	}

	compiled, err := h.repository.Publish(c.Context(), def)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(compiled.Definition)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if err := h.repository.Delete(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) SimulateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req workflow.SimulationRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	response, err := h.coordinator.Simulate(c.Context(), id, req)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(response)
}

// PostEvent runs the coordinator for one entity change and waits for every
// execution it admitted.
func (h *APIHandlers) PostEvent(c fiber.Ctx) error {
	var event models.Event
	if err := c.Bind().JSON(&event); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(event); err != nil {
		return badRequest(c, err.Error())
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}

	records, err := h.coordinator.Handle(c.Context(), event)
	if err != nil && len(records) == 0 {
		return handleEngineError(c, err)
	}

	if records == nil {
		records = []*models.ExecutionRecord{}
	}

	status := fiber.StatusOK
	if err != nil {
		status = fiber.StatusMultiStatus
	}

	return c.Status(status).JSON(EventResponse{EventID: event.ID, Executions: records})
}

func (h *APIHandlers) GetExecution(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Execution ID is required")
	}

	record, err := h.executions.GetByID(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(record)
}

func (h *APIHandlers) GetWorkflowExecutions(c fiber.Ctx) error {
	opts, err := parseListExecutionsOptions(c)
	if err != nil {
		return badRequest(c, "Invalid query parameters: "+err.Error())
	}

	result, err := h.executions.List(c.Context(), opts)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(result)
}

func parseListExecutionsOptions(c fiber.Ctx) (persistence.ListExecutionsOptions, error) {
	opts := persistence.ListExecutionsOptions{
		WorkflowID: c.Params("id"),
		Status:     models.ExecutionStatus(c.Query("status")),
		SortOrder:  c.Query("sort_order"),
	}

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			return opts, err
		}

		opts.Limit = limit
	}

	if offsetStr := c.Query("offset"); offsetStr != "" {
		offset, err := strconv.Atoi(offsetStr)
		if err != nil {
			return opts, err
		}

		opts.Offset = offset
	}

	return opts.Normalize()
}

func (h *APIHandlers) RetryAction(c fiber.Ctx) error {
	cmd := workflow.RetryCommand{
		ExecutionID: c.Params("id"),
		ActionID:    c.Params("actionId"),
	}

	if err := h.validator.Struct(cmd); err != nil {
		return badRequest(c, err.Error())
	}

	record, result, err := h.coordinator.Retry(c.Context(), cmd)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(RetryResponse{Execution: record, Result: result})
}

func (h *APIHandlers) GetRegistry(c fiber.Ctx) error {
	return c.JSON(RegistryResponse{
		Conditions:   h.registry.Types(registry.KindCondition),
		Actions:      h.registry.Types(registry.KindAction),
		Recipients:   h.registry.Types(registry.KindRecipient),
		Replacements: h.registry.Replacements(),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.repository.HealthCheck(c.Context())

	registryCheck := "Registry has action executors"
	regOk := len(h.registry.Types(registry.KindAction)) > 0

	if !regOk {
		registryCheck = "Registry has no action executors"
	}

	status := "unhealthy"
	message := "Ruleflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if regOk && repOk {
		status = "healthy"
		message = "Ruleflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"registry":   registryCheck,
			"repository": repositoryCheck,
		},
		"pending_executions": h.coordinator.Pending(),
		"timestamp":          time.Now().UTC(),
	})
}
