// Package handler exposes the routing bounded context over HTTP.
package handler

import (
	"net/http"

	"leadflow_backend/internal/routing/domain"
	"leadflow_backend/internal/routing/service"
	"leadflow_backend/internal/routing/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

type Handler struct {
	router *service.Router
	mgmt   *service.Management
	val    *validator.Validator
}

func New(router *service.Router, mgmt *service.Management, val *validator.Validator) *Handler {
	return &Handler{router: router, mgmt: mgmt, val: val}
}

// RegisterLeadRoutes mounts the lead routing endpoints.
func (h *Handler) RegisterLeadRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.CreateAndRoute)
	rg.POST("/:id/route", h.Route)
	rg.PUT("/:id/assign", h.Assign)
	rg.POST("/bulk-assign", h.BulkAssign)
	rg.POST("/:id/undo-assignment", h.Undo)
	rg.GET("/:id/assignment-history", h.History)
	rg.POST("/:id/contact", h.TouchContact)
}

// RegisterAgentRoutes mounts the agent management endpoints.
func (h *Handler) RegisterAgentRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.CreateAgent)
	rg.PATCH("/:id/availability", h.SetAvailability)
}

// RegisterRuleRoutes mounts the rule and pool management endpoints.
func (h *Handler) RegisterRuleRoutes(rules, pools, autoRules *gin.RouterGroup) {
	rules.GET("", h.ListRules)
	rules.POST("", h.CreateRule)
	rules.PATCH("/:id/active", h.SetRuleActive)
	pools.POST("", h.CreatePool)
	autoRules.POST("", h.CreateAutoRule)
}

func (h *Handler) CreateAndRoute(c *gin.Context) {
	var req transport.CreateLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.router.CreateAndRoute(c.Request.Context(), service.CreateLeadParams{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		Email:          req.Email,
		Phone:          req.Phone,
		Source:         req.Source,
		Stage:          req.Stage,
		Priority:       req.Priority,
		Attributes:     req.Attributes,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, result)
}

func (h *Handler) Route(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	result, err := h.router.Route(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) Assign(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.AssignLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	result, err := h.router.AssignManually(c.Request.Context(), id, req.AgentID, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) BulkAssign(c *gin.Context) {
	var req transport.BulkAssignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	assigned, err := h.router.BulkAssign(c.Request.Context(), req.LeadIDs, req.AgentID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.BulkAssignResponse{Requested: len(req.LeadIDs), Assigned: assigned})
}

func (h *Handler) Undo(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.router.Undo(c.Request.Context(), id, nil)) {
		return
	}
	httpkit.OK(c, gin.H{"status": "reverted"})
}

func (h *Handler) History(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	entries, err := h.router.History(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]transport.LogEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, transport.ToLogEntryResponse(e))
	}
	httpkit.OK(c, out)
}

func (h *Handler) TouchContact(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.mgmt.TouchLeadContact(c.Request.Context(), id)) {
		return
	}
	httpkit.OK(c, gin.H{"status": "recorded"})
}

func (h *Handler) CreateAgent(c *gin.Context) {
	var req transport.CreateAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	available := true
	if req.IsAvailable != nil {
		available = *req.IsAvailable
	}

	id, err := h.mgmt.CreateAgent(c.Request.Context(), domain.Agent{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		MaxCapacity:    req.MaxCapacity,
		IsAvailable:    available,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) SetAvailability(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if httpkit.HandleError(c, h.mgmt.SetAgentAvailability(c.Request.Context(), id, *req.Available)) {
		return
	}
	httpkit.OK(c, gin.H{"status": "updated"})
}

func (h *Handler) ListRules(c *gin.Context) {
	orgID, err := uuid.Parse(c.Query("organizationId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "organizationId query parameter is required", nil)
		return
	}

	rules, svcErr := h.mgmt.ListRules(c.Request.Context(), orgID)
	if httpkit.HandleError(c, svcErr) {
		return
	}
	httpkit.OK(c, rules)
}

func (h *Handler) CreateRule(c *gin.Context) {
	var req transport.CreateRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	id, err := h.mgmt.CreateRule(c.Request.Context(), domain.AssignmentRule{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		RuleOrder:      req.RuleOrder,
		MatchType:      domain.MatchType(req.MatchType),
		Conditions:     req.Conditions,
		MatchAll:       req.MatchAll,
		TargetAgentIDs: req.TargetAgentIDs,
		PoolID:         req.PoolID,
		IsActive:       active,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) SetRuleActive(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.RuleActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	if httpkit.HandleError(c, h.mgmt.SetRuleActive(c.Request.Context(), id, *req.Active)) {
		return
	}
	httpkit.OK(c, gin.H{"status": "updated"})
}

func (h *Handler) CreatePool(c *gin.Context) {
	var req transport.CreatePoolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	id, err := h.mgmt.CreatePool(c.Request.Context(), domain.Pool{
		OrganizationID: req.OrganizationID,
		Name:           req.Name,
		MemberAgentIDs: req.MemberAgentIDs,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) CreateAutoRule(c *gin.Context) {
	var req transport.CreateAutoRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	id, err := h.mgmt.CreateAutoRule(c.Request.Context(), domain.AutoReassignmentRule{
		OrganizationID:     req.OrganizationID,
		Name:               req.Name,
		Stages:             req.Stages,
		DaysWithoutContact: req.DaysWithoutContact,
		TargetAgentIDs:     req.TargetAgentIDs,
		PoolID:             req.PoolID,
		IsActive:           active,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, gin.H{"id": id})
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}
