// Package handler exposes the campaigns bounded context over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"leadflow_backend/internal/campaigns/analytics"
	"leadflow_backend/internal/campaigns/channel"
	"leadflow_backend/internal/campaigns/dispatcher"
	"leadflow_backend/internal/campaigns/domain"
	"leadflow_backend/internal/campaigns/reconciler"
	"leadflow_backend/internal/campaigns/repository"
	"leadflow_backend/internal/campaigns/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// CampaignStore is the persistence the handler needs directly.
type CampaignStore interface {
	CreateCampaign(ctx context.Context, c domain.Campaign) (uuid.UUID, error)
	GetCampaign(ctx context.Context, campaignID uuid.UUID) (domain.Campaign, error)
}

// DispatchEnqueuer hands a started campaign to the background worker. A nil
// enqueuer makes the handler run dispatch in-process instead.
type DispatchEnqueuer interface {
	EnqueueCampaignDispatch(ctx context.Context, campaignID uuid.UUID) error
}

type Handler struct {
	store   CampaignStore
	disp    *dispatcher.Dispatcher
	rec     *reconciler.Reconciler
	stats   *analytics.Aggregator
	enqueue DispatchEnqueuer
	val     *validator.Validator
	log     *logger.Logger
}

func New(store CampaignStore, disp *dispatcher.Dispatcher, rec *reconciler.Reconciler, stats *analytics.Aggregator, enqueue DispatchEnqueuer, val *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{store: store, disp: disp, rec: rec, stats: stats, enqueue: enqueue, val: val, log: log}
}

// RegisterCampaignRoutes mounts the campaign management endpoints.
func (h *Handler) RegisterCampaignRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Create)
	rg.GET("/:id", h.Get)
	rg.POST("/:id/recipients", h.AddRecipients)
	rg.POST("/:id/start", h.Start)
	rg.POST("/:id/pause", h.Pause)
	rg.POST("/:id/resume", h.Resume)
	rg.POST("/:id/cancel", h.Cancel)
	rg.GET("/:id/analytics", h.Analytics)
}

// RegisterWebhookRoutes mounts the provider callback ingress.
func (h *Handler) RegisterWebhookRoutes(rg *gin.RouterGroup) {
	rg.POST("/delivery", h.DeliveryWebhook)
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	ch := domain.Channel(req.Channel)
	if ch == domain.ChannelEmail && req.Subject == "" {
		httpkit.Error(c, http.StatusBadRequest, "subject is required for email campaigns", nil)
		return
	}
	if err := channel.ValidateTemplate(req.BodyTemplate); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "body template does not parse", err.Error())
		return
	}

	rateLimit := req.RateLimitPerSecond
	if rateLimit == 0 {
		rateLimit = 10
	}

	id, err := h.store.CreateCampaign(c.Request.Context(), domain.Campaign{
		OrganizationID:     req.OrganizationID,
		Name:               req.Name,
		Channel:            ch,
		Subject:            req.Subject,
		BodyTemplate:       req.BodyTemplate,
		RateLimitPerSecond: rateLimit,
		MaxRetries:         req.MaxRetries,
		ConsentRequired:    req.ConsentRequired,
		ScheduledAt:        req.ScheduledAt,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, gin.H{"id": id})
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	campaign, err := h.store.GetCampaign(c.Request.Context(), id)
	if errors.Is(err, repository.ErrCampaignNotFound) {
		httpkit.Error(c, http.StatusNotFound, "campaign not found", nil)
		return
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToCampaignResponse(campaign))
}

func (h *Handler) AddRecipients(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req transport.AddRecipientsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	inputs := make([]dispatcher.RecipientInput, 0, len(req.Recipients))
	for _, r := range req.Recipients {
		if r.Phone == "" && r.Email == "" {
			httpkit.Error(c, http.StatusBadRequest, "each recipient needs a phone number or an email address", nil)
			return
		}
		inputs = append(inputs, dispatcher.RecipientInput{
			LeadID:     r.LeadID,
			Name:       r.Name,
			Phone:      r.Phone,
			Email:      r.Email,
			Variables:  r.Variables,
			HasConsent: r.HasConsent,
		})
	}

	added, skipped, err := h.disp.AddRecipients(c.Request.Context(), id, inputs)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.AddRecipientsResponse{Added: added, Skipped: skipped})
}

func (h *Handler) Start(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.disp.Start(c.Request.Context(), id)) {
		return
	}
	h.kickDispatch(c.Request.Context(), id)
	httpkit.OK(c, gin.H{"status": "started"})
}

func (h *Handler) Pause(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.disp.Pause(c.Request.Context(), id)) {
		return
	}
	httpkit.OK(c, gin.H{"status": "paused"})
}

func (h *Handler) Resume(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.disp.Resume(c.Request.Context(), id)) {
		return
	}
	h.kickDispatch(c.Request.Context(), id)
	httpkit.OK(c, gin.H{"status": "resumed"})
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if httpkit.HandleError(c, h.disp.Cancel(c.Request.Context(), id)) {
		return
	}
	httpkit.OK(c, gin.H{"status": "cancelled"})
}

func (h *Handler) Analytics(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	summary, err := h.stats.Summarize(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}

// DeliveryWebhook ingests a provider delivery callback. Duplicates and
// not-yet-matched events are acknowledged with 200 so providers stop
// retrying; only malformed payloads are rejected.
func (h *Handler) DeliveryWebhook(c *gin.Context) {
	var req transport.DeliveryWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	payload := make(map[string]any, len(req.Extra)+2)
	for k, v := range req.Extra {
		payload[k] = v
	}
	if req.ErrorCode != "" {
		payload["errorCode"] = req.ErrorCode
	}
	if req.ErrorMessage != "" {
		payload["errorMessage"] = req.ErrorMessage
	}

	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}

	result, err := h.rec.Ingest(c.Request.Context(), domain.WebhookEvent{
		EventID:           req.EventID,
		EventType:         req.EventType,
		ProviderMessageID: req.MessageID,
		Payload:           payload,
		OccurredAt:        occurredAt,
	})
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"result": string(result)})
}

// kickDispatch hands the campaign to the background worker, or runs dispatch
// in-process when no worker queue is configured.
func (h *Handler) kickDispatch(ctx context.Context, campaignID uuid.UUID) {
	if h.enqueue != nil {
		if err := h.enqueue.EnqueueCampaignDispatch(ctx, campaignID); err != nil {
			h.log.Error("failed to enqueue campaign dispatch", "campaign_id", campaignID, "error", err)
		}
		return
	}

	go func() {
		if err := h.disp.Run(context.Background(), campaignID); err != nil {
			h.log.Error("in-process dispatch stopped", "campaign_id", campaignID, "error", err)
		}
	}()
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return uuid.Nil, false
	}
	return id, true
}
