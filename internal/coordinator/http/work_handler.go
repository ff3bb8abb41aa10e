// Package http provides the operator endpoints for inspecting and retrying failed
// coordination work.
package http

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/allisson/whizbang/internal/coordinator/http/dto"
	coordinatorUseCase "github.com/allisson/whizbang/internal/coordinator/usecase"
	"github.com/allisson/whizbang/internal/httputil"
	inboxUseCase "github.com/allisson/whizbang/internal/inbox/usecase"
	outboxUseCase "github.com/allisson/whizbang/internal/outbox/usecase"
	perspectiveDomain "github.com/allisson/whizbang/internal/perspective/domain"
	perspectiveUseCase "github.com/allisson/whizbang/internal/perspective/usecase"
	customValidation "github.com/allisson/whizbang/internal/validation"
)

// WorkHandler serves failed work listings and retries for outbox messages, inbox
// records and perspective checkpoints.
type WorkHandler struct {
	outbox      outboxUseCase.Outbox
	inbox       inboxUseCase.Inbox
	tracker     perspectiveUseCase.Tracker
	coordinator coordinatorUseCase.Coordinator
	logger      *slog.Logger
}

// NewWorkHandler creates a new work handler.
func NewWorkHandler(
	outbox outboxUseCase.Outbox,
	inbox inboxUseCase.Inbox,
	tracker perspectiveUseCase.Tracker,
	coordinator coordinatorUseCase.Coordinator,
	logger *slog.Logger,
) *WorkHandler {
	return &WorkHandler{
		outbox:      outbox,
		inbox:       inbox,
		tracker:     tracker,
		coordinator: coordinator,
		logger:      logger,
	}
}

// RegisterRoutes mounts the handler under group.
func (h *WorkHandler) RegisterRoutes(group *gin.RouterGroup) {
	work := group.Group("/work")
	work.GET("/failed/outbox", h.ListFailedOutboxHandler)
	work.GET("/failed/inbox", h.ListFailedInboxHandler)
	work.GET("/failed/perspectives", h.ListFailedPerspectivesHandler)
	work.POST("/outbox/:id/retry", h.RetryOutboxHandler)
	work.POST("/inbox/:id/:handler/retry", h.RetryInboxHandler)
	work.POST("/perspectives/retry", h.RetryPerspectiveHandler)

	group.GET("/instances", h.ListInstancesHandler)
}

// ListFailedOutboxHandler lists outbox messages in the failed state.
// GET /v1/work/failed/outbox?offset=0&limit=50
func (h *WorkHandler) ListFailedOutboxHandler(c *gin.Context) {
	page, err := httputil.ParsePage(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	messages, err := h.outbox.ListFailed(c.Request.Context(), page.Offset, page.Limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapOutboxMessages(messages))
}

// ListFailedInboxHandler lists inbox records in the failed state.
// GET /v1/work/failed/inbox?offset=0&limit=50
func (h *WorkHandler) ListFailedInboxHandler(c *gin.Context) {
	page, err := httputil.ParsePage(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	messages, err := h.inbox.ListFailed(c.Request.Context(), page.Offset, page.Limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapInboxMessages(messages))
}

// ListFailedPerspectivesHandler lists checkpoints carrying the Failed flag.
// GET /v1/work/failed/perspectives?offset=0&limit=50
func (h *WorkHandler) ListFailedPerspectivesHandler(c *gin.Context) {
	page, err := httputil.ParsePage(c)
	if err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	checkpoints, err := h.tracker.ListFailed(c.Request.Context(), page.Offset, page.Limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapCheckpoints(checkpoints))
}

// RetryOutboxHandler moves a failed outbox message back to pending.
// POST /v1/work/outbox/:id/retry
// Returns 204 No Content.
func (h *WorkHandler) RetryOutboxHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}

	if err := h.outbox.ResetFailed(c.Request.Context(), id); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.logger.Info("outbox message reset", slog.String("message_id", id.String()))
	c.Status(http.StatusNoContent)
}

// RetryInboxHandler moves a failed inbox record back to pending.
// POST /v1/work/inbox/:id/:handler/retry
// Returns 204 No Content.
func (h *WorkHandler) RetryInboxHandler(c *gin.Context) {
	id, ok := h.parseID(c)
	if !ok {
		return
	}
	handlerName := c.Param("handler")
	if err := customValidation.Name.Validate(handlerName); err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("handler: %w", err), h.logger)
		return
	}

	if err := h.inbox.ResetFailed(c.Request.Context(), id, handlerName); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	h.logger.Info("inbox message reset",
		slog.String("message_id", id.String()),
		slog.String("handler", handlerName),
	)
	c.Status(http.StatusNoContent)
}

// RetryPerspectiveHandler flags a checkpoint for processing again, optionally
// rewinding it.
// POST /v1/work/perspectives/retry
// Returns 200 OK with the updated checkpoint.
func (h *WorkHandler) RetryPerspectiveHandler(c *gin.Context) {
	var req dto.RetryPerspectiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}
	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	ctx := c.Request.Context()
	key := perspectiveDomain.Key{StreamID: req.StreamID, PerspectiveName: req.PerspectiveName}

	var err error
	if req.Rewinds() {
		err = h.tracker.Rewind(ctx, key, req.RewindEventID())
	} else {
		err = h.tracker.Retry(ctx, key)
	}
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	cp, err := h.tracker.Checkpoint(ctx, key)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapCheckpoint(cp))
}

// ListInstancesHandler lists registered service instances.
// GET /v1/instances
func (h *WorkHandler) ListInstancesHandler(c *gin.Context) {
	instances, err := h.coordinator.ListInstances(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapServiceInstances(instances))
}

func (h *WorkHandler) parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleBadRequestGin(c, fmt.Errorf("invalid message id: %w", err), h.logger)
		return uuid.Nil, false
	}
	return id, true
}
