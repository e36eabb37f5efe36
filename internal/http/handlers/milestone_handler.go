package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/service"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// MilestoneHandler предоставляет HTTP слой для этапов сделки.
type MilestoneHandler struct {
	escrow *service.EscrowService
}

// NewMilestoneHandler создаёт хэндлер.
func NewMilestoneHandler(escrow *service.EscrowService) *MilestoneHandler {
	return &MilestoneHandler{escrow: escrow}
}

// Update обрабатывает PUT /transactions/:id/milestones/:milestoneID.
func (h *MilestoneHandler) Update(c *gin.Context) {
	userID, transactionID, milestoneID, ok := h.identify(c)
	if !ok {
		return
	}

	var req dto.UpdateMilestoneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateMilestoneTitle(req.Title); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateMilestoneDescription(req.Description); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	t, err := h.escrow.UpdateMilestone(c.Request.Context(), userID, transactionID, milestoneID, req.Title, req.Description, req.Amount)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTransactionResponse(t))
}

// Start обрабатывает POST /transactions/:id/milestones/:milestoneID/start.
func (h *MilestoneHandler) Start(c *gin.Context) {
	h.command(c, h.escrow.StartMilestone)
}

// Submit обрабатывает POST /transactions/:id/milestones/:milestoneID/submit.
func (h *MilestoneHandler) Submit(c *gin.Context) {
	h.command(c, h.escrow.SubmitMilestone)
}

// Approve обрабатывает POST /transactions/:id/milestones/:milestoneID/approve.
func (h *MilestoneHandler) Approve(c *gin.Context) {
	h.command(c, h.escrow.ApproveMilestone)
}

// Release обрабатывает POST /transactions/:id/milestones/:milestoneID/release.
func (h *MilestoneHandler) Release(c *gin.Context) {
	h.command(c, h.escrow.ReleaseMilestone)
}

// ToggleDeliverable обрабатывает POST /transactions/:id/milestones/:milestoneID/deliverables/:deliverableID/toggle.
func (h *MilestoneHandler) ToggleDeliverable(c *gin.Context) {
	userID, transactionID, milestoneID, ok := h.identify(c)
	if !ok {
		return
	}

	deliverableID, err := common.ParseUUIDParam(c, "deliverableID")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	t, err := h.escrow.ToggleDeliverable(c.Request.Context(), userID, transactionID, milestoneID, deliverableID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTransactionResponse(t))
}

// AddNote обрабатывает POST /transactions/:id/milestones/:milestoneID/notes.
func (h *MilestoneHandler) AddNote(c *gin.Context) {
	userID, transactionID, milestoneID, ok := h.identify(c)
	if !ok {
		return
	}

	var req dto.AddMilestoneNoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateNoteContent(req.Content); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	t, err := h.escrow.AddMilestoneNote(c.Request.Context(), userID, transactionID, milestoneID, req.Content)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTransactionResponse(t))
}

func (h *MilestoneHandler) command(c *gin.Context, fn func(ctx context.Context, actorID, id, milestoneID uuid.UUID) (*entity.Transaction, error)) {
	userID, transactionID, milestoneID, ok := h.identify(c)
	if !ok {
		return
	}

	t, err := fn(c.Request.Context(), userID, transactionID, milestoneID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTransactionResponse(t))
}

func (h *MilestoneHandler) identify(c *gin.Context) (userID, transactionID, milestoneID uuid.UUID, ok bool) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}

	transactionID, err = common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}

	milestoneID, err = common.ParseUUIDParam(c, "milestoneID")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return uuid.Nil, uuid.Nil, uuid.Nil, false
	}

	return userID, transactionID, milestoneID, true
}
