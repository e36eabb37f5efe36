package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/escrow-backend/internal/domain/entity"
	"github.com/ignatzorin/escrow-backend/internal/dto"
	"github.com/ignatzorin/escrow-backend/internal/http/handlers/common"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/service"
	"github.com/ignatzorin/escrow-backend/internal/validation"
)

// TransactionHandler предоставляет HTTP слой для сделок.
type TransactionHandler struct {
	escrow *service.EscrowService
}

// NewTransactionHandler создаёт хэндлер.
func NewTransactionHandler(escrow *service.EscrowService) *TransactionHandler {
	return &TransactionHandler{escrow: escrow}
}

// Create обрабатывает POST /transactions.
func (h *TransactionHandler) Create(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	var req dto.CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	if err := validation.ValidateTransactionTitle(req.Title); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateTransactionDescription(req.Description); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateInspectionPeriod(req.InspectionPeriodDays); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if err := validation.ValidateMilestoneCount(len(req.Milestones)); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	counterpartyID, err := uuid.Parse(req.CounterpartyID)
	if err != nil {
		common.RespondBadRequest(c, "неверный идентификатор контрагента")
		return
	}

	drafts := make([]entity.MilestoneDraft, 0, len(req.Milestones))
	for _, m := range req.Milestones {
		if err := validation.ValidateMilestoneTitle(m.Title); err != nil {
			common.RespondBadRequest(c, err.Error())
			return
		}
		if err := validation.ValidateMilestoneDescription(m.Description); err != nil {
			common.RespondBadRequest(c, err.Error())
			return
		}
		for _, d := range m.Deliverables {
			if err := validation.ValidateDeliverableTitle(d); err != nil {
				common.RespondBadRequest(c, err.Error())
				return
			}
		}
		drafts = append(drafts, entity.MilestoneDraft{
			Title:        m.Title,
			Description:  m.Description,
			Amount:       m.Amount,
			Deliverables: m.Deliverables,
		})
	}

	t, err := h.escrow.CreateTransaction(c.Request.Context(), userID, service.CreateTransactionInput{
		Title:                req.Title,
		Description:          req.Description,
		Amount:               req.Amount,
		Currency:             req.Currency,
		CounterpartyID:       counterpartyID,
		Role:                 req.Role,
		InspectionPeriodDays: req.InspectionPeriodDays,
		Milestones:           drafts,
	})
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.NewTransactionResponse(t))
}

// Get обрабатывает GET /transactions/:id.
func (h *TransactionHandler) Get(c *gin.Context) {
	userID, transactionID, ok := h.identify(c)
	if !ok {
		return
	}

	role, _ := common.CurrentUserRole(c)
	t, err := h.escrow.GetTransaction(c.Request.Context(), userID, role == models.RoleAdmin, transactionID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTransactionResponse(t))
}

// List обрабатывает GET /transactions - сделки текущего пользователя.
func (h *TransactionHandler) List(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return
	}

	limit, offset := common.GetPagination(c)
	items, err := h.escrow.ListMyTransactions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"transactions": items, "limit": limit, "offset": offset})
}

// Audit обрабатывает GET /transactions/:id/audit.
func (h *TransactionHandler) Audit(c *gin.Context) {
	userID, transactionID, ok := h.identify(c)
	if !ok {
		return
	}

	role, _ := common.CurrentUserRole(c)
	records, err := h.escrow.ListAudit(c.Request.Context(), userID, role == models.RoleAdmin, transactionID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"audit": records})
}

// Accept обрабатывает POST /transactions/:id/accept.
func (h *TransactionHandler) Accept(c *gin.Context) {
	h.command(c, h.escrow.Accept)
}

// Cancel обрабатывает POST /transactions/:id/cancel.
func (h *TransactionHandler) Cancel(c *gin.Context) {
	h.command(c, h.escrow.Cancel)
}

// Fund обрабатывает POST /transactions/:id/fund.
func (h *TransactionHandler) Fund(c *gin.Context) {
	h.command(c, h.escrow.Fund)
}

// Deliver обрабатывает POST /transactions/:id/deliver.
func (h *TransactionHandler) Deliver(c *gin.Context) {
	h.command(c, h.escrow.Deliver)
}

// Release обрабатывает POST /transactions/:id/release.
func (h *TransactionHandler) Release(c *gin.Context) {
	h.command(c, h.escrow.Release)
}

// command — общий каркас для переходов без тела запроса.
func (h *TransactionHandler) command(c *gin.Context, fn func(ctx context.Context, actorID, id uuid.UUID) (*entity.Transaction, error)) {
	userID, transactionID, ok := h.identify(c)
	if !ok {
		return
	}

	t, err := fn(c.Request.Context(), userID, transactionID)
	if err != nil {
		common.RespondAppError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewTransactionResponse(t))
}

func (h *TransactionHandler) identify(c *gin.Context) (userID, transactionID uuid.UUID, ok bool) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, "")
		return uuid.Nil, uuid.Nil, false
	}

	transactionID, err = common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return uuid.Nil, uuid.Nil, false
	}

	return userID, transactionID, true
}
