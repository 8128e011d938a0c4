package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/counselign/counselign-api/internal/models"
	"github.com/counselign/counselign-api/internal/service"
	appErrors "github.com/counselign/counselign-api/pkg/errors"
	"github.com/counselign/counselign-api/pkg/response"
)

// QuoteHandler exposes quote submission, moderation and daily rotation.
type QuoteHandler struct {
	service *service.QuoteService
}

// NewQuoteHandler constructs the handler.
func NewQuoteHandler(svc *service.QuoteService) *QuoteHandler {
	return &QuoteHandler{service: svc}
}

type moderateQuoteRequest struct {
	Approve bool `json:"approve"`
}

// Submit godoc
// @Summary Submit a quote for moderation
// @Tags Quotes
// @Accept json
// @Produce json
// @Param payload body models.SubmitQuoteRequest true "Quote payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /quotes [post]
func (h *QuoteHandler) Submit(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req models.SubmitQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid quote payload"))
		return
	}
	quote, err := h.service.Submit(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, quote)
}

// Pending godoc
// @Summary List quotes awaiting moderation
// @Tags Quotes
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /quotes/pending [get]
func (h *QuoteHandler) Pending(c *gin.Context) {
	quotes, err := h.service.Pending(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quotes, nil)
}

// Moderate godoc
// @Summary Approve or reject a pending quote
// @Tags Quotes
// @Accept json
// @Produce json
// @Param id path string true "Quote ID"
// @Param payload body moderateQuoteRequest true "Moderation decision"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /quotes/{id}/moderate [patch]
func (h *QuoteHandler) Moderate(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req moderateQuoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid moderation payload"))
		return
	}
	quote, err := h.service.Moderate(c.Request.Context(), c.Param("id"), claims.UserID, req.Approve)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}

// QuoteOfTheDay godoc
// @Summary Today's quote from the approved pool
// @Tags Quotes
// @Produce json
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /quotes/daily [get]
func (h *QuoteHandler) QuoteOfTheDay(c *gin.Context) {
	quote, err := h.service.QuoteOfTheDay(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, quote, nil)
}
