package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

type ledgerEntryResponse struct {
	ID            string    `json:"id"`
	EntryType     string    `json:"entryType"`
	Amount        int64     `json:"amount"`
	Currency      string    `json:"currency"`
	CausationID   string    `json:"causationId"`
	CorrelationID string    `json:"correlationId"`
	CreatedAt     time.Time `json:"createdAt"`
}

type paymentLedgerResponse struct {
	PaymentID string                `json:"paymentId"`
	Currency  string                `json:"currency"`
	Balance   int64                 `json:"balance"`
	Entries   []ledgerEntryResponse `json:"entries"`
}

// GetPaymentLedger handles GET /v1/payments/:id/ledger.
func (s *Server) GetPaymentLedger(c *gin.Context) {
	paymentID := strings.TrimSpace(c.Param("id"))
	if paymentID == "" {
		AbortWithError(c, newValidationError("id", "required", "payment id is required"))
		return
	}

	ctx := c.Request.Context()
	entries, err := s.ledger.ListByPayment(ctx, paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if len(entries) == 0 {
		AbortWithError(c, ErrNotFound)
		return
	}

	balance, err := s.ledger.PaymentBalance(ctx, paymentID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := paymentLedgerResponse{
		PaymentID: paymentID,
		Currency:  balance.Currency,
		Balance:   balance.Amount,
		Entries:   make([]ledgerEntryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, ledgerEntryResponse{
			ID:            e.ID.String(),
			EntryType:     string(e.EntryType),
			Amount:        e.Amount,
			Currency:      e.Currency,
			CausationID:   e.CausationID,
			CorrelationID: e.CorrelationID,
			CreatedAt:     e.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, resp)
}
