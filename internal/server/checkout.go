package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	checkoutdomain "github.com/smallbiznis/railzway-checkout/internal/checkout/domain"
	pricingdomain "github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
	"go.uber.org/zap"
)

const idempotencyKeyHeader = "Idempotency-Key"

type createCheckoutRequest struct {
	SourceType          string  `json:"sourceType"`
	SourceID            string  `json:"sourceId"`
	IdempotencyKey      string  `json:"idempotencyKey"`
	PaymentID           *string `json:"paymentId"`
	BuyerIdentityRef    *string `json:"buyerIdentityRef"`
	InviteToken         *string `json:"inviteToken"`
	PricingSnapshotHash *string `json:"pricingSnapshotHash"`
}

type createCheckoutResponse struct {
	PaymentID           string  `json:"paymentId"`
	Status              string  `json:"status"`
	ClientSecret        *string `json:"clientSecret"`
	PricingSnapshotHash *string `json:"pricingSnapshotHash"`
	Replayed            bool    `json:"replayed"`
}

// CreateCheckout handles POST /v1/checkouts.
func (s *Server) CreateCheckout(c *gin.Context) {
	var req createCheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	key := strings.TrimSpace(c.GetHeader(idempotencyKeyHeader))
	if key == "" {
		key = strings.TrimSpace(req.IdempotencyKey)
	}

	out, err := s.checkout.CreateCheckout(c.Request.Context(), checkoutdomain.CreateCheckoutInput{
		SourceType:          pricingdomain.ParseSourceType(req.SourceType),
		SourceID:            req.SourceID,
		IdempotencyKey:      key,
		PaymentID:           req.PaymentID,
		BuyerIdentityRef:    req.BuyerIdentityRef,
		InviteToken:         req.InviteToken,
		PricingSnapshotHash: req.PricingSnapshotHash,
	})
	if err != nil {
		if !checkoutdomain.IsClientError(err) {
			s.log.Error("create checkout failed",
				zap.String("source_type", req.SourceType),
				zap.String("source_id", req.SourceID),
				zap.Error(err),
			)
		}
		AbortWithError(c, err)
		return
	}

	status := http.StatusCreated
	if out.Replayed {
		status = http.StatusOK
	}
	c.JSON(status, createCheckoutResponse{
		PaymentID:           out.PaymentID,
		Status:              string(out.Status),
		ClientSecret:        out.ClientSecret,
		PricingSnapshotHash: out.PricingSnapshotHash,
		Replayed:            out.Replayed,
	})
}
