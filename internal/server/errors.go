package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	accessdomain "github.com/smallbiznis/railzway-checkout/internal/access/domain"
	checkoutdomain "github.com/smallbiznis/railzway-checkout/internal/checkout/domain"
	pricingdomain "github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

// codeStatus maps public checkout codes onto HTTP statuses.
var codeStatus = map[error]int{
	checkoutdomain.ErrIdempotencyKeyRequired:   http.StatusBadRequest,
	checkoutdomain.ErrSourceIDRequired:         http.StatusBadRequest,
	pricingdomain.ErrInvalidSourceID:           http.StatusBadRequest,
	pricingdomain.ErrSourceTypeNotSupported:    http.StatusBadRequest,
	accessdomain.ErrEventIDRequired:            http.StatusBadRequest,
	pricingdomain.ErrSourceTypeNotAllowedInMVP: http.StatusUnprocessableEntity,
	checkoutdomain.ErrSourceTypeMismatch:       http.StatusUnprocessableEntity,
	pricingdomain.ErrSourceLinesEmpty:          http.StatusUnprocessableEntity,
	pricingdomain.ErrPricingSnapshotInvalid:    http.StatusUnprocessableEntity,
	pricingdomain.ErrSourceNotFound:            http.StatusNotFound,
	pricingdomain.ErrOrganizationNotFound:      http.StatusNotFound,
	accessdomain.ErrInviteTokenRequired:        http.StatusForbidden,
	accessdomain.ErrInviteTokenInvalid:         http.StatusForbidden,
	accessdomain.ErrGuestCheckoutNotAllowed:    http.StatusForbidden,
	accessdomain.ErrAccessDenied:               http.StatusForbidden,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if payload.Code != "" {
			c.Set("error_code", payload.Code)
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Code:    checkoutdomain.ErrInternal.Error(),
			Message: "internal server error",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	for known, status := range codeStatus {
		if errors.Is(err, known) {
			return status, errorPayload{
				Type:    errorType(status),
				Code:    known.Error(),
				Message: known.Error(),
			}
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "invalid request",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Code:    checkoutdomain.ErrInternal.Error(),
			Message: "internal server error",
		}
	}
}

func errorType(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return "validation_error"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusForbidden:
		return "forbidden"
	default:
		return "internal_error"
	}
}
