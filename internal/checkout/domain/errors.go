package domain

import (
	"errors"

	accessdomain "github.com/smallbiznis/railzway-checkout/internal/access/domain"
	pricingdomain "github.com/smallbiznis/railzway-checkout/internal/pricing/domain"
)

var (
	ErrIdempotencyKeyRequired = errors.New("IDEMPOTENCY_KEY_REQUIRED")
	ErrSourceTypeMismatch     = errors.New("SOURCE_TYPE_MISMATCH")
	ErrSourceIDRequired       = errors.New("SOURCE_ID_REQUIRED")
	ErrInternal               = errors.New("INTERNAL_ERROR")
)

var knownErrors = []error{
	ErrIdempotencyKeyRequired,
	ErrSourceTypeMismatch,
	ErrSourceIDRequired,
	pricingdomain.ErrSourceTypeNotSupported,
	pricingdomain.ErrSourceTypeNotAllowedInMVP,
	pricingdomain.ErrSourceNotFound,
	pricingdomain.ErrSourceLinesEmpty,
	pricingdomain.ErrOrganizationNotFound,
	pricingdomain.ErrInvalidSourceID,
	pricingdomain.ErrPricingSnapshotInvalid,
	accessdomain.ErrEventIDRequired,
	accessdomain.ErrInviteTokenRequired,
	accessdomain.ErrInviteTokenInvalid,
	accessdomain.ErrGuestCheckoutNotAllowed,
	accessdomain.ErrAccessDenied,
}

// ErrorCode returns the public code carried by err, or INTERNAL_ERROR.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return ErrInternal.Error()
}

// IsClientError reports whether err carries a known public code.
func IsClientError(err error) bool {
	code := ErrorCode(err)
	return code != "" && code != ErrInternal.Error()
}
