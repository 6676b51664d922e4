package domain

import "errors"

var (
	ErrSourceTypeNotSupported    = errors.New("SOURCE_TYPE_NOT_SUPPORTED")
	ErrSourceTypeNotAllowedInMVP = errors.New("SOURCE_TYPE_NOT_ALLOWED_IN_MVP")
	ErrSourceNotFound            = errors.New("SOURCE_NOT_FOUND")
	ErrSourceLinesEmpty          = errors.New("SOURCE_LINES_EMPTY")
	ErrOrganizationNotFound      = errors.New("ORGANIZATION_NOT_FOUND")
	ErrInvalidSourceID           = errors.New("INVALID_SOURCE_ID")
	ErrPricingSnapshotInvalid    = errors.New("PRICING_SNAPSHOT_INVALID")
)
