package domain

import "errors"

var (
	ErrEventIDRequired         = errors.New("EVENT_ID_REQUIRED")
	ErrInviteTokenRequired     = errors.New("INVITE_TOKEN_REQUIRED")
	ErrInviteTokenInvalid      = errors.New("INVITE_TOKEN_INVALID")
	ErrGuestCheckoutNotAllowed = errors.New("GUEST_CHECKOUT_NOT_ALLOWED")
	ErrAccessDenied            = errors.New("ACCESS_DENIED")
)

// ErrorForReason maps an evaluator deny reason onto a gate error.
func ErrorForReason(reason string) error {
	switch reason {
	case ReasonInviteOnly, ErrInviteTokenRequired.Error():
		return ErrInviteTokenRequired
	case ErrInviteTokenInvalid.Error():
		return ErrInviteTokenInvalid
	case ErrGuestCheckoutNotAllowed.Error():
		return ErrGuestCheckoutNotAllowed
	default:
		return ErrAccessDenied
	}
}
