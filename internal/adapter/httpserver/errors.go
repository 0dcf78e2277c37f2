package httpserver

import (
	"errors"

	"github.com/pscheid92/peakstream/internal/domain"
	apperrors "github.com/pscheid92/peakstream/internal/platform/errors"
)

var validationErrors = []error{
	domain.ErrInvalidAccount,
	domain.ErrInvalidRate,
	domain.ErrInvalidAmount,
	domain.ErrBelowMinimum,
	domain.ErrInvalidWindow,
	domain.ErrInvalidPaymentRequest,
}

// domainError maps service errors onto API errors. The message of a client
// error is the wrapped error text, which names the offending value.
func domainError(err error, message string) *apperrors.Error {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return apperrors.ValidationError(err.Error())
		}
	}

	switch {
	case errors.Is(err, domain.ErrInsufficientBalance):
		return apperrors.PaymentRequiredError(err.Error(), err)
	case errors.Is(err, domain.ErrSessionNotFound):
		return apperrors.NotFoundError(err.Error())
	case errors.Is(err, domain.ErrTransferFailed), errors.Is(err, domain.ErrLedgerUnavailable):
		return apperrors.ExternalError(message, err)
	default:
		return apperrors.InternalError(message, err)
	}
}
