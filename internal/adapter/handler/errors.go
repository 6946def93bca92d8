package handler

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	"github.com/rl1809/campus-order/internal/core/domain"
)

func httpStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrPaymentVerificationFailed):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrStockConflict),
		errors.Is(err, domain.ErrCartPolicyConflict),
		errors.Is(err, domain.ErrStateConflict),
		errors.Is(err, domain.ErrReportConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func grpcCode(err error) codes.Code {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, domain.ErrValidation):
		return codes.InvalidArgument
	case errors.Is(err, domain.ErrPaymentVerificationFailed):
		return codes.PermissionDenied
	case errors.Is(err, domain.ErrStockConflict),
		errors.Is(err, domain.ErrReportConflict):
		return codes.Aborted
	case errors.Is(err, domain.ErrCartPolicyConflict),
		errors.Is(err, domain.ErrStateConflict):
		return codes.FailedPrecondition
	default:
		return codes.Internal
	}
}
