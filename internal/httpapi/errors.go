package httpapi

import (
	"net/http"

	"dinein/ordering-service/internal/apperr"
)

// mapError returns the status, error code and client message for err. Only
// messages of classified errors reach the client.
func mapError(err error) (int, string, string) {
	appErr, ok := apperr.As(err)
	if !ok {
		return http.StatusInternalServerError, string(apperr.KindInternal), "internal server error"
	}
	switch appErr.Kind {
	case apperr.KindNotFound:
		return http.StatusNotFound, string(appErr.Kind), appErr.Message
	case apperr.KindValidation:
		return http.StatusBadRequest, string(appErr.Kind), appErr.Message
	case apperr.KindConflict:
		return http.StatusConflict, string(appErr.Kind), appErr.Message
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized, string(appErr.Kind), appErr.Message
	case apperr.KindTransient:
		return http.StatusServiceUnavailable, string(appErr.Kind), appErr.Message
	case apperr.KindConfiguration:
		return http.StatusInternalServerError, string(appErr.Kind), appErr.Message
	default:
		return http.StatusInternalServerError, string(apperr.KindInternal), "internal server error"
	}
}
