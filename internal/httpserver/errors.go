package httpserver

import (
	"errors"
	"net/http"

	"medius/internal/api"
	"medius/internal/domain"
)

// statusFor maps an error onto the response status of the bridge.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized), errors.Is(err, domain.ErrSignedOut):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, domain.ErrEmptyMessage),
		errors.Is(err, domain.ErrMissingDealID),
		errors.Is(err, domain.ErrInvalidSignedLink):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotConnected),
		errors.Is(err, domain.ErrSendInProgress),
		errors.Is(err, domain.ErrUploadInProgress),
		errors.Is(err, domain.ErrActionInProgress),
		errors.Is(err, domain.ErrActionNotAllowed),
		errors.Is(err, domain.ErrReconnectExhausted):
		return http.StatusConflict
	case errors.Is(err, domain.ErrMissingEndpoint):
		return http.StatusServiceUnavailable
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// errorText prefers the message the Medius API returned.
func errorText(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Error()
	}
	return err.Error()
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": errorText(err)})
}
