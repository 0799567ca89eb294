package transport

import (
	"errors"
	"net/http"

	"github.com/emberchat/ember/internal/authservice"
	"github.com/emberchat/ember/internal/messageservice"
	"github.com/emberchat/ember/internal/registry"
	"github.com/emberchat/ember/internal/roomservice"
	"github.com/emberchat/ember/internal/searchservice"
	"github.com/emberchat/ember/internal/store"
)

// statusFor maps a service-layer error to the HTTP status code the
// REST and WebSocket boundary should report for it.
func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}

	if kind, ok := authservice.KindOf(err); ok {
		switch kind {
		case authservice.KindInvalidCredentials, authservice.KindSessionExpired:
			return http.StatusUnauthorized
		case authservice.KindRegistrationDisabled:
			return http.StatusForbidden
		case authservice.KindEmailTaken:
			return http.StatusConflict
		case authservice.KindValidation:
			return http.StatusBadRequest
		default:
			return http.StatusInternalServerError
		}
	}

	if kind, ok := roomservice.KindOf(err); ok {
		switch kind {
		case roomservice.KindNotFound:
			return http.StatusNotFound
		case roomservice.KindForbidden, roomservice.KindDirectRoomClosed:
			return http.StatusForbidden
		case roomservice.KindAlreadyMember, roomservice.KindValidation:
			return http.StatusBadRequest
		default:
			return http.StatusInternalServerError
		}
	}

	if kind, ok := messageservice.KindOf(err); ok {
		switch kind {
		case messageservice.KindAuthorization:
			return http.StatusForbidden
		case messageservice.KindInvalidContent, messageservice.KindContentTooLong, messageservice.KindContentTooShort:
			return http.StatusBadRequest
		case messageservice.KindRateLimit:
			return http.StatusTooManyRequests
		case messageservice.KindNotFound:
			return http.StatusNotFound
		default:
			return http.StatusInternalServerError
		}
	}

	if kind, ok := searchservice.KindOf(err); ok {
		switch kind {
		case searchservice.KindInvalidQuery, searchservice.KindQueryTooShort, searchservice.KindQueryTooLong:
			return http.StatusBadRequest
		case searchservice.KindRoomAccess:
			return http.StatusForbidden
		default:
			return http.StatusInternalServerError
		}
	}

	if errors.Is(err, registry.ErrConnectionLimitExceeded) || errors.Is(err, registry.ErrNoConnections) {
		return http.StatusConflict
	}
	if errors.Is(err, registry.ErrNotFound) {
		return http.StatusNotFound
	}

	if store.IsNotFound(err) {
		return http.StatusNotFound
	}
	if store.IsConstraintViolation(err) {
		return http.StatusConflict
	}

	return http.StatusInternalServerError
}
