// Package v1handler implements the v1 users API: the operations, their JSON
// codec, bearer authentication and the mapping of semantic errors to HTTP
// responses.
package v1handler

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"

	"usermgmt/internal/users"
	"usermgmt/pkg/logger"
	"usermgmt/pkg/serrors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Deps are the services the handler delegates to.
type Deps struct {
	Users users.Service
}

type Handler struct {
	users    users.Service
	validate *validator.Validate
}

func New(deps Deps) *Handler {
	validate := validator.New(validator.WithRequiredStructEnabled())
	// report fields by their wire names
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}

		return name
	})

	return &Handler{
		users:    deps.Users,
		validate: validate,
	}
}

// Error is the JSON body of every failed request.
type Error struct {
	Code    string
	Message string
}

// ErrorResponse pairs an Error with its HTTP status code.
type ErrorResponse struct {
	StatusCode int
	Response   Error
}

var statusByKind = map[serrors.Kind]int{ //nolint: gochecknoglobals
	serrors.ErrNotFound:        http.StatusNotFound,
	serrors.ErrUnauthorized:    http.StatusUnauthorized,
	serrors.ErrForbidden:       http.StatusForbidden,
	serrors.ErrBadRequest:      http.StatusBadRequest,
	serrors.ErrInvalidArgument: http.StatusBadRequest,
	serrors.ErrConflict:        http.StatusConflict,
	serrors.ErrTimeout:         http.StatusGatewayTimeout,
	serrors.ErrUnavailable:     http.StatusServiceUnavailable,
	serrors.ErrRateLimited:     http.StatusTooManyRequests,
}

// NewError converts err into the response sent to the client. Errors without
// a known semantic kind are logged and reported as internal errors without
// leaking their details.
func (h *Handler) NewError(ctx context.Context, err error) *ErrorResponse {
	kind := serrors.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		logger.Error(ctx, "internal error", zap.Error(err))

		return &ErrorResponse{
			StatusCode: http.StatusInternalServerError,
			Response: Error{
				Code:    serrors.ErrInternal.Error(),
				Message: "internal error",
			},
		}
	}

	var message string
	var semantic *serrors.Error
	if errors.As(err, &semantic) {
		message = semantic.Message()
	}
	if message == "" {
		switch kind {
		case serrors.ErrNotFound:
			message = "resource not found"
		default:
			message = strings.ToLower(http.StatusText(status))
		}
	}

	logger.Debug(ctx, "request failed", zap.Int("status", status), zap.Error(err))

	return &ErrorResponse{
		StatusCode: status,
		Response: Error{
			Code:    kind.Error(),
			Message: message,
		},
	}
}
