package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/sharetube/studio/internal/fault"
	"github.com/sharetube/studio/pkg/rest"
)

const (
	tokenHeader = "Studio-Token"
	tokenQuery  = "token"
)

func (c controller) generateTimeBasedId() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (c controller) getToken(r *http.Request) string {
	if token := r.Header.Get(tokenHeader); token != "" {
		return token
	}
	return r.URL.Query().Get(tokenQuery)
}

func (c controller) getIntQueryParam(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func statusFor(code fault.Code) int {
	switch code {
	case fault.NotAuthorized:
		return http.StatusForbidden
	case fault.NotFound:
		return http.StatusNotFound
	}

	switch code.Class() {
	case fault.ClassValidation:
		return http.StatusBadRequest
	case fault.ClassResource, fault.ClassTransient:
		return http.StatusServiceUnavailable
	default:
		return http.StatusConflict
	}
}

func (c controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	fe, ok := fault.As(err)
	if !ok {
		c.logger.ErrorContext(r.Context(), "request failed", "error", err)
		rest.WriteError(w, http.StatusInternalServerError, rest.ErrorBody{
			Code:    "internal",
			Message: "internal error",
		})
		return
	}

	msg := fe.Message
	if cause := errors.Unwrap(fe); cause != nil {
		msg += ": " + cause.Error()
	}

	c.logger.DebugContext(r.Context(), "request rejected", "error", err)
	rest.WriteError(w, statusFor(fe.Code), rest.ErrorBody{
		Code:    string(fe.Code),
		Message: msg,
		State:   fe.State,
	})
}

// readRequest decodes and validates the body into req. An empty body leaves req zero. On
// failure it writes the error response and returns false.
func (c controller) readRequest(w http.ResponseWriter, r *http.Request, req any) bool {
	if err := rest.ReadJSON(r, req); err != nil && !errors.Is(err, rest.ErrEmptyBody) {
		c.logger.DebugContext(r.Context(), "failed to read request", "error", err)
		rest.WriteError(w, http.StatusBadRequest, rest.ErrorBody{
			Code:    string(fault.InvalidArgument),
			Message: err.Error(),
		})
		return false
	}

	if validationErrors, ok := c.validate.Validate(req); !ok {
		c.logger.DebugContext(r.Context(), "request validation failed", "errors", validationErrors)
		rest.WriteError(w, http.StatusBadRequest, rest.ErrorBody{
			Code:    string(fault.InvalidArgument),
			Message: "request validation failed",
			State:   validationErrors,
		})
		return false
	}

	return true
}
