package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/lmpeek/internal/protocol"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

// ResponseError is the body of every non-2xx reply, under "error".
type ResponseError struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
}

// statusFor maps a backend error to an HTTP status and error type.
func statusFor(err error) (int, string) {
	if errors.Is(err, ErrInvalidRequest) {
		return http.StatusBadRequest, "invalid_request_error"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "timeout_error"
	}
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		return http.StatusInternalServerError, "server_error"
	}
	switch perr.Kind {
	case protocol.ErrKindModelNotLoaded, protocol.ErrKindTokenizerNotLoaded, protocol.ErrKindModelAlreadyLoaded:
		return http.StatusConflict, string(perr.Kind)
	case protocol.ErrKindInvalidRequest, protocol.ErrKindUnknownAction:
		return http.StatusBadRequest, string(perr.Kind)
	case protocol.ErrKindChannelFailure, protocol.ErrKindDisposed:
		return http.StatusServiceUnavailable, string(perr.Kind)
	default:
		return http.StatusInternalServerError, string(perr.Kind)
	}
}

func writeError(c *echo.Context, err error) error {
	status, typ := statusFor(err)
	msg := err.Error()
	var perr *protocol.Error
	if errors.As(err, &perr) && perr.Message != "" {
		msg = perr.Message
	}
	return c.JSON(status, map[string]any{
		"error": ResponseError{
			Message: msg,
			Type:    typ,
			Code:    requestID(c),
		},
	})
}
