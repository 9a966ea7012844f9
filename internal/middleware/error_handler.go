package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"payment_app_echo/internal/services"
)

type errorBody struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ErrorCode string `json:"errorCode"`
}

// statusForCode maps payment error codes to HTTP status codes
func statusForCode(code string) int {
	switch code {
	case services.CodePaymentNotFound:
		return http.StatusNotFound
	case services.CodeDuplicateRequest,
		services.CodeInvalidStateTransition,
		services.CodeAlreadyCancelled:
		return http.StatusConflict
	case services.CodeAmountMismatch,
		services.CodeInvalidAmount,
		services.CodeInvalidRequest:
		return http.StatusBadRequest
	case services.CodeGatewayError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CustomErrorHandler turns errors into the JSON error envelope. Payment
// errors keep their code and message; everything else becomes a generic 500
// so internal details never reach the client.
func CustomErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		body := errorBody{
			Success:   false,
			Message:   "an unexpected error occurred",
			ErrorCode: services.CodeInternalError,
		}

		var perr *services.PaymentError
		var herr *echo.HTTPError
		switch {
		case errors.As(err, &perr):
			code = statusForCode(perr.Code)
			body.Message = perr.Message
			body.ErrorCode = perr.Code
		case errors.As(err, &herr):
			code = herr.Code
			if msg, ok := herr.Message.(string); ok && msg != "" {
				body.Message = msg
			} else {
				body.Message = http.StatusText(code)
			}
			body.ErrorCode = services.CodeInvalidRequest
			if code >= http.StatusInternalServerError {
				body.ErrorCode = services.CodeInternalError
			}
		}

		if code >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Error(err))
		} else {
			logger.Warn("request rejected",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.String("error_code", body.ErrorCode),
				zap.String("reason", body.Message))
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, body)
	}
}
