package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/thetact/tact-backend/internal/core"
	"github.com/thetact/tact-backend/internal/middleware"
	"github.com/thetact/tact-backend/internal/paystack"
)

// mapErrorToStatus maps service errors to HTTP status codes and writes an ErrorResponse.
func mapErrorToStatus(c *gin.Context, logger *zap.Logger, err error) {
	var statusCode int
	var errResponse ErrorResponse
	var rejected *paystack.RejectedError

	switch {
	case errors.Is(err, core.ErrValidation):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: "Invalid request", Details: err.Error()}
	case errors.Is(err, core.ErrInvalidSignature):
		statusCode = http.StatusUnauthorized
		errResponse = ErrorResponse{Error: "Invalid signature"}
	case errors.Is(err, core.ErrMalformedPayload):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: "Malformed webhook payload", Details: err.Error()}
	case errors.Is(err, core.ErrForbidden):
		statusCode = http.StatusForbidden
		errResponse = ErrorResponse{Error: "Forbidden", Details: err.Error()}
	case errors.Is(err, core.ErrOrderNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: "Order not found", Details: err.Error()}
	case errors.Is(err, core.ErrSubscriberNotFound):
		statusCode = http.StatusNotFound
		errResponse = ErrorResponse{Error: "Subscriber not found", Details: err.Error()}
	case errors.Is(err, core.ErrProviderNotConfigured):
		statusCode = http.StatusNotImplemented
		errResponse = ErrorResponse{Error: "Payment provider not configured"}
	case errors.As(err, &rejected):
		statusCode = http.StatusBadRequest
		errResponse = ErrorResponse{Error: rejected.Message}
		logger.Warn("Payment provider rejected request", zap.String("path", rejected.Path), zap.String("provider_response", rejected.Message))
	default:
		logger.Error("Internal server error", zap.String("path", c.FullPath()), zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResponse = ErrorResponse{Error: "An unexpected internal server error occurred."}
	}
	c.JSON(statusCode, errResponse)
}

// bindError answers 400 for a request body that failed binding.
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid request payload", Details: err.Error()})
}

// requireCaller rejects requests whose authenticated uid differs from the uid they act on.
// Without auth middleware no uid is set and every caller is accepted.
func requireCaller(c *gin.Context, uid string) bool {
	caller := c.GetString(middleware.ContextUserID)
	if caller == "" || caller == uid {
		return true
	}
	c.JSON(http.StatusForbidden, ErrorResponse{Error: "Forbidden", Details: "token does not belong to the requested account"})
	return false
}
