package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"enrollment-service/internal/service"
	"enrollment-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// errorResponse is the failure envelope
type errorResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Error   *ErrorDetail `json:"error"`
}

func respondError(c *gin.Context, status int, code, message string, details interface{}) {
	c.AbortWithStatusJSON(status, errorResponse{
		Success: false,
		Message: message,
		Error: &ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

func badRequest(c *gin.Context, message string, details interface{}) {
	respondError(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func unauthorized(c *gin.Context, message string) {
	respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func forbidden(c *gin.Context, message string) {
	respondError(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

// writeError maps a service error to its HTTP status. Internal error text
// is only exposed outside production.
func (h *Handler) writeError(c *gin.Context, err error) {
	svcErr, ok := service.AsError(err)
	if !ok {
		svcErr = &service.Error{Kind: service.KindInternal, Message: "Internal server error", Err: err}
	}

	status := statusFor(svcErr)
	if status >= http.StatusInternalServerError {
		util.GetLogger().Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.String("kind", svcErr.Kind.String()),
			zap.Error(err))
	}

	var details interface{}
	if !h.production && svcErr.Err != nil && status >= http.StatusInternalServerError {
		details = svcErr.Err.Error()
	}
	respondError(c, status, svcErr.Kind.String(), svcErr.Message, details)
}

func statusFor(e *service.Error) int {
	switch e.Kind {
	case service.KindValidation, service.KindVerification:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindConflict:
		if errors.Is(e, service.ErrAlreadyEnrolled) {
			return http.StatusBadRequest
		}
		return http.StatusConflict
	case service.KindForbidden:
		return http.StatusForbidden
	case service.KindUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// bindError reports a body that failed to decode or validate
func bindError(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		badRequest(c, "Validation failed", formatValidationErrors(verrs))
		return
	}
	badRequest(c, "Invalid request body", err.Error())
}

// formatValidationErrors converts validation errors to a user-friendly format
func formatValidationErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, e := range verrs {
		field := strings.ToLower(e.Field())
		switch e.Tag() {
		case "required":
			out[field] = fmt.Sprintf("%s is required", e.Field())
		case "email":
			out[field] = "Invalid email format"
		case "min":
			out[field] = fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param())
		case "max":
			out[field] = fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
		default:
			out[field] = fmt.Sprintf("%s is invalid", e.Field())
		}
	}
	return out
}
