package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ravenmill/tracker-backend/internal/domain"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.JSON(status, ErrorEnvelope{
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

// RespondDomainError maps a domain error code onto an HTTP status.
func RespondDomainError(c *gin.Context, err error) {
	code := domain.CodeOf(err)
	status := http.StatusInternalServerError
	switch code {
	case domain.CodeValidation:
		status = http.StatusBadRequest
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeConflict, domain.CodeInvariantViolation, domain.CodeAlreadyApplied:
		status = http.StatusConflict
	case domain.CodeUnavailable:
		status = http.StatusServiceUnavailable
	}
	RespondError(c, status, string(code), err)
}
