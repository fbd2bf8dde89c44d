package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/paris-agenda/service-promotion/internal/domain"
)

// Envelope is the uniform JSON body for every API response.
type Envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Success writes a 200 with the given payload.
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Envelope{Success: true, Data: data})
}

// Created writes a 201 with the given payload.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Envelope{Success: true, Data: data})
}

// BadRequest writes a 400 with a validation message.
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Envelope{Success: false, Code: string(domain.CodeValidation), Error: message})
}

// Error maps a domain error onto the appropriate HTTP status. Unclassified
// errors become opaque 500s.
func Error(c *gin.Context, err error) {
	var de *domain.DomainError
	if !errors.As(err, &de) {
		c.JSON(http.StatusInternalServerError, Envelope{Success: false, Error: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch de.Code {
	case domain.CodeValidation:
		status = http.StatusBadRequest
	case domain.CodeOverCapacity, domain.CodeConflict:
		status = http.StatusConflict
	case domain.CodeNotFound:
		status = http.StatusNotFound
	case domain.CodeUnauthorized, domain.CodeInvalidToken:
		status = http.StatusUnauthorized
	case domain.CodeNotReady:
		status = http.StatusConflict
	case domain.CodeUnavailable, domain.CodeConfig:
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, Envelope{Success: false, Code: string(de.Code), Error: de.Message})
}
