// Package apperr define a taxonomia de erros exposta pela camada HTTP.
// Erros operacionais são esperados e retornam mensagem limpa ao cliente;
// erros não-operacionais são logados com detalhe e mascarados em produção.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

type Error struct {
	Code        string `json:"code"`
	Status      int    `json:"-"`
	Message     string `json:"message"`
	Operational bool   `json:"-"`
	cause       error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Validation cria um erro de validação (400, operacional)
func Validation(msg string) *Error {
	return &Error{Code: "VALIDATION_ERROR", Status: http.StatusBadRequest, Message: msg, Operational: true}
}

// NotFound cria um erro de recurso não encontrado (404, operacional)
func NotFound(msg string) *Error {
	return &Error{Code: "NOT_FOUND", Status: http.StatusNotFound, Message: msg, Operational: true}
}

// Unavailable cria um erro de dependência indisponível (503, operacional)
func Unavailable(msg string, cause error) *Error {
	return &Error{Code: "SERVICE_UNAVAILABLE", Status: http.StatusServiceUnavailable, Message: msg, Operational: true, cause: cause}
}

// TooManyRequests cria um erro de throttling (429, operacional).
// RetryAfterSeconds é anotado pelo rate limiter.
func TooManyRequests(msg string) *Error {
	return &Error{Code: "RATE_LIMITED", Status: http.StatusTooManyRequests, Message: msg, Operational: true}
}

// Internal cria um erro inesperado (500, não-operacional)
func Internal(cause error) *Error {
	return &Error{Code: "INTERNAL_SERVER_ERROR", Status: http.StatusInternalServerError, Message: "internal server error", cause: cause}
}

// From normaliza qualquer erro para *Error; erros desconhecidos viram Internal
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}
