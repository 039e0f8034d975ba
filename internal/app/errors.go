package app

import (
	"errors"
	"fmt"
	"net/http"

	"retro/api/internal/auth"
	"retro/api/internal/export"
	"retro/api/internal/store"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func invalidArgument(message string) *DomainError {
	return domainError(http.StatusBadRequest, "INVALID_ARGUMENT", message, nil)
}

var (
	errAccessDenied        = domainError(http.StatusForbidden, "FORBIDDEN", "Access denied", nil)
	errFacilitatorRequired = domainError(http.StatusForbidden, "FORBIDDEN", "Facilitator access required", nil)
	errSessionNotFound     = domainError(http.StatusNotFound, "NOT_FOUND", "Session not found", nil)
)

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, auth.ErrRevokedToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Invalid or expired token", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "INVALID_ARGUMENT", "Unsupported export format", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
