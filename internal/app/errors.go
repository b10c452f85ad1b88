package app

import (
	"fmt"
	"net/http"
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

var (
	errInvalidJSON       = domainError(http.StatusBadRequest, "INVALID_JSON", "Invalid JSON", nil)
	errMissingRepository = domainError(http.StatusBadRequest, "MISSING_REPOSITORY", "Missing repository info", nil)
	errProjectNotFound   = domainError(http.StatusNotFound, "PROJECT_NOT_FOUND", "Project not found", nil)
	errMissingSignature  = domainError(http.StatusUnauthorized, "MISSING_SIGNATURE", "Missing signature", nil)
	errInvalidSignature  = domainError(http.StatusUnauthorized, "INVALID_SIGNATURE", "Invalid signature", nil)
	errSearchDisabled    = domainError(http.StatusServiceUnavailable, "SEARCH_DISABLED", "Search is not configured", nil)
	errUnauthorized      = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
)
