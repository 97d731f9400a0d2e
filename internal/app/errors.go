package app

import (
	"errors"
	"fmt"
	"net/http"

	"paperpedia/api/internal/article"
	"paperpedia/api/internal/auth"
	"paperpedia/api/internal/export"
	"paperpedia/api/internal/registration"
	"paperpedia/api/internal/store"
	"paperpedia/api/internal/tagquery"
	"paperpedia/api/internal/validation"
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

var errUnauthorized = domainError(http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)

// mapError translates service errors into the HTTP error contract. Anything
// unrecognised becomes a 500 without detail.
func mapError(err error) (status int, code, message string, details any) {
	var (
		domainErr    *DomainError
		validErr     *validation.Error
		duplicate    *store.DuplicateTitleError
		invalidRef   *store.InvalidReferenceError
		malformedErr *tagquery.MalformedQueryError
		pendingErr   *registration.PendingError
		storageErr   *store.StorageError
	)

	switch {
	case errors.As(err, &domainErr):
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	case errors.As(err, &validErr):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Validation failed", validErr.Fields
	case errors.As(err, &duplicate):
		return http.StatusBadRequest, "DUPLICATE_TITLE", duplicate.Error(), map[string]any{"title": duplicate.Title}
	case errors.As(err, &invalidRef):
		return http.StatusBadRequest, "INVALID_REFERENCE", "Referenced articles do not exist", map[string]any{"missing": invalidRef.Missing}
	case errors.As(err, &malformedErr):
		return http.StatusBadRequest, "MALFORMED_QUERY", malformedErr.Error(), nil
	case errors.As(err, &pendingErr):
		return http.StatusConflict, "REGISTRATION_PENDING", pendingErr.Error(), map[string]any{"time_left": pendingErr.Minutes()}
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken), errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrUserNotFound):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, registration.ErrInvalidCredentials):
		return http.StatusUnauthorized, "INVALID_CREDENTIALS", "Invalid email or password", nil
	case errors.Is(err, registration.ErrRecentlyRegistered):
		return http.StatusConflict, "RECENTLY_REGISTERED", "An account was created with this email recently", nil
	case errors.Is(err, registration.ErrEmailInUse), errors.Is(err, store.ErrEmailTaken):
		return http.StatusConflict, "EMAIL_IN_USE", "Email already in use", nil
	case errors.Is(err, registration.ErrInvalidVerification):
		return http.StatusBadRequest, "INVALID_VERIFICATION", "Verification link is invalid or expired", nil
	case errors.Is(err, registration.ErrMailDelivery):
		return http.StatusBadGateway, "MAIL_DELIVERY_FAILED", "Could not send verification email", nil
	case errors.Is(err, article.ErrUnknownVoteAction):
		return http.StatusBadRequest, "INVALID_VOTE", article.ErrUnknownVoteAction.Error(), nil
	case errors.Is(err, store.ErrArticleNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Article not found", nil
	case errors.Is(err, export.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT", "format must be html or pdf", nil
	case errors.Is(err, export.ErrPDFDependencyMissing):
		return http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "PDF export is not available on this server", nil
	case errors.As(err, &storageErr):
		return http.StatusInternalServerError, "STORAGE_ERROR", storageErr.Error(), nil
	default:
		return http.StatusInternalServerError, "INTERNAL", "Internal server error", nil
	}
}
