package httpadapter

import (
	"errors"
	"net/http"

	"github.com/kirillkom/conference-proceedings/internal/core/domain"
)

// Specific kinds come before the generic ones they overlap with.
func mapErrorToHTTPStatus(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr), domain.IsKind(err, domain.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case domain.IsKind(err, domain.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case domain.IsKind(err, domain.ErrDuplicateSubmission),
		domain.IsKind(err, domain.ErrConflict),
		domain.IsKind(err, domain.ErrNoVersions):
		return http.StatusConflict
	case domain.IsKind(err, domain.ErrDeadlinePassed), domain.IsKind(err, domain.ErrForbidden):
		return http.StatusForbidden
	case domain.IsKind(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case domain.IsKind(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case domain.IsKind(err, domain.ErrNotFound), domain.IsKind(err, domain.ErrMissingStoredFile):
		return http.StatusNotFound
	case domain.IsKind(err, domain.ErrConversionFailed):
		return http.StatusBadGateway
	case domain.IsKind(err, domain.ErrTemporary):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

var errorKindLabels = []struct {
	kind  error
	label string
}{
	{domain.ErrFileTooLarge, "file_too_large"},
	{domain.ErrUnsupportedFormat, "unsupported_format"},
	{domain.ErrDuplicateSubmission, "duplicate_submission"},
	{domain.ErrNoVersions, "no_versions"},
	{domain.ErrConflict, "conflict"},
	{domain.ErrDeadlinePassed, "deadline_passed"},
	{domain.ErrForbidden, "forbidden"},
	{domain.ErrInvalidInput, "invalid_input"},
	{domain.ErrUnauthorized, "unauthorized"},
	{domain.ErrMissingStoredFile, "missing_stored_file"},
	{domain.ErrNotFound, "not_found"},
	{domain.ErrConversionFailed, "conversion_failed"},
	{domain.ErrTemporary, "temporary"},
}

// errorKindLabel names the domain error kind for the access log.
func errorKindLabel(err error) string {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return "file_too_large"
	}
	for _, entry := range errorKindLabels {
		if domain.IsKind(err, entry.kind) {
			return entry.label
		}
	}
	return "internal"
}
