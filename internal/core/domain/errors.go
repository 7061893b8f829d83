package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrUnsupportedFormat   = errors.New("unsupported file format")
	ErrFileTooLarge        = errors.New("file too large")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrDeadlinePassed      = errors.New("submission deadline passed")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrConflict            = errors.New("conflict")
	ErrNoVersions          = errors.New("submission has no versions")
	ErrConversionFailed    = errors.New("conversion failed")
	ErrMissingStoredFile   = errors.New("stored file missing")
	ErrTemporary           = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsValidation reports whether err was caused by caller input and mutated nothing.
func IsValidation(err error) bool {
	return IsKind(err, ErrInvalidInput) ||
		IsKind(err, ErrUnsupportedFormat) ||
		IsKind(err, ErrFileTooLarge) ||
		IsKind(err, ErrDuplicateSubmission)
}

// ConversionFailedError carries the diagnostic output of the conversion engine.
type ConversionFailedError struct {
	Source      string
	ExitCode    int
	Diagnostics string
	Err         error
}

func (e *ConversionFailedError) Error() string {
	msg := fmt.Sprintf("convert %s: exit code %d", e.Source, e.ExitCode)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Diagnostics != "" {
		msg += ": " + e.Diagnostics
	}
	return msg
}

func (e *ConversionFailedError) Unwrap() error { return e.Err }

func (e *ConversionFailedError) Is(target error) bool { return target == ErrConversionFailed }

// MissingStoredFileError marks a file that is referenced in the database but absent in storage.
type MissingStoredFileError struct {
	SubmissionID int64  `json:"submission_id"`
	Key          string `json:"key"`
}

func (e *MissingStoredFileError) Error() string {
	return fmt.Sprintf("submission %d: stored file %q is missing", e.SubmissionID, e.Key)
}

func (e *MissingStoredFileError) Is(target error) bool { return target == ErrMissingStoredFile }
