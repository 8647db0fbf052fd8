// Package apperr defines sentinel errors shared across the application.
package apperr

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrValidation       = errors.New("validation failed")
	ErrConfigMissing    = errors.New("api key or url not configured")
	ErrLastTemplate     = errors.New("cannot delete the last remaining template")
	ErrSaveInProgress   = errors.New("save already in progress")
	ErrUploadFailed     = errors.New("upload failed")
	ErrUploadInProgress = errors.New("upload already in progress")
)
