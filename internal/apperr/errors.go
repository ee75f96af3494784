// Package apperr holds sentinel errors shared by the service surfaces.
package apperr

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrNoCredential  = errors.New("ai search credential not configured")
	ErrSearchFailed  = errors.New("ai search failed")
	ErrUnknownFormat = errors.New("unknown export format")
)
