// Package domain errors.go contains sentinel errors
package domain

import "errors"

// Sentinel domain-level errors reused by higher layers. Every acquisition
// failure is terminal for the call that produced it.
var (
	ErrInvalidID        = errors.New("invalid id")
	ErrInvalidOption    = errors.New("invalid option")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNoFileFound      = errors.New("no file found")
	ErrUserCancelled    = errors.New("user cancelled")
	ErrDecode           = errors.New("unable to process bitmap")
	ErrFileSave         = errors.New("image file save error")
	ErrNotFound         = errors.New("not found")
	ErrTooLarge         = errors.New("size exceeded")
	ErrUnknownCall      = errors.New("unknown call")
	ErrUnexpectedEvent  = errors.New("unexpected event")
)
