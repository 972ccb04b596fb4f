// Package domain permission.go models the host permission aliases and states.
package domain

import "fmt"

// PermissionAlias names a capability group the host grants as a unit.
type PermissionAlias string

const (
	PermissionCamera      PermissionAlias = "camera"
	PermissionPhotos      PermissionAlias = "photos"
	PermissionSaveGallery PermissionAlias = "saveGallery"
)

// AllPermissions lists every alias in reporting order.
func AllPermissions() []PermissionAlias {
	return []PermissionAlias{PermissionCamera, PermissionPhotos, PermissionSaveGallery}
}

// ParsePermissionAlias validates a caller-supplied alias.
func ParsePermissionAlias(s string) (PermissionAlias, error) {
	switch a := PermissionAlias(s); a {
	case PermissionCamera, PermissionPhotos, PermissionSaveGallery:
		return a, nil
	}
	return "", fmt.Errorf("%w: permission %q", ErrInvalidOption, s)
}

// PermissionState is the host-reported state of an alias.
type PermissionState string

const (
	PermissionGranted             PermissionState = "granted"
	PermissionLimited             PermissionState = "limited"
	PermissionDenied              PermissionState = "denied"
	PermissionPrompt              PermissionState = "prompt"
	PermissionPromptWithRationale PermissionState = "prompt-with-rationale"
)

// ParsePermissionState validates a host-reported state.
func ParsePermissionState(s string) (PermissionState, error) {
	switch st := PermissionState(s); st {
	case PermissionGranted, PermissionLimited, PermissionDenied, PermissionPrompt, PermissionPromptWithRationale:
		return st, nil
	}
	return "", fmt.Errorf("%w: permission state %q", ErrInvalidOption, s)
}

// Granted reports whether the state allows acquisition. Limited library
// access still lets the user pick from the subset they shared.
func (s PermissionState) Granted() bool {
	return s == PermissionGranted || s == PermissionLimited
}

// RequiredPermissions returns the aliases a source needs before launch.
// Prompt has no requirement of its own; it is gated after the user chooses.
func RequiredPermissions(src Source, saveToGallery bool) []PermissionAlias {
	switch src {
	case SourceCamera:
		if saveToGallery {
			return []PermissionAlias{PermissionCamera, PermissionSaveGallery}
		}
		return []PermissionAlias{PermissionCamera}
	case SourcePhotos:
		return []PermissionAlias{PermissionPhotos}
	}
	return nil
}
