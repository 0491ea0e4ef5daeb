package models

import "errors"

// Sentinel errors for the ingestion and playback pipeline.
var (
	// Validation errors
	ErrMissingVideoID        = errors.New("videoId is required")
	ErrMissingOrganizationID = errors.New("organizationId is required")
	ErrMissingAssetKey       = errors.New("assetKey is required")
	ErrMissingSourcePath     = errors.New("sourcePath is required")
	ErrInvalidVisibility     = errors.New("invalid visibility")
	ErrNameRequired          = errors.New("name is required")
	ErrNameTooLong           = errors.New("name too long")

	// Lookup and access errors
	ErrNotFound     = errors.New("no video or pending upload matches the identifier")
	ErrAccessDenied = errors.New("organization does not own this video")
	ErrConflict     = errors.New("record already exists")

	// Capacity and provider errors
	ErrCapacityExceeded      = errors.New("organization plan limit exceeded")
	ErrProviderUnavailable   = errors.New("provider call failed")
	ErrTokenNotSupported     = errors.New("playback tokens are not supported by this provider")
	ErrProviderNotConfigured = errors.New("managed provider credentials not configured")

	// Token errors
	ErrTokenInvalid  = errors.New("invalid or expired playback token")
	ErrTokenMismatch = errors.New("playback token does not match the requested resource")
)
