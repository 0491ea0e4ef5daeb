package models

import "math"

// VideoStatus represents the lifecycle state of a video.
type VideoStatus string

const (
	StatusProcessing VideoStatus = "processing"
	StatusReady      VideoStatus = "ready"
	StatusError      VideoStatus = "error"
	StatusDeleted    VideoStatus = "deleted"
)

// IsValid returns true if the status is a valid VideoStatus.
func (s VideoStatus) IsValid() bool {
	switch s {
	case StatusProcessing, StatusReady, StatusError, StatusDeleted:
		return true
	}
	return false
}

// IsTerminal returns true if no further transition may leave the status.
func (s VideoStatus) IsTerminal() bool {
	return s == StatusError || s == StatusDeleted
}

// ProviderName identifies which pipeline owns a video.
type ProviderName string

const (
	ProviderInternal ProviderName = "internal"
	ProviderManaged  ProviderName = "managed"
)

// Visibility controls who may discover a video.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityUnlisted Visibility = "unlisted"
	VisibilityPrivate  Visibility = "private"
)

// IsValid returns true if the visibility is one of the known values.
func (v Visibility) IsValid() bool {
	switch v {
	case VisibilityPublic, VisibilityUnlisted, VisibilityPrivate:
		return true
	}
	return false
}

// PendingUpload is the placeholder record for a video whose bytes have not
// finished arriving or encoding. Exactly one of {PendingUpload, Video} exists
// for a given id; promotion replaces this row with a Video atomically.
type PendingUpload struct {
	ID             string       `dynamodbav:"video_id" json:"videoId"`
	OrganizationID string       `dynamodbav:"organization_id" json:"organizationId"`
	Name           string       `dynamodbav:"name" json:"name"`
	Description    string       `dynamodbav:"description,omitempty" json:"description,omitempty"`
	Tags           []string     `dynamodbav:"tags,omitempty" json:"tags,omitempty"`
	Visibility     Visibility   `dynamodbav:"visibility" json:"visibility"`
	Provider       ProviderName `dynamodbav:"provider" json:"provider"`

	// INTERNAL: deterministic storage prefix, fixed at creation.
	AssetKey string `dynamodbav:"asset_key,omitempty" json:"assetKey,omitempty"`

	// MANAGED: external handles, attached as they become known.
	ExternalUploadRef string `dynamodbav:"external_upload_ref,omitempty" json:"externalUploadRef,omitempty"`
	ExternalAssetRef  string `dynamodbav:"external_asset_ref,omitempty" json:"externalAssetRef,omitempty"`

	CreatedAt string `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt string `dynamodbav:"updated_at" json:"updatedAt"`
}

// Video is a finalized, playable asset. Provider is immutable after creation.
type Video struct {
	ID             string       `dynamodbav:"video_id" json:"videoId"`
	OrganizationID string       `dynamodbav:"organization_id" json:"organizationId"`
	Name           string       `dynamodbav:"name" json:"name"`
	Description    string       `dynamodbav:"description,omitempty" json:"description,omitempty"`
	Tags           []string     `dynamodbav:"tags,omitempty" json:"tags,omitempty"`
	Visibility     Visibility   `dynamodbav:"visibility" json:"visibility"`
	Provider       ProviderName `dynamodbav:"provider" json:"provider"`
	Status         VideoStatus  `dynamodbav:"status" json:"status"`

	// INTERNAL fields.
	AssetKey            string `dynamodbav:"asset_key,omitempty" json:"assetKey,omitempty"`
	PlaybackManifestKey string `dynamodbav:"playback_manifest_key,omitempty" json:"playbackManifestKey,omitempty"`
	ThumbnailKey        string `dynamodbav:"thumbnail_key,omitempty" json:"thumbnailKey,omitempty"`

	// MANAGED fields.
	ExternalUploadRef   string `dynamodbav:"external_upload_ref,omitempty" json:"externalUploadRef,omitempty"`
	ExternalAssetRef    string `dynamodbav:"external_asset_ref,omitempty" json:"externalAssetRef,omitempty"`
	ExternalPlaybackRef string `dynamodbav:"external_playback_ref,omitempty" json:"externalPlaybackRef,omitempty"`
	PlaybackURL         string `dynamodbav:"playback_url,omitempty" json:"playbackUrl,omitempty"`
	ThumbnailURL        string `dynamodbav:"thumbnail_url,omitempty" json:"thumbnailUrl,omitempty"`

	DurationSeconds int64  `dynamodbav:"duration_seconds,omitempty" json:"durationSeconds,omitempty"`
	ErrorMessage    string `dynamodbav:"error_message,omitempty" json:"errorMessage,omitempty"`
	CreatedAt       string `dynamodbav:"created_at" json:"createdAt"`
	UpdatedAt       string `dynamodbav:"updated_at" json:"updatedAt"`
}

// RoundDuration converts a provider-reported duration to whole seconds.
func RoundDuration(seconds float64) int64 {
	if seconds <= 0 {
		return 0
	}
	return int64(math.Round(seconds))
}

// TranscodeJob is the queue message that drives the internal encode worker.
// Delivery is at-least-once; Attempt counts prior delivery failures.
type TranscodeJob struct {
	VideoID        string `json:"videoId"`
	OrganizationID string `json:"organizationId"`
	AssetKey       string `json:"assetKey"`
	SourcePath     string `json:"sourcePath"`
	Attempt        int    `json:"attempt"`
}

// Validate checks that the job carries all required fields.
func (j *TranscodeJob) Validate() error {
	if j.VideoID == "" {
		return ErrMissingVideoID
	}
	if j.OrganizationID == "" {
		return ErrMissingOrganizationID
	}
	if j.AssetKey == "" {
		return ErrMissingAssetKey
	}
	if j.SourcePath == "" {
		return ErrMissingSourcePath
	}
	return nil
}
