// Package provider defines the capability contract the ingestion pipeline is
// built against and its two first-party adapters: the self-hosted internal
// pipeline and the external managed encoding service.
package provider

import (
	"context"
	"io"
	"time"

	"github.com/reelworks/vod-pipeline/internal/auth"
	"github.com/reelworks/vod-pipeline/internal/managed"
	"github.com/reelworks/vod-pipeline/internal/storage"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

// CreateUploadParams describes an upload URL request.
type CreateUploadParams struct {
	OrganizationID     string
	Name               string
	Description        string
	Tags               []string
	Visibility         models.Visibility
	ExpectedSizeBytes  int64
	MaxDurationSeconds int64
}

// CreateUploadResult is the upload target handed back to the caller.
type CreateUploadResult struct {
	UploadURL string
	VideoID   string
	ExpiresAt time.Time
}

// StatusSnapshot is a point-in-time view of a video's state.
type StatusSnapshot struct {
	VideoID         string              `json:"videoId"`
	Status          models.VideoStatus  `json:"status"`
	Ready           bool                `json:"ready"`
	Provider        models.ProviderName `json:"provider,omitempty"`
	PlaybackURL     string              `json:"playbackUrl,omitempty"`
	ThumbnailURL    string              `json:"thumbnailUrl,omitempty"`
	DurationSeconds int64               `json:"durationSeconds,omitempty"`
	ErrorMessage    string              `json:"errorMessage,omitempty"`
}

// Provider is the closed capability contract both adapters satisfy. Only the
// two first-party implementations exist; there is no plugin registry.
type Provider interface {
	Name() models.ProviderName
	CreateUploadURL(ctx context.Context, params CreateUploadParams) (*CreateUploadResult, error)
	GetVideoStatus(ctx context.Context, identifier, organizationID string) (*StatusSnapshot, error)
	StartTranscode(ctx context.Context, videoID, organizationID string) error
	GeneratePlaybackToken(ctx context.Context, videoID, organizationID string) (*auth.PlaybackToken, error)
	DeleteVideo(ctx context.Context, videoID, organizationID string) error
	TestConnection(ctx context.Context, organizationID string) error
}

// Repository is the database surface the adapters and orchestrator need.
// Implemented by storage.Repository; faked in tests.
type Repository interface {
	CreatePendingUpload(ctx context.Context, pu *models.PendingUpload) error
	GetPendingUpload(ctx context.Context, id string) (*models.PendingUpload, error)
	DeletePendingUpload(ctx context.Context, pu *models.PendingUpload) error
	AttachPendingRefs(ctx context.Context, id, uploadRef, assetRef string) error
	CreateVideo(ctx context.Context, v *models.Video) error
	GetVideo(ctx context.Context, id string) (*models.Video, error)
	PromotePendingUpload(ctx context.Context, v *models.Video) error
	UpdateVideoPlayback(ctx context.Context, v *models.Video) error
	UpdateVideoStatus(ctx context.Context, id string, status models.VideoStatus, errorMessage string) error
	DeleteVideo(ctx context.Context, v *models.Video) error
	FindVideoByExtRef(ctx context.Context, ref string) (*models.Video, error)
	FindPendingByExtRef(ctx context.Context, ref string) (*models.PendingUpload, error)
	Resolve(ctx context.Context, identifier string) (*models.Video, *models.PendingUpload, error)
	ListVideos(ctx context.Context, organizationID string, limit int32) ([]models.Video, error)
}

// ObjectStore is the object-storage surface the internal pipeline needs.
// Implemented by storage.S3Client; faked in tests.
type ObjectStore interface {
	PresignPut(ctx context.Context, key, contentType string, lifetime time.Duration) (string, error)
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, lifetime time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) error
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	MultipartSize(ctx context.Context, key, uploadID string) (int64, error)
	PrefixSize(ctx context.Context, prefix string) (int64, error)
	DeletePrefix(ctx context.Context, prefix string) error
	GetObject(ctx context.Context, key string) (io.ReadCloser, string, error)
	HeadBucket(ctx context.Context) error
}

// JobQueue is the transcode queue surface. Implemented by queue.Client.
type JobQueue interface {
	Enqueue(ctx context.Context, job *models.TranscodeJob) error
	Requeue(ctx context.Context, job *models.TranscodeJob) error
	Depth(ctx context.Context) (int, error)
}

// TokenIssuer issues playback tokens. Implemented by auth.PlaybackTokenService.
type TokenIssuer interface {
	Issue(videoID, organizationID string) (*auth.PlaybackToken, error)
	TTL() time.Duration
}

// CapacityChecker enforces plan limits before resources are allocated.
// Implemented by plan.Checker.
type CapacityChecker interface {
	CheckUpload(organizationID string, sizeBytes, durationSeconds int64) error
}

// ManagedAPI is the external managed service surface. Implemented by
// managed.Client; faked in tests.
type ManagedAPI interface {
	CreateDirectUpload(ctx context.Context, videoID, corsOrigin string, timeout time.Duration) (*managed.DirectUpload, error)
	GetUpload(ctx context.Context, uploadID string) (*managed.DirectUpload, error)
	GetAsset(ctx context.Context, assetID string) (*managed.Asset, error)
	DeleteAsset(ctx context.Context, assetID string) error
	Ping(ctx context.Context) error
	PlaybackURL(playbackRef string) string
	ThumbnailURL(playbackRef string) string
}
