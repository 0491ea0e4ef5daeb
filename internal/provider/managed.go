package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reelworks/vod-pipeline/internal/auth"
	"github.com/reelworks/vod-pipeline/internal/managed"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

// Managed implements the provider contract by delegating upload and encoding
// to the external managed service. Completion arrives via webhooks handled by
// the ingest reconciler, not by this adapter.
type Managed struct {
	repo       Repository
	api        ManagedAPI
	capacity   CapacityChecker
	uploadTTL  time.Duration
	corsOrigin string
	log        *slog.Logger
}

// ManagedConfig holds dependencies for the managed provider.
type ManagedConfig struct {
	Repository Repository
	API        ManagedAPI
	Capacity   CapacityChecker
	UploadTTL  time.Duration
	CORSOrigin string
	Logger     *slog.Logger
}

// NewManaged creates the managed provider.
func NewManaged(cfg ManagedConfig) *Managed {
	return &Managed{
		repo:       cfg.Repository,
		api:        cfg.API,
		capacity:   cfg.Capacity,
		uploadTTL:  cfg.UploadTTL,
		corsOrigin: cfg.CORSOrigin,
		log:        cfg.Logger,
	}
}

// Name returns the provider name.
func (p *Managed) Name() models.ProviderName {
	return models.ProviderManaged
}

// CreateUploadURL records the pending upload, then opens a direct-upload
// session on the managed service and attaches its references. As with the
// internal adapter, the row outlives a failed URL acquisition.
func (p *Managed) CreateUploadURL(ctx context.Context, params CreateUploadParams) (*CreateUploadResult, error) {
	if err := p.capacity.CheckUpload(params.OrganizationID, params.ExpectedSizeBytes, params.MaxDurationSeconds); err != nil {
		return nil, err
	}

	videoID := uuid.New().String()
	pu := &models.PendingUpload{
		ID:             videoID,
		OrganizationID: params.OrganizationID,
		Name:           params.Name,
		Description:    params.Description,
		Tags:           params.Tags,
		Visibility:     params.Visibility,
		Provider:       models.ProviderManaged,
	}
	if err := p.repo.CreatePendingUpload(ctx, pu); err != nil {
		return nil, err
	}

	upload, err := p.api.CreateDirectUpload(ctx, videoID, p.corsOrigin, p.uploadTTL)
	if err != nil {
		p.log.ErrorContext(ctx, "Direct upload creation failed after pending upload was created; caller should retry with a fresh request",
			"videoId", videoID,
			"error", err,
		)
		return nil, err
	}

	if err := p.repo.AttachPendingRefs(ctx, videoID, upload.ID, upload.AssetID); err != nil {
		return nil, err
	}

	return &CreateUploadResult{
		UploadURL: upload.URL,
		VideoID:   videoID,
		ExpiresAt: time.Now().Add(p.uploadTTL),
	}, nil
}

// GetVideoStatus resolves any known identifier (video id, upload reference,
// or asset reference) to a status snapshot.
func (p *Managed) GetVideoStatus(ctx context.Context, identifier, organizationID string) (*StatusSnapshot, error) {
	video, pending, err := p.repo.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if video != nil {
		if video.OrganizationID != organizationID {
			return nil, models.ErrAccessDenied
		}
		return &StatusSnapshot{
			VideoID:         video.ID,
			Status:          video.Status,
			Ready:           video.Status == models.StatusReady,
			Provider:        video.Provider,
			PlaybackURL:     video.PlaybackURL,
			ThumbnailURL:    video.ThumbnailURL,
			DurationSeconds: video.DurationSeconds,
			ErrorMessage:    video.ErrorMessage,
		}, nil
	}

	if pending.OrganizationID != organizationID {
		return nil, models.ErrAccessDenied
	}
	snap := &StatusSnapshot{
		VideoID:  pending.ID,
		Status:   models.StatusProcessing,
		Provider: pending.Provider,
	}
	// A webhook may not have arrived yet; polling the upload session catches
	// sessions that already failed or were cancelled upstream. Poll errors
	// leave the snapshot at processing.
	if pending.ExternalUploadRef != "" {
		upload, err := p.api.GetUpload(ctx, pending.ExternalUploadRef)
		if err != nil {
			p.log.WarnContext(ctx, "Failed to poll upload session status",
				"videoId", pending.ID,
				"error", err,
			)
			return snap, nil
		}
		switch upload.Status {
		case managed.UploadStatusErrored, managed.UploadStatusTimedOut:
			snap.Status = models.StatusError
			snap.ErrorMessage = "upload session " + upload.Status
		case managed.UploadStatusCanceled:
			snap.Status = models.StatusDeleted
		}
	}
	return snap, nil
}

// StartTranscode is a no-op: the managed service transcodes automatically on
// upload. Reporting success keeps callers provider-agnostic.
func (p *Managed) StartTranscode(ctx context.Context, videoID, organizationID string) error {
	return nil
}

// GeneratePlaybackToken is not supported: managed playback is public by URL.
func (p *Managed) GeneratePlaybackToken(ctx context.Context, videoID, organizationID string) (*auth.PlaybackToken, error) {
	return nil, models.ErrTokenNotSupported
}

// DeleteVideo removes the external asset, then the local row. Unknown assets
// and missing rows are success, so repeated deletes never fail.
func (p *Managed) DeleteVideo(ctx context.Context, videoID, organizationID string) error {
	video, pending, err := p.repo.Resolve(ctx, videoID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	if video != nil {
		if video.OrganizationID != organizationID {
			return models.ErrAccessDenied
		}
		if video.ExternalAssetRef != "" {
			if err := p.api.DeleteAsset(ctx, video.ExternalAssetRef); err != nil {
				return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
			}
		}
		return p.repo.DeleteVideo(ctx, video)
	}

	if pending.OrganizationID != organizationID {
		return models.ErrAccessDenied
	}
	if pending.ExternalAssetRef != "" {
		if err := p.api.DeleteAsset(ctx, pending.ExternalAssetRef); err != nil {
			return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
		}
	}
	return p.repo.DeletePendingUpload(ctx, pending)
}

// TestConnection probes the managed API read-only.
func (p *Managed) TestConnection(ctx context.Context, organizationID string) error {
	return p.api.Ping(ctx)
}
