package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reelworks/vod-pipeline/internal/auth"
	"github.com/reelworks/vod-pipeline/internal/storage"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

const sourceContentType = "video/mp4"

// Internal implements the provider contract with the self-hosted pipeline:
// object storage for bytes, the job queue for encoding, signed tokens for
// playback.
type Internal struct {
	repo      Repository
	store     ObjectStore
	jobs      JobQueue
	tokens    TokenIssuer
	capacity  CapacityChecker
	urlTTL    time.Duration
	publicURL string
	log       *slog.Logger
}

// InternalConfig holds dependencies for the internal provider.
type InternalConfig struct {
	Repository Repository
	Store      ObjectStore
	Jobs       JobQueue
	Tokens     TokenIssuer
	Capacity   CapacityChecker
	UploadTTL  time.Duration
	PublicURL  string
	Logger     *slog.Logger
}

// NewInternal creates the internal provider.
func NewInternal(cfg InternalConfig) *Internal {
	return &Internal{
		repo:      cfg.Repository,
		store:     cfg.Store,
		jobs:      cfg.Jobs,
		tokens:    cfg.Tokens,
		capacity:  cfg.Capacity,
		urlTTL:    cfg.UploadTTL,
		publicURL: cfg.PublicURL,
		log:       cfg.Logger,
	}
}

// Name returns the provider name.
func (p *Internal) Name() models.ProviderName {
	return models.ProviderInternal
}

// CreateUploadURL allocates a video id, records the pending upload, and
// presigns a storage PUT. The row is created before the URL so a presign
// failure leaves a retryable record rather than a lost upload.
func (p *Internal) CreateUploadURL(ctx context.Context, params CreateUploadParams) (*CreateUploadResult, error) {
	if err := p.capacity.CheckUpload(params.OrganizationID, params.ExpectedSizeBytes, params.MaxDurationSeconds); err != nil {
		return nil, err
	}

	videoID := uuid.New().String()
	assetKey := storage.AssetKey(params.OrganizationID, videoID)

	pu := &models.PendingUpload{
		ID:             videoID,
		OrganizationID: params.OrganizationID,
		Name:           params.Name,
		Description:    params.Description,
		Tags:           params.Tags,
		Visibility:     params.Visibility,
		Provider:       models.ProviderInternal,
		AssetKey:       assetKey,
	}
	if err := p.repo.CreatePendingUpload(ctx, pu); err != nil {
		return nil, err
	}

	uploadURL, err := p.store.PresignPut(ctx, storage.SourceKey(assetKey), sourceContentType, p.urlTTL)
	if err != nil {
		p.log.ErrorContext(ctx, "Presign failed after pending upload was created; caller should retry with a fresh request",
			"videoId", videoID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	return &CreateUploadResult{
		UploadURL: uploadURL,
		VideoID:   videoID,
		ExpiresAt: time.Now().Add(p.urlTTL),
	}, nil
}

// GetVideoStatus resolves any known identifier to a status snapshot.
func (p *Internal) GetVideoStatus(ctx context.Context, identifier, organizationID string) (*StatusSnapshot, error) {
	video, pending, err := p.repo.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	if video != nil {
		if video.OrganizationID != organizationID {
			return nil, models.ErrAccessDenied
		}
		return p.snapshotVideo(video), nil
	}

	if pending.OrganizationID != organizationID {
		return nil, models.ErrAccessDenied
	}
	return &StatusSnapshot{
		VideoID:  pending.ID,
		Status:   models.StatusProcessing,
		Provider: pending.Provider,
	}, nil
}

func (p *Internal) snapshotVideo(video *models.Video) *StatusSnapshot {
	snap := &StatusSnapshot{
		VideoID:         video.ID,
		Status:          video.Status,
		Ready:           video.Status == models.StatusReady,
		Provider:        video.Provider,
		DurationSeconds: video.DurationSeconds,
		ErrorMessage:    video.ErrorMessage,
	}
	if video.Status == models.StatusReady {
		snap.PlaybackURL = fmt.Sprintf("%s/stream/%s/master.m3u8", p.publicURL, video.ID)
		if video.ThumbnailKey != "" {
			snap.ThumbnailURL = fmt.Sprintf("%s/thumb/%s/thumbnail.jpg", p.publicURL, video.ID)
		}
	}
	return snap
}

// StartTranscode enqueues a transcode job for the video's source object.
func (p *Internal) StartTranscode(ctx context.Context, videoID, organizationID string) error {
	assetKey := storage.AssetKey(organizationID, videoID)

	pending, err := p.repo.GetPendingUpload(ctx, videoID)
	if err == nil {
		if pending.OrganizationID != organizationID {
			return models.ErrAccessDenied
		}
		assetKey = pending.AssetKey
	} else if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	return p.jobs.Enqueue(ctx, &models.TranscodeJob{
		VideoID:        videoID,
		OrganizationID: organizationID,
		AssetKey:       assetKey,
		SourcePath:     storage.SourceKey(assetKey),
	})
}

// GeneratePlaybackToken issues a token scoped to one video+organization.
func (p *Internal) GeneratePlaybackToken(ctx context.Context, videoID, organizationID string) (*auth.PlaybackToken, error) {
	video, err := p.repo.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.OrganizationID != organizationID {
		return nil, models.ErrAccessDenied
	}
	if video.Provider != models.ProviderInternal {
		return nil, models.ErrTokenNotSupported
	}

	return p.tokens.Issue(videoID, organizationID)
}

// DeleteVideo removes all storage objects under the asset prefix, then the
// database row. Missing objects and missing rows are success, so repeated
// deletes never fail.
func (p *Internal) DeleteVideo(ctx context.Context, videoID, organizationID string) error {
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
		if video.AssetKey != "" {
			if err := p.store.DeletePrefix(ctx, video.AssetKey); err != nil {
				return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
			}
		}
		return p.repo.DeleteVideo(ctx, video)
	}

	if pending.OrganizationID != organizationID {
		return models.ErrAccessDenied
	}
	if pending.AssetKey != "" {
		if err := p.store.DeletePrefix(ctx, pending.AssetKey); err != nil {
			return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
		}
	}
	return p.repo.DeletePendingUpload(ctx, pending)
}

// TestConnection probes the bucket and queue read-only.
func (p *Internal) TestConnection(ctx context.Context, organizationID string) error {
	if err := p.store.HeadBucket(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	if _, err := p.jobs.Depth(ctx); err != nil {
		return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	return nil
}
