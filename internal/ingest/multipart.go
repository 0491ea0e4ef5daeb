package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelworks/vod-pipeline/internal/metrics"
	"github.com/reelworks/vod-pipeline/internal/storage"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

const multipartContentType = "video/mp4"

// MultipartInitParams describes a multipart session request. Multipart
// uploads always go through the internal pipeline; large files never route
// to the managed provider.
type MultipartInitParams struct {
	OrganizationID     string
	Name               string
	Description        string
	Tags               []string
	Visibility         models.Visibility
	DeclaredSizeBytes  int64
	MaxDurationSeconds int64
}

// MultipartSession is the handle returned from InitMultipart. Part URLs are
// requested separately, one at a time, so the session itself stays small.
type MultipartSession struct {
	VideoID  string `json:"videoId"`
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}

// PartURL is a presigned PUT target for one part.
type PartURL struct {
	PartNumber int32     `json:"partNumber"`
	URL        string    `json:"url"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// InitMultipart checks capacity against the client-declared size, records a
// pending upload, and opens a multipart session on the source object key.
func (s *Service) InitMultipart(ctx context.Context, params MultipartInitParams) (*MultipartSession, error) {
	if err := s.capacity.CheckUpload(params.OrganizationID, params.DeclaredSizeBytes, params.MaxDurationSeconds); err != nil {
		metrics.MultipartOps.WithLabelValues("init", "rejected").Inc()
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
	if err := s.repo.CreatePendingUpload(ctx, pu); err != nil {
		metrics.MultipartOps.WithLabelValues("init", "error").Inc()
		return nil, err
	}

	key := storage.SourceKey(assetKey)
	uploadID, err := s.store.CreateMultipartUpload(ctx, key, multipartContentType)
	if err != nil {
		metrics.MultipartOps.WithLabelValues("init", "error").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	metrics.MultipartOps.WithLabelValues("init", "success").Inc()
	metrics.UploadsInitiated.WithLabelValues(string(models.ProviderInternal)).Inc()
	return &MultipartSession{
		VideoID:  videoID,
		UploadID: uploadID,
		Key:      key,
	}, nil
}

// MultipartPartURL presigns one part of an open session. The call is
// stateless and repeatable: the same part may be presigned again after a
// failed transfer, and parts may be requested in any order.
func (s *Service) MultipartPartURL(ctx context.Context, organizationID, videoID, uploadID string, partNumber int32) (*PartURL, error) {
	if partNumber < 1 {
		return nil, fmt.Errorf("part number must be positive, got %d", partNumber)
	}

	key, err := s.sessionKey(ctx, organizationID, videoID)
	if err != nil {
		metrics.MultipartOps.WithLabelValues("part_url", "error").Inc()
		return nil, err
	}

	url, err := s.store.PresignUploadPart(ctx, key, uploadID, partNumber, s.partTTL)
	if err != nil {
		metrics.MultipartOps.WithLabelValues("part_url", "error").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	metrics.MultipartOps.WithLabelValues("part_url", "success").Inc()
	return &PartURL{
		PartNumber: partNumber,
		URL:        url,
		ExpiresAt:  time.Now().Add(s.partTTL),
	}, nil
}

// CompleteMultipart finishes the session, re-checks capacity against the
// bytes actually stored, and enqueues exactly one transcode job. The stored
// size is measured before completion because the declared size at init time
// is client-supplied and unverified; an over-limit session is aborted
// instead of completed.
func (s *Service) CompleteMultipart(ctx context.Context, organizationID, videoID, uploadID string, parts []storage.CompletedPart) error {
	key, err := s.sessionKey(ctx, organizationID, videoID)
	if err != nil {
		metrics.MultipartOps.WithLabelValues("complete", "error").Inc()
		return err
	}

	if len(parts) == 0 {
		metrics.MultipartOps.WithLabelValues("complete", "rejected").Inc()
		return fmt.Errorf("at least one completed part is required")
	}

	size, err := s.store.MultipartSize(ctx, key, uploadID)
	if err != nil {
		metrics.MultipartOps.WithLabelValues("complete", "error").Inc()
		return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	if err := s.capacity.CheckUpload(organizationID, size, 0); err != nil {
		if abortErr := s.store.AbortMultipartUpload(ctx, key, uploadID); abortErr != nil {
			s.log.ErrorContext(ctx, "Failed to abort over-limit multipart session",
				"videoId", videoID,
				"error", abortErr,
			)
		}
		metrics.MultipartOps.WithLabelValues("complete", "rejected").Inc()
		return err
	}

	if err := s.store.CompleteMultipartUpload(ctx, key, uploadID, parts); err != nil {
		metrics.MultipartOps.WithLabelValues("complete", "error").Inc()
		return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	job := &models.TranscodeJob{
		VideoID:        videoID,
		OrganizationID: organizationID,
		AssetKey:       storage.AssetKey(organizationID, videoID),
		SourcePath:     key,
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		metrics.MultipartOps.WithLabelValues("complete", "error").Inc()
		return err
	}

	metrics.MultipartOps.WithLabelValues("complete", "success").Inc()
	s.log.InfoContext(ctx, "Multipart upload completed, transcode job enqueued",
		"videoId", videoID,
		"sizeBytes", size,
		"parts", len(parts),
	)
	return nil
}

// AbortMultipart releases a session and its stored parts, and removes the
// pending upload row. Safe to call more than once.
func (s *Service) AbortMultipart(ctx context.Context, organizationID, videoID, uploadID string) error {
	pending, err := s.repo.GetPendingUpload(ctx, videoID)
	if err != nil {
		metrics.MultipartOps.WithLabelValues("abort", "error").Inc()
		return err
	}
	if pending.OrganizationID != organizationID {
		metrics.MultipartOps.WithLabelValues("abort", "denied").Inc()
		return models.ErrAccessDenied
	}

	if err := s.store.AbortMultipartUpload(ctx, storage.SourceKey(pending.AssetKey), uploadID); err != nil {
		metrics.MultipartOps.WithLabelValues("abort", "error").Inc()
		return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}

	if err := s.repo.DeletePendingUpload(ctx, pending); err != nil {
		metrics.MultipartOps.WithLabelValues("abort", "error").Inc()
		return err
	}

	metrics.MultipartOps.WithLabelValues("abort", "success").Inc()
	return nil
}

// sessionKey loads the pending upload, enforces ownership, and returns the
// source object key its session was opened on.
func (s *Service) sessionKey(ctx context.Context, organizationID, videoID string) (string, error) {
	pending, err := s.repo.GetPendingUpload(ctx, videoID)
	if err != nil {
		return "", err
	}
	if pending.OrganizationID != organizationID {
		return "", models.ErrAccessDenied
	}
	return storage.SourceKey(pending.AssetKey), nil
}
