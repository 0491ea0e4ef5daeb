package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/reelworks/vod-pipeline/internal/metrics"
	"github.com/reelworks/vod-pipeline/internal/queue"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

// TranscodeResult is the payload the encode worker posts when an encode
// finishes successfully.
type TranscodeResult struct {
	VideoID         string  `json:"videoId"`
	OrganizationID  string  `json:"organizationId"`
	ManifestKey     string  `json:"manifestKey"`
	ThumbnailKey    string  `json:"thumbnailKey,omitempty"`
	DurationSeconds float64 `json:"durationSeconds"`
}

// TranscodeFailure is the payload the encode worker posts when an attempt
// fails. It carries the full job so the server can requeue without holding
// any per-job state of its own.
type TranscodeFailure struct {
	Job    models.TranscodeJob `json:"job"`
	Reason string              `json:"reason"`
}

// HandleTranscodeResult finalizes a successful encode: a pending upload is
// promoted to a ready video atomically; a video that already exists gets its
// playback fields updated in place. Re-delivery of the same result lands on
// the update path and converges to the same row, so the handler is
// idempotent.
func (s *Service) HandleTranscodeResult(ctx context.Context, result TranscodeResult) error {
	if result.VideoID == "" {
		return models.ErrMissingVideoID
	}
	if result.ManifestKey == "" {
		return fmt.Errorf("manifestKey is required")
	}

	video, err := s.repo.GetVideo(ctx, result.VideoID)
	if err == nil {
		if video.OrganizationID != result.OrganizationID {
			metrics.TranscodeCallbacks.WithLabelValues("denied").Inc()
			return models.ErrAccessDenied
		}
		if video.Status.IsTerminal() {
			// Late result for a deleted or failed video; nothing to revive.
			s.log.InfoContext(ctx, "Ignoring transcode result for terminal video",
				"videoId", video.ID,
				"status", string(video.Status),
			)
			metrics.TranscodeCallbacks.WithLabelValues("ignored").Inc()
			return nil
		}

		video.Status = models.StatusReady
		video.PlaybackManifestKey = result.ManifestKey
		video.ThumbnailKey = result.ThumbnailKey
		video.DurationSeconds = models.RoundDuration(result.DurationSeconds)
		if err := s.repo.UpdateVideoPlayback(ctx, video); err != nil {
			metrics.TranscodeCallbacks.WithLabelValues("error").Inc()
			return err
		}
		metrics.TranscodeCallbacks.WithLabelValues("updated").Inc()
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		metrics.TranscodeCallbacks.WithLabelValues("error").Inc()
		return err
	}

	pending, err := s.repo.GetPendingUpload(ctx, result.VideoID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			// Video was deleted mid-encode. The worker's output objects are
			// cleaned by the delete path; the callback itself succeeds.
			s.log.WarnContext(ctx, "Transcode result for unknown video",
				"videoId", result.VideoID,
			)
			metrics.TranscodeCallbacks.WithLabelValues("orphaned").Inc()
			return nil
		}
		metrics.TranscodeCallbacks.WithLabelValues("error").Inc()
		return err
	}
	if pending.OrganizationID != result.OrganizationID {
		metrics.TranscodeCallbacks.WithLabelValues("denied").Inc()
		return models.ErrAccessDenied
	}

	promoted := videoFromPending(pending)
	promoted.Status = models.StatusReady
	promoted.PlaybackManifestKey = result.ManifestKey
	promoted.ThumbnailKey = result.ThumbnailKey
	promoted.DurationSeconds = models.RoundDuration(result.DurationSeconds)

	if err := s.repo.PromotePendingUpload(ctx, promoted); err != nil {
		if errors.Is(err, models.ErrConflict) {
			// Lost a promotion race with a concurrent delivery; the winner
			// wrote the same state.
			metrics.TranscodeCallbacks.WithLabelValues("duplicate").Inc()
			return nil
		}
		metrics.TranscodeCallbacks.WithLabelValues("error").Inc()
		return err
	}

	metrics.TranscodeCallbacks.WithLabelValues("promoted").Inc()
	s.log.InfoContext(ctx, "Pending upload promoted to ready video",
		"videoId", promoted.ID,
		"organizationId", promoted.OrganizationID,
		"durationSeconds", promoted.DurationSeconds,
	)
	return nil
}

// HandleTranscodeFailure requeues a failed job with backoff, or marks the
// video errored once the attempt budget is spent. Marking errored promotes a
// still-pending upload so the failure is visible on status reads.
func (s *Service) HandleTranscodeFailure(ctx context.Context, failure TranscodeFailure) error {
	if err := failure.Job.Validate(); err != nil {
		return err
	}

	err := s.jobs.Requeue(ctx, &failure.Job)
	if err == nil {
		metrics.TranscodeCallbacks.WithLabelValues("requeued").Inc()
		s.log.InfoContext(ctx, "Transcode job requeued",
			"videoId", failure.Job.VideoID,
			"attempt", failure.Job.Attempt,
			"reason", failure.Reason,
		)
		return nil
	}
	if !errors.Is(err, queue.ErrRetriesExhausted) {
		metrics.TranscodeCallbacks.WithLabelValues("error").Inc()
		return err
	}

	metrics.TranscodeCallbacks.WithLabelValues("exhausted").Inc()
	s.log.ErrorContext(ctx, "Transcode retries exhausted, marking video errored",
		"videoId", failure.Job.VideoID,
		"reason", failure.Reason,
	)
	return s.markErrored(ctx, failure.Job.VideoID, failure.Reason)
}

// markErrored records a terminal error on whichever record exists for the
// id. A pending upload is promoted into an errored video so the state is
// queryable; an unknown id is success.
func (s *Service) markErrored(ctx context.Context, videoID, reason string) error {
	err := s.repo.UpdateVideoStatus(ctx, videoID, models.StatusError, reason)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}

	pending, err := s.repo.GetPendingUpload(ctx, videoID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	errored := videoFromPending(pending)
	errored.Status = models.StatusError
	errored.ErrorMessage = reason
	if err := s.repo.PromotePendingUpload(ctx, errored); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil
		}
		return err
	}
	return nil
}

// videoFromPending carries a pending upload's metadata into a new Video row
// sharing its id.
func videoFromPending(pending *models.PendingUpload) *models.Video {
	return &models.Video{
		ID:                pending.ID,
		OrganizationID:    pending.OrganizationID,
		Name:              pending.Name,
		Description:       pending.Description,
		Tags:              pending.Tags,
		Visibility:        pending.Visibility,
		Provider:          pending.Provider,
		AssetKey:          pending.AssetKey,
		ExternalUploadRef: pending.ExternalUploadRef,
		ExternalAssetRef:  pending.ExternalAssetRef,
		CreatedAt:         pending.CreatedAt,
	}
}
