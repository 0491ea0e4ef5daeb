package ingest

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/reelworks/vod-pipeline/internal/managed"
	"github.com/reelworks/vod-pipeline/internal/metrics"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

// Reconciliation outcomes, recorded per webhook event.
const (
	OutcomeVideoUploadRef   = "matched_video_upload_ref"
	OutcomeVideoAssetRef    = "matched_video_asset_ref"
	OutcomePendingUploadRef = "matched_pending_upload_ref"
	OutcomePendingAssetRef  = "matched_pending_asset_ref"
	OutcomePassthrough      = "matched_passthrough"
	OutcomeFallbackCreate   = "created_fallback"
	OutcomeMiss             = "miss"
	OutcomeIgnored          = "ignored"
)

// Reconcile applies one managed-provider webhook event to local state.
// Events arrive in any order and may be delivered more than once, so
// matching runs reference-by-reference and every path converges: video by
// upload ref, video by asset ref, pending by upload ref, pending by asset
// ref, either record by passthrough id, then a fallback create when the
// event carries enough to build a row, and finally a logged miss that still
// acknowledges the delivery.
func (s *Service) Reconcile(ctx context.Context, event *managed.WebhookEvent) error {
	metrics.WebhookEvents.WithLabelValues(event.Type).Inc()

	uploadRef := event.Data.UploadID
	assetRef := event.Data.ID

	if video := s.findVideo(ctx, uploadRef); video != nil {
		metrics.RecordReconciliation(OutcomeVideoUploadRef)
		return s.applyToVideo(ctx, video, event)
	}
	if video := s.findVideo(ctx, assetRef); video != nil {
		metrics.RecordReconciliation(OutcomeVideoAssetRef)
		return s.applyToVideo(ctx, video, event)
	}
	if pending := s.findPending(ctx, uploadRef); pending != nil {
		metrics.RecordReconciliation(OutcomePendingUploadRef)
		return s.applyToPending(ctx, pending, event)
	}
	if pending := s.findPending(ctx, assetRef); pending != nil {
		metrics.RecordReconciliation(OutcomePendingAssetRef)
		return s.applyToPending(ctx, pending, event)
	}

	// The local id rides along as passthrough. An event whose references
	// match nothing (the delivery outran the reference attach, or the attach
	// failed) can still land on the row it was meant for. Creating a fresh
	// row here instead would leave that row stranded beside the new one.
	if id := event.Data.Passthrough; id != "" {
		if video, err := s.repo.GetVideo(ctx, id); err == nil {
			metrics.RecordReconciliation(OutcomePassthrough)
			return s.applyToVideo(ctx, video, event)
		}
		if pending, err := s.repo.GetPendingUpload(ctx, id); err == nil {
			metrics.RecordReconciliation(OutcomePassthrough)
			return s.applyToPending(ctx, pending, event)
		}
	}

	if s.canFallbackCreate(event) {
		return s.fallbackCreate(ctx, event)
	}

	// A truly unmatchable event. Acknowledge it anyway: the provider retries
	// failed deliveries forever, and retrying cannot make this one match.
	metrics.RecordReconciliation(OutcomeMiss)
	s.log.WarnContext(ctx, "Webhook event matched no local record",
		"type", event.Type,
		"uploadRef", uploadRef,
		"assetRef", assetRef,
	)
	return nil
}

func (s *Service) findVideo(ctx context.Context, ref string) *models.Video {
	if ref == "" {
		return nil
	}
	video, err := s.repo.FindVideoByExtRef(ctx, ref)
	if err != nil {
		return nil
	}
	return video
}

func (s *Service) findPending(ctx context.Context, ref string) *models.PendingUpload {
	if ref == "" {
		return nil
	}
	pending, err := s.repo.FindPendingByExtRef(ctx, ref)
	if err != nil {
		return nil
	}
	return pending
}

// applyToVideo handles an event whose references resolve to an existing
// video. Terminal videos absorb everything silently.
func (s *Service) applyToVideo(ctx context.Context, video *models.Video, event *managed.WebhookEvent) error {
	if video.Status.IsTerminal() {
		return nil
	}

	switch event.Type {
	case managed.EventAssetReady:
		s.fillPlayback(video, &event.Data)
		video.Status = models.StatusReady
		return s.repo.UpdateVideoPlayback(ctx, video)

	case managed.EventAssetErrored:
		return s.repo.UpdateVideoStatus(ctx, video.ID, models.StatusError, event.Data.ErrorMessage)

	case managed.EventUploadComplete:
		// The asset handle became known after promotion; record it so later
		// asset events match directly.
		if event.Data.ID != "" && video.ExternalAssetRef == "" {
			video.ExternalAssetRef = event.Data.ID
			return s.repo.UpdateVideoPlayback(ctx, video)
		}
		return nil

	case managed.EventUploadCanceled:
		return s.repo.UpdateVideoStatus(ctx, video.ID, models.StatusDeleted, "")

	default:
		return nil
	}
}

// applyToPending handles an event whose references resolve to a pending
// upload. Ready, errored, and cancelled events promote; the promoted row
// carries the event's references when the pending row never got them.
func (s *Service) applyToPending(ctx context.Context, pending *models.PendingUpload, event *managed.WebhookEvent) error {
	switch event.Type {
	case managed.EventAssetReady:
		video := videoFromPending(pending)
		if video.ExternalUploadRef == "" {
			video.ExternalUploadRef = event.Data.UploadID
		}
		if event.Data.ID != "" {
			video.ExternalAssetRef = event.Data.ID
		}
		s.fillPlayback(video, &event.Data)
		video.Status = models.StatusReady
		return s.promoteConverging(ctx, video, event)

	case managed.EventAssetErrored:
		video := videoFromPending(pending)
		if video.ExternalUploadRef == "" {
			video.ExternalUploadRef = event.Data.UploadID
		}
		if event.Data.ID != "" {
			video.ExternalAssetRef = event.Data.ID
		}
		video.Status = models.StatusError
		video.ErrorMessage = event.Data.ErrorMessage
		return s.promoteConverging(ctx, video, event)

	case managed.EventUploadComplete:
		if event.Data.ID == "" {
			return nil
		}
		uploadRef := pending.ExternalUploadRef
		if uploadRef == "" {
			uploadRef = event.Data.UploadID
		}
		return s.repo.AttachPendingRefs(ctx, pending.ID, uploadRef, event.Data.ID)

	case managed.EventUploadCanceled:
		video := videoFromPending(pending)
		if video.ExternalUploadRef == "" {
			video.ExternalUploadRef = event.Data.UploadID
		}
		video.Status = models.StatusDeleted
		return s.promoteConverging(ctx, video, event)

	default:
		return nil
	}
}

// promoteConverging promotes a pending upload, and on a conflict retries
// once through the video path: a concurrent delivery won the promotion, so
// this delivery becomes an update to the winner's row.
func (s *Service) promoteConverging(ctx context.Context, video *models.Video, event *managed.WebhookEvent) error {
	err := s.repo.PromotePendingUpload(ctx, video)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrConflict) {
		return err
	}

	existing, getErr := s.repo.GetVideo(ctx, video.ID)
	if getErr != nil {
		if errors.Is(getErr, models.ErrNotFound) {
			return err
		}
		return getErr
	}
	return s.applyToVideo(ctx, existing, event)
}

// canFallbackCreate reports whether an unmatched event carries enough to
// build a video row: an upload reference to anchor future events and an
// organization to own the row.
func (s *Service) canFallbackCreate(event *managed.WebhookEvent) bool {
	switch event.Type {
	case managed.EventAssetReady, managed.EventAssetErrored, managed.EventUploadComplete:
		return event.Data.UploadID != "" && event.Data.OrganizationID != ""
	}
	return false
}

// fallbackCreate builds a video row from the event alone. Covers deliveries
// that outran the local pending-upload write. A conflict means a concurrent
// delivery created the row first; re-resolve once and converge through the
// update path.
func (s *Service) fallbackCreate(ctx context.Context, event *managed.WebhookEvent) error {
	video := &models.Video{
		ID:                uuid.New().String(),
		OrganizationID:    event.Data.OrganizationID,
		Name:              "Untitled upload",
		Visibility:        models.VisibilityPrivate,
		Provider:          models.ProviderManaged,
		Status:            models.StatusProcessing,
		ExternalUploadRef: event.Data.UploadID,
		ExternalAssetRef:  event.Data.ID,
	}
	if event.Data.Passthrough != "" {
		video.ID = event.Data.Passthrough
	}

	switch event.Type {
	case managed.EventAssetReady:
		s.fillPlayback(video, &event.Data)
		video.Status = models.StatusReady
	case managed.EventAssetErrored:
		video.Status = models.StatusError
		video.ErrorMessage = event.Data.ErrorMessage
	}

	if err := s.repo.CreateVideo(ctx, video); err != nil {
		if errors.Is(err, models.ErrConflict) {
			if existing := s.findVideo(ctx, event.Data.UploadID); existing != nil {
				metrics.RecordReconciliation(OutcomeVideoUploadRef)
				return s.applyToVideo(ctx, existing, event)
			}
			metrics.RecordReconciliation(OutcomeIgnored)
			return nil
		}
		return err
	}

	metrics.RecordReconciliation(OutcomeFallbackCreate)
	s.log.InfoContext(ctx, "Created video from webhook event with no local record",
		"videoId", video.ID,
		"type", event.Type,
		"uploadRef", event.Data.UploadID,
	)
	return nil
}

// fillPlayback copies the asset's playback fields onto a video row.
func (s *Service) fillPlayback(video *models.Video, asset *managed.WebhookAsset) {
	video.DurationSeconds = models.RoundDuration(asset.DurationSeconds)
	if ref := asset.PlaybackRef(); ref != "" {
		video.ExternalPlaybackRef = ref
		if s.urls != nil {
			video.PlaybackURL = s.urls.PlaybackURL(ref)
			video.ThumbnailURL = s.urls.ThumbnailURL(ref)
		}
	}
}
