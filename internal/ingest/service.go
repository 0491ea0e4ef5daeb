// Package ingest is the orchestrator tying providers, storage, the job
// queue, and reconciliation together: upload sessions, the multipart
// protocol, transcode callbacks, webhook reconciliation, status resolution,
// and signed streaming.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/reelworks/vod-pipeline/internal/auth"
	"github.com/reelworks/vod-pipeline/internal/metrics"
	"github.com/reelworks/vod-pipeline/internal/provider"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

// URLBuilder computes public playback URLs for managed playback references.
// Implemented by managed.Client.
type URLBuilder interface {
	PlaybackURL(playbackRef string) string
	ThumbnailURL(playbackRef string) string
}

// Service is the ingestion orchestrator.
type Service struct {
	repo     provider.Repository
	store    provider.ObjectStore
	jobs     provider.JobQueue
	factory  *provider.Factory
	capacity provider.CapacityChecker
	urls     URLBuilder
	settings provider.OrganizationSettings
	partTTL  time.Duration
	log      *slog.Logger
}

// Config holds orchestrator dependencies.
type Config struct {
	Repository provider.Repository
	Store      provider.ObjectStore
	Jobs       provider.JobQueue
	Factory    *provider.Factory
	Capacity   provider.CapacityChecker
	URLs       URLBuilder
	Settings   provider.OrganizationSettings
	PartURLTTL time.Duration
	Logger     *slog.Logger
}

// NewService creates the orchestrator.
func NewService(cfg Config) *Service {
	return &Service{
		repo:     cfg.Repository,
		store:    cfg.Store,
		jobs:     cfg.Jobs,
		factory:  cfg.Factory,
		capacity: cfg.Capacity,
		urls:     cfg.URLs,
		settings: cfg.Settings,
		partTTL:  cfg.PartURLTTL,
		log:      cfg.Logger,
	}
}

// CreateUpload resolves a provider for the organization and requests an
// upload target from it.
func (s *Service) CreateUpload(ctx context.Context, params provider.CreateUploadParams, override models.ProviderName) (*provider.CreateUploadResult, error) {
	p := s.factory.ProviderFor(ctx, params.OrganizationID, s.settings, override)

	result, err := p.CreateUploadURL(ctx, params)
	if err != nil {
		return nil, err
	}

	metrics.UploadsInitiated.WithLabelValues(string(p.Name())).Inc()
	return result, nil
}

// GetStatus resolves a status snapshot by video id or any external
// reference. An identifier that matches nothing yields a synthetic
// processing snapshot: a video mid-upload is indistinguishable from one not
// yet reconciled, so "not found yet" is never a hard failure here.
func (s *Service) GetStatus(ctx context.Context, identifier, organizationID string) (*provider.StatusSnapshot, error) {
	video, pending, err := s.repo.Resolve(ctx, identifier)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &provider.StatusSnapshot{
				VideoID: identifier,
				Status:  models.StatusProcessing,
			}, nil
		}
		return nil, err
	}

	name := models.ProviderInternal
	if video != nil {
		name = video.Provider
	} else if pending != nil {
		name = pending.Provider
	}

	return s.factory.ByName(name).GetVideoStatus(ctx, identifier, organizationID)
}

// ListVideos returns an organization's videos, newest first.
func (s *Service) ListVideos(ctx context.Context, organizationID string, limit int32) ([]models.Video, error) {
	return s.repo.ListVideos(ctx, organizationID, limit)
}

// IssuePlaybackToken issues a signed streaming token via the video's owning
// provider. Managed videos reject with ErrTokenNotSupported.
func (s *Service) IssuePlaybackToken(ctx context.Context, videoID, organizationID string) (*auth.PlaybackToken, error) {
	video, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}

	token, err := s.factory.ByName(video.Provider).GeneratePlaybackToken(ctx, videoID, organizationID)
	if err != nil {
		return nil, err
	}

	metrics.PlaybackTokensIssued.Inc()
	return token, nil
}

// DeleteVideo removes a video through its owning provider. Unknown ids are
// success, so client retries never fail.
func (s *Service) DeleteVideo(ctx context.Context, videoID, organizationID string) error {
	video, pending, err := s.repo.Resolve(ctx, videoID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	name := models.ProviderInternal
	if video != nil {
		name = video.Provider
	} else if pending != nil {
		name = pending.Provider
	}

	return s.factory.ByName(name).DeleteVideo(ctx, videoID, organizationID)
}

// RecordQueueDepth samples the transcode queue's backlog into the gauge.
// Called periodically from main.
func (s *Service) RecordQueueDepth(ctx context.Context) error {
	depth, err := s.jobs.Depth(ctx)
	if err != nil {
		return err
	}
	metrics.QueueDepth.Set(float64(depth))
	return nil
}

// GetVideo loads a video row, enforcing organization ownership.
func (s *Service) GetVideo(ctx context.Context, videoID, organizationID string) (*models.Video, error) {
	video, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	if video.OrganizationID != organizationID {
		return nil, models.ErrAccessDenied
	}
	return video, nil
}
