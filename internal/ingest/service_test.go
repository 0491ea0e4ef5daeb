package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/reelworks/vod-pipeline/internal/metrics"
	"github.com/reelworks/vod-pipeline/internal/provider"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

func TestCreateUploadIssuesURL(t *testing.T) {
	env := newTestEnv()

	result, err := env.svc.CreateUpload(context.Background(), provider.CreateUploadParams{
		OrganizationID: "org-1",
		Name:           "clip",
		Visibility:     models.VisibilityPrivate,
	}, "")
	if err != nil {
		t.Fatalf("CreateUpload: %v", err)
	}
	if result.UploadURL == "" || result.VideoID == "" {
		t.Fatalf("incomplete result: %+v", result)
	}

	pending, err := env.repo.GetPendingUpload(context.Background(), result.VideoID)
	if err != nil {
		t.Fatalf("pending upload missing: %v", err)
	}
	if pending.Provider != models.ProviderInternal {
		t.Errorf("provider = %q, want internal", pending.Provider)
	}
	if pending.AssetKey != "videos/org-1/"+result.VideoID {
		t.Errorf("asset key = %q", pending.AssetKey)
	}
}

func TestGetStatusUnknownIdentifierIsProcessing(t *testing.T) {
	// An identifier matching nothing is reported as processing: mid-upload
	// and not-yet-reconciled states are indistinguishable from absent.
	env := newTestEnv()

	snap, err := env.svc.GetStatus(context.Background(), "never-seen", "org-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if snap.Status != models.StatusProcessing {
		t.Errorf("status = %q, want processing", snap.Status)
	}
	if snap.Ready {
		t.Error("unknown identifier reported ready")
	}
}

func TestGetStatusPendingIsProcessing(t *testing.T) {
	env := newTestEnv()
	seedInternalPending(t, env, "vid-1", "org-1")

	snap, err := env.svc.GetStatus(context.Background(), "vid-1", "org-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if snap.Status != models.StatusProcessing {
		t.Errorf("status = %q, want processing", snap.Status)
	}
}

func TestGetStatusReadyVideoHasPlaybackURL(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	seedInternalPending(t, env, "vid-1", "org-1")

	if err := env.svc.HandleTranscodeResult(ctx, TranscodeResult{
		VideoID:        "vid-1",
		OrganizationID: "org-1",
		ManifestKey:    "videos/org-1/vid-1/hls/master.m3u8",
	}); err != nil {
		t.Fatalf("HandleTranscodeResult: %v", err)
	}

	snap, err := env.svc.GetStatus(ctx, "vid-1", "org-1")
	if err != nil {
		t.Fatalf("GetStatus: %v", err)
	}
	if !snap.Ready {
		t.Error("ready video not reported ready")
	}
	if snap.PlaybackURL != "https://vod.example.com/stream/vid-1/master.m3u8" {
		t.Errorf("playback url = %q", snap.PlaybackURL)
	}
}

func TestGetStatusCrossOrganizationDenied(t *testing.T) {
	env := newTestEnv()
	seedInternalPending(t, env, "vid-1", "org-1")

	_, err := env.svc.GetStatus(context.Background(), "vid-1", "org-2")
	if !errors.Is(err, models.ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
}

func TestIssuePlaybackTokenScopedToVideo(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	seedInternalPending(t, env, "vid-1", "org-1")

	if err := env.svc.HandleTranscodeResult(ctx, TranscodeResult{
		VideoID:        "vid-1",
		OrganizationID: "org-1",
		ManifestKey:    "videos/org-1/vid-1/hls/master.m3u8",
	}); err != nil {
		t.Fatalf("HandleTranscodeResult: %v", err)
	}

	token, err := env.svc.IssuePlaybackToken(ctx, "vid-1", "org-1")
	if err != nil {
		t.Fatalf("IssuePlaybackToken: %v", err)
	}
	if token.Token == "" {
		t.Fatal("empty token")
	}

	if _, err := env.svc.IssuePlaybackToken(ctx, "vid-1", "org-2"); !errors.Is(err, models.ErrAccessDenied) {
		t.Errorf("cross-org token err = %v, want ErrAccessDenied", err)
	}
}

func TestRecordQueueDepthSamplesGauge(t *testing.T) {
	env := newTestEnv()

	env.jobs.enqueued = append(env.jobs.enqueued,
		models.TranscodeJob{VideoID: "vid-1"},
		models.TranscodeJob{VideoID: "vid-2"},
	)

	if err := env.svc.RecordQueueDepth(context.Background()); err != nil {
		t.Fatalf("RecordQueueDepth: %v", err)
	}
	if got := testutil.ToFloat64(metrics.QueueDepth); got != 2 {
		t.Errorf("queue depth gauge = %v, want 2", got)
	}
}

func TestDeleteVideoUnknownIDSucceeds(t *testing.T) {
	env := newTestEnv()
	if err := env.svc.DeleteVideo(context.Background(), "vid-gone", "org-1"); err != nil {
		t.Fatalf("delete of unknown id should succeed, got %v", err)
	}
}

func TestDeleteVideoRemovesRowAndIsRepeatable(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	seedInternalPending(t, env, "vid-1", "org-1")

	for i := 0; i < 2; i++ {
		if err := env.svc.DeleteVideo(ctx, "vid-1", "org-1"); err != nil {
			t.Fatalf("delete %d: %v", i+1, err)
		}
	}
	if _, err := env.repo.GetPendingUpload(ctx, "vid-1"); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("pending upload survived delete: %v", err)
	}
}
