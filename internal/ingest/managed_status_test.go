package ingest

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/reelworks/vod-pipeline/internal/managed"
	"github.com/reelworks/vod-pipeline/internal/provider"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

// fakeManagedAPI serves canned upload sessions for status polling.
type fakeManagedAPI struct {
	uploads map[string]*managed.DirectUpload
}

func (f *fakeManagedAPI) CreateDirectUpload(ctx context.Context, videoID, corsOrigin string, timeout time.Duration) (*managed.DirectUpload, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeManagedAPI) GetUpload(ctx context.Context, uploadID string) (*managed.DirectUpload, error) {
	upload, ok := f.uploads[uploadID]
	if !ok {
		return nil, errors.New("no such upload")
	}
	return upload, nil
}

func (f *fakeManagedAPI) GetAsset(ctx context.Context, assetID string) (*managed.Asset, error) {
	return nil, errors.New("not implemented")
}

func (f *fakeManagedAPI) DeleteAsset(ctx context.Context, assetID string) error { return nil }

func (f *fakeManagedAPI) Ping(ctx context.Context) error { return nil }

func (f *fakeManagedAPI) PlaybackURL(ref string) string {
	return "https://stream.example.com/" + ref + ".m3u8"
}

func (f *fakeManagedAPI) ThumbnailURL(ref string) string {
	return "https://image.example.com/" + ref + "/thumbnail.jpg"
}

func newManagedWithUploads(env *testEnv, uploads map[string]*managed.DirectUpload) *provider.Managed {
	return provider.NewManaged(provider.ManagedConfig{
		Repository: env.repo,
		API:        &fakeManagedAPI{uploads: uploads},
		Logger:     slog.New(slog.DiscardHandler),
	})
}

func TestManagedStatusPollsUploadSession(t *testing.T) {
	tests := []struct {
		name         string
		uploadStatus string
		want         models.VideoStatus
	}{
		{"waiting stays processing", managed.UploadStatusWaiting, models.StatusProcessing},
		{"asset created stays processing", managed.UploadStatusCreated, models.StatusProcessing},
		{"errored session reports error", managed.UploadStatusErrored, models.StatusError},
		{"timed out session reports error", managed.UploadStatusTimedOut, models.StatusError},
		{"cancelled session reports deleted", managed.UploadStatusCanceled, models.StatusDeleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv()
			ctx := context.Background()
			seedManagedPending(t, env, "vid-1", "org-1", "up-1", "")

			p := newManagedWithUploads(env, map[string]*managed.DirectUpload{
				"up-1": {ID: "up-1", Status: tt.uploadStatus},
			})
			snap, err := p.GetVideoStatus(ctx, "vid-1", "org-1")
			if err != nil {
				t.Fatalf("GetVideoStatus: %v", err)
			}
			if snap.Status != tt.want {
				t.Errorf("status = %q, want %q", snap.Status, tt.want)
			}
		})
	}
}

func TestManagedStatusPollFailureStaysProcessing(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	seedManagedPending(t, env, "vid-1", "org-1", "up-1", "")

	// No session on the API side: the poll fails and the snapshot stays at
	// processing rather than surfacing the poll error.
	p := newManagedWithUploads(env, nil)
	snap, err := p.GetVideoStatus(ctx, "vid-1", "org-1")
	if err != nil {
		t.Fatalf("GetVideoStatus: %v", err)
	}
	if snap.Status != models.StatusProcessing {
		t.Errorf("status = %q, want processing", snap.Status)
	}
}
