package ingest

import (
	"context"
	"errors"
	"testing"

	"github.com/reelworks/vod-pipeline/internal/storage"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

func TestMultipartLifecycle(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	session, err := env.svc.InitMultipart(ctx, MultipartInitParams{
		OrganizationID:     "org-1",
		Name:               "feature film",
		Visibility:         models.VisibilityUnlisted,
		DeclaredSizeBytes:  2 << 30,
		MaxDurationSeconds: 600,
	})
	if err != nil {
		t.Fatalf("InitMultipart: %v", err)
	}
	if session.Key != "videos/org-1/"+session.VideoID+"/source.mp4" {
		t.Errorf("session key = %q", session.Key)
	}

	// Parts requested out of order; each must presign independently.
	for _, n := range []int32{3, 1, 2} {
		part, err := env.svc.MultipartPartURL(ctx, "org-1", session.VideoID, session.UploadID, n)
		if err != nil {
			t.Fatalf("MultipartPartURL(%d): %v", n, err)
		}
		if part.URL == "" {
			t.Fatalf("part %d: empty URL", n)
		}
	}

	parts := []storage.CompletedPart{
		{PartNumber: 2, ETag: "etag-2"},
		{PartNumber: 1, ETag: "etag-1"},
		{PartNumber: 3, ETag: "etag-3"},
	}
	if err := env.svc.CompleteMultipart(ctx, "org-1", session.VideoID, session.UploadID, parts); err != nil {
		t.Fatalf("CompleteMultipart: %v", err)
	}

	if len(env.jobs.enqueued) != 1 {
		t.Fatalf("enqueued %d transcode jobs, want exactly 1", len(env.jobs.enqueued))
	}
	job := env.jobs.enqueued[0]
	if job.VideoID != session.VideoID {
		t.Errorf("job video = %q, want %q", job.VideoID, session.VideoID)
	}
	if job.SourcePath != session.Key {
		t.Errorf("job source = %q, want %q", job.SourcePath, session.Key)
	}
	if job.Attempt != 0 {
		t.Errorf("job attempt = %d, want 0", job.Attempt)
	}
}

func TestMultipartInitRejectsOverDeclaredCapacity(t *testing.T) {
	env := newTestEnv()

	_, err := env.svc.InitMultipart(context.Background(), MultipartInitParams{
		OrganizationID:    "org-1",
		Name:              "too big",
		DeclaredSizeBytes: 600 << 30, // over the 500 GB plan limit
	})
	if !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
	if len(env.repo.pending) != 0 {
		t.Error("rejected init left a pending upload behind")
	}
}

func TestMultipartCompleteRechecksStoredSize(t *testing.T) {
	// The declared size passes, but the bytes actually uploaded exceed the
	// plan. Completion must abort the session instead of finishing it.
	env := newTestEnv()
	env.store.partSize = 300 << 30
	ctx := context.Background()

	session, err := env.svc.InitMultipart(ctx, MultipartInitParams{
		OrganizationID:    "org-1",
		Name:              "liar",
		DeclaredSizeBytes: 1 << 30,
	})
	if err != nil {
		t.Fatalf("InitMultipart: %v", err)
	}
	for _, n := range []int32{1, 2} {
		if _, err := env.svc.MultipartPartURL(ctx, "org-1", session.VideoID, session.UploadID, n); err != nil {
			t.Fatalf("MultipartPartURL(%d): %v", n, err)
		}
	}

	parts := []storage.CompletedPart{{PartNumber: 1, ETag: "e1"}, {PartNumber: 2, ETag: "e2"}}
	err = env.svc.CompleteMultipart(ctx, "org-1", session.VideoID, session.UploadID, parts)
	if !errors.Is(err, models.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}

	if len(env.store.aborted) != 1 {
		t.Errorf("aborted %d sessions, want 1", len(env.store.aborted))
	}
	if len(env.store.completed) != 0 {
		t.Errorf("over-limit session was completed")
	}
	if len(env.jobs.enqueued) != 0 {
		t.Errorf("over-limit completion enqueued a job")
	}
}

func TestMultipartCrossOrganizationDenied(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	session, err := env.svc.InitMultipart(ctx, MultipartInitParams{
		OrganizationID:    "org-1",
		Name:              "private",
		DeclaredSizeBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("InitMultipart: %v", err)
	}

	if _, err := env.svc.MultipartPartURL(ctx, "org-2", session.VideoID, session.UploadID, 1); !errors.Is(err, models.ErrAccessDenied) {
		t.Errorf("part URL err = %v, want ErrAccessDenied", err)
	}
	err = env.svc.CompleteMultipart(ctx, "org-2", session.VideoID, session.UploadID,
		[]storage.CompletedPart{{PartNumber: 1, ETag: "e1"}})
	if !errors.Is(err, models.ErrAccessDenied) {
		t.Errorf("complete err = %v, want ErrAccessDenied", err)
	}
	if err := env.svc.AbortMultipart(ctx, "org-2", session.VideoID, session.UploadID); !errors.Is(err, models.ErrAccessDenied) {
		t.Errorf("abort err = %v, want ErrAccessDenied", err)
	}
}

func TestMultipartCompleteRequiresParts(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	session, err := env.svc.InitMultipart(ctx, MultipartInitParams{
		OrganizationID:    "org-1",
		Name:              "empty",
		DeclaredSizeBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("InitMultipart: %v", err)
	}

	if err := env.svc.CompleteMultipart(ctx, "org-1", session.VideoID, session.UploadID, nil); err == nil {
		t.Fatal("complete with no parts should fail")
	}
	if len(env.jobs.enqueued) != 0 {
		t.Error("failed completion enqueued a job")
	}
}

func TestAbortMultipartRemovesPending(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()

	session, err := env.svc.InitMultipart(ctx, MultipartInitParams{
		OrganizationID:    "org-1",
		Name:              "abandoned",
		DeclaredSizeBytes: 1 << 20,
	})
	if err != nil {
		t.Fatalf("InitMultipart: %v", err)
	}

	if err := env.svc.AbortMultipart(ctx, "org-1", session.VideoID, session.UploadID); err != nil {
		t.Fatalf("AbortMultipart: %v", err)
	}
	if _, err := env.repo.GetPendingUpload(ctx, session.VideoID); !errors.Is(err, models.ErrNotFound) {
		t.Errorf("pending upload survived abort: %v", err)
	}
	if len(env.store.aborted) != 1 {
		t.Errorf("aborted %d sessions, want 1", len(env.store.aborted))
	}
}
