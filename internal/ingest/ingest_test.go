package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/reelworks/vod-pipeline/internal/auth"
	"github.com/reelworks/vod-pipeline/internal/provider"
	"github.com/reelworks/vod-pipeline/internal/queue"
	"github.com/reelworks/vod-pipeline/internal/storage"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

// fakeRepo is an in-memory Repository mirroring the real table semantics:
// separate video and pending rows, EXTREF pointers with ownership checks,
// atomic promotion.
type fakeRepo struct {
	mu      sync.Mutex
	videos  map[string]*models.Video
	pending map[string]*models.PendingUpload
	refs    map[string]refEntry
}

type refEntry struct {
	recordID string
	pending  bool
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		videos:  make(map[string]*models.Video),
		pending: make(map[string]*models.PendingUpload),
		refs:    make(map[string]refEntry),
	}
}

func (r *fakeRepo) CreatePendingUpload(ctx context.Context, pu *models.PendingUpload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.pending[pu.ID]; ok {
		return models.ErrConflict
	}
	now := time.Now().UTC().Format(time.RFC3339)
	pu.CreatedAt = now
	pu.UpdatedAt = now
	cp := *pu
	r.pending[pu.ID] = &cp
	return nil
}

func (r *fakeRepo) GetPendingUpload(ctx context.Context, id string) (*models.PendingUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	pu, ok := r.pending[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *pu
	return &cp, nil
}

func (r *fakeRepo) DeletePendingUpload(ctx context.Context, pu *models.PendingUpload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, pu.ID)
	delete(r.refs, pu.ExternalUploadRef)
	delete(r.refs, pu.ExternalAssetRef)
	return nil
}

func (r *fakeRepo) AttachPendingRefs(ctx context.Context, id, uploadRef, assetRef string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	pu, ok := r.pending[id]
	if !ok {
		return models.ErrNotFound
	}
	pu.ExternalUploadRef = uploadRef
	pu.ExternalAssetRef = assetRef
	for _, ref := range []string{uploadRef, assetRef} {
		if ref == "" {
			continue
		}
		if existing, ok := r.refs[ref]; ok && existing.recordID != id {
			return models.ErrConflict
		}
		r.refs[ref] = refEntry{recordID: id, pending: true}
	}
	return nil
}

func (r *fakeRepo) putVideo(v *models.Video, deletePending bool) error {
	if _, ok := r.videos[v.ID]; ok {
		return models.ErrConflict
	}
	for _, ref := range []string{v.ExternalUploadRef, v.ExternalAssetRef} {
		if ref == "" {
			continue
		}
		if existing, ok := r.refs[ref]; ok && existing.recordID != v.ID {
			return models.ErrConflict
		}
	}
	if v.CreatedAt == "" {
		v.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	}
	v.UpdatedAt = time.Now().UTC().Format(time.RFC3339)
	cp := *v
	r.videos[v.ID] = &cp
	if deletePending {
		delete(r.pending, v.ID)
	}
	for _, ref := range []string{v.ExternalUploadRef, v.ExternalAssetRef} {
		if ref != "" {
			r.refs[ref] = refEntry{recordID: v.ID}
		}
	}
	return nil
}

func (r *fakeRepo) CreateVideo(ctx context.Context, v *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putVideo(v, false)
}

func (r *fakeRepo) PromotePendingUpload(ctx context.Context, v *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.putVideo(v, true)
}

func (r *fakeRepo) GetVideo(ctx context.Context, id string) (*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *fakeRepo) UpdateVideoPlayback(ctx context.Context, v *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.videos[v.ID]
	if !ok {
		return models.ErrNotFound
	}
	stored.Status = v.Status
	stored.DurationSeconds = v.DurationSeconds
	stored.ExternalAssetRef = v.ExternalAssetRef
	stored.ExternalPlaybackRef = v.ExternalPlaybackRef
	stored.PlaybackURL = v.PlaybackURL
	stored.ThumbnailURL = v.ThumbnailURL
	stored.PlaybackManifestKey = v.PlaybackManifestKey
	stored.ThumbnailKey = v.ThumbnailKey
	if v.ExternalAssetRef != "" {
		r.refs[v.ExternalAssetRef] = refEntry{recordID: v.ID}
	}
	return nil
}

func (r *fakeRepo) UpdateVideoStatus(ctx context.Context, id string, status models.VideoStatus, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.videos[id]
	if !ok {
		return models.ErrNotFound
	}
	if v.Status.IsTerminal() {
		return nil
	}
	v.Status = status
	v.ErrorMessage = errorMessage
	return nil
}

func (r *fakeRepo) DeleteVideo(ctx context.Context, v *models.Video) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.videos, v.ID)
	delete(r.refs, v.ExternalUploadRef)
	delete(r.refs, v.ExternalAssetRef)
	return nil
}

func (r *fakeRepo) FindVideoByExtRef(ctx context.Context, ref string) (*models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.refs[ref]
	if !ok || entry.pending {
		return nil, models.ErrNotFound
	}
	v, ok := r.videos[entry.recordID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *fakeRepo) FindPendingByExtRef(ctx context.Context, ref string) (*models.PendingUpload, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.refs[ref]
	if !ok || !entry.pending {
		return nil, models.ErrNotFound
	}
	pu, ok := r.pending[entry.recordID]
	if !ok {
		return nil, models.ErrNotFound
	}
	cp := *pu
	return &cp, nil
}

func (r *fakeRepo) Resolve(ctx context.Context, identifier string) (*models.Video, *models.PendingUpload, error) {
	if v, err := r.GetVideo(ctx, identifier); err == nil {
		return v, nil, nil
	}
	if pu, err := r.GetPendingUpload(ctx, identifier); err == nil {
		return nil, pu, nil
	}
	if v, err := r.FindVideoByExtRef(ctx, identifier); err == nil {
		return v, nil, nil
	}
	if pu, err := r.FindPendingByExtRef(ctx, identifier); err == nil {
		return nil, pu, nil
	}
	return nil, nil, models.ErrNotFound
}

func (r *fakeRepo) ListVideos(ctx context.Context, organizationID string, limit int32) ([]models.Video, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var videos []models.Video
	for _, v := range r.videos {
		if v.OrganizationID == organizationID {
			videos = append(videos, *v)
		}
	}
	return videos, nil
}

// fakeStore is an in-memory ObjectStore tracking multipart sessions.
type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*fakeSession // uploadID -> session
	objects   map[string][]byte
	nextID    int
	partSize  int64
	abortErr  error
	aborted   []string
	completed []string
}

type fakeSession struct {
	key   string
	parts map[int32]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*fakeSession),
		objects:  make(map[string][]byte),
		partSize: 8 << 20,
	}
}

func (s *fakeStore) PresignPut(ctx context.Context, key, contentType string, lifetime time.Duration) (string, error) {
	return "https://store.example.com/" + key, nil
}

func (s *fakeStore) CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := fmt.Sprintf("mpu-%d", s.nextID)
	s.sessions[id] = &fakeSession{key: key, parts: make(map[int32]int64)}
	return id, nil
}

func (s *fakeStore) PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, lifetime time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[uploadID]
	if !ok || sess.key != key {
		return "", errors.New("no such upload")
	}
	// Presigning stands in for the client actually uploading the part.
	sess.parts[partNumber] = s.partSize
	return fmt.Sprintf("https://store.example.com/%s?partNumber=%d&uploadId=%s", key, partNumber, uploadID), nil
}

func (s *fakeStore) CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []storage.CompletedPart) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[uploadID]
	if !ok || sess.key != key {
		return errors.New("no such upload")
	}
	delete(s.sessions, uploadID)
	s.objects[key] = make([]byte, 0)
	s.completed = append(s.completed, uploadID)
	return nil
}

func (s *fakeStore) AbortMultipartUpload(ctx context.Context, key, uploadID string) error {
	if s.abortErr != nil {
		return s.abortErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, uploadID)
	s.aborted = append(s.aborted, uploadID)
	return nil
}

func (s *fakeStore) MultipartSize(ctx context.Context, key, uploadID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[uploadID]
	if !ok {
		return 0, errors.New("no such upload")
	}
	var total int64
	for _, size := range sess.parts {
		total += size
	}
	return total, nil
}

func (s *fakeStore) PrefixSize(ctx context.Context, prefix string) (int64, error) {
	return 0, nil
}

func (s *fakeStore) DeletePrefix(ctx context.Context, prefix string) error {
	return nil
}

func (s *fakeStore) GetObject(ctx context.Context, key string) (io.ReadCloser, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[key]
	if !ok {
		return nil, "", errors.New("no such object")
	}
	return io.NopCloser(newByteReader(obj)), "", nil
}

func (s *fakeStore) HeadBucket(ctx context.Context) error { return nil }

type byteReader struct {
	data []byte
	pos  int
}

func newByteReader(data []byte) *byteReader { return &byteReader{data: data} }

func (r *byteReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:])
	r.pos += n
	return n, nil
}

// fakeQueue records enqueued jobs and applies the real retry budget.
type fakeQueue struct {
	mu       sync.Mutex
	enqueued []models.TranscodeJob
	requeued []models.TranscodeJob
}

func (q *fakeQueue) Enqueue(ctx context.Context, job *models.TranscodeJob) error {
	if err := job.Validate(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, *job)
	return nil
}

func (q *fakeQueue) Requeue(ctx context.Context, job *models.TranscodeJob) error {
	if job.Attempt+1 >= queue.MaxAttempts {
		return queue.ErrRetriesExhausted
	}
	job.Attempt++
	q.mu.Lock()
	defer q.mu.Unlock()
	q.requeued = append(q.requeued, *job)
	return nil
}

func (q *fakeQueue) Depth(ctx context.Context) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.enqueued), nil
}

// fixedCapacity rejects uploads above the configured byte or minute limits.
type fixedCapacity struct {
	maxBytes   int64
	maxMinutes int64
}

func (c fixedCapacity) CheckUpload(organizationID string, sizeBytes, durationSeconds int64) error {
	if c.maxBytes > 0 && sizeBytes > c.maxBytes {
		return fmt.Errorf("%w: size", models.ErrCapacityExceeded)
	}
	if c.maxMinutes > 0 && durationSeconds > c.maxMinutes*60 {
		return fmt.Errorf("%w: duration", models.ErrCapacityExceeded)
	}
	return nil
}

// fakeURLs builds playback URLs the way the managed client does.
type fakeURLs struct{}

func (fakeURLs) PlaybackURL(ref string) string {
	return "https://stream.example.com/" + ref + ".m3u8"
}

func (fakeURLs) ThumbnailURL(ref string) string {
	return "https://image.example.com/" + ref + "/thumbnail.jpg"
}

type testEnv struct {
	repo  *fakeRepo
	store *fakeStore
	jobs  *fakeQueue
	svc   *Service
}

func newTestEnv() *testEnv {
	repo := newFakeRepo()
	store := newFakeStore()
	jobs := &fakeQueue{}
	log := slog.New(slog.DiscardHandler)

	tokens, _ := auth.NewPlaybackTokenService([]byte("test-secret-0123456789"), 10*time.Minute)
	capacity := fixedCapacity{maxBytes: 500 << 30, maxMinutes: 5000}

	internal := provider.NewInternal(provider.InternalConfig{
		Repository: repo,
		Store:      store,
		Jobs:       jobs,
		Tokens:     tokens,
		Capacity:   capacity,
		UploadTTL:  15 * time.Minute,
		PublicURL:  "https://vod.example.com",
		Logger:     log,
	})
	factory := provider.NewFactory(internal, nil, log)

	svc := NewService(Config{
		Repository: repo,
		Store:      store,
		Jobs:       jobs,
		Factory:    factory,
		Capacity:   capacity,
		URLs:       fakeURLs{},
		Settings:   provider.OrganizationSettings{},
		PartURLTTL: time.Hour,
		Logger:     log,
	})

	return &testEnv{repo: repo, store: store, jobs: jobs, svc: svc}
}
