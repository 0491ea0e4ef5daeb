package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/reelworks/vod-pipeline/internal/auth"
	"github.com/reelworks/vod-pipeline/internal/config"
	"github.com/reelworks/vod-pipeline/internal/ingest"
	"github.com/reelworks/vod-pipeline/internal/observability"
	"github.com/reelworks/vod-pipeline/internal/provider"
	"github.com/reelworks/vod-pipeline/internal/storage"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

var tracer = otel.Tracer("vod-api")

// Configuration constants
const (
	MaxNameLength      = 200
	MaxRequestBodySize = 1 << 20 // 1 MB
	DefaultListLimit   = 50
	MaxListLimit       = 200
)

// Handlers contains all HTTP handlers for the API.
type Handlers struct {
	cfg            *config.Config
	log            *slog.Logger
	service        *ingest.Service
	store          provider.ObjectStore
	jwtService     *auth.JWTService
	playbackTokens *auth.PlaybackTokenService
	rateLimiter    *auth.RateLimiter
	webhookSecret  []byte
}

// HandlersConfig holds dependencies for handlers.
type HandlersConfig struct {
	Config         *config.Config
	Logger         *slog.Logger
	Service        *ingest.Service
	Store          provider.ObjectStore
	JWTService     *auth.JWTService
	PlaybackTokens *auth.PlaybackTokenService
	RateLimiter    *auth.RateLimiter
	WebhookSecret  []byte
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(cfg *HandlersConfig) *Handlers {
	return &Handlers{
		cfg:            cfg.Config,
		log:            cfg.Logger,
		service:        cfg.Service,
		store:          cfg.Store,
		jwtService:     cfg.JWTService,
		playbackTokens: cfg.PlaybackTokens,
		rateLimiter:    cfg.RateLimiter,
		webhookSecret:  cfg.WebhookSecret,
	}
}

// writeJSON writes a JSON response.
func (h *Handlers) writeJSON(ctx context.Context, w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.ErrorContext(ctx, "Failed to encode JSON response", "error", err)
	}
}

// writeError writes an error response.
func (h *Handlers) writeError(ctx context.Context, w http.ResponseWriter, status int, message string) {
	h.writeJSON(ctx, w, status, map[string]string{"error": message})
}

// writeServiceError maps pipeline sentinel errors onto HTTP statuses.
func (h *Handlers) writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		h.writeError(ctx, w, http.StatusNotFound, "Video not found")
	case errors.Is(err, models.ErrAccessDenied):
		h.writeError(ctx, w, http.StatusNotFound, "Video not found")
	case errors.Is(err, models.ErrCapacityExceeded):
		h.writeError(ctx, w, http.StatusForbidden, "Plan capacity exceeded")
	case errors.Is(err, models.ErrConflict):
		h.writeError(ctx, w, http.StatusConflict, "Conflicting record already exists")
	case errors.Is(err, models.ErrTokenNotSupported):
		h.writeError(ctx, w, http.StatusBadRequest, "Playback tokens are not supported for this video")
	case errors.Is(err, models.ErrProviderUnavailable):
		h.log.ErrorContext(ctx, "Provider call failed", "error", err)
		h.writeError(ctx, w, http.StatusBadGateway, "Upstream provider unavailable")
	default:
		h.log.ErrorContext(ctx, "Unhandled service error", "error", err)
		h.writeError(ctx, w, http.StatusInternalServerError, "Internal server error")
	}
}

// decodeBody decodes a size-limited JSON request body.
func (h *Handlers) decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	return json.NewDecoder(r.Body).Decode(dst)
}

func (h *Handlers) writeDecodeError(ctx context.Context, w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		h.writeError(ctx, w, http.StatusRequestEntityTooLarge, "Request body too large")
		return
	}
	h.writeError(ctx, w, http.StatusBadRequest, "Invalid request body")
}

// CreateUploadRequest is the request payload for upload initialization.
type CreateUploadRequest struct {
	Name               string   `json:"name"`
	Description        string   `json:"description,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	Visibility         string   `json:"visibility,omitempty"`
	Provider           string   `json:"provider,omitempty"`
	ExpectedSizeBytes  int64    `json:"expectedSizeBytes,omitempty"`
	MaxDurationSeconds int64    `json:"maxDurationSeconds,omitempty"`
}

// CreateUploadResponse is the response payload for upload initialization.
type CreateUploadResponse struct {
	UploadURL string    `json:"uploadUrl"`
	VideoID   string    `json:"videoId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// CreateUploadHandler issues an upload target from the organization's
// provider.
func (h *Handlers) CreateUploadHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := auth.OrganizationFromContext(ctx)

	ctx, span := tracer.Start(ctx, "create-upload-handler",
		trace.WithAttributes(attribute.String("organization.id", organizationID)))
	defer span.End()

	var req CreateUploadRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		span.RecordError(err)
		h.writeDecodeError(ctx, w, err)
		return
	}

	visibility, override, err := h.validateUploadRequest(req.Name, req.Tags, req.Visibility, req.Provider)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.CreateUpload(ctx, provider.CreateUploadParams{
		OrganizationID:     organizationID,
		Name:               req.Name,
		Description:        req.Description,
		Tags:               req.Tags,
		Visibility:         visibility,
		ExpectedSizeBytes:  req.ExpectedSizeBytes,
		MaxDurationSeconds: req.MaxDurationSeconds,
	}, override)
	if err != nil {
		span.RecordError(err)
		h.writeServiceError(ctx, w, err)
		return
	}

	span.SetAttributes(attribute.String("video.id", result.VideoID))
	h.log.InfoContext(ctx, "Issued upload URL", observability.WithTrace(ctx, []any{
		"videoId", result.VideoID,
		"organizationId", organizationID,
	})...)

	h.writeJSON(ctx, w, http.StatusCreated, CreateUploadResponse{
		UploadURL: result.UploadURL,
		VideoID:   result.VideoID,
		ExpiresAt: result.ExpiresAt,
	})
}

// validateUploadRequest checks shared upload request fields and resolves the
// visibility default and provider override.
func (h *Handlers) validateUploadRequest(name string, tags []string, visibility, providerName string) (models.Visibility, models.ProviderName, error) {
	if name == "" {
		return "", "", models.ErrNameRequired
	}
	if len(name) > MaxNameLength {
		return "", "", models.ErrNameTooLong
	}
	if len(tags) > h.cfg.Upload.MaxTagCount {
		return "", "", errors.New("too many tags")
	}

	vis := models.VisibilityPrivate
	if visibility != "" {
		vis = models.Visibility(visibility)
		if !vis.IsValid() {
			return "", "", models.ErrInvalidVisibility
		}
	}

	var override models.ProviderName
	switch providerName {
	case "":
	case string(models.ProviderInternal), string(models.ProviderManaged):
		override = models.ProviderName(providerName)
	default:
		return "", "", errors.New("unknown provider")
	}

	return vis, override, nil
}

// InitMultipartRequest is the request payload for multipart initialization.
type InitMultipartRequest struct {
	Name               string   `json:"name"`
	Description        string   `json:"description,omitempty"`
	Tags               []string `json:"tags,omitempty"`
	Visibility         string   `json:"visibility,omitempty"`
	DeclaredSizeBytes  int64    `json:"declaredSizeBytes"`
	MaxDurationSeconds int64    `json:"maxDurationSeconds,omitempty"`
}

// InitMultipartHandler opens a multipart upload session.
func (h *Handlers) InitMultipartHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := auth.OrganizationFromContext(ctx)

	ctx, span := tracer.Start(ctx, "init-multipart-handler",
		trace.WithAttributes(attribute.String("organization.id", organizationID)))
	defer span.End()

	var req InitMultipartRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		span.RecordError(err)
		h.writeDecodeError(ctx, w, err)
		return
	}

	visibility, _, err := h.validateUploadRequest(req.Name, req.Tags, req.Visibility, "")
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}
	if req.DeclaredSizeBytes <= 0 {
		h.writeError(ctx, w, http.StatusBadRequest, "declaredSizeBytes is required")
		return
	}

	session, err := h.service.InitMultipart(ctx, ingest.MultipartInitParams{
		OrganizationID:     organizationID,
		Name:               req.Name,
		Description:        req.Description,
		Tags:               req.Tags,
		Visibility:         visibility,
		DeclaredSizeBytes:  req.DeclaredSizeBytes,
		MaxDurationSeconds: req.MaxDurationSeconds,
	})
	if err != nil {
		span.RecordError(err)
		h.writeServiceError(ctx, w, err)
		return
	}

	span.SetAttributes(attribute.String("video.id", session.VideoID))
	h.writeJSON(ctx, w, http.StatusCreated, session)
}

// MultipartPartRequest is the request payload for a part URL.
type MultipartPartRequest struct {
	VideoID    string `json:"videoId"`
	UploadID   string `json:"uploadId"`
	PartNumber int32  `json:"partNumber"`
}

// MultipartPartHandler presigns one part of an open session.
func (h *Handlers) MultipartPartHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := auth.OrganizationFromContext(ctx)

	var req MultipartPartRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.writeDecodeError(ctx, w, err)
		return
	}
	if req.VideoID == "" || req.UploadID == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "videoId and uploadId are required")
		return
	}
	if req.PartNumber < 1 {
		h.writeError(ctx, w, http.StatusBadRequest, "partNumber must be positive")
		return
	}

	part, err := h.service.MultipartPartURL(ctx, organizationID, req.VideoID, req.UploadID, req.PartNumber)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, part)
}

// CompleteMultipartRequest is the request payload for completing a session.
type CompleteMultipartRequest struct {
	VideoID  string                  `json:"videoId"`
	UploadID string                  `json:"uploadId"`
	Parts    []storage.CompletedPart `json:"parts"`
}

// CompleteMultipartHandler finishes a multipart session and queues the
// transcode.
func (h *Handlers) CompleteMultipartHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := auth.OrganizationFromContext(ctx)

	ctx, span := tracer.Start(ctx, "complete-multipart-handler",
		trace.WithAttributes(attribute.String("organization.id", organizationID)))
	defer span.End()

	var req CompleteMultipartRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		span.RecordError(err)
		h.writeDecodeError(ctx, w, err)
		return
	}
	if req.VideoID == "" || req.UploadID == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "videoId and uploadId are required")
		return
	}

	if err := h.service.CompleteMultipart(ctx, organizationID, req.VideoID, req.UploadID, req.Parts); err != nil {
		span.RecordError(err)
		h.writeServiceError(ctx, w, err)
		return
	}

	span.SetAttributes(attribute.String("video.id", req.VideoID))
	h.writeJSON(ctx, w, http.StatusAccepted, map[string]string{
		"videoId": req.VideoID,
		"status":  string(models.StatusProcessing),
	})
}

// AbortMultipartRequest is the request payload for aborting a session.
type AbortMultipartRequest struct {
	VideoID  string `json:"videoId"`
	UploadID string `json:"uploadId"`
}

// AbortMultipartHandler discards an open multipart session.
func (h *Handlers) AbortMultipartHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := auth.OrganizationFromContext(ctx)

	var req AbortMultipartRequest
	if err := h.decodeBody(w, r, &req); err != nil {
		h.writeDecodeError(ctx, w, err)
		return
	}
	if req.VideoID == "" || req.UploadID == "" {
		h.writeError(ctx, w, http.StatusBadRequest, "videoId and uploadId are required")
		return
	}

	if err := h.service.AbortMultipart(ctx, organizationID, req.VideoID, req.UploadID); err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// VideoStatusHandler returns a point-in-time status snapshot. The identifier
// may be a video id, a pending upload id, or any external provider reference.
func (h *Handlers) VideoStatusHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := auth.OrganizationFromContext(ctx)
	identifier := r.PathValue("videoID")

	snapshot, err := h.service.GetStatus(ctx, identifier, organizationID)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, snapshot)
}

// GetVideoHandler returns a single video row.
func (h *Handlers) GetVideoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := auth.OrganizationFromContext(ctx)

	video, err := h.service.GetVideo(ctx, r.PathValue("videoID"), organizationID)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, video)
}

// ListVideosHandler returns the organization's videos, newest first.
func (h *Handlers) ListVideosHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := auth.OrganizationFromContext(ctx)

	limit := DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > MaxListLimit {
			h.writeError(ctx, w, http.StatusBadRequest, "Invalid limit")
			return
		}
		limit = parsed
	}

	videos, err := h.service.ListVideos(ctx, organizationID, int32(limit))
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"videos": videos})
}

// PlaybackTokenResponse is the response payload for token issuance.
type PlaybackTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// PlaybackTokenHandler issues a short-lived streaming token for one video.
func (h *Handlers) PlaybackTokenHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := auth.OrganizationFromContext(ctx)
	videoID := r.PathValue("videoID")

	token, err := h.service.IssuePlaybackToken(ctx, videoID, organizationID)
	if err != nil {
		h.writeServiceError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, PlaybackTokenResponse{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
	})
}

// DeleteVideoHandler removes a video through its owning provider. Repeated
// deletes succeed.
func (h *Handlers) DeleteVideoHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := auth.OrganizationFromContext(ctx)
	videoID := r.PathValue("videoID")

	ctx, span := tracer.Start(ctx, "delete-video-handler",
		trace.WithAttributes(attribute.String("video.id", videoID)))
	defer span.End()

	if err := h.service.DeleteVideo(ctx, videoID, organizationID); err != nil {
		span.RecordError(err)
		h.writeServiceError(ctx, w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
