package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/reelworks/vod-pipeline/internal/auth"
	"github.com/reelworks/vod-pipeline/internal/ingest"
	"github.com/reelworks/vod-pipeline/internal/metrics"
	"github.com/reelworks/vod-pipeline/internal/storage"
	"github.com/reelworks/vod-pipeline/pkg/models"
)

// Cache-Control values for streamed resources. Segments are immutable once
// written; manifests are rewritten per token so they must not be shared.
const (
	segmentCacheControl  = "public, max-age=31536000, immutable"
	manifestCacheControl = "private, no-store"
)

// streamVideo verifies the playback token for a streaming request and loads
// the video it gates. Every failure counts toward the per-IP limit so token
// guessing gets cut off.
func (h *Handlers) streamVideo(w http.ResponseWriter, r *http.Request, kind string) (*models.Video, string, bool) {
	ctx := r.Context()
	videoID := r.PathValue("videoID")
	clientIP := auth.GetClientIP(r)

	if h.rateLimiter != nil && h.rateLimiter.IsLimited(clientIP) {
		metrics.StreamRequests.WithLabelValues(kind, "rate_limited").Inc()
		h.writeError(ctx, w, http.StatusTooManyRequests, "Too many failed requests")
		return nil, "", false
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		metrics.StreamRequests.WithLabelValues(kind, "missing_token").Inc()
		h.writeError(ctx, w, http.StatusUnauthorized, "Playback token required")
		return nil, "", false
	}

	claims, err := h.playbackTokens.VerifyFor(token, videoID)
	if err != nil {
		if h.rateLimiter != nil {
			h.rateLimiter.RecordFailure(clientIP)
		}
		metrics.StreamRequests.WithLabelValues(kind, "invalid_token").Inc()
		if errors.Is(err, models.ErrTokenMismatch) {
			h.writeError(ctx, w, http.StatusForbidden, "Token was not issued for this video")
			return nil, "", false
		}
		h.writeError(ctx, w, http.StatusUnauthorized, "Invalid or expired playback token")
		return nil, "", false
	}

	video, err := h.service.GetVideo(ctx, videoID, claims.OrganizationID)
	if err != nil {
		metrics.StreamRequests.WithLabelValues(kind, "not_found").Inc()
		h.writeServiceError(ctx, w, err)
		return nil, "", false
	}
	if video.Provider != models.ProviderInternal || video.Status != models.StatusReady {
		metrics.StreamRequests.WithLabelValues(kind, "not_ready").Inc()
		h.writeError(ctx, w, http.StatusNotFound, "Video is not available for streaming")
		return nil, "", false
	}

	return video, token, true
}

// MasterManifestHandler serves the master playlist with the caller's token
// threaded through every variant URI.
func (h *Handlers) MasterManifestHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, token, ok := h.streamVideo(w, r, "manifest")
	if !ok {
		return
	}

	manifestKey := video.PlaybackManifestKey
	if manifestKey == "" {
		manifestKey = storage.HLSPrefix(video.AssetKey) + "master.m3u8"
	}

	body, _, err := h.store.GetObject(ctx, manifestKey)
	if err != nil {
		metrics.StreamRequests.WithLabelValues("manifest", "error").Inc()
		h.log.ErrorContext(ctx, "Failed to fetch master manifest", "videoId", video.ID, "error", err)
		h.writeError(ctx, w, http.StatusBadGateway, "Failed to fetch manifest")
		return
	}
	defer body.Close()

	raw, err := io.ReadAll(body)
	if err != nil {
		metrics.StreamRequests.WithLabelValues("manifest", "error").Inc()
		h.writeError(ctx, w, http.StatusBadGateway, "Failed to read manifest")
		return
	}

	metrics.StreamRequests.WithLabelValues("manifest", "success").Inc()
	w.Header().Set("Content-Type", ingest.ContentTypeM3U8)
	w.Header().Set("Cache-Control", manifestCacheControl)
	w.Write(ingest.RewriteManifest(raw, h.segmentBase(video.ID, "."), tokenQuery(token)))
}

// SegmentHandler serves variant playlists and media segments from under the
// video's HLS prefix.
func (h *Handlers) SegmentHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, token, ok := h.streamVideo(w, r, "segment")
	if !ok {
		return
	}

	rel := r.PathValue("path")
	if !validRelPath(rel) {
		metrics.StreamRequests.WithLabelValues("segment", "bad_path").Inc()
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid segment path")
		return
	}

	body, contentType, err := h.store.GetObject(ctx, storage.HLSPrefix(video.AssetKey)+rel)
	if err != nil {
		metrics.StreamRequests.WithLabelValues("segment", "error").Inc()
		h.writeError(ctx, w, http.StatusNotFound, "Segment not found")
		return
	}
	defer body.Close()

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ingest.ContentTypeFor(rel)
	}
	w.Header().Set("Content-Type", contentType)

	// Variant playlists need the token threaded into their segment URIs;
	// everything else streams through untouched.
	if strings.HasSuffix(rel, ".m3u8") {
		raw, err := io.ReadAll(body)
		if err != nil {
			metrics.StreamRequests.WithLabelValues("segment", "error").Inc()
			h.writeError(ctx, w, http.StatusBadGateway, "Failed to read playlist")
			return
		}
		metrics.StreamRequests.WithLabelValues("segment", "success").Inc()
		w.Header().Set("Cache-Control", manifestCacheControl)
		w.Write(ingest.RewriteManifest(raw, h.segmentBase(video.ID, path.Dir(rel)), tokenQuery(token)))
		return
	}

	metrics.StreamRequests.WithLabelValues("segment", "success").Inc()
	w.Header().Set("Cache-Control", segmentCacheControl)
	if _, err := io.Copy(w, body); err != nil {
		h.log.WarnContext(ctx, "Segment stream interrupted", "videoId", video.ID, "error", err)
	}
}

// ThumbnailHandler serves the video's thumbnail. Token rules match the
// stream endpoints: a token for a different video is rejected.
func (h *Handlers) ThumbnailHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, _, ok := h.streamVideo(w, r, "thumbnail")
	if !ok {
		return
	}

	if video.ThumbnailKey == "" {
		metrics.StreamRequests.WithLabelValues("thumbnail", "not_found").Inc()
		h.writeError(ctx, w, http.StatusNotFound, "No thumbnail for this video")
		return
	}

	body, contentType, err := h.store.GetObject(ctx, video.ThumbnailKey)
	if err != nil {
		metrics.StreamRequests.WithLabelValues("thumbnail", "error").Inc()
		h.writeError(ctx, w, http.StatusNotFound, "Thumbnail not found")
		return
	}
	defer body.Close()

	if contentType == "" || contentType == "application/octet-stream" {
		contentType = ingest.ContentTypeFor(video.ThumbnailKey)
	}

	metrics.StreamRequests.WithLabelValues("thumbnail", "success").Inc()
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", segmentCacheControl)
	io.Copy(w, body)
}

func tokenQuery(token string) string {
	return "token=" + url.QueryEscape(token)
}

// segmentBase builds the URL prefix relative manifest references are re-rooted
// under, so players resolve variants and segments against the token-gated
// segment endpoint. dir is the manifest's directory within the HLS prefix
// ("." for the master).
func (h *Handlers) segmentBase(videoID, dir string) string {
	base := h.cfg.API.PublicURL + "/stream/" + videoID + "/seg/"
	if dir != "." && dir != "" {
		base += dir + "/"
	}
	return base
}

// validRelPath rejects traversal and absolute paths in segment requests.
func validRelPath(rel string) bool {
	if rel == "" || strings.HasPrefix(rel, "/") {
		return false
	}
	cleaned := path.Clean(rel)
	return cleaned == rel && !strings.Contains(rel, "..")
}
