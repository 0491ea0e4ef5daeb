package api

import (
	"io"
	"net/http"

	"github.com/reelworks/vod-pipeline/internal/ingest"
	"github.com/reelworks/vod-pipeline/internal/managed"
	"github.com/reelworks/vod-pipeline/internal/observability"
)

// maxWebhookBody caps webhook payloads well above anything the provider
// actually sends.
const maxWebhookBody = 256 << 10

// ManagedWebhookHandler ingests provider webhook deliveries. Signature
// failures are rejected; everything past the signature is acknowledged with
// 200 even when nothing matches, because the provider retries non-2xx
// deliveries and an unmatchable event never becomes matchable.
func (h *Handlers) ManagedWebhookHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	if !managed.VerifySignature(h.webhookSecret, body, r.Header.Get(managed.SignatureHeader)) {
		h.log.WarnContext(ctx, "Webhook signature verification failed")
		h.writeError(ctx, w, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	event, err := managed.ParseWebhook(body)
	if err != nil {
		h.writeError(ctx, w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}

	if err := h.service.Reconcile(ctx, event); err != nil {
		h.log.ErrorContext(ctx, "Webhook reconciliation failed", observability.WithTrace(ctx, []any{
			"type", event.Type,
			"error", err,
		})...)
		h.writeError(ctx, w, http.StatusInternalServerError, "Reconciliation failed")
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"success": true})
}

// TranscodeCallbackHandler receives the encode worker's success report.
// Internal-network only.
func (h *Handlers) TranscodeCallbackHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var result ingest.TranscodeResult
	if err := h.decodeBody(w, r, &result); err != nil {
		h.writeDecodeError(ctx, w, err)
		return
	}

	if err := h.service.HandleTranscodeResult(ctx, result); err != nil {
		h.log.ErrorContext(ctx, "Failed to apply transcode result",
			"videoId", result.VideoID,
			"error", err,
		)
		h.writeServiceError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "videoId": result.VideoID})
}

// TranscodeFailureHandler receives the encode worker's failure report and
// either requeues the job or marks the video errored. Internal-network only.
func (h *Handlers) TranscodeFailureHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var failure ingest.TranscodeFailure
	if err := h.decodeBody(w, r, &failure); err != nil {
		h.writeDecodeError(ctx, w, err)
		return
	}

	if err := h.service.HandleTranscodeFailure(ctx, failure); err != nil {
		h.log.ErrorContext(ctx, "Failed to apply transcode failure",
			"videoId", failure.Job.VideoID,
			"error", err,
		)
		h.writeServiceError(ctx, w, err)
		return
	}

	h.writeJSON(ctx, w, http.StatusOK, map[string]any{"success": true, "videoId": failure.Job.VideoID})
}
