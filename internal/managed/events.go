package managed

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Webhook event types the reconciler understands. Anything else is counted
// and ignored.
const (
	EventAssetReady     = "video.asset.ready"
	EventAssetErrored   = "video.asset.errored"
	EventUploadComplete = "video.upload.asset_created"
	EventUploadCanceled = "video.upload.cancelled"
)

// SignatureHeader carries the hex HMAC-SHA256 of the raw request body.
const SignatureHeader = "X-Managed-Signature"

// WebhookEvent is the envelope the managed service delivers. Delivery is
// unordered and at-least-once; the payload alone must identify the asset.
type WebhookEvent struct {
	Type string       `json:"type"`
	Data WebhookAsset `json:"data"`
}

// WebhookAsset is the asset snapshot inside a webhook event.
type WebhookAsset struct {
	ID              string   `json:"id"`
	UploadID        string   `json:"upload_id,omitempty"`
	Status          string   `json:"status,omitempty"`
	PlaybackIDs     []string `json:"playback_ids,omitempty"`
	DurationSeconds float64  `json:"duration,omitempty"`
	Passthrough     string   `json:"passthrough,omitempty"`
	OrganizationID  string   `json:"organization_id,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

// PlaybackRef returns the event's primary playback reference, if any.
func (a *WebhookAsset) PlaybackRef() string {
	if len(a.PlaybackIDs) == 0 {
		return ""
	}
	return a.PlaybackIDs[0]
}

// ParseWebhook decodes a webhook request body.
func ParseWebhook(body []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// SignBody computes the hex HMAC-SHA256 signature for a webhook body.
func SignBody(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a webhook signature in constant time. An empty
// secret disables verification (development only).
func VerifySignature(secret, body []byte, signature string) bool {
	if len(secret) == 0 {
		return true
	}
	expected := SignBody(secret, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
