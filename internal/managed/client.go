// Package managed is the client for the external managed encoding service.
// The service accepts direct uploads, encodes them automatically, and
// notifies completion through signed webhooks.
package managed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/reelworks/vod-pipeline/pkg/models"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	maxResponseBody       = 1 << 20
)

// Credentials authenticate one account against the managed service API.
type Credentials struct {
	TokenID     string
	TokenSecret string
}

// Configured reports whether the credentials are usable.
func (c Credentials) Configured() bool {
	return c.TokenID != "" && c.TokenSecret != ""
}

// Client calls the managed service's REST API.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	creds        Credentials
	streamDomain string
	imageDomain  string
}

// Config holds client construction parameters.
type Config struct {
	APIURL       string
	Credentials  Credentials
	StreamDomain string
	ImageDomain  string
	HTTPClient   *http.Client
}

// NewClient creates a managed service client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultRequestTimeout}
	}
	return &Client{
		httpClient:   httpClient,
		baseURL:      cfg.APIURL,
		creds:        cfg.Credentials,
		streamDomain: cfg.StreamDomain,
		imageDomain:  cfg.ImageDomain,
	}
}

// Upload session statuses reported by the managed service.
const (
	UploadStatusWaiting  = "waiting"
	UploadStatusCreated  = "asset_created"
	UploadStatusErrored  = "errored"
	UploadStatusCanceled = "cancelled"
	UploadStatusTimedOut = "timed_out"
)

// DirectUpload is an upload session created on the managed service.
type DirectUpload struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	AssetID   string `json:"asset_id,omitempty"`
	Status    string `json:"status"`
	ExpiresIn int64  `json:"timeout,omitempty"`
}

// Asset is an encoded output on the managed service.
type Asset struct {
	ID              string   `json:"id"`
	Status          string   `json:"status"`
	PlaybackIDs     []string `json:"playback_ids,omitempty"`
	DurationSeconds float64  `json:"duration,omitempty"`
	UploadID        string   `json:"upload_id,omitempty"`
	ErrorMessage    string   `json:"error_message,omitempty"`
}

// PlaybackRef returns the asset's primary playback reference, if any.
func (a *Asset) PlaybackRef() string {
	if len(a.PlaybackIDs) == 0 {
		return ""
	}
	return a.PlaybackIDs[0]
}

type createDirectUploadRequest struct {
	CORSOrigin  string `json:"cors_origin,omitempty"`
	Passthrough string `json:"passthrough,omitempty"`
	TimeoutSecs int64  `json:"timeout,omitempty"`
}

type envelope struct {
	Data json.RawMessage `json:"data"`
}

// CreateDirectUpload opens an upload session on the managed service. The
// local video id rides along as passthrough so webhooks can be correlated
// even if the upload reference is lost.
func (c *Client) CreateDirectUpload(ctx context.Context, videoID, corsOrigin string, timeout time.Duration) (*DirectUpload, error) {
	body := createDirectUploadRequest{
		CORSOrigin:  corsOrigin,
		Passthrough: videoID,
		TimeoutSecs: int64(timeout / time.Second),
	}

	var upload DirectUpload
	if err := c.do(ctx, http.MethodPost, "/video/v1/direct-uploads", body, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// GetUpload fetches an upload session by its reference.
func (c *Client) GetUpload(ctx context.Context, uploadID string) (*DirectUpload, error) {
	var upload DirectUpload
	if err := c.do(ctx, http.MethodGet, "/video/v1/direct-uploads/"+uploadID, nil, &upload); err != nil {
		return nil, err
	}
	return &upload, nil
}

// GetAsset fetches an encoded asset by its reference.
func (c *Client) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var asset Asset
	if err := c.do(ctx, http.MethodGet, "/video/v1/assets/"+assetID, nil, &asset); err != nil {
		return nil, err
	}
	return &asset, nil
}

// DeleteAsset removes an asset. Deleting an unknown asset is success, so
// client retries never fail.
func (c *Client) DeleteAsset(ctx context.Context, assetID string) error {
	err := c.do(ctx, http.MethodDelete, "/video/v1/assets/"+assetID, nil, nil)
	if err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// Ping performs a lightweight read-only probe against the API.
func (c *Client) Ping(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "/video/v1/assets?limit=1", nil, nil)
	if err != nil && !IsNotFound(err) {
		return err
	}
	return nil
}

// PlaybackURL builds the public HLS URL for a playback reference.
func (c *Client) PlaybackURL(playbackRef string) string {
	return fmt.Sprintf("https://%s/%s.m3u8", c.streamDomain, playbackRef)
}

// ThumbnailURL builds the public thumbnail URL for a playback reference.
func (c *Client) ThumbnailURL(playbackRef string) string {
	return fmt.Sprintf("https://%s/%s/thumbnail.jpg", c.imageDomain, playbackRef)
}

// APIError is a non-2xx response from the managed service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("managed service returned %d: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether the error is a managed-service 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	if !c.creds.Configured() {
		return models.ErrProviderNotConfigured
	}

	var reqBody io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.SetBasicAuth(c.creds.TokenID, c.creds.TokenSecret)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
	}

	if out == nil {
		return nil
	}

	// Responses wrap the payload in a data envelope.
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		raw = env.Data
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
