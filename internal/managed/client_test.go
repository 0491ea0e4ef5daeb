package managed

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/reelworks/vod-pipeline/pkg/models"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(Config{
		APIURL:       server.URL,
		Credentials:  Credentials{TokenID: "token-id", TokenSecret: "token-secret"},
		StreamDomain: "stream.example.com",
		ImageDomain:  "image.example.com",
	})
}

func TestCreateDirectUpload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/video/v1/direct-uploads" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "token-id" || pass != "token-secret" {
			t.Error("missing or wrong basic auth")
		}

		var req map[string]any
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["passthrough"] != "vid-1" {
			t.Errorf("passthrough = %v, want vid-1", req["passthrough"])
		}

		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id":     "up-1",
				"url":    "https://upload.example.com/put/up-1",
				"status": "waiting",
			},
		})
	})

	upload, err := client.CreateDirectUpload(context.Background(), "vid-1", "https://app.example.com", 15*time.Minute)
	if err != nil {
		t.Fatalf("CreateDirectUpload: %v", err)
	}
	if upload.ID != "up-1" {
		t.Errorf("upload id = %q", upload.ID)
	}
	if upload.URL == "" {
		t.Error("empty upload url")
	}
}

func TestGetAssetUnwrapsEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"id":           "asset-1",
				"status":       "ready",
				"playback_ids": []string{"pb-1"},
				"duration":     12.5,
			},
		})
	})

	asset, err := client.GetAsset(context.Background(), "asset-1")
	if err != nil {
		t.Fatalf("GetAsset: %v", err)
	}
	if asset.PlaybackRef() != "pb-1" {
		t.Errorf("playback ref = %q", asset.PlaybackRef())
	}
	if asset.DurationSeconds != 12.5 {
		t.Errorf("duration = %v", asset.DurationSeconds)
	}
}

func TestDeleteAssetNotFoundIsSuccess(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	if err := client.DeleteAsset(context.Background(), "asset-gone"); err != nil {
		t.Fatalf("delete of unknown asset should succeed, got %v", err)
	}
}

func TestAPIErrorSurfacesStatus(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "server on fire", http.StatusInternalServerError)
	})

	_, err := client.GetAsset(context.Background(), "asset-1")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if apiErr.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d", apiErr.StatusCode)
	}
}

func TestUnconfiguredCredentialsRejected(t *testing.T) {
	client := NewClient(Config{APIURL: "https://api.example.com"})
	_, err := client.GetAsset(context.Background(), "asset-1")
	if !errors.Is(err, models.ErrProviderNotConfigured) {
		t.Fatalf("err = %v, want ErrProviderNotConfigured", err)
	}
}

func TestPlaybackURLs(t *testing.T) {
	client := NewClient(Config{
		Credentials:  Credentials{TokenID: "a", TokenSecret: "b"},
		StreamDomain: "stream.example.com",
		ImageDomain:  "image.example.com",
	})

	if got := client.PlaybackURL("pb-1"); got != "https://stream.example.com/pb-1.m3u8" {
		t.Errorf("playback url = %q", got)
	}
	if got := client.ThumbnailURL("pb-1"); got != "https://image.example.com/pb-1/thumbnail.jpg" {
		t.Errorf("thumbnail url = %q", got)
	}
}
