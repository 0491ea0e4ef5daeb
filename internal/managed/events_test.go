package managed

import "testing"

func TestVerifySignature(t *testing.T) {
	secret := []byte("webhook-secret")
	body := []byte(`{"type":"video.asset.ready","data":{"id":"asset-1"}}`)
	good := SignBody(secret, body)

	tests := []struct {
		name      string
		secret    []byte
		signature string
		want      bool
	}{
		{"valid signature", secret, good, true},
		{"wrong signature", secret, "deadbeef", false},
		{"empty signature", secret, "", false},
		{"tampered body signature", secret, SignBody(secret, []byte("other")), false},
		{"no secret disables verification", nil, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.secret, body, tt.signature); got != tt.want {
				t.Errorf("VerifySignature = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseWebhook(t *testing.T) {
	body := []byte(`{
		"type": "video.asset.ready",
		"data": {
			"id": "asset-1",
			"upload_id": "up-1",
			"playback_ids": ["pb-1", "pb-2"],
			"duration": 93.7,
			"passthrough": "vid-1"
		}
	}`)

	event, err := ParseWebhook(body)
	if err != nil {
		t.Fatalf("ParseWebhook: %v", err)
	}
	if event.Type != EventAssetReady {
		t.Errorf("type = %q", event.Type)
	}
	if event.Data.PlaybackRef() != "pb-1" {
		t.Errorf("playback ref = %q", event.Data.PlaybackRef())
	}
	if event.Data.Passthrough != "vid-1" {
		t.Errorf("passthrough = %q", event.Data.Passthrough)
	}

	if _, err := ParseWebhook([]byte("{not json")); err == nil {
		t.Error("malformed body accepted")
	}
}
