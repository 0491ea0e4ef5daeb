package ingest

import (
	"strings"
	"testing"
)

func TestRewriteManifestRootsVariantURIs(t *testing.T) {
	manifest := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=842x480",
		"480p/playlist.m3u8",
		"#EXT-X-STREAM-INF:BANDWIDTH=2800000,RESOLUTION=1280x720",
		"720p/playlist.m3u8",
		"",
	}, "\n")

	out := string(RewriteManifest([]byte(manifest), "/stream/vid-1/seg/", "token=abc"))

	if !strings.Contains(out, "/stream/vid-1/seg/480p/playlist.m3u8?token=abc") {
		t.Errorf("480p URI not rewritten:\n%s", out)
	}
	if !strings.Contains(out, "/stream/vid-1/seg/720p/playlist.m3u8?token=abc") {
		t.Errorf("720p URI not rewritten:\n%s", out)
	}
	if !strings.Contains(out, "#EXT-X-STREAM-INF:BANDWIDTH=1400000,RESOLUTION=842x480\n") {
		t.Errorf("tag line was modified:\n%s", out)
	}
}

func TestRewriteManifestSegmentURIs(t *testing.T) {
	manifest := strings.Join([]string{
		"#EXTM3U",
		"#EXT-X-TARGETDURATION:6",
		"#EXTINF:6.000,",
		"seg_000.ts",
		"#EXTINF:6.000,",
		"seg_001.ts",
		"#EXT-X-ENDLIST",
	}, "\n")

	out := string(RewriteManifest([]byte(manifest), "/stream/vid-1/seg/720p/", "token=abc"))

	if !strings.Contains(out, "/stream/vid-1/seg/720p/seg_000.ts?token=abc") {
		t.Errorf("seg_000 not rewritten:\n%s", out)
	}
	if !strings.Contains(out, "/stream/vid-1/seg/720p/seg_001.ts?token=abc") {
		t.Errorf("seg_001 not rewritten:\n%s", out)
	}
}

func TestRewriteManifestTagURIAttribute(t *testing.T) {
	line := `#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",URI="audio/playlist.m3u8"`
	out := string(RewriteManifest([]byte(line), "/stream/vid-1/seg/", "token=abc"))
	want := `#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aud",URI="/stream/vid-1/seg/audio/playlist.m3u8?token=abc"`
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestRewriteManifestPreservesExistingQuery(t *testing.T) {
	out := string(RewriteManifest([]byte("seg_000.ts?v=2"), "", "token=abc"))
	if out != "seg_000.ts?v=2&token=abc" {
		t.Errorf("got %q", out)
	}
}

func TestRewriteManifestLeavesAbsoluteURLs(t *testing.T) {
	line := "https://cdn.example.com/ad/break.ts"
	out := string(RewriteManifest([]byte(line), "/stream/vid-1/seg/", "token=abc"))
	if out != line {
		t.Errorf("absolute URL rewritten: %q", out)
	}
}

func TestRewriteManifestNoBaseNoQueryIsNoop(t *testing.T) {
	manifest := "#EXTM3U\nseg_000.ts\n"
	out := string(RewriteManifest([]byte(manifest), "", ""))
	if out != manifest {
		t.Errorf("got %q", out)
	}
}

func TestContentTypeFor(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"master.m3u8", ContentTypeM3U8},
		{"480p/seg_0001.ts", ContentTypeTS},
		{"init.mp4", ContentTypeMP4},
		{"seg_0001.m4s", ContentTypeMP4},
		{"thumbnail.jpg", ContentTypeJPEG},
		{"subs.vtt", ContentTypeVTT},
		{"unknown.bin", "application/octet-stream"},
	}
	for _, tt := range tests {
		if got := ContentTypeFor(tt.name); got != tt.want {
			t.Errorf("ContentTypeFor(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}
