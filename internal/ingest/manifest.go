package ingest

import (
	"path"
	"strings"
)

// HLS content types served by the stream endpoints.
const (
	ContentTypeM3U8 = "application/vnd.apple.mpegurl"
	ContentTypeTS   = "video/mp2t"
	ContentTypeMP4  = "video/mp4"
	ContentTypeJPEG = "image/jpeg"
	ContentTypeVTT  = "text/vtt"
)

// ContentTypeFor maps a playlist or segment filename to its media type.
func ContentTypeFor(name string) string {
	switch strings.ToLower(path.Ext(name)) {
	case ".m3u8":
		return ContentTypeM3U8
	case ".ts":
		return ContentTypeTS
	case ".mp4", ".m4s":
		return ContentTypeMP4
	case ".jpg", ".jpeg":
		return ContentTypeJPEG
	case ".vtt":
		return ContentTypeVTT
	default:
		return "application/octet-stream"
	}
}

// RewriteManifest re-roots every relative URI in an HLS playlist under base,
// the token-gated serving endpoint, and appends a query string so segment and
// variant requests carry the caller's playback token. URI lines and URI="..."
// tag attributes are rewritten; absolute URLs are left alone since they point
// outside the token-gated origin.
func RewriteManifest(manifest []byte, base, query string) []byte {
	if base == "" && query == "" {
		return manifest
	}

	lines := strings.Split(string(manifest), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if strings.HasPrefix(trimmed, "#") {
			lines[i] = rewriteTagURI(line, base, query)
			continue
		}
		lines[i] = rewriteURI(trimmed, base, query)
	}
	return []byte(strings.Join(lines, "\n"))
}

// rewriteTagURI rewrites the URI="..." attribute of tags like EXT-X-MEDIA
// and EXT-X-I-FRAME-STREAM-INF.
func rewriteTagURI(line, base, query string) string {
	const marker = `URI="`
	start := strings.Index(line, marker)
	if start < 0 {
		return line
	}
	start += len(marker)
	end := strings.Index(line[start:], `"`)
	if end < 0 {
		return line
	}
	uri := line[start : start+end]
	return line[:start] + rewriteURI(uri, base, query) + line[start+end:]
}

func rewriteURI(uri, base, query string) string {
	if isAbsoluteURL(uri) {
		return uri
	}
	uri = base + uri
	if query == "" {
		return uri
	}
	sep := "?"
	if strings.Contains(uri, "?") {
		sep = "&"
	}
	return uri + sep + query
}

func isAbsoluteURL(uri string) bool {
	return strings.HasPrefix(uri, "http://") || strings.HasPrefix(uri, "https://")
}
