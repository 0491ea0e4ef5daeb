package storage

import "fmt"

// AssetKey returns the storage prefix for a video's objects. It is a pure
// function of the organization and video ids, fixed at PendingUpload creation.
func AssetKey(organizationID, videoID string) string {
	return fmt.Sprintf("videos/%s/%s", organizationID, videoID)
}

// SourceKey returns the object key the raw upload is written to.
func SourceKey(assetKey string) string {
	return assetKey + "/source.mp4"
}

// HLSPrefix returns the prefix the encode worker writes HLS output under.
func HLSPrefix(assetKey string) string {
	return assetKey + "/hls/"
}
