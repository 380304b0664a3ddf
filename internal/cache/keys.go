// SPDX-License-Identifier: MIT

package cache

import "time"

// Cache keys are namespaced by purpose and video id so that one video's
// derived artifacts can be invalidated as a unit.

// Default TTLs per namespace.
const (
	MetadataTTL       = 5 * time.Minute
	StatusTTL         = 30 * time.Second
	MasterManifestTTL = 15 * time.Minute
	PlaylistTTL       = 1 * time.Minute
)

// MetadataKey returns the key for a video's persisted metadata blob.
func MetadataKey(videoID string) string {
	return "video:meta:" + videoID
}

// StatusKey returns the key for a video's processing status blob.
func StatusKey(videoID string) string {
	return "video:status:" + videoID
}

// MasterManifestKey returns the key for a video's master playlist text.
func MasterManifestKey(videoID string) string {
	return "manifest:master:" + videoID
}

// PlaylistKey returns the key for one quality playlist reference.
func PlaylistKey(videoID, quality string) string {
	return "manifest:playlist:" + videoID + ":" + quality
}

// InvalidateVideo removes every cached artifact derived from the given
// video, across all known qualities.
func InvalidateVideo(c Cache, videoID string, qualities []string) {
	c.Delete(MetadataKey(videoID))
	c.Delete(StatusKey(videoID))
	c.Delete(MasterManifestKey(videoID))
	for _, q := range qualities {
		c.Delete(PlaylistKey(videoID, q))
	}
}
