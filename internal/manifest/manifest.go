// SPDX-License-Identifier: MIT

// Package manifest renders master and per-quality playlists from persisted
// rendition rows, cache-first.
package manifest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/InsiderP/video-streaming/internal/cache"
	"github.com/InsiderP/video-streaming/internal/media"
	"github.com/InsiderP/video-streaming/internal/metrics"
	"github.com/InsiderP/video-streaming/internal/store"
)

// ErrNotFound is returned when a video has no renditions yet, or the
// requested quality does not exist. The generator fails closed rather than
// emitting a partial manifest.
var ErrNotFound = errors.New("manifest: not found")

// PlaylistRef resolves one quality playlist for delivery. External
// playlists are redirected to by the caller; local ones are served from
// disk.
type PlaylistRef struct {
	Quality  string `json:"quality"`
	Location string `json:"location"`
	External bool   `json:"external"`
}

// Generator builds playback manifests from the store, read-through cached.
type Generator struct {
	store store.Store
	cache cache.Cache
	log   zerolog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(s store.Store, c cache.Cache, logger zerolog.Logger) *Generator {
	return &Generator{store: s, cache: c, log: logger}
}

// BuildMaster returns the master playlist text for a video. Renditions are
// listed highest bandwidth first regardless of insertion order. Videos
// without renditions yield ErrNotFound.
func (g *Generator) BuildMaster(ctx context.Context, videoID string) (string, error) {
	key := cache.MasterManifestKey(videoID)
	if cached, ok := cache.Peek[string](g.cache, key); ok {
		metrics.IncManifestBuild("master", "cache")
		return cached, nil
	}

	renditions, err := g.store.ListRenditions(ctx, videoID)
	if err != nil {
		return "", err
	}
	if len(renditions) == 0 {
		return "", fmt.Errorf("%w: video %s has no renditions", ErrNotFound, videoID)
	}

	text := renderMaster(renditions)
	cache.Put(g.cache, key, text, cache.MasterManifestTTL)
	metrics.IncManifestBuild("master", "store")

	g.log.Debug().
		Str("video_id", videoID).
		Int("renditions", len(renditions)).
		Msg("master manifest rebuilt")

	return text, nil
}

// ResolvePlaylist returns the playlist reference for one exact quality
// label, distinguishing external URLs from local relative paths.
func (g *Generator) ResolvePlaylist(ctx context.Context, videoID, quality string) (*PlaylistRef, error) {
	key := cache.PlaylistKey(videoID, quality)
	ref, err := cache.GetOrLoad(g.cache, key, cache.PlaylistTTL, func() (*PlaylistRef, error) {
		r, err := g.store.GetRendition(ctx, videoID, quality)
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: rendition %s/%s", ErrNotFound, videoID, quality)
		}
		if err != nil {
			return nil, err
		}
		metrics.IncManifestBuild("playlist", "store")
		return &PlaylistRef{
			Quality:  r.Quality,
			Location: r.PlaylistPath,
			External: r.IsExternal(),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// renderMaster emits the fixed two-line header, then one stream-info line
// and playlist reference per rendition, pairs separated by a blank line.
func renderMaster(renditions []media.Rendition) string {
	sorted := make([]media.Rendition, len(renditions))
	copy(sorted, renditions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].BitrateKbps > sorted[j].BitrateKbps
	})

	buf := &bytes.Buffer{}
	buf.WriteString("#EXTM3U\n")
	buf.WriteString("#EXT-X-VERSION:3\n")
	for _, r := range sorted {
		buf.WriteString("\n")
		fmt.Fprintf(buf, "#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%dx%d\n",
			r.BitrateKbps*1000, r.Width, r.Height)
		fmt.Fprintf(buf, "%s/playlist.m3u8\n", r.Quality)
	}
	return buf.String()
}
