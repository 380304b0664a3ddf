// SPDX-License-Identifier: MIT

package media

import "sort"

// bandwidthHeadroom leaves room for container overhead and throughput
// fluctuation when matching a rendition to measured bandwidth.
const bandwidthHeadroom = 0.8

// SelectOptimalQuality picks the rendition a client should start playback
// with, given its measured bandwidth in kbps.
//
// The target bitrate is 80% of the measured bandwidth. Renditions are walked
// from lowest to highest bitrate and the selection advances to every rendition
// whose bitrate fits under the target. If nothing fits, or bandwidth is
// unknown, the lowest-bitrate rendition is returned. The second return value
// is false only when no renditions exist.
func SelectOptimalQuality(renditions []Rendition, bandwidthKbps int) (Rendition, bool) {
	if len(renditions) == 0 {
		return Rendition{}, false
	}

	sorted := make([]Rendition, len(renditions))
	copy(sorted, renditions)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].BitrateKbps < sorted[j].BitrateKbps
	})

	target := float64(bandwidthKbps) * bandwidthHeadroom
	selected := sorted[0]
	for _, r := range sorted[1:] {
		if float64(r.BitrateKbps) > target {
			break
		}
		selected = r
	}
	if float64(sorted[0].BitrateKbps) > target {
		// Nothing fits; fall back to the lowest rung.
		return sorted[0], true
	}
	return selected, true
}
