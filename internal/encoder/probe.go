// SPDX-License-Identifier: MIT

package encoder

import (
	"regexp"
	"strconv"
)

// ffmpeg banner line: "  Duration: 00:01:23.45, start: ..."
var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d{2}):(\d{2})\.(\d{2})`)

func parseDuration(stderr string) (float64, bool) {
	m := durationRe.FindStringSubmatch(stderr)
	if m == nil {
		return 0, false
	}
	hours, _ := strconv.Atoi(m[1])
	minutes, _ := strconv.Atoi(m[2])
	seconds, _ := strconv.Atoi(m[3])
	centis, _ := strconv.Atoi(m[4])
	return float64(hours)*3600 + float64(minutes)*60 + float64(seconds) + float64(centis)/100, true
}
