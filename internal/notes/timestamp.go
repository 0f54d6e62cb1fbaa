package notes

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// timestampMarkerRe matches inline "[12:30]" or "[01:02:30]" markers
// the model leaves in generated content. Markers already inside a
// markdown link are left alone.
var timestampMarkerRe = regexp.MustCompile(`\[(\d{1,2}:)?(\d{1,3}):(\d{2})\](\()?`)

// LinkTimestamps rewrites timestamp markers into course deep links so
// a reader can jump to the moment in the recording.
func LinkTimestamps(content, courseURL string) string {
	if courseURL == "" {
		return content
	}

	return timestampMarkerRe.ReplaceAllStringFunc(content, func(m string) string {
		sub := timestampMarkerRe.FindStringSubmatch(m)
		if sub[4] == "(" {
			// Already a link target.
			return m
		}

		var seconds int
		if sub[1] != "" {
			h, _ := strconv.Atoi(strings.TrimSuffix(sub[1], ":"))
			mm, _ := strconv.Atoi(sub[2])
			ss, _ := strconv.Atoi(sub[3])
			seconds = h*3600 + mm*60 + ss
		} else {
			mm, _ := strconv.Atoi(sub[2])
			ss, _ := strconv.Atoi(sub[3])
			seconds = mm*60 + ss
		}

		label := strings.TrimSuffix(strings.TrimPrefix(m, "["), "]")
		sep := "?"
		if strings.Contains(courseURL, "?") {
			sep = "&"
		}
		return fmt.Sprintf("[%s](%s%st=%d)", label, courseURL, sep, seconds)
	})
}
