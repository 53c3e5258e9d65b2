package webrtc

import (
	"fmt"
	"strings"
)

// PatchSDPBandwidth advertises kbps on every video section with a b=AS
// line placed after the section's c= line, as SDP ordering requires.
// Existing b=AS lines in video sections are replaced.
func PatchSDPBandwidth(sdp string, kbps int) string {
	if kbps <= 0 {
		return sdp
	}

	eol := "\n"
	if strings.Contains(sdp, "\r\n") {
		eol = "\r\n"
	}
	lines := strings.Split(strings.TrimSuffix(sdp, eol), eol)
	bandwidth := fmt.Sprintf("b=AS:%d", kbps)

	out := make([]string, 0, len(lines)+2)
	inVideo := false
	inserted := false

	for _, line := range lines {
		trim := strings.TrimSpace(line)

		if strings.HasPrefix(trim, "m=") {
			if inVideo && !inserted {
				out = append(out, bandwidth)
			}
			inVideo = strings.HasPrefix(trim, "m=video")
			inserted = false
			out = append(out, line)
			continue
		}

		if !inVideo {
			out = append(out, line)
			continue
		}

		switch {
		case strings.HasPrefix(trim, "b=AS:"):
			continue
		case strings.HasPrefix(trim, "c=") && !inserted:
			out = append(out, line, bandwidth)
			inserted = true
			continue
		case strings.HasPrefix(trim, "a=") && !inserted:
			out = append(out, bandwidth)
			inserted = true
		}
		out = append(out, line)
	}
	if inVideo && !inserted {
		out = append(out, bandwidth)
	}

	return strings.Join(out, eol) + eol
}
