package webrtc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

const sampleSDP = "v=0\r\n" +
	"o=- 1 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=mid:0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 102\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"b=AS:100\r\n" +
	"a=mid:1\r\n" +
	"a=rtpmap:102 H264/90000\r\n"

func TestPatchSDPBandwidth(t *testing.T) {
	out := PatchSDPBandwidth(sampleSDP, 8000)

	assert.Equal(t, 1, strings.Count(out, "b=AS:"))
	assert.Contains(t, out, "m=video 9 UDP/TLS/RTP/SAVPF 102\r\nc=IN IP4 0.0.0.0\r\nb=AS:8000\r\na=mid:1")
	assert.Contains(t, out, "m=audio 9 UDP/TLS/RTP/SAVPF 111\r\nc=IN IP4 0.0.0.0\r\na=mid:0")
	assert.True(t, strings.HasSuffix(out, "\r\n"))
}

func TestPatchSDPBandwidthWithoutConnectionLine(t *testing.T) {
	in := "v=0\nm=video 9 RTP/AVP 96\na=rtpmap:96 H264/90000\n"
	out := PatchSDPBandwidth(in, 500)
	assert.Equal(t, "v=0\nm=video 9 RTP/AVP 96\nb=AS:500\na=rtpmap:96 H264/90000\n", out)
}

func TestPatchSDPBandwidthDisabled(t *testing.T) {
	assert.Equal(t, sampleSDP, PatchSDPBandwidth(sampleSDP, 0))
}
