package codec

import (
	"testing"

	"github.com/n0remac/camhub/internal/config"
	"github.com/n0remac/camhub/internal/mediaerr"
	"github.com/stretchr/testify/require"
)

const sampleOfferVP8H264 = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96 97\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:96 VP8/90000\r\n" +
	"a=rtpmap:97 H264/90000\r\n"

const sampleOfferVP8Only = "v=0\r\n" +
	"o=- 0 0 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=video 9 UDP/TLS/RTP/SAVPF 96\r\n" +
	"c=IN IP4 0.0.0.0\r\n" +
	"a=rtpmap:96 VP8/90000\r\n"

func TestExtractPayloadTypeFindsMatch(t *testing.T) {
	pt, err := ExtractPayloadType(sampleOfferVP8H264, config.CodecH264)
	require.NoError(t, err)
	require.EqualValues(t, 97, pt)

	pt, err = ExtractPayloadType(sampleOfferVP8H264, config.CodecVP8)
	require.NoError(t, err)
	require.EqualValues(t, 96, pt)
}

func TestExtractPayloadTypeCodecNotOffered(t *testing.T) {
	_, err := ExtractPayloadType(sampleOfferVP8Only, config.CodecH264)
	require.Error(t, err)

	var notOffered *mediaerr.CodecNotOffered
	require.ErrorAs(t, err, &notOffered)
}

func TestExtractPayloadTypeMalformed(t *testing.T) {
	_, err := ExtractPayloadType("not an sdp document", config.CodecH264)
	require.Error(t, err)
}

func TestExtractPayloadTypeIsPure(t *testing.T) {
	pt1, err1 := ExtractPayloadType(sampleOfferVP8H264, config.CodecH264)
	pt2, err2 := ExtractPayloadType(sampleOfferVP8H264, config.CodecH264)
	require.NoError(t, err1)
	require.NoError(t, err2)
	require.Equal(t, pt1, pt2)
}
