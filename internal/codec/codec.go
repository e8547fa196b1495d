// Package codec reconciles a browser's offered SDP payload types with the
// hub's configured codec family (spec.md §4.5).
//
// Grounded on github.com/pion/sdp/v3's SessionDescription.Unmarshal +
// MediaDescription.Attributes iteration, the same shape used by the
// mediamtx-derived reference material for RTP payload negotiation; promoted
// here from an indirect dependency (via pion/webrtc/v4) to a direct import.
package codec

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"

	"github.com/n0remac/camhub/internal/config"
	"github.com/n0remac/camhub/internal/mediaerr"
)

// clockRate is fixed at 90000 for both H.264 and VP8 per spec.md §4.5's
// "a=rtpmap:<pt> <CODEC>/90000" pattern.
const clockRate = "90000"

var rtpmapName = map[config.CodecFamily]string{
	config.CodecH264: "H264",
	config.CodecVP8:  "VP8",
}

// ExtractPayloadType scans sdpText for an a=rtpmap line naming family and
// returns the first matching payload type. It fails with
// mediaerr.CodecNotOffered if none match, and with mediaerr.SdpMalformed if
// sdpText does not parse. ExtractPayloadType is pure: the same sdpText and
// family always yield the same result (spec.md §8 property 8).
func ExtractPayloadType(sdpText string, family config.CodecFamily) (uint8, error) {
	name, ok := rtpmapName[family]
	if !ok {
		return 0, &mediaerr.CodecNotOffered{Family: string(family)}
	}

	var desc sdp.SessionDescription
	if err := desc.Unmarshal([]byte(sdpText)); err != nil {
		return 0, &mediaerr.SdpMalformed{Cause: err}
	}

	want := name + "/" + clockRate
	for _, media := range desc.MediaDescriptions {
		for _, attr := range media.Attributes {
			if attr.Key != "rtpmap" {
				continue
			}
			pt, rest, ok := strings.Cut(attr.Value, " ")
			if !ok {
				continue
			}
			if rest != want {
				continue
			}
			n, err := strconv.ParseUint(pt, 10, 8)
			if err != nil {
				continue
			}
			return uint8(n), nil
		}
	}
	return 0, &mediaerr.CodecNotOffered{Family: string(family)}
}

// MimeType returns the pion/webrtc MIME type string for family, used to
// build RTPCodecCapability when constructing a payloader.
func MimeType(family config.CodecFamily) string {
	switch family {
	case config.CodecH264:
		return "video/H264"
	case config.CodecVP8:
		return "video/VP8"
	default:
		return ""
	}
}
