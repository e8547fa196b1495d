package capture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0remac/camhub/internal/config"
)

func TestOrientationElement(t *testing.T) {
	cases := map[config.Orientation]string{
		config.OrientationNone:   "identity",
		config.OrientationHFlip:  "videoflip method=horizontal-flip",
		config.OrientationVFlip:  "videoflip method=vertical-flip",
		config.OrientationRot90:  "videoflip method=rotate-90",
		config.OrientationRot180: "videoflip method=rotate-180",
		config.OrientationRot270: "videoflip method=rotate-270",
	}
	for orientation, want := range cases {
		assert.Equal(t, want, orientationElement(orientation))
	}
}

func TestEncoderElementsH264(t *testing.T) {
	enc, parse := encoderElements(config.CameraConfig{
		Codec:            config.CodecH264,
		KeyframeInterval: 60,
		BitrateBps:       2_000_000,
		SpeedPreset:      "veryfast",
	})
	assert.Contains(t, enc, "x264enc")
	assert.Contains(t, enc, "speed-preset=veryfast")
	assert.Contains(t, enc, "key-int-max=60")
	assert.Contains(t, enc, "bitrate=2000")
	assert.Contains(t, parse, "h264parse")
}

func TestEncoderElementsH264DefaultPreset(t *testing.T) {
	enc, _ := encoderElements(config.CameraConfig{Codec: config.CodecH264})
	assert.Contains(t, enc, "speed-preset=ultrafast")
}

func TestEncoderElementsVP8(t *testing.T) {
	enc, parse := encoderElements(config.CameraConfig{
		Codec:            config.CodecVP8,
		KeyframeInterval: 30,
		BitrateBps:       1_500_000,
	})
	assert.Contains(t, enc, "vp8enc")
	assert.Contains(t, enc, "keyframe-max-dist=30")
	assert.Contains(t, enc, "target-bitrate=1500000")
	assert.Empty(t, parse)
}

func TestDescribeIncludesEveryStage(t *testing.T) {
	g := &Graph{cfg: config.CameraConfig{
		Device: "/dev/video0", Width: 1280, Height: 720, FPS: 30,
		Codec: config.CodecH264, Orientation: config.OrientationRot180,
		KeyframeInterval: 60, BitrateBps: 2_000_000,
	}}
	desc := g.describe()

	require.NotEmpty(t, desc)
	for _, stage := range []string{
		"v4l2src device=/dev/video0",
		"width=1280,height=720,framerate=30/1",
		"videoconvert",
		"videoflip method=rotate-180",
		"queue name=depth1 leaky=downstream",
		"x264enc",
		"h264parse",
		"appsink name=encoded_tap",
	} {
		assert.True(t, strings.Contains(desc, stage), "expected describe() to contain %q, got: %s", stage, desc)
	}
}

func TestPresetOr(t *testing.T) {
	assert.Equal(t, "ultrafast", presetOr("", "ultrafast"))
	assert.Equal(t, "fast", presetOr("fast", "ultrafast"))
}
