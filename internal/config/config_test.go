package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validCamera(id string, port int) CameraConfig {
	return CameraConfig{
		ID:               id,
		Device:           "/dev/video0",
		Width:            1280,
		Height:           720,
		FPS:              30,
		Orientation:      OrientationNone,
		Codec:            CodecH264,
		BitrateBps:       2_000_000,
		KeyframeInterval: 60,
		SignalingPort:    port,
	}
}

func TestValidateAcceptsWellFormedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Cameras = []CameraConfig{validCamera("cam-1", 8081), validCamera("cam-2", 8082)}
	require.NoError(t, cfg.Validate())
}

func TestValidateRejectsDuplicateSignalingPorts(t *testing.T) {
	cfg := Defaults()
	cfg.Cameras = []CameraConfig{validCamera("cam-1", 8081), validCamera("cam-2", 8081)}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signaling_port")
}

func TestValidateRejectsTooSmallDistributorCapacity(t *testing.T) {
	cfg := Defaults()
	cfg.DistributorCapacity = 1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "distributor_capacity")
}

func TestValidateRejectsZeroSendBufferSize(t *testing.T) {
	cfg := Defaults()
	cfg.SendBufferSize = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "send_buffer_size")
}

func TestCameraValidateRejectsEmptyID(t *testing.T) {
	cam := validCamera("", 8081)
	err := cam.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "id")
}

func TestCameraValidateRejectsNonPositiveFPS(t *testing.T) {
	cam := validCamera("cam-1", 8081)
	cam.FPS = 0
	err := cam.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fps")
}

func TestCameraValidateRejectsUnknownCodec(t *testing.T) {
	cam := validCamera("cam-1", 8081)
	cam.Codec = "mpeg2"
	err := cam.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "codec")
}

func TestCameraValidateRejectsUnknownOrientation(t *testing.T) {
	cam := validCamera("cam-1", 8081)
	cam.Orientation = "sideways"
	err := cam.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orientation")
}
