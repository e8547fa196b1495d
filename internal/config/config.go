// Package config loads the process configuration: camera definitions,
// signaling parameters, and ICE server settings. Loading and CLI wiring
// live in cmd/camhub; this package only defines the shape and validates it.
package config

import (
	"fmt"
	"time"

	"github.com/n0remac/camhub/internal/mediaerr"
)

// Orientation is the capture graph's pre-encode transform.
type Orientation string

const (
	OrientationNone    Orientation = "none"
	OrientationHFlip   Orientation = "hflip"
	OrientationVFlip   Orientation = "vflip"
	OrientationRot90   Orientation = "rot-90"
	OrientationRot180  Orientation = "rot-180"
	OrientationRot270  Orientation = "rot-270"
)

// CodecFamily is one of the two codec families in scope.
type CodecFamily string

const (
	CodecH264 CodecFamily = "h264"
	CodecVP8  CodecFamily = "vp8"
)

// SensorChannel configures the optional IMU/LiDAR data channel carried by
// one camera's hub.
type SensorChannel struct {
	Enabled bool   `mapstructure:"enabled"`
	Topic   string `mapstructure:"topic"`
}

// CameraConfig is immutable once loaded; see spec.md §3.
type CameraConfig struct {
	ID               string        `mapstructure:"id"`
	Device           string        `mapstructure:"device"`
	Width            int           `mapstructure:"width"`
	Height           int           `mapstructure:"height"`
	FPS              int           `mapstructure:"fps"`
	Orientation      Orientation   `mapstructure:"orientation"`
	Codec            CodecFamily   `mapstructure:"codec"`
	BitrateBps       int           `mapstructure:"bitrate_bps"`
	KeyframeInterval int           `mapstructure:"keyframe_interval"`
	SpeedPreset      string        `mapstructure:"speed_preset"`
	SignalingPort    int           `mapstructure:"signaling_port"`
	Sensors          SensorChannel `mapstructure:"sensors"`
}

// TURN holds the long-term-credential TURN secret (HMAC signing key) and
// the TURN server URL advertised to peers. Empty Secret disables TURN.
type TURN struct {
	URL    string `mapstructure:"url"`
	Secret string `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

// Config is the full configuration surface consumed by the core, per
// spec.md §6. DisconnectGrace is loaded but not read: peer.Session uses a
// fixed 10 s grace. MTU is validated but not passed to packetization.
type Config struct {
	Cameras []CameraConfig `mapstructure:"cameras"`

	AllowedOrigins   []string      `mapstructure:"allowed_origins"`
	SendBufferSize   int           `mapstructure:"send_buffer_size"`
	SendTimeout      time.Duration `mapstructure:"send_timeout"`
	PingTimeout      time.Duration `mapstructure:"ping_timeout"`
	DisconnectGrace  time.Duration `mapstructure:"disconnect_grace"`

	DistributorCapacity int `mapstructure:"distributor_capacity"`
	SlowThreshold       int `mapstructure:"slow_threshold"`

	STUNServers []string `mapstructure:"stun_servers"`
	TURN        TURN     `mapstructure:"turn"`

	MTU int `mapstructure:"mtu"`
}

// Defaults returns the numeric defaults named throughout spec.md.
func Defaults() Config {
	return Config{
		AllowedOrigins:      []string{},
		SendBufferSize:      1024,
		SendTimeout:         5 * time.Second,
		PingTimeout:         90 * time.Second,
		DisconnectGrace:     10 * time.Second,
		DistributorCapacity: 30,
		SlowThreshold:       10,
		MTU:                 1200,
	}
}

// Validate checks invariants named in spec.md §3 and §6. It returns the
// first violation found, wrapped as mediaerr.ConfigInvalid.
func (c *Config) Validate() error {
	if c.DistributorCapacity < 2 {
		return &mediaerr.ConfigInvalid{Field: "distributor_capacity", Reason: "must be >= 2"}
	}
	if c.SendBufferSize < 1 {
		return &mediaerr.ConfigInvalid{Field: "send_buffer_size", Reason: "must be >= 1"}
	}
	if c.MTU < 1 {
		return &mediaerr.ConfigInvalid{Field: "mtu", Reason: "must be >= 1"}
	}

	seenPorts := make(map[int]string, len(c.Cameras))
	for _, cam := range c.Cameras {
		if err := cam.Validate(); err != nil {
			return err
		}
		if owner, ok := seenPorts[cam.SignalingPort]; ok {
			return &mediaerr.ConfigInvalid{
				Field:  "signaling_port",
				Reason: fmt.Sprintf("port %d reused by cameras %q and %q", cam.SignalingPort, owner, cam.ID),
			}
		}
		seenPorts[cam.SignalingPort] = cam.ID
	}
	return nil
}

// Validate checks the per-camera invariants named in spec.md §3.
func (c *CameraConfig) Validate() error {
	if c.ID == "" {
		return &mediaerr.ConfigInvalid{Field: "id", Reason: "must not be empty"}
	}
	if c.FPS <= 0 {
		return &mediaerr.ConfigInvalid{Field: "fps", Reason: "must be > 0"}
	}
	if c.Width <= 0 || c.Height <= 0 {
		return &mediaerr.ConfigInvalid{Field: "width/height", Reason: "must be > 0"}
	}
	if c.BitrateBps <= 0 {
		return &mediaerr.ConfigInvalid{Field: "bitrate_bps", Reason: "must be > 0"}
	}
	switch c.Codec {
	case CodecH264, CodecVP8:
	default:
		return &mediaerr.ConfigInvalid{Field: "codec", Reason: "must be h264 or vp8"}
	}
	switch c.Orientation {
	case OrientationNone, OrientationHFlip, OrientationVFlip, OrientationRot90, OrientationRot180, OrientationRot270:
	default:
		return &mediaerr.ConfigInvalid{Field: "orientation", Reason: "unrecognized orientation"}
	}
	return nil
}
