package infra

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const encodersWithNVENC = `Encoders:
 V..... = Video
 A..... = Audio
 S..... = Subtitle
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 V....D h264_nvenc           NVIDIA NVENC H.264 encoder (codec h264)
 V....D mjpeg                MJPEG (Motion JPEG)
 A....D aac                  AAC (Advanced Audio Coding)
`

const encodersSoftwareOnly = `Encoders:
 ------
 V....D libx264              libx264 H.264 / AVC / MPEG-4 AVC (codec h264)
 A....D aac                  AAC (Advanced Audio Coding)
`

const encodersNoH264 = `Encoders:
 ------
 V....D libvpx               libvpx VP8 (codec vp8)
 A....D aac                  AAC (Advanced Audio Coding)
`

// TestSelectH264Encoder_PrefersHardware verifies hardware encoders win over
// libx264 when both are present
func TestSelectH264Encoder_PrefersHardware(t *testing.T) {
	name, ok := selectH264Encoder(encodersWithNVENC)
	require.True(t, ok)
	assert.Equal(t, "h264_nvenc", name)
}

// TestSelectH264Encoder_FallsBackToSoftware verifies libx264 is accepted
// when no hardware encoder exists
func TestSelectH264Encoder_FallsBackToSoftware(t *testing.T) {
	name, ok := selectH264Encoder(encodersSoftwareOnly)
	require.True(t, ok)
	assert.Equal(t, "libx264", name)
}

// TestSelectH264Encoder_PreferenceOrder verifies the documented ranking
// decides between multiple hardware encoders
func TestSelectH264Encoder_PreferenceOrder(t *testing.T) {
	out := ` V....D h264_amf             AMD AMF H.264 encoder (codec h264)
 V....D h264_qsv             Intel Quick Sync Video H.264 encoder (codec h264)
`
	name, ok := selectH264Encoder(out)
	require.True(t, ok)
	assert.Equal(t, "h264_qsv", name)
}

// TestSelectH264Encoder_NoneAvailable verifies the not-found result when
// ffmpeg has no H.264 encoder at all
func TestSelectH264Encoder_NoneAvailable(t *testing.T) {
	_, ok := selectH264Encoder(encodersNoH264)
	assert.False(t, ok)

	_, ok = selectH264Encoder("")
	assert.False(t, ok)
}

// TestSelectH264Encoder_IgnoresAudioRows verifies only video encoder rows
// count even if an audio row carried a matching name
func TestSelectH264Encoder_IgnoresAudioRows(t *testing.T) {
	out := ` A....D libx264              not actually a video encoder here
`
	_, ok := selectH264Encoder(out)
	assert.False(t, ok)
}
