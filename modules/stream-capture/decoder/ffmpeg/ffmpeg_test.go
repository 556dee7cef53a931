package ffmpeg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/ardrone-video/modules/stream-capture/codec"
)

func TestDecoder_Lifecycle(t *testing.T) {
	_, err := New(codec.Config{Width: 640, Height: 0})
	assert.Error(t, err)

	d, err := New(codec.Config{Width: 640, Height: 360})
	if err != nil {
		t.Skipf("FFmpeg H.264 decoder not available: %v", err)
	}

	// An access unit delimiter alone completes no picture.
	pic, err := d.Decode([]byte{0, 0, 0, 1, 0x09, 0xf0})
	if err == nil {
		assert.Nil(t, pic)
	}

	require.NoError(t, d.Close())
	require.NoError(t, d.Close(), "close is idempotent")

	_, err = d.Decode([]byte{0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrClosed)
	t.Logf("✅ FFmpeg decoder opened and closed")
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, codec.Names(), Name)
}
