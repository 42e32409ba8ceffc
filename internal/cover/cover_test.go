package cover

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	liberrors "github.com/hyperjump/libris/internal/errors"
)

func gradient(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcess_PNG(t *testing.T) {
	c, err := Process(encodePNG(t, gradient(300, 450)))
	require.NoError(t, err)

	assert.Equal(t, "image/png", c.ContentType)
	assert.Equal(t, ".png", c.Ext)
	assert.Equal(t, 300, c.Width)
	assert.Equal(t, 450, c.Height)
	assert.NotEmpty(t, c.BlurHash)
}

func TestProcess_JPEG(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, gradient(40, 40), nil))

	c, err := Process(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", c.ContentType)
	assert.Equal(t, ".jpg", c.Ext)
}

func TestProcess_Rejects(t *testing.T) {
	cases := map[string][]byte{
		"empty": nil,
		"pdf":   []byte("%PDF-1.4\n"),
		"text":  []byte("hello world"),
		"gif":   []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;"),
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Process(data)
			require.Error(t, err)
			assert.Equal(t, liberrors.CodeValidation, liberrors.CodeOf(err))
		})
	}
}

func TestProcess_CorruptPNG(t *testing.T) {
	data := encodePNG(t, gradient(10, 10))
	_, err := Process(data[:40])
	require.Error(t, err)
	assert.Equal(t, liberrors.CodeValidation, liberrors.CodeOf(err))
}

func TestThumbnail(t *testing.T) {
	small := gradient(20, 10)
	assert.Equal(t, small, thumbnail(small))

	b := thumbnail(gradient(1000, 500)).Bounds()
	assert.Equal(t, 64, b.Dx())
	assert.Equal(t, 32, b.Dy())
}

func TestBlurHash_Deterministic(t *testing.T) {
	img := gradient(128, 128)
	h1, err := BlurHash(img)
	require.NoError(t, err)
	h2, err := BlurHash(img)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported("image/webp"))
	assert.False(t, Supported("image/gif"))
}
