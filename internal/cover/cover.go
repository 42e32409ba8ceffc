// Package cover validates cover images and computes their BlurHash placeholders.
package cover

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/bbrks/go-blurhash"
	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder

	liberrors "github.com/hyperjump/libris/internal/errors"
)

// thumbSize bounds the image fed to the BlurHash encoder.
const thumbSize = 64

var extensions = map[string]string{
	"image/png":  ".png",
	"image/jpeg": ".jpg",
	"image/webp": ".webp",
}

// Image is a decoded, accepted cover.
type Image struct {
	Data        []byte
	ContentType string
	Ext         string
	Width       int
	Height      int
	BlurHash    string
}

// Supported reports whether contentType is an accepted cover format.
func Supported(contentType string) bool {
	_, ok := extensions[contentType]
	return ok
}

// Process sniffs data, rejects anything but PNG, JPEG and WebP, and decodes it to
// compute dimensions and a 4x3 BlurHash.
func Process(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, liberrors.Validation("cover image is empty")
	}
	mt := mimetype.Detect(data)
	ext, ok := extensions[mt.String()]
	if !ok {
		return nil, liberrors.Validationf("unsupported cover image type %s; use PNG, JPEG or WebP", mt.String())
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, liberrors.Validation("cover image could not be decoded").WithCause(err)
	}
	hash, err := BlurHash(img)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	return &Image{
		Data:        data,
		ContentType: mt.String(),
		Ext:         ext,
		Width:       b.Dx(),
		Height:      b.Dy(),
		BlurHash:    hash,
	}, nil
}

// BlurHash encodes img with 4x3 components after scaling it down.
func BlurHash(img image.Image) (string, error) {
	hash, err := blurhash.Encode(4, 3, thumbnail(img))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

func thumbnail(img image.Image) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= thumbSize && h <= thumbSize {
		return img
	}
	var dw, dh int
	if w > h {
		dw, dh = thumbSize, max(1, h*thumbSize/w)
	} else {
		dw, dh = max(1, w*thumbSize/h), thumbSize
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
