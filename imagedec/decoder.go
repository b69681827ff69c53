// Package imagedec decodes title icons. Besides TGA, the format of title icons, it supports
// all formats registered in [image] package: PNG, JPEG, GIF, BMP, TIFF and WebP.
package imagedec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/ShoshinNikita/gameicons/gameicons"
)

// MaxSourceSize is the maximum width and height of a source image. Image headers are checked
// before decoding, so a few bytes can't force a huge allocation.
const MaxSourceSize = 4096

var ErrImageTooLarge = errors.New("image is too large")

type Decoder struct {
	// maxSize is the maximum icon width and height. Larger icons are scaled down.
	maxSize int
}

var _ gameicons.IconDecoder = (*Decoder)(nil)

// NewDecoder returns a new decoder. Icons are not scaled if maxSize is 0.
func NewDecoder(maxSize int) *Decoder {
	return &Decoder{
		maxSize: maxSize,
	}
}

func (d *Decoder) Decode(data []byte) (gameicons.Icon, error) {
	var img image.Image
	if isTGA(data) {
		tga, err := decodeTGA(data)
		if err != nil {
			return gameicons.Icon{}, fmt.Errorf("couldn't decode tga: %w", err)
		}
		img = tga
	} else {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return gameicons.Icon{}, fmt.Errorf("couldn't decode image config: %w", err)
		}
		if err := checkSourceSize(cfg.Width, cfg.Height); err != nil {
			return gameicons.Icon{}, err
		}

		img, _, err = image.Decode(bytes.NewReader(data))
		if err != nil {
			return gameicons.Icon{}, fmt.Errorf("couldn't decode image: %w", err)
		}
	}

	return gameicons.NewIconFromNRGBA(d.convert(img)), nil
}

// convert converts the image to NRGBA and scales it down if needed.
func (d *Decoder) convert(img image.Image) *image.NRGBA {
	b := img.Bounds()
	w, h := d.scaledSize(b.Dx(), b.Dy())

	if nrgba, ok := img.(*image.NRGBA); ok && w == b.Dx() && h == b.Dy() {
		return nrgba
	}

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	if w == b.Dx() && h == b.Dy() {
		draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	} else {
		draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	}
	return dst
}

// scaledSize preserves the aspect ratio.
func (d *Decoder) scaledSize(w, h int) (int, int) {
	if d.maxSize <= 0 || (w <= d.maxSize && h <= d.maxSize) {
		return w, h
	}
	if w >= h {
		return d.maxSize, max(1, h*d.maxSize/w)
	}
	return max(1, w*d.maxSize/h), d.maxSize
}

func checkSourceSize(w, h int) error {
	if w > MaxSourceSize || h > MaxSourceSize {
		return fmt.Errorf("%w: %dx%d, max size is %d", ErrImageTooLarge, w, h, MaxSourceSize)
	}
	return nil
}
