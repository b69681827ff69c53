package gameicons

import (
	"image"
)

// Icon is a decoded title icon. Pix holds non-premultiplied RGBA pixels, 4 bytes per pixel,
// row by row. Icons are never modified after creation, so Pix can be shared between goroutines.
type Icon struct {
	Width  int
	Height int
	Pix    []byte
}

// NewIconFromNRGBA copies pixels of the passed image.
func NewIconFromNRGBA(img *image.NRGBA) Icon {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	pix := make([]byte, 0, w*h*4)
	for y := range h {
		start := img.PixOffset(b.Min.X, b.Min.Y+y)
		pix = append(pix, img.Pix[start:start+w*4]...)
	}
	return Icon{
		Width:  w,
		Height: h,
		Pix:    pix,
	}
}

// Image returns an [image.NRGBA] backed by the icon pixels. The image must not be modified.
func (icon Icon) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    icon.Pix,
		Stride: icon.Width * 4,
		Rect:   image.Rect(0, 0, icon.Width, icon.Height),
	}
}

// Size returns the size of the pixel buffer in bytes.
func (icon Icon) Size() int64 {
	return int64(len(icon.Pix))
}

// IsValid reports whether dimensions match the pixel buffer.
func (icon Icon) IsValid() bool {
	return icon.Width > 0 && icon.Height > 0 && len(icon.Pix) == icon.Width*icon.Height*4
}
