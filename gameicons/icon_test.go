package gameicons

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIconFromNRGBA(t *testing.T) {
	t.Parallel()

	r := require.New(t)

	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for x := range 4 {
		for y := range 4 {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 1, A: 2})
		}
	}

	// Sub-image has a stride larger than its width.
	sub := img.SubImage(image.Rect(1, 1, 3, 4)).(*image.NRGBA)

	icon := NewIconFromNRGBA(sub)
	r.True(icon.IsValid())
	r.Equal(2, icon.Width)
	r.Equal(3, icon.Height)
	r.EqualValues(2*3*4, icon.Size())

	got := icon.Image()
	for x := range 2 {
		for y := range 3 {
			r.Equal(sub.NRGBAAt(x+1, y+1), got.NRGBAAt(x, y))
		}
	}

	r.False(Icon{Width: 2, Height: 2, Pix: make([]byte, 4)}.IsValid())
}
