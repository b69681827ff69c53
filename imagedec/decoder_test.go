package imagedec

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestDecoder_TGA(t *testing.T) {
	t.Parallel()

	var (
		red   = []byte{0xff, 0x00, 0x00, 0xff}
		green = []byte{0x00, 0xff, 0x00, 0xff}
		blue  = []byte{0x00, 0x00, 0xff, 0x80}
		white = []byte{0xff, 0xff, 0xff, 0xff}
	)
	// Top-left to bottom-right.
	wantPix := concat(red, green, blue, white)

	for _, tt := range []struct {
		name string
		data []byte
		want []byte
	}{
		{
			name: "32 bit, bottom-left origin",
			data: concat(
				tgaHeaderBytes(tgaTrueColor, 2, 2, 32, 0x08),
				bgra(blue), bgra(white), // bottom row
				bgra(red), bgra(green), // top row
			),
			want: wantPix,
		},
		{
			name: "32 bit, top-left origin, image id",
			data: concat(
				withImageID(tgaHeaderBytes(tgaTrueColor, 2, 2, 32, 0x28), "icon"),
				bgra(red), bgra(green), bgra(blue), bgra(white),
			),
			want: wantPix,
		},
		{
			name: "24 bit rle, top-left origin",
			data: concat(
				tgaHeaderBytes(tgaRLETrueColor, 3, 2, 24, 0x20),
				[]byte{0x82}, bgr(red), // run: 3 red pixels
				[]byte{0x02}, bgr(green), bgr(white), bgr(green), // raw: 3 pixels
			),
			want: concat(red, red, red, green, white, green),
		},
		{
			name: "8 bit grayscale rle",
			data: concat(
				tgaHeaderBytes(tgaRLEGrayscale, 2, 1, 8, 0x20),
				[]byte{0x81, 0x40},
			),
			want: []byte{0x40, 0x40, 0x40, 0xff, 0x40, 0x40, 0x40, 0xff},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			r := require.New(t)

			icon, err := NewDecoder(0).Decode(tt.data)
			r.NoError(err)
			r.True(icon.IsValid())
			r.Equal(tt.want, icon.Pix)
		})
	}

	t.Run("truncated", func(t *testing.T) {
		r := require.New(t)

		data := concat(tgaHeaderBytes(tgaTrueColor, 16, 16, 32, 0x28), make([]byte, 100))
		_, err := NewDecoder(0).Decode(data)
		r.ErrorIs(err, errTruncatedTGA)

		data = concat(tgaHeaderBytes(tgaRLETrueColor, 16, 16, 32, 0x28), []byte{0xff})
		_, err = NewDecoder(0).Decode(data)
		r.ErrorIs(err, errTruncatedTGA)
	})
}

func TestDecoder_LargeImages(t *testing.T) {
	t.Parallel()

	t.Run("tga", func(t *testing.T) {
		r := require.New(t)

		// The header claims 65535x65535 pixels, the data is a single run packet.
		data := concat(tgaHeaderBytes(tgaRLETrueColor, 0xffff, 0xffff, 32, 0x28), []byte{0xff}, bgra(make([]byte, 4)))
		_, err := NewDecoder(0).Decode(data)
		r.ErrorIs(err, ErrImageTooLarge)

		data = concat(tgaHeaderBytes(tgaTrueColor, MaxSourceSize+1, 1, 32, 0x28), make([]byte, 64))
		_, err = NewDecoder(0).Decode(data)
		r.ErrorIs(err, ErrImageTooLarge)

		// Truncated rle data with a big header.
		data = concat(tgaHeaderBytes(tgaRLEGrayscale, MaxSourceSize, MaxSourceSize, 8, 0x20), []byte{0xff, 0x10})
		_, err = NewDecoder(0).Decode(data)
		r.ErrorIs(err, errTruncatedTGA)

		data = concat(tgaHeaderBytes(tgaGrayscale, MaxSourceSize, 1, 8, 0x20), make([]byte, MaxSourceSize))
		icon, err := NewDecoder(0).Decode(data)
		r.NoError(err)
		r.Equal(MaxSourceSize, icon.Width)
	})

	t.Run("png", func(t *testing.T) {
		r := require.New(t)

		buf := bytes.NewBuffer(nil)
		r.NoError(png.Encode(buf, image.NewGray(image.Rect(0, 0, 1, MaxSourceSize+1))))

		_, err := NewDecoder(0).Decode(buf.Bytes())
		r.ErrorIs(err, ErrImageTooLarge)
	})
}

func TestDecoder_OtherFormats(t *testing.T) {
	t.Parallel()

	img := image.NewNRGBA(image.Rect(0, 0, 4, 2))
	for x := range 4 {
		for y := range 2 {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 60), G: uint8(y * 100), B: 10, A: 0xff})
		}
	}

	t.Run("png", func(t *testing.T) {
		r := require.New(t)

		buf := bytes.NewBuffer(nil)
		r.NoError(png.Encode(buf, img))

		icon, err := NewDecoder(0).Decode(buf.Bytes())
		r.NoError(err)
		r.Equal(4, icon.Width)
		r.Equal(2, icon.Height)
		r.Equal(img.Pix, icon.Pix)
	})

	t.Run("bmp", func(t *testing.T) {
		r := require.New(t)

		buf := bytes.NewBuffer(nil)
		r.NoError(bmp.Encode(buf, img))

		icon, err := NewDecoder(0).Decode(buf.Bytes())
		r.NoError(err)
		r.Equal(img.Pix, icon.Pix)
	})

	t.Run("unknown format", func(t *testing.T) {
		_, err := NewDecoder(0).Decode([]byte("definitely not an image, just some text"))
		require.ErrorIs(t, err, image.ErrFormat)
	})
}

func TestDecoder_Scale(t *testing.T) {
	t.Parallel()

	for _, tt := range []struct {
		maxSize       int
		width, height int
		wantW, wantH  int
	}{
		{maxSize: 0, width: 256, height: 128, wantW: 256, wantH: 128},
		{maxSize: 128, width: 128, height: 128, wantW: 128, wantH: 128},
		{maxSize: 64, width: 128, height: 128, wantW: 64, wantH: 64},
		{maxSize: 64, width: 256, height: 128, wantW: 64, wantH: 32},
		{maxSize: 64, width: 128, height: 256, wantW: 32, wantH: 64},
		{maxSize: 64, width: 1000, height: 1, wantW: 64, wantH: 1},
	} {
		t.Run("", func(t *testing.T) {
			r := require.New(t)

			data := concat(
				tgaHeaderBytes(tgaTrueColor, tt.width, tt.height, 24, 0x20),
				make([]byte, tt.width*tt.height*3),
			)
			icon, err := NewDecoder(tt.maxSize).Decode(data)
			r.NoError(err)
			r.Equal(tt.wantW, icon.Width)
			r.Equal(tt.wantH, icon.Height)
			r.True(icon.IsValid())
		})
	}
}

func tgaHeaderBytes(imageType byte, width, height int, bitsPerPixel, descriptor byte) []byte {
	h := make([]byte, tgaHeaderSize)
	h[2] = imageType
	h[12], h[13] = byte(width), byte(width>>8)
	h[14], h[15] = byte(height), byte(height>>8)
	h[16] = bitsPerPixel
	h[17] = descriptor
	return h
}

func withImageID(header []byte, id string) []byte {
	header[0] = byte(len(id))
	return concat(header, []byte(id))
}

func bgra(rgba []byte) []byte { return []byte{rgba[2], rgba[1], rgba[0], rgba[3]} }
func bgr(rgba []byte) []byte  { return []byte{rgba[2], rgba[1], rgba[0]} }

func concat(parts ...[]byte) []byte {
	return bytes.Join(parts, nil)
}
