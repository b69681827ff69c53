package imagedec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"image"
)

const tgaHeaderSize = 18

// TGA image types.
const (
	tgaTrueColor    = 2
	tgaGrayscale    = 3
	tgaRLETrueColor = 10
	tgaRLEGrayscale = 11
)

type tgaHeader struct {
	idLength     int
	colorMapType byte
	imageType    byte
	width        int
	height       int
	bitsPerPixel int
	descriptor   byte
}

func parseTGAHeader(data []byte) (h tgaHeader, ok bool) {
	if len(data) < tgaHeaderSize {
		return h, false
	}
	h = tgaHeader{
		idLength:     int(data[0]),
		colorMapType: data[1],
		imageType:    data[2],
		width:        int(binary.LittleEndian.Uint16(data[12:14])),
		height:       int(binary.LittleEndian.Uint16(data[14:16])),
		bitsPerPixel: int(data[16]),
		descriptor:   data[17],
	}
	return h, true
}

// isTGA checks whether data looks like a supported TGA image. TGA files have no magic
// number, so only the header fields are checked.
func isTGA(data []byte) bool {
	h, ok := parseTGAHeader(data)
	if !ok || h.colorMapType != 0 || h.width == 0 || h.height == 0 {
		return false
	}
	switch h.imageType {
	case tgaTrueColor, tgaRLETrueColor:
		return h.bitsPerPixel == 24 || h.bitsPerPixel == 32
	case tgaGrayscale, tgaRLEGrayscale:
		return h.bitsPerPixel == 8
	default:
		return false
	}
}

var errTruncatedTGA = errors.New("truncated tga data")

func decodeTGA(data []byte) (*image.NRGBA, error) {
	if !isTGA(data) {
		return nil, errors.New("unsupported tga image")
	}
	h, _ := parseTGAHeader(data)
	if err := checkSourceSize(h.width, h.height); err != nil {
		return nil, err
	}

	pixelSize := h.bitsPerPixel / 8
	pixelCount := h.width * h.height

	offset := tgaHeaderSize + h.idLength
	if offset > len(data) {
		return nil, errTruncatedTGA
	}
	data = data[offset:]

	var raw []byte
	switch h.imageType {
	case tgaTrueColor, tgaGrayscale:
		if len(data) < pixelCount*pixelSize {
			return nil, errTruncatedTGA
		}
		raw = data[:pixelCount*pixelSize]

	case tgaRLETrueColor, tgaRLEGrayscale:
		var err error
		raw, err = decodeTGARLE(data, pixelCount, pixelSize)
		if err != nil {
			return nil, err
		}
	}

	img := image.NewNRGBA(image.Rect(0, 0, h.width, h.height))
	topToBottom := h.descriptor&0x20 != 0
	rightToLeft := h.descriptor&0x10 != 0
	for i := range pixelCount {
		x, y := i%h.width, i/h.width
		if !topToBottom {
			y = h.height - 1 - y
		}
		if rightToLeft {
			x = h.width - 1 - x
		}

		src := raw[i*pixelSize : (i+1)*pixelSize]
		dst := img.Pix[img.PixOffset(x, y):]
		switch pixelSize {
		case 1:
			dst[0], dst[1], dst[2], dst[3] = src[0], src[0], src[0], 0xff
		case 3:
			dst[0], dst[1], dst[2], dst[3] = src[2], src[1], src[0], 0xff
		case 4:
			dst[0], dst[1], dst[2], dst[3] = src[2], src[1], src[0], src[3]
		}
	}
	return img, nil
}

// decodeTGARLE expands run-length encoded packets into raw pixels. raw grows with the
// decoded packets, truncated data fails before the whole image is allocated.
func decodeTGARLE(data []byte, pixelCount, pixelSize int) ([]byte, error) {
	var raw []byte
	for len(raw) < pixelCount*pixelSize {
		if len(data) == 0 {
			return nil, errTruncatedTGA
		}
		packet := data[0]
		data = data[1:]

		count := int(packet&0x7f) + 1
		if packet&0x80 != 0 {
			// Run-length packet: one pixel repeated count times.
			if len(data) < pixelSize {
				return nil, errTruncatedTGA
			}
			for range count {
				raw = append(raw, data[:pixelSize]...)
			}
			data = data[pixelSize:]
		} else {
			// Raw packet: count pixels.
			n := count * pixelSize
			if len(data) < n {
				return nil, errTruncatedTGA
			}
			raw = append(raw, data[:n]...)
			data = data[n:]
		}
	}
	if len(raw) > pixelCount*pixelSize {
		return nil, fmt.Errorf("tga packets exceed image size: %d > %d bytes", len(raw), pixelCount*pixelSize)
	}
	return raw, nil
}
