package media

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"io"
)

var errTGAUnsupported = errors.New("unsupported tga variant")

type tgaHeader struct {
	idLen    int
	width    int
	height   int
	bpp      int
	gray     bool
	rle      bool
	hasAlpha bool
	topDown  bool
}

// readTGAHeader parses and checks the fixed 18 byte header.
func readTGAHeader(r io.Reader) (tgaHeader, error) {
	var h [18]byte
	if _, err := io.ReadFull(r, h[:]); err != nil {
		return tgaHeader{}, fmt.Errorf("failed to read tga header, %w", err)
	}

	hdr := tgaHeader{
		idLen:  int(h[0]),
		width:  int(binary.LittleEndian.Uint16(h[12:14])),
		height: int(binary.LittleEndian.Uint16(h[14:16])),
	}

	if h[1] != 0 {
		return tgaHeader{}, errTGAUnsupported
	}

	switch h[2] {
	case 2:
	case 3:
		hdr.gray = true
	case 10:
		hdr.rle = true
	case 11:
		hdr.gray, hdr.rle = true, true
	default:
		return tgaHeader{}, errTGAUnsupported
	}

	depth := int(h[16])
	if hdr.gray && depth != 8 || !hdr.gray && depth != 24 && depth != 32 {
		return tgaHeader{}, errTGAUnsupported
	}

	if hdr.width == 0 || hdr.height == 0 {
		return tgaHeader{}, fmt.Errorf("invalid tga dimensions %dx%d", hdr.width, hdr.height)
	}

	hdr.bpp = depth / 8
	hdr.hasAlpha = hdr.bpp == 4 && h[17]&0x0f != 0
	hdr.topDown = h[17]&0x20 != 0

	return hdr, nil
}

// minSize is the smallest file that can hold every pixel the header
// declares. An RLE packet covers at most 128 pixels.
func (h tgaHeader) minSize() int {
	pixels := h.width * h.height
	if h.rle {
		return 18 + h.idLen + (pixels+127)/128*(1+h.bpp)
	}
	return 18 + h.idLen + pixels*h.bpp
}

// decodeTGAConfig returns the dimensions without reading pixel data.
func decodeTGAConfig(r io.Reader) (image.Config, tgaHeader, error) {
	h, err := readTGAHeader(r)
	if err != nil {
		return image.Config{}, h, err
	}
	return image.Config{Width: h.width, Height: h.height}, h, nil
}

// decodeTGA reads uncompressed and RLE true-colour (24/32 bit) and
// greyscale (8 bit) Truevision TGA images.
func decodeTGA(r io.Reader) (image.Image, error) {
	br := bufio.NewReader(r)

	h, err := readTGAHeader(br)
	if err != nil {
		return nil, err
	}

	if h.width*h.height > MaxPixels {
		return nil, ErrImageTooLarge
	}

	if _, err := br.Discard(h.idLen); err != nil {
		return nil, fmt.Errorf("failed to skip tga id, %w", err)
	}

	width, height := h.width, h.height
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	px := make([]byte, h.bpp)

	set := func(i int) {
		x, y := i%width, i/width
		if !h.topDown {
			y = height - 1 - y
		}

		o := img.PixOffset(x, y)
		switch h.bpp {
		case 1:
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = px[0], px[0], px[0], 0xff
		default:
			img.Pix[o], img.Pix[o+1], img.Pix[o+2], img.Pix[o+3] = px[2], px[1], px[0], 0xff
			if h.hasAlpha {
				img.Pix[o+3] = px[3]
			}
		}
	}

	total := width * height
	for i := 0; i < total; {
		if !h.rle {
			if _, err := io.ReadFull(br, px); err != nil {
				return nil, fmt.Errorf("truncated tga data, %w", err)
			}
			set(i)
			i++
			continue
		}

		hdr, err := br.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("truncated tga data, %w", err)
		}

		count := int(hdr&0x7f) + 1
		if hdr&0x80 != 0 {
			if _, err := io.ReadFull(br, px); err != nil {
				return nil, fmt.Errorf("truncated tga data, %w", err)
			}
			for j := 0; j < count && i < total; j++ {
				set(i)
				i++
			}
			continue
		}

		for j := 0; j < count && i < total; j++ {
			if _, err := io.ReadFull(br, px); err != nil {
				return nil, fmt.Errorf("truncated tga data, %w", err)
			}
			set(i)
			i++
		}
	}

	return img, nil
}
