package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"io"
	"strings"

	// Register decoders for every accepted format except TGA.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/bmp"
)

// MaxPixels bounds width*height of any image this package will decode.
const MaxPixels = 50_000_000

// ErrImageTooLarge is returned when the declared dimensions exceed MaxPixels.
var ErrImageTooLarge = errors.New("image dimensions too large")

// ImageInfo describes a successfully decoded upload.
type ImageInfo struct {
	MimeType string
	Format   string
	Width    int
	Height   int
}

// validateImage fully decodes data. TGA has no signature, so it is only
// attempted when the declared extension says so.
func validateImage(data []byte, ext string) (*ImageInfo, error) {
	if err := checkDimensions(data, ext); err != nil {
		return nil, err
	}

	mime := mimetype.Detect(data)

	if strings.HasPrefix(mime.String(), "image/") {
		img, format, err := image.Decode(bytes.NewReader(data))
		if err == nil {
			b := img.Bounds()
			return &ImageInfo{
				MimeType: mime.String(),
				Format:   format,
				Width:    b.Dx(),
				Height:   b.Dy(),
			}, nil
		}

		if ext != ".TGA" {
			return nil, errors.Join(ErrInvalidImage, err)
		}
	}

	if ext == ".TGA" {
		img, err := decodeTGA(bytes.NewReader(data))
		if err != nil {
			return nil, errors.Join(ErrInvalidImage, err)
		}

		b := img.Bounds()
		return &ImageInfo{
			MimeType: "image/x-tga",
			Format:   "tga",
			Width:    b.Dx(),
			Height:   b.Dy(),
		}, nil
	}

	return nil, ErrInvalidImage
}

// Decode decodes a stored image of any accepted format.
func Decode(r io.Reader, ext string) (image.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	ext = strings.ToUpper(ext)
	if err := checkDimensions(data, ext); err != nil {
		return nil, err
	}

	if ext == ".TGA" {
		if img, err := decodeTGA(bytes.NewReader(data)); err == nil {
			return img, nil
		}
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Join(ErrInvalidImage, err)
	}

	return img, nil
}

// checkDimensions reads only the image header and rejects pixel counts
// over MaxPixels before any decoder allocates the frame.
func checkDimensions(data []byte, ext string) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		if ext != ".TGA" {
			return errors.Join(ErrInvalidImage, err)
		}

		var h tgaHeader
		cfg, h, err = decodeTGAConfig(bytes.NewReader(data))
		if err != nil {
			return errors.Join(ErrInvalidImage, err)
		}

		if cfg.Width*cfg.Height <= MaxPixels && len(data) < h.minSize() {
			return fmt.Errorf("%w: truncated tga data", ErrInvalidImage)
		}
	}

	if cfg.Width <= 0 || cfg.Height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrInvalidImage, cfg.Width, cfg.Height)
	}

	if cfg.Width*cfg.Height > MaxPixels {
		return fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}

	return nil
}
