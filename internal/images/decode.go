package images

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/lehigh-university-libraries/picturebook/internal/models"
)

var (
	// ErrDecode wraps every failure to decode image bytes.
	ErrDecode = errors.New("failed to decode image")

	// ErrUnsupportedFormat is returned for uploads with an extension we do not accept.
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".gif":  true,
}

// CheckExtension rejects file names whose extension is not an accepted image
// type. Names without an extension are accepted and left to the decoder.
func CheckExtension(filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || allowedExtensions[ext] {
		return nil
	}
	return fmt.Errorf("%w: %s (supported: jpg, jpeg, png, webp, gif)", ErrUnsupportedFormat, ext)
}

// Decode fully decodes data to validate it and returns its metadata.
func Decode(data []byte, source string) (*models.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDecode)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	b := img.Bounds()
	return &models.Image{
		Data:   data,
		Format: format,
		Width:  b.Dx(),
		Height: b.Dy(),
		Source: source,
	}, nil
}

// Thumbnail returns a JPEG copy of img scaled so that its longest side is at
// most maxSide pixels. Images already small enough are re-encoded unscaled.
func Thumbnail(img *models.Image, maxSide int) ([]byte, error) {
	return Downscale(img.Data, maxSide, 85)
}

// Downscale decodes data, shrinks it to fit maxSide and encodes it as JPEG.
func Downscale(data []byte, maxSide, quality int) ([]byte, error) {
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}

	w, h := fitWithin(src.Bounds().Dx(), src.Bounds().Dy(), maxSide)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func fitWithin(w, h, maxSide int) (int, int) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}
	if w >= h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}
