package scan

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"slices"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// ErrDecode is returned when a file cannot be turned into pixels
var ErrDecode = errors.New("decode failure")

// ErrUnsupported marks decode failures caused by a format with no decoder
var ErrUnsupported = errors.New("unsupported format")

// Decoded is a decoded image with the metadata a record needs
type Decoded struct {
	Image  image.Image
	Format string
	Width  int
	Height int
	DPI    int
	SizeMB float64
}

// Decode reads and decodes an image file and probes its resolution
func Decode(path string) (*Decoded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if strings.EqualFold(filepath.Ext(path), ".svg") {
		return nil, fmt.Errorf("%w: %w: %s: vector images cannot be rasterized", ErrDecode, ErrUnsupported, filepath.Base(path))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if errors.Is(err, image.ErrFormat) {
		return nil, fmt.Errorf("%w: %w: %s", ErrDecode, ErrUnsupported, filepath.Base(path))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, filepath.Base(path), err)
	}

	bounds := img.Bounds()
	return &Decoded{
		Image:  img,
		Format: strings.ToLower(format),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		DPI:    probeDPI(data, format),
		SizeMB: float64(len(data)) / (1 << 20),
	}, nil
}

// IsSupportedImage checks the file extension against the allow-list
func IsSupportedImage(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	return slices.ContainsFunc(extensions, func(e string) bool {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		return e == ext
	})
}
