// Package images decodes dropped artwork, converts it to JPEG and computes
// the fingerprints and previews the mutator records.
package images

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	_ "golang.org/x/image/bmp"  // Register BMP decoder
	_ "golang.org/x/image/webp" // Register WebP decoder
)

// DefaultQuality is the JPEG quality used for conversions.
const DefaultQuality = 92

// NeedsConversion reports whether a file with this name is stored in a
// format other than JPEG.
func NeedsConversion(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".webp", ".bmp", ".gif":
		return true
	default:
		return false
	}
}

// JPEGName returns name with its extension replaced by ".jpg".
func JPEGName(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name)) + ".jpg"
}

// ToJPEG decodes src and writes it to dst as a JPEG. Transparent pixels are
// flattened onto white. dst is written through a temp file in the same
// directory and renamed into place.
func ToJPEG(fsys afero.Fs, src, dst string, quality int) error {
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}
	img, err := decodeFile(fsys, src)
	if err != nil {
		return err
	}

	flat := image.NewRGBA(img.Bounds())
	draw.Draw(flat, flat.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.Draw(flat, flat.Bounds(), img, img.Bounds().Min, draw.Over)

	tmp, err := afero.TempFile(fsys, filepath.Dir(dst), ".convert-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if err := jpeg.Encode(tmp, flat, &jpeg.Options{Quality: quality}); err != nil {
		_ = tmp.Close()
		_ = fsys.Remove(tmpName)
		return fmt.Errorf("encode jpeg: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = fsys.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := fsys.Rename(tmpName, dst); err != nil {
		_ = fsys.Remove(tmpName)
		return fmt.Errorf("rename converted file: %w", err)
	}
	return nil
}

// Fingerprint returns the size and SHA-256 of the file at path.
func Fingerprint(fsys afero.Fs, path string) (int64, string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return 0, "", fmt.Errorf("hash file: %w", err)
	}
	return n, hex.EncodeToString(h.Sum(nil)), nil
}

// ContentType sniffs the MIME type of image data.
func ContentType(data []byte) string {
	return http.DetectContentType(data)
}

// Dimensions returns the pixel size of the image at path without decoding
// the whole image.
func Dimensions(fsys afero.Fs, path string) (int, int, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("decode image config: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

func decodeFile(fsys afero.Fs, path string) (image.Image, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}
