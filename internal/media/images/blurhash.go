package images

import (
	"fmt"
	"image"

	"github.com/bbrks/go-blurhash"
	"github.com/spf13/afero"
)

// blurHashSize is the thumbnail edge used before encoding; a placeholder
// hash is indistinguishable at higher resolutions.
const blurHashSize = 64

// ComputeBlurHash generates a BlurHash string for the image at path.
// Uses 4x3 components (~20-30 chars).
func ComputeBlurHash(fsys afero.Fs, path string) (string, error) {
	img, err := decodeFile(fsys, path)
	if err != nil {
		return "", err
	}

	hash, err := blurhash.Encode(4, 3, resizeForBlurHash(img))
	if err != nil {
		return "", fmt.Errorf("encode blurhash: %w", err)
	}
	return hash, nil
}

// resizeForBlurHash scales img down with nearest-neighbor sampling so the
// longer edge is blurHashSize.
func resizeForBlurHash(img image.Image) image.Image {
	bounds := img.Bounds()
	srcWidth := bounds.Dx()
	srcHeight := bounds.Dy()

	if srcWidth <= blurHashSize && srcHeight <= blurHashSize {
		return img
	}

	var dstWidth, dstHeight int
	if srcWidth > srcHeight {
		dstWidth = blurHashSize
		dstHeight = max((srcHeight*blurHashSize)/srcWidth, 1)
	} else {
		dstHeight = blurHashSize
		dstWidth = max((srcWidth*blurHashSize)/srcHeight, 1)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))
	xRatio := float64(srcWidth) / float64(dstWidth)
	yRatio := float64(srcHeight) / float64(dstHeight)

	for y := range dstHeight {
		for x := range dstWidth {
			srcX := int(float64(x) * xRatio)
			srcY := int(float64(y) * yRatio)
			dst.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}
	return dst
}
