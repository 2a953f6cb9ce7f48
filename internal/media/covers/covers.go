// Package covers turns extracted cover art into embeddable payloads:
// a data URI for direct rendering plus dimensions and a BlurHash
// placeholder for the library grid.
package covers

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/bbrks/go-blurhash"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"github.com/inkwellapp/inkwell-server/internal/domain"
	"github.com/inkwellapp/inkwell-server/internal/epub"
)

// blurHashSize is the target size for BlurHash computation. BlurHash is a
// low-resolution placeholder; a small thumbnail produces nearly identical
// results in a fraction of the time.
const blurHashSize = 64

// Process converts extracted cover data into a domain CoverImage. The data
// URI always succeeds; dimensions and BlurHash are best-effort (SVG covers,
// for instance, have no raster form to decode).
func Process(cover *epub.CoverData) *domain.CoverImage {
	if cover == nil || len(cover.Data) == 0 {
		return nil
	}

	out := &domain.CoverImage{
		Data: fmt.Sprintf("data:%s;base64,%s", cover.MediaType,
			base64.StdEncoding.EncodeToString(cover.Data)),
		MimeType: cover.MediaType,
	}

	img, _, err := image.Decode(bytes.NewReader(cover.Data))
	if err != nil {
		return out
	}

	bounds := img.Bounds()
	out.Width = bounds.Dx()
	out.Height = bounds.Dy()

	// 4 horizontal, 3 vertical components - sweet spot for book covers.
	if hash, err := blurhash.Encode(4, 3, resizeForBlurHash(img)); err == nil {
		out.BlurHash = hash
	}

	return out
}

// resizeForBlurHash creates a small thumbnail for BlurHash computation.
// Nearest-neighbor scaling is fast and sufficient at placeholder quality.
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
		dstHeight = max(1, (srcHeight*blurHashSize)/srcWidth)
	} else {
		dstHeight = blurHashSize
		dstWidth = max(1, (srcWidth*blurHashSize)/srcHeight)
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstWidth, dstHeight))

	xRatio := float64(srcWidth) / float64(dstWidth)
	yRatio := float64(srcHeight) / float64(dstHeight)

	for y := 0; y < dstHeight; y++ {
		for x := 0; x < dstWidth; x++ {
			srcX := int(float64(x) * xRatio)
			srcY := int(float64(y) * yRatio)
			dst.Set(x, y, img.At(bounds.Min.X+srcX, bounds.Min.Y+srcY))
		}
	}

	return dst
}
