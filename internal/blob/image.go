package blob

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxEdge = 1600
	DefaultQuality = 85
)

var ErrInvalidImage = errors.New("invalid image data")

type NormalizedImage struct {
	Data     []byte
	MimeType string
	Width    int
	Height   int
}

// Ext is the file extension matching MimeType.
func (n *NormalizedImage) Ext() string {
	if n.MimeType == "image/png" {
		return ".png"
	}
	return ".jpg"
}

// NormalizeStaticImage decodes src, shrinks it so neither edge exceeds
// maxEdge, and re-encodes it. Images with any transparency stay PNG, the
// rest become JPEG. Animated formats keep their first frame.
func NormalizeStaticImage(src io.Reader, maxEdge int, quality int) (*NormalizedImage, error) {
	if maxEdge <= 0 {
		maxEdge = DefaultMaxEdge
	}
	if quality <= 0 || quality > 100 {
		quality = DefaultQuality
	}

	img, _, err := image.Decode(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	bounds := img.Bounds()
	if bounds.Dx() <= 0 || bounds.Dy() <= 0 {
		return nil, fmt.Errorf("%w: empty dimensions", ErrInvalidImage)
	}

	width, height := scaleDimensions(bounds.Dx(), bounds.Dy(), maxEdge)
	dst := image.NewNRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)

	buf := bytes.NewBuffer(nil)
	mimeType := "image/jpeg"
	if hasTransparency(dst) {
		mimeType = "image/png"
		err = png.Encode(buf, dst)
	} else {
		err = jpeg.Encode(buf, dst, &jpeg.Options{Quality: quality})
	}
	if err != nil {
		return nil, fmt.Errorf("encoding %s: %w", mimeType, err)
	}

	return &NormalizedImage{
		Data:     buf.Bytes(),
		MimeType: mimeType,
		Width:    width,
		Height:   height,
	}, nil
}

func hasTransparency(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] != 0xff {
			return true
		}
	}
	return false
}

func scaleDimensions(width, height, maxEdge int) (int, int) {
	if width <= maxEdge && height <= maxEdge {
		return width, height
	}

	if width >= height {
		ratio := float64(maxEdge) / float64(width)
		scaledHeight := int(float64(height)*ratio + 0.5)
		if scaledHeight < 1 {
			scaledHeight = 1
		}
		return maxEdge, scaledHeight
	}

	ratio := float64(maxEdge) / float64(height)
	scaledWidth := int(float64(width)*ratio + 0.5)
	if scaledWidth < 1 {
		scaledWidth = 1
	}
	return scaledWidth, maxEdge
}
