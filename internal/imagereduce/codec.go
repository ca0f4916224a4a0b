package imagereduce

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
)

// JPEGTransform returns a Transform that decodes any supported image
// (honouring EXIF orientation), scales it down to at most p.Width pixels wide
// and re-encodes it as JPEG into a temp file under dir. An empty dir uses the
// OS temp directory.
func JPEGTransform(dir string) Transform {
	return func(ctx context.Context, src string, p Params) (string, error) {
		if err := checkImage(src); err != nil {
			return "", err
		}

		img, err := imaging.Open(src, imaging.AutoOrientation(true))
		if err != nil {
			return "", fmt.Errorf("failed to decode image: %w", err)
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}

		bounds := img.Bounds()
		newW, newH := scaledDimensions(bounds.Dx(), bounds.Dy(), p.Width)
		// JPEG has no alpha channel, so transparency is flattened onto white.
		out := image.NewRGBA(image.Rect(0, 0, newW, newH))
		draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
		if newW != bounds.Dx() || newH != bounds.Dy() {
			draw.CatmullRom.Scale(out, out.Bounds(), img, bounds, draw.Over, nil)
		} else {
			draw.Draw(out, out.Bounds(), img, bounds.Min, draw.Over)
		}

		f, err := os.CreateTemp(dir, "medassist-reduced-*.jpg")
		if err != nil {
			return "", fmt.Errorf("failed to create temp file: %w", err)
		}
		quality := jpegQuality(p.Quality)
		if err := jpeg.Encode(f, out, &jpeg.Options{Quality: quality}); err != nil {
			f.Close()
			os.Remove(f.Name())
			return "", fmt.Errorf("failed to encode JPEG: %w", err)
		}
		if err := f.Close(); err != nil {
			os.Remove(f.Name())
			return "", fmt.Errorf("failed to write JPEG: %w", err)
		}

		log.Debug().
			Str("src", src).
			Int("width", newW).
			Int("height", newH).
			Int("quality", quality).
			Msg("Image pass encoded")
		return f.Name(), nil
	}
}

// checkImage rejects files whose magic bytes are not an image.
func checkImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return fmt.Errorf("failed to read image header: %w", err)
	}
	if !filetype.IsImage(head[:n]) {
		return fmt.Errorf("%s is not a recognised image", path)
	}
	return nil
}

// scaledDimensions fits width to maxWidth preserving aspect ratio. Images
// narrower than maxWidth keep their size.
func scaledDimensions(width, height, maxWidth int) (int, int) {
	if maxWidth <= 0 || width <= maxWidth {
		return width, height
	}
	newH := int(float64(height) * float64(maxWidth) / float64(width))
	if newH < 1 {
		newH = 1
	}
	return maxWidth, newH
}

func jpegQuality(q float64) int {
	v := int(q * 100)
	if v < 1 {
		return 1
	}
	if v > 100 {
		return 100
	}
	return v
}
