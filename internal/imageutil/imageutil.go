// Package imageutil provides the grayscale image plumbing shared by the
// dataset pipeline: loading, polarity inversion, region cropping, scale
// resizing, and PNG persistence.
package imageutil

import (
	"fmt"
	"image"
	"image/draw"
	_ "image/jpeg" // Register JPEG format decoder (IAM forms ship as JPEG)
	"image/png"
	"os"

	"github.com/disintegration/imaging"

	"github.com/inkstone/handwriting-pipeline/internal/geometry"
)

// ToGray converts any image to a single-channel 8-bit grayscale image.
// If img already is *image.Gray it is returned unchanged.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(gray, gray.Bounds(), img, bounds.Min, draw.Src)
	return gray
}

// LoadGray reads and decodes an image file as grayscale.
func LoadGray(path string) (*image.Gray, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return ToGray(img), nil
}

// Invert flips image polarity. IAM scans are dark ink on a light
// background; the training stems expect light ink on dark.
func Invert(img image.Image) *image.Gray {
	return ToGray(imaging.Invert(img))
}

// CropRegion extracts the given region from an image. The crop always has
// the region's exact dimensions: padded line regions near a form's edge
// can legitimately extend past the scan, and the overflow is filled with
// black (the background value of inverted scans).
func CropRegion(img image.Image, r geometry.Region) (*image.Gray, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid crop region %v: corners out of order", r)
	}
	bounds := img.Bounds()
	overlap := image.Rect(r.X1, r.Y1, r.X2, r.Y2).Intersect(bounds)
	if overlap.Empty() {
		return nil, fmt.Errorf("crop region %v lies outside image bounds %v", r, bounds)
	}

	out := image.NewGray(image.Rect(0, 0, r.Width(), r.Height()))
	dst := overlap.Sub(image.Pt(r.X1, r.Y1))
	draw.Draw(out, dst, img, overlap.Min, draw.Src)
	return out, nil
}

// ResizeByScale downsamples an image by an integer scale factor using
// bilinear resampling. A factor of 1 returns the input unchanged.
func ResizeByScale(img *image.Gray, scaleFactor int) (*image.Gray, error) {
	if scaleFactor < 1 {
		return nil, fmt.Errorf("scale factor must be >= 1, got %d", scaleFactor)
	}
	if scaleFactor == 1 {
		return img, nil
	}
	w := max(1, img.Bounds().Dx()/scaleFactor)
	h := max(1, img.Bounds().Dy()/scaleFactor)
	return ToGray(imaging.Resize(img, w, h, imaging.Linear)), nil
}

// WritePNG encodes an image as PNG at the given path. A *image.Gray input
// produces a single-channel grayscale PNG.
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create image file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return f.Close()
}
