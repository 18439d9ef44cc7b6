// Package stem turns stored crops into model-ready inputs: every crop is
// embedded onto a fixed-size black canvas matching the model's input
// dimensions, with light photometric jitter at training time.
package stem

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/disintegration/imaging"

	"github.com/inkstone/handwriting-pipeline/internal/imageutil"
)

// ParagraphStem prepares paragraph (and synthetic paragraph) crops.
//
// The crop is first downsampled by ScaleFactor, then embedded onto the
// canvas. At evaluation time it is centered. With Augment set and a
// generator supplied, the crop is placed at a random offset and jittered
// in brightness and contrast. The stem is not safe for concurrent use
// when augmenting; each data-loading worker owns its own.
type ParagraphStem struct {
	Height      int
	Width       int
	ScaleFactor int
	Augment     bool

	rng *rand.Rand
}

// NewParagraphStem builds a stem for the given canvas size. rng may be nil
// when augment is false.
func NewParagraphStem(height, width, scaleFactor int, augment bool, rng *rand.Rand) (*ParagraphStem, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("stem canvas dims must be positive, got %dx%d", width, height)
	}
	if scaleFactor < 1 {
		return nil, fmt.Errorf("stem scale factor must be >= 1, got %d", scaleFactor)
	}
	if augment && rng == nil {
		return nil, fmt.Errorf("augmenting stem requires a random generator")
	}
	return &ParagraphStem{Height: height, Width: width, ScaleFactor: scaleFactor, Augment: augment, rng: rng}, nil
}

// Apply downsamples a crop by the scale factor and embeds it onto the
// stem's canvas. The scaled crop must fit; an oversized one indicates a
// dimension validation that never ran.
func (s *ParagraphStem) Apply(crop *image.Gray) (*image.Gray, error) {
	crop, err := imageutil.ResizeByScale(crop, s.ScaleFactor)
	if err != nil {
		return nil, err
	}

	w, h := crop.Bounds().Dx(), crop.Bounds().Dy()
	if w > s.Width || h > s.Height {
		return nil, fmt.Errorf("crop %dx%d exceeds stem canvas %dx%d", w, h, s.Width, s.Height)
	}

	src := image.Image(crop)
	x := (s.Width - w) / 2
	y := (s.Height - h) / 2
	if s.Augment {
		x = s.rng.Intn(s.Width - w + 1)
		y = s.rng.Intn(s.Height - h + 1)
		// Jitter brightness and contrast by up to 10% each way.
		src = adjust.Brightness(src, s.jitter(0.1))
		src = adjust.Contrast(src, s.jitter(0.1))
	}

	canvas := imaging.New(s.Width, s.Height, color.Black)
	canvas = imaging.Paste(canvas, src, image.Pt(x, y))
	return imageutil.ToGray(canvas), nil
}

func (s *ParagraphStem) jitter(scale float64) float64 {
	return (s.rng.Float64()*2 - 1) * scale
}
