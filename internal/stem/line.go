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

// defaultCharWidth is a rough estimate of one glyph's width at the stored
// line scale, used as the left margin when embedding a line crop.
const defaultCharWidth = 28 / 2

// LineStem prepares line crops: each crop is resized to the canvas height
// while preserving aspect ratio, then embedded with a small left margin.
// With Augment set the width is additionally stretched by up to 10% and
// the result jittered in brightness and contrast. Like the paragraph
// stem, an augmenting line stem is not safe for concurrent use.
type LineStem struct {
	Height    int
	Width     int
	CharWidth int
	Augment   bool

	rng *rand.Rand
}

// NewLineStem builds a stem for the given canvas size. rng may be nil when
// augment is false.
func NewLineStem(height, width int, augment bool, rng *rand.Rand) (*LineStem, error) {
	if height <= 0 || width <= 0 {
		return nil, fmt.Errorf("stem canvas dims must be positive, got %dx%d", width, height)
	}
	if augment && rng == nil {
		return nil, fmt.Errorf("augmenting stem requires a random generator")
	}
	return &LineStem{Height: height, Width: width, CharWidth: defaultCharWidth, Augment: augment, rng: rng}, nil
}

// Apply embeds a line crop onto the stem's canvas.
func (s *LineStem) Apply(crop *image.Gray) (*image.Gray, error) {
	w, h := crop.Bounds().Dx(), crop.Bounds().Dy()
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("empty line crop")
	}

	newH := s.Height
	newW := int(float64(newH) * float64(w) / float64(h))
	if s.Augment {
		// Random horizontal stretch between 90% and 110%.
		newW = int(float64(newW) * (0.9 + s.rng.Float64()*0.2))
	}
	newW = min(max(newW, 1), s.Width)

	src := image.Image(imaging.Resize(crop, newW, newH, imaging.Linear))
	if s.Augment {
		src = adjust.Brightness(src, s.jitter(0.1))
		src = adjust.Contrast(src, s.jitter(0.1))
	}

	x := min(s.CharWidth, s.Width-newW)
	canvas := imaging.New(s.Width, s.Height, color.Black)
	canvas = imaging.Paste(canvas, src, image.Pt(x, 0))
	return imageutil.ToGray(canvas), nil
}

func (s *LineStem) jitter(scale float64) float64 {
	return (s.rng.Float64()*2 - 1) * scale
}
