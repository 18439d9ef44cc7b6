// Package recognizer renders model predictions for paragraph images.
//
// The neural model itself is an external collaborator: anything exposing a
// callable from a stemmed image to a label-index sequence. The recognizer
// owns the surrounding plumbing: grayscale conversion, polarity inversion,
// fitting the image onto the model's input canvas, and decoding the
// predicted indices through the character mapping while skipping the
// start/end/padding markers.
package recognizer

import (
	"context"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/inkstone/handwriting-pipeline/internal/charmap"
	"github.com/inkstone/handwriting-pipeline/internal/imageutil"
	"github.com/inkstone/handwriting-pipeline/internal/stem"
)

// Model maps a model-ready grayscale image to a label-index sequence.
type Model interface {
	Predict(ctx context.Context, img *image.Gray) ([]int, error)
}

// Recognizer converts raw page images into text via a staged model.
type Recognizer struct {
	model   Model
	mapping *charmap.Mapping
	ignore  []int
	stem    *stem.ParagraphStem
}

// New builds a recognizer for a model expecting the given input canvas.
// scaleFactor is the downsampling the model's stem applies to incoming
// images before embedding them.
func New(model Model, mapping *charmap.Mapping, inputHeight, inputWidth, scaleFactor int) (*Recognizer, error) {
	if model == nil {
		return nil, fmt.Errorf("model must not be nil")
	}
	if mapping == nil {
		mapping = charmap.New()
	}
	st, err := stem.NewParagraphStem(inputHeight, inputWidth, scaleFactor, false, nil)
	if err != nil {
		return nil, err
	}
	return &Recognizer{
		model:   model,
		mapping: mapping,
		ignore:  mapping.IgnoreIndices(),
		stem:    st,
	}, nil
}

// Recognize predicts the text in an image of a handwritten paragraph.
// The input is expected in scan polarity (dark ink on light background),
// as uploaded images and the raw dataset both are.
func (r *Recognizer) Recognize(ctx context.Context, img image.Image) (string, error) {
	gray := imageutil.Invert(imageutil.ToGray(img))

	// Oversized inputs are scaled down, preserving aspect ratio, to what
	// the stem's own downsampling can still fit onto the canvas.
	maxW := r.stem.Width * r.stem.ScaleFactor
	maxH := r.stem.Height * r.stem.ScaleFactor
	if gray.Bounds().Dx() > maxW || gray.Bounds().Dy() > maxH {
		gray = imageutil.ToGray(imaging.Fit(gray, maxW, maxH, imaging.Linear))
	}

	stemmed, err := r.stem.Apply(gray)
	if err != nil {
		return "", err
	}

	indices, err := r.model.Predict(ctx, stemmed)
	if err != nil {
		return "", fmt.Errorf("model prediction failed: %w", err)
	}
	return r.mapping.Decode(indices, r.ignore)
}
