// Package synthetic composes training-time paragraph samples out of
// pre-materialized line crops: a handful of independently sourced lines are
// stacked into one multi-line image to augment the limited supply of real
// paragraphs.
package synthetic

import (
	"fmt"
	"image"
	"image/color"
	"math/rand"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/inkstone/handwriting-pipeline/internal/charmap"
	"github.com/inkstone/handwriting-pipeline/internal/imageutil"
)

// Config bounds the composed samples.
type Config struct {
	// MaxImageHeight and MaxImageWidth are the model's input dimensions;
	// composed paragraphs must fit inside them.
	MaxImageHeight int
	MaxImageWidth  int

	// MaxLabelLength is the model's output dimension. Composed labels may
	// use at most MaxLabelLength-2 characters, reserving two slots for
	// the start and end markers added at encoding time.
	MaxLabelLength int

	// MinLines and MaxLines bound the number of lines drawn per sample
	// (defaults 1 and 15).
	MinLines int
	MaxLines int
}

func (c *Config) defaults() {
	if c.MinLines <= 0 {
		c.MinLines = 1
	}
	if c.MaxLines <= 0 {
		c.MaxLines = 15
	}
}

// Composer draws synthetic paragraph samples from a read-only pool of line
// crops and labels.
//
// A Composer owns its random generator and is not safe for concurrent use;
// parallel data-loading workers each build their own Composer over the
// shared pool, seeded via WorkerSeed, so a worker's sample sequence is
// deterministic and workers never contend.
type Composer struct {
	crops  []*image.Gray
	labels []string
	cfg    Config
	rng    *rand.Rand
}

// NewComposer validates the pool and returns a composer drawing from it.
func NewComposer(crops []*image.Gray, labels []string, cfg Config, rng *rand.Rand) (*Composer, error) {
	if len(crops) != len(labels) {
		return nil, fmt.Errorf("crop count %d != label count %d", len(crops), len(labels))
	}
	if len(crops) == 0 {
		return nil, fmt.Errorf("empty line crop pool")
	}
	cfg.defaults()
	if cfg.MaxImageHeight <= 0 || cfg.MaxImageWidth <= 0 || cfg.MaxLabelLength <= 2 {
		return nil, fmt.Errorf("composer config must set positive image dims and label length > 2")
	}
	return &Composer{crops: crops, labels: labels, cfg: cfg, rng: rng}, nil
}

// WorkerSeed derives a deterministic generator seed for a data-loading
// worker. Repeated epochs differ only in which indices a worker receives,
// never within the worker's own sequence.
func WorkerSeed(workerID, epoch int) int64 {
	return int64(workerID)<<32 ^ int64(uint32(epoch))
}

// Sample composes one synthetic paragraph: it draws a line count k uniform
// in [MinLines, MaxLines], samples k distinct lines, stacks their crops
// top-down, and joins their labels with the newline token.
//
// If the composed image exceeds the configured input dimensions or the
// label exceeds its budget, the last sampled line is dropped and the
// remainder re-composed; the candidate set strictly shrinks, so the loop
// terminates as soon as a prefix fits. Shrinking rather than rejecting
// keeps the already-selected crops instead of re-drawing from scratch.
func (c *Composer) Sample() (*image.Gray, string, error) {
	k := c.cfg.MinLines + c.rng.Intn(c.cfg.MaxLines-c.cfg.MinLines+1)
	if k > len(c.crops) {
		k = len(c.crops)
	}
	indices := c.rng.Perm(len(c.crops))[:k]

	for len(indices) > 0 {
		selected := make([]*image.Gray, len(indices))
		parts := make([]string, len(indices))
		for i, idx := range indices {
			selected[i] = c.crops[idx]
			parts[i] = c.labels[idx]
		}

		img := JoinLineCrops(selected)
		label := strings.Join(parts, charmap.NewLineToken)

		if len([]rune(label)) <= c.cfg.MaxLabelLength-2 &&
			img.Bounds().Dy() <= c.cfg.MaxImageHeight &&
			img.Bounds().Dx() <= c.cfg.MaxImageWidth {
			return img, label, nil
		}
		indices = indices[:len(indices)-1]
	}
	return nil, "", fmt.Errorf("no single line crop fits input dims %dx%d / label budget %d",
		c.cfg.MaxImageWidth, c.cfg.MaxImageHeight, c.cfg.MaxLabelLength-2)
}

// JoinLineCrops stacks line crops vertically, each left-aligned at x=0, on
// a black canvas whose height is the sum of the crop heights and whose
// width is the widest crop.
func JoinLineCrops(lineCrops []*image.Gray) *image.Gray {
	height, width := 0, 0
	for _, crop := range lineCrops {
		height += crop.Bounds().Dy()
		width = max(width, crop.Bounds().Dx())
	}

	canvas := imaging.New(width, height, color.Black)
	y := 0
	for _, crop := range lineCrops {
		canvas = imaging.Paste(canvas, crop, image.Pt(0, y))
		y += crop.Bounds().Dy()
	}
	return imageutil.ToGray(canvas)
}
