package dataset

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/inkstone/handwriting-pipeline/internal/catalog"
	"github.com/inkstone/handwriting-pipeline/internal/crops"
	"github.com/inkstone/handwriting-pipeline/internal/stem"
)

// Paragraphs builds the real-paragraph dataset: one crop per form, labels
// joined with the newline token.
type Paragraphs struct {
	cfg    DataConfig
	store  *crops.Store
	logger *slog.Logger
}

// NewParagraphs creates the builder over an existing store handle.
func NewParagraphs(store *crops.Store, cfg DataConfig, logger *slog.Logger) (*Paragraphs, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Paragraphs{cfg: cfg, store: store, logger: logger}, nil
}

// Prepare materializes paragraph crops for every split (a cached no-op
// when already materialized).
func (p *Paragraphs) Prepare(cat *catalog.Catalog) error {
	return p.store.MaterializeParagraphs(cat, catalog.Splits)
}

// ValidateDims checks the configured model dimensions against the largest
// materialized example. A too-small configuration is a setup error, caught
// here rather than as silent truncation during training.
func (p *Paragraphs) ValidateDims() error {
	props, err := p.store.LoadProperties()
	if err != nil {
		return err
	}

	// The stem downsamples stored crops by the scale factor before
	// embedding, so compare the scaled shape against the canvas.
	maxH, maxW := props.MaxCropShape()
	sf := p.cfg.ScaleFactor
	scaledH := (maxH + sf - 1) / sf
	scaledW := (maxW + sf - 1) / sf
	if p.cfg.InputHeight < scaledH || p.cfg.InputWidth < scaledW {
		return fmt.Errorf("input dims %dx%d smaller than largest paragraph crop %dx%d at scale factor %d",
			p.cfg.InputWidth, p.cfg.InputHeight, maxW, maxH, sf)
	}
	// Two slots reserved for the start/end markers.
	if longest := props.MaxLabelLength(); p.cfg.OutputLength < longest+2 {
		return fmt.Errorf("output length %d smaller than longest label %d plus start/end markers",
			p.cfg.OutputLength, longest)
	}
	return nil
}

// Load returns a split's dataset. train and val get the augmenting stem
// when augmentation is enabled; test always gets the plain stem.
func (p *Paragraphs) Load(split string, st *stem.ParagraphStem) (*Dataset, error) {
	imgs, labels, err := p.store.LoadParagraphs(split)
	if err != nil {
		return nil, err
	}
	var is imageStem
	if st != nil {
		is = st
	}
	return newDataset(imgs, labels, p.cfg, is)
}

// imageStem is the access-time transform shared by the stem types.
type imageStem interface {
	Apply(*image.Gray) (*image.Gray, error)
}

// Dataset is an in-memory indexed dataset of crops with encoded targets.
// The stem, when present, is applied at access time so train-time
// augmentation varies between epochs.
type Dataset struct {
	crops   []*image.Gray
	labels  []string
	targets [][]int
	stem    imageStem
}

func newDataset(imgs []*image.Gray, labels []string, cfg DataConfig, st imageStem) (*Dataset, error) {
	if len(imgs) != len(labels) {
		return nil, fmt.Errorf("crop count %d != label count %d", len(imgs), len(labels))
	}
	targets := make([][]int, len(labels))
	for i, label := range labels {
		t, err := cfg.Mapping.Encode(label, cfg.OutputLength)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		targets[i] = t
	}
	return &Dataset{crops: imgs, labels: labels, targets: targets, stem: st}, nil
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return len(d.crops) }

// At returns sample i: the (possibly stemmed) image and its encoded label
// vector.
func (d *Dataset) At(i int) (*image.Gray, []int, error) {
	if i < 0 || i >= len(d.crops) {
		return nil, nil, fmt.Errorf("index %d out of range [0,%d)", i, len(d.crops))
	}
	img := d.crops[i]
	if d.stem != nil {
		var err error
		img, err = d.stem.Apply(img)
		if err != nil {
			return nil, nil, err
		}
	}
	return img, d.targets[i], nil
}

// Label returns sample i's raw label string.
func (d *Dataset) Label(i int) string { return d.labels[i] }
