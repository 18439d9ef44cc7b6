package dataset

import (
	"fmt"
	"image"
	"log/slog"
	"math/rand"

	"github.com/inkstone/handwriting-pipeline/internal/catalog"
	"github.com/inkstone/handwriting-pipeline/internal/crops"
	"github.com/inkstone/handwriting-pipeline/internal/stem"
	"github.com/inkstone/handwriting-pipeline/internal/synthetic"
)

// Synthetic builds the synthetic paragraph dataset: train-split line crops
// are materialized once, then multi-line paragraphs are composed on the
// fly during training. Only the train split exists; synthetic data never
// enters evaluation.
type Synthetic struct {
	cfg    DataConfig
	store  *crops.Store
	logger *slog.Logger

	lineCrops  []*image.Gray
	lineLabels []string
}

// NewSynthetic creates the builder over an existing store handle. The
// store must be dedicated to the synthetic dataset (its own directory):
// line crops are materialized into it for the train split only.
func NewSynthetic(store *crops.Store, cfg DataConfig, logger *slog.Logger) (*Synthetic, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Synthetic{cfg: cfg, store: store, logger: logger}, nil
}

// Prepare materializes the train-split line crops the composer draws from
// (a cached no-op when already materialized).
func (s *Synthetic) Prepare(cat *catalog.Catalog) error {
	return s.store.MaterializeLines(cat, []string{catalog.SplitTrain})
}

// Setup loads the line-crop pool into memory. The pool is read-only after
// this call and shared by every worker's composer.
func (s *Synthetic) Setup() error {
	if s.lineCrops != nil {
		return nil
	}
	lineCrops, labels, err := s.store.LoadLines(catalog.SplitTrain)
	if err != nil {
		return err
	}
	s.lineCrops = lineCrops
	s.lineLabels = labels
	s.logger.Info("loaded synthetic line pool", "lines", len(labels))
	return nil
}

// Len returns the dataset's virtual size: the composer serves samples
// indefinitely, and this configured length tells a training loop how many
// samples make one epoch.
func (s *Synthetic) Len() int { return s.cfg.DatasetLen }

// Worker owns one data-loading worker's composer and augmenting stem.
// Its sample sequence is deterministic given (workerID, epoch).
type Worker struct {
	composer *synthetic.Composer
	stem     *stem.ParagraphStem
	cfg      DataConfig
}

// NewWorker builds a worker's sampling state. Setup must have run.
func (s *Synthetic) NewWorker(workerID, epoch int) (*Worker, error) {
	if s.lineCrops == nil {
		return nil, fmt.Errorf("synthetic dataset not set up: call Setup before NewWorker")
	}

	rng := rand.New(rand.NewSource(synthetic.WorkerSeed(workerID, epoch)))
	composer, err := synthetic.NewComposer(s.lineCrops, s.lineLabels, synthetic.Config{
		MaxImageHeight: s.cfg.InputHeight,
		MaxImageWidth:  s.cfg.InputWidth,
		MaxLabelLength: s.cfg.OutputLength,
	}, rng)
	if err != nil {
		return nil, err
	}

	st, err := stem.NewParagraphStem(s.cfg.InputHeight, s.cfg.InputWidth, s.cfg.ScaleFactor, s.cfg.AugmentData, rng)
	if err != nil {
		return nil, err
	}
	return &Worker{composer: composer, stem: st, cfg: s.cfg}, nil
}

// Sample composes one synthetic paragraph and returns the stemmed image
// with its encoded label vector.
func (w *Worker) Sample() (*image.Gray, []int, error) {
	img, label, err := w.composer.Sample()
	if err != nil {
		return nil, nil, err
	}
	img, err = w.stem.Apply(img)
	if err != nil {
		return nil, nil, err
	}
	target, err := w.cfg.Mapping.Encode(label, w.cfg.OutputLength)
	if err != nil {
		return nil, nil, err
	}
	return img, target, nil
}
