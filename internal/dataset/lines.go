package dataset

import (
	"fmt"
	"log/slog"

	"github.com/inkstone/handwriting-pipeline/internal/catalog"
	"github.com/inkstone/handwriting-pipeline/internal/crops"
	"github.com/inkstone/handwriting-pipeline/internal/stem"
)

// Lines builds the line dataset: one crop and label per handwritten line.
type Lines struct {
	cfg    DataConfig
	store  *crops.Store
	logger *slog.Logger
}

// NewLines creates the builder over an existing store handle.
func NewLines(store *crops.Store, cfg DataConfig, logger *slog.Logger) (*Lines, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Lines{cfg: cfg, store: store, logger: logger}, nil
}

// Prepare materializes line crops for every split (a cached no-op when
// already materialized).
func (l *Lines) Prepare(cat *catalog.Catalog) error {
	return l.store.MaterializeLines(cat, catalog.Splits)
}

// ValidateDims checks that the configured input width can hold the widest
// materialized line once scaled to the input height, and that every
// split's labels fit the output length.
func (l *Lines) ValidateDims() error {
	maxAspect, err := l.store.MaxAspectRatio()
	if err != nil {
		return err
	}
	if width := int(float64(l.cfg.InputHeight) * maxAspect); width > l.cfg.InputWidth {
		return fmt.Errorf("input width %d smaller than widest line at height %d (%d)",
			l.cfg.InputWidth, l.cfg.InputHeight, width)
	}

	for _, split := range catalog.Splits {
		labels, err := l.store.LoadLineLabels(split)
		if err != nil {
			return err
		}
		for _, label := range labels {
			if len([]rune(label))+2 > l.cfg.OutputLength {
				return fmt.Errorf("split %s: label of length %d exceeds output length %d minus start/end markers",
					split, len([]rune(label)), l.cfg.OutputLength)
			}
		}
	}
	return nil
}

// Load returns a split's line dataset. The stem embeds each variable-width
// crop onto the fixed line canvas; train and val get the augmenting stem
// when augmentation is enabled.
func (l *Lines) Load(split string, st *stem.LineStem) (*Dataset, error) {
	imgs, labels, err := l.store.LoadLines(split)
	if err != nil {
		return nil, err
	}
	var is imageStem
	if st != nil {
		is = st
	}
	return newDataset(imgs, labels, l.cfg, is)
}
