// Package dataset assembles the model-facing datasets on top of the
// catalog and the crop store: real paragraphs, individual lines, and
// synthetic paragraphs composed at training time.
//
// The builders share the catalog and store by composition; each owns only
// its dataset directory and its preparation/validation logic.
package dataset

import (
	"fmt"

	"github.com/inkstone/handwriting-pipeline/internal/charmap"
)

// Default dimensions for the paragraph datasets, matching the staged
// models' input and output shapes.
const (
	DefaultImageHeight    = 576
	DefaultImageWidth     = 640
	DefaultMaxLabelLength = 682
	DefaultScaleFactor    = 2

	// DefaultSyntheticLen is the virtual size of the synthetic dataset:
	// batch size 64 across 8 workers for 40 steps per epoch.
	DefaultSyntheticLen = 64 * 8 * 40

	// Line dataset dimensions: 112px line crops at scale factor 2, width
	// rounded up from the empirical IAM maximum.
	DefaultLineImageHeight  = 112 / DefaultScaleFactor
	DefaultLineImageWidth   = 3072 / DefaultScaleFactor
	DefaultLineOutputLength = 89
)

// DataConfig is the explicit configuration record handed to dataset
// builders and model constructors: input canvas dimensions, output label
// length, and the character mapping.
type DataConfig struct {
	// InputHeight and InputWidth are the model's input canvas dims.
	InputHeight int `yaml:"input_height"`
	InputWidth  int `yaml:"input_width"`

	// OutputLength is the label vector length, including the two slots
	// reserved for the start and end markers.
	OutputLength int `yaml:"output_length"`

	// ScaleFactor is the additional integer downsampling applied when
	// materializing crops.
	ScaleFactor int `yaml:"scale_factor"`

	// AugmentData enables train-time augmentation.
	AugmentData bool `yaml:"augment_data"`

	// DatasetLen is the synthetic dataset's virtual size.
	DatasetLen int `yaml:"dataset_len"`

	// Mapping is the label alphabet. Defaults to the paragraph mapping.
	Mapping *charmap.Mapping `yaml:"-"`
}

// WithDefaults fills unset fields with the standard paragraph dimensions.
func (c DataConfig) WithDefaults() DataConfig {
	if c.InputHeight == 0 {
		c.InputHeight = DefaultImageHeight
	}
	if c.InputWidth == 0 {
		c.InputWidth = DefaultImageWidth
	}
	if c.OutputLength == 0 {
		c.OutputLength = DefaultMaxLabelLength
	}
	if c.ScaleFactor == 0 {
		c.ScaleFactor = DefaultScaleFactor
	}
	if c.DatasetLen == 0 {
		c.DatasetLen = DefaultSyntheticLen
	}
	if c.Mapping == nil {
		c.Mapping = charmap.New()
	}
	return c
}

// Validate checks the config at construction time.
func (c DataConfig) Validate() error {
	if c.InputHeight <= 0 || c.InputWidth <= 0 {
		return fmt.Errorf("input dims must be positive, got %dx%d", c.InputWidth, c.InputHeight)
	}
	if c.OutputLength <= 2 {
		return fmt.Errorf("output length %d leaves no room for characters after start/end markers", c.OutputLength)
	}
	if c.ScaleFactor < 1 {
		return fmt.Errorf("scale factor must be >= 1, got %d", c.ScaleFactor)
	}
	if c.DatasetLen < 0 {
		return fmt.Errorf("dataset length must not be negative, got %d", c.DatasetLen)
	}
	if c.Mapping == nil {
		return fmt.Errorf("mapping must be set")
	}
	return nil
}
