// Package catalog builds the canonical index of the IAM handwriting
// database: the form-ID universe, the writer-independent train/val/test
// partition, and the per-form derived data (line transcriptions, line crop
// regions, paragraph labels and regions) that the materializers consume.
//
// Everything is computed eagerly by Open and immutable afterwards; the
// catalog's lifetime is the dataset's lifetime.
package catalog

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/inkstone/handwriting-pipeline/internal/annotation"
	"github.com/inkstone/handwriting-pipeline/internal/geometry"
	"github.com/inkstone/handwriting-pipeline/internal/imageutil"
)

// Dataset splits. The partition is writer-independent: every writer's forms
// land in exactly one split.
const (
	SplitTrain = "train"
	SplitVal   = "val"
	SplitTest  = "test"
)

// Splits lists all split names in materialization order.
var Splits = []string{SplitTrain, SplitVal, SplitTest}

// Config configures the catalog.
type Config struct {
	// DataDir is the root data directory (default "data"). The raw
	// archive metadata lives at <DataDir>/raw/iam/metadata.yaml, the
	// downloaded archive under <DataDir>/downloaded/iam/, and the
	// extracted dataset under <DataDir>/downloaded/iam/iamdb/.
	DataDir string `yaml:"data_dir"`

	// DownsampleFactor relates raw annotation coordinates to the form
	// images the pipeline works on (default 2).
	DownsampleFactor int `yaml:"downsample_factor"`

	// Padding is the margin in downsampled pixels added around each
	// line's tight bounding box (default 8).
	Padding int `yaml:"padding"`

	// Logger for progress messages.
	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.DownsampleFactor <= 0 {
		c.DownsampleFactor = 2
	}
	if c.Padding <= 0 {
		c.Padding = 8
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ExtractedDir returns the directory holding the extracted dataset.
func (c Config) ExtractedDir() string {
	return filepath.Join(c.DataDir, "downloaded", "iam", "iamdb")
}

// MetadataPath returns the path of the archive metadata file.
func (c Config) MetadataPath() string {
	return filepath.Join(c.DataDir, "raw", "iam", "metadata.yaml")
}

// Catalog is the fully built IAM index.
type Catalog struct {
	cfg Config

	// AllIDs is the sorted universe of form IDs, derived from the
	// extracted annotation files.
	AllIDs []string

	// TestIDs, ValidationIDs and TrainIDs partition AllIDs. Test and
	// validation come from the shipped task split files; train is the
	// complement.
	TestIDs       []string
	ValidationIDs []string
	TrainIDs      []string

	// SplitByID maps every form ID to its split name.
	SplitByID map[string]string

	// LineStringsByID and LineRegionsByID hold, per form, the ordered
	// line transcriptions and their padded crop regions. For every form
	// the two slices have equal length.
	LineStringsByID map[string][]string
	LineRegionsByID map[string][]geometry.Region

	// ParagraphStringByID joins a form's line strings with the newline
	// token; ParagraphRegionByID is the bounding union of its line
	// regions. Forms with zero lines appear in neither.
	ParagraphStringByID map[string]string
	ParagraphRegionByID map[string]geometry.Region

	formPathByID map[string]string
	cache        *imageutil.Cache
}

// Open builds the catalog from an already extracted dataset directory.
// Use Download first for the one-time fetch and extraction.
func Open(cfg Config) (*Catalog, error) {
	cfg.defaults()

	xmlDir := filepath.Join(cfg.ExtractedDir(), "xml")
	xmlPaths, err := filepath.Glob(filepath.Join(xmlDir, "*.xml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list annotation files: %w", err)
	}
	if len(xmlPaths) == 0 {
		return nil, fmt.Errorf("no annotation files under %s: dataset not extracted", xmlDir)
	}
	sort.Strings(xmlPaths)

	c := &Catalog{
		cfg:                 cfg,
		SplitByID:           make(map[string]string),
		LineStringsByID:     make(map[string][]string),
		LineRegionsByID:     make(map[string][]geometry.Region),
		ParagraphStringByID: make(map[string]string),
		ParagraphRegionByID: make(map[string]geometry.Region),
		formPathByID:        make(map[string]string),
		cache:               imageutil.NewCache(),
	}

	if err := c.indexFormImages(); err != nil {
		return nil, err
	}

	for _, path := range xmlPaths {
		id := stem(path)
		c.AllIDs = append(c.AllIDs, id)

		form, err := annotation.ParseFormFile(path)
		if err != nil {
			return nil, err
		}
		if len(form.Lines) == 0 {
			// A form without lines has no crops or labels to derive;
			// keep it out of the line and paragraph tables entirely.
			cfg.Logger.Warn("form has no annotated lines, excluding", "form", id)
			continue
		}

		regions, err := geometry.LineRegions(form.LineAtoms(), cfg.DownsampleFactor, cfg.Padding)
		if err != nil {
			return nil, fmt.Errorf("form %s: %w", id, err)
		}
		strs := form.LineStrings()
		if len(strs) != len(regions) {
			return nil, fmt.Errorf("form %s: %d line strings but %d line regions", id, len(strs), len(regions))
		}

		c.LineStringsByID[id] = strs
		c.LineRegionsByID[id] = regions
		c.ParagraphStringByID[id] = strings.Join(strs, "\n")
		para, _ := geometry.ParagraphRegion(regions)
		c.ParagraphRegionByID[id] = para
	}

	if err := c.buildSplits(); err != nil {
		return nil, err
	}

	cfg.Logger.Info("catalog built",
		"forms", len(c.AllIDs),
		"train", len(c.TrainIDs),
		"val", len(c.ValidationIDs),
		"test", len(c.TestIDs))
	return c, nil
}

func (c *Catalog) indexFormImages() error {
	formsDir := filepath.Join(c.cfg.ExtractedDir(), "forms")
	entries, err := os.ReadDir(formsDir)
	if err != nil {
		return fmt.Errorf("failed to list form images: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".jpg", ".jpeg", ".png":
			c.formPathByID[stem(e.Name())] = filepath.Join(formsDir, e.Name())
		}
	}
	return nil
}

func (c *Catalog) buildSplits() error {
	taskDir := filepath.Join(c.cfg.ExtractedDir(), "task")

	testIDs, err := readSplitFile(filepath.Join(taskDir, "testset.txt"))
	if err != nil {
		return err
	}
	val1, err := readSplitFile(filepath.Join(taskDir, "validationset1.txt"))
	if err != nil {
		return err
	}
	val2, err := readSplitFile(filepath.Join(taskDir, "validationset2.txt"))
	if err != nil {
		return err
	}

	c.TestIDs = sortedSet(testIDs)
	c.ValidationIDs = sortedSet(append(val1, val2...))

	held := make(map[string]bool)
	for _, id := range c.TestIDs {
		held[id] = true
	}
	for _, id := range c.ValidationIDs {
		held[id] = true
	}
	for _, id := range c.AllIDs {
		if !held[id] {
			c.TrainIDs = append(c.TrainIDs, id)
		}
	}

	// Train first so that any conflicting manual edit to the split files
	// resolves in favor of val, then test. The splits are disjoint in the
	// shipped dataset, so normally nothing is overwritten.
	for _, id := range c.TrainIDs {
		c.SplitByID[id] = SplitTrain
	}
	for _, id := range c.ValidationIDs {
		c.SplitByID[id] = SplitVal
	}
	for _, id := range c.TestIDs {
		c.SplitByID[id] = SplitTest
	}
	return nil
}

// IDsBySplit returns the form IDs assigned to the given split.
func (c *Catalog) IDsBySplit(split string) ([]string, error) {
	switch split {
	case SplitTrain:
		return c.TrainIDs, nil
	case SplitVal:
		return c.ValidationIDs, nil
	case SplitTest:
		return c.TestIDs, nil
	}
	return nil, fmt.Errorf("unknown split %q", split)
}

// LoadImage loads a form's scan as grayscale with polarity inverted:
// the dataset ships dark ink on a light background, the training stems
// expect light ink on dark.
func (c *Catalog) LoadImage(id string) (*image.Gray, error) {
	path, ok := c.formPathByID[id]
	if !ok {
		return nil, fmt.Errorf("no form image for id %q", id)
	}
	img, err := c.cache.Load(path)
	if err != nil {
		return nil, err
	}
	return imageutil.Invert(img), nil
}

// EvictImage drops a form's scan from the in-memory cache once a
// materialization pass is done with it.
func (c *Catalog) EvictImage(id string) {
	if path, ok := c.formPathByID[id]; ok {
		c.cache.Evict(path)
	}
}

// readSplitFile reads a task split definition: one line ID per line, e.g.
// "a01-077-00". The owning form ID is the first two hyphen-delimited
// components.
func readSplitFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read split file: %w", err)
	}
	var ids []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.Split(line, "-")
		if len(parts) < 2 {
			return nil, fmt.Errorf("%s: malformed line ID %q", path, line)
		}
		ids = append(ids, parts[0]+"-"+parts[1])
	}
	return ids, nil
}

func sortedSet(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
