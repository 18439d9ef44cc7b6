// Package crops materializes and serves the on-disk crop store: line and
// paragraph image crops extracted from IAM forms, resized for the models,
// stored as grayscale PNGs with JSON label files.
//
// Layout, per dataset name under the processed root:
//
//	<root>/<name>/<split>/<key>.png    crop images (key: index for lines,
//	                                   form ID for paragraphs)
//	<root>/<name>/<split>/_labels.json labels (array for lines, ID map for
//	                                   paragraphs)
//	<root>/<name>/_properties.json     per-form paragraph statistics
//	<root>/<name>/_max_aspect_ratio.txt widest line crop aspect ratio
//
// A materialized dataset is an immutable cache: its presence marker skips
// regeneration entirely. There is no partial-completion detection; an
// interrupted run must be deleted by hand before retrying.
package crops

import (
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/inkstone/handwriting-pipeline/internal/catalog"
	"github.com/inkstone/handwriting-pipeline/internal/imageutil"
)

// Store is one dataset's crop cache on disk.
type Store struct {
	dir         string
	scaleFactor int
	logger      *slog.Logger
}

// NewStore creates a store handle for processedDir/name. scaleFactor is the
// additional integer downsampling applied to every crop before saving.
func NewStore(processedDir, name string, scaleFactor int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:         filepath.Join(processedDir, name),
		scaleFactor: scaleFactor,
		logger:      logger,
	}
}

// Dir returns the store's root directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) splitDir(split string) string { return filepath.Join(s.dir, split) }

func (s *Store) labelsPath(split string) string {
	return filepath.Join(s.splitDir(split), "_labels.json")
}

func (s *Store) propertiesPath() string { return filepath.Join(s.dir, "_properties.json") }

func (s *Store) aspectRatioPath() string { return filepath.Join(s.dir, "_max_aspect_ratio.txt") }

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ensureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	return nil
}

// MaterializeLines crops every line region of every form in the given
// splits, resizes the crops, and persists them with index-keyed filenames.
// It is a cached no-op when the widest-aspect marker file already exists.
func (s *Store) MaterializeLines(cat *catalog.Catalog, splits []string) error {
	if exists(s.aspectRatioPath()) {
		s.logger.Info("line crops already materialized", "dir", s.dir)
		return nil
	}

	maxAspect := 0.0
	for _, split := range splits {
		crops, labels, err := s.generateLineCrops(cat, split)
		if err != nil {
			return err
		}
		for _, crop := range crops {
			aspect := float64(crop.Bounds().Dx()) / float64(crop.Bounds().Dy())
			maxAspect = max(maxAspect, aspect)
		}
		if err := s.saveLineSplit(crops, labels, split); err != nil {
			return err
		}
		s.logger.Info("materialized line crops", "split", split, "count", len(crops))
	}

	content := strconv.FormatFloat(maxAspect, 'g', -1, 64)
	if err := os.WriteFile(s.aspectRatioPath(), []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write aspect ratio marker: %w", err)
	}
	return nil
}

func (s *Store) generateLineCrops(cat *catalog.Catalog, split string) ([]*image.Gray, []string, error) {
	ids, err := cat.IDsBySplit(split)
	if err != nil {
		return nil, nil, err
	}

	var crops []*image.Gray
	var labels []string
	for _, id := range ids {
		regions := cat.LineRegionsByID[id]
		if len(regions) == 0 {
			// Forms without annotated lines contribute nothing.
			continue
		}
		labels = append(labels, cat.LineStringsByID[id]...)

		img, err := cat.LoadImage(id)
		if err != nil {
			return nil, nil, err
		}
		for _, region := range regions {
			crop, err := imageutil.CropRegion(img, region)
			if err != nil {
				return nil, nil, fmt.Errorf("form %s: %w", id, err)
			}
			crop, err = imageutil.ResizeByScale(crop, s.scaleFactor)
			if err != nil {
				return nil, nil, err
			}
			crops = append(crops, crop)
		}
		cat.EvictImage(id)
	}

	if len(crops) != len(labels) {
		return nil, nil, fmt.Errorf("split %s: crop count %d != label count %d", split, len(crops), len(labels))
	}
	return crops, labels, nil
}

func (s *Store) saveLineSplit(crops []*image.Gray, labels []string, split string) error {
	if err := ensureDir(s.splitDir(split)); err != nil {
		return err
	}
	for i, crop := range crops {
		path := filepath.Join(s.splitDir(split), fmt.Sprintf("%d.png", i))
		if err := imageutil.WritePNG(path, crop); err != nil {
			return err
		}
	}
	return writeJSON(s.labelsPath(split), labels)
}

// LoadLineCrops loads a split's line crops in stable index order.
func (s *Store) LoadLineCrops(split string) ([]*image.Gray, error) {
	paths, err := filepath.Glob(filepath.Join(s.splitDir(split), "*.png"))
	if err != nil {
		return nil, fmt.Errorf("failed to list crops: %w", err)
	}

	// Filenames are numeric indices; sort numerically so load order does
	// not depend on filesystem listing order.
	indices := make([]int, 0, len(paths))
	for _, p := range paths {
		i, err := strconv.Atoi(strings.TrimSuffix(filepath.Base(p), ".png"))
		if err != nil {
			return nil, fmt.Errorf("unexpected crop filename %s: %w", p, err)
		}
		indices = append(indices, i)
	}
	sort.Ints(indices)

	crops := make([]*image.Gray, 0, len(indices))
	for _, i := range indices {
		crop, err := imageutil.LoadGray(filepath.Join(s.splitDir(split), fmt.Sprintf("%d.png", i)))
		if err != nil {
			return nil, err
		}
		crops = append(crops, crop)
	}
	return crops, nil
}

// LoadLineLabels loads a split's line labels in the same order as
// LoadLineCrops.
func (s *Store) LoadLineLabels(split string) ([]string, error) {
	var labels []string
	if err := readJSON(s.labelsPath(split), &labels); err != nil {
		return nil, err
	}
	return labels, nil
}

// LoadLines loads a split's crops and labels together, enforcing count
// parity.
func (s *Store) LoadLines(split string) ([]*image.Gray, []string, error) {
	crops, err := s.LoadLineCrops(split)
	if err != nil {
		return nil, nil, err
	}
	labels, err := s.LoadLineLabels(split)
	if err != nil {
		return nil, nil, err
	}
	if len(crops) != len(labels) {
		return nil, nil, fmt.Errorf("split %s: crop count %d != label count %d", split, len(crops), len(labels))
	}
	return crops, labels, nil
}

// MaxAspectRatio reads the persisted widest line crop aspect ratio.
func (s *Store) MaxAspectRatio() (float64, error) {
	data, err := os.ReadFile(s.aspectRatioPath())
	if err != nil {
		return 0, fmt.Errorf("failed to read aspect ratio marker: %w", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed aspect ratio marker: %w", err)
	}
	return v, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("malformed %s: %w", path, err)
	}
	return nil
}
