package crops

import (
	"fmt"
	"image"
	"path/filepath"
	"sort"
	"strings"

	"github.com/inkstone/handwriting-pipeline/internal/catalog"
	"github.com/inkstone/handwriting-pipeline/internal/charmap"
	"github.com/inkstone/handwriting-pipeline/internal/imageutil"
)

// FormProperties are the per-form statistics persisted alongside paragraph
// crops, used later to validate configured model dimensions against the
// largest observed example.
type FormProperties struct {
	// CropShape is {height, width} of the saved paragraph crop.
	CropShape [2]int `json:"crop_shape"`
	// LabelLength is the paragraph label's character count.
	LabelLength int `json:"label_length"`
	// NumLines is the paragraph's line count.
	NumLines int `json:"num_lines"`
}

// Properties maps form ID to its paragraph statistics.
type Properties map[string]FormProperties

// MaterializeParagraphs crops every form's paragraph region for all given
// splits, persists crops keyed by form ID plus ID-keyed label maps, and
// finally writes the global properties file, which doubles as the cache
// marker: if it exists the whole materialization is skipped.
func (s *Store) MaterializeParagraphs(cat *catalog.Catalog, splits []string) error {
	if exists(s.propertiesPath()) {
		s.logger.Info("paragraph crops already materialized", "dir", s.dir)
		return nil
	}

	properties := make(Properties)
	for _, split := range splits {
		ids, err := cat.IDsBySplit(split)
		if err != nil {
			return err
		}

		labels := make(map[string]string, len(ids))
		for _, id := range ids {
			region, ok := cat.ParagraphRegionByID[id]
			if !ok {
				// Forms without annotated lines have no paragraph.
				continue
			}
			img, err := cat.LoadImage(id)
			if err != nil {
				return err
			}
			crop, err := imageutil.CropRegion(img, region)
			if err != nil {
				return fmt.Errorf("form %s: %w", id, err)
			}
			crop, err = imageutil.ResizeByScale(crop, s.scaleFactor)
			if err != nil {
				return err
			}
			cat.EvictImage(id)

			label := cat.ParagraphStringByID[id]
			labels[id] = label

			if err := s.saveParagraphCrop(split, id, crop); err != nil {
				return err
			}
			properties[id] = FormProperties{
				CropShape:   [2]int{crop.Bounds().Dy(), crop.Bounds().Dx()},
				LabelLength: len([]rune(label)),
				NumLines:    strings.Count(label, charmap.NewLineToken) + 1,
			}
		}
		if err := writeJSON(s.labelsPath(split), labels); err != nil {
			return err
		}
		s.logger.Info("materialized paragraph crops", "split", split, "count", len(labels))
	}

	return writeJSON(s.propertiesPath(), properties)
}

func (s *Store) saveParagraphCrop(split, id string, crop *image.Gray) error {
	dir := s.splitDir(split)
	if err := ensureDir(dir); err != nil {
		return err
	}
	return imageutil.WritePNG(filepath.Join(dir, id+".png"), crop)
}

// LoadParagraphs loads a split's paragraph crops and labels, ordered by
// form ID, with count parity enforced.
func (s *Store) LoadParagraphs(split string) ([]*image.Gray, []string, error) {
	labelsByID := make(map[string]string)
	if err := readJSON(s.labelsPath(split), &labelsByID); err != nil {
		return nil, nil, err
	}

	ids := make([]string, 0, len(labelsByID))
	for id := range labelsByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	crops := make([]*image.Gray, 0, len(ids))
	labels := make([]string, 0, len(ids))
	for _, id := range ids {
		crop, err := imageutil.LoadGray(filepath.Join(s.splitDir(split), id+".png"))
		if err != nil {
			return nil, nil, err
		}
		crops = append(crops, crop)
		labels = append(labels, labelsByID[id])
	}
	if len(crops) != len(labels) {
		return nil, nil, fmt.Errorf("split %s: crop count %d != label count %d", split, len(crops), len(labels))
	}
	return crops, labels, nil
}

// LoadProperties reads the persisted per-form paragraph statistics.
func (s *Store) LoadProperties() (Properties, error) {
	props := make(Properties)
	if err := readJSON(s.propertiesPath(), &props); err != nil {
		return nil, err
	}
	return props, nil
}

// MaxCropShape returns the maximum observed crop height and width.
func (p Properties) MaxCropShape() (height, width int) {
	for _, fp := range p {
		height = max(height, fp.CropShape[0])
		width = max(width, fp.CropShape[1])
	}
	return height, width
}

// MaxLabelLength returns the longest observed paragraph label.
func (p Properties) MaxLabelLength() int {
	longest := 0
	for _, fp := range p {
		longest = max(longest, fp.LabelLength)
	}
	return longest
}
