// Package catalogtest builds a miniature extracted IAM dataset on disk for
// tests of the catalog and the packages downstream of it.
package catalogtest

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/inkstone/handwriting-pipeline/internal/catalog"
	"github.com/inkstone/handwriting-pipeline/internal/imageutil"
)

// Form fixture IDs by split: a01-000 and a01-003 are train, b04-010 is
// test, c02-026 is val.
var (
	TrainIDs = []string{"a01-000", "a01-003"}
	ValIDs   = []string{"c02-026"}
	TestIDs  = []string{"b04-010"}
)

const formXML = `<?xml version="1.0" encoding="ISO-8859-1"?>
<form id="%s">
  <handwritten-part>
    <line id="%[1]s-00" text="first line of %[1]s">
      <word id="%[1]s-00-00" text="first">
        <cmp x="40" y="60" width="80" height="40"/>
        <cmp x="130" y="64" width="60" height="36"/>
      </word>
    </line>
    <line id="%[1]s-01" text="second &amp;quot;line&amp;quot;">
      <word id="%[1]s-01-00" text="second">
        <cmp x="44" y="160" width="90" height="44"/>
      </word>
    </line>
  </handwritten-part>
</form>`

// Build writes the fixture dataset under a temp dir and returns a catalog
// config pointing at it.
func Build(t *testing.T) catalog.Config {
	t.Helper()

	cfg := catalog.Config{
		DataDir:          t.TempDir(),
		DownsampleFactor: 2,
		Padding:          8,
		Logger:           slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})),
	}

	root := cfg.ExtractedDir()
	for _, dir := range []string{"xml", "forms", "task"} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			t.Fatalf("failed to create fixture dir: %v", err)
		}
	}

	ids := append(append(append([]string{}, TrainIDs...), ValIDs...), TestIDs...)
	for _, id := range ids {
		xmlPath := filepath.Join(root, "xml", id+".xml")
		if err := os.WriteFile(xmlPath, []byte(fmt.Sprintf(formXML, id)), 0o644); err != nil {
			t.Fatalf("failed to write fixture xml: %v", err)
		}
		if err := imageutil.WritePNG(filepath.Join(root, "forms", id+".png"), formImage()); err != nil {
			t.Fatalf("failed to write fixture form image: %v", err)
		}
	}

	writeSplit := func(name string, ids []string) {
		var content string
		for _, id := range ids {
			// Split files list line IDs, not form IDs.
			content += id + "-00\n" + id + "-01\n"
		}
		if err := os.WriteFile(filepath.Join(root, "task", name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write split file: %v", err)
		}
	}
	writeSplit("testset.txt", TestIDs)
	writeSplit("validationset1.txt", ValIDs)
	writeSplit("validationset2.txt", nil)

	return cfg
}

// AddEmptyForm writes an extra form whose annotation carries no lines.
// The real dataset has a handful of these; unlisted in the task files,
// they land in the train split with nothing to crop.
func AddEmptyForm(t *testing.T, cfg catalog.Config, id string) {
	t.Helper()

	root := cfg.ExtractedDir()
	xml := fmt.Sprintf(`<?xml version="1.0" encoding="ISO-8859-1"?>
<form id="%s">
  <handwritten-part/>
</form>`, id)
	if err := os.WriteFile(filepath.Join(root, "xml", id+".xml"), []byte(xml), 0o644); err != nil {
		t.Fatalf("failed to write empty-form xml: %v", err)
	}
	if err := imageutil.WritePNG(filepath.Join(root, "forms", id+".png"), formImage()); err != nil {
		t.Fatalf("failed to write empty-form image: %v", err)
	}
}

// formImage renders a light background with a dark band where the fixture
// annotations place their strokes.
func formImage() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, 160, 140))
	for i := range img.Pix {
		img.Pix[i] = 240
	}
	for y := 30; y < 110; y++ {
		for x := 15; x < 100; x++ {
			img.SetGray(x, y, color.Gray{Y: 30})
		}
	}
	return img
}
