package geometry

import "testing"

func TestWordOrLineRegion(t *testing.T) {
	atoms := []Atom{
		{X: 10, Y: 20, Width: 5, Height: 8},
		{X: 30, Y: 22, Width: 6, Height: 9},
	}

	r, ok := WordOrLineRegion(atoms, 2)
	if !ok {
		t.Fatal("WordOrLineRegion returned ok=false for non-empty atoms")
	}

	want := Region{X1: 5, Y1: 10, X2: 18, Y2: 15}
	if r != want {
		t.Errorf("region: got %v, want %v", r, want)
	}
}

func TestWordOrLineRegion_Empty(t *testing.T) {
	if _, ok := WordOrLineRegion(nil, 2); ok {
		t.Error("WordOrLineRegion should return ok=false for empty input")
	}
}

func TestWordOrLineRegion_FloorDivision(t *testing.T) {
	// 7/2 and 9/2 must floor, not round.
	atoms := []Atom{{X: 7, Y: 9, Width: 4, Height: 2}}
	r, _ := WordOrLineRegion(atoms, 2)
	want := Region{X1: 3, Y1: 4, X2: 5, Y2: 5}
	if r != want {
		t.Errorf("region: got %v, want %v", r, want)
	}
}

func TestLineRegions_FullPaddingWhenGapsLarge(t *testing.T) {
	// Two lines 100px apart vertically: both get the full padding on
	// every side.
	lines := [][]Atom{
		{{X: 100, Y: 100, Width: 50, Height: 20}},
		{{X: 100, Y: 300, Width: 50, Height: 20}},
	}

	regions, err := LineRegions(lines, 1, 8)
	if err != nil {
		t.Fatalf("LineRegions failed: %v", err)
	}

	want := []Region{
		{X1: 92, Y1: 92, X2: 158, Y2: 128},
		{X1: 92, Y1: 292, X2: 158, Y2: 328},
	}
	for i := range want {
		if regions[i] != want[i] {
			t.Errorf("line %d: got %v, want %v", i, regions[i], want[i])
		}
	}
}

func TestLineRegions_GapAwarePadding(t *testing.T) {
	// Lines separated by only 6px: vertical padding between them shrinks
	// to gap/2 = 3 so the padded boxes cannot overlap.
	lines := [][]Atom{
		{{X: 0, Y: 10, Width: 40, Height: 20}}, // y2 = 30
		{{X: 0, Y: 36, Width: 40, Height: 20}}, // y1 = 36, gap = 6
	}

	regions, err := LineRegions(lines, 1, 8)
	if err != nil {
		t.Fatalf("LineRegions failed: %v", err)
	}

	if regions[0].Y2 != 33 {
		t.Errorf("first line padded y2: got %d, want 33", regions[0].Y2)
	}
	if regions[1].Y1 != 33 {
		t.Errorf("second line padded y1: got %d, want 33", regions[1].Y1)
	}
	if regions[0].Y2 > 36 {
		t.Errorf("padded y2 %d overlaps next line's unpadded y1 36", regions[0].Y2)
	}

	// Horizontal padding stays unconditional.
	if regions[0].X1 != -8 || regions[0].X2 != 48 {
		t.Errorf("horizontal padding: got x1=%d x2=%d, want -8/48", regions[0].X1, regions[0].X2)
	}
}

func TestLineRegions_OverlappingLines(t *testing.T) {
	// Descenders of line 0 reach below the ascenders of line 1: the gap is
	// negative, so it clamps to zero and no vertical padding is added
	// between them.
	lines := [][]Atom{
		{{X: 0, Y: 0, Width: 40, Height: 30}},  // y2 = 30
		{{X: 0, Y: 25, Width: 40, Height: 30}}, // y1 = 25
	}

	regions, err := LineRegions(lines, 1, 8)
	if err != nil {
		t.Fatalf("LineRegions failed: %v", err)
	}

	if regions[0].Y2 != 30 {
		t.Errorf("first line padded y2: got %d, want 30 (no padding into overlap)", regions[0].Y2)
	}
	if regions[1].Y1 != 25 {
		t.Errorf("second line padded y1: got %d, want 25 (no padding into overlap)", regions[1].Y1)
	}
}

func TestLineRegions_EmptyLine(t *testing.T) {
	lines := [][]Atom{
		{{X: 0, Y: 0, Width: 10, Height: 10}},
		{},
	}
	if _, err := LineRegions(lines, 1, 8); err == nil {
		t.Error("LineRegions should fail when a line has no atoms")
	}
}

func TestLineRegions_Ordering(t *testing.T) {
	lines := [][]Atom{
		{{X: 0, Y: 100, Width: 10, Height: 10}},
		{{X: 0, Y: 200, Width: 10, Height: 10}},
		{{X: 0, Y: 300, Width: 10, Height: 10}},
	}
	regions, err := LineRegions(lines, 1, 8)
	if err != nil {
		t.Fatalf("LineRegions failed: %v", err)
	}
	for i := range regions {
		if !regions[i].Valid() {
			t.Errorf("line %d region %v is invalid", i, regions[i])
		}
		if i > 0 && regions[i].Y1 < regions[i-1].Y2 {
			t.Errorf("line %d region %v overlaps previous %v", i, regions[i], regions[i-1])
		}
	}
}

func TestParagraphRegion(t *testing.T) {
	lines := []Region{
		{X1: 10, Y1: 10, X2: 100, Y2: 40},
		{X1: 5, Y1: 50, X2: 90, Y2: 80},
		{X1: 20, Y1: 90, X2: 120, Y2: 110},
	}

	para, ok := ParagraphRegion(lines)
	if !ok {
		t.Fatal("ParagraphRegion returned ok=false for non-empty input")
	}

	want := Region{X1: 5, Y1: 10, X2: 120, Y2: 110}
	if para != want {
		t.Errorf("paragraph region: got %v, want %v", para, want)
	}
	for i, r := range lines {
		if !para.Contains(r) {
			t.Errorf("paragraph %v does not contain line %d region %v", para, i, r)
		}
	}
}

func TestParagraphRegion_Empty(t *testing.T) {
	if _, ok := ParagraphRegion(nil); ok {
		t.Error("ParagraphRegion should return ok=false for empty input")
	}
}
