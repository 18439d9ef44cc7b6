package geometry

import "fmt"

// Region is an axis-aligned pixel bounding box in downsampled image space.
//
// Coordinates follow crop semantics: the box covers columns [X1, X2) and
// rows [Y1, Y2). A valid region satisfies X1 <= X2 and Y1 <= Y2.
type Region struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// Width returns the horizontal extent of the region in pixels.
func (r Region) Width() int { return r.X2 - r.X1 }

// Height returns the vertical extent of the region in pixels.
func (r Region) Height() int { return r.Y2 - r.Y1 }

// Valid reports whether the region's corners are correctly ordered.
func (r Region) Valid() bool { return r.X1 <= r.X2 && r.Y1 <= r.Y2 }

// Contains reports whether region o lies entirely inside r.
func (r Region) Contains(o Region) bool {
	return r.X1 <= o.X1 && r.Y1 <= o.Y1 && r.X2 >= o.X2 && r.Y2 >= o.Y2
}

func (r Region) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}

// Atom is one raw coordinate element from a form annotation: a single
// word/character component with its position and size in original
// (non-downsampled) pixel units.
type Atom struct {
	X      int
	Y      int
	Width  int
	Height int
}

// WordOrLineRegion computes the tight bounding box of a set of coordinate
// atoms, downsampled by integer (floor) division.
//
// Returns ok=false when atoms is empty; callers must not use the region in
// that case.
func WordOrLineRegion(atoms []Atom, downsampleFactor int) (Region, bool) {
	if len(atoms) == 0 {
		return Region{}, false
	}
	r := Region{
		X1: atoms[0].X,
		Y1: atoms[0].Y,
		X2: atoms[0].X + atoms[0].Width,
		Y2: atoms[0].Y + atoms[0].Height,
	}
	for _, a := range atoms[1:] {
		r.X1 = min(r.X1, a.X)
		r.Y1 = min(r.Y1, a.Y)
		r.X2 = max(r.X2, a.X+a.Width)
		r.Y2 = max(r.Y2, a.Y+a.Height)
	}
	r.X1 /= downsampleFactor
	r.Y1 /= downsampleFactor
	r.X2 /= downsampleFactor
	r.Y2 /= downsampleFactor
	return r, true
}

// LineRegions converts per-line coordinate atoms into padded crop regions.
//
// Each line first gets its tight downsampled box via WordOrLineRegion.
// Horizontal padding is applied unconditionally on both sides. Vertical
// padding is gap-aware: a line is padded above by min(padding, gapAbove/2)
// and below by min(padding, gapBelow/2), where the gap is the vertical
// distance to the neighboring line's unpadded box (clamped at zero, since
// ascenders and descenders of adjacent lines can overlap). The first line's
// upper gap and the last line's lower gap are taken as 2*padding so boundary
// lines receive full padding.
//
// This keeps crop regions of adjacent lines from overlapping while still
// including visual context around the strokes.
func LineRegions(lineAtoms [][]Atom, downsampleFactor, padding int) ([]Region, error) {
	unpadded := make([]Region, 0, len(lineAtoms))
	for i, atoms := range lineAtoms {
		r, ok := WordOrLineRegion(atoms, downsampleFactor)
		if !ok {
			return nil, fmt.Errorf("line %d has no coordinate atoms", i)
		}
		unpadded = append(unpadded, r)
	}

	// gaps[i] is the vertical gap between line i and line i+1; the outer
	// entries give boundary lines room for full padding.
	gaps := make([]int, len(unpadded)+1)
	gaps[0] = 2 * padding
	gaps[len(unpadded)] = 2 * padding
	for i := 0; i+1 < len(unpadded); i++ {
		gaps[i+1] = max(0, unpadded[i+1].Y1-unpadded[i].Y2)
	}

	padded := make([]Region, len(unpadded))
	for i, r := range unpadded {
		padded[i] = Region{
			X1: r.X1 - padding,
			Y1: r.Y1 - min(padding, gaps[i]/2),
			X2: r.X2 + padding,
			Y2: r.Y2 + min(padding, gaps[i+1]/2),
		}
	}
	return padded, nil
}

// ParagraphRegion returns the bounding union of the given line regions.
//
// Returns ok=false when regions is empty; a form with zero lines has no
// paragraph region.
func ParagraphRegion(regions []Region) (Region, bool) {
	if len(regions) == 0 {
		return Region{}, false
	}
	u := regions[0]
	for _, r := range regions[1:] {
		u.X1 = min(u.X1, r.X1)
		u.Y1 = min(u.Y1, r.Y1)
		u.X2 = max(u.X2, r.X2)
		u.Y2 = max(u.Y2, r.Y2)
	}
	return u, true
}
