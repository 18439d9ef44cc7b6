// Package annotation parses IAM ground-truth XML files.
//
// Each form in the IAM handwriting database ships with one XML file holding
// a handwritten-part element whose line children appear in reading order
// (top to bottom). Every line carries a text attribute with its
// transcription plus word children, each built from cmp components carrying
// raw pixel coordinates. This package extracts exactly what the dataset
// pipeline needs: ordered line transcriptions and the flattened coordinate
// atoms per line.
package annotation

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/inkstone/handwriting-pipeline/internal/geometry"
)

// Form is the parsed annotation of one scanned page.
type Form struct {
	ID    string
	Lines []Line
}

// Line is one handwritten line: its transcription and the coordinate atoms
// of its word components, in document order.
type Line struct {
	Text  string
	Atoms []geometry.Atom
}

type xmlForm struct {
	ID              string `xml:"id,attr"`
	HandwrittenPart struct {
		Lines []xmlLine `xml:"line"`
	} `xml:"handwritten-part"`
}

type xmlLine struct {
	Text  *string   `xml:"text,attr"`
	Words []xmlWord `xml:"word"`
}

type xmlWord struct {
	Components []xmlComponent `xml:"cmp"`
}

type xmlComponent struct {
	X      *int `xml:"x,attr"`
	Y      *int `xml:"y,attr"`
	Width  *int `xml:"width,attr"`
	Height *int `xml:"height,attr"`
}

// ParseFormFile parses one form annotation file.
//
// Any structural problem (malformed XML, missing text or coordinate
// attributes) is an error: annotations are build-time inputs and a broken
// file means a broken dataset, not a condition to recover from.
func ParseFormFile(path string) (*Form, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read annotation file: %w", err)
	}
	form, err := parseForm(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return form, nil
}

func parseForm(data []byte) (*Form, error) {
	// IAM annotation files declare encoding="ISO-8859-1".
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.CharsetReader = charset.NewReaderLabel

	var doc xmlForm
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("malformed annotation XML: %w", err)
	}

	form := &Form{ID: doc.ID}
	for i, xl := range doc.HandwrittenPart.Lines {
		if xl.Text == nil {
			return nil, fmt.Errorf("line %d is missing its text attribute", i)
		}
		line := Line{Text: unescapeText(*xl.Text)}
		for _, w := range xl.Words {
			for _, c := range w.Components {
				if c.X == nil || c.Y == nil || c.Width == nil || c.Height == nil {
					return nil, fmt.Errorf("line %d has a component with missing coordinates", i)
				}
				line.Atoms = append(line.Atoms, geometry.Atom{
					X:      *c.X,
					Y:      *c.Y,
					Width:  *c.Width,
					Height: *c.Height,
				})
			}
		}
		form.Lines = append(form.Lines, line)
	}
	return form, nil
}

// unescapeText undoes the double escaping of quotes in IAM transcriptions.
// The XML decoder already turns &amp;quot; into the literal sequence
// &quot;, which the dataset means as a plain double quote.
func unescapeText(s string) string {
	return strings.ReplaceAll(s, "&quot;", `"`)
}

// LineStrings returns the transcriptions of the form's lines in reading
// order.
func (f *Form) LineStrings() []string {
	out := make([]string, len(f.Lines))
	for i, l := range f.Lines {
		out[i] = l.Text
	}
	return out
}

// LineAtoms returns the flattened coordinate atoms per line, in the same
// order as LineStrings.
func (f *Form) LineAtoms() [][]geometry.Atom {
	out := make([][]geometry.Atom, len(f.Lines))
	for i, l := range f.Lines {
		out[i] = l.Atoms
	}
	return out
}
