package annotation

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inkstone/handwriting-pipeline/internal/geometry"
)

const sampleXML = `<?xml version="1.0" encoding="ISO-8859-1"?>
<form id="a01-000u" writer-id="000">
  <handwritten-part>
    <line id="a01-000u-00" text="He said &amp;quot;hi&amp;quot;">
      <word id="a01-000u-00-00" text="He">
        <cmp x="10" y="20" width="5" height="8"/>
        <cmp x="30" y="22" width="6" height="9"/>
      </word>
      <word id="a01-000u-00-01" text="said">
        <cmp x="50" y="21" width="12" height="10"/>
      </word>
    </line>
    <line id="a01-000u-01" text="second line">
      <word id="a01-000u-01-00" text="second">
        <cmp x="12" y="120" width="40" height="30"/>
      </word>
    </line>
  </handwritten-part>
</form>`

func writeSample(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "a01-000u.xml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}
	return path
}

func TestParseFormFile(t *testing.T) {
	form, err := ParseFormFile(writeSample(t, sampleXML))
	if err != nil {
		t.Fatalf("ParseFormFile failed: %v", err)
	}

	if form.ID != "a01-000u" {
		t.Errorf("form ID: got %q, want %q", form.ID, "a01-000u")
	}
	if len(form.Lines) != 2 {
		t.Fatalf("line count: got %d, want 2", len(form.Lines))
	}
}

func TestParseFormFile_TextUnescaping(t *testing.T) {
	form, err := ParseFormFile(writeSample(t, sampleXML))
	if err != nil {
		t.Fatalf("ParseFormFile failed: %v", err)
	}

	want := `He said "hi"`
	if got := form.Lines[0].Text; got != want {
		t.Errorf("line text: got %q, want %q", got, want)
	}
}

func TestParseFormFile_Latin1Encoding(t *testing.T) {
	// IAM files declare and use ISO-8859-1; 0xe9 is a Latin-1 e-acute.
	content := strings.Replace(sampleXML, `text="second line"`, "text=\"caf\xe9 line\"", 1)

	form, err := ParseFormFile(writeSample(t, content))
	if err != nil {
		t.Fatalf("ParseFormFile failed on ISO-8859-1 input: %v", err)
	}
	if got := form.Lines[1].Text; got != "café line" {
		t.Errorf("line text: got %q, want %q", got, "café line")
	}
}

func TestParseFormFile_AtomsFlattenedAcrossWords(t *testing.T) {
	form, err := ParseFormFile(writeSample(t, sampleXML))
	if err != nil {
		t.Fatalf("ParseFormFile failed: %v", err)
	}

	atoms := form.Lines[0].Atoms
	if len(atoms) != 3 {
		t.Fatalf("atom count: got %d, want 3", len(atoms))
	}
	want := geometry.Atom{X: 50, Y: 21, Width: 12, Height: 10}
	if atoms[2] != want {
		t.Errorf("third atom: got %+v, want %+v", atoms[2], want)
	}
}

func TestParseFormFile_LineOrderPreserved(t *testing.T) {
	form, err := ParseFormFile(writeSample(t, sampleXML))
	if err != nil {
		t.Fatalf("ParseFormFile failed: %v", err)
	}

	lineStrings := form.LineStrings()
	if lineStrings[1] != "second line" {
		t.Errorf("second line text: got %q, want %q", lineStrings[1], "second line")
	}

	atoms := form.LineAtoms()
	if len(atoms) != 2 || len(atoms[1]) != 1 {
		t.Fatalf("LineAtoms shape: got %d lines, want 2 with 1 atom in the second", len(atoms))
	}
}

func TestParseFormFile_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"truncated xml", sampleXML[:100]},
		{"missing text attribute", `<form id="x"><handwritten-part><line><word><cmp x="1" y="2" width="3" height="4"/></word></line></handwritten-part></form>`},
		{"missing coordinate", `<form id="x"><handwritten-part><line text="t"><word><cmp x="1" y="2" width="3"/></word></line></handwritten-part></form>`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseFormFile(writeSample(t, tt.content)); err == nil {
				t.Error("ParseFormFile should fail")
			}
		})
	}
}

func TestParseFormFile_NotFound(t *testing.T) {
	if _, err := ParseFormFile(filepath.Join(t.TempDir(), "missing.xml")); err == nil {
		t.Error("ParseFormFile should fail for a missing file")
	}
}
