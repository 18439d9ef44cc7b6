package catalog_test

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/inkstone/handwriting-pipeline/internal/catalog"
)

func buildArchive(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range map[string]string{
		"xml/a01-000.xml":   `<form id="a01-000"><handwritten-part/></form>`,
		"task/testset.txt":  "a01-000-00\n",
		"forms/placeholder": "",
	} {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s: %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}
	return buf.Bytes()
}

func writeMetadata(t *testing.T, cfg catalog.Config, url, sum string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(cfg.MetadataPath()), 0o755); err != nil {
		t.Fatalf("failed to create metadata dir: %v", err)
	}
	content := fmt.Sprintf("url: %s\nfilename: iamdb.zip\nsha256: %s\n", url, sum)
	if err := os.WriteFile(cfg.MetadataPath(), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write metadata: %v", err)
	}
}

func TestDownload(t *testing.T) {
	archive := buildArchive(t)
	sum := sha256.Sum256(archive)

	requests := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Write(archive)
	}))
	defer srv.Close()

	cfg := catalog.Config{DataDir: t.TempDir()}
	writeMetadata(t, cfg, srv.URL, hex.EncodeToString(sum[:]))

	if err := catalog.Download(context.Background(), cfg); err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if requests != 1 {
		t.Errorf("requests: got %d, want 1", requests)
	}
	if _, err := os.Stat(filepath.Join(cfg.ExtractedDir(), "xml", "a01-000.xml")); err != nil {
		t.Errorf("extracted annotation missing: %v", err)
	}

	// Second run must be a no-op: the extracted dir is populated.
	if err := catalog.Download(context.Background(), cfg); err != nil {
		t.Fatalf("second Download failed: %v", err)
	}
	if requests != 1 {
		t.Errorf("requests after idempotent rerun: got %d, want 1", requests)
	}
}

func TestDownload_ChecksumMismatch(t *testing.T) {
	archive := buildArchive(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive)
	}))
	defer srv.Close()

	cfg := catalog.Config{DataDir: t.TempDir()}
	writeMetadata(t, cfg, srv.URL, "deadbeef")

	if err := catalog.Download(context.Background(), cfg); err == nil {
		t.Fatal("Download should fail on checksum mismatch")
	}
	if _, err := os.Stat(filepath.Join(cfg.ExtractedDir(), "xml")); err == nil {
		t.Error("nothing should be extracted after a checksum mismatch")
	}
}

func TestReadMetadata_Incomplete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.yaml")
	if err := os.WriteFile(path, []byte("url: http://example.com/x.zip\n"), 0o644); err != nil {
		t.Fatalf("failed to write metadata: %v", err)
	}
	if _, err := catalog.ReadMetadata(path); err == nil {
		t.Error("ReadMetadata should reject metadata without filename/sha256")
	}
}
