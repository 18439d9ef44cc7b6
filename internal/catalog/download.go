package catalog

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Metadata describes the dataset archive: where to fetch it and how to
// verify it. It is read from <DataDir>/raw/iam/metadata.yaml, keeping the
// checksum with the data mirror rather than in code.
type Metadata struct {
	URL      string `yaml:"url"`
	Filename string `yaml:"filename"`
	SHA256   string `yaml:"sha256"`
}

// ReadMetadata loads and validates the archive metadata file.
func ReadMetadata(path string) (*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset metadata: %w", err)
	}
	var m Metadata
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("malformed dataset metadata %s: %w", path, err)
	}
	if m.URL == "" || m.Filename == "" || m.SHA256 == "" {
		return nil, fmt.Errorf("dataset metadata %s must set url, filename and sha256", path)
	}
	return &m, nil
}

// Download fetches and extracts the dataset archive, idempotently:
// a present archive file skips the download, a populated extracted
// directory skips the extraction. A checksum mismatch on the archive is
// fatal and leaves the bad file in place for inspection.
func Download(ctx context.Context, cfg Config) error {
	cfg.defaults()

	if populated(filepath.Join(cfg.ExtractedDir(), "xml")) {
		cfg.Logger.Info("dataset already extracted", "dir", cfg.ExtractedDir())
		return nil
	}

	meta, err := ReadMetadata(cfg.MetadataPath())
	if err != nil {
		return err
	}

	dlDir := filepath.Join(cfg.DataDir, "downloaded", "iam")
	if err := os.MkdirAll(dlDir, 0o755); err != nil {
		return fmt.Errorf("failed to create download dir: %w", err)
	}
	archivePath := filepath.Join(dlDir, meta.Filename)

	if _, err := os.Stat(archivePath); os.IsNotExist(err) {
		cfg.Logger.Info("downloading dataset archive", "url", meta.URL)
		if err := fetch(ctx, meta.URL, archivePath); err != nil {
			return err
		}
	} else {
		cfg.Logger.Info("dataset archive already downloaded", "path", archivePath)
	}

	sum, err := fileSHA256(archivePath)
	if err != nil {
		return err
	}
	if !strings.EqualFold(sum, meta.SHA256) {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", archivePath, sum, meta.SHA256)
	}

	cfg.Logger.Info("extracting dataset archive", "path", archivePath)
	return extractZip(archivePath, cfg.ExtractedDir())
}

func populated(dir string) bool {
	entries, err := os.ReadDir(dir)
	return err == nil && len(entries) > 0
}

func fetch(ctx context.Context, url, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed: %s returned %s", url, resp.Status)
	}

	tmp := dest + ".partial"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("download failed: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to finish archive file: %w", err)
	}
	return os.Rename(tmp, dest)
}

func fileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open archive for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to checksum archive: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	for _, f := range r.File {
		target, err := sanitizePath(destDir, f.Name)
		if err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", target, err)
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// sanitizePath guards against zip entries escaping the destination dir.
func sanitizePath(destDir, name string) (string, error) {
	target := filepath.Join(destDir, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(destDir)+string(os.PathSeparator)) {
		return "", fmt.Errorf("archive entry %q escapes extraction dir", name)
	}
	return target, nil
}
