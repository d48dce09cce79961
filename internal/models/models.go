// Package models implements model provisioning: downloading, checksumming,
// and caching the VAD and wake-word ONNX artifacts the Wake Engine and VAD
// Detector need before they can run, via a download/verify/atomic-rename
// sequence.
package models

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/corevox/noia/internal/coreerr"
)

// ModelManifest describes one downloadable artifact: the VAD model, a single
// wake-word model, or the ONNX Runtime shared library itself.
type ModelManifest struct {
	Name   string
	URL    string
	Size   int64
	SHA256 string
}

// DownloadProgress is emitted during EnsureModels for operator-facing
// progress reporting (provision-models prints these to stdout).
type DownloadProgress struct {
	Model      string
	Downloaded int64
	Total      int64
	Done       bool
	Error      string
}

// ModelsDir resolves the models directory: $XDG_DATA_HOME/noiacore/models if
// set, otherwise ~/.config/noiacore/models. The directory is created if
// absent.
func ModelsDir() (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", coreerr.Configuration("models.ModelsDir", err)
		}
		base = filepath.Join(home, ".config")
	}
	dir := filepath.Join(base, "noiacore", "models")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", coreerr.Configuration("models.ModelsDir", err)
	}
	return dir, nil
}

// EnsureModels downloads every manifest missing from dir, or whose on-disk
// file fails the size/checksum check, re-downloading rather than accepting a
// corrupt file. Downloads land in a .tmp sibling, are hashed while
// streaming, and are os.Rename'd into place only after the checksum (when
// given) matches.
func EnsureModels(ctx context.Context, dir string, manifests []ModelManifest, progress func(DownloadProgress)) error {
	for _, m := range manifests {
		path := filepath.Join(dir, m.Name)
		if present(path, m) {
			report(progress, DownloadProgress{Model: m.Name, Downloaded: m.Size, Total: m.Size, Done: true})
			continue
		}
		if err := download(ctx, m, dir, progress); err != nil {
			report(progress, DownloadProgress{Model: m.Name, Error: err.Error()})
			return coreerr.Configuration("models.EnsureModels", fmt.Errorf("%s: %w", m.Name, err))
		}
	}
	return nil
}

// present reports whether path already holds a verified copy of m: size
// must match when known, and checksum must match when the manifest carries
// one. A file that merely exists with the wrong size is treated as absent
// so EnsureModels re-downloads it rather than trusting it.
func present(path string, m ModelManifest) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if m.Size > 0 && info.Size() != m.Size {
		return false
	}
	if m.SHA256 == "" {
		return info.Size() > 0
	}
	sum, err := hashFile(path)
	if err != nil {
		return false
	}
	return sum == m.SHA256
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func download(ctx context.Context, m ModelManifest, dir string, progress func(DownloadProgress)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d from %s", resp.StatusCode, m.URL)
	}

	total := m.Size
	if resp.ContentLength > 0 {
		total = resp.ContentLength
	}

	tmpPath := filepath.Join(dir, m.Name+".tmp")
	f, err := os.Create(tmpPath)
	if err != nil {
		return err
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	hasher := sha256.New()
	writer := io.MultiWriter(f, hasher)

	var downloaded int64
	buf := make([]byte, 64*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, err := writer.Write(buf[:n]); err != nil {
				return err
			}
			downloaded += int64(n)
			report(progress, DownloadProgress{Model: m.Name, Downloaded: downloaded, Total: total})
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return readErr
		}
	}

	if err := f.Close(); err != nil {
		return err
	}

	if m.SHA256 != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if got != m.SHA256 {
			return fmt.Errorf("checksum mismatch: expected %s, got %s", m.SHA256, got)
		}
	}

	finalPath := filepath.Join(dir, m.Name)
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return err
	}
	report(progress, DownloadProgress{Model: m.Name, Downloaded: total, Total: total, Done: true})
	return nil
}

func report(progress func(DownloadProgress), p DownloadProgress) {
	if progress != nil {
		progress(p)
	}
}
