// Package archive handles the zip payloads carried over the bus and the tar
// build contexts handed to the Docker daemon. Extraction guards against
// path traversal and decompression blowups; validation enforces the
// template and submission tree requirements before any container work.
package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/schmitthub/forgeyard/internal/fault"
)

const (
	// maxExtractedBytes bounds the total extracted size of one archive.
	maxExtractedBytes = 256 << 20 // 256 MiB

	// maxEntries bounds the number of entries in one archive.
	maxEntries = 10000
)

// Extract unpacks a zip archive into dest. Entries escaping dest, oversized
// archives, and empty archives are rejected as BAD_INPUT.
func Extract(data []byte, dest string) error {
	if len(data) == 0 {
		return fault.New(fault.BadInput, "archive is empty")
	}

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return fault.Wrap(fault.BadInput, err, "archive is not a valid zip")
	}
	if len(reader.File) == 0 {
		return fault.New(fault.BadInput, "archive contains no entries")
	}
	if len(reader.File) > maxEntries {
		return fault.New(fault.BadInput, "archive contains too many entries (%d)", len(reader.File))
	}

	var written int64
	for _, f := range reader.File {
		target, err := safeJoin(dest, f.Name)
		if err != nil {
			return err
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("creating directory %s: %w", target, err)
			}
			continue
		}

		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return fmt.Errorf("creating parent of %s: %w", target, err)
		}

		n, err := extractFile(f, target, maxExtractedBytes-written)
		if err != nil {
			return err
		}
		written += n
	}

	return nil
}

func extractFile(f *zip.File, target string, budget int64) (int64, error) {
	if budget <= 0 {
		return 0, fault.New(fault.BadInput, "archive exceeds extraction size limit")
	}

	src, err := f.Open()
	if err != nil {
		return 0, fault.Wrap(fault.BadInput, err, "reading archive entry %q", f.Name)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0o600)
	if err != nil {
		return 0, fmt.Errorf("creating %s: %w", target, err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, io.LimitReader(src, budget+1))
	if err != nil {
		return n, fmt.Errorf("writing %s: %w", target, err)
	}
	if n > budget {
		return n, fault.New(fault.BadInput, "archive exceeds extraction size limit")
	}
	return n, nil
}

// safeJoin joins an archive entry name onto dest, rejecting traversal.
// Only a full ".." path segment counts; dotted filenames like foo..bar.sol
// are legitimate.
func safeJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fault.New(fault.BadInput, "archive entry %q escapes extraction root", name)
	}
	for _, seg := range strings.Split(name, "/") {
		if seg == ".." {
			return "", fault.New(fault.BadInput, "archive entry %q escapes extraction root", name)
		}
	}

	target := filepath.Join(dest, filepath.FromSlash(name))
	if !strings.HasPrefix(target, filepath.Clean(dest)+string(os.PathSeparator)) {
		return "", fault.New(fault.BadInput, "archive entry %q escapes extraction root", name)
	}
	return target, nil
}

// FindProjectRoot locates the single top-level directory of an extracted
// template tree. Templates must wrap their content in one project directory.
func FindProjectRoot(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("reading extraction root: %w", err)
	}

	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, e.Name())
		}
	}
	if len(dirs) != 1 {
		return "", fault.New(fault.BadInput, "template must contain exactly one top-level project directory, found %d", len(dirs))
	}
	return filepath.Join(dir, dirs[0]), nil
}

// ValidateTemplate enforces the template tree requirements: a test suite
// directory and a build manifest.
func ValidateTemplate(root string) error {
	required := []struct {
		path string
		dir  bool
	}{
		{"test", true},
		{"foundry.toml", false},
	}

	for _, r := range required {
		info, err := os.Stat(filepath.Join(root, r.path))
		if err != nil {
			return fault.New(fault.BadInput, "template is missing required path %q", r.path)
		}
		if info.IsDir() != r.dir {
			return fault.New(fault.BadInput, "template path %q has the wrong type", r.path)
		}
	}
	return nil
}

// ValidateSubmission enforces the submission tree requirements: a src
// directory with the user's source code. Submitted test trees are tolerated
// here; the sandbox entrypoint re-overlays the image's tests regardless.
func ValidateSubmission(root string) error {
	info, err := os.Stat(filepath.Join(root, "src"))
	if err != nil || !info.IsDir() {
		return fault.New(fault.BadInput, "submission is missing required directory %q", "src")
	}
	return nil
}
