package extract

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/joescharf/crev/internal/models"
)

var (
	// ErrInvalidArchive is returned when an archive upload is not a .zip file.
	ErrInvalidArchive = errors.New("invalid archive: please upload a .zip file")
	// ErrExtraction is returned when an archive cannot be safely decompressed.
	ErrExtraction = errors.New("archive extraction failed")
)

// DefaultMaxArchiveBytes caps the total decompressed size of one archive.
const DefaultMaxArchiveBytes int64 = 200 << 20

// Limits bounds archive extraction.
type Limits struct {
	MaxBytes int64
}

// Files turns directly uploaded blobs into candidates, one per blob, in upload order.
func Files(blobs []models.Blob) []models.UploadCandidate {
	out := make([]models.UploadCandidate, 0, len(blobs))
	for _, b := range blobs {
		name := path.Base(strings.ReplaceAll(b.Name, `\`, "/"))
		if name == "." || name == "/" {
			name = "unnamed"
		}
		out = append(out, models.UploadCandidate{
			DisplayName:  name,
			RelativePath: name,
			RawBytes:     b.Data,
		})
	}
	return out
}

// Workspace is a temporary directory holding one extracted archive.
type Workspace struct {
	Root string

	once sync.Once
	err  error
}

// NewWorkspace creates an empty workspace under the system temp directory.
func NewWorkspace() (*Workspace, error) {
	dir, err := os.MkdirTemp("", "crev-*")
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{Root: dir}, nil
}

// Close removes the workspace recursively. Safe to call more than once.
func (w *Workspace) Close() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.Root)
	})
	return w.err
}

// IsArchiveName reports whether name carries the .zip extension.
func IsArchiveName(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".zip")
}

// Archive validates and decompresses a zip upload into a new Workspace.
// On error no workspace is left behind.
func Archive(name string, data []byte, limits Limits) (*Workspace, error) {
	if !IsArchiveName(name) {
		return nil, ErrInvalidArchive
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}

	ws, err := NewWorkspace()
	if err != nil {
		return nil, err
	}

	if err := extractAll(zr, ws.Root, limits); err != nil {
		_ = ws.Close()
		return nil, err
	}
	return ws, nil
}

func extractAll(zr *zip.Reader, root string, limits Limits) error {
	maxBytes := limits.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxArchiveBytes
	}

	var written int64
	for _, f := range zr.File {
		dest, err := containedPath(root, f.Name)
		if err != nil {
			return err
		}

		mode := f.Mode()
		switch {
		case mode&os.ModeSymlink != 0:
			continue
		case f.FileInfo().IsDir():
			if err := os.MkdirAll(dest, 0o755); err != nil {
				return fmt.Errorf("%w: create %s: %v", ErrExtraction, f.Name, err)
			}
			continue
		}

		n, err := extractFile(f, dest, maxBytes-written, maxBytes)
		written += n
		if err != nil {
			return err
		}
	}
	return nil
}

// extractFile writes one entry, allowing at most remaining more bytes of the
// archive-wide limit.
func extractFile(f *zip.File, dest string, remaining, limit int64) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("%w: create %s: %v", ErrExtraction, filepath.Dir(f.Name), err)
	}

	rc, err := f.Open()
	if err != nil {
		return 0, fmt.Errorf("%w: open %s: %v", ErrExtraction, f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("%w: write %s: %v", ErrExtraction, f.Name, err)
	}
	defer func() { _ = out.Close() }()

	// Copy one byte past the budget so an oversized archive is detected
	// without trusting the header's declared size.
	n, err := io.Copy(out, io.LimitReader(rc, remaining+1))
	if err != nil {
		return n, fmt.Errorf("%w: decompress %s: %v", ErrExtraction, f.Name, err)
	}
	if n > remaining {
		return n, fmt.Errorf("%w: archive exceeds %d bytes uncompressed", ErrExtraction, limit)
	}
	return n, nil
}

// containedPath resolves an archive entry name under root, rejecting any name
// that would land outside it.
func containedPath(root, name string) (string, error) {
	clean := filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if filepath.IsAbs(clean) || filepath.VolumeName(clean) != "" || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: illegal absolute path %q", ErrExtraction, name)
	}

	dest := filepath.Join(root, clean)
	rel, err := filepath.Rel(root, dest)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: illegal path %q escapes workspace", ErrExtraction, name)
	}
	return dest, nil
}
