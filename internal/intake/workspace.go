package intake

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/bzip2"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"

	"labflat/internal/extract"
	"labflat/internal/infrastructure"
)

// Intake errors
var (
	ErrInvalidArchive  = errors.New("invalid archive")
	ErrArchiveTooLarge = errors.New("archive exceeds size limit")
	ErrIndexNotFound   = errors.New("no archive XML file starting with 'ar-' found")
)

const (
	indexPrefix = "ar-"
	indexSuffix = ".xml"
)

// Options bound what a workspace accepts.
type Options struct {
	// BaseDir holds the per-request scratch directories. Empty means os.TempDir.
	BaseDir string
	// MaxArchiveBytes caps the total size of extracted files. Zero disables it.
	MaxArchiveBytes int64
}

// Workspace is one request's scratch directory.
type Workspace struct {
	ID     string
	Dir    string
	opts   Options
	logger *slog.Logger
}

// NewWorkspace creates a fresh scratch directory.
func NewWorkspace(opts Options, logger *slog.Logger) (*Workspace, error) {
	if logger == nil {
		logger = slog.Default()
	}
	base := opts.BaseDir
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create work directory: %w", err)
	}

	id := uuid.New().String()
	dir := filepath.Join(base, "labflat-"+id)
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	return &Workspace{
		ID:     id,
		Dir:    dir,
		opts:   opts,
		logger: infrastructure.WithComponent(logger, "workspace").With(slog.String("workspace_id", id)),
	}, nil
}

// Close removes the workspace and everything in it.
func (w *Workspace) Close() error {
	if err := os.RemoveAll(w.Dir); err != nil {
		return fmt.Errorf("failed to remove workspace %s: %w", w.Dir, err)
	}
	return nil
}

// ExtractTar unpacks a tar stream, optionally gzip or bzip2 compressed, into
// the workspace. Only regular files and directories are materialised; entries
// escaping the workspace are rejected.
func (w *Workspace) ExtractTar(ctx context.Context, r io.Reader) error {
	stream, err := decompress(r)
	if err != nil {
		return err
	}

	tr := tar.NewReader(stream)
	var total int64
	files := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}

		target, err := w.entryPath(hdr.Name)
		if err != nil {
			return err
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", hdr.Name, err)
			}
		case tar.TypeReg:
			total += hdr.Size
			if w.opts.MaxArchiveBytes > 0 && total > w.opts.MaxArchiveBytes {
				return ErrArchiveTooLarge
			}
			if err := writeEntry(target, tr); err != nil {
				return fmt.Errorf("failed to extract %s: %w", hdr.Name, err)
			}
			files++
		default:
			w.logger.DebugContext(ctx, "skipping archive entry",
				slog.String("name", hdr.Name),
				slog.Int("type", int(hdr.Typeflag)))
		}
	}

	w.logger.InfoContext(ctx, "archive extracted",
		slog.Int("files", files),
		slog.Int64("bytes", total))
	return nil
}

func (w *Workspace) entryPath(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("%w: entry %q escapes archive root", ErrInvalidArchive, name)
	}
	return filepath.Join(w.Dir, filepath.FromSlash(clean)), nil
}

func writeEntry(target string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}
	return f.Close()
}

// decompress sniffs gzip and bzip2 magic bytes and wraps r accordingly.
func decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(3)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
	}

	switch {
	case bytes.HasPrefix(magic, []byte{0x1f, 0x8b}):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArchive, err)
		}
		return zr, nil
	case bytes.HasPrefix(magic, []byte("BZh")):
		return bzip2.NewReader(br), nil
	default:
		return br, nil
	}
}

// Bundle locates the archive index inside the workspace and collects the
// available result files.
func (w *Workspace) Bundle() (extract.Bundle, error) {
	return FromDirectory(w.Dir)
}

// FromDirectory builds a bundle from an already extracted archive directory.
func FromDirectory(dir string) (extract.Bundle, error) {
	index, err := FindIndex(dir)
	if err != nil {
		return extract.Bundle{}, err
	}
	available, err := AvailableFiles(dir)
	if err != nil {
		return extract.Bundle{}, err
	}
	return extract.Bundle{IndexPath: index, Available: available}, nil
}

// FindIndex returns the first file, in name order, directly inside dir whose
// name starts with "ar-" and ends with ".xml".
func FindIndex(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasPrefix(e.Name(), indexPrefix) && strings.HasSuffix(e.Name(), indexSuffix) {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return "", ErrIndexNotFound
	}
	sort.Strings(names)
	return filepath.Join(dir, names[0]), nil
}

// AvailableFiles maps every regular file below dir, keyed by its
// slash-separated path relative to dir.
func AvailableFiles(dir string) (extract.Available, error) {
	available := extract.Available{}
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		available[filepath.ToSlash(rel)] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", dir, err)
	}
	return available, nil
}
