package extract

import (
	"context"
	"log/slog"
	"os"

	"labflat/internal/infrastructure"
)

const (
	indexResultsSection = "results"
	indexFileAttr       = "file"
)

// Resolver reads archive index documents.
type Resolver struct {
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil logger falls back to slog.Default.
func NewResolver(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: infrastructure.WithComponent(logger, "index_resolver")}
}

// Resolve parses the index document at indexPath and returns the file
// attribute of every child of its results section, in document order. An
// empty results section yields an empty, non-nil slice.
func (r *Resolver) Resolve(ctx context.Context, indexPath string) ([]string, error) {
	f, err := os.Open(indexPath)
	if err != nil {
		return nil, &MalformedIndexError{Path: indexPath, Reason: "cannot open index", Err: err}
	}
	defer f.Close()

	root, err := parseDocument(f)
	if err != nil {
		return nil, &MalformedIndexError{Path: indexPath, Reason: "invalid XML", Err: err}
	}

	results := root.firstChild(named(indexResultsSection))
	if results == nil {
		return nil, &MalformedIndexError{Path: indexPath, Reason: "missing results section"}
	}

	files := make([]string, 0, len(results.children))
	for _, child := range results.children {
		name, ok := child.Attr(indexFileAttr)
		if !ok {
			return nil, &MalformedIndexError{
				Path:   indexPath,
				Reason: "result entry <" + child.name + "> has no file attribute",
			}
		}
		files = append(files, name)
	}

	r.logger.DebugContext(ctx, "index resolved",
		slog.String("index", indexPath),
		slog.Int("references", len(files)))

	return files, nil
}
