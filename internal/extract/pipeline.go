package extract

import (
	"context"
	"errors"
	"log/slog"
	"path"
	"sort"
	"strings"

	"labflat/internal/infrastructure"
)

// Available maps a result file name, as the index references it, to the path
// of the file that was actually provided.
type Available map[string]string

// Lookup returns the path for name and whether it is available.
func (a Available) Lookup(name string) (string, bool) {
	p, ok := a[name]
	return p, ok
}

// Names returns the available names in sorted order.
func (a Available) Names() []string {
	names := make([]string, 0, len(a))
	for n := range a {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Bundle is the input of one extraction run.
type Bundle struct {
	IndexPath string
	Available Available
}

// OutcomeStatus tells whether a referenced file contributed a record.
type OutcomeStatus string

const (
	StatusProcessed OutcomeStatus = "processed"
	StatusSkipped   OutcomeStatus = "skipped"
)

// SkipReason explains why a referenced file was skipped.
type SkipReason string

const (
	ReasonNotXML    SkipReason = "not_xml"
	ReasonMissing   SkipReason = "missing"
	ReasonMalformed SkipReason = "malformed"
)

// FileOutcome is the per-reference result of a run.
type FileOutcome struct {
	File   string
	Status OutcomeStatus
	Reason SkipReason
	Err    error
}

// Result is the output of a run.
type Result struct {
	Table    *Table
	Outcomes []FileOutcome
}

// Processed returns how many references produced a record.
func (r *Result) Processed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == StatusProcessed {
			n++
		}
	}
	return n
}

// Skipped returns the outcomes of references that produced no record.
func (r *Result) Skipped() []FileOutcome {
	var out []FileOutcome
	for _, o := range r.Outcomes {
		if o.Status == StatusSkipped {
			out = append(out, o)
		}
	}
	return out
}

// Pipeline runs resolve, extract and assemble over one bundle.
type Pipeline struct {
	resolver  *Resolver
	extractor *Extractor
	logger    *slog.Logger
}

// NewPipeline creates a pipeline sharing logger across its stages.
func NewPipeline(logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		resolver:  NewResolver(logger),
		extractor: NewExtractor(logger),
		logger:    infrastructure.WithComponent(logger, "extract_pipeline"),
	}
}

// Run processes the bundle. References are handled in index order; each one
// yields exactly one FileOutcome, duplicates included. Per-file failures are
// recorded and skipped.
//
// The returned error is a MalformedIndexError, ErrNoRecords or the context
// error. With ErrNoRecords the Result is still returned so callers can report
// which files were skipped.
func (p *Pipeline) Run(ctx context.Context, b Bundle) (*Result, error) {
	refs, err := p.resolver.Resolve(ctx, b.IndexPath)
	if err != nil {
		return nil, err
	}

	result := &Result{Outcomes: make([]FileOutcome, 0, len(refs))}
	records := make([]*Record, 0, len(refs))

	for _, name := range refs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, outcome := p.process(ctx, name, b.Available)
		result.Outcomes = append(result.Outcomes, outcome)
		if rec != nil {
			records = append(records, rec)
			continue
		}

		p.logger.WarnContext(ctx, "result file skipped",
			slog.String("file", name),
			slog.String("reason", string(outcome.Reason)),
			slog.Any("error", outcome.Err))
	}

	table, err := Assemble(records)
	if err != nil {
		p.logger.WarnContext(ctx, "no records extracted",
			slog.Int("references", len(refs)),
			slog.Int("skipped", len(result.Skipped())))
		return result, err
	}
	result.Table = table

	p.logger.InfoContext(ctx, "archive flattened",
		slog.Int("references", len(refs)),
		slog.Int("records", table.Len()),
		slog.Int("columns", table.Width()),
		slog.Int("skipped", len(refs)-table.Len()))

	return result, nil
}

func (p *Pipeline) process(ctx context.Context, name string, available Available) (*Record, FileOutcome) {
	if !strings.HasSuffix(name, ".xml") {
		return nil, FileOutcome{File: name, Status: StatusSkipped, Reason: ReasonNotXML}
	}

	file, ok := available.Lookup(referencePath(name))
	if !ok {
		return nil, FileOutcome{
			File:   name,
			Status: StatusSkipped,
			Reason: ReasonMissing,
			Err:    &MissingResultFileError{File: name},
		}
	}

	rec, err := p.extractor.Extract(ctx, name, file)
	if err != nil {
		reason := ReasonMalformed
		if errors.Is(err, ErrMissingResultFile) {
			reason = ReasonMissing
		}
		return nil, FileOutcome{File: name, Status: StatusSkipped, Reason: reason, Err: err}
	}

	return rec, FileOutcome{File: name, Status: StatusProcessed}
}

// referencePath cleans an index reference into the slash-separated relative
// form used as the key of Available. "./r1.xml" and "results//r1.xml" resolve
// to "r1.xml" and "results/r1.xml".
func referencePath(name string) string {
	return path.Clean(strings.ReplaceAll(name, "\\", "/"))
}
