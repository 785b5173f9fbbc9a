package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const ReportContentType = "application/json"

type Request struct {
	JobID       string
	JobName     string
	DocumentKey string
}

type Document struct {
	Key         string
	Data        []byte
	ContentType string
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Document, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, req Request, doc Document) (Report, error)
}

// Emitter stores a report and returns the key it was stored under.
type Emitter interface {
	Emit(ctx context.Context, req Request, report Report) (string, error)
}

type Result struct {
	Report    Report
	ReportKey string
}

type Processor struct {
	fetcher  Fetcher
	analyzer Analyzer
	emitter  Emitter
}

func NewProcessor(fetcher Fetcher, analyzer Analyzer, emitter Emitter) (*Processor, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	if analyzer == nil {
		analyzer = NewDocumentAnalyzer(nil)
	}
	return &Processor{fetcher: fetcher, analyzer: analyzer, emitter: emitter}, nil
}

func NewLocalProcessor(rootDir, outputDir string) (*Processor, error) {
	return NewProcessor(
		LocalFileFetcher{Root: rootDir},
		NewDocumentAnalyzer(nil),
		LocalFileEmitter{OutputDir: outputDir},
	)
}

func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if strings.TrimSpace(req.DocumentKey) == "" {
		return Result{}, errors.New("document_key is required")
	}

	doc, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	report, err := p.analyzer.Analyze(ctx, req, doc)
	if err != nil {
		return Result{}, fmt.Errorf("analyze stage: %w", err)
	}

	key, err := p.emitter.Emit(ctx, req, report)
	if err != nil {
		return Result{}, fmt.Errorf("emit stage: %w", err)
	}

	return Result{Report: report, ReportKey: key}, nil
}

// ReportKey is where the report for a job is stored.
func ReportKey(jobID string) string {
	return "reports/" + sanitizePathToken(jobID) + ".json"
}

type LocalFileFetcher struct {
	Root string
}

func (f LocalFileFetcher) Fetch(ctx context.Context, req Request) (Document, error) {
	select {
	case <-ctx.Done():
		return Document{}, ctx.Err()
	default:
	}

	clean := filepath.Clean("/" + req.DocumentKey)
	full := filepath.Join(f.Root, clean)
	data, err := os.ReadFile(full)
	if err != nil {
		return Document{}, fmt.Errorf("read document %s: %w", req.DocumentKey, err)
	}
	return Document{Key: req.DocumentKey, Data: data}, nil
}

type LocalFileEmitter struct {
	OutputDir string
}

func (e LocalFileEmitter) Emit(_ context.Context, req Request, report Report) (string, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return "", errors.New("output directory is required")
	}

	key := ReportKey(req.JobID)
	fullPath := filepath.Join(e.OutputDir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write report file: %w", err)
	}
	return key, nil
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}

func nowUTC() time.Time { return time.Now().UTC() }
