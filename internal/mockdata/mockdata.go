// Package mockdata holds the sample jobs and placeholder payloads served when
// the document analysis gateway cannot be reached.
package mockdata

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dunamismax/docflow/internal/domain"
)

const (
	DefaultBucketURL = "https://mock-bucket.s3.amazonaws.com"
	MockFileContent  = "Mock file content"
	MockFileType     = "application/octet-stream"
	MockSummary      = "This is a mock analysis result"
)

// SeedJobs returns the three sample jobs, newest first, relative to now.
func SeedJobs(now time.Time) []domain.Job {
	now = now.UTC()
	return []domain.Job{
		{
			ID:           "1",
			Name:         "Sample Document Analysis",
			DocumentName: "sample-doc.pdf",
			DocumentKey:  "documents/sample-doc.pdf",
			ReportKey:    "reports/sample-report.pdf",
			Status:       domain.JobStatusCompleted,
			CreatedAt:    now,
			UpdatedAt:    now,
			Progress:     100,
			DocumentURL:  "/sample-doc.pdf",
			ResultURL:    "/sample-result.json",
		},
		{
			ID:           "2",
			Name:         "Contract Review",
			DocumentName: "contract.pdf",
			DocumentKey:  "documents/contract.pdf",
			Status:       domain.JobStatusInProgress,
			CreatedAt:    now.Add(-time.Hour),
			UpdatedAt:    now,
			Progress:     65,
			DocumentURL:  "/contract.pdf",
		},
		{
			ID:           "3",
			Name:         "Legal Document Processing",
			DocumentName: "legal-doc.pdf",
			DocumentKey:  "documents/legal-doc.pdf",
			Status:       domain.JobStatusPending,
			CreatedAt:    now.Add(-2 * time.Hour),
			UpdatedAt:    now.Add(-2 * time.Hour),
			Progress:     0,
			DocumentURL:  "/legal-doc.pdf",
		},
	}
}

type ExtractedData struct {
	Entities   []string `json:"entities"`
	KeyPhrases []string `json:"keyPhrases"`
}

type Analysis struct {
	Summary       string        `json:"summary"`
	ExtractedData ExtractedData `json:"extractedData"`
}

func MockAnalysis() Analysis {
	return Analysis{
		Summary: MockSummary,
		ExtractedData: ExtractedData{
			Entities:   []string{"Entity 1", "Entity 2"},
			KeyPhrases: []string{"Key phrase 1", "Key phrase 2"},
		},
	}
}

// AnalysisResults is the opaque results payload of a mock job.
func AnalysisResults() json.RawMessage {
	raw, _ := json.Marshal(MockAnalysis())
	return raw
}

// ResultDocument is the downloadable mock result file for a job.
func ResultDocument(jobID string) []byte {
	raw, _ := json.MarshalIndent(struct {
		JobID    string   `json:"jobId"`
		Analysis Analysis `json:"analysis"`
	}{JobID: jobID, Analysis: MockAnalysis()}, "", "  ")
	return raw
}

// PlaceholderURL joins non-empty parts under the placeholder bucket base.
func PlaceholderURL(base string, parts ...string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultBucketURL
	}
	segments := make([]string, 0, len(parts)+1)
	segments = append(segments, base)
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part != "" {
			segments = append(segments, part)
		}
	}
	return strings.Join(segments, "/")
}
