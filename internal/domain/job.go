package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// JobStatus is a closed enumeration. Values decoded from a backend are always
// normalized into one of the four constants below.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

var statusAliases = map[string]JobStatus{
	"pending":     JobStatusPending,
	"queued":      JobStatusPending,
	"submitted":   JobStatusPending,
	"created":     JobStatusPending,
	"in_progress": JobStatusInProgress,
	"in-progress": JobStatusInProgress,
	"inprogress":  JobStatusInProgress,
	"processing":  JobStatusInProgress,
	"running":     JobStatusInProgress,
	"completed":   JobStatusCompleted,
	"complete":    JobStatusCompleted,
	"succeeded":   JobStatusCompleted,
	"success":     JobStatusCompleted,
	"done":        JobStatusCompleted,
	"failed":      JobStatusFailed,
	"error":       JobStatusFailed,
}

// ParseJobStatus maps a raw status string onto the enumeration. ok is false
// when the value is not a known status or alias.
func ParseJobStatus(raw string) (JobStatus, bool) {
	s, ok := statusAliases[strings.ToLower(strings.TrimSpace(raw))]
	return s, ok
}

// NormalizeJobStatus is ParseJobStatus with unknown values treated as pending.
func NormalizeJobStatus(raw string) JobStatus {
	if s, ok := ParseJobStatus(raw); ok {
		return s
	}
	return JobStatusPending
}

func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusInProgress, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

func (s JobStatus) String() string { return string(s) }

// UnmarshalJSON treats anything that is not a known status string as pending.
func (s *JobStatus) UnmarshalJSON(data []byte) error {
	*s = NormalizeJobStatus(ScalarText(data))
	return nil
}

type Job struct {
	ID           string    `json:"id"`
	DocumentName string    `json:"document_name"`
	DocumentKey  string    `json:"document_key"`
	ReportKey    string    `json:"report_key,omitempty"`
	Status       JobStatus `json:"status"`

	// Older payload shapes still carry these.
	Name        string    `json:"name,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	UpdatedAt   time.Time `json:"updatedAt,omitzero"`
	DocumentURL string    `json:"documentUrl,omitempty"`
	ResultURL   string    `json:"resultUrl,omitempty"`
	Progress    int       `json:"progress"`
	Error       string    `json:"error,omitempty"`
}

// timestampLayouts are tried in order when decoding job timestamps.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// UnmarshalJSON never rejects a job for the shape of a single field. Ids and
// text fields accept strings or numbers, progress is any number rounded into
// 0..100, and timestamps that do not parse are left zero.
func (j *Job) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("job: %w", err)
	}
	if fields == nil {
		return nil
	}

	*j = Job{
		ID:           ScalarText(fields["id"]),
		DocumentName: ScalarText(fields["document_name"]),
		DocumentKey:  ScalarText(fields["document_key"]),
		ReportKey:    ScalarText(fields["report_key"]),
		Status:       NormalizeJobStatus(ScalarText(fields["status"])),
		Name:         ScalarText(fields["name"]),
		CreatedAt:    looseTime(fields["createdAt"]),
		UpdatedAt:    looseTime(fields["updatedAt"]),
		DocumentURL:  ScalarText(fields["documentUrl"]),
		ResultURL:    ScalarText(fields["resultUrl"]),
		Progress:     looseProgress(fields["progress"]),
		Error:        ScalarText(fields["error"]),
	}
	return nil
}

// ScalarText returns JSON strings as-is and numbers and booleans as their
// literal text. Objects, arrays and null decode to "".
func ScalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{', '[', 'n':
		return ""
	}
	return string(raw)
}

func looseTime(raw json.RawMessage) time.Time {
	value := strings.TrimSpace(ScalarText(raw))
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t
		}
	}
	return time.Time{}
}

func looseProgress(raw json.RawMessage) int {
	value := strings.TrimSpace(ScalarText(raw))
	if value == "" {
		return 0
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(f) {
		return 0
	}
	return int(math.Max(0, math.Min(100, math.Round(f))))
}

// DisplayName prefers the legacy display name and falls back to the document name.
func (j Job) DisplayName() string {
	if strings.TrimSpace(j.Name) != "" {
		return j.Name
	}
	return j.DocumentName
}

type JobCollection struct {
	Jobs      []Job  `json:"jobs"`
	NextToken string `json:"nextToken,omitempty"`
}

type JobResults struct {
	JobID       string          `json:"jobId"`
	Status      JobStatus       `json:"status"`
	Results     json.RawMessage `json:"results,omitempty"`
	Error       string          `json:"error,omitempty"`
	DownloadURL string          `json:"downloadUrl,omitempty"`
}

type UploadDescriptor struct {
	UploadURL string            `json:"uploadUrl"`
	Key       string            `json:"key"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// IsPresignedPost reports whether the upload must be a multipart POST.
func (d UploadDescriptor) IsPresignedPost() bool {
	return len(d.Fields) > 0
}

type FileInput struct {
	Name        string
	ContentType string
	Data        []byte
}

func (f FileInput) Validate() error {
	if strings.TrimSpace(f.Name) == "" {
		return fmt.Errorf("%w: file name is required", ErrInvalidInput)
	}
	return nil
}

type CreateJobRequest struct {
	Name     string
	Document FileInput
}

func (r CreateJobRequest) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if err := r.Document.Validate(); err != nil {
		return err
	}
	return nil
}

type ResourceType string

const (
	ResourceDocument ResourceType = "document"
	ResourceReport   ResourceType = "report"
)

func ParseResourceType(raw string) (ResourceType, error) {
	switch ResourceType(strings.ToLower(strings.TrimSpace(raw))) {
	case ResourceDocument:
		return ResourceDocument, nil
	case ResourceReport:
		return ResourceReport, nil
	}
	return "", fmt.Errorf("%w: unsupported resource type: %s", ErrInvalidInput, raw)
}

// Blob is a downloaded binary payload.
type Blob struct {
	Data        []byte
	ContentType string
}
