package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dunamismax/docflow/internal/domain"
)

// ListShape is the envelope a job listing arrived in.
type ListShape int

const (
	ListUnrecognized ListShape = iota
	ListItems
	ListJobs
	ListBareArray
)

func (s ListShape) String() string {
	switch s {
	case ListItems:
		return "items"
	case ListJobs:
		return "jobs"
	case ListBareArray:
		return "bare_array"
	default:
		return "unrecognized"
	}
}

// ListEnvelope is a classified job listing payload.
type ListEnvelope struct {
	Shape     ListShape
	Jobs      []domain.Job
	NextToken string
}

type listWire struct {
	Items     []domain.Job    `json:"items"`
	Jobs      []domain.Job    `json:"jobs"`
	NextToken json.RawMessage `json:"nextToken"`
}

// ClassifyListEnvelope recognizes the items, jobs and bare-array listing
// shapes. Anything else is returned with Shape ListUnrecognized and whatever
// continuation token could be found.
func ClassifyListEnvelope(raw []byte) (ListEnvelope, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return ListEnvelope{Shape: ListUnrecognized}, nil
	}
	doc, err := decodeDocument(raw)
	if err != nil {
		return ListEnvelope{}, err
	}

	switch {
	case matches(itemsEnvelope, doc):
		var w listWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return ListEnvelope{}, fmt.Errorf("decode items envelope: %w", err)
		}
		return ListEnvelope{Shape: ListItems, Jobs: w.Items, NextToken: tokenString(w.NextToken)}, nil
	case matches(jobsEnvelope, doc):
		var w listWire
		if err := json.Unmarshal(raw, &w); err != nil {
			return ListEnvelope{}, fmt.Errorf("decode jobs envelope: %w", err)
		}
		return ListEnvelope{Shape: ListJobs, Jobs: w.Jobs, NextToken: tokenString(w.NextToken)}, nil
	case matches(bareArray, doc):
		var jobs []domain.Job
		if err := json.Unmarshal(raw, &jobs); err != nil {
			return ListEnvelope{}, fmt.Errorf("decode job array: %w", err)
		}
		return ListEnvelope{Shape: ListBareArray, Jobs: jobs}, nil
	}

	env := ListEnvelope{Shape: ListUnrecognized}
	if obj, ok := doc.(map[string]any); ok {
		if token, ok := obj["nextToken"]; ok && token != nil {
			b, _ := json.Marshal(token)
			env.NextToken = tokenString(b)
		}
	}
	return env, nil
}

// Normalize converts the envelope into a collection. Duplicate ids keep their
// first occurrence. An unrecognized envelope yields an empty collection and
// ErrUnrecognizedEnvelope.
func (e ListEnvelope) Normalize() (domain.JobCollection, error) {
	out := domain.JobCollection{Jobs: make([]domain.Job, 0, len(e.Jobs)), NextToken: e.NextToken}
	if e.Shape == ListUnrecognized {
		return out, ErrUnrecognizedEnvelope
	}
	seen := make(map[string]struct{}, len(e.Jobs))
	for _, job := range e.Jobs {
		if _, dup := seen[job.ID]; dup {
			continue
		}
		seen[job.ID] = struct{}{}
		out.Jobs = append(out.Jobs, job)
	}
	return out, nil
}

// tokenString keeps string tokens as-is and passes structured tokens through
// as compact JSON.
func tokenString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// decodeJob accepts a {"job": {...}} wrapper or a bare job object.
func decodeJob(raw []byte) (domain.Job, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return domain.Job{}, err
	}

	switch {
	case matches(wrappedJob, doc):
		var w struct {
			Job domain.Job `json:"job"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return domain.Job{}, fmt.Errorf("decode job envelope: %w", err)
		}
		return w.Job, nil
	case matches(bareJob, doc):
		var job domain.Job
		if err := json.Unmarshal(raw, &job); err != nil {
			return domain.Job{}, fmt.Errorf("decode job: %w", err)
		}
		return job, nil
	}
	return domain.Job{}, fmt.Errorf("job: %w", ErrUnrecognizedEnvelope)
}

// UploadShape is the presigned upload form a gateway answered with.
type UploadShape int

const (
	UploadUnrecognized UploadShape = iota
	UploadPresignedPost
	UploadPresignedURL
	UploadNormalized
)

func (s UploadShape) String() string {
	switch s {
	case UploadPresignedPost:
		return "presigned_post"
	case UploadPresignedURL:
		return "presigned_url"
	case UploadNormalized:
		return "normalized"
	default:
		return "unrecognized"
	}
}

type UploadEnvelope struct {
	Shape  UploadShape
	URL    string
	Key    string
	Fields map[string]string
}

func ClassifyUploadEnvelope(raw []byte) (UploadEnvelope, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return UploadEnvelope{}, err
	}

	switch {
	case matches(presignedPost, doc):
		var w struct {
			PresignedPost struct {
				URL    string            `json:"url"`
				Fields map[string]string `json:"fields"`
			} `json:"presigned_post"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return UploadEnvelope{}, fmt.Errorf("decode presigned post: %w", err)
		}
		return UploadEnvelope{Shape: UploadPresignedPost, URL: w.PresignedPost.URL, Fields: w.PresignedPost.Fields}, nil
	case matches(presignedURL, doc):
		var w struct {
			PresignedURL string `json:"presigned_url"`
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return UploadEnvelope{}, fmt.Errorf("decode presigned url: %w", err)
		}
		return UploadEnvelope{Shape: UploadPresignedURL, URL: w.PresignedURL}, nil
	case matches(normalizedUpload, doc):
		var d domain.UploadDescriptor
		if err := json.Unmarshal(raw, &d); err != nil {
			return UploadEnvelope{}, fmt.Errorf("decode upload descriptor: %w", err)
		}
		return UploadEnvelope{Shape: UploadNormalized, URL: d.UploadURL, Key: d.Key, Fields: d.Fields}, nil
	}
	return UploadEnvelope{Shape: UploadUnrecognized}, nil
}

// Descriptor builds the upload descriptor. key is the storage key the client
// asked for; an already-normalized envelope may override it.
func (e UploadEnvelope) Descriptor(key string) (domain.UploadDescriptor, error) {
	switch e.Shape {
	case UploadPresignedPost:
		return domain.UploadDescriptor{UploadURL: e.URL, Key: key, Fields: e.Fields}, nil
	case UploadPresignedURL:
		return domain.UploadDescriptor{UploadURL: e.URL, Key: key}, nil
	case UploadNormalized:
		d := domain.UploadDescriptor{UploadURL: e.URL, Key: e.Key, Fields: e.Fields}
		if strings.TrimSpace(d.Key) == "" {
			d.Key = key
		}
		return d, nil
	}
	return domain.UploadDescriptor{}, fmt.Errorf("upload url: %w", ErrUnrecognizedEnvelope)
}

// Acknowledgement is the minimal reply to a processDocument call.
type Acknowledgement struct {
	JobID string
	// RawStatus is empty when the gateway omitted it.
	RawStatus string
}

func decodeAcknowledgement(raw []byte) (Acknowledgement, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return Acknowledgement{}, err
	}
	if !matches(acknowledgement, doc) {
		return Acknowledgement{}, fmt.Errorf("acknowledgement: %w", ErrUnrecognizedEnvelope)
	}

	obj := doc.(map[string]any)
	ack := Acknowledgement{}
	for _, k := range []string{"job_id", "jobId"} {
		if v, ok := obj[k]; ok {
			ack.JobID = scalarString(v)
			break
		}
	}
	if s, ok := obj["status"].(string); ok {
		ack.RawStatus = s
	}
	if strings.TrimSpace(ack.JobID) == "" {
		return Acknowledgement{}, fmt.Errorf("acknowledgement: empty job id: %w", ErrUnrecognizedEnvelope)
	}
	return ack, nil
}

func scalarString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

type resultsWire struct {
	JobID            json.RawMessage  `json:"jobId"`
	JobIDSnake       json.RawMessage  `json:"job_id"`
	Status           domain.JobStatus `json:"status"`
	Results          json.RawMessage  `json:"results"`
	Error            json.RawMessage  `json:"error"`
	DownloadURL      json.RawMessage  `json:"downloadUrl"`
	DownloadURLSnake json.RawMessage  `json:"download_url"`
}

// decodeResults accepts camelCase and snake_case result records. A record
// without a job id is attributed to jobID.
func decodeResults(raw []byte, jobID string) (domain.JobResults, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return domain.JobResults{}, err
	}
	if !matches(resultsObject, doc) {
		return domain.JobResults{}, fmt.Errorf("results: %w", ErrUnrecognizedEnvelope)
	}

	var w resultsWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.JobResults{}, fmt.Errorf("decode results: %w", err)
	}

	out := domain.JobResults{
		JobID:       firstNonEmpty(domain.ScalarText(w.JobID), domain.ScalarText(w.JobIDSnake), jobID),
		Status:      domain.NormalizeJobStatus(string(w.Status)),
		Error:       domain.ScalarText(w.Error),
		DownloadURL: firstNonEmpty(domain.ScalarText(w.DownloadURL), domain.ScalarText(w.DownloadURLSnake)),
	}
	if r := bytes.TrimSpace(w.Results); len(r) > 0 && !bytes.Equal(r, []byte("null")) {
		out.Results = r
	}
	return out, nil
}

type downloadWire struct {
	PresignedURL string `json:"presigned_url"`
}

func decodeDownloadURL(raw []byte) (string, error) {
	doc, err := decodeDocument(raw)
	if err != nil {
		return "", err
	}
	if !matches(presignedURL, doc) {
		return "", fmt.Errorf("download url: %w", ErrUnrecognizedEnvelope)
	}
	var w downloadWire
	if err := json.Unmarshal(raw, &w); err != nil {
		return "", fmt.Errorf("decode download url: %w", err)
	}
	return w.PresignedURL, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
