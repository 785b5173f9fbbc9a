package gateway

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path"
	"strings"

	"github.com/dunamismax/docflow/internal/domain"
	"github.com/dunamismax/docflow/internal/mockdata"
)

const (
	opListJobs          = "list_jobs"
	opGetJob            = "get_job"
	opCreateJob         = "create_job"
	opDeleteJob         = "delete_job"
	opDownloadJobResult = "download_job_result"
	opStartAnalysis     = "start_analysis"
	opGetJobResults     = "get_job_results"
)

// ListJobs fetches one page of jobs. A live payload in an unknown envelope is
// still a live result: an empty collection with Err set to
// ErrUnrecognizedEnvelope.
func (c *Client) ListJobs(ctx context.Context, nextToken string) (Result[domain.JobCollection], error) {
	var shapeErr error

	res, err := resolve(ctx, c, opListJobs,
		func(ctx context.Context) (domain.JobCollection, error) {
			query := url.Values{}
			if nextToken != "" {
				query.Set("nextToken", nextToken)
			}
			target, err := c.endpoint(query, "multipage-doc-analysis", "jobs", "query")
			if err != nil {
				return domain.JobCollection{}, err
			}
			raw, err := c.getJSON(ctx, target)
			if err != nil {
				return domain.JobCollection{}, err
			}
			env, err := ClassifyListEnvelope(raw)
			if err != nil {
				return domain.JobCollection{}, err
			}
			collection, err := env.Normalize()
			if err != nil {
				shapeErr = err
				c.logger.Printf("op=%s unrecognized listing envelope, returning empty collection", opListJobs)
			}
			return collection, nil
		},
		func(context.Context) (domain.JobCollection, error) {
			return domain.JobCollection{Jobs: c.mock.Snapshot()}, nil
		},
	)
	if err == nil && res.Live() && shapeErr != nil {
		res.Err = shapeErr
	}
	return res, err
}

// GetJob fetches a single job. It fails with domain.ErrNotFound only when the
// job is missing from both the gateway and the mock collection.
func (c *Client) GetJob(ctx context.Context, jobID string) (Result[domain.Job], error) {
	if strings.TrimSpace(jobID) == "" {
		return Result[domain.Job]{}, fmt.Errorf("%w: job id is required", domain.ErrInvalidInput)
	}

	return resolve(ctx, c, opGetJob,
		func(ctx context.Context) (domain.Job, error) {
			target, err := c.endpoint(nil, "multipage-doc-analysis", "jobs", "query", jobID)
			if err != nil {
				return domain.Job{}, err
			}
			raw, err := c.getJSON(ctx, target)
			if err != nil {
				return domain.Job{}, err
			}
			return decodeJob(raw)
		},
		func(ctx context.Context) (domain.Job, error) {
			job, ok, err := c.mock.Get(ctx, jobID)
			if err != nil {
				return domain.Job{}, err
			}
			if !ok {
				return domain.Job{}, fmt.Errorf("job %s: %w", jobID, domain.ErrNotFound)
			}
			return job, nil
		},
	)
}

// CreateJob uploads the document together with the job name as a multipart
// form.
func (c *Client) CreateJob(ctx context.Context, in domain.CreateJobRequest) (Result[domain.Job], error) {
	if err := in.Validate(); err != nil {
		return Result[domain.Job]{}, err
	}

	return resolve(ctx, c, opCreateJob,
		func(ctx context.Context) (domain.Job, error) {
			target, err := c.endpoint(nil, "jobs")
			if err != nil {
				return domain.Job{}, err
			}

			var body bytes.Buffer
			mw := multipart.NewWriter(&body)
			if err := mw.WriteField("name", in.Name); err != nil {
				return domain.Job{}, fmt.Errorf("write name field: %w", err)
			}
			if err := writeFilePart(mw, "document", in.Document); err != nil {
				return domain.Job{}, err
			}
			if err := mw.Close(); err != nil {
				return domain.Job{}, fmt.Errorf("close multipart body: %w", err)
			}

			req, err := c.newGatewayRequest(ctx, http.MethodPost, target, &body, mw.FormDataContentType())
			if err != nil {
				return domain.Job{}, err
			}
			raw, _, err := c.send(req)
			if err != nil {
				return domain.Job{}, err
			}
			return decodeJob(raw)
		},
		func(ctx context.Context) (domain.Job, error) {
			now := c.now()
			job := domain.Job{
				ID:           c.newID(),
				Name:         in.Name,
				DocumentName: in.Document.Name,
				DocumentKey:  path.Join(c.cfg.UploadFolder, in.Document.Name),
				Status:       domain.JobStatusPending,
				CreatedAt:    now,
				UpdatedAt:    now,
				Progress:     0,
			}
			if err := c.mock.Create(ctx, job); err != nil {
				return domain.Job{}, fmt.Errorf("record mock job: %w", err)
			}
			return job, nil
		},
	)
}

// DeleteJob removes a job. When the gateway is unreachable the job is
// removed from the mock collection and the result is marked as fallback.
func (c *Client) DeleteJob(ctx context.Context, jobID string) (Result[struct{}], error) {
	if strings.TrimSpace(jobID) == "" {
		return Result[struct{}]{}, fmt.Errorf("%w: job id is required", domain.ErrInvalidInput)
	}

	return resolve(ctx, c, opDeleteJob,
		func(ctx context.Context) (struct{}, error) {
			target, err := c.endpoint(nil, "jobs", jobID)
			if err != nil {
				return struct{}{}, err
			}
			req, err := c.newGatewayRequest(ctx, http.MethodDelete, target, nil, "")
			if err != nil {
				return struct{}{}, err
			}
			_, _, err = c.send(req)
			return struct{}{}, err
		},
		func(ctx context.Context) (struct{}, error) {
			removed, err := c.mock.Delete(ctx, jobID)
			if err != nil {
				return struct{}{}, err
			}
			if !removed {
				c.logger.Printf("op=%s job_id=%s not present in mock collection", opDeleteJob, jobID)
			}
			return struct{}{}, nil
		},
	)
}

func (c *Client) DownloadJobResult(ctx context.Context, jobID string) (Result[domain.Blob], error) {
	if strings.TrimSpace(jobID) == "" {
		return Result[domain.Blob]{}, fmt.Errorf("%w: job id is required", domain.ErrInvalidInput)
	}

	return resolve(ctx, c, opDownloadJobResult,
		func(ctx context.Context) (domain.Blob, error) {
			target, err := c.endpoint(nil, "jobs", jobID, "result")
			if err != nil {
				return domain.Blob{}, err
			}
			req, err := c.newGatewayRequest(ctx, http.MethodGet, target, nil, "")
			if err != nil {
				return domain.Blob{}, err
			}
			raw, header, err := c.send(req)
			if err != nil {
				return domain.Blob{}, err
			}
			return domain.Blob{Data: raw, ContentType: contentTypeOr(header, "application/octet-stream")}, nil
		},
		func(context.Context) (domain.Blob, error) {
			return domain.Blob{Data: mockdata.ResultDocument(jobID), ContentType: "application/json"}, nil
		},
	)
}

type processDocumentRequest struct {
	Key      string                  `json:"key"`
	Metadata processDocumentMetadata `json:"metadata"`
}

type processDocumentMetadata struct {
	Filename string `json:"filename"`
}

// StartAnalysis asks the gateway to analyze an uploaded document and builds a
// job record from its acknowledgement.
func (c *Client) StartAnalysis(ctx context.Context, documentKey, jobName string) (Result[domain.Job], error) {
	if strings.TrimSpace(documentKey) == "" {
		return Result[domain.Job]{}, fmt.Errorf("%w: document key is required", domain.ErrInvalidInput)
	}

	return resolve(ctx, c, opStartAnalysis,
		func(ctx context.Context) (domain.Job, error) {
			target, err := c.endpoint(nil, "multipage-doc-analysis", "processDocument")
			if err != nil {
				return domain.Job{}, err
			}
			raw, err := c.postJSON(ctx, target, processDocumentRequest{
				Key:      documentKey,
				Metadata: processDocumentMetadata{Filename: jobName},
			})
			if err != nil {
				return domain.Job{}, err
			}
			ack, err := decodeAcknowledgement(raw)
			if err != nil {
				return domain.Job{}, err
			}

			status := domain.JobStatusPending
			if ack.RawStatus != "" {
				parsed, ok := domain.ParseJobStatus(ack.RawStatus)
				if !ok {
					c.logger.Printf("op=%s job_id=%s unknown status=%q, treating as pending", opStartAnalysis, ack.JobID, ack.RawStatus)
				} else {
					status = parsed
				}
			}

			now := c.now()
			return domain.Job{
				ID:           ack.JobID,
				Name:         jobName,
				DocumentName: documentKey,
				DocumentKey:  documentKey,
				Status:       status,
				CreatedAt:    now,
				UpdatedAt:    now,
				Progress:     0,
				DocumentURL:  documentKey,
			}, nil
		},
		func(ctx context.Context) (domain.Job, error) {
			now := c.now()
			job := domain.Job{
				ID:           c.newID(),
				Name:         jobName,
				DocumentName: documentKey,
				DocumentKey:  documentKey,
				Status:       domain.JobStatusPending,
				CreatedAt:    now,
				UpdatedAt:    now,
				Progress:     0,
				DocumentURL:  mockdata.PlaceholderURL(c.cfg.MockBucketURL, documentKey),
			}
			if err := c.mock.Create(ctx, job); err != nil {
				return domain.Job{}, fmt.Errorf("record mock job: %w", err)
			}
			return job, nil
		},
	)
}

// GetJobResults fetches the analysis results of a job. The fallback answers
// with the mock payload and the status remembered for the job, completed when
// the job is unknown.
func (c *Client) GetJobResults(ctx context.Context, jobID string) (Result[domain.JobResults], error) {
	if strings.TrimSpace(jobID) == "" {
		return Result[domain.JobResults]{}, fmt.Errorf("%w: job id is required", domain.ErrInvalidInput)
	}

	return resolve(ctx, c, opGetJobResults,
		func(ctx context.Context) (domain.JobResults, error) {
			target, err := c.endpoint(nil, "multipage-doc-analysis", "jobs", "results", jobID)
			if err != nil {
				return domain.JobResults{}, err
			}
			raw, err := c.getJSON(ctx, target)
			if err != nil {
				return domain.JobResults{}, err
			}
			return decodeResults(raw, jobID)
		},
		func(ctx context.Context) (domain.JobResults, error) {
			out := domain.JobResults{
				JobID:   jobID,
				Status:  domain.JobStatusCompleted,
				Results: mockdata.AnalysisResults(),
			}
			job, ok, err := c.mock.Get(ctx, jobID)
			if err != nil {
				return domain.JobResults{}, err
			}
			if ok {
				if job.Status != "" {
					out.Status = job.Status
				}
				out.DownloadURL = job.ResultURL
			}
			return out, nil
		},
	)
}

func writeFilePart(mw *multipart.Writer, field string, file domain.FileInput) error {
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.Name))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create %s part: %w", field, err)
	}
	if _, err := part.Write(file.Data); err != nil {
		return fmt.Errorf("write %s part: %w", field, err)
	}
	return nil
}

func contentTypeOr(h http.Header, fallback string) string {
	if h != nil {
		if ct := h.Get("Content-Type"); ct != "" {
			return ct
		}
	}
	return fallback
}
