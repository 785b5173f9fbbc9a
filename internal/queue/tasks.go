package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

const TypeAnalyzeDocument = "document:analyze"

type AnalyzeDocumentPayload struct {
	JobID       string    `json:"job_id"`
	DocumentKey string    `json:"document_key"`
	JobName     string    `json:"job_name,omitempty"`
	RequestedAt time.Time `json:"requested_at"`
}

func (p AnalyzeDocumentPayload) Validate() error {
	if strings.TrimSpace(p.JobID) == "" {
		return errors.New("job_id is required")
	}
	if strings.TrimSpace(p.DocumentKey) == "" {
		return errors.New("document_key is required")
	}
	return nil
}

func NewAnalyzeDocumentTask(payload AnalyzeDocumentPayload) (*asynq.Task, error) {
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("analyze payload: %w", err)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal analyze payload: %w", err)
	}
	return asynq.NewTask(TypeAnalyzeDocument, body), nil
}

func ParseAnalyzeDocumentPayload(task *asynq.Task) (AnalyzeDocumentPayload, error) {
	var payload AnalyzeDocumentPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return AnalyzeDocumentPayload{}, fmt.Errorf("unmarshal analyze payload: %w", err)
	}
	if err := payload.Validate(); err != nil {
		return AnalyzeDocumentPayload{}, fmt.Errorf("analyze payload: %w", err)
	}
	return payload, nil
}
