package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	itemsEnvelopeSchema = `{
	"type": "object",
	"required": ["items"],
	"properties": {"items": {"type": "array", "items": {"type": "object"}}}
}`
	jobsEnvelopeSchema = `{
	"type": "object",
	"required": ["jobs"],
	"properties": {"jobs": {"type": "array", "items": {"type": "object"}}}
}`
	bareArraySchema = `{"type": "array", "items": {"type": "object"}}`

	wrappedJobSchema = `{
	"type": "object",
	"required": ["job"],
	"properties": {"job": {"type": "object", "required": ["id"]}}
}`
	bareJobSchema = `{"type": "object", "required": ["id"]}`

	presignedPostSchema = `{
	"type": "object",
	"required": ["presigned_post"],
	"properties": {
		"presigned_post": {
			"type": "object",
			"required": ["url"],
			"properties": {
				"url": {"type": "string", "minLength": 1},
				"fields": {"type": "object", "additionalProperties": {"type": "string"}}
			}
		}
	}
}`
	presignedURLSchema = `{
	"type": "object",
	"required": ["presigned_url"],
	"properties": {"presigned_url": {"type": "string", "minLength": 1}}
}`
	normalizedUploadSchema = `{
	"type": "object",
	"required": ["uploadUrl"],
	"properties": {
		"uploadUrl": {"type": "string", "minLength": 1},
		"key": {"type": "string"},
		"fields": {"type": "object", "additionalProperties": {"type": "string"}}
	}
}`

	acknowledgementSchema = `{
	"type": "object",
	"anyOf": [{"required": ["job_id"]}, {"required": ["jobId"]}],
	"properties": {
		"job_id": {"type": ["string", "number"]},
		"jobId": {"type": ["string", "number"]},
		"status": {"type": "string"}
	}
}`
	resultsSchema = `{"type": "object"}`
)

var (
	itemsEnvelope    = jsonschema.MustCompileString("items_envelope.json", itemsEnvelopeSchema)
	jobsEnvelope     = jsonschema.MustCompileString("jobs_envelope.json", jobsEnvelopeSchema)
	bareArray        = jsonschema.MustCompileString("bare_array.json", bareArraySchema)
	wrappedJob       = jsonschema.MustCompileString("wrapped_job.json", wrappedJobSchema)
	bareJob          = jsonschema.MustCompileString("bare_job.json", bareJobSchema)
	presignedPost    = jsonschema.MustCompileString("presigned_post.json", presignedPostSchema)
	presignedURL     = jsonschema.MustCompileString("presigned_url.json", presignedURLSchema)
	normalizedUpload = jsonschema.MustCompileString("normalized_upload.json", normalizedUploadSchema)
	acknowledgement  = jsonschema.MustCompileString("acknowledgement.json", acknowledgementSchema)
	resultsObject    = jsonschema.MustCompileString("results.json", resultsSchema)
)

// decodeDocument parses a payload into the generic form the schemas validate.
func decodeDocument(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return doc, nil
}

func matches(schema *jsonschema.Schema, doc any) bool {
	return schema.Validate(doc) == nil
}
