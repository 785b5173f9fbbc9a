package gateway

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/dunamismax/docflow/internal/domain"
	"github.com/dunamismax/docflow/internal/mockdata"
)

const (
	opRequestUploadURL   = "request_upload_url"
	opUploadFile         = "upload_file"
	opRequestDownloadURL = "request_download_url"
	opDownloadFile       = "download_file"

	mockUploadKey = "mock-key"
)

// RequestUploadURL asks for a presigned upload target for fileName. The
// storage key is <folder>/<unix millis>-<fileName>. fileType is not sent to
// the gateway. fileName travels as a single path segment, so it must not
// contain a path separator.
func (c *Client) RequestUploadURL(ctx context.Context, fileName, fileType string) (Result[domain.UploadDescriptor], error) {
	if strings.TrimSpace(fileName) == "" {
		return Result[domain.UploadDescriptor]{}, fmt.Errorf("%w: file name is required", domain.ErrInvalidInput)
	}
	if strings.ContainsAny(fileName, `/\`) {
		return Result[domain.UploadDescriptor]{}, fmt.Errorf("%w: file name %q must not contain a path separator", domain.ErrInvalidInput, fileName)
	}

	folder := c.cfg.UploadFolder
	objectName := strconv.FormatInt(c.now().UnixMilli(), 10) + "-" + fileName
	key := folder + "/" + objectName

	return resolve(ctx, c, opRequestUploadURL,
		func(ctx context.Context) (domain.UploadDescriptor, error) {
			target, err := c.endpoint(nil, "multipage-doc-analysis", "upload", folder, objectName)
			if err != nil {
				return domain.UploadDescriptor{}, err
			}
			raw, err := c.getJSON(ctx, target)
			if err != nil {
				return domain.UploadDescriptor{}, err
			}
			env, err := ClassifyUploadEnvelope(raw)
			if err != nil {
				return domain.UploadDescriptor{}, err
			}
			c.logger.Printf("op=%s shape=%s key=%s", opRequestUploadURL, env.Shape, key)
			return env.Descriptor(key)
		},
		func(context.Context) (domain.UploadDescriptor, error) {
			return domain.UploadDescriptor{
				UploadURL: mockdata.PlaceholderURL(c.cfg.MockBucketURL, fileName),
				Key:       key,
			}, nil
		},
	)
}

// UploadFile sends file to the descriptor's presigned target: a multipart
// POST when the descriptor carries form fields, a PUT otherwise. A failed
// upload is reported as a fallback result carrying the descriptor's key.
func (c *Client) UploadFile(ctx context.Context, file domain.FileInput, desc domain.UploadDescriptor) (Result[string], error) {
	return resolve(ctx, c, opUploadFile,
		func(ctx context.Context) (string, error) {
			if strings.TrimSpace(desc.UploadURL) == "" {
				return "", ErrInvalidUploadDescriptor
			}

			var (
				req *http.Request
				err error
			)
			if desc.IsPresignedPost() {
				req, err = c.newPresignedPost(ctx, file, desc)
			} else {
				contentType := file.ContentType
				if contentType == "" {
					contentType = "application/octet-stream"
				}
				req, err = c.newRequest(ctx, http.MethodPut, desc.UploadURL, bytes.NewReader(file.Data), contentType)
			}
			if err != nil {
				return "", err
			}
			if _, _, err := c.send(req); err != nil {
				return "", err
			}
			return desc.Key, nil
		},
		func(context.Context) (string, error) {
			if strings.TrimSpace(desc.Key) == "" {
				return mockUploadKey, nil
			}
			return desc.Key, nil
		},
	)
}

// newPresignedPost writes the policy fields in key order, then the file.
// Storage providers ignore fields that follow the file part.
func (c *Client) newPresignedPost(ctx context.Context, file domain.FileInput, desc domain.UploadDescriptor) (*http.Request, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	names := make([]string, 0, len(desc.Fields))
	for name := range desc.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := mw.WriteField(name, desc.Fields[name]); err != nil {
			return nil, fmt.Errorf("write field %s: %w", name, err)
		}
	}
	if err := writeFilePart(mw, "file", file); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart body: %w", err)
	}

	return c.newRequest(ctx, http.MethodPost, desc.UploadURL, &body, mw.FormDataContentType())
}

// RequestDownloadURL asks for a short-lived download URL for a stored
// document or report.
func (c *Client) RequestDownloadURL(ctx context.Context, resource domain.ResourceType, folder, key string) (Result[string], error) {
	resource, err := domain.ParseResourceType(string(resource))
	if err != nil {
		return Result[string]{}, err
	}
	if strings.TrimSpace(key) == "" {
		return Result[string]{}, fmt.Errorf("%w: key is required", domain.ErrInvalidInput)
	}

	return resolve(ctx, c, opRequestDownloadURL,
		func(ctx context.Context) (string, error) {
			target, err := c.endpoint(nil, "multipage-doc-analysis", "download", string(resource), folder, key)
			if err != nil {
				return "", err
			}
			raw, err := c.getJSON(ctx, target)
			if err != nil {
				return "", err
			}
			return decodeDownloadURL(raw)
		},
		func(context.Context) (string, error) {
			return mockdata.PlaceholderURL(c.cfg.MockBucketURL, folder, key), nil
		},
	)
}

// DownloadFile fetches a presigned URL. The request never carries the
// gateway bearer token.
func (c *Client) DownloadFile(ctx context.Context, rawURL string) (Result[domain.Blob], error) {
	if strings.TrimSpace(rawURL) == "" {
		return Result[domain.Blob]{}, fmt.Errorf("%w: url is required", domain.ErrInvalidInput)
	}

	return resolve(ctx, c, opDownloadFile,
		func(ctx context.Context) (domain.Blob, error) {
			req, err := c.newRequest(ctx, http.MethodGet, rawURL, nil, "")
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
			return domain.Blob{Data: []byte(mockdata.MockFileContent), ContentType: mockdata.MockFileType}, nil
		},
	)
}
