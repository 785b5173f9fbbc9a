package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dunamismax/docflow/internal/storage"
)

type ObjectStore interface {
	ReadObject(ctx context.Context, objectKey string) (storage.Object, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

func NewObjectStoreProcessor(store ObjectStore, analyzer Analyzer) (*Processor, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	return NewProcessor(ObjectStoreFetcher{Storage: store}, analyzer, ObjectStoreEmitter{Storage: store})
}

type ObjectStoreFetcher struct {
	Storage ObjectStore
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) (Document, error) {
	if f.Storage == nil {
		return Document{}, errors.New("storage client is required")
	}
	obj, err := f.Storage.ReadObject(ctx, req.DocumentKey)
	if err != nil {
		return Document{}, err
	}
	return Document{Key: req.DocumentKey, Data: obj.Data, ContentType: obj.ContentType}, nil
}

type ObjectStoreEmitter struct {
	Storage ObjectStore
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, report Report) (string, error) {
	if e.Storage == nil {
		return "", errors.New("storage client is required")
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}

	key := ReportKey(req.JobID)
	if err := e.Storage.WriteObject(ctx, key, data, ReportContentType); err != nil {
		return "", err
	}
	return key, nil
}
