package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"go.uber.org/zap"

	"github.com/wehubfusion/Daedalus/pkg/importer"
	"github.com/wehubfusion/Daedalus/pkg/message"
)

const reportPrefix = "reports"

// PayloadStore moves import payloads in and out of blob storage: request
// inputs too large to travel inline, and the full outcome of every run.
type PayloadStore struct {
	blobs  BlobStore
	logger *zap.Logger
}

// NewPayloadStore creates a payload store on top of blobs.
func NewPayloadStore(blobs BlobStore, logger *zap.Logger) (*PayloadStore, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PayloadStore{blobs: blobs, logger: logger}, nil
}

// ReportPath returns the blob path holding the outcome of requestID.
func ReportPath(requestID string) string {
	return path.Join(reportPrefix, requestID+".json")
}

// LoadInput downloads the input payload referenced by ref.
func (p *PayloadStore) LoadInput(ctx context.Context, ref *message.BlobReference) ([]byte, error) {
	if ref == nil || ref.URL == "" {
		return nil, fmt.Errorf("blob reference is required")
	}
	data, err := p.blobs.Download(ctx, ref.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load import input: %w", err)
	}
	if ref.SizeBytes > 0 && ref.SizeBytes != len(data) {
		p.logger.Warn("Import input size differs from reference",
			zap.String("url", ref.URL),
			zap.Int("expected_bytes", ref.SizeBytes),
			zap.Int("actual_bytes", len(data)))
	}
	return data, nil
}

// SaveOutcome uploads outcome as JSON under ReportPath(requestID).
func (p *PayloadStore) SaveOutcome(ctx context.Context, requestID string, outcome *importer.Outcome) (*message.BlobReference, error) {
	if requestID == "" {
		return nil, fmt.Errorf("request ID is required")
	}
	if outcome == nil {
		return nil, fmt.Errorf("outcome is required")
	}

	data, err := json.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal import outcome: %w", err)
	}

	metadata := map[string]string{
		"requestid":         requestID,
		"configurationcode": outcome.ConfigurationCode,
		"success":           fmt.Sprintf("%t", outcome.Success),
	}
	url, err := p.blobs.Upload(ctx, ReportPath(requestID), data, "application/json", metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to save import outcome: %w", err)
	}
	return &message.BlobReference{URL: url, SizeBytes: len(data)}, nil
}

// LoadOutcome reads back an outcome saved by SaveOutcome.
func (p *PayloadStore) LoadOutcome(ctx context.Context, reference string) (*importer.Outcome, error) {
	data, err := p.blobs.Download(ctx, reference)
	if err != nil {
		return nil, fmt.Errorf("failed to load import outcome: %w", err)
	}
	var outcome importer.Outcome
	if err := json.Unmarshal(data, &outcome); err != nil {
		return nil, fmt.Errorf("failed to decode import outcome: %w", err)
	}
	return &outcome, nil
}
