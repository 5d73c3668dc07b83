package message

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Report statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// BlobReference points at a payload kept in blob storage.
type BlobReference struct {
	URL       string `json:"url"`
	SizeBytes int    `json:"sizeBytes,omitempty"`
}

// Input carries the raw data of an import request, either inline or as a
// blob reference.
type Input struct {
	// Format is the input data format (csv, json, xml); empty uses the definition's format
	Format string `json:"format,omitempty"`

	// Charset overrides the definition's input charset
	Charset string `json:"charset,omitempty"`

	// Data is the inline payload
	Data string `json:"data,omitempty"`

	// BlobReference is set for payloads uploaded to blob storage
	BlobReference *BlobReference `json:"blobReference,omitempty"`
}

// ImportRequest asks a worker to run one import.
type ImportRequest struct {
	// RequestID identifies the run; reports carry the same ID
	RequestID string `json:"requestId"`

	// CorrelationID is an optional caller-side identifier
	CorrelationID string `json:"correlationId,omitempty"`

	// Definition is the code of a definition known to the worker's catalog
	Definition string `json:"definition,omitempty"`

	// InlineDefinition is a YAML definition used instead of a catalog entry
	InlineDefinition string `json:"inlineDefinition,omitempty"`

	Input *Input `json:"input,omitempty"`

	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt string `json:"createdAt"`

	natsMsg *nats.Msg `json:"-"`
}

// NewImportRequest creates a request for the catalog definition code.
func NewImportRequest(definition string) *ImportRequest {
	return &ImportRequest{
		RequestID:  uuid.NewString(),
		Definition: definition,
		Metadata:   make(map[string]string),
		CreatedAt:  time.Now().Format(time.RFC3339),
	}
}

// WithInlineDefinition replaces the catalog lookup with a YAML definition.
func (r *ImportRequest) WithInlineDefinition(yaml string) *ImportRequest {
	r.InlineDefinition = yaml
	return r
}

// WithInlineData sets an inline payload.
func (r *ImportRequest) WithInlineData(format, data string) *ImportRequest {
	r.Input = &Input{Format: format, Data: data}
	return r
}

// WithBlobInput references a payload in blob storage.
func (r *ImportRequest) WithBlobInput(format, url string) *ImportRequest {
	r.Input = &Input{Format: format, BlobReference: &BlobReference{URL: url}}
	return r
}

func (r *ImportRequest) WithCorrelationID(correlationID string) *ImportRequest {
	r.CorrelationID = correlationID
	return r
}

func (r *ImportRequest) WithMetadata(key, value string) *ImportRequest {
	if r.Metadata == nil {
		r.Metadata = make(map[string]string)
	}
	r.Metadata[key] = value
	return r
}

// Validate checks that the request can be processed. Invalid requests are
// never retried.
func (r *ImportRequest) Validate() error {
	if r.RequestID == "" {
		return fmt.Errorf("request ID is required")
	}
	if r.Definition == "" && r.InlineDefinition == "" {
		return fmt.Errorf("request %s: definition code or inline definition is required", r.RequestID)
	}
	if r.Input == nil || (r.Input.Data == "" && r.Input.BlobReference == nil) {
		return fmt.Errorf("request %s: input data or blob reference is required", r.RequestID)
	}
	if r.Input.BlobReference != nil && r.Input.BlobReference.URL == "" {
		return fmt.Errorf("request %s: blob reference URL is empty", r.RequestID)
	}
	return nil
}

// ToBytes serializes the request to JSON
func (r *ImportRequest) ToBytes() ([]byte, error) {
	return json.Marshal(r)
}

// ImportRequestFromBytes deserializes a request from JSON
func ImportRequestFromBytes(data []byte) (*ImportRequest, error) {
	var req ImportRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}

// ImportRequestFromNATSMsg decodes a request and keeps the NATS message for acknowledgment.
func ImportRequestFromNATSMsg(natsMsg *nats.Msg) (*ImportRequest, error) {
	req, err := ImportRequestFromBytes(natsMsg.Data)
	if err != nil {
		return nil, err
	}
	req.natsMsg = natsMsg
	return req, nil
}

// Ack acknowledges the request; it will not be redelivered.
func (r *ImportRequest) Ack() error {
	if r.natsMsg == nil || r.natsMsg.Reply == "" {
		return nil
	}
	return r.natsMsg.Ack()
}

// Nak asks JetStream to redeliver the request.
func (r *ImportRequest) Nak() error {
	if r.natsMsg == nil || r.natsMsg.Reply == "" {
		return nil
	}
	return r.natsMsg.Nak()
}

// InProgress extends the acknowledgment deadline of a long import.
func (r *ImportRequest) InProgress() error {
	if r.natsMsg == nil || r.natsMsg.Reply == "" {
		return nil
	}
	return r.natsMsg.InProgress()
}

// Term stops redelivery of a request that can never succeed.
func (r *ImportRequest) Term() error {
	if r.natsMsg == nil || r.natsMsg.Reply == "" {
		return nil
	}
	return r.natsMsg.Term()
}

// ImportReport summarizes a finished import run.
type ImportReport struct {
	RequestID         string         `json:"requestId"`
	CorrelationID     string         `json:"correlationId,omitempty"`
	ConfigurationCode string         `json:"configurationCode,omitempty"`
	Status            string         `json:"status"`
	Processed         int            `json:"processedCount"`
	ImportedIDs       []string       `json:"importedIds,omitempty"`
	FailureCount      int            `json:"failureCount"`
	ErrorMessage      string         `json:"errorMessage,omitempty"`
	Outcome           *BlobReference `json:"outcome,omitempty"`
	ExecutionTimeMs   int64          `json:"executionTimeMs"`
	CompletedAt       string         `json:"completedAt"`
}

// NewImportReport starts a report for req.
func NewImportReport(req *ImportRequest, status string) *ImportReport {
	return &ImportReport{
		RequestID:     req.RequestID,
		CorrelationID: req.CorrelationID,
		Status:        status,
		CompletedAt:   time.Now().Format(time.RFC3339),
	}
}

// IsSuccess reports whether the run succeeded
func (r *ImportReport) IsSuccess() bool {
	return r.Status == StatusSuccess
}

// ToBytes serializes the report to JSON
func (r *ImportReport) ToBytes() ([]byte, error) {
	return json.Marshal(r)
}

// ImportReportFromBytes deserializes a report from JSON
func ImportReportFromBytes(data []byte) (*ImportReport, error) {
	var report ImportReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}
