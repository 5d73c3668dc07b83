package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/config"
	"github.com/wehubfusion/Daedalus/pkg/importer"
	"github.com/wehubfusion/Daedalus/pkg/message"
	"github.com/wehubfusion/Daedalus/pkg/metamodel"
	"github.com/wehubfusion/Daedalus/pkg/metamodel/metamodeltest"
	"github.com/wehubfusion/Daedalus/pkg/persistence/memstore"
	"github.com/wehubfusion/Daedalus/pkg/storage"
)

const ordersYAML = `
code: orders
entityType: Order
strategy: PER_ITEM
inputFormat: csv
mappings:
  - {property: number, field: num}
  - {property: note, field: note}
uniqueKeys:
  - {properties: [number], policy: skip}
`

type blobMap struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func (b *blobMap) Upload(ctx context.Context, blobPath string, data []byte, contentType string, metadata map[string]string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blobs[blobPath] = data
	return "https://acct.blob.core.windows.net/imports/" + blobPath, nil
}

func (b *blobMap) Download(ctx context.Context, reference string) ([]byte, error) {
	blobPath, err := storage.BlobPath("https://acct.blob.core.windows.net", "imports", reference)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.blobs[blobPath]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", blobPath)
	}
	return data, nil
}

type processorFixture struct {
	store     *memstore.Store
	blobs     *blobMap
	payloads  *storage.PayloadStore
	processor *ImportProcessor
}

func newProcessorFixture(t *testing.T, withPayloads bool) *processorFixture {
	t.Helper()
	schema := metamodeltest.OrderSchema(t)
	store := memstore.New(metamodel.NewValidator(schema), nil)

	def, err := config.ParseDefinition([]byte(ordersYAML))
	require.NoError(t, err)
	catalog, err := config.NewCatalog(def)
	require.NoError(t, err)

	f := &processorFixture{store: store, blobs: &blobMap{blobs: make(map[string][]byte)}}
	cfg := ProcessorConfig{
		Meta:     schema,
		Importer: importer.New(schema, schema, store, nil),
		Catalog:  catalog,
	}
	if withPayloads {
		f.payloads, err = storage.NewPayloadStore(f.blobs, nil)
		require.NoError(t, err)
		cfg.Payloads = f.payloads
	}
	f.processor, err = NewImportProcessor(cfg)
	require.NoError(t, err)
	return f
}

func TestNewImportProcessor(t *testing.T) {
	_, err := NewImportProcessor(ProcessorConfig{})
	assert.Error(t, err)

	schema := metamodeltest.OrderSchema(t)
	_, err = NewImportProcessor(ProcessorConfig{Meta: schema})
	assert.Error(t, err)
}

func TestImportProcessorCatalogDefinition(t *testing.T) {
	f := newProcessorFixture(t, true)
	req := message.NewImportRequest("orders").
		WithCorrelationID("batch-7").
		WithInlineData("", "num,note\n1,first\n2,second\n1,again\n")

	report, err := f.processor.Process(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, report.IsSuccess())
	assert.Equal(t, req.RequestID, report.RequestID)
	assert.Equal(t, "batch-7", report.CorrelationID)
	assert.Equal(t, "orders", report.ConfigurationCode)
	assert.Equal(t, 3, report.Processed)
	assert.Len(t, report.ImportedIDs, 2)
	assert.Equal(t, 1, report.FailureCount)
	assert.Equal(t, 2, f.store.Count("Order"))

	require.NotNil(t, report.Outcome)
	assert.True(t, strings.HasSuffix(report.Outcome.URL, "reports/"+req.RequestID+".json"))
	outcome, err := f.payloads.LoadOutcome(context.Background(), report.Outcome.URL)
	require.NoError(t, err)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, 3, outcome.Failures[0].ItemIndex)
}

func TestImportProcessorInputs(t *testing.T) {
	inline := strings.TrimSpace(`
code: readings-free
entityType: Order
inputFormat: json
mappings:
  - {property: number, field: n}
`)

	tests := []struct {
		name      string
		request   func(f *processorFixture) *message.ImportRequest
		processed int
	}{
		{
			name: "blob input",
			request: func(f *processorFixture) *message.ImportRequest {
				url, err := f.blobs.Upload(context.Background(), "inputs/orders.csv", []byte("num,note\n4,a\n5,b\n"), "text/csv", nil)
				require.NoError(t, err)
				return message.NewImportRequest("orders").WithBlobInput("", url)
			},
			processed: 2,
		},
		{
			name: "format override",
			request: func(f *processorFixture) *message.ImportRequest {
				return message.NewImportRequest("orders").WithInlineData("json", `[{"num": 8, "note": "json"}]`)
			},
			processed: 1,
		},
		{
			name: "inline definition",
			request: func(f *processorFixture) *message.ImportRequest {
				return message.NewImportRequest("").
					WithInlineDefinition(inline).
					WithInlineData("", `[{"n": 1}, {"n": 2}, {"n": 3}]`)
			},
			processed: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProcessorFixture(t, true)
			report, err := f.processor.Process(context.Background(), tt.request(f))
			require.NoError(t, err)
			assert.True(t, report.IsSuccess(), report.ErrorMessage)
			assert.Equal(t, tt.processed, report.Processed)
			assert.Equal(t, tt.processed, f.store.Count("Order"))
		})
	}
}

func TestImportProcessorUnsuccessfulImport(t *testing.T) {
	f := newProcessorFixture(t, false)
	req := message.NewImportRequest("orders").WithInlineData("json", `{"num": [`)

	report, err := f.processor.Process(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, report.IsSuccess())
	assert.NotEmpty(t, report.ErrorMessage)
	assert.Nil(t, report.Outcome)
	assert.Equal(t, 0, f.store.Count("Order"))
}

func TestImportProcessorRejections(t *testing.T) {
	tests := []struct {
		name        string
		payloads    bool
		request     *message.ImportRequest
		invalid     bool
		errContains string
	}{
		{name: "unknown definition", request: message.NewImportRequest("invoices").WithInlineData("csv", "a\n1"), invalid: true, errContains: "unknown definition"},
		{name: "missing input", request: message.NewImportRequest("orders"), invalid: true, errContains: "input data or blob reference"},
		{name: "nil request", request: nil, invalid: true, errContains: "request is nil"},
		{name: "unknown charset", request: func() *message.ImportRequest {
			req := message.NewImportRequest("orders").WithInlineData("csv", "num\n1")
			req.Input.Charset = "EBCDIC-NOPE"
			return req
		}(), invalid: true},
		{name: "broken inline definition", request: message.NewImportRequest("").WithInlineDefinition("code: [").WithInlineData("csv", "num\n1"), invalid: true},
		{name: "blob without storage", request: message.NewImportRequest("orders").WithBlobInput("csv", "inputs/orders.csv"), invalid: true, errContains: "blob input requires blob storage"},
		{name: "missing blob", payloads: true, request: message.NewImportRequest("orders").WithBlobInput("csv", "inputs/missing.csv"), errContains: "not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newProcessorFixture(t, tt.payloads)
			report, err := f.processor.Process(context.Background(), tt.request)
			require.Error(t, err)
			assert.Nil(t, report)

			var invalid *message.InvalidRequestError
			assert.Equal(t, tt.invalid, errors.As(err, &invalid))
			if tt.errContains != "" {
				assert.Contains(t, err.Error(), tt.errContains)
			}
		})
	}
}
