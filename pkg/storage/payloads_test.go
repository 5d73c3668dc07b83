package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Daedalus/pkg/importer"
	"github.com/wehubfusion/Daedalus/pkg/message"
	"github.com/wehubfusion/Daedalus/pkg/rawdata"
)

type memoryBlobs struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	types    map[string]string
	metadata map[string]map[string]string
	failWith error
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{
		blobs:    make(map[string][]byte),
		types:    make(map[string]string),
		metadata: make(map[string]map[string]string),
	}
}

const memoryServiceURL = "https://acct.blob.core.windows.net"

func (m *memoryBlobs) Upload(ctx context.Context, blobPath string, data []byte, contentType string, metadata map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return "", m.failWith
	}
	m.blobs[blobPath] = append([]byte(nil), data...)
	m.types[blobPath] = contentType
	m.metadata[blobPath] = metadata
	return fmt.Sprintf("%s/imports/%s", memoryServiceURL, blobPath), nil
}

func (m *memoryBlobs) Download(ctx context.Context, reference string) ([]byte, error) {
	blobPath, err := BlobPath(memoryServiceURL, "imports", reference)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[blobPath]
	if !ok {
		return nil, fmt.Errorf("blob %s not found", blobPath)
	}
	return data, nil
}

func TestNewPayloadStore(t *testing.T) {
	_, err := NewPayloadStore(nil, nil)
	assert.Error(t, err)

	store, err := NewPayloadStore(newMemoryBlobs(), nil)
	require.NoError(t, err)
	assert.NotNil(t, store)
}

func TestReportPath(t *testing.T) {
	assert.Equal(t, "reports/r-42.json", ReportPath("r-42"))
}

func TestSaveAndLoadOutcome(t *testing.T) {
	blobs := newMemoryBlobs()
	store, err := NewPayloadStore(blobs, nil)
	require.NoError(t, err)
	ctx := context.Background()

	item := rawdata.NewItem(3)
	item.Set("num", rawdata.Scalar("7"))
	outcome := &importer.Outcome{
		ConfigurationCode: "orders",
		Success:           true,
		Processed:         3,
		ImportedIDs:       []string{"o1", "o2"},
		Failures: []importer.Failure{{
			ItemIndex: 3,
			Item:      item,
			Kind:      "UNIQUE_VIOLATION",
			Message:   "Entity not imported since it is already existing and Unique policy is set to SKIP",
		}},
	}

	ref, err := store.SaveOutcome(ctx, "r-1", outcome)
	require.NoError(t, err)
	assert.Equal(t, memoryServiceURL+"/imports/reports/r-1.json", ref.URL)
	assert.Equal(t, len(blobs.blobs["reports/r-1.json"]), ref.SizeBytes)
	assert.Equal(t, "application/json", blobs.types["reports/r-1.json"])
	assert.Equal(t, "orders", blobs.metadata["reports/r-1.json"]["configurationcode"])
	assert.Equal(t, "true", blobs.metadata["reports/r-1.json"]["success"])

	loaded, err := store.LoadOutcome(ctx, ref.URL)
	require.NoError(t, err)
	assert.Equal(t, "orders", loaded.ConfigurationCode)
	assert.True(t, loaded.Success)
	assert.Equal(t, 3, loaded.Processed)
	assert.Equal(t, []string{"o1", "o2"}, loaded.ImportedIDs)
	require.Len(t, loaded.Failures, 1)
	assert.Equal(t, 3, loaded.Failures[0].ItemIndex)
	assert.Len(t, loaded.FailuresOf("UNIQUE_VIOLATION"), 1)
}

func TestSaveOutcomeErrors(t *testing.T) {
	blobs := newMemoryBlobs()
	store, err := NewPayloadStore(blobs, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.SaveOutcome(ctx, "", &importer.Outcome{})
	assert.Error(t, err)
	_, err = store.SaveOutcome(ctx, "r-1", nil)
	assert.Error(t, err)

	blobs.failWith = errors.New("container unavailable")
	_, err = store.SaveOutcome(ctx, "r-1", importer.Failed("orders", "boom"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "container unavailable")
}

func TestLoadInput(t *testing.T) {
	blobs := newMemoryBlobs()
	store, err := NewPayloadStore(blobs, nil)
	require.NoError(t, err)
	ctx := context.Background()

	url, err := blobs.Upload(ctx, "inputs/orders.csv", []byte("num\n1\n"), "text/csv", nil)
	require.NoError(t, err)

	data, err := store.LoadInput(ctx, &message.BlobReference{URL: url + "?sig=abc", SizeBytes: 99})
	require.NoError(t, err)
	assert.Equal(t, "num\n1\n", string(data))

	_, err = store.LoadInput(ctx, nil)
	assert.Error(t, err)
	_, err = store.LoadInput(ctx, &message.BlobReference{URL: "inputs/missing.csv"})
	assert.Error(t, err)
}
