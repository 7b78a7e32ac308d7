package notify_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/book-expert/pdf-watermark-remover/internal/model"
	"github.com/book-expert/pdf-watermark-remover/internal/notify"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "t.log")
	require.NoError(t, err)

	return log
}

func TestNewDocumentCleanedEvent(t *testing.T) {
	t.Parallel()

	parent := events.EventHeader{
		WorkflowID: "wf-1",
		UserID:     "user-1",
		TenantID:   "tenant-1",
		EventID:    "parent-event",
		Timestamp:  time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	result := model.DocumentResult{
		InputPath:    "/tmp/work/book.pdf",
		Error:        "",
		TotalPages:   10,
		CleanedPages: 9,
		FailedPages:  1,
		Success:      true,
	}

	before := time.Now()
	event := notify.NewDocumentCleanedEvent(parent, result, "tenant-1/wf-1/NoWatermark_book.pdf")

	assert.Equal(t, "wf-1", event.Header.WorkflowID)
	assert.Equal(t, "user-1", event.Header.UserID)
	assert.Equal(t, "tenant-1", event.Header.TenantID)
	assert.NotEqual(t, "parent-event", event.Header.EventID)
	_, parseErr := uuid.Parse(event.Header.EventID)
	require.NoError(t, parseErr)
	assert.False(t, event.Header.Timestamp.Before(before))

	assert.Equal(t, "book.pdf", event.InputName)
	assert.Equal(t, "tenant-1/wf-1/NoWatermark_book.pdf", event.OutputKey)
	assert.Equal(t, 10, event.Pages)
	assert.Equal(t, 9, event.CleanedPages)
	assert.Equal(t, 1, event.FailedPages)
	assert.True(t, event.Success)
}

func TestLocalHeader(t *testing.T) {
	t.Parallel()

	header := notify.LocalHeader("run-42")
	assert.Equal(t, "run-42", header.WorkflowID)
	assert.Equal(t, "local", header.TenantID)
}

func TestMarshal(t *testing.T) {
	t.Parallel()

	event := notify.NewDocumentCleanedEvent(notify.LocalHeader("run-1"), model.DocumentResult{
		InputPath: "a.pdf",
		Error:     "no pages cleaned",
		Success:   false,
	}, "")

	data, err := notify.Marshal(event)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "a.pdf", decoded["input_name"])
	assert.Equal(t, "no pages cleaned", decoded["error"])
	assert.Equal(t, false, decoded["success"])
	assert.Contains(t, decoded, "header")
}

func TestPublisher_DisabledWithoutURL(t *testing.T) {
	t.Parallel()

	publisher, err := notify.Connect("", "documents.cleaned", testLogger(t))
	require.NoError(t, err)
	assert.False(t, publisher.Enabled())

	require.NoError(t, publisher.Notify(context.Background(), model.DocumentResult{RunID: "r"}))
	require.NoError(t, publisher.Publish(context.Background(), notify.DocumentCleanedEvent{}))
	require.NoError(t, publisher.Close())
}

func TestConnect_Unreachable(t *testing.T) {
	t.Parallel()

	_, err := notify.Connect("nats://127.0.0.1:1", "documents.cleaned", testLogger(t))
	require.Error(t, err)
}
