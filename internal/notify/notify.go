// Package notify publishes document-cleaned events over NATS.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/book-expert/pdf-watermark-remover/internal/model"
)

const (
	localTenantID  = "local"
	connectTimeout = 5 * time.Second
	flushTimeout   = 5 * time.Second
	connectionName = "pdf-watermark-remover"
)

// DocumentCleanedEvent announces a processed PDF.
type DocumentCleanedEvent struct {
	Header       events.EventHeader `json:"header"`
	InputName    string             `json:"input_name"`
	OutputKey    string             `json:"output_key"`
	Error        string             `json:"error,omitempty"`
	Pages        int                `json:"pages"`
	CleanedPages int                `json:"cleaned_pages"`
	FailedPages  int                `json:"failed_pages"`
	Success      bool               `json:"success"`
}

// NewDocumentCleanedEvent builds the event for result. The header keeps the
// workflow, user and tenant of parent and gets a fresh event ID and timestamp.
func NewDocumentCleanedEvent(
	parent events.EventHeader,
	result model.DocumentResult,
	outputKey string,
) DocumentCleanedEvent {
	return DocumentCleanedEvent{
		Header: events.EventHeader{
			WorkflowID: parent.WorkflowID,
			UserID:     parent.UserID,
			TenantID:   parent.TenantID,
			EventID:    uuid.New().String(),
			Timestamp:  time.Now(),
		},
		InputName:    filepath.Base(result.InputPath),
		OutputKey:    outputKey,
		Error:        result.Error,
		Pages:        result.TotalPages,
		CleanedPages: result.CleanedPages,
		FailedPages:  result.FailedPages,
		Success:      result.Success,
	}
}

// LocalHeader is the header used for documents processed from the command
// line: the run ID is the workflow.
func LocalHeader(runID string) events.EventHeader {
	return events.EventHeader{
		WorkflowID: runID,
		UserID:     "",
		TenantID:   localTenantID,
		EventID:    "",
		Timestamp:  time.Time{},
	}
}

// Publisher sends events on a core NATS connection. A Publisher without a
// connection drops every event.
type Publisher struct {
	conn    *nats.Conn
	log     *logger.Logger
	subject string
}

// Connect dials url. An empty url returns a Publisher that does nothing.
func Connect(url, subject string, log *logger.Logger) (*Publisher, error) {
	if url == "" {
		return &Publisher{conn: nil, log: log, subject: subject}, nil
	}

	conn, connErr := nats.Connect(url, nats.Name(connectionName), nats.Timeout(connectTimeout))
	if connErr != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, connErr)
	}

	log.Info("Connected to NATS server at %s", conn.ConnectedUrl())

	return &Publisher{conn: conn, log: log, subject: subject}, nil
}

// Enabled reports whether events are sent anywhere.
func (publisher *Publisher) Enabled() bool {
	return publisher.conn != nil
}

// Notify publishes the event for a locally processed document.
func (publisher *Publisher) Notify(ctx context.Context, result model.DocumentResult) error {
	if !publisher.Enabled() {
		return nil
	}

	event := NewDocumentCleanedEvent(LocalHeader(result.RunID), result, result.OutputPath)

	return publisher.Publish(ctx, event)
}

// Publish sends event on the configured subject.
func (publisher *Publisher) Publish(ctx context.Context, event DocumentCleanedEvent) error {
	if !publisher.Enabled() {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	data, marshalErr := Marshal(event)
	if marshalErr != nil {
		return marshalErr
	}

	if pubErr := publisher.conn.Publish(publisher.subject, data); pubErr != nil {
		return fmt.Errorf("failed to publish to %s: %w", publisher.subject, pubErr)
	}

	if flushErr := publisher.conn.FlushTimeout(flushTimeout); flushErr != nil {
		return fmt.Errorf("failed to flush NATS connection: %w", flushErr)
	}

	publisher.log.Info("Published document event %s on %s", event.Header.EventID, publisher.subject)

	return nil
}

// Close drains and closes the connection.
func (publisher *Publisher) Close() error {
	if !publisher.Enabled() {
		return nil
	}

	if drainErr := publisher.conn.Drain(); drainErr != nil {
		publisher.conn.Close()

		return fmt.Errorf("failed to drain NATS connection: %w", drainErr)
	}

	return nil
}

// Marshal encodes event as JSON.
func Marshal(event DocumentCleanedEvent) ([]byte, error) {
	data, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		return nil, fmt.Errorf("failed to marshal DocumentCleanedEvent: %w", marshalErr)
	}

	return data, nil
}
