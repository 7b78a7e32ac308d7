package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/pdf-watermark-remover/internal/model"
	"github.com/book-expert/pdf-watermark-remover/internal/notify"
)

// ErrInvalidPDFKey is returned for events without a usable object key.
var ErrInvalidPDFKey = errors.New("invalid pdf key")

// Outcome is how a message was settled.
type Outcome string

const (
	// OutcomeAck means the document was cleaned, uploaded and announced.
	OutcomeAck Outcome = "ack"
	// OutcomeNak asks for redelivery.
	OutcomeNak Outcome = "nak"
	// OutcomeTerm drops a message that can never succeed.
	OutcomeTerm Outcome = "term"
)

// Processor cleans one local PDF.
type Processor interface {
	ProcessDocument(ctx context.Context, pdfPath, outputName string) (model.DocumentResult, error)
}

// Message is the part of a JetStream message the handler settles.
type Message interface {
	Data() []byte
	Ack() error
	Nak() error
	Term() error
	InProgress() error
}

// ObjectStore is the part of a JetStream object store the handler uses.
type ObjectStore interface {
	GetFile(ctx context.Context, name, file string, opts ...jetstream.GetObjectOpt) error
	Put(ctx context.Context, obj jetstream.ObjectMeta, reader io.Reader) (*jetstream.ObjectInfo, error)
}

// EventPublisher publishes to a JetStream subject.
type EventPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Handler turns one PDF-created message into a cleaned PDF.
type Handler struct {
	processor Processor
	inStore   ObjectStore
	outStore  ObjectStore
	publisher EventPublisher
	log       *logger.Logger
	subject   string
	workDir   string
}

// NewHandler wires a Handler. Cleaned events are published on subject.
func NewHandler(
	processor Processor,
	inStore, outStore ObjectStore,
	publisher EventPublisher,
	subject, workDir string,
	log *logger.Logger,
) *Handler {
	return &Handler{
		processor: processor,
		inStore:   inStore,
		outStore:  outStore,
		publisher: publisher,
		log:       log,
		subject:   subject,
		workDir:   workDir,
	}
}

// Handle runs the job for msg and settles it. Unreadable events and missing
// PDFs are terminated; processing and upload failures are retried.
func (handler *Handler) Handle(ctx context.Context, msg Message) Outcome {
	event, unmarshalErr := unmarshalEvent(msg.Data())
	if unmarshalErr != nil {
		handler.log.Error("Dropping unreadable message: %v", unmarshalErr)

		return handler.settle(msg, OutcomeTerm, "", unmarshalErr)
	}

	workflowID := event.Header.WorkflowID

	handler.log.Info("Received job for WorkflowID [%s]: processing PDF key '%s'", workflowID, event.PDFKey)

	if progErr := msg.InProgress(); progErr != nil {
		handler.log.Warn("Failed to send InProgress update: %v", progErr)
	}

	workDir, dirErr := os.MkdirTemp(handler.workDir, "pdf-"+sanitize(workflowID)+"-")
	if dirErr != nil {
		return handler.settle(msg, OutcomeNak, workflowID, fmt.Errorf("failed to create temp dir: %w", dirErr))
	}

	defer func() {
		if removeErr := os.RemoveAll(workDir); removeErr != nil {
			handler.log.Warn("Failed to remove temp directory '%s': %v", workDir, removeErr)
		}
	}()

	localPDF := filepath.Join(workDir, filepath.Base(event.PDFKey))

	if downloadErr := handler.inStore.GetFile(ctx, event.PDFKey, localPDF); downloadErr != nil {
		return handler.settle(msg, OutcomeTerm, workflowID,
			fmt.Errorf("failed to get PDF '%s' from object store: %w", event.PDFKey, downloadErr))
	}

	result, processErr := handler.processor.ProcessDocument(ctx, localPDF, "")
	if processErr != nil {
		return handler.settle(msg, OutcomeNak, workflowID, fmt.Errorf("failed to clean PDF: %w", processErr))
	}

	defer func() {
		if removeErr := os.Remove(result.OutputPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			handler.log.Warn("Failed to remove local output '%s': %v", result.OutputPath, removeErr)
		}
	}()

	objectName := ObjectName(event.Header, result.OutputPath)

	if uploadErr := uploadFileToObjectStore(ctx, handler.outStore, objectName, result.OutputPath); uploadErr != nil {
		return handler.settle(msg, OutcomeNak, workflowID, uploadErr)
	}

	handler.log.Info("Job [%s]: Uploaded '%s'", workflowID, objectName)

	if publishErr := handler.publish(ctx, event.Header, result, objectName); publishErr != nil {
		return handler.settle(msg, OutcomeNak, workflowID, publishErr)
	}

	return handler.settle(msg, OutcomeAck, workflowID, nil)
}

func (handler *Handler) publish(
	ctx context.Context,
	header events.EventHeader,
	result model.DocumentResult,
	objectName string,
) error {
	data, marshalErr := notify.Marshal(notify.NewDocumentCleanedEvent(header, result, objectName))
	if marshalErr != nil {
		return marshalErr
	}

	if _, pubErr := handler.publisher.Publish(ctx, handler.subject, data); pubErr != nil {
		return fmt.Errorf("failed to publish DocumentCleanedEvent: %w", pubErr)
	}

	return nil
}

func (handler *Handler) settle(msg Message, outcome Outcome, workflowID string, reason error) Outcome {
	switch outcome {
	case OutcomeAck:
		if err := msg.Ack(); err != nil {
			handler.log.Error("Job [%s]: Failed to acknowledge message: %v", workflowID, err)
		} else {
			handler.log.Success("Job [%s]: Processing complete. Acknowledged.", workflowID)
		}
	case OutcomeNak:
		handler.log.Error("NAK'ing message for job [%s]: %v", workflowID, reason)

		if err := msg.Nak(); err != nil {
			handler.log.Error("Failed to NAK message: %v", err)
		}
	case OutcomeTerm:
		handler.log.Error("Terminating message for job [%s]: %v", workflowID, reason)

		if err := msg.Term(); err != nil {
			handler.log.Error("Failed to TERM message: %v", err)
		}
	}

	return outcome
}

// ObjectName is the key of a cleaned PDF in the output bucket.
func ObjectName(header events.EventHeader, localPath string) string {
	return fmt.Sprintf("%s/%s/%s", header.TenantID, header.WorkflowID, filepath.Base(localPath))
}

func unmarshalEvent(data []byte) (*events.PDFCreatedEvent, error) {
	var event events.PDFCreatedEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("failed to unmarshal PDFCreatedEvent: %w", err)
	}

	base := filepath.Base(event.PDFKey)
	if event.PDFKey == "" || base == "." || base == "/" || base == ".." {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPDFKey, event.PDFKey)
	}

	return &event, nil
}

// sanitize keeps a workflow ID usable in a directory name.
func sanitize(id string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}

		return r
	}, id)
}

func uploadFileToObjectStore(ctx context.Context, store ObjectStore, objectName, filePath string) error {
	file, openErr := os.Open(filePath)
	if openErr != nil {
		return fmt.Errorf("failed to open file for upload: %w", openErr)
	}
	defer file.Close()

	meta := jetstream.ObjectMeta{
		Name:        objectName,
		Description: "",
		Headers:     nil,
		Metadata:    nil,
	}

	if _, putErr := store.Put(ctx, meta, file); putErr != nil {
		return fmt.Errorf("failed to put file in object store: %w", putErr)
	}

	return nil
}
