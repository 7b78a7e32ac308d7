// Package worker runs the watermark remover as a NATS JetStream service:
// it consumes PDF-created events, cleans the referenced PDF and publishes the
// result to an object store.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/pdf-watermark-remover/internal/config"
)

// ErrNATSURLRequired is returned when the worker starts without a server URL.
var ErrNATSURLRequired = errors.New("nats url is required to run the worker")

const (
	natsFetchTimeout = 5 * time.Second
	// ackWait covers one document going through the browser.
	ackWait = 10 * time.Minute
)

// Run connects to NATS, ensures the streams and buckets exist and handles
// messages until ctx is canceled.
func Run(ctx context.Context, cfg config.NATS, processor Processor, workDir string, log *logger.Logger) error {
	if cfg.URL == "" {
		return ErrNATSURLRequired
	}

	natsConnection, connErr := nats.Connect(cfg.URL, nats.Name("pdf-watermark-remover-worker"))
	if connErr != nil {
		return fmt.Errorf("failed to connect to NATS: %w", connErr)
	}
	defer natsConnection.Close()

	log.Info("Connected to NATS server at %s", natsConnection.ConnectedUrl())

	jetStream, jsErr := jetstream.New(natsConnection)
	if jsErr != nil {
		return fmt.Errorf("failed to create JetStream context: %w", jsErr)
	}

	if setupErr := setupJetStream(ctx, jetStream, cfg); setupErr != nil {
		return fmt.Errorf("failed to set up JetStream resources: %w", setupErr)
	}

	consumer, consumerErr := jetStream.Consumer(ctx, cfg.PDFStreamName, cfg.PDFConsumerName)
	if consumerErr != nil {
		return fmt.Errorf("failed to get consumer: %w", consumerErr)
	}

	pdfStore, pdfStoreErr := jetStream.ObjectStore(ctx, cfg.PDFObjectStoreBucket)
	if pdfStoreErr != nil {
		return fmt.Errorf("failed to bind to PDF object store: %w", pdfStoreErr)
	}

	cleanedStore, cleanedStoreErr := jetStream.ObjectStore(ctx, cfg.CleanedObjectStoreBucket)
	if cleanedStoreErr != nil {
		return fmt.Errorf("failed to bind to cleaned PDF object store: %w", cleanedStoreErr)
	}

	handler := NewHandler(processor, pdfStore, cleanedStore, jetStream, cfg.NotifySubject, workDir, log)

	log.Info("Worker is running, listening for jobs on '%s'...", cfg.PDFCreatedSubject)

	return processMessages(ctx, consumer, handler, log)
}

// setupJetStream ensures the input and output streams, the consumer and both
// object stores exist.
func setupJetStream(ctx context.Context, jetStream jetstream.JetStream, cfg config.NATS) error {
	_, streamErr := jetStream.CreateStream(ctx, newStreamConfig(cfg.PDFStreamName, cfg.PDFCreatedSubject))
	if streamErr != nil && !errors.Is(streamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create PDF stream: %w", streamErr)
	}

	stream, streamHandleErr := jetStream.Stream(ctx, cfg.PDFStreamName)
	if streamHandleErr != nil {
		return fmt.Errorf("failed to get PDF stream handle: %w", streamHandleErr)
	}

	_, consumerErr := stream.CreateOrUpdateConsumer(ctx, newConsumerConfig(cfg))
	if consumerErr != nil {
		return fmt.Errorf("failed to create PDF consumer: %w", consumerErr)
	}

	_, cleanedStreamErr := jetStream.CreateStream(ctx, newStreamConfig(cfg.CleanedStreamName, cfg.NotifySubject))
	if cleanedStreamErr != nil && !errors.Is(cleanedStreamErr, jetstream.ErrStreamNameAlreadyInUse) {
		return fmt.Errorf("failed to create cleaned PDF stream: %w", cleanedStreamErr)
	}

	for _, bucket := range []string{cfg.PDFObjectStoreBucket, cfg.CleanedObjectStoreBucket} {
		_, objStoreErr := jetStream.CreateObjectStore(ctx, newObjectStoreConfig(bucket))
		if objStoreErr != nil && !errors.Is(objStoreErr, jetstream.ErrBucketExists) {
			return fmt.Errorf("failed to create object store '%s': %w", bucket, objStoreErr)
		}
	}

	return nil
}

func newStreamConfig(name, subject string) jetstream.StreamConfig {
	return jetstream.StreamConfig{
		Name:                   name,
		Description:            "",
		Subjects:               []string{subject},
		Retention:              jetstream.WorkQueuePolicy,
		MaxConsumers:           -1,
		MaxMsgs:                -1,
		MaxBytes:               -1,
		Discard:                jetstream.DiscardOld,
		DiscardNewPerSubject:   false,
		MaxAge:                 0,
		MaxMsgsPerSubject:      -1,
		MaxMsgSize:             -1,
		Storage:                jetstream.FileStorage,
		Replicas:               1,
		NoAck:                  false,
		Duplicates:             0,
		Placement:              nil,
		Mirror:                 nil,
		Sources:                nil,
		Sealed:                 false,
		DenyDelete:             false,
		DenyPurge:              false,
		AllowRollup:            false,
		Compression:            jetstream.NoCompression,
		FirstSeq:               0,
		SubjectTransform:       nil,
		RePublish:              nil,
		AllowDirect:            false,
		MirrorDirect:           false,
		ConsumerLimits:         jetstream.StreamConsumerLimits{},
		Metadata:               nil,
		Template:               "",
		AllowMsgTTL:            false,
		SubjectDeleteMarkerTTL: 0,
	}
}

func newConsumerConfig(cfg config.NATS) jetstream.ConsumerConfig {
	return jetstream.ConsumerConfig{
		Durable:            cfg.PDFConsumerName,
		Name:               "",
		Description:        "",
		FilterSubject:      cfg.PDFCreatedSubject,
		AckPolicy:          jetstream.AckExplicitPolicy,
		AckWait:            ackWait,
		MaxDeliver:         -1,
		DeliverPolicy:      jetstream.DeliverAllPolicy,
		OptStartSeq:        0,
		OptStartTime:       nil,
		BackOff:            nil,
		ReplayPolicy:       jetstream.ReplayInstantPolicy,
		RateLimit:          0,
		SampleFrequency:    "",
		MaxWaiting:         0,
		MaxAckPending:      1,
		HeadersOnly:        false,
		MaxRequestBatch:    0,
		MaxRequestExpires:  0,
		MaxRequestMaxBytes: 0,
		InactiveThreshold:  0,
		Replicas:           0,
		MemoryStorage:      false,
		FilterSubjects:     nil,
		Metadata:           nil,
		PauseUntil:         nil,
		PriorityPolicy:     0,
		PinnedTTL:          0,
		PriorityGroups:     nil,
		DeliverSubject:     "",
		DeliverGroup:       "",
		FlowControl:        false,
		IdleHeartbeat:      0,
	}
}

func newObjectStoreConfig(bucket string) jetstream.ObjectStoreConfig {
	return jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "",
		TTL:         0,
		MaxBytes:    -1,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Placement:   nil,
		Compression: false,
		Metadata:    nil,
	}
}

// processMessages fetches one message at a time; the browser handles a single
// document at once.
func processMessages(
	ctx context.Context,
	consumer jetstream.Consumer,
	handler *Handler,
	log *logger.Logger,
) error {
	for {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("context error in message loop: %w", ctxErr)
		}

		batch, fetchErr := consumer.Fetch(1, jetstream.FetchMaxWait(natsFetchTimeout))
		if fetchErr != nil {
			if errors.Is(fetchErr, context.Canceled) || errors.Is(fetchErr, nats.ErrTimeout) {
				continue
			}

			log.Error("Error fetching messages: %v", fetchErr)

			continue
		}

		for msg := range batch.Messages() {
			handler.Handle(ctx, msg)
		}

		if batchErr := batch.Error(); batchErr != nil && !errors.Is(batchErr, nats.ErrTimeout) {
			log.Error("Error during message batch processing: %v", batchErr)
		}
	}
}
