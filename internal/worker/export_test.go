package worker

import (
	"github.com/nats-io/nats.go/jetstream"

	"github.com/book-expert/pdf-watermark-remover/internal/config"
)

// StreamConfigForTest exposes newStreamConfig.
func StreamConfigForTest(name, subject string) jetstream.StreamConfig {
	return newStreamConfig(name, subject)
}

// ConsumerConfigForTest exposes newConsumerConfig.
func ConsumerConfigForTest(cfg config.NATS) jetstream.ConsumerConfig { return newConsumerConfig(cfg) }

// ObjectStoreConfigForTest exposes newObjectStoreConfig.
func ObjectStoreConfigForTest(bucket string) jetstream.ObjectStoreConfig {
	return newObjectStoreConfig(bucket)
}
