package storage

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/Shopify/sarama"

	"github.com/janelia-flyem/bgrid/bgrid"
)

// KafkaMaxMessageSize is the max message size in bytes for a Kafka message.
const KafkaMaxMessageSize = 980 * 1024

// Publisher sends change messages to an external log.
type Publisher interface {
	Publish(msg ChangeMessage) error
	Close() error
}

// KafkaConfig describes kafka servers and the topic for change messages.
type KafkaConfig struct {
	Servers    []string
	Topic      string // defaults to "bgrid-changes-<host id>"
	BufferSize int    // producer channel buffer size
}

var badTopicChars = regexp.MustCompile(`[^a-zA-Z0-9\._\-]+`)

// KafkaPublisher publishes change messages as JSON through an async producer.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	done     chan struct{}
}

// NewKafkaPublisher connects to the configured servers.
func NewKafkaPublisher(kc KafkaConfig, hostID string) (*KafkaPublisher, error) {
	if len(kc.Servers) == 0 {
		return nil, fmt.Errorf("no kafka servers configured: %w", bgrid.ErrValue)
	}
	topic := kc.Topic
	if topic == "" {
		topic = "bgrid-changes-" + hostID
	}
	config := sarama.NewConfig()
	config.Producer.MaxMessageBytes = KafkaMaxMessageSize
	if kc.BufferSize > 0 {
		config.ChannelBufferSize = kc.BufferSize
	}
	producer, err := sarama.NewAsyncProducer(kc.Servers, config)
	if err != nil {
		return nil, err
	}
	kp := newKafkaPublisher(producer, topic)
	bgrid.Infof("Kafka topic for change messages: %s\n", kp.topic)
	return kp, nil
}

func newKafkaPublisher(producer sarama.AsyncProducer, topic string) *KafkaPublisher {
	kp := &KafkaPublisher{
		producer: producer,
		topic:    badTopicChars.ReplaceAllString(topic, "-"),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(kp.done)
		for err := range producer.Errors() {
			bgrid.Errorf("error on kafka send: %v\n", err)
		}
	}()
	return kp
}

// Topic returns the sanitized topic name.
func (kp *KafkaPublisher) Topic() string {
	return kp.topic
}

// Publish queues a message keyed by its element name.
func (kp *KafkaPublisher) Publish(msg ChangeMessage) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	kp.producer.Input() <- &sarama.ProducerMessage{
		Topic: kp.topic,
		Key:   sarama.StringEncoder(msg.Element),
		Value: sarama.ByteEncoder(value),
	}
	return nil
}

// Close flushes queued messages and stops the producer.
func (kp *KafkaPublisher) Close() error {
	err := kp.producer.Close()
	<-kp.done
	if err != nil {
		bgrid.Errorf("Kafka producer had error on close: %v\n", err)
		return err
	}
	bgrid.Infof("Kafka producer closed.\n")
	return nil
}
