package events

import (
	"context"
	"encoding/json"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"
)

// KafkaPublisher writes each event to the topic named after its type, keyed
// by order number so one order's events stay on one partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(brokers []string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireOne,
			AllowAutoTopicCreation: true,
			BatchTimeout:           50 * time.Millisecond,
		},
	}
}

// Message encodes e as a Kafka message.
func Message(e Event) (kafka.Message, error) {
	value, err := json.Marshal(e)
	if err != nil {
		return kafka.Message{}, errors.Wrap(err, "encode event")
	}
	var key []byte
	if e.Order != nil {
		key = []byte(e.Order.OrderNumber)
	}
	return kafka.Message{
		Topic: string(e.Type),
		Key:   key,
		Value: value,
		Time:  e.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(e.ID)},
		},
	}, nil
}

func (p *KafkaPublisher) Dispatch(ctx context.Context, e Event) error {
	msg, err := Message(e)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "publish %s", e.Type)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// KafkaConsumer reads every event topic with one reader per topic and hands
// decoded events to a Handler.
type KafkaConsumer struct {
	readers []*kafka.Reader
	handle  Handler
}

func NewKafkaConsumer(brokers []string, groupID string, handle Handler, types ...Type) *KafkaConsumer {
	if len(types) == 0 {
		types = AllTypes
	}
	c := &KafkaConsumer{handle: handle}
	for _, t := range types {
		c.readers = append(c.readers, kafka.NewReader(kafka.ReaderConfig{
			Brokers: brokers,
			Topic:   string(t),
			GroupID: groupID,
		}))
	}
	return c
}

// Run blocks until ctx is done. Handler errors are logged and the message is
// still committed; a poison message must not stall the partition.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer func() {
		for _, r := range c.readers {
			if err := r.Close(); err != nil {
				log.WithError(err).Warn("closing kafka reader")
			}
		}
	}()

	var wg sync.WaitGroup
	for _, r := range c.readers {
		wg.Add(1)
		go func(r *kafka.Reader) {
			defer wg.Done()
			log.WithField("topic", r.Config().Topic).Info("listening for events")
			for {
				msg, err := r.ReadMessage(ctx)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					log.WithError(err).WithField("topic", r.Config().Topic).Error("reading kafka message")
					continue
				}

				var e Event
				if err := json.Unmarshal(msg.Value, &e); err != nil {
					log.WithError(err).WithField("topic", msg.Topic).Error("undecodable event")
					continue
				}
				if err := c.handle(ctx, e); err != nil {
					log.WithError(err).WithFields(log.Fields{"event": e.Type, "event_id": e.ID}).Error("event handler failed")
				}
			}
		}(r)
	}

	wg.Wait()
	return nil
}

// CreateTopics creates one topic per event type through the cluster controller.
func CreateTopics(broker string, partitions int) error {
	conn, err := kafka.Dial("tcp", broker)
	if err != nil {
		return errors.Wrap(err, "dial kafka")
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return errors.Wrap(err, "find kafka controller")
	}
	controllerConn, err := kafka.Dial("tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return errors.Wrap(err, "dial kafka controller")
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, 0, len(AllTypes))
	for _, t := range AllTypes {
		configs = append(configs, kafka.TopicConfig{Topic: string(t), NumPartitions: partitions, ReplicationFactor: 1})
	}
	return controllerConn.CreateTopics(configs...)
}
