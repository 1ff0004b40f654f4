package mqadapter

import (
	"context"
	"fmt"
	"time"

	"github.com/oarkflow/log"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/oarkflow/hl7/pkg/contracts"
	"github.com/oarkflow/hl7/pkg/parsers"
)

// Adapter consumes raw HL7 messages from an AMQP queue. Message bodies may
// carry MLLP framing; it is removed before the envelope is emitted.
type Adapter struct {
	uri       string
	queueName string
	conn      *amqp.Connection
	channel   *amqp.Channel
	consumer  <-chan amqp.Delivery
}

// New creates a queue source for the given AMQP URI and queue.
func New(uri, queue string) *Adapter {
	if queue == "" {
		queue = "hl7"
	}
	return &Adapter{uri: uri, queueName: queue}
}

func (a *Adapter) Setup(ctx context.Context) error {
	if a.uri == "" {
		return fmt.Errorf("amqp source: uri is empty")
	}
	conn, err := amqp.Dial(a.uri)
	if err != nil {
		return err
	}
	a.conn = conn
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	a.channel = ch
	_, err = ch.QueueDeclare(
		a.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	return err
}

func (a *Adapter) Extract(ctx context.Context, opts ...contracts.Option) (<-chan contracts.Envelope, error) {
	if a.channel == nil {
		return nil, fmt.Errorf("amqp source: not set up")
	}
	options := contracts.ApplyOptions(opts...)
	if a.consumer == nil {
		consumer, err := a.channel.Consume(
			a.queueName,
			"",
			true,
			false,
			false,
			false,
			nil,
		)
		if err != nil {
			return nil, err
		}
		a.consumer = consumer
	}
	out := make(chan contracts.Envelope, 100)
	go func() {
		defer close(out)
		sent := 0
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-a.consumer:
				if !ok {
					return
				}
				env := toEnvelope(a.queueName, d)
				if env.Raw == "" {
					log.Printf("MQ empty message skipped: %s", d.MessageId)
					continue
				}
				select {
				case <-ctx.Done():
					return
				case out <- env:
				}
				sent++
				if options.Limit > 0 && sent >= options.Limit {
					return
				}
			}
		}
	}()
	return out, nil
}

func toEnvelope(queue string, d amqp.Delivery) contracts.Envelope {
	received := d.Timestamp
	if received.IsZero() {
		received = time.Now()
	}
	return contracts.Envelope{
		Raw:      string(parsers.UnwrapMLLP(d.Body)),
		Origin:   "amqp://" + queue,
		Received: received,
	}
}

// Publish sends a raw message to the queue, framed with MLLP.
func (a *Adapter) Publish(ctx context.Context, raw string) error {
	if a.channel == nil {
		return fmt.Errorf("amqp source: not set up")
	}
	return a.channel.PublishWithContext(ctx,
		"",
		a.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType: "x-application/hl7-v2+er7",
			Timestamp:   time.Now(),
			Body:        parsers.WrapMLLP([]byte(raw)),
		},
	)
}

func (a *Adapter) Close() error {
	if a.channel != nil {
		_ = a.channel.Close()
	}
	if a.conn != nil {
		return a.conn.Close()
	}
	return nil
}
