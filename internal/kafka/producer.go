package kafka

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
)

type Producer struct {
	w       *kafka.Writer
	inbox   chan kafka.Message
	closeCh chan struct{}

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func NewProducer(brokers []string, topic string, buf int) *Producer {
	return &Producer{
		w: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        true,
			Completion: func(msgs []kafka.Message, err error) {
				if err != nil {
					log.Printf("kafka write %s: %d message(s): %v", topic, len(msgs), err)
				}
			},
		},
		inbox:   make(chan kafka.Message, buf),
		closeCh: make(chan struct{}),
	}
}

// Start drains the inbox into the writer until Close is called. Messages still
// queued at that point are flushed before the writer closes.
func (p *Producer) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			if err := p.w.WriteMessages(context.WithoutCancel(ctx), m); err != nil {
				log.Printf("kafka publish %s: %v", p.w.Topic, err)
			}
		}
		if err := p.w.Close(); err != nil {
			log.Printf("kafka writer close: %v", err)
		}
	}()
}

// Publish enqueues one message without blocking. When the inbox is full, or
// the producer is closed, the message is dropped and logged.
func (p *Producer) Publish(key, value []byte, headers ...kafka.Header) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.dropped.Add(1)
		log.Printf("kafka producer %s closed, dropping message key=%s", p.w.Topic, key)
		return
	}
	select {
	case p.inbox <- kafka.Message{Key: key, Value: value, Time: time.Now(), Headers: headers}:
	default:
		p.dropped.Add(1)
		log.Printf("kafka producer %s inbox full, dropping message key=%s", p.w.Topic, key)
	}
}

// Dropped is the number of messages Publish discarded.
func (p *Producer) Dropped() int64 { return p.dropped.Load() }

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.inbox)
	}
}

func (p *Producer) WaitClosed() { <-p.closeCh }
