package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// subscriptionBuffer is the number of undelivered snapshots a subscription
// holds. On overflow the oldest is discarded so the newest always arrives.
const subscriptionBuffer = 32

// closeFlushTimeout bounds how long Close waits for the server to
// acknowledge snapshots still in the outgoing buffer.
const closeFlushTimeout = 5 * time.Second

// connect dials url with reconnect-forever defaults; opts override them.
func connect(url, name string, opts ...nats.Option) (*nats.Conn, error) {
	defaults := []nats.Option{
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	}
	nc, err := nats.Connect(url, append(defaults, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return nc, nil
}

// NATSPublisher publishes document snapshots on their NATS subjects.
type NATSPublisher struct {
	conn *nats.Conn
}

func NewNATSPublisher(url string, opts ...nats.Option) (*NATSPublisher, error) {
	nc, err := connect(url, "klicker-server", opts...)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{conn: nc}, nil
}

// Publish sends doc as JSON on topic. While the connection is down nats.go
// buffers the message and sends it after reconnecting.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshaling %s snapshot: %w", topic, err)
	}
	if err := p.conn.Publish(topic, data); err != nil {
		return fmt.Errorf("publishing %s: %w", topic, err)
	}
	return nil
}

// Close flushes buffered snapshots, then closes the connection. The
// connection is closed even when the flush fails.
func (p *NATSPublisher) Close() error {
	defer p.conn.Close()
	if p.conn.IsClosed() {
		return nil
	}
	if err := p.conn.FlushTimeout(closeFlushTimeout); err != nil {
		return fmt.Errorf("flushing snapshots before close: %w", err)
	}
	return nil
}

// NATSSubscriber receives document snapshots from NATS subjects.
type NATSSubscriber struct {
	conn *nats.Conn
}

// NewNATSSubscriber connects to NATS and keeps reconnecting. Extra options,
// such as reconnect handlers, are applied after the defaults.
func NewNATSSubscriber(url string, opts ...nats.Option) (*NATSSubscriber, error) {
	nc, err := connect(url, "klicker-bridge", opts...)
	if err != nil {
		return nil, err
	}
	return &NATSSubscriber{conn: nc}, nil
}

// Subscribe delivers raw payloads published on topic (NATS wildcards
// allowed). The subscription is registered on the server before Subscribe
// returns. cancel unsubscribes, discards undelivered payloads and closes the
// channel; it may be called more than once.
func (s *NATSSubscriber) Subscribe(topic string) (<-chan []byte, func(), error) {
	ch := make(chan []byte, subscriptionBuffer)

	var (
		mu     sync.Mutex
		closed bool
	)
	deliver := func(msg *nats.Msg) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		for {
			select {
			case ch <- msg.Data:
				return
			default:
			}
			select {
			case <-ch:
			default:
			}
		}
	}

	sub, err := s.conn.Subscribe(topic, deliver)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	if err := s.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, nil, fmt.Errorf("registering subscription to %s: %w", topic, err)
	}

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = sub.Unsubscribe()
			mu.Lock()
			defer mu.Unlock()
			closed = true
			for len(ch) > 0 {
				<-ch
			}
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Connected reports whether the connection is currently up.
func (s *NATSSubscriber) Connected() bool {
	return s.conn.IsConnected()
}

func (s *NATSSubscriber) Close() error {
	s.conn.Close()
	return nil
}
