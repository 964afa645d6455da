// Package mirror publishes bridge activity to a Kafka topic so external
// tooling can observe the session without the bridge storing anything
// itself. Publishing is best-effort: a slow or absent broker never
// blocks message processing.
package mirror

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kamir/leonbridge/internal/config"
)

// Envelope types.
const (
	EnvelopeInbound   = "inbound"
	EnvelopeReply     = "reply"
	EnvelopeProactive = "proactive"
	EnvelopeLifecycle = "lifecycle"
)

// Envelope is one mirrored bridge event.
type Envelope struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Peer      string    `json:"peer,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Verdict   string    `json:"verdict,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Writer abstracts kafka.Writer so tests can capture envelopes
// in-process.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher emits envelopes to a single topic, keyed by peer.
type Publisher struct {
	writer Writer
}

// NewPublisher creates a Kafka-backed publisher, or nil when the mirror
// is disabled or has no brokers configured. A nil *Publisher is safe to
// call.
func NewPublisher(cfg config.MirrorConfig) *Publisher {
	if !cfg.Enabled || cfg.KafkaBrokers == "" {
		return nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(strings.Split(cfg.KafkaBrokers, ",")...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		Async:        true,
	}
	return &Publisher{writer: w}
}

// NewWithWriter creates a publisher over an existing writer (tests).
func NewWithWriter(w Writer) *Publisher {
	return &Publisher{writer: w}
}

// Inbound mirrors a classified inbound message.
func (p *Publisher) Inbound(peer, messageID, verdict string) {
	p.publish(Envelope{Type: EnvelopeInbound, Peer: peer, MessageID: messageID, Verdict: verdict})
}

// Reply mirrors a router-driven reply send.
func (p *Publisher) Reply(peer string, messageIDs []string) {
	p.publish(Envelope{Type: EnvelopeReply, Peer: peer, Detail: strings.Join(messageIDs, ",")})
}

// Proactive mirrors a command-server send.
func (p *Publisher) Proactive(peer string) {
	p.publish(Envelope{Type: EnvelopeProactive, Peer: peer})
}

// Lifecycle mirrors a session state transition.
func (p *Publisher) Lifecycle(event, detail string) {
	p.publish(Envelope{Type: EnvelopeLifecycle, Verdict: event, Detail: detail})
}

// Close flushes and closes the underlying writer.
func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

func (p *Publisher) publish(env Envelope) {
	if p == nil || p.writer == nil {
		return
	}
	env.Timestamp = time.Now().UTC()

	value, err := json.Marshal(env)
	if err != nil {
		slog.Warn("mirror: marshal envelope", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(env.Peer),
		Value: value,
	}); err != nil {
		slog.Warn("mirror: publish failed", "type", env.Type, "error", err)
	}
}
