package advisory

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

const tradeStream = "TRADES"

// EventPublisher announces executed trades to downstream consumers.
type EventPublisher interface {
	PublishTrade(ctx context.Context, rec TradeRecord) error
}

// NATSPublisher publishes trade events to a JetStream stream.
type NATSPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	subject string
}

// ConnectNATS connects to url and makes sure the TRADES stream captures subject.
func ConnectNATS(ctx context.Context, url, subject string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url, nats.Name("trade-execution"))
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream init: %w", err)
	}
	_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     tradeStream,
		Subjects: []string{subject},
	})
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("jetstream stream create: %w", err)
	}
	slog.Info("nats connected", "url", url, "stream", tradeStream, "subject", subject)
	return &NATSPublisher{nc: nc, js: js, subject: subject}, nil
}

// PublishTrade sends rec as JSON. The trade id is the message id, so JetStream drops
// redelivered duplicates.
func (p *NATSPublisher) PublishTrade(ctx context.Context, rec TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal trade event: %w", err)
	}
	if _, err := p.js.Publish(ctx, p.subject, data, jetstream.WithMsgID(rec.TradeID)); err != nil {
		return fmt.Errorf("nats publish %s: %w", p.subject, err)
	}
	return nil
}

// Close drains pending publishes and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}
