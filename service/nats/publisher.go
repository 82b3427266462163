package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"jupexec/service/metrics"
)

// Publisher defines the interface for publishing trade activity to NATS.
type Publisher interface {
	// PublishTrade publishes a terminal trade outcome to JetStream.
	// The event is published to the subject "trades.{wallet_address}".
	PublishTrade(ctx context.Context, event *TradeEvent) error

	// PublishAcquisition publishes a newly merged acquisition record.
	// The event is published to the subject "acquisitions.{wallet_address}".
	PublishAcquisition(ctx context.Context, event *AcquisitionEvent) error

	// Close closes the connection to NATS.
	Close() error
}

// JetStreamPublisher publishes trade events to NATS JetStream.
type JetStreamPublisher struct {
	nc      *nats.Conn
	js      jetstream.JetStream
	metrics *metrics.Metrics
	logger  *slog.Logger
}

const (
	// StreamName is the name of the JetStream stream for trade activity.
	StreamName = "TRADES"

	// StreamSubjects is the subject pattern for the stream.
	StreamSubjects = "trades.*"

	// AcquisitionStreamName holds reconciliation-derived acquisitions.
	AcquisitionStreamName = "ACQUISITIONS"

	// AcquisitionStreamSubjects is the subject pattern for acquisitions.
	AcquisitionStreamSubjects = "acquisitions.*"

	// StreamRetention is how long messages are retained (30 days by default).
	StreamRetention = 30 * 24 * time.Hour
)

// NewPublisher creates a new JetStream publisher.
// It connects to NATS and ensures both streams exist. The metrics collector
// is optional.
func NewPublisher(natsURL string, m *metrics.Metrics, logger *slog.Logger) (*JetStreamPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.Name("jupexec-publisher"),
		nats.Timeout(10*time.Second),
		nats.ReconnectWait(1*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	publisher := &JetStreamPublisher{
		nc:      nc,
		js:      js,
		metrics: m,
		logger:  logger,
	}

	if err := publisher.ensureStream(StreamName, StreamSubjects, "Trade execution outcomes"); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}
	if err := publisher.ensureStream(AcquisitionStreamName, AcquisitionStreamSubjects, "Reconciled wallet acquisitions"); err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to ensure stream exists: %w", err)
	}

	return publisher, nil
}

// ensureStream creates the stream if it does not already exist.
func (p *JetStreamPublisher) ensureStream(name, subjects, description string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	stream, err := p.js.Stream(ctx, name)
	if err == nil {
		info, err := stream.Info(ctx)
		if err == nil {
			p.logger.Debug("JetStream stream already exists",
				"stream", name,
				"messages", info.State.Msgs,
			)
		}
		return nil
	}

	p.logger.Info("creating JetStream stream", "stream", name)

	streamConfig := jetstream.StreamConfig{
		Name:        name,
		Description: description,
		Subjects:    []string{subjects},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      StreamRetention,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	}

	if _, err := p.js.CreateStream(ctx, streamConfig); err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	p.logger.Info("JetStream stream created successfully", "stream", name)
	return nil
}

// PublishTrade publishes a single trade outcome event.
func (p *JetStreamPublisher) PublishTrade(ctx context.Context, event *TradeEvent) error {
	subject := fmt.Sprintf("trades.%s", event.WalletAddress)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal trade event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish trade event: %w", err)
	}

	p.logger.Debug("published trade event",
		"subject", subject,
		"signature", event.Signature,
		"success", event.Success,
	)

	return nil
}

// PublishAcquisition publishes a single reconciled acquisition event.
func (p *JetStreamPublisher) PublishAcquisition(ctx context.Context, event *AcquisitionEvent) error {
	subject := fmt.Sprintf("acquisitions.%s", event.WalletAddress)

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal acquisition event: %w", err)
	}

	start := time.Now()
	_, err = p.js.Publish(ctx, subject, data)
	if p.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		p.metrics.RecordNATSPublish(subject, status, time.Since(start).Seconds())
	}
	if err != nil {
		return fmt.Errorf("failed to publish acquisition event: %w", err)
	}

	p.logger.Debug("published acquisition event",
		"subject", subject,
		"signature", event.Signature,
	)

	return nil
}

// Close closes the connection to NATS.
func (p *JetStreamPublisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		p.logger.Info("NATS publisher closed")
	}
	return nil
}
