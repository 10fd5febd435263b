package notification

import (
	"context"
	"log/slog"
	"strconv"
	"strings"

	"github.com/segmentio/kafka-go"
)

const eventsTopic = "appointment-events"

// Publisher drains unpublished appointment events to Kafka. It is disabled
// entirely when no brokers are configured; the event log still accumulates
// and can be drained later.
type Publisher struct {
	repo      *PgRepository
	logger    *slog.Logger
	writer    *kafka.Writer
	batchSize int
}

func NewPublisher(repo *PgRepository, logger *slog.Logger, brokers string, batchSize int) *Publisher {
	if batchSize <= 0 {
		batchSize = 50
	}

	p := &Publisher{
		repo:      repo,
		logger:    logger,
		batchSize: batchSize,
	}

	if list := splitBrokers(brokers); len(list) > 0 {
		p.writer = kafka.NewWriter(kafka.WriterConfig{
			Brokers:  list,
			Topic:    eventsTopic,
			Balancer: &kafka.Hash{},
		})
	} else {
		logger.Warn("event publisher disabled (no kafka brokers configured)")
	}

	return p
}

func (p *Publisher) Enabled() bool {
	return p.writer != nil
}

func (p *Publisher) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// RunOnce publishes one batch of unpublished events. Rows are fetched and
// marked inside a single transaction so a crashed worker leaves them
// pending for the next run.
func (p *Publisher) RunOnce(ctx context.Context) error {
	if p.writer == nil {
		return nil
	}

	tx, err := p.repo.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	events, err := p.repo.FetchUnpublishedEvents(ctx, tx, p.batchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return tx.Commit(ctx)
	}

	msgs := make([]kafka.Message, 0, len(events))
	ids := make([]int64, 0, len(events))
	for _, ev := range events {
		key := ""
		if ev.AppointmentID != nil {
			key = strconv.FormatInt(*ev.AppointmentID, 10)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(key),
			Value: ev.Payload,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(ev.EventType)},
			},
		})
		ids = append(ids, ev.ID)
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return err
	}

	if err := p.repo.MarkEventsPublished(ctx, tx, ids); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func splitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
